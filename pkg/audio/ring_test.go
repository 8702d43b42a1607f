package audio

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRingReadWrite(t *testing.T) {
	t.Parallel()

	r := NewRing(8)
	r.Write([]int16{1, 2, 3})

	out := make([]int16, 3)
	if n := r.Read(out); n != 3 {
		t.Fatalf("Read = %d, want 3", n)
	}
	if diff := cmp.Diff([]int16{1, 2, 3}, out); diff != "" {
		t.Errorf("read mismatch (-want +got):\n%s", diff)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d after drain", r.Len())
	}
}

func TestRingUnderrunPadsWithSilence(t *testing.T) {
	t.Parallel()

	r := NewRing(8)
	r.Write([]int16{5})

	out := []int16{9, 9, 9, 9}
	if n := r.Read(out); n != 1 {
		t.Fatalf("Read = %d, want 1", n)
	}
	if diff := cmp.Diff([]int16{5, 0, 0, 0}, out); diff != "" {
		t.Errorf("underrun mismatch (-want +got):\n%s", diff)
	}
}

func TestRingOverflowEvictsOldest(t *testing.T) {
	t.Parallel()

	r := NewRing(4)
	r.Write([]int16{1, 2, 3, 4})
	r.Write([]int16{5, 6}) // evicts 1, 2

	if r.Dropped() != 2 {
		t.Fatalf("Dropped = %d, want 2", r.Dropped())
	}
	out := make([]int16, 4)
	r.Read(out)
	if diff := cmp.Diff([]int16{3, 4, 5, 6}, out); diff != "" {
		t.Errorf("overflow mismatch (-want +got):\n%s", diff)
	}
}

func TestRingWrapAround(t *testing.T) {
	t.Parallel()

	r := NewRing(4)
	for i := int16(0); i < 10; i++ {
		r.Write([]int16{i})
		out := make([]int16, 1)
		r.Read(out)
		if out[0] != i {
			t.Fatalf("wrap read = %d, want %d", out[0], i)
		}
	}
}
