package audio

import (
	"math"
	"testing"
)

func TestResamplePassthrough(t *testing.T) {
	t.Parallel()

	r := NewResampler(48000, 48000)
	in := []int16{1, 2, 3, 4}
	out := r.Resample(in)
	if len(out) != len(in) {
		t.Fatalf("passthrough length %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("passthrough sample %d = %d, want %d", i, out[i], in[i])
		}
	}
}

func TestResampleDownHalvesLength(t *testing.T) {
	t.Parallel()

	r := NewResampler(48000, 24000)
	out := r.Resample(make([]int16, 960))
	// 2:1 ratio: one output sample per two input samples, give or take the
	// carried fractional position.
	if out == nil || math.Abs(float64(len(out)-480)) > 1 {
		t.Fatalf("downsample length %d, want ~480", len(out))
	}
}

func TestResampleUpDoublesLength(t *testing.T) {
	t.Parallel()

	r := NewResampler(24000, 48000)
	out := r.Resample(make([]int16, 480))
	if math.Abs(float64(len(out)-960)) > 1 {
		t.Fatalf("upsample length %d, want ~960", len(out))
	}
}

func TestResampleContinuityAcrossFrames(t *testing.T) {
	t.Parallel()

	// A constant signal must stay constant across frame boundaries; any
	// interpolation seam would show up as a deviating sample.
	r := NewResampler(48000, 44100)
	for frame := 0; frame < 5; frame++ {
		in := make([]int16, 960)
		for i := range in {
			in[i] = 1000
		}
		for i, s := range r.Resample(in) {
			if s != 1000 {
				t.Fatalf("frame %d sample %d = %d, want 1000", frame, i, s)
			}
		}
	}
}

func TestResampleTotalSampleBudget(t *testing.T) {
	t.Parallel()

	// Over many frames the output count must track the rate ratio, or the
	// playback buffer would drift.
	r := NewResampler(48000, 44100)
	total := 0
	const frames = 100
	for i := 0; i < frames; i++ {
		total += len(r.Resample(make([]int16, 960)))
	}
	want := float64(frames) * 960 * 44100 / 48000
	if math.Abs(float64(total)-want) > frames {
		t.Fatalf("total output %d, want ~%.0f", total, want)
	}
}

func TestResampleFrameStartInterpolatesWithinFrame(t *testing.T) {
	t.Parallel()

	// 0.75 ratio leaves the position at 0.5 after a 4-sample frame, so the
	// next frame's first output sits halfway between its samples 0 and 1.
	// It must interpolate those two, not the previous frame's tail.
	r := NewResampler(36000, 48000)
	r.Resample([]int16{0, 0, 0, 10000})

	out := r.Resample([]int16{0, 1000, 0, 0})
	if len(out) == 0 {
		t.Fatal("no output")
	}
	if out[0] != 500 {
		t.Fatalf("first sample of second frame = %d, want 500", out[0])
	}
}

func TestResampleReset(t *testing.T) {
	t.Parallel()

	r := NewResampler(48000, 44100)
	r.Resample(make([]int16, 960))
	r.Reset()
	out := r.Resample(make([]int16, 960))
	if len(out) == 0 {
		t.Fatal("no output after Reset")
	}
}

func TestResampleEmptyInput(t *testing.T) {
	t.Parallel()

	r := NewResampler(48000, 44100)
	if out := r.Resample(nil); out != nil {
		t.Fatalf("empty input produced %d samples", len(out))
	}
}
