package audio

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestApplyGain(t *testing.T) {
	t.Parallel()

	type tcase struct {
		frame []int16
		gain  float32
		want  []int16
	}
	tcases := map[string]tcase{
		"unity_untouched": {
			frame: []int16{100, -100, 32767},
			gain:  1.0,
			want:  []int16{100, -100, 32767},
		},
		"half": {
			frame: []int16{100, -100, 0},
			gain:  0.5,
			want:  []int16{50, -50, 0},
		},
		"zero_silences": {
			frame: []int16{100, -100, 32767},
			gain:  0,
			want:  []int16{0, 0, 0},
		},
		"saturates_positive": {
			frame: []int16{30000},
			gain:  2.0,
			want:  []int16{32767},
		},
		"saturates_negative": {
			frame: []int16{-30000},
			gain:  2.0,
			want:  []int16{-32768},
		},
	}

	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			frame := append([]int16(nil), tc.frame...)
			ApplyGain(frame, tc.gain)
			if diff := cmp.Diff(tc.want, frame); diff != "" {
				t.Errorf("ApplyGain mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMixFrames(t *testing.T) {
	t.Parallel()

	type tcase struct {
		frames [][]int16
		size   int
		want   []int16
	}
	tcases := map[string]tcase{
		"empty_is_silence": {
			frames: nil,
			size:   4,
			want:   []int16{0, 0, 0, 0},
		},
		"single_passthrough": {
			frames: [][]int16{{1, 2, 3}},
			size:   3,
			want:   []int16{1, 2, 3},
		},
		"sums": {
			frames: [][]int16{{100, -50}, {200, 50}},
			size:   2,
			want:   []int16{300, 0},
		},
		"saturates": {
			frames: [][]int16{{30000}, {30000}},
			size:   1,
			want:   []int16{32767},
		},
		"short_frame_padded": {
			frames: [][]int16{{1}, {10, 20}},
			size:   2,
			want:   []int16{11, 20},
		},
	}

	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			got := MixFrames(tc.frames, tc.size)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("MixFrames mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
