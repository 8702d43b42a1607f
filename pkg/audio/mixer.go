package audio

// ApplyGain scales a PCM frame in place, saturating at the int16 range.
func ApplyGain(frame []int16, gain float32) {
	if gain == 1.0 {
		return
	}
	for i, s := range frame {
		scaled := float32(s) * gain
		frame[i] = clampSample(int32(scaled))
	}
}

// MixFrames sums multiple PCM frames into one frame of frameSize samples.
// Summation saturates at the int16 range rather than wrapping.
func MixFrames(frames [][]int16, frameSize int) []int16 {
	mixed := make([]int16, frameSize)
	if len(frames) == 0 {
		return mixed
	}
	if len(frames) == 1 && len(frames[0]) == frameSize {
		copy(mixed, frames[0])
		return mixed
	}

	for i := 0; i < frameSize; i++ {
		var sum int32
		for _, frame := range frames {
			if i < len(frame) {
				sum += int32(frame[i])
			}
		}
		mixed[i] = clampSample(sum)
	}
	return mixed
}

func clampSample(s int32) int16 {
	if s > 32767 {
		return 32767
	}
	if s < -32768 {
		return -32768
	}
	return int16(s) //nolint:gosec // clamped above
}
