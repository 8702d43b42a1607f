package audio

// Resampler converts PCM between sample rates by linear interpolation.
// It carries the fractional read position across calls so consecutive
// frames join without discontinuities.
type Resampler struct {
	ratio float64 // input rate / output rate
	pos   float64 // fractional position into the current input frame
}

// NewResampler creates a resampler from inputRate to outputRate.
// A ratio of 1.0 passes frames through untouched.
func NewResampler(inputRate, outputRate float64) *Resampler {
	if inputRate <= 0 || outputRate <= 0 {
		return &Resampler{ratio: 1}
	}
	return &Resampler{ratio: inputRate / outputRate}
}

// Resample converts one input frame. Output length varies by up to one
// sample between calls as the fractional position advances.
func (r *Resampler) Resample(in []int16) []int16 {
	if len(in) == 0 {
		return nil
	}
	if r.ratio == 1 {
		out := make([]int16, len(in))
		copy(out, in)
		return out
	}

	out := make([]int16, 0, int(float64(len(in))/r.ratio)+1)
	pos := r.pos
	for pos < float64(len(in)) {
		i := int(pos)
		frac := pos - float64(i)

		s0 := in[i]
		s1 := s0 // flat hold at the frame tail
		if i+1 < len(in) {
			s1 = in[i+1]
		}

		sample := float64(s0) + (float64(s1)-float64(s0))*frac
		out = append(out, int16(sample))
		pos += r.ratio
	}

	r.pos = pos - float64(len(in))
	return out
}

// Reset clears interpolation state, for reuse after a stream gap.
func (r *Resampler) Reset() {
	r.pos = 0
}
