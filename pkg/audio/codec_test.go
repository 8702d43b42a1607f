package audio

import (
	"math"
	"testing"
)

func newCodecPair(t *testing.T) (*Encoder, *Decoder) {
	t.Helper()
	enc, err := NewEncoder()
	if err != nil {
		t.Skipf("opus encoder unavailable: %v", err)
	}
	dec, err := NewDecoder()
	if err != nil {
		t.Skipf("opus decoder unavailable: %v", err)
	}
	return enc, dec
}

func rms(frame []int16) float64 {
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(frame)))
}

func TestCodecRoundTripSilence(t *testing.T) {
	enc, dec := newCodecPair(t)

	// Warm the codec state; the first frames of a stream carry transients.
	silence := make([]int16, opusFrameSize)
	var out []int16
	for i := 0; i < 5; i++ {
		data, err := enc.Encode(silence)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if len(data) == 0 {
			// DTX suppressed the frame entirely, which is fine for silence.
			continue
		}
		out, err = dec.Decode(data)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if len(out) != opusFrameSize {
			t.Fatalf("decoded %d samples, want %d", len(out), opusFrameSize)
		}
	}
	if out != nil && rms(out) > 100 {
		t.Errorf("silence round-tripped to RMS %.1f, want near zero", rms(out))
	}
}

func TestCodecRoundTripTone(t *testing.T) {
	enc, dec := newCodecPair(t)

	in := toneFrame(8000, opusFrameSize)
	var out []int16
	for i := 0; i < 5; i++ {
		data, err := enc.Encode(in)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if len(data) == 0 {
			t.Fatal("encoder suppressed a loud frame")
		}
		out, err = dec.Decode(data)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
	}

	// One 20ms frame in, one 20ms frame out. The codec is lossy but a loud
	// tone must come back loud, not attenuated to silence.
	if len(out) != opusFrameSize {
		t.Fatalf("decoded %d samples, want %d", len(out), opusFrameSize)
	}
	if got := rms(out); got < rms(in)/4 {
		t.Errorf("tone round-tripped to RMS %.1f, input RMS %.1f", got, rms(in))
	}
}

func TestCodecShortFrameIsPadded(t *testing.T) {
	enc, dec := newCodecPair(t)

	data, err := enc.Encode(make([]int16, 100))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(data) == 0 {
		t.Skip("encoder suppressed the padded silence frame")
	}
	out, err := dec.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(out) != opusFrameSize {
		t.Fatalf("decoded %d samples, want %d", len(out), opusFrameSize)
	}
}

func TestCodecPLCProducesFullFrame(t *testing.T) {
	enc, dec := newCodecPair(t)

	// Prime the decoder with one real frame, then conceal a lost one.
	data, err := enc.Encode(toneFrame(8000, opusFrameSize))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := dec.Decode(data); err != nil {
		t.Fatalf("Decode: %v", err)
	}

	out, err := dec.DecodePLC()
	if err != nil {
		t.Fatalf("DecodePLC: %v", err)
	}
	if len(out) != opusFrameSize {
		t.Fatalf("concealment frame has %d samples, want %d", len(out), opusFrameSize)
	}
}
