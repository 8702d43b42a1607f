package client

import (
	"sync"
	"testing"
	"time"

	"github.com/sornas/mum/pkg/audio"
	"github.com/sornas/mum/pkg/protocol"
)

// fakeDecoder turns each "opus" byte payload into a constant frame whose
// value is the first payload byte, and counts concealment calls.
type fakeDecoder struct {
	mu        sync.Mutex
	decoded   int
	concealed int
}

func (d *fakeDecoder) Decode(data []byte) ([]int16, error) {
	d.mu.Lock()
	d.decoded++
	d.mu.Unlock()
	frame := make([]int16, protocol.FrameSize)
	var v int16
	if len(data) > 0 {
		v = int16(data[0])
	}
	for i := range frame {
		frame[i] = v
	}
	return frame, nil
}

func (d *fakeDecoder) DecodePLC() ([]int16, error) {
	d.mu.Lock()
	d.concealed++
	d.mu.Unlock()
	return make([]int16, protocol.FrameSize), nil
}

func (d *fakeDecoder) counts() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.decoded, d.concealed
}

type fakeFactory struct {
	mu       sync.Mutex
	decoders []*fakeDecoder
}

func (f *fakeFactory) NewDecoder() (audio.FrameDecoder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := &fakeDecoder{}
	f.decoders = append(f.decoders, d)
	return d, nil
}

func pkt(session, seq uint32, value byte) *protocol.VoicePacket {
	return &protocol.VoicePacket{Session: session, SeqNum: seq, Payload: []byte{value}}
}

func TestStreamManagerLazyCreation(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{}
	m := NewStreamManager(factory, 5, protocol.SampleRate)
	if m.Len() != 0 {
		t.Fatalf("fresh manager has %d streams", m.Len())
	}

	m.Process(pkt(7, 1, 100))
	m.Process(pkt(7, 2, 100))
	m.Process(pkt(8, 1, 50))

	if m.Len() != 2 {
		t.Fatalf("Len = %d, want one stream per speaker", m.Len())
	}
	if len(factory.decoders) != 2 {
		t.Fatalf("created %d decoders, want 2", len(factory.decoders))
	}
}

func TestStreamManagerMixAndGain(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{}
	m := NewStreamManager(factory, 5, protocol.SampleRate)
	m.Process(pkt(7, 1, 100))
	m.Process(pkt(8, 1, 50))

	frame := m.MixOutput(protocol.FrameSize, func(session uint32) float32 {
		if session == 8 {
			return 0 // locally muted
		}
		return 1.0
	})
	if len(frame) != protocol.FrameSize {
		t.Fatalf("frame length %d", len(frame))
	}
	// Only speaker 7 contributes; 8 is gated by gain 0.
	if frame[0] != 100 {
		t.Fatalf("mixed sample = %d, want 100", frame[0])
	}

	// Muted speaker's audio was still consumed from the ring: decode
	// continues while muted.
	decoded, _ := factory.decoders[1].counts()
	if decoded != 1 {
		t.Fatalf("muted speaker decoded %d frames, want 1", decoded)
	}
}

func TestStreamManagerConcealsGaps(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{}
	m := NewStreamManager(factory, 5, protocol.SampleRate)
	for _, seq := range []uint32{1, 2, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13} {
		m.Process(pkt(7, seq, 10))
	}

	decoded, concealed := factory.decoders[0].counts()
	if concealed != 1 {
		t.Fatalf("concealed %d frames, want 1 for the seq-3 gap", concealed)
	}
	if decoded != 12 {
		t.Fatalf("decoded %d frames, want 12", decoded)
	}
}

func TestStreamManagerEmptyMixIsSilence(t *testing.T) {
	t.Parallel()

	m := NewStreamManager(&fakeFactory{}, 5, protocol.SampleRate)
	frame := m.MixOutput(protocol.FrameSize, func(uint32) float32 { return 1 })
	for i, s := range frame {
		if s != 0 {
			t.Fatalf("sample %d = %d, want silence", i, s)
		}
	}
}

func TestStreamManagerReap(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{}
	m := NewStreamManager(factory, 5, protocol.SampleRate)
	m.Process(pkt(7, 1, 1))
	m.Process(pkt(8, 1, 1))

	// Backdate speaker 7's last packet, then reap.
	m.mu.Lock()
	m.streams[7].lastPacket = time.Now().Add(-time.Minute)
	m.mu.Unlock()

	m.Reap(5 * time.Second)
	if m.Len() != 1 {
		t.Fatalf("Len = %d after reap, want 1", m.Len())
	}
	if _, ok := m.streams[8]; !ok {
		t.Fatal("active stream was reaped")
	}
}

func TestStreamManagerRemove(t *testing.T) {
	t.Parallel()

	m := NewStreamManager(&fakeFactory{}, 5, protocol.SampleRate)
	m.Process(pkt(7, 1, 1))
	m.Remove(7)
	if m.Len() != 0 {
		t.Fatalf("Len = %d after Remove", m.Len())
	}
	m.Remove(99) // unknown session is a no-op
}
