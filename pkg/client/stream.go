package client

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sornas/mum/pkg/audio"
	"github.com/sornas/mum/pkg/protocol"
)

// ringCapacity bounds per-stream buffered output audio (in seconds of the
// output rate). Anything older gets dropped so latency cannot pile up.
const ringSeconds = 0.5

// VoiceStream holds the decode state for one remote speaker: decoder,
// jitter buffer, resampler and the bounded output ring the mixer reads.
// Owned by the StreamManager; other components address it only by the
// speaker's session id.
type VoiceStream struct {
	session    uint32
	decoder    audio.FrameDecoder
	jitter     *JitterBuffer
	resampler  *audio.Resampler
	ring       *audio.Ring
	lastPacket time.Time // guarded by the manager's mutex
}

// ingest pushes one packet through jitter reordering, decode (or loss
// concealment) and resampling into the output ring.
func (vs *VoiceStream) ingest(seqNum uint32, opusPayload []byte) {
	vs.jitter.Push(seqNum, opusPayload)

	for {
		data, _, ok := vs.jitter.Pop()
		if !ok {
			return
		}

		var (
			pcm []int16
			err error
		)
		if data == nil {
			pcm, err = vs.decoder.DecodePLC()
			metricFramesConcealed.Inc()
		} else {
			pcm, err = vs.decoder.Decode(data)
		}
		if err != nil {
			slog.Debug("decode error", "session", vs.session, "err", err)
			continue
		}

		vs.ring.Write(vs.resampler.Resample(pcm))
	}
}

// StreamManager owns all VoiceStreams. Streams are created lazily on the
// first packet from a session and reaped after a silence timeout.
type StreamManager struct {
	mu      sync.Mutex
	streams map[uint32]*VoiceStream

	factory     audio.DecoderFactory
	jitterDepth int
	outputRate  float64
}

// NewStreamManager creates a manager decoding at 48kHz and resampling each
// stream to outputRate.
func NewStreamManager(factory audio.DecoderFactory, jitterDepth int, outputRate float64) *StreamManager {
	return &StreamManager{
		streams:     make(map[uint32]*VoiceStream),
		factory:     factory,
		jitterDepth: jitterDepth,
		outputRate:  outputRate,
	}
}

// Process routes one decrypted voice packet to its speaker's stream,
// creating the stream if this is the speaker's first packet.
func (m *StreamManager) Process(pkt *protocol.VoicePacket) {
	m.mu.Lock()
	vs, ok := m.streams[pkt.Session]
	if !ok {
		decoder, err := m.factory.NewDecoder()
		if err != nil {
			m.mu.Unlock()
			slog.Error("create decoder failed", "session", pkt.Session, "err", err)
			return
		}
		vs = &VoiceStream{
			session:   pkt.Session,
			decoder:   decoder,
			jitter:    NewJitterBuffer(m.jitterDepth),
			resampler: audio.NewResampler(protocol.SampleRate, m.outputRate),
			ring:      audio.NewRing(int(m.outputRate * ringSeconds)),
		}
		m.streams[pkt.Session] = vs
		metricActiveStreams.Set(float64(len(m.streams)))
		slog.Debug("voice stream created", "session", pkt.Session)
	}
	vs.lastPacket = time.Now()
	m.mu.Unlock()

	vs.ingest(pkt.SeqNum, pkt.Payload)
}

// MixOutput reads one frame from every active stream, applies the per-stream
// gain from gainFor, and returns the saturating mix. Never blocks; streams
// with no buffered audio contribute silence.
func (m *StreamManager) MixOutput(frameSize int, gainFor func(session uint32) float32) []int16 {
	m.mu.Lock()
	active := make([]*VoiceStream, 0, len(m.streams))
	for _, vs := range m.streams {
		active = append(active, vs)
	}
	m.mu.Unlock()

	var frames [][]int16
	for _, vs := range active {
		frame := make([]int16, frameSize)
		if vs.ring.Read(frame) == 0 {
			continue
		}
		gain := gainFor(vs.session)
		if gain == 0 {
			// Muted streams keep decoding (sequence tracking continues) but
			// contribute nothing to the mix.
			continue
		}
		audio.ApplyGain(frame, gain)
		frames = append(frames, frame)
	}
	return audio.MixFrames(frames, frameSize)
}

// Reap removes streams idle longer than timeout.
func (m *StreamManager) Reap(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-timeout)
	for session, vs := range m.streams {
		if vs.lastPacket.Before(cutoff) {
			delete(m.streams, session)
			slog.Debug("voice stream reaped", "session", session)
		}
	}
	metricActiveStreams.Set(float64(len(m.streams)))
}

// Remove drops one stream, e.g. when its user disconnects.
func (m *StreamManager) Remove(session uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.streams, session)
	metricActiveStreams.Set(float64(len(m.streams)))
}

// Len returns the number of live streams.
func (m *StreamManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}
