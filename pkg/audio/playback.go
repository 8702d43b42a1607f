package audio

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PlaybackDevice plays PCM audio to an output device.
type PlaybackDevice struct {
	stream     *portaudio.Stream
	sampleRate float64
	frameSize  int
	buffer     []int16
	deviceName string // empty = default
	mu         sync.Mutex
	running    bool
}

// NewPlaybackDevice creates a new audio playback device.
// deviceName may be empty to use the system default.
func NewPlaybackDevice(sampleRate float64, frameSize int, deviceName string) (*PlaybackDevice, error) {
	return &PlaybackDevice{
		sampleRate: sampleRate,
		frameSize:  frameSize,
		buffer:     make([]int16, frameSize),
		deviceName: deviceName,
	}, nil
}

// Start begins audio playback.
func (p *PlaybackDevice) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var output *portaudio.DeviceInfo
	if p.deviceName != "" {
		output = FindDevice(p.deviceName)
	}
	if output == nil {
		var err error
		output, err = portaudio.DefaultOutputDevice()
		if err != nil {
			return fmt.Errorf("audio: no output device: %w", err)
		}
	}

	params := portaudio.LowLatencyParameters(nil, output)
	params.Output.Channels = 1
	params.Input.Device = nil
	params.Input.Channels = 0
	params.SampleRate = p.sampleRate
	params.FramesPerBuffer = p.frameSize

	stream, err := portaudio.OpenStream(params, p.buffer)
	if err != nil {
		return fmt.Errorf("audio: open playback stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("audio: start playback: %w", err)
	}

	p.stream = stream
	p.running = true
	slog.Debug("audio playback started", "device", output.Name, "rate", p.sampleRate)
	return nil
}

// WriteFrame writes one frame of PCM audio to the output. Blocks until written.
func (p *PlaybackDevice) WriteFrame(frame []int16) error {
	if len(frame) != len(p.buffer) {
		return fmt.Errorf("audio: frame size mismatch: got %d, want %d", len(frame), len(p.buffer))
	}
	copy(p.buffer, frame)
	if err := p.stream.Write(); err != nil {
		return fmt.Errorf("audio: write frame: %w", err)
	}
	return nil
}

// SampleRate reports the output rate frames must be resampled to.
func (p *PlaybackDevice) SampleRate() float64 {
	return p.sampleRate
}

// Stop stops audio playback.
func (p *PlaybackDevice) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}
	p.running = false

	if p.stream != nil {
		_ = p.stream.Stop()
		_ = p.stream.Close()
	}
	return nil
}
