package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"

	"github.com/sornas/mum/pkg/audio"
	mumcrypto "github.com/sornas/mum/pkg/crypto"
	"github.com/sornas/mum/pkg/protocol"
	"github.com/sornas/mum/pkg/session"
)

// Options tune the engine. Zero values fall back to defaults.
type Options struct {
	KeepaliveInterval time.Duration // ping cadence on the control channel
	KeepaliveTimeout  time.Duration // silence window before the link is declared dead
	StreamTimeout     time.Duration // idle window before a remote voice stream is reaped
	JitterDepth       int           // frames buffered before playout starts

	InputDevice  string // empty = system default
	OutputDevice string
	OutputRate   float64 // playback sample rate, 48000 when zero

	VADThreshold float64 // RMS gate for transmission
}

func (o *Options) withDefaults() {
	if o.KeepaliveInterval <= 0 {
		o.KeepaliveInterval = 10 * time.Second
	}
	if o.KeepaliveTimeout <= 0 {
		o.KeepaliveTimeout = 30 * time.Second
	}
	if o.StreamTimeout <= 0 {
		o.StreamTimeout = 5 * time.Second
	}
	if o.JitterDepth <= 0 {
		o.JitterDepth = 5
	}
	if o.OutputRate <= 0 {
		o.OutputRate = float64(protocol.SampleRate)
	}
	if o.VADThreshold <= 0 {
		o.VADThreshold = 200
	}
}

// ConnectParams are the resolved parameters of one connection attempt.
type ConnectParams struct {
	Host              string
	Port              uint16
	Username          string
	Password          string
	AcceptInvalidCert bool
}

// EventSink receives session events in the order they are applied.
type EventSink func(session.Event)

// outgoingVoice exists only while we are actually transmitting. Dropping it
// between transmissions resets the encoder so each burst starts clean.
type outgoingVoice struct {
	encoder audio.FrameEncoder
	frames  uint64
}

// Engine drives one voice session end to end: control handshake, keepalive,
// the capture and playback pipelines, and the session state those feed.
//
// Concurrency contract: the control read loop is the only writer of session
// state derived from server messages. Command methods called from the IPC
// dispatcher only read state or send control messages, so there is no second
// writer racing the loop.
type Engine struct {
	opts Options

	mu     sync.Mutex
	phases *fsm.FSM

	state   *session.State
	control *ControlClient
	voice   *VoiceClient
	streams *StreamManager

	capture  audio.Capturer
	playback audio.Player

	inputVolume  float32
	outputVolume float32

	// terminalSent guards the one terminal event per connection: either a
	// single disconnected or a single keepalive_timeout, never both.
	terminalSent bool

	connCtx    context.Context
	connCancel context.CancelFunc
	loops      sync.WaitGroup

	lastPong atomic.Int64 // unix nanos of the last control pong

	sinkMu sync.Mutex
	sink   EventSink

	// Factories, swappable in tests so no sound card or Opus library is
	// needed to exercise the engine.
	newCapture     func(deviceName string) (audio.Capturer, error)
	newPlayback    func(deviceName string, rate float64, frameSize int) (audio.Player, error)
	newEncoder     func() (audio.FrameEncoder, error)
	decoderFactory audio.DecoderFactory
}

// NewEngine creates an engine with the real audio stack wired in.
func NewEngine(opts Options) *Engine {
	opts.withDefaults()
	e := &Engine{
		opts:         opts,
		phases:       newPhaseFSM(),
		inputVolume:  1.0,
		outputVolume: 1.0,
		newEncoder: func() (audio.FrameEncoder, error) {
			return audio.NewEncoder()
		},
		decoderFactory: audio.OpusDecoderFactory{},
	}
	e.newCapture = func(deviceName string) (audio.Capturer, error) {
		dev, err := audio.NewCaptureDevice(float64(protocol.SampleRate), protocol.FrameSize, deviceName)
		if err != nil {
			return nil, err
		}
		if err := dev.Start(); err != nil {
			return nil, err
		}
		return dev, nil
	}
	e.newPlayback = func(deviceName string, rate float64, frameSize int) (audio.Player, error) {
		dev, err := audio.NewPlaybackDevice(rate, frameSize, deviceName)
		if err != nil {
			return nil, err
		}
		if err := dev.Start(); err != nil {
			return nil, err
		}
		return dev, nil
	}
	return e
}

// SetEventSink installs the callback that receives session events. Must be
// set before Connect; events fired with no sink are dropped.
func (e *Engine) SetEventSink(sink EventSink) {
	e.sinkMu.Lock()
	e.sink = sink
	e.sinkMu.Unlock()
}

func (e *Engine) emit(events ...session.Event) {
	e.sinkMu.Lock()
	sink := e.sink
	e.sinkMu.Unlock()
	if sink == nil {
		return
	}
	for _, ev := range events {
		sink(ev)
	}
}

// Phase returns the current connection phase.
func (e *Engine) Phase() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phases.Current()
}

// Session exposes the live session state, or nil when disconnected.
func (e *Engine) Session() *session.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phases.Current() != PhaseConnected {
		return nil
	}
	return e.state
}

// Connect dials the server, runs the handshake through synchronization and
// starts the session loops. It returns the server's welcome text. A second
// connect while any session is live fails with ErrAlreadyConnected.
func (e *Engine) Connect(ctx context.Context, params ConnectParams) (string, error) {
	addr := net.JoinHostPort(params.Host, strconv.Itoa(int(params.Port)))

	e.mu.Lock()
	if e.phases.Current() != PhaseDisconnected {
		e.mu.Unlock()
		return "", ErrAlreadyConnected
	}
	if err := e.phases.Event(ctx, eventDial); err != nil {
		e.mu.Unlock()
		return "", fmt.Errorf("client: %w", err)
	}
	state := session.NewState(params.Host, params.Username)
	e.state = state
	e.terminalSent = false
	e.mu.Unlock()

	welcome, err := e.handshake(ctx, addr, params, state)
	if err != nil {
		e.abortConnect()
		return "", err
	}
	return welcome, nil
}

// abortConnect rolls a failed connection attempt back to disconnected
// without emitting a terminal event; the caller reports the error directly.
func (e *Engine) abortConnect() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.connCancel != nil {
		e.connCancel()
		e.connCancel = nil
	}
	if e.voice != nil {
		_ = e.voice.Close()
		e.voice = nil
	}
	if e.control != nil {
		_ = e.control.Close()
		e.control = nil
	}
	e.state = nil
	e.streams = nil
	_ = e.phases.Event(context.Background(), eventDown)
}

func (e *Engine) handshake(ctx context.Context, addr string, params ConnectParams, state *session.State) (string, error) {
	control, err := DialControl(ctx, addr, params.AcceptInvalidCert)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	e.control = control
	e.mu.Unlock()

	deadline := time.Now().Add(e.opts.KeepaliveTimeout)
	_ = control.SetReadDeadline(deadline)

	if err := control.Send(&protocol.ControlMessage{Version: &protocol.Version{
		Version: protocol.ClientVersion,
		Release: "mumd",
	}}); err != nil {
		return "", &ConnectionError{Addr: addr, Err: err}
	}
	if err := control.Send(&protocol.ControlMessage{Authenticate: &protocol.Authenticate{
		Username: params.Username,
		Password: params.Password,
	}}); err != nil {
		return "", &ConnectionError{Addr: addr, Err: err}
	}

	e.mu.Lock()
	_ = e.phases.Event(ctx, eventAuthenticate)
	e.mu.Unlock()

	// Read until the server either rejects us or hands over crypt material,
	// then keep reading the state snapshot until ServerSync. Session events
	// stay suppressed until SetSynced flips the gate.
	var crypt *protocol.CryptSetup
	var srvSync *protocol.ServerSync
	for srvSync == nil {
		msg, err := control.Read()
		if err != nil {
			return "", &ConnectionError{Addr: addr, Err: err}
		}
		switch {
		case msg.Reject != nil:
			return "", &AuthenticationError{Type: msg.Reject.RejectType, Reason: msg.Reject.Reason}
		case msg.Version != nil:
			slog.Debug("server version", "release", msg.Version.Release)
		case msg.CryptSetup != nil:
			crypt = msg.CryptSetup
			e.mu.Lock()
			_ = e.phases.Event(ctx, eventSynchronize)
			e.mu.Unlock()
		case msg.ChannelState != nil:
			cs := msg.ChannelState
			state.ApplyChannelState(cs.ChannelID, cs.Parent, cs.Name, cs.Description)
		case msg.UserState != nil:
			us := msg.UserState
			state.ApplyUserState(us.Session, us.Name, us.ChannelID, us.SelfMute, us.SelfDeaf)
		case msg.ServerSync != nil:
			srvSync = msg.ServerSync
		case msg.Ping != nil:
			// Some servers ping during srvSync. Harmless.
		default:
			if t, ok := msg.Type(); ok {
				slog.Debug("unexpected message during handshake", "type", t.String())
			}
		}
	}
	if crypt == nil {
		return "", &ConnectionError{Addr: addr, Err: fmt.Errorf("server synced without crypt setup")}
	}

	cipher, err := mumcrypto.NewVoiceCipher(crypt.Method, crypt.Key)
	if err != nil {
		return "", &ConnectionError{Addr: addr, Err: err}
	}
	voice, err := DialVoice(addr, srvSync.Session, cipher)
	if err != nil {
		return "", err
	}

	state.SetSynced(srvSync.Session)
	_ = control.SetReadDeadline(time.Time{})

	connCtx, cancel := context.WithCancel(context.Background())
	streams := NewStreamManager(e.decoderFactory, e.opts.JitterDepth, e.opts.OutputRate)

	e.mu.Lock()
	e.voice = voice
	e.streams = streams
	e.connCtx = connCtx
	e.connCancel = cancel
	_ = e.phases.Event(ctx, eventReady)
	e.mu.Unlock()

	e.lastPong.Store(time.Now().UnixNano())
	voice.StartReceiving()
	e.startAudio(connCtx, state, voice, streams)

	e.loops.Add(3)
	go e.readLoop(control, state, voice, streams)
	go e.keepaliveLoop(connCtx, control)
	go e.reapLoop(connCtx, streams)

	e.emit(session.Event{
		Kind:    session.EventConnected,
		Session: srvSync.Session,
		User:    params.Username,
		Message: srvSync.WelcomeText,
	})
	slog.Info("connected", "host", params.Host, "session", srvSync.Session)
	return srvSync.WelcomeText, nil
}

// startAudio brings up capture and playback. A failed device takes out only
// its own direction: no microphone still lets us hear, no speaker still lets
// us talk, and decode keeps running either way so codec state stays warm.
func (e *Engine) startAudio(ctx context.Context, state *session.State, voice *VoiceClient, streams *StreamManager) {
	capture, err := e.newCapture(e.opts.InputDevice)
	if err != nil {
		slog.Error("capture device unavailable, transmit disabled",
			"err", &AudioDeviceError{Direction: "capture", Err: err})
	} else {
		e.mu.Lock()
		e.capture = capture
		e.mu.Unlock()
		e.loops.Add(1)
		go e.captureLoop(ctx, capture, state, voice)
	}

	frameSize := int(e.opts.OutputRate * protocol.FrameDuration / 1000)
	playback, err := e.newPlayback(e.opts.OutputDevice, e.opts.OutputRate, frameSize)
	if err != nil {
		slog.Error("playback device unavailable, output disabled",
			"err", &AudioDeviceError{Direction: "playback", Err: err})
	} else {
		e.mu.Lock()
		e.playback = playback
		e.mu.Unlock()
		e.loops.Add(1)
		go e.mixLoop(ctx, playback, state, streams, frameSize)
	}

	// Decode regardless of playback so jitter buffers and PLC state track
	// the network even with no output device.
	e.loops.Add(1)
	go e.decodeLoop(ctx, voice, streams)
}

// readLoop is the single writer of server-derived session state. It runs
// until the control connection dies or Disconnect closes it.
func (e *Engine) readLoop(control *ControlClient, state *session.State, voice *VoiceClient, streams *StreamManager) {
	defer e.loops.Done()
	for {
		// Bound every read so a silently dead link cannot hang us past the
		// keepalive window.
		_ = control.SetReadDeadline(time.Now().Add(e.opts.KeepaliveTimeout + e.opts.KeepaliveInterval))
		msg, err := control.Read()
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				e.teardown(session.EventKeepaliveTimeout, "no traffic within keepalive window")
			} else {
				e.teardown(session.EventDisconnected, "connection lost: "+err.Error())
			}
			return
		}

		switch {
		case msg.Ping != nil:
			e.lastPong.Store(time.Now().UnixNano())

		case msg.ChannelState != nil:
			cs := msg.ChannelState
			e.emit(state.ApplyChannelState(cs.ChannelID, cs.Parent, cs.Name, cs.Description)...)

		case msg.ChannelRemove != nil:
			events, err := state.ApplyChannelRemove(msg.ChannelRemove.ChannelID)
			if err != nil {
				slog.Warn("dropping channel remove for unknown channel", "channel", msg.ChannelRemove.ChannelID)
				continue
			}
			e.emit(events...)

		case msg.UserState != nil:
			us := msg.UserState
			e.emit(state.ApplyUserState(us.Session, us.Name, us.ChannelID, us.SelfMute, us.SelfDeaf)...)

		case msg.UserRemove != nil:
			events, err := state.ApplyUserRemove(msg.UserRemove.Session)
			if err != nil {
				slog.Warn("dropping user remove for unknown session", "session", msg.UserRemove.Session)
				continue
			}
			streams.Remove(msg.UserRemove.Session)
			e.emit(events...)

		case msg.TextMessage != nil:
			tm := msg.TextMessage
			actor := ""
			if u, ok := state.UserBySession(tm.Actor); ok {
				actor = u.Name
			}
			e.emit(session.Event{
				Kind:    session.EventTextMessage,
				Session: tm.Actor,
				User:    actor,
				Message: tm.Message,
			})

		case msg.CryptSetup != nil:
			// Server-initiated rekey of the voice channel.
			cipher, err := mumcrypto.NewVoiceCipher(msg.CryptSetup.Method, msg.CryptSetup.Key)
			if err != nil {
				slog.Warn("rejecting crypt re-setup", "err", err)
				continue
			}
			voice.Rekey(cipher)
			slog.Info("voice channel rekeyed", "method", msg.CryptSetup.Method)

		case msg.Reject != nil, msg.ServerSync != nil, msg.Authenticate != nil:
			if t, ok := msg.Type(); ok {
				slog.Warn("protocol violation: out-of-sequence message dropped", "type", t.String())
			}

		default:
			if t, ok := msg.Type(); ok {
				slog.Debug("unhandled control message", "type", t.String())
			}
		}
	}
}

// keepaliveLoop pings on a fixed cadence and declares the link dead when no
// pong has arrived within the timeout window.
func (e *Engine) keepaliveLoop(ctx context.Context, control *ControlClient) {
	defer e.loops.Done()
	ticker := time.NewTicker(e.opts.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if now.UnixNano()-e.lastPong.Load() > int64(e.opts.KeepaliveTimeout) {
				slog.Warn("keepalive timeout", "window", e.opts.KeepaliveTimeout)
				e.teardown(session.EventKeepaliveTimeout, "no pong within keepalive window")
				return
			}
			if err := control.Send(&protocol.ControlMessage{Ping: &protocol.Ping{
				Timestamp: now.UnixMilli(),
			}}); err != nil {
				e.teardown(session.EventDisconnected, "ping failed: "+err.Error())
				return
			}
		}
	}
}

// captureLoop reads microphone frames, gates them on self-mute and voice
// activity, and ships the survivors encrypted. Self-mute stops packets at
// the source; nothing leaves the machine while muted.
func (e *Engine) captureLoop(ctx context.Context, capture audio.Capturer, state *session.State, voice *VoiceClient) {
	defer e.loops.Done()
	vad := audio.NewVAD(e.opts.VADThreshold, 15)
	var outgoing *outgoingVoice
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := capture.ReadFrame()
		if err != nil {
			select {
			case <-ctx.Done():
			default:
				slog.Error("capture failed, transmit disabled",
					"err", &AudioDeviceError{Direction: "capture", Err: err})
			}
			return
		}

		if muted, _ := state.SelfMuted(); muted {
			outgoing = nil
			continue
		}
		if !vad.Process(frame) {
			if outgoing != nil {
				slog.Debug("transmission ended", "frames", outgoing.frames)
			}
			outgoing = nil
			continue
		}

		if outgoing == nil {
			enc, err := e.newEncoder()
			if err != nil {
				slog.Error("encoder unavailable, transmit disabled", "err", err)
				return
			}
			outgoing = &outgoingVoice{encoder: enc}
		}

		e.mu.Lock()
		gain := e.inputVolume
		e.mu.Unlock()
		audio.ApplyGain(frame, gain)

		data, err := outgoing.encoder.Encode(frame)
		if err != nil {
			slog.Warn("encode failed", "err", err)
			continue
		}
		if len(data) == 0 {
			continue // DTX decided this frame is silence
		}
		if err := voice.SendVoice(data); err != nil {
			slog.Debug("voice send failed", "err", err)
			continue
		}
		outgoing.frames++
	}
}

// decodeLoop feeds received packets through per-speaker jitter buffers and
// decoders. It runs even without a playback device.
func (e *Engine) decodeLoop(ctx context.Context, voice *VoiceClient, streams *StreamManager) {
	defer e.loops.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-voice.Incoming:
			if !ok {
				return
			}
			streams.Process(pkt)
		}
	}
}

// mixLoop pulls one frame per speaker, applies per-user and master gain and
// writes the saturating mix to the output device. Self-deafen silences the
// mixed frame but leaves decoding untouched so codec state stays in sync.
func (e *Engine) mixLoop(ctx context.Context, playback audio.Player, state *session.State, streams *StreamManager, frameSize int) {
	defer e.loops.Done()
	silence := make([]int16, frameSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		e.mu.Lock()
		master := e.outputVolume
		e.mu.Unlock()

		frame := streams.MixOutput(frameSize, func(sess uint32) float32 {
			muted, vol := state.Overlay(sess)
			if muted {
				return 0
			}
			return vol * master
		})

		if _, deafened := state.SelfMuted(); deafened {
			frame = silence
		}

		// The blocking device write paces this loop at one frame per 20ms.
		if err := playback.WriteFrame(frame); err != nil {
			select {
			case <-ctx.Done():
			default:
				slog.Error("playback failed, output disabled",
					"err", &AudioDeviceError{Direction: "playback", Err: err})
			}
			return
		}
	}
}

// reapLoop drops voice streams that have gone silent so decoders and ring
// buffers do not pile up across a long session.
func (e *Engine) reapLoop(ctx context.Context, streams *StreamManager) {
	defer e.loops.Done()
	ticker := time.NewTicker(e.opts.StreamTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			streams.Reap(e.opts.StreamTimeout)
		}
	}
}

// Disconnect tears down the live session. Safe to call at any time; a
// disconnect with no session is a no-op returning ErrNotConnected.
func (e *Engine) Disconnect() error {
	e.mu.Lock()
	cur := e.phases.Current()
	e.mu.Unlock()
	if cur == PhaseDisconnected || cur == PhaseDisconnecting {
		return ErrNotConnected
	}
	e.teardown(session.EventDisconnected, "disconnect requested")
	return nil
}

// teardown collapses the session: cancel loops, close connections, release
// devices and emit exactly one terminal event. Concurrent callers race on
// the phase check; the loser becomes a no-op.
func (e *Engine) teardown(kind session.EventKind, reason string) {
	e.mu.Lock()
	cur := e.phases.Current()
	if cur == PhaseDisconnected || cur == PhaseDisconnecting {
		e.mu.Unlock()
		return
	}
	_ = e.phases.Event(context.Background(), eventHangup)

	cancel := e.connCancel
	control, voice := e.control, e.voice
	capture, playback := e.capture, e.playback
	host := ""
	if e.state != nil {
		host = e.state.Host()
	}
	terminal := !e.terminalSent
	e.terminalSent = true

	e.connCancel = nil
	e.control = nil
	e.voice = nil
	e.capture = nil
	e.playback = nil
	e.streams = nil
	e.state = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if voice != nil {
		_ = voice.Close()
	}
	if control != nil {
		_ = control.Close()
	}
	if capture != nil {
		_ = capture.Close()
	}
	if playback != nil {
		_ = playback.Stop()
	}

	e.mu.Lock()
	_ = e.phases.Event(context.Background(), eventDown)
	e.mu.Unlock()

	if terminal {
		e.emit(session.Event{Kind: kind, Message: reason})
	}
	slog.Info("disconnected", "host", host, "reason", reason)
}

// Wait blocks until all session loops have exited. Test helper and shutdown
// aid; returns immediately when nothing is running.
func (e *Engine) Wait() {
	e.loops.Wait()
}

// ----- Commands -----

// connected returns the live state or ErrNotConnected.
func (e *Engine) connected() (*session.State, *ControlClient, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phases.Current() != PhaseConnected {
		return nil, nil, ErrNotConnected
	}
	return e.state, e.control, nil
}

// JoinChannel resolves a channel path suffix and asks the server to move us.
func (e *Engine) JoinChannel(identifier string) error {
	state, control, err := e.connected()
	if err != nil {
		return err
	}
	channelID, err := state.MatchChannel(identifier)
	if err != nil {
		return err
	}
	self, ok := state.SelfSession()
	if !ok {
		return ErrNotConnected
	}
	return control.Send(&protocol.ControlMessage{UserState: &protocol.UserState{
		Session:   self,
		ChannelID: &channelID,
	}})
}

// SetSelfMute toggles our own microphone mute and announces it.
func (e *Engine) SetSelfMute(mute bool) error {
	state, control, err := e.connected()
	if err != nil {
		return err
	}
	_, deafened := state.SelfMuted()
	if deafened && !mute {
		// Unmuting while deafened also undeafens, matching what users mean.
		deafened = false
	}
	return e.announceSelfMute(state, control, mute, deafened)
}

// SetSelfDeafen toggles deafen. Deafening also mutes; undeafening restores
// hearing but leaves the microphone muted until asked.
func (e *Engine) SetSelfDeafen(deafen bool) error {
	state, control, err := e.connected()
	if err != nil {
		return err
	}
	muted, _ := state.SelfMuted()
	if deafen {
		muted = true
	}
	return e.announceSelfMute(state, control, muted, deafen)
}

func (e *Engine) announceSelfMute(state *session.State, control *ControlClient, mute, deafen bool) error {
	state.SetSelfMuted(mute, deafen)
	self, ok := state.SelfSession()
	if !ok {
		return ErrNotConnected
	}
	return control.Send(&protocol.ControlMessage{UserState: &protocol.UserState{
		Session:  self,
		SelfMute: &mute,
		SelfDeaf: &deafen,
	}})
}

// MuteUser applies a local-only mute of another user. Nothing is sent to
// the server; the user keeps transmitting, we just stop mixing them in.
func (e *Engine) MuteUser(username string, mute bool) error {
	state, _, err := e.connected()
	if err != nil {
		return err
	}
	u, ok := state.UserByName(username)
	if !ok {
		return session.ErrUnknownUser
	}
	return state.SetLocalMute(u.Session, mute)
}

// SetUserVolume adjusts the local gain for one remote user.
func (e *Engine) SetUserVolume(username string, volume float32) error {
	state, _, err := e.connected()
	if err != nil {
		return err
	}
	if err := validVolume(volume); err != nil {
		return err
	}
	u, ok := state.UserByName(username)
	if !ok {
		return session.ErrUnknownUser
	}
	return state.SetLocalVolume(u.Session, volume)
}

// SetInputVolume adjusts the gain applied to captured audio before encode.
func (e *Engine) SetInputVolume(volume float32) error {
	if err := validVolume(volume); err != nil {
		return err
	}
	e.mu.Lock()
	e.inputVolume = volume
	e.mu.Unlock()
	return nil
}

// SetOutputVolume adjusts the master playback gain.
func (e *Engine) SetOutputVolume(volume float32) error {
	if err := validVolume(volume); err != nil {
		return err
	}
	e.mu.Lock()
	e.outputVolume = volume
	e.mu.Unlock()
	return nil
}

func validVolume(v float32) error {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return session.ErrInvalidVolume
	}
	return nil
}

// SendFailure records one target a text message could not reach.
type SendFailure struct {
	Target string
	Reason string
}

// SendText delivers a message to the named users and channels. Channel
// targets can expand recursively to all descendants. Resolution failures do
// not abort the rest of the send; they come back collected.
func (e *Engine) SendText(message string, users, channels []string, recursive bool) ([]SendFailure, error) {
	state, control, err := e.connected()
	if err != nil {
		return nil, err
	}

	var failures []SendFailure

	var sessions []uint32
	var resolvedUsers []string
	for _, name := range users {
		u, ok := state.UserByName(name)
		if !ok {
			failures = append(failures, SendFailure{Target: name, Reason: session.ErrUnknownUser.Error()})
			continue
		}
		sessions = append(sessions, u.Session)
		resolvedUsers = append(resolvedUsers, name)
	}
	if len(sessions) > 0 {
		if err := control.Send(&protocol.ControlMessage{TextMessage: &protocol.TextMessage{
			Sessions: sessions,
			Message:  message,
		}}); err != nil {
			for _, name := range resolvedUsers {
				failures = append(failures, SendFailure{Target: name, Reason: err.Error()})
			}
		}
	}

	// Dedupe channel targets: overlapping recursive expansions must not
	// deliver the same message twice to one channel.
	seen := make(map[uint32]bool)
	for _, ident := range channels {
		channelID, err := state.MatchChannel(ident)
		if err != nil {
			failures = append(failures, SendFailure{Target: ident, Reason: err.Error()})
			continue
		}
		targets := []uint32{channelID}
		if recursive {
			targets = append(targets, state.Descendants(channelID)...)
		}
		var fresh []uint32
		for _, id := range targets {
			if !seen[id] {
				seen[id] = true
				fresh = append(fresh, id)
			}
		}
		if len(fresh) == 0 {
			continue
		}
		if err := control.Send(&protocol.ControlMessage{TextMessage: &protocol.TextMessage{
			ChannelIDs: fresh,
			Message:    message,
		}}); err != nil {
			failures = append(failures, SendFailure{Target: ident, Reason: err.Error()})
		}
	}

	return failures, nil
}
