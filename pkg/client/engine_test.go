package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sornas/mum/pkg/audio"
	"github.com/sornas/mum/pkg/protocol"
	"github.com/sornas/mum/pkg/session"
)

// eventRecorder collects emitted session events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []session.Event
}

func (r *eventRecorder) sink(ev session.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) byKind(kind session.EventKind) []session.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []session.Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// fakeCapturer produces a steady loud tone so the VAD always opens.
type fakeCapturer struct {
	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeCapturer() *fakeCapturer {
	return &fakeCapturer{closed: make(chan struct{})}
}

func (c *fakeCapturer) ReadFrame() ([]int16, error) {
	select {
	case <-c.closed:
		return nil, errors.New("capturer closed")
	case <-time.After(2 * time.Millisecond):
	}
	frame := make([]int16, protocol.FrameSize)
	for i := range frame {
		frame[i] = 3000
	}
	return frame, nil
}

func (c *fakeCapturer) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

type fakeEncoder struct{}

func (fakeEncoder) Encode(pcm []int16) ([]byte, error) {
	return []byte{1, 2, 3}, nil
}

// testEngine builds an engine with no real audio hardware: capture and
// playback are absent unless a test swaps in fakes.
func testEngine(opts Options, rec *eventRecorder) *Engine {
	e := NewEngine(opts)
	e.newCapture = func(string) (audio.Capturer, error) {
		return nil, errors.New("no capture device in tests")
	}
	e.newPlayback = func(string, float64, int) (audio.Player, error) {
		return nil, errors.New("no playback device in tests")
	}
	e.newEncoder = func() (audio.FrameEncoder, error) { return fakeEncoder{}, nil }
	e.decoderFactory = &fakeFactory{}
	if rec != nil {
		e.SetEventSink(rec.sink)
	}
	return e
}

func connectParams(s *testServer) ConnectParams {
	return ConnectParams{
		Host:              "127.0.0.1",
		Port:              s.port,
		Username:          "self",
		AcceptInvalidCert: true,
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestEngineConnectLifecycle(t *testing.T) {
	srv := newTestServer(t)
	rec := &eventRecorder{}
	e := testEngine(Options{}, rec)

	welcome, err := e.Connect(context.Background(), connectParams(srv))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if welcome != "welcome to loopback" {
		t.Fatalf("welcome = %q", welcome)
	}
	if e.Phase() != PhaseConnected {
		t.Fatalf("phase = %s", e.Phase())
	}

	state := e.Session()
	if state == nil {
		t.Fatal("Session() nil while connected")
	}
	if !state.Synced() {
		t.Fatal("state not synced after connect")
	}
	if _, ok := state.UserByName("alice"); !ok {
		t.Fatal("snapshot user alice missing")
	}
	if self, ok := state.SelfSession(); !ok || self != 1 {
		t.Fatalf("self session = (%d, %v), want 1", self, ok)
	}
	if got := rec.byKind(session.EventConnected); len(got) != 1 {
		t.Fatalf("connected events = %d, want 1", len(got))
	}
	// The snapshot itself must not replay as join events.
	if got := rec.byKind(session.EventUserConnected); len(got) != 0 {
		t.Fatalf("snapshot replayed %d user_connected events", len(got))
	}

	// A post-sync join must surface.
	carol := "carol"
	root := uint32(0)
	srv.send(&protocol.ControlMessage{UserState: &protocol.UserState{Session: 3, Name: &carol, ChannelID: &root}})
	waitFor(t, 2*time.Second, "carol join event", func() bool {
		return len(rec.byKind(session.EventUserConnected)) == 1
	})

	if err := e.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if e.Phase() != PhaseDisconnected {
		t.Fatalf("phase after disconnect = %s", e.Phase())
	}
	e.Wait()
	if got := rec.byKind(session.EventDisconnected); len(got) != 1 {
		t.Fatalf("disconnected events = %d, want exactly 1", len(got))
	}
	if err := e.Disconnect(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("second Disconnect = %v, want ErrNotConnected", err)
	}
}

func TestEngineAlreadyConnected(t *testing.T) {
	srv := newTestServer(t)
	e := testEngine(Options{}, &eventRecorder{})
	if _, err := e.Connect(context.Background(), connectParams(srv)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()

	if _, err := e.Connect(context.Background(), connectParams(srv)); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("second Connect = %v, want ErrAlreadyConnected", err)
	}
}

func TestEngineAuthenticationRejected(t *testing.T) {
	srv := newTestServer(t)
	srv.reject.Store(&protocol.Reject{RejectType: "WrongUserPW", Reason: "bad password"})
	e := testEngine(Options{}, &eventRecorder{})

	_, err := e.Connect(context.Background(), connectParams(srv))
	var authErr *AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("Connect = %v, want AuthenticationError", err)
	}
	if authErr.Type != "WrongUserPW" {
		t.Fatalf("reject type = %q", authErr.Type)
	}
	if e.Phase() != PhaseDisconnected {
		t.Fatalf("phase after reject = %s", e.Phase())
	}
	// A failed attempt leaves the engine reusable.
	srv.reject.Store(nil)
	if _, err := e.Connect(context.Background(), connectParams(srv)); err != nil {
		t.Fatalf("reconnect after reject: %v", err)
	}
	e.Disconnect()
}

func TestEngineConnectRefused(t *testing.T) {
	e := testEngine(Options{}, &eventRecorder{})
	_, err := e.Connect(context.Background(), ConnectParams{
		Host:              "127.0.0.1",
		Port:              1, // nothing listens here
		Username:          "self",
		AcceptInvalidCert: true,
	})
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("Connect = %v, want ConnectionError", err)
	}
	if e.Phase() != PhaseDisconnected {
		t.Fatalf("phase = %s", e.Phase())
	}
}

func TestEngineJoinChannel(t *testing.T) {
	srv := newTestServer(t)
	e := testEngine(Options{}, &eventRecorder{})
	if _, err := e.Connect(context.Background(), connectParams(srv)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()

	if err := e.JoinChannel("Gaming"); err != nil {
		t.Fatalf("JoinChannel: %v", err)
	}
	// The loopback server echoes the move back; the read loop applies it.
	waitFor(t, 2*time.Second, "channel move", func() bool {
		state := e.Session()
		if state == nil {
			return false
		}
		ch, ok := state.CurrentChannel()
		return ok && ch.Path == "Root/Gaming"
	})

	if err := e.JoinChannel("Lobby"); !errors.Is(err, session.ErrUnknownChannel) {
		t.Fatalf("JoinChannel(Lobby) = %v, want ErrUnknownChannel", err)
	}
}

func TestEngineSendText(t *testing.T) {
	srv := newTestServer(t)
	e := testEngine(Options{}, &eventRecorder{})
	if _, err := e.Connect(context.Background(), connectParams(srv)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()

	failures, err := e.SendText("hello", []string{"alice", "nobody"}, []string{"Root"}, true)
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if len(failures) != 1 || failures[0].Target != "nobody" {
		t.Fatalf("failures = %+v, want one for nobody", failures)
	}

	waitFor(t, 2*time.Second, "text messages at server", func() bool {
		return len(srv.textMessages()) == 2
	})
	msgs := srv.textMessages()
	var userMsg, chanMsg *protocol.TextMessage
	for _, m := range msgs {
		if len(m.Sessions) > 0 {
			userMsg = m
		}
		if len(m.ChannelIDs) > 0 {
			chanMsg = m
		}
	}
	if userMsg == nil || len(userMsg.Sessions) != 1 || userMsg.Sessions[0] != 2 {
		t.Fatalf("user message = %+v", userMsg)
	}
	// Recursive on Root covers Root and Gaming, each exactly once.
	if chanMsg == nil || len(chanMsg.ChannelIDs) != 2 {
		t.Fatalf("channel message = %+v", chanMsg)
	}
}

func TestEngineKeepaliveTimeout(t *testing.T) {
	srv := newTestServer(t)
	rec := &eventRecorder{}
	e := testEngine(Options{
		KeepaliveInterval: 20 * time.Millisecond,
		KeepaliveTimeout:  80 * time.Millisecond,
	}, rec)

	if _, err := e.Connect(context.Background(), connectParams(srv)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	srv.silent.Store(true)

	waitFor(t, 3*time.Second, "keepalive timeout", func() bool {
		return e.Phase() == PhaseDisconnected
	})
	e.Wait()

	if got := rec.byKind(session.EventKeepaliveTimeout); len(got) != 1 {
		t.Fatalf("keepalive_timeout events = %d, want exactly 1", len(got))
	}
	if got := rec.byKind(session.EventDisconnected); len(got) != 0 {
		t.Fatalf("saw %d disconnected events alongside the timeout", len(got))
	}
}

func TestEngineServerDrop(t *testing.T) {
	srv := newTestServer(t)
	rec := &eventRecorder{}
	e := testEngine(Options{}, rec)
	if _, err := e.Connect(context.Background(), connectParams(srv)); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	srv.dropClient()
	waitFor(t, 3*time.Second, "drop detection", func() bool {
		return e.Phase() == PhaseDisconnected
	})
	e.Wait()
	if got := rec.byKind(session.EventDisconnected); len(got) != 1 {
		t.Fatalf("disconnected events = %d, want exactly 1", len(got))
	}
}

func TestEngineSelfMuteStopsPackets(t *testing.T) {
	srv := newTestServer(t)
	e := testEngine(Options{}, &eventRecorder{})
	capturer := newFakeCapturer()
	e.newCapture = func(string) (audio.Capturer, error) { return capturer, nil }

	if _, err := e.Connect(context.Background(), connectParams(srv)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer e.Disconnect()

	waitFor(t, 3*time.Second, "voice packets at server", func() bool {
		return srv.voicePackets(1) > 3
	})

	if err := e.SetSelfMute(true); err != nil {
		t.Fatalf("SetSelfMute: %v", err)
	}
	// Give in-flight frames a moment to land, then the count must freeze.
	time.Sleep(50 * time.Millisecond)
	before := srv.voicePackets(1)
	time.Sleep(150 * time.Millisecond)
	if after := srv.voicePackets(1); after != before {
		t.Fatalf("packets kept flowing while muted: %d -> %d", before, after)
	}

	if err := e.SetSelfMute(false); err != nil {
		t.Fatalf("unmute: %v", err)
	}
	base := srv.voicePackets(1)
	waitFor(t, 3*time.Second, "voice resumes after unmute", func() bool {
		return srv.voicePackets(1) > base
	})
}

func TestEngineVolumeValidation(t *testing.T) {
	e := testEngine(Options{}, &eventRecorder{})
	nan := float32(0)
	nan = nan / nan
	if err := e.SetInputVolume(nan); !errors.Is(err, session.ErrInvalidVolume) {
		t.Fatalf("SetInputVolume(NaN) = %v", err)
	}
	if err := e.SetOutputVolume(-1); !errors.Is(err, session.ErrInvalidVolume) {
		t.Fatalf("SetOutputVolume(-1) = %v", err)
	}
	if err := e.SetInputVolume(1.5); err != nil {
		t.Fatalf("SetInputVolume(1.5) = %v", err)
	}
}

func TestEngineCommandsRequireConnection(t *testing.T) {
	e := testEngine(Options{}, &eventRecorder{})
	if err := e.JoinChannel("Gaming"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("JoinChannel = %v", err)
	}
	if err := e.SetSelfMute(true); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("SetSelfMute = %v", err)
	}
	if err := e.MuteUser("alice", true); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("MuteUser = %v", err)
	}
	if _, err := e.SendText("hi", []string{"alice"}, nil, false); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("SendText = %v", err)
	}
}
