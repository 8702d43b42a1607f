package client

import (
	"github.com/looplab/fsm"
)

// Connection phases. The daemon holds at most one live session; every
// transition below is driven either by the handshake making progress or by
// a fatal error / explicit disconnect collapsing to "disconnecting".
const (
	PhaseDisconnected   = "disconnected"
	PhaseConnecting     = "connecting"
	PhaseAuthenticating = "authenticating"
	PhaseSynchronizing  = "synchronizing"
	PhaseConnected      = "connected"
	PhaseDisconnecting  = "disconnecting"
)

// Phase transition events.
const (
	eventDial         = "dial"
	eventAuthenticate = "authenticate"
	eventSynchronize  = "synchronize"
	eventReady        = "ready"
	eventHangup       = "hangup"
	eventDown         = "down"
)

// newPhaseFSM builds the connection lifecycle state machine. "hangup" is
// reachable from every live phase so a fatal error can always start the
// teardown, and "down" always completes it.
func newPhaseFSM() *fsm.FSM {
	return fsm.NewFSM(
		PhaseDisconnected,
		fsm.Events{
			{Name: eventDial, Src: []string{PhaseDisconnected}, Dst: PhaseConnecting},
			{Name: eventAuthenticate, Src: []string{PhaseConnecting}, Dst: PhaseAuthenticating},
			{Name: eventSynchronize, Src: []string{PhaseAuthenticating}, Dst: PhaseSynchronizing},
			{Name: eventReady, Src: []string{PhaseSynchronizing}, Dst: PhaseConnected},
			{Name: eventHangup, Src: []string{PhaseConnecting, PhaseAuthenticating, PhaseSynchronizing, PhaseConnected}, Dst: PhaseDisconnecting},
			{Name: eventDown, Src: []string{PhaseConnecting, PhaseAuthenticating, PhaseSynchronizing, PhaseDisconnecting}, Dst: PhaseDisconnected},
		},
		nil,
	)
}
