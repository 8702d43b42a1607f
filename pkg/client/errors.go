package client

import (
	"errors"
	"fmt"
)

// ConnectionError reports a failed connect attempt (DNS, TCP or TLS).
// Fatal to the attempt; the engine does not retry on its own.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("client: connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AuthenticationError reports that the server rejected our credentials.
type AuthenticationError struct {
	Type   string
	Reason string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("client: authentication rejected (%s): %s", e.Type, e.Reason)
}

// AudioDeviceError reports an unavailable capture or playback device. Only
// the named direction is affected; the session keeps running without it.
type AudioDeviceError struct {
	Direction string // "capture" or "playback"
	Err       error
}

func (e *AudioDeviceError) Error() string {
	return fmt.Sprintf("client: %s device: %v", e.Direction, e.Err)
}

func (e *AudioDeviceError) Unwrap() error { return e.Err }

var (
	// ErrAlreadyConnected is returned when connect is issued while a
	// session is live. Connects are rejected, not queued.
	ErrAlreadyConnected = errors.New("client: already connected to a server")

	// ErrNotConnected is returned for commands that require a live session.
	ErrNotConnected = errors.New("client: not connected to a server")

	// ErrKeepaliveTimeout reports that no pong arrived within the window.
	ErrKeepaliveTimeout = errors.New("client: keepalive timeout")
)
