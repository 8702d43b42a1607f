package session

import "errors"

var (
	// ErrUnknownUser is returned when a command names a session or username
	// the server never announced (or already removed).
	ErrUnknownUser = errors.New("session: unknown user")

	// ErrUnknownChannel is returned when a channel reference does not
	// resolve. Dangling parent/channel references inside the state itself
	// are tolerated; this error is for caller-supplied identifiers.
	ErrUnknownChannel = errors.New("session: unknown channel")

	// ErrAmbiguousChannel is returned when a channel identifier matches
	// more than one channel path.
	ErrAmbiguousChannel = errors.New("session: ambiguous channel identifier")

	// ErrInvalidVolume is returned for non-finite or negative volumes.
	ErrInvalidVolume = errors.New("session: invalid volume")
)
