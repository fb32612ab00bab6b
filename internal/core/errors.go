// Package core defines the contracts between the session coordinator and
// its collaborators: the media engine, the signaling channel and the
// presentation layer.
package core

import (
	"errors"
	"fmt"
)

var (
	// ErrStaleEvent marks a notification superseded by local state. It is
	// dropped and logged, never surfaced to presentation.
	ErrStaleEvent = errors.New("stale event")

	ErrRoomNotFound = errors.New("room not found")
	ErrNotInRoom    = errors.New("not in a room")
	ErrNotHost      = errors.New("host only operation")
)

// TransportError wraps a socket or network failure. The coordinator never
// retries these; retrying is the caller's call.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// BackendError is an ack with a non-zero result code. Authoritative, not
// retryable.
type BackendError struct {
	Request string
	Code    int
	Reason  string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend rejected %s: code=%d %s", e.Request, e.Code, e.Reason)
}

// PreconditionError reports a local-state check that failed before any
// request went out, e.g. inviting onto an occupied seat.
type PreconditionError struct {
	Op     string
	Reason error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: precondition failed: %v", e.Op, e.Reason)
}

func (e *PreconditionError) Unwrap() error { return e.Reason }

// EngineError is a media-engine failure. It rolls the session back to the
// state before the failing transition; the room stays recoverable by
// leaving and rejoining.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine: %s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }
