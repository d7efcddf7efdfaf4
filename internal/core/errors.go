package core

import "errors"

// Taxonomy of request-level failures. These are returned synchronously to
// the requesting operation and never crash the process; fan-out failures
// are logged per target instead.
var (
	ErrInvalidDescription   = errors.New("invalid session description")
	ErrCapacityExceeded     = errors.New("maximum number of broadcasters reached")
	ErrStreamNotFound       = errors.New("stream not found")
	ErrDuplicateParticipant = errors.New("participant already broadcasting")
	ErrTransportFailure     = errors.New("transport failure")
)
