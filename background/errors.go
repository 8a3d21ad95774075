package background

import (
	"errors"
	"fmt"
)

var (
	// ErrContextInvalidated is returned by Send once the broker is closed,
	// the way a content script's messaging fails after its extension
	// context goes away.
	ErrContextInvalidated = errors.New("background: context invalidated")
	// ErrServiceNotFound is returned when a service has no route and no
	// local handler.
	ErrServiceNotFound = errors.New("background: service not routable")
	// ErrCircuitOpen is returned while a service's breaker rejects calls.
	ErrCircuitOpen = errors.New("background: circuit open")
	// ErrUnsafeEndpoint is returned for endpoints that are not http(s) or
	// resolve to a private address.
	ErrUnsafeEndpoint = errors.New("background: unsafe endpoint")
	// ErrUnknownStrategy is returned for a route strategy with no transport.
	ErrUnknownStrategy = errors.New("background: unknown strategy")
)

// ErrRemote is a non-2xx reply from a remote service.
type ErrRemote struct {
	Service string
	Status  int
	// Message is the {error} field of the reply body, or the raw body.
	Message string
}

func (e *ErrRemote) Error() string {
	return fmt.Sprintf("background: %s: status %d: %s", e.Service, e.Status, e.Message)
}

// ErrPanic wraps a panic recovered from a handler.
type ErrPanic struct {
	Value any
}

func (e *ErrPanic) Error() string {
	return fmt.Sprintf("background: handler panicked: %v", e.Value)
}
