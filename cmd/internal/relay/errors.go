package relay

import "errors"

// Public, stable errors for callers.
var (
	// ErrAppOffline is returned when a command arrives for a user with no
	// attached transport. Callers surface this immediately as "app offline";
	// it is never retried by the relay.
	ErrAppOffline = errors.New("app offline")

	// ErrTokenInFlight is returned when an ask reuses a correlation token that
	// is still pending. Overwriting would orphan the earlier caller.
	ErrTokenInFlight = errors.New("correlation token already in flight")

	// ErrForwardFailed is returned when the transport send failed. The actor
	// survives; only this request is affected.
	ErrForwardFailed = errors.New("failed to forward command")
)
