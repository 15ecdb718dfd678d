package relay

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned by Get when no session row exists.
var ErrSessionNotFound = errors.New("session not found")

// SessionRecord is the durable "must survive" slice of actor state: the
// subject user id and its last activity time. Per-request timers are
// deliberately in-memory only; this asymmetry is part of the design — a
// timeout lost to a suspension is cleaned up by the next activity or, worst
// case, actor eviction.
type SessionRecord struct {
	UserID   string
	LastSeen time.Time
}

// SessionStore persists session metadata used to rearm the idle-expiry alarm
// after a process suspension or restart.
type SessionStore interface {
	// Touch upserts the last-seen timestamp for userID.
	Touch(ctx context.Context, userID string, lastSeen time.Time) error
	// Get returns the record for userID, or ErrSessionNotFound.
	Get(ctx context.Context, userID string) (SessionRecord, error)
	// Delete forgets the record for userID (disconnect, idle eviction).
	Delete(ctx context.Context, userID string) error
	Close() error
}
