package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// MemorySessionStore is the dev-mode fallback when no database is configured.
// It keeps session metadata for the life of the process only.
type MemorySessionStore struct {
	mu   sync.Mutex
	rows map[string]SessionRecord
}

// NewMemorySessionStore constructs an in-memory SessionStore implementation.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{rows: make(map[string]SessionRecord)}
}

// Close closes the store (noop for in-memory).
func (s *MemorySessionStore) Close() error { return nil }

// Touch upserts the last-seen timestamp for userID.
func (s *MemorySessionStore) Touch(ctx context.Context, userID string, lastSeen time.Time) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("missing user id")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if lastSeen.IsZero() {
		lastSeen = time.Now().UTC()
	}

	s.mu.Lock()
	s.rows[userID] = SessionRecord{UserID: userID, LastSeen: lastSeen}
	s.mu.Unlock()
	return nil
}

// Get returns the record for userID, or ErrSessionNotFound.
func (s *MemorySessionStore) Get(ctx context.Context, userID string) (SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return SessionRecord{}, err
	}

	s.mu.Lock()
	rec, ok := s.rows[userID]
	s.mu.Unlock()

	if !ok {
		return SessionRecord{}, ErrSessionNotFound
	}
	return rec, nil
}

// Delete forgets the record for userID.
func (s *MemorySessionStore) Delete(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.rows, userID)
	s.mu.Unlock()
	return nil
}
