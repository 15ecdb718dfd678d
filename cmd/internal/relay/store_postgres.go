package relay

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSessionStore is a SessionStore backed by PostgreSQL.
//
// Ownership model:
//   - The store does NOT own the pgx pool. The caller must close the pool.
//   - Close() is therefore a no-op.
type PostgresSessionStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresSessionStore behavior.
type PostgresOption func(*PostgresSessionStore) error

// WithSchema sets the DB schema used by this store (default: "beacon").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresSessionStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("relay: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("relay: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresSessionStore constructs a Postgres-backed SessionStore.
func NewPostgresSessionStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresSessionStore, error) {
	st := &PostgresSessionStore{
		pool:   pool,
		schema: "beacon",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("relay: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresSessionStore) Close() error { return nil }

// Touch upserts the last-seen timestamp for userID.
func (s *PostgresSessionStore) Touch(ctx context.Context, userID string, lastSeen time.Time) error {
	if s == nil || s.pool == nil {
		return errors.New("relay: nil store")
	}
	if strings.TrimSpace(userID) == "" {
		return errors.New("missing user id")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if lastSeen.IsZero() {
		lastSeen = time.Now().UTC()
	}

	sessions := pgIdent(s.schema, "sessions")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+sessions+` (user_id, last_seen, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE
		    SET last_seen = EXCLUDED.last_seen,
		        updated_at = now()`,
		userID, lastSeen,
	)
	return err
}

// Get returns the record for userID, or ErrSessionNotFound.
func (s *PostgresSessionStore) Get(ctx context.Context, userID string) (SessionRecord, error) {
	if s == nil || s.pool == nil {
		return SessionRecord{}, errors.New("relay: nil store")
	}
	if err := ctx.Err(); err != nil {
		return SessionRecord{}, err
	}

	sessions := pgIdent(s.schema, "sessions")

	var rec SessionRecord
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, last_seen FROM `+sessions+` WHERE user_id = $1`,
		userID,
	).Scan(&rec.UserID, &rec.LastSeen)
	if errors.Is(err, pgx.ErrNoRows) {
		return SessionRecord{}, ErrSessionNotFound
	}
	if err != nil {
		return SessionRecord{}, err
	}
	return rec, nil
}

// Delete forgets the record for userID.
func (s *PostgresSessionStore) Delete(ctx context.Context, userID string) error {
	if s == nil || s.pool == nil {
		return errors.New("relay: nil store")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sessions := pgIdent(s.schema, "sessions")

	_, err := s.pool.Exec(ctx, `DELETE FROM `+sessions+` WHERE user_id = $1`, userID)
	return err
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
