package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepo struct {
	pool *pgxpool.Pool
}

type SessionRecord struct {
	Token     string
	PlayerID  int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

func (r *SessionRepo) Create(ctx context.Context, token string, playerID int64, expiresAt time.Time) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(token) == "" || playerID <= 0 || expiresAt.IsZero() {
		return fmt.Errorf("invalid session create payload")
	}

	if _, err := r.pool.Exec(ctx, `
INSERT INTO sessions (token, player_id, created_at, expires_at)
VALUES ($1, $2, NOW(), $3)
`, token, playerID, expiresAt); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	return nil
}

// FindActiveByToken resolves a token to its session only while the session is
// unexpired. Expiry is enforced by the query predicate, never by the caller.
func (r *SessionRepo) FindActiveByToken(ctx context.Context, token string) (SessionRecord, error) {
	if r.pool == nil {
		return SessionRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(token) == "" {
		return SessionRecord{}, ErrSessionNotFound
	}

	var record SessionRecord
	err := r.pool.QueryRow(ctx, `
SELECT token, player_id, created_at, expires_at
FROM sessions
WHERE token = $1
  AND expires_at > NOW()
`, token).Scan(&record.Token, &record.PlayerID, &record.CreatedAt, &record.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SessionRecord{}, ErrSessionNotFound
		}
		return SessionRecord{}, fmt.Errorf("find session by token: %w", err)
	}

	return record, nil
}

func (r *SessionRepo) Delete(ctx context.Context, token string) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(token) == "" {
		return nil
	}

	if _, err := r.pool.Exec(ctx, `
DELETE FROM sessions
WHERE token = $1
`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	return nil
}

func (r *SessionRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}
	if cutoff.IsZero() {
		cutoff = time.Now().UTC()
	}

	tag, err := r.pool.Exec(ctx, `
DELETE FROM sessions
WHERE expires_at <= $1
`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}

	return tag.RowsAffected(), nil
}
