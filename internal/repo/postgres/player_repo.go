package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrPlayerNotFound = errors.New("player not found")
	ErrEmailTaken     = errors.New("email already registered")
	ErrUsernameTaken  = errors.New("username already taken")
)

const uniqueViolation = "23505"

type PlayerRepo struct {
	pool *pgxpool.Pool
}

type PlayerRecord struct {
	ID            int64
	Email         string
	Username      string
	PasswordHash  string
	Tokens        int
	Rating        int
	TotalGames    int
	Wins          int
	Losses        int
	Draws         int
	BestWinStreak int
	CurrentStreak int
	TokensWon     int
	TokensLost    int
	CreatedAt     time.Time
	LastActive    time.Time
}

func NewPlayerRepo(pool *pgxpool.Pool) *PlayerRepo {
	return &PlayerRepo{pool: pool}
}

// Create inserts a new player with the starting balance and rating. Email and
// username uniqueness is enforced by constraints, not a prior read.
func (r *PlayerRepo) Create(ctx context.Context, email, username, passwordHash string, startTokens, startRating int) (PlayerRecord, error) {
	if r.pool == nil {
		return PlayerRecord{}, fmt.Errorf("postgres pool is nil")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)
	if email == "" || username == "" || passwordHash == "" {
		return PlayerRecord{}, fmt.Errorf("invalid player create payload")
	}

	record, err := scanPlayer(r.pool.QueryRow(ctx, `
INSERT INTO players (
	email,
	username,
	password_hash,
	tokens,
	rating,
	created_at,
	last_active
) VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
RETURNING `+playerColumns+`
`, email, username, passwordHash, startTokens, startRating))
	if err != nil {
		if constraint := uniqueConstraintName(err); constraint != "" {
			if strings.Contains(constraint, "email") {
				return PlayerRecord{}, ErrEmailTaken
			}
			return PlayerRecord{}, ErrUsernameTaken
		}
		return PlayerRecord{}, fmt.Errorf("create player: %w", err)
	}

	return record, nil
}

func (r *PlayerRepo) FindByID(ctx context.Context, playerID int64) (PlayerRecord, error) {
	if r.pool == nil {
		return PlayerRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if playerID <= 0 {
		return PlayerRecord{}, fmt.Errorf("invalid player id")
	}

	record, err := scanPlayer(r.pool.QueryRow(ctx, `
SELECT `+playerColumns+`
FROM players
WHERE id = $1
`, playerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PlayerRecord{}, ErrPlayerNotFound
		}
		return PlayerRecord{}, fmt.Errorf("find player by id: %w", err)
	}

	return record, nil
}

func (r *PlayerRepo) FindByEmail(ctx context.Context, email string) (PlayerRecord, error) {
	if r.pool == nil {
		return PlayerRecord{}, fmt.Errorf("postgres pool is nil")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return PlayerRecord{}, fmt.Errorf("email is required")
	}

	record, err := scanPlayer(r.pool.QueryRow(ctx, `
SELECT `+playerColumns+`
FROM players
WHERE email = $1
`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PlayerRecord{}, ErrPlayerNotFound
		}
		return PlayerRecord{}, fmt.Errorf("find player by email: %w", err)
	}

	return record, nil
}

// UpdateUsername relies on the username unique constraint for conflict
// detection so two concurrent updates cannot both slip past a prior read.
func (r *PlayerRepo) UpdateUsername(ctx context.Context, playerID int64, username string) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	username = strings.TrimSpace(username)
	if playerID <= 0 || username == "" {
		return fmt.Errorf("invalid username update payload")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE players
SET username = $2, last_active = NOW()
WHERE id = $1
`, playerID, username)
	if err != nil {
		if uniqueConstraintName(err) != "" {
			return ErrUsernameTaken
		}
		return fmt.Errorf("update player username: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlayerNotFound
	}

	return nil
}

func (r *PlayerRepo) TouchLastActive(ctx context.Context, playerID int64) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if playerID <= 0 {
		return fmt.Errorf("invalid player id")
	}

	if _, err := r.pool.Exec(ctx, `
UPDATE players
SET last_active = NOW()
WHERE id = $1
`, playerID); err != nil {
		return fmt.Errorf("touch player last_active: %w", err)
	}

	return nil
}

// Rank is the count of players with a strictly greater rating, plus one.
// Equal ratings share a rank.
func (r *PlayerRepo) Rank(ctx context.Context, rating int) (int, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	var above int
	if err := r.pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM players
WHERE rating > $1
`, rating).Scan(&above); err != nil {
		return 0, fmt.Errorf("count players above rating: %w", err)
	}

	return above + 1, nil
}

const playerColumns = `id, email, username, password_hash, tokens, rating,
	total_games, wins, losses, draws, best_win_streak, current_streak,
	tokens_won, tokens_lost, created_at, last_active`

func scanPlayer(row pgx.Row) (PlayerRecord, error) {
	var record PlayerRecord
	if err := row.Scan(
		&record.ID,
		&record.Email,
		&record.Username,
		&record.PasswordHash,
		&record.Tokens,
		&record.Rating,
		&record.TotalGames,
		&record.Wins,
		&record.Losses,
		&record.Draws,
		&record.BestWinStreak,
		&record.CurrentStreak,
		&record.TokensWon,
		&record.TokensLost,
		&record.CreatedAt,
		&record.LastActive,
	); err != nil {
		return PlayerRecord{}, err
	}
	return record, nil
}

func uniqueConstraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr.ConstraintName
	}
	return ""
}
