package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pr-poehali-dev/dice-chess-website/internal/domain/enums"
)

var ErrPurchaseNotFound = errors.New("purchase not found")

type PurchaseRepo struct {
	pool *pgxpool.Pool
}

type PurchaseRecord struct {
	PaymentID   string
	PlayerID    int64
	Amount      int
	Tokens      int
	Status      enums.PurchaseStatus
	CreatedAt   time.Time
	CompletedAt *time.Time
}

func NewPurchaseRepo(pool *pgxpool.Pool) *PurchaseRepo {
	return &PurchaseRepo{pool: pool}
}

// InsertPending persists the intent before the gateway is contacted, so a
// completion webhook always has a local row to reconcile against.
func (r *PurchaseRepo) InsertPending(ctx context.Context, paymentID string, playerID int64, amount, tokens int) (PurchaseRecord, error) {
	if r.pool == nil {
		return PurchaseRecord{}, fmt.Errorf("postgres pool is nil")
	}
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" || playerID <= 0 || amount <= 0 || tokens <= 0 {
		return PurchaseRecord{}, fmt.Errorf("invalid purchase create payload")
	}

	record, err := scanPurchase(r.pool.QueryRow(ctx, `
INSERT INTO purchases (
	payment_id,
	player_id,
	amount,
	tokens,
	status,
	created_at
) VALUES ($1, $2, $3, $4, 'pending', NOW())
RETURNING payment_id, player_id, amount, tokens, status, created_at, completed_at
`, paymentID, playerID, amount, tokens))
	if err != nil {
		return PurchaseRecord{}, fmt.Errorf("insert pending purchase: %w", err)
	}

	return record, nil
}

func (r *PurchaseRepo) FindByPaymentID(ctx context.Context, paymentID string) (PurchaseRecord, error) {
	if r.pool == nil {
		return PurchaseRecord{}, fmt.Errorf("postgres pool is nil")
	}
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return PurchaseRecord{}, fmt.Errorf("payment id is required")
	}

	record, err := scanPurchase(r.pool.QueryRow(ctx, `
SELECT payment_id, player_id, amount, tokens, status, created_at, completed_at
FROM purchases
WHERE payment_id = $1
`, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseRecord{}, ErrPurchaseNotFound
		}
		return PurchaseRecord{}, fmt.Errorf("find purchase by payment id: %w", err)
	}

	return record, nil
}

// CompleteAndCredit transitions the intent pending -> completed and credits the
// player's balance in one transaction. The status transition is conditional on
// the currently stored status, so concurrent deliveries of the same webhook can
// never both credit: at most one UPDATE observes 'pending'. Returns false when
// no row transitioned (replayed delivery or unknown payment_id).
func (r *PurchaseRepo) CompleteAndCredit(ctx context.Context, paymentID string) (bool, error) {
	if r.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return false, fmt.Errorf("payment id is required")
	}

	credited := false
	err := WithTx(ctx, r.pool, func(txCtx context.Context, tx pgx.Tx) error {
		var (
			playerID int64
			tokens   int
		)
		err := tx.QueryRow(txCtx, `
UPDATE purchases
SET status = 'completed', completed_at = NOW()
WHERE payment_id = $1
  AND status = 'pending'
RETURNING player_id, tokens
`, paymentID).Scan(&playerID, &tokens)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("complete purchase: %w", err)
		}

		tag, err := tx.Exec(txCtx, `
UPDATE players
SET tokens = tokens + $2
WHERE id = $1
`, playerID, tokens)
		if err != nil {
			return fmt.Errorf("credit player tokens: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("credit player tokens: player %d not found", playerID)
		}

		credited = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return credited, nil
}

// DeleteStalePending prunes pending intents older than the cutoff. A pending
// row whose external payment never completed is inert; past the gateway
// redelivery horizon it can be dropped.
func (r *PurchaseRepo) DeleteStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}
	if cutoff.IsZero() {
		return 0, fmt.Errorf("cutoff is required")
	}

	tag, err := r.pool.Exec(ctx, `
DELETE FROM purchases
WHERE status = 'pending'
  AND created_at <= $1
`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale pending purchases: %w", err)
	}

	return tag.RowsAffected(), nil
}

func scanPurchase(row pgx.Row) (PurchaseRecord, error) {
	var (
		record PurchaseRecord
		status string
	)
	if err := row.Scan(
		&record.PaymentID,
		&record.PlayerID,
		&record.Amount,
		&record.Tokens,
		&status,
		&record.CreatedAt,
		&record.CompletedAt,
	); err != nil {
		return PurchaseRecord{}, err
	}
	record.Status = enums.PurchaseStatus(status)
	return record, nil
}
