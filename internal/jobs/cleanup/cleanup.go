package cleanup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type sessionPruner interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type intentPruner interface {
	DeleteStalePending(ctx context.Context, cutoff time.Time) (int64, error)
}

// Job prunes expired session rows and pending purchase intents that outlived
// the gateway redelivery horizon.
type Job struct {
	sessions        sessionPruner
	intents         intentPruner
	intentRetention time.Duration
	now             func() time.Time
	logger          *zap.Logger
}

func New(sessions sessionPruner, intents intentPruner, intentRetention time.Duration, logger *zap.Logger) *Job {
	if intentRetention <= 0 {
		intentRetention = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		sessions:        sessions,
		intents:         intents,
		intentRetention: intentRetention,
		now:             time.Now,
		logger:          logger,
	}
}

func (j *Job) Run(ctx context.Context) error {
	now := j.now().UTC()

	if j.sessions != nil {
		rows, err := j.sessions.DeleteExpired(ctx, now)
		if err != nil {
			return fmt.Errorf("cleanup expired sessions: %w", err)
		}
		if rows > 0 {
			j.logger.Info("cleanup expired sessions completed", zap.Int64("deleted", rows))
		}
	}

	if j.intents != nil {
		rows, err := j.intents.DeleteStalePending(ctx, now.Add(-j.intentRetention))
		if err != nil {
			return fmt.Errorf("cleanup stale pending intents: %w", err)
		}
		if rows > 0 {
			j.logger.Info("cleanup stale pending intents completed", zap.Int64("deleted", rows))
		}
	}

	return nil
}

// Start runs the job on the interval until the context is cancelled.
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("cleanup run failed", zap.Error(err))
			}
		}
	}
}
