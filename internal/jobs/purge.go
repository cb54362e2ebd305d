package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// ExpiredTokenStore is the part of the refresh token store the purge needs.
type ExpiredTokenStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PurgeJob reclaims expired refresh token rows.  Expired rows are already
// rejected on use, so the job only keeps the table small.
type PurgeJob struct {
	store  ExpiredTokenStore
	logger *slog.Logger
	now    func() time.Time
}

func NewPurgeJob(store ExpiredTokenStore, logger *slog.Logger, now func() time.Time) *PurgeJob {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &PurgeJob{store: store, logger: logger, now: now}
}

// Handle is the asynq handler for TaskPurgeRefreshTokens.
func (j *PurgeJob) Handle(ctx context.Context, t *asynq.Task) error {
	var p PurgePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("decode purge payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	if p.Grace < 0 {
		p.Grace = 0
	}
	n, err := j.Purge(ctx, p.Grace)
	if err != nil {
		return err
	}
	j.logger.Info("purged expired refresh tokens", slog.Int64("deleted", n))
	return nil
}

// Purge deletes rows that expired more than grace ago.
func (j *PurgeJob) Purge(ctx context.Context, grace time.Duration) (int64, error) {
	n, err := j.store.DeleteExpired(ctx, j.now().Add(-grace))
	if err != nil {
		return 0, fmt.Errorf("purge refresh tokens: %w", err)
	}
	return n, nil
}
