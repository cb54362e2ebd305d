// Package jobs runs the background maintenance tasks of the auth service on
// asynq.
package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the only queue the worker consumes.
	QueueDefault = "default"

	// TaskPurgeRefreshTokens deletes refresh token rows past their expiry.
	TaskPurgeRefreshTokens = "refresh_tokens:purge"
)

// PurgePayload carries an optional grace period; rows are purged once they
// have been expired for longer than Grace.
type PurgePayload struct {
	Grace time.Duration `json:"grace"`
}

// NewPurgeTask builds a purge task.
func NewPurgeTask(grace time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(PurgePayload{Grace: grace})
	if err != nil {
		return nil, fmt.Errorf("marshal purge payload: %w", err)
	}
	return asynq.NewTask(TaskPurgeRefreshTokens, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}
