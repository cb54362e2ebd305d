package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/auth-service/internal/database/dbtest"
	"github.com/iliyamo/auth-service/internal/logging"
	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/repository"
)

func TestPurgeDeletesOnlyExpiredRows(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	userID, err := users.Create(ctx, model.User{
		FirstName:    "Purge",
		LastName:     "Target",
		Email:        "purge@example.com",
		PasswordHash: "x",
		Role:         model.RoleCustomer,
	})
	require.NoError(t, err)

	_, err = tokens.Create(ctx, userID, now.Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = tokens.Create(ctx, userID, now.Add(-time.Minute))
	require.NoError(t, err)
	live, err := tokens.Create(ctx, userID, now.Add(time.Hour))
	require.NoError(t, err)

	job := NewPurgeJob(tokens, logging.Discard(), func() time.Time { return now })

	task, err := NewPurgeTask(time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(ctx, task))
	n, err := tokens.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "only the row expired for more than the grace period is purged")

	task, err = NewPurgeTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(ctx, task))
	n, err = tokens.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = tokens.FindByIDWithUser(ctx, live.ID)
	assert.NoError(t, err)
}

type failingStore struct{}

func (failingStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, errors.New("database is locked")
}

func TestPurgeErrors(t *testing.T) {
	job := NewPurgeJob(failingStore{}, logging.Discard(), nil)

	task, err := NewPurgeTask(0)
	require.NoError(t, err)
	assert.Error(t, job.Handle(context.Background(), task))

	bad := asynq.NewTask(TaskPurgeRefreshTokens, []byte("{"))
	err = job.Handle(context.Background(), bad)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNewWorkerRejectsBadCron(t *testing.T) {
	task, err := NewPurgeTask(0)
	require.NoError(t, err)

	_, err = NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Logger:    logging.Discard(),
		Cron:      []CronRegistration{{Spec: "not a cron spec", Task: task}},
	})
	assert.Error(t, err)
}
