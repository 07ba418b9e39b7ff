package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// ExpiredSessionPruner deletes audit rows whose tokens expired before the
// cutoff. Implemented by session.PGAudit.
type ExpiredSessionPruner interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// SessionSweepJob removes stale session audit rows.
type SessionSweepJob struct {
	pruner ExpiredSessionPruner
	logger *slog.Logger
	now    func() time.Time
}

// NewSessionSweepJob constructs the sweep job. A nil clock uses time.Now.
func NewSessionSweepJob(pruner ExpiredSessionPruner, logger *slog.Logger, clock func() time.Time) *SessionSweepJob {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionSweepJob{pruner: pruner, logger: logger, now: clock}
}

// Handle processes a session sweep task.
func (j *SessionSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload SessionSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	if payload.Grace < 0 {
		payload.Grace = 0
	}
	cutoff := j.now().Add(-payload.Grace)
	deleted, err := j.pruner.DeleteExpired(ctx, cutoff)
	if err != nil {
		return err
	}
	j.logger.Info("session audit sweep",
		slog.Time("cutoff", cutoff),
		slog.Int64("deleted", deleted))
	return nil
}
