package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// QueueDefault is the queue used for background work.
const QueueDefault = "default"

// TaskSessionSweep prunes expired rows from the session audit trail.
const TaskSessionSweep = "session:sweep"

// SessionSweepPayload configures one sweep run. Grace keeps expired rows
// around a while after their token expiry, for investigation.
type SessionSweepPayload struct {
	Grace time.Duration `json:"grace"`
}

// NewSessionSweepTask builds an asynq task for the session audit sweep.
func NewSessionSweepTask(grace time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(SessionSweepPayload{Grace: grace})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionSweep, payload), nil
}
