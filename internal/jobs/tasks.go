// Package jobs owns the background queue: task definitions, the scheduler
// that enqueues them on a cron, and the worker that processes them.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// TaskTypePendingReminder nudges users whose Twitter verification has
	// been pending for too long.
	TaskTypePendingReminder = "twitter:pending_reminder"
)

const (
	QueueDefault = "default"
	QueueLow     = "low"
)

// PendingReminderPayload bounds which pending verifications get a reminder.
type PendingReminderPayload struct {
	PendingFor time.Duration `json:"pending_for"`
}

// NewPendingReminderTask builds the reminder task for verifications pending
// longer than pendingFor.
func NewPendingReminderTask(pendingFor time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(PendingReminderPayload{PendingFor: pendingFor})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypePendingReminder, payload, asynq.Queue(QueueLow)), nil
}
