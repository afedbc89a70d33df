package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueWebhooks carries provider webhook deliveries; processed ahead of
	// housekeeping work.
	QueueWebhooks = "webhooks"

	// TaskWebhookProcess parses a verified provider webhook and applies its
	// status update.
	TaskWebhookProcess = "webhook:process"
	// TaskPayoutReconcile re-queries a pending payout and refreshes the
	// last-known status.
	TaskPayoutReconcile = "payout:reconcile"
)

// WebhookPayload is a verified webhook delivery queued for processing. Body is
// the raw request bytes; verification already happened at intake.
type WebhookPayload struct {
	Provider   string    `json:"provider"`
	Body       []byte    `json:"body"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// PayoutReconcilePayload names one payout transaction to re-check.
type PayoutReconcilePayload struct {
	Provider      string `json:"provider"`
	TransactionID string `json:"transactionId"`
}

// NewWebhookTask constructs a webhook processing task.
func NewWebhookTask(payload WebhookPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWebhookProcess, data, asynq.Queue(QueueWebhooks), asynq.MaxRetry(5)), nil
}

// NewPayoutReconcileTask constructs a payout reconciliation task.
func NewPayoutReconcileTask(payload PayoutReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPayoutReconcile, data, asynq.Queue(QueueDefault)), nil
}
