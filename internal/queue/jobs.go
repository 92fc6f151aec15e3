package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/rwavault/internal/model"
)

const (
	// ReconcileTask is scheduled when a mint succeeded but the ledger write
	// failed, so the record can be written once the ledger recovers.
	ReconcileTask = "ledger:reconcile"

	reconcileMaxRetry = 10
)

// ReconcilePayload carries the full record of an orphaned mint.
type ReconcilePayload struct {
	Record model.AssetRecord `json:"record"`
}

// NewReconcileTask builds the task for rec. The task id is derived from the
// token id so a mint is enqueued at most once while the task is retained.
func NewReconcileTask(rec model.AssetRecord) (*asynq.Task, error) {
	data, err := json.Marshal(ReconcilePayload{Record: rec})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(ReconcileTask, data,
		asynq.MaxRetry(reconcileMaxRetry),
		asynq.TaskID(TaskID(rec.TokenID)),
	), nil
}

// TaskID returns the asynq task id used for a token.
func TaskID(tokenID uint64) string {
	return "reconcile:" + strconv.FormatUint(tokenID, 10)
}

// DecodeReconcile parses a reconcile task payload.
func DecodeReconcile(task *asynq.Task) (ReconcilePayload, error) {
	var payload ReconcilePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	if payload.Record.TokenID == 0 && payload.Record.ContentHash == "" {
		return payload, errors.New("decode payload: empty record")
	}
	return payload, nil
}

// Client enqueues reconcile tasks. It satisfies tokenize.Reconciler.
type Client struct {
	client *asynq.Client
}

// NewClient wraps an asynq client.
func NewClient(client *asynq.Client) *Client {
	return &Client{client: client}
}

// EnqueueReconcile schedules a ledger write for an orphaned mint. A task
// already queued for the same token is not an error.
func (c *Client) EnqueueReconcile(ctx context.Context, rec model.AssetRecord) error {
	task, err := NewReconcileTask(rec)
	if err != nil {
		return err
	}
	if _, err := c.client.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("enqueue reconcile task: %w", err)
	}
	return nil
}

// Close releases the redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}
