package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// TaskSheetPushQuantities writes committed ledger quantities back into
	// the spreadsheet. Retried with backoff on file-write failures.
	TaskSheetPushQuantities = "sheet:push_quantities"
)

// SheetPushPayload carries absolute quantities keyed by item code. Absolute
// values make redelivery harmless: re-applying the same map is a no-op on
// file content.
type SheetPushPayload struct {
	Quantities map[string]int `json:"quantities"`
}

// QuantityPusher applies the payload to the spreadsheet.
type QuantityPusher interface {
	PushQuantities(ctx context.Context, quantities map[string]int) error
}

// PushObserver counts push outcomes. Optional.
type PushObserver interface {
	ObserveSheetPush(outcome string)
}

// NewSheetPushTask constructs an Asynq task for one quantity push.
func NewSheetPushTask(payload SheetPushPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSheetPushQuantities, body, asynq.Queue(QueueDefault), asynq.MaxRetry(10)), nil
}

// NewSheetPushHandler builds the worker-side handler executing pushes.
func NewSheetPushHandler(pusher QuantityPusher, observer PushObserver, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SheetPushPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if len(payload.Quantities) == 0 {
			return nil
		}
		if err := pusher.PushQuantities(ctx, payload.Quantities); err != nil {
			if observer != nil {
				observer.ObserveSheetPush("error")
			}
			logger.Warn("sheet push failed, will retry",
				slog.Int("items", len(payload.Quantities)),
				slog.Any("error", err))
			return err
		}
		if observer != nil {
			observer.ObserveSheetPush("ok")
		}
		return nil
	}
}

// SheetPushEnqueuer hands post-commit quantity maps to the queue. It
// satisfies the ledger service's QuantityPusher port, decoupling the
// spreadsheet write from the request path.
type SheetPushEnqueuer struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewSheetPushEnqueuer constructs the enqueuer.
func NewSheetPushEnqueuer(client *asynq.Client, logger *slog.Logger) *SheetPushEnqueuer {
	return &SheetPushEnqueuer{client: client, logger: logger}
}

// PushQuantities enqueues one push task.
func (e *SheetPushEnqueuer) PushQuantities(ctx context.Context, quantities map[string]int) error {
	task, err := NewSheetPushTask(SheetPushPayload{Quantities: quantities})
	if err != nil {
		return err
	}
	info, err := e.client.EnqueueContext(ctx, task)
	if err != nil {
		return err
	}
	e.logger.Debug("sheet push enqueued",
		slog.String("task_id", info.ID),
		slog.Int("items", len(quantities)))
	return nil
}
