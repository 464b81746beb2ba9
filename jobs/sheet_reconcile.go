package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// TaskSheetReconcile triggers a periodic spreadsheet import so quiet
	// deployments still converge with manual edits.
	TaskSheetReconcile = "sheet:reconcile"
)

// SheetReconcilePayload carries scheduling metadata.
type SheetReconcilePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// Reconciler re-imports the spreadsheet when it changed.
type Reconciler interface {
	Ensure(ctx context.Context) error
}

// NewSheetReconcileTask constructs an Asynq task for a reconcile run.
func NewSheetReconcileTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SheetReconcilePayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSheetReconcile, body, asynq.Queue(QueueDefault)), nil
}

// NewSheetReconcileHandler builds the worker-side reconcile handler.
func NewSheetReconcileHandler(reconciler Reconciler, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SheetReconcilePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if err := reconciler.Ensure(ctx); err != nil {
			logger.Warn("scheduled reconcile failed", slog.Any("error", err))
			return err
		}
		return nil
	}
}
