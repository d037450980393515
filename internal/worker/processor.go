package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/analysis-console/internal/history"
)

// processEvent records one job event. Storage failures are retryable.
func (w *Worker) processEvent(ctx context.Context, msg *message) error {
	w.logger.Debug("Recording job event",
		slog.String("job_id", msg.event.JobID),
		slog.String("symbol", msg.event.Symbol),
		slog.String("status", string(msg.event.Status)),
		slog.Bool("redelivered", msg.delivery.Redelivered),
	)

	// In-flight writes finish even when shutdown cancels ctx
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.jobTimeout)
	defer cancel()

	if err := w.store.Record(recordCtx, history.FromEvent(msg.event)); err != nil {
		return NewRetryableError(fmt.Errorf("failed to record job %s: %w", msg.event.JobID, err))
	}
	return nil
}
