package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/analysis-console/internal/events"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	reason := "context canceled"
	defer func() {
		w.logger.Debug("Worker goroutine stopping",
			slog.String("worker_name", workerName),
			slog.String("reason", reason),
		)
	}()

	for {
		select {
		case <-w.stopChan:
			reason = "stop requested"
			return
		case <-ctx.Done():
			return
		case msg, ok := <-w.jobsChan:
			if !ok {
				reason = "dispatcher finished"
				return
			}
			w.handle(ctx, workerName, msg)
		}
	}
}

// handle processes msg and ACKs or NACKs its delivery
func (w *Worker) handle(ctx context.Context, workerName string, msg *message) {
	jobID := msg.event.JobID

	if err := w.processEvent(ctx, msg); err != nil {
		requeue := w.shouldRequeue(err)
		w.logger.Error("Event processing failed",
			slog.String("worker_name", workerName),
			slog.String("job_id", jobID),
			slog.Bool("requeue", requeue),
			slog.String("error", err.Error()),
		)

		if nackErr := msg.delivery.Nack(false, requeue); nackErr != nil {
			w.logger.Error("Failed to NACK message",
				slog.String("worker_name", workerName),
				slog.String("job_id", jobID),
				slog.String("error", nackErr.Error()),
			)
		}
		return
	}

	if ackErr := msg.delivery.Ack(false); ackErr != nil {
		w.logger.Error("Failed to ACK message",
			slog.String("worker_name", workerName),
			slog.String("job_id", jobID),
			slog.String("error", ackErr.Error()),
		)
		return
	}

	w.logger.Info("Job recorded",
		slog.String("worker_name", workerName),
		slog.String("job_id", jobID),
		slog.String("symbol", msg.event.Symbol),
		slog.String("status", string(msg.event.Status)),
	)
}

// shouldRequeue determines if a message should be requeued based on the error type
func (w *Worker) shouldRequeue(err error) bool {
	if errors.Is(err, events.ErrMalformedEvent) {
		return false
	}

	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}
