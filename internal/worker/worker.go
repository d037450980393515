package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/analysis-console/internal/analysis/domain"
	"github.com/cuongbtq/analysis-console/internal/history"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Store persists finished jobs
type Store interface {
	Record(ctx context.Context, rec history.Record) error
}

// Broker delivers job events from the history queue
type Broker interface {
	Qos(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Store         Store
	Broker        Broker
	QueueName     string
	Concurrency   int
	PrefetchCount int
	JobTimeout    time.Duration
}

// message is one decoded delivery handed to the pool
type message struct {
	event    domain.JobEvent
	delivery amqp.Delivery
}

// Worker consumes job events and records them in the history store
type Worker struct {
	logger            *slog.Logger
	store             Store
	broker            Broker
	rabbitMQQueueName string
	workerID          string
	concurrency       int
	prefetchCount     int
	jobTimeout        time.Duration
	jobsChan          chan *message
	wg                sync.WaitGroup
	stopChan          chan struct{}
	stopOnce          sync.Once
}

// ErrDeliveriesClosed is returned by Start when the broker closes the
// delivery channel
var ErrDeliveriesClosed = errors.New("rabbitmq delivery channel closed")

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = concurrency
	}
	timeout := cfg.JobTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		logger:            logger,
		store:             cfg.Store,
		broker:            cfg.Broker,
		rabbitMQQueueName: cfg.QueueName,
		workerID:          "history-worker-" + uuid.NewString()[:8],
		concurrency:       concurrency,
		prefetchCount:     prefetch,
		jobTimeout:        timeout,
		jobsChan:          make(chan *message, concurrency),
		stopChan:          make(chan struct{}),
	}
}

// Start consumes events until ctx is canceled. It returns
// ErrDeliveriesClosed if the broker ends the subscription first.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer(ctx)
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)

	closed := w.startMessageDispatcher(ctx, deliveries)
	close(w.jobsChan)

	if closed {
		return ErrDeliveriesClosed
	}
	w.logger.Info("Worker context canceled, stopping...")
	return nil
}

// Stop signals the pool to exit and waits for in-flight messages
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
