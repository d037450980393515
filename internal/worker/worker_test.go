package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/analysis-console/internal/events"
	"github.com/cuongbtq/analysis-console/internal/history"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ackRecord struct {
	tag     uint64
	ack     bool
	requeue bool
}

type fakeAcknowledger struct {
	mu      sync.Mutex
	records []ackRecord
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, ackRecord{tag: tag, ack: true})
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, ackRecord{tag: tag, requeue: requeue})
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcknowledger) byTag() map[uint64]ackRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[uint64]ackRecord, len(a.records))
	for _, r := range a.records {
		out[r.tag] = r
	}
	return out
}

type fakeBroker struct {
	deliveries chan amqp.Delivery
	prefetch   int
	qosErr     error
}

func (b *fakeBroker) Qos(prefetchCount int) error {
	b.prefetch = prefetchCount
	return b.qosErr
}

func (b *fakeBroker) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	return b.deliveries, nil
}

type fakeStore struct {
	mu      sync.Mutex
	records map[string]history.Record
	failFor map[string]bool
}

func (s *fakeStore) Record(ctx context.Context, rec history.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFor[rec.JobID] {
		return errors.New("connection refused")
	}
	s.records[rec.JobID] = rec
	return nil
}

func (s *fakeStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func eventBody(jobID string) []byte {
	return []byte(fmt.Sprintf(`{"job_id":%q,"symbol":"AAPL","mode":"full","status":"done","result_keys":["Wachstumswerte|annual"],"finished_at":"2026-03-01T12:00:00Z"}`, jobID))
}

func TestWorker_ProcessesDeliveries(t *testing.T) {
	ack := &fakeAcknowledger{}
	broker := &fakeBroker{deliveries: make(chan amqp.Delivery, 4)}
	store := &fakeStore{records: map[string]history.Record{}, failFor: map[string]bool{"job-db-down": true}}

	w := NewWorker(&Config{
		Logger:      slog.New(slog.DiscardHandler),
		Store:       store,
		Broker:      broker,
		QueueName:   "analysis_history",
		Concurrency: 2,
		JobTimeout:  time.Second,
	})

	broker.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: eventBody("job-1")}
	broker.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte(`not json`)}
	broker.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 3, Body: eventBody("job-db-down")}
	broker.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 4, Body: []byte(`{"job_id":"x","symbol":"AAPL","mode":"full","status":"running","finished_at":"2026-03-01T12:00:00Z"}`)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool { return len(ack.byTag()) == 4 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	w.Stop()

	acks := ack.byTag()
	assert.Equal(t, ackRecord{tag: 1, ack: true}, acks[1], "stored event is acked")
	assert.Equal(t, ackRecord{tag: 2}, acks[2], "malformed body is dropped")
	assert.Equal(t, ackRecord{tag: 3, requeue: true}, acks[3], "storage failure is requeued")
	assert.Equal(t, ackRecord{tag: 4}, acks[4], "non-terminal event is dropped")

	assert.Equal(t, 1, store.len())
	rec := store.records["job-1"]
	assert.Equal(t, "AAPL", rec.Symbol)
	assert.Equal(t, "done", rec.Status)
	assert.Equal(t, []string{"Wachstumswerte|annual"}, []string(rec.ResultKeys))
	assert.Equal(t, 2, broker.prefetch)
}

func TestWorker_DeliveriesClosed(t *testing.T) {
	broker := &fakeBroker{deliveries: make(chan amqp.Delivery)}
	close(broker.deliveries)

	w := NewWorker(&Config{
		Logger: slog.New(slog.DiscardHandler),
		Store:  &fakeStore{records: map[string]history.Record{}},
		Broker: broker,
	})

	err := w.Start(context.Background())
	assert.ErrorIs(t, err, ErrDeliveriesClosed)
	w.Stop()
}

func TestWorker_QosFailure(t *testing.T) {
	w := NewWorker(&Config{
		Logger: slog.New(slog.DiscardHandler),
		Broker: &fakeBroker{qosErr: errors.New("channel closed")},
	})

	err := w.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to configure consumer")
}

func TestShouldRequeue(t *testing.T) {
	w := NewWorker(&Config{Logger: slog.New(slog.DiscardHandler)})

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "retryable", err: NewRetryableError(errors.New("db down")), want: true},
		{name: "wrapped retryable", err: fmt.Errorf("outer: %w", NewRetryableError(errors.New("db down"))), want: true},
		{name: "malformed", err: fmt.Errorf("%w: missing job_id", events.ErrMalformedEvent), want: false},
		{name: "unknown", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.shouldRequeue(tt.err))
		})
	}
}
