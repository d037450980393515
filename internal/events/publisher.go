package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/analysis-console/internal/analysis/domain"
)

// ContentType of every published job event
const ContentType = "application/json"

const defaultPublishTimeout = 5 * time.Second

// Broker is the subset of the RabbitMQ client used to publish events
type Broker interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// Publisher sends terminal job events to the history exchange. It
// implements poller.Notifier.
type Publisher struct {
	broker  Broker
	logger  *slog.Logger
	timeout time.Duration
}

// NewPublisher creates a Publisher. timeout bounds one publish including
// retries.
func NewPublisher(broker Broker, logger *slog.Logger, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{broker: broker, logger: logger, timeout: timeout}
}

// JobFinished publishes event. Failures are logged only.
func (p *Publisher) JobFinished(ctx context.Context, event domain.JobEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to encode job event",
			slog.String("job_id", event.JobID),
			slog.String("error", err.Error()),
		)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.broker.PublishWithRetry(ctx, body, ContentType); err != nil {
		p.logger.Error("Failed to publish job event",
			slog.String("job_id", event.JobID),
			slog.String("status", string(event.Status)),
			slog.String("error", err.Error()),
		)
		return
	}

	p.logger.Debug("Job event published",
		slog.String("job_id", event.JobID),
		slog.String("symbol", event.Symbol),
		slog.String("status", string(event.Status)),
	)
}

// Decode parses and validates a job event message body
func Decode(body []byte) (domain.JobEvent, error) {
	var event domain.JobEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return domain.JobEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.JobID == "" {
		return domain.JobEvent{}, fmt.Errorf("%w: missing job_id", ErrMalformedEvent)
	}
	if _, err := domain.NormalizeSymbol(event.Symbol); err != nil {
		return domain.JobEvent{}, fmt.Errorf("%w: missing symbol", ErrMalformedEvent)
	}
	if !event.Mode.Valid() {
		return domain.JobEvent{}, fmt.Errorf("%w: unknown mode %q", ErrMalformedEvent, event.Mode)
	}
	if !event.Status.IsTerminal() {
		return domain.JobEvent{}, fmt.Errorf("%w: status %q is not terminal", ErrMalformedEvent, event.Status)
	}
	if event.FinishedAt.IsZero() {
		return domain.JobEvent{}, fmt.Errorf("%w: missing finished_at", ErrMalformedEvent)
	}
	return event, nil
}

// ErrMalformedEvent is returned by Decode for bodies that can never be stored
var ErrMalformedEvent = errors.New("malformed job event")
