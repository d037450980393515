package ratelimit

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/analysis-console/internal/telemetry"
)

// Bucket consumes one token for key
type Bucket interface {
	Allow(ctx context.Context, key string) (bool, float64, error)
}

// Limiter gates analysis submissions per session. Bucket errors let the
// request through.
type Limiter struct {
	bucket Bucket
	logger *slog.Logger
}

// NewLimiter wraps bucket. A nil bucket allows everything.
func NewLimiter(bucket Bucket, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{bucket: bucket, logger: logger}
}

// Allow reports whether key may submit now
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.bucket == nil {
		return true
	}

	allowed, remaining, err := l.bucket.Allow(ctx, key)
	if err != nil {
		l.logger.Warn("Rate limiter unavailable, allowing request",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return true
	}

	if !allowed {
		telemetry.RateLimitDenied.Inc()
		l.logger.Info("Submission rate limited",
			slog.String("key", key),
			slog.Float64("remaining", remaining),
		)
	}
	return allowed
}
