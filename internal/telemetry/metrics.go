package telemetry

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	Submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_submissions_total",
		Help: "Analysis job submissions by mode and outcome",
	}, []string{"mode", "outcome"})
	Polls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_polls_total",
		Help: "Progress polls by outcome",
	}, []string{"outcome"})
	ResultFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_result_fetches_total",
		Help: "Result fetches after a job finished",
	}, []string{"outcome"})
	ActivePollers   = prometheus.NewGauge(prometheus.GaugeOpts{Name: "analysis_active_pollers", Help: "Polling loops currently running"})
	ActiveSessions  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "analysis_active_sessions", Help: "Sessions holding a reconciler"})
	RateLimitDenied = prometheus.NewCounter(prometheus.CounterOpts{Name: "analysis_rate_limit_denied_total", Help: "Submissions rejected by the rate limiter"})
)

// Outcome labels shared by the counters above.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeInvalid  = "invalid"
	OutcomeRunning  = "running"
	OutcomeDone     = "done"
	OutcomeError    = "error"
	OutcomeNotFound = "not_found"
)

// Register adds extra collectors, such as connection pool stats, to the
// default registry. Collectors registered twice are ignored.
func Register(cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := prometheus.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return nil
}

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			Submissions,
			Polls,
			ResultFetches,
			ActivePollers,
			ActiveSessions,
			RateLimitDenied,
		)
	})
	return promhttp.Handler()
}
