package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/analysis-console/internal/poller"
	"github.com/cuongbtq/analysis-console/internal/telemetry"
)

// Config holds registry configuration
type Config struct {
	Backend poller.Backend
	Logger  *slog.Logger
	// Options are applied to every Reconciler the registry creates
	Options []poller.Option
}

type entry struct {
	reconciler *poller.Reconciler
	lastSeen   time.Time
}

// Registry owns one Reconciler per browser session
type Registry struct {
	backend poller.Backend
	logger  *slog.Logger
	opts    []poller.Option
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
}

// NewRegistry creates an empty registry
func NewRegistry(cfg *Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		backend: cfg.Backend,
		logger:  logger,
		opts:    cfg.Options,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Get returns the Reconciler of session id, creating it on first use.
// Returns nil once the registry is closed.
func (r *Registry) Get(id string) *poller.Reconciler {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	if e, ok := r.entries[id]; ok {
		e.lastSeen = r.now()
		return e.reconciler
	}

	logger := r.logger.With(slog.String("session_id", id))
	opts := append(append([]poller.Option{}, r.opts...), poller.WithLogger(logger))

	rec := poller.New(r.backend, opts...)
	r.entries[id] = &entry{reconciler: rec, lastSeen: r.now()}
	telemetry.ActiveSessions.Set(float64(len(r.entries)))

	logger.Debug("Session reconciler created")
	return rec
}

// Lookup returns the Reconciler of session id without creating one. A hit
// counts as activity and postpones eviction.
func (r *Registry) Lookup(id string) (*poller.Reconciler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = r.now()
	return e.reconciler, true
}

// Remove closes and forgets the Reconciler of session id
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
		telemetry.ActiveSessions.Set(float64(len(r.entries)))
	}
	r.mu.Unlock()

	if ok {
		e.reconciler.Close()
	}
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep closes every session not seen for longer than idle and returns how
// many were evicted
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	var stale []*poller.Reconciler
	for id, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			stale = append(stale, e.reconciler)
			delete(r.entries, id)
		}
	}
	telemetry.ActiveSessions.Set(float64(len(r.entries)))
	r.mu.Unlock()

	for _, rec := range stale {
		rec.Close()
	}

	if len(stale) > 0 {
		r.logger.Info("Evicted idle sessions",
			slog.Int("evicted", len(stale)),
			slog.Duration("idle_timeout", idle),
		)
	}
	return len(stale)
}

// Run sweeps idle sessions every interval until ctx is done
func (r *Registry) Run(ctx context.Context, interval, idle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("Session sweeper started",
		slog.Duration("interval", interval),
		slog.Duration("idle_timeout", idle),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Session sweeper stopped")
			return nil
		case <-ticker.C:
			r.Sweep(idle)
		}
	}
}

// Close stops every Reconciler. Later Get calls return nil.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	all := make([]*poller.Reconciler, 0, len(r.entries))
	for id, e := range r.entries {
		all = append(all, e.reconciler)
		delete(r.entries, id)
	}
	telemetry.ActiveSessions.Set(0)
	r.mu.Unlock()

	for _, rec := range all {
		rec.Close()
	}
}
