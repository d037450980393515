package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/analysis-console/internal/analysis/domain"
	"github.com/cuongbtq/analysis-console/internal/telemetry"
)

// DefaultInterval is the fixed delay between two progress polls
const DefaultInterval = 700 * time.Millisecond

// Backend is the subset of the analysis API the reconciler drives
type Backend interface {
	Start(ctx context.Context, symbol string, mode domain.Mode, freq domain.Frequency) (*domain.StartResponse, error)
	Progress(ctx context.Context, mode domain.Mode, jobID string) (*domain.Progress, error)
	Result(ctx context.Context, mode domain.Mode, jobID string) (*domain.Result, error)
}

// Notifier receives one event per job that reaches a terminal state
type Notifier interface {
	JobFinished(ctx context.Context, event domain.JobEvent)
}

// Listener is called after every applied state change, in order. It must not
// call Submit, Stop or Close.
type Listener func(Snapshot)

// Snapshot is the observable state of the active job
type Snapshot struct {
	State     domain.State   `json:"state"`
	Busy      bool           `json:"busy"`
	Job       *domain.Job    `json:"job,omitempty"`
	Status    domain.Status  `json:"status,omitempty"`
	Done      int            `json:"done"`
	Total     int            `json:"total"`
	Percent   int            `json:"percent"`
	Current   string         `json:"current,omitempty"`
	Error     string         `json:"error,omitempty"`
	Result    *domain.Result `json:"result,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Reconciler owns the lifecycle of one analysis job at a time: submit, poll
// until terminal, fetch the result once.
type Reconciler struct {
	backend  Backend
	logger   *slog.Logger
	interval time.Duration
	listener Listener
	notifier Notifier
	now      func() time.Time

	// notifyMu serializes state changes together with their listener call
	notifyMu sync.Mutex

	mu       sync.Mutex
	gen      uint64
	cancel   context.CancelFunc
	snapshot Snapshot

	wg sync.WaitGroup
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithInterval sets the polling interval
func WithInterval(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// WithListener registers a callback for state changes
func WithListener(l Listener) Option {
	return func(r *Reconciler) { r.listener = l }
}

// WithNotifier registers a receiver for terminal job events
func WithNotifier(n Notifier) Option {
	return func(r *Reconciler) { r.notifier = n }
}

// WithClock overrides time.Now for timestamps
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// New creates an idle Reconciler
func New(backend Backend, opts ...Option) *Reconciler {
	r := &Reconciler{
		backend:  backend,
		logger:   slog.Default(),
		interval: DefaultInterval,
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	r.snapshot = Snapshot{State: domain.StateIdle, UpdatedAt: r.now()}
	return r
}

// Submit starts a new job and supersedes the active one. Invalid input is
// rejected before anything is superseded.
func (r *Reconciler) Submit(ctx context.Context, symbol string, mode domain.Mode, freq domain.Frequency) (domain.Job, error) {
	sym, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		telemetry.Submissions.WithLabelValues(string(mode), telemetry.OutcomeInvalid).Inc()
		return domain.Job{}, err
	}
	if !mode.Valid() {
		telemetry.Submissions.WithLabelValues(string(mode), telemetry.OutcomeInvalid).Inc()
		return domain.Job{}, fmt.Errorf("%w: %q", domain.ErrUnknownMode, mode)
	}
	if freq, err = domain.ParseFrequency(string(freq)); err != nil {
		telemetry.Submissions.WithLabelValues(string(mode), telemetry.OutcomeInvalid).Inc()
		return domain.Job{}, err
	}

	gen := r.supersede(Snapshot{State: domain.StateIdle, Busy: true})

	resp, err := r.backend.Start(ctx, sym, mode, freq)
	if err != nil {
		telemetry.Submissions.WithLabelValues(string(mode), telemetry.OutcomeFailed).Inc()
		r.logger.Error("Failed to submit analysis",
			slog.String("symbol", sym),
			slog.String("mode", string(mode)),
			slog.String("error", err.Error()),
		)
		r.apply(gen, func(s *Snapshot) {
			s.State = domain.StateIdle
			s.Busy = false
			s.Error = displayMessage("could not start analysis", err)
		})
		return domain.Job{}, domain.NewPhaseError(domain.PhaseSubmit, err)
	}

	job := domain.Job{
		ID:          resp.JobID,
		Mode:        mode,
		Frequency:   freq,
		Symbol:      sym,
		SubmittedAt: r.now(),
	}
	if mode.IsAggregate() {
		job.Frequency = ""
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	r.notifyMu.Lock()
	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		r.notifyMu.Unlock()
		cancel()
		r.logger.Info("Submission superseded before polling started",
			slog.String("job_id", job.ID),
			slog.String("symbol", sym),
		)
		return job, domain.ErrSuperseded
	}
	r.cancel = cancel
	r.snapshot = Snapshot{
		State:     domain.StateRunning,
		Busy:      true,
		Job:       &job,
		Status:    domain.StatusRunning,
		Total:     resp.Total,
		UpdatedAt: r.now(),
	}
	snap := r.snapshot
	r.wg.Add(1)
	r.mu.Unlock()
	r.emit(snap)
	r.notifyMu.Unlock()

	telemetry.Submissions.WithLabelValues(string(mode), telemetry.OutcomeOK).Inc()
	r.logger.Info("Analysis submitted",
		slog.String("job_id", job.ID),
		slog.String("symbol", sym),
		slog.String("mode", string(mode)),
		slog.String("frequency", string(job.Frequency)),
	)

	go r.loop(loopCtx, gen, job)

	return job, nil
}

// Stop supersedes the active job without starting a new one
func (r *Reconciler) Stop() {
	r.supersede(Snapshot{State: domain.StateIdle})
}

// Close stops polling and waits for the polling goroutine to exit
func (r *Reconciler) Close() {
	r.Stop()
	r.wg.Wait()
}

// Snapshot returns a copy of the current state
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}

// supersede invalidates the active job, stops its loop and installs next
func (r *Reconciler) supersede(next Snapshot) uint64 {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	r.gen++
	gen := r.gen
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	next.UpdatedAt = r.now()
	r.snapshot = next
	r.mu.Unlock()

	r.emit(next)
	return gen
}

// apply mutates the snapshot only if gen is still the active generation
func (r *Reconciler) apply(gen uint64, fn func(*Snapshot)) bool {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		return false
	}
	fn(&r.snapshot)
	r.snapshot.UpdatedAt = r.now()
	snap := r.snapshot
	r.mu.Unlock()

	r.emit(snap)
	return true
}

// release drops the cancel func of a finished loop if it is still active
func (r *Reconciler) release(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen == gen && r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

func (r *Reconciler) emit(s Snapshot) {
	if r.listener != nil {
		r.listener(s)
	}
}

// loop polls immediately, then on every tick, until terminal or canceled
func (r *Reconciler) loop(ctx context.Context, gen uint64, job domain.Job) {
	defer r.wg.Done()
	defer r.release(gen)

	telemetry.ActivePollers.Inc()
	defer telemetry.ActivePollers.Dec()

	logger := r.logger.With(
		slog.String("job_id", job.ID),
		slog.String("mode", string(job.Mode)),
	)
	logger.Debug("Polling started", slog.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if r.poll(ctx, gen, job, logger) {
			return
		}

		select {
		case <-ctx.Done():
			logger.Debug("Polling stopped - job superseded")
			return
		case <-ticker.C:
		}
	}
}

// poll runs one progress request and reports whether the loop must end
func (r *Reconciler) poll(ctx context.Context, gen uint64, job domain.Job, logger *slog.Logger) bool {
	p, err := r.backend.Progress(ctx, job.Mode, job.ID)
	if ctx.Err() != nil {
		return true
	}

	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			telemetry.Polls.WithLabelValues(telemetry.OutcomeNotFound).Inc()
			logger.Debug("Job not visible yet, polling again")
			return false
		}
		telemetry.Polls.WithLabelValues(telemetry.OutcomeFailed).Inc()
		logger.Warn("Progress poll failed",
			slog.String("error", domain.NewPhaseError(domain.PhasePoll, err).Error()),
		)
		return false
	}

	switch p.Status {
	case domain.StatusError:
		telemetry.Polls.WithLabelValues(telemetry.OutcomeError).Inc()
		msg := p.ErrorMessage()
		if msg == "" {
			msg = "analysis failed"
		}
		logger.Warn("Analysis job failed",
			slog.String("error", domain.NewPhaseError(domain.PhaseJob, errors.New(msg)).Error()),
		)
		if r.apply(gen, func(s *Snapshot) {
			s.applyProgress(p)
			s.State = domain.StateError
			s.Busy = false
			s.Current = ""
			s.Error = msg
		}) {
			r.notify(ctx, job, domain.StatusError, msg, nil)
		}
		return true

	case domain.StatusDone:
		telemetry.Polls.WithLabelValues(telemetry.OutcomeDone).Inc()
		if !r.apply(gen, func(s *Snapshot) {
			s.applyProgress(p)
			s.State = domain.StateFetchingResult
			s.Current = ""
		}) {
			return true
		}
		r.fetchResult(ctx, gen, job, logger)
		return true

	default:
		telemetry.Polls.WithLabelValues(telemetry.OutcomeRunning).Inc()
		if p.Status != domain.StatusRunning {
			logger.Warn("Unexpected job status, treating as running",
				slog.String("status", string(p.Status)),
			)
		}
		r.apply(gen, func(s *Snapshot) {
			s.applyProgress(p)
			s.Status = domain.StatusRunning
		})
		return false
	}
}

// fetchResult performs the single result fetch of a done job
func (r *Reconciler) fetchResult(ctx context.Context, gen uint64, job domain.Job, logger *slog.Logger) {
	res, err := r.backend.Result(ctx, job.Mode, job.ID)
	if ctx.Err() != nil {
		return
	}

	if err != nil {
		telemetry.ResultFetches.WithLabelValues(telemetry.OutcomeFailed).Inc()
		logger.Error("Failed to fetch analysis result",
			slog.String("error", domain.NewPhaseError(domain.PhaseResult, err).Error()),
		)
		msg := displayMessage("could not load analysis result", err)
		if r.apply(gen, func(s *Snapshot) {
			s.State = domain.StateError
			s.Busy = false
			s.Error = msg
		}) {
			r.notify(ctx, job, domain.StatusError, msg, nil)
		}
		return
	}

	telemetry.ResultFetches.WithLabelValues(telemetry.OutcomeOK).Inc()
	logger.Info("Analysis result received",
		slog.String("symbol", job.Symbol),
		slog.Int("results", len(res.Results)),
	)
	if r.apply(gen, func(s *Snapshot) {
		s.State = domain.StateDone
		s.Status = domain.StatusDone
		s.Busy = false
		s.Result = res
		if res.Total > 0 {
			s.Done, s.Total = res.Done, res.Total
			s.Percent = domain.Progress{Done: res.Done, Total: res.Total}.Percent()
		}
	}) {
		r.notify(ctx, job, domain.StatusDone, "", res.Keys())
	}
}

// notify runs on the polling goroutine after the terminal state is visible,
// so a later Submit may return before the event is published. Close waits
// for it, bounded by the notifier's own publish timeout.
func (r *Reconciler) notify(ctx context.Context, job domain.Job, status domain.Status, msg string, keys []string) {
	if r.notifier == nil {
		return
	}
	r.notifier.JobFinished(context.WithoutCancel(ctx), domain.JobEvent{
		JobID:      job.ID,
		Symbol:     job.Symbol,
		Mode:       job.Mode,
		Frequency:  job.Frequency,
		Status:     status,
		Error:      msg,
		ResultKeys: keys,
		FinishedAt: r.now(),
	})
}

func (s *Snapshot) applyProgress(p *domain.Progress) {
	s.Status = p.Status
	s.Done = p.Done
	s.Total = p.Total
	s.Percent = p.Percent()
	s.Current = p.CurrentTask()
}

// displayMessage turns an error into text safe to show to the user
func displayMessage(prefix string, err error) string {
	var remote *domain.RemoteError
	if errors.As(err, &remote) && remote.Detail != "" {
		return prefix + ": " + remote.Detail
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return prefix + ": backend timed out"
	}
	return prefix
}
