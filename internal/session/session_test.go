package session

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuongbtq/analysis-console/internal/analysis/domain"
	"github.com/cuongbtq/analysis-console/internal/poller"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runningBackend struct {
	polls atomic.Int32
}

func (b *runningBackend) Start(ctx context.Context, symbol string, mode domain.Mode, freq domain.Frequency) (*domain.StartResponse, error) {
	return &domain.StartResponse{JobID: "job-" + symbol, Symbol: symbol, Total: 3}, nil
}

func (b *runningBackend) Progress(ctx context.Context, mode domain.Mode, jobID string) (*domain.Progress, error) {
	b.polls.Add(1)
	return &domain.Progress{JobID: jobID, Status: domain.StatusRunning, Total: 3, Done: 1}, nil
}

func (b *runningBackend) Result(ctx context.Context, mode domain.Mode, jobID string) (*domain.Result, error) {
	return &domain.Result{JobID: jobID}, nil
}

func newTestRegistry(backend poller.Backend) *Registry {
	return NewRegistry(&Config{
		Backend: backend,
		Logger:  slog.New(slog.DiscardHandler),
		Options: []poller.Option{poller.WithInterval(10 * time.Millisecond)},
	})
}

func TestRegistry_GetIsLazyAndStable(t *testing.T) {
	reg := newTestRegistry(&runningBackend{})
	defer reg.Close()

	_, ok := reg.Lookup("a")
	assert.False(t, ok)

	a1 := reg.Get("a")
	a2 := reg.Get("a")
	b := reg.Get("b")

	require.NotNil(t, a1)
	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b)
	assert.Equal(t, 2, reg.Len())

	found, ok := reg.Lookup("a")
	require.True(t, ok)
	assert.Same(t, a1, found)
	assert.Equal(t, 2, reg.Len())
}

func TestRegistry_RemoveStopsPolling(t *testing.T) {
	backend := &runningBackend{}
	reg := newTestRegistry(backend)
	defer reg.Close()

	rec := reg.Get("a")
	_, err := rec.Submit(context.Background(), "aapl", domain.ModeFull, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return backend.polls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	reg.Remove("a")
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, domain.StateIdle, rec.Snapshot().State)

	after := backend.polls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, backend.polls.Load())

	// Unknown IDs are a no-op.
	reg.Remove("missing")
}

func TestRegistry_Sweep(t *testing.T) {
	reg := newTestRegistry(&runningBackend{})
	defer reg.Close()

	now := time.Unix(1_700_000_000, 0)
	reg.now = func() time.Time { return now }

	reg.Get("old")
	now = now.Add(20 * time.Minute)
	reg.Get("fresh")
	now = now.Add(15 * time.Minute)

	evicted := reg.Sweep(30 * time.Minute)
	assert.Equal(t, 1, evicted)

	_, ok := reg.Lookup("old")
	assert.False(t, ok)
	_, ok = reg.Lookup("fresh")
	assert.True(t, ok)

	// Get refreshes last-seen.
	reg.Get("fresh")
	now = now.Add(20 * time.Minute)
	assert.Equal(t, 0, reg.Sweep(30*time.Minute))
}

func TestRegistry_LookupKeepsSessionAlive(t *testing.T) {
	reg := newTestRegistry(&runningBackend{})
	defer reg.Close()

	now := time.Unix(1_700_000_000, 0)
	reg.now = func() time.Time { return now }

	reg.Get("reader")
	reg.Get("abandoned")

	// A browser that only polls the snapshot for an hour stays live.
	for i := 0; i < 30; i++ {
		now = now.Add(2 * time.Minute)
		_, ok := reg.Lookup("reader")
		require.True(t, ok)
	}

	assert.Equal(t, 1, reg.Sweep(30*time.Minute))
	_, ok := reg.Lookup("reader")
	assert.True(t, ok)
	_, ok = reg.Lookup("abandoned")
	assert.False(t, ok)
}

func TestRegistry_RunStopsOnCancel(t *testing.T) {
	reg := newTestRegistry(&runningBackend{})
	defer reg.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reg.Run(ctx, 5*time.Millisecond, time.Nanosecond) }()

	reg.Get("a")
	require.Eventually(t, func() bool { return reg.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestRegistry_Close(t *testing.T) {
	reg := newTestRegistry(&runningBackend{})
	reg.Get("a")
	reg.Get("b")

	reg.Close()

	assert.Equal(t, 0, reg.Len())
	assert.Nil(t, reg.Get("c"))
}

func TestMiddleware_AssignsStableID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(CookieConfig{
		Name:   "analysis_session",
		Secret: "0123456789abcdef0123456789abcdef",
		MaxAge: time.Hour,
	})...)
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, ID(c))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	require.Equal(t, http.StatusOK, w.Code)

	first := w.Body.String()
	_, err := uuid.Parse(first)
	require.NoError(t, err)

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, "analysis_session", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, first, w.Body.String())

	// A request without the cookie gets a fresh identity.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.NotEqual(t, first, w.Body.String())
}
