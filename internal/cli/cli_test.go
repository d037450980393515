package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// newBackend fakes the analysis API: job "ok" finishes after one running
// poll, job "bad" fails, symbol "MISSING" is rejected at start.
func newBackend(t *testing.T) *httptest.Server {
	t.Helper()

	var polls atomic.Int32
	mux := http.NewServeMux()

	mux.HandleFunc("POST /analyze/{mode}/start", func(w http.ResponseWriter, r *http.Request) {
		sym := r.URL.Query().Get("symbol")
		if sym == "MISSING" {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Symbol MISSING not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"job_id": "ok", "symbol": sym, "total": 2})
	})
	mux.HandleFunc("POST /full/start", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"job_id": "bad", "symbol": r.URL.Query().Get("symbol"), "total": 7})
	})
	mux.HandleFunc("GET /analyze/{mode}/ok/progress", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) == 1 {
			writeJSON(w, http.StatusOK, map[string]any{"job_id": "ok", "status": "running", "total": 2, "done": 1, "current": "Revenue CAGR"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"job_id": "ok", "status": "done", "total": 2, "done": 2})
	})
	mux.HandleFunc("GET /analyze/{mode}/ok/result", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"job_id": "ok",
			"status": "done",
			"total":  2,
			"done":   2,
			"results": map[string]any{
				"Wachstumswerte|annual": map[string]any{
					"overall_assessment": "Wachstumswert",
					"criteria": map[string]any{
						"revenue": map[string]any{"meets_criterion": true},
						"eps":     map[string]any{"meets_criterion": false},
					},
				},
				"Wachstumswerte|quarterly": map[string]any{"error": "Keine Daten"},
			},
		})
	})
	mux.HandleFunc("GET /full/full/bad/progress", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"job_id": "bad", "status": "error", "total": 7, "done": 3, "error": "No price data"})
	})
	mux.HandleFunc("GET /analyze/symbols", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{
			{"symbol": "MSFT", "sectors": []string{"Technology"}},
			{"symbol": "AAPL", "sectors": []string{"Technology", "Consumer Electronics"}},
			{"symbol": "XOM", "sectors": []string{"Energy"}},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := NewRootCmd(Options{
		Out:    &out,
		Err:    io.Discard,
		Logger: slog.New(slog.DiscardHandler),
	})
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestRun_PrintsProgressAndResults(t *testing.T) {
	srv := newBackend(t)

	out, err := execute(t, context.Background(),
		"run", "--backend-url", srv.URL, "--interval", "5ms",
		"--symbol", "aapl", "--mode", "wachstumswerte",
	)
	require.NoError(t, err)

	assert.Contains(t, out, "[ 50%] AAPL Wachstumswerte (annual) 1/2 Revenue CAGR")
	assert.Contains(t, out, "[100%] AAPL Wachstumswerte (annual) done")
	assert.Contains(t, out, "ANALYSIS")
	assert.Contains(t, out, "1/2")
	assert.Contains(t, out, "Keine Daten")
	assert.Contains(t, out, "2 of 2 results shown")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	seen := map[string]bool{}
	for _, l := range lines {
		assert.False(t, seen[l] && strings.HasPrefix(l, "["), "duplicate progress line %q", l)
		seen[l] = true
	}
}

func TestRun_FiltersByHealth(t *testing.T) {
	srv := newBackend(t)

	out, err := execute(t, context.Background(),
		"run", "--backend-url", srv.URL, "--interval", "5ms",
		"--symbol", "AAPL", "--mode", "wachstumswerte", "--health", "error",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "quarterly  error")
	assert.Contains(t, out, "1 of 2 results shown")
}

func TestRun_JobError(t *testing.T) {
	srv := newBackend(t)

	out, err := execute(t, context.Background(),
		"run", "--backend-url", srv.URL, "--interval", "5ms",
		"--symbol", "XOM", "--mode", "full",
	)
	require.ErrorIs(t, err, ErrJobFailed)
	assert.Contains(t, err.Error(), "No price data")
	assert.Contains(t, out, "[fail] XOM Full Analysis No price data")
}

func TestRun_StartRejected(t *testing.T) {
	srv := newBackend(t)

	_, err := execute(t, context.Background(),
		"run", "--backend-url", srv.URL,
		"--symbol", "missing", "--mode", "wachstumswerte",
	)
	require.ErrorIs(t, err, ErrJobFailed)
	assert.Contains(t, err.Error(), "Symbol MISSING not found")
}

func TestRun_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "missing symbol", args: []string{"run", "--mode", "full"}},
		{name: "unknown mode", args: []string{"run", "--symbol", "AAPL", "--mode", "deep-value"}},
		{name: "unknown frequency", args: []string{"run", "--symbol", "AAPL", "--frequency", "monthly"}},
		{name: "unknown health", args: []string{"run", "--symbol", "AAPL", "--health", "meh"}},
		{name: "bad backend url", args: []string{"run", "--symbol", "AAPL", "--backend-url", "ftp://example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, context.Background(), tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestRun_Interrupted(t *testing.T) {
	polled := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/start") {
			writeJSON(w, http.StatusOK, map[string]any{"job_id": "slow", "symbol": "AAPL"})
			return
		}
		select {
		case polled <- struct{}{}:
		default:
		}
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-polled
		cancel()
	}()

	out, err := execute(t, ctx,
		"run", "--backend-url", srv.URL, "--interval", "5ms",
		"--symbol", "AAPL", "--mode", "wachstumswerte",
	)
	require.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, out, "Interrupted, analysis abandoned")
}

func TestSymbols(t *testing.T) {
	srv := newBackend(t)

	out, err := execute(t, context.Background(), "symbols", "--backend-url", srv.URL)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[1], "AAPL"))
	assert.True(t, strings.HasPrefix(lines[3], "XOM"))

	out, err = execute(t, context.Background(), "symbols", "tech", "--backend-url", srv.URL, "--limit", "1")
	require.NoError(t, err)
	lines = strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "AAPL"))

	out, err = execute(t, context.Background(), "symbols", "zzz", "--backend-url", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "No symbols found\n", out)
}

func TestModes(t *testing.T) {
	out, err := execute(t, context.Background(), "modes")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 9)
	assert.True(t, strings.HasPrefix(lines[1], "full"))
	assert.Contains(t, lines[1], "Full Analysis")
	assert.Contains(t, out, "typische-zykliker")
}
