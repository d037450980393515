package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuongbtq/analysis-console/internal/analysis/domain"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "analysis-console/1.0"
	// maxErrorBody caps how much of a non-2xx body is read for the detail message
	maxErrorBody = 4 << 10
)

// Config holds analysis backend connection configuration
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client wraps the remote analysis HTTP API
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a new analysis backend client
func NewClient(config *Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("backend base url is required")
	}

	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend base url scheme: %q", base.Scheme)
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	c := &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
		logger:     logger,
	}
	for _, o := range opts {
		o(c)
	}

	return c, nil
}

// Start submits a new job. Aggregate mode ignores the frequency.
func (c *Client) Start(ctx context.Context, symbol string, mode domain.Mode, freq domain.Frequency) (*domain.StartResponse, error) {
	sym, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownMode, mode)
	}
	if freq == "" {
		freq = domain.FrequencyAnnual
	}

	query := url.Values{}
	query.Set("symbol", sym)

	var path string
	if mode.IsAggregate() {
		path = "/full/start"
	} else {
		path = "/analyze/" + url.PathEscape(string(mode)) + "/start"
		query.Set("frequency", string(freq))
	}

	var resp domain.StartResponse
	if err := c.do(ctx, http.MethodPost, path, query, &resp); err != nil {
		return nil, fmt.Errorf("failed to start %s analysis: %w", mode, err)
	}
	if resp.JobID == "" {
		return nil, fmt.Errorf("failed to start %s analysis: empty job_id in response", mode)
	}

	c.logger.Debug("Analysis job started",
		slog.String("job_id", resp.JobID),
		slog.String("symbol", sym),
		slog.String("mode", string(mode)),
	)

	return &resp, nil
}

// Progress fetches the current progress of a job
func (c *Client) Progress(ctx context.Context, mode domain.Mode, jobID string) (*domain.Progress, error) {
	var p domain.Progress
	if err := c.do(ctx, http.MethodGet, jobPath(mode, jobID, "progress"), nil, &p); err != nil {
		return nil, fmt.Errorf("failed to fetch progress: %w", err)
	}
	return &p, nil
}

// Result fetches the final result of a job
func (c *Client) Result(ctx context.Context, mode domain.Mode, jobID string) (*domain.Result, error) {
	var r domain.Result
	if err := c.do(ctx, http.MethodGet, jobPath(mode, jobID, "result"), nil, &r); err != nil {
		return nil, fmt.Errorf("failed to fetch result: %w", err)
	}
	if r.Results == nil {
		r.Results = map[string]json.RawMessage{}
	}
	return &r, nil
}

// Symbols fetches the autocomplete symbol list
func (c *Client) Symbols(ctx context.Context) ([]domain.Symbol, error) {
	var symbols []domain.Symbol
	if err := c.do(ctx, http.MethodGet, "/analyze/symbols", nil, &symbols); err != nil {
		return nil, fmt.Errorf("failed to fetch symbols: %w", err)
	}
	return symbols, nil
}

// Health checks that the backend is reachable
func (c *Client) Health(ctx context.Context) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &body); err != nil {
		return fmt.Errorf("backend health check failed: %w", err)
	}
	if body.Status != "ok" {
		return fmt.Errorf("backend health check failed: status %q", body.Status)
	}
	return nil
}

// jobPath returns the progress/result path for a job. The aggregate routes
// are mounted under /full/full on the backend.
func jobPath(mode domain.Mode, jobID, leaf string) string {
	id := url.PathEscape(jobID)
	if mode.IsAggregate() {
		return "/full/full/" + id + "/" + leaf
	}
	return "/analyze/" + url.PathEscape(string(mode)) + "/" + id + "/" + leaf
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, out any) error {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &domain.RemoteError{
			StatusCode: resp.StatusCode,
			Detail:     readDetail(resp.Body),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// readDetail extracts FastAPI's {"detail": ...} message, falling back to the raw body
func readDetail(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(body) == 0 {
		return ""
	}

	var payload struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != nil {
		if s, ok := payload.Detail.(string); ok {
			return s
		}
		if b, err := json.Marshal(payload.Detail); err == nil {
			return string(b)
		}
	}
	return strings.TrimSpace(string(body))
}
