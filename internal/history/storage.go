package history

import (
	"context"
	"fmt"
	"strings"
	"time"

)

const (
	// DefaultPageSize is used when the filter leaves PageSize unset
	DefaultPageSize = 20
	// MaxPageSize caps a single page
	MaxPageSize = 100
)

// Schema creates the history table and its listing index
const Schema = `
CREATE TABLE IF NOT EXISTS analysis_history (
	job_id      TEXT PRIMARY KEY,
	symbol      TEXT NOT NULL,
	mode        TEXT NOT NULL,
	frequency   TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	result_keys TEXT[] NOT NULL DEFAULT '{}',
	finished_at TIMESTAMPTZ NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_analysis_history_finished
	ON analysis_history (finished_at DESC, job_id DESC);
CREATE INDEX IF NOT EXISTS idx_analysis_history_symbol
	ON analysis_history (symbol, finished_at DESC);
`

// DB is the subset of the shared PostgreSQL client the store uses
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) error
}

// Storage persists finished jobs in PostgreSQL
type Storage struct {
	db  DB
	now func() time.Time
}

// NewStorage creates a Storage on top of the shared PostgreSQL client
func NewStorage(db DB) *Storage {
	return &Storage{
		db:  db,
		now: time.Now,
	}
}

// EnsureSchema creates the history table if it does not exist
func (s *Storage) EnsureSchema(ctx context.Context) error {
	if err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create history schema: %w", err)
	}
	return nil
}

// Record upserts rec by job ID. Redelivered events overwrite the row.
func (s *Storage) Record(ctx context.Context, rec Record) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = s.now().UTC()
	}
	if rec.ResultKeys == nil {
		rec.ResultKeys = []string{}
	}

	query := `
		INSERT INTO analysis_history (
			job_id, symbol, mode, frequency,
			status, error, result_keys, finished_at, recorded_at
		) VALUES (
			:job_id, :symbol, :mode, :frequency,
			:status, :error, :result_keys, :finished_at, :recorded_at
		)
		ON CONFLICT (job_id) DO UPDATE SET
			symbol      = EXCLUDED.symbol,
			mode        = EXCLUDED.mode,
			frequency   = EXCLUDED.frequency,
			status      = EXCLUDED.status,
			error       = EXCLUDED.error,
			result_keys = EXCLUDED.result_keys,
			finished_at = EXCLUDED.finished_at,
			recorded_at = EXCLUDED.recorded_at
	`

	if err := s.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("failed to record job %s: %w", rec.JobID, err)
	}
	return nil
}

// List returns up to PageSize+1 records, newest first. The extra record
// tells the caller whether another page exists.
func (s *Storage) List(ctx context.Context, filter Filter) ([]Record, error) {
	query, args := buildListQuery(filter)

	var records []Record
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return records, nil
}

// Page trims records fetched by List to pageSize and returns the cursor of
// the next page, if any
func Page(records []Record, pageSize int) ([]Record, string) {
	pageSize = clampPageSize(pageSize)
	if len(records) <= pageSize {
		return records, ""
	}
	records = records[:pageSize]
	last := records[len(records)-1]
	return records, EncodeCursor(&Cursor{FinishedAt: last.FinishedAt, JobID: last.JobID})
}

func clampPageSize(n int) int {
	if n <= 0 {
		return DefaultPageSize
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}

func buildListQuery(filter Filter) (string, []interface{}) {
	var b strings.Builder
	b.WriteString(`
		SELECT
			job_id, symbol, mode, frequency,
			status, error, result_keys, finished_at, recorded_at
		FROM analysis_history
		WHERE 1=1`)

	args := []interface{}{}
	argIdx := 1

	if filter.Symbol != "" {
		fmt.Fprintf(&b, " AND symbol = $%d", argIdx)
		args = append(args, strings.ToUpper(strings.TrimSpace(filter.Symbol)))
		argIdx++
	}

	if filter.Mode != "" {
		fmt.Fprintf(&b, " AND mode = $%d", argIdx)
		args = append(args, filter.Mode)
		argIdx++
	}

	if filter.Status != "" {
		fmt.Fprintf(&b, " AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		fmt.Fprintf(&b, " AND (finished_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.FinishedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	b.WriteString(" ORDER BY finished_at DESC, job_id DESC")

	fmt.Fprintf(&b, " LIMIT $%d", argIdx)
	args = append(args, clampPageSize(filter.PageSize)+1)

	return b.String(), args
}
