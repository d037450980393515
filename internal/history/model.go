package history

import (
	"time"

	"github.com/cuongbtq/analysis-console/internal/analysis/domain"
	"github.com/lib/pq"
)

// Record is one finished analysis job as stored in analysis_history
type Record struct {
	JobID      string         `db:"job_id" json:"job_id"`
	Symbol     string         `db:"symbol" json:"symbol"`
	Mode       string         `db:"mode" json:"mode"`
	Frequency  string         `db:"frequency" json:"frequency,omitempty"`
	Status     string         `db:"status" json:"status"`
	Error      string         `db:"error" json:"error,omitempty"`
	ResultKeys pq.StringArray `db:"result_keys" json:"result_keys"`
	FinishedAt time.Time      `db:"finished_at" json:"finished_at"`
	RecordedAt time.Time      `db:"recorded_at" json:"recorded_at"`
}

// FromEvent converts a terminal job event into a Record
func FromEvent(e domain.JobEvent) Record {
	keys := e.ResultKeys
	if keys == nil {
		keys = []string{}
	}
	return Record{
		JobID:      e.JobID,
		Symbol:     e.Symbol,
		Mode:       string(e.Mode),
		Frequency:  string(e.Frequency),
		Status:     string(e.Status),
		Error:      e.Error,
		ResultKeys: pq.StringArray(keys),
		FinishedAt: e.FinishedAt.UTC(),
	}
}

// Filter selects a page of history records
type Filter struct {
	Symbol   string
	Mode     string
	Status   string
	PageSize int
	Cursor   *Cursor
}

// Cursor points at the last record of the previous page
type Cursor struct {
	FinishedAt time.Time
	JobID      string
}
