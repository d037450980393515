package domain

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// Job is one submitted analysis request. Mode is pinned at submission.
type Job struct {
	ID          string    `json:"job_id"`
	Mode        Mode      `json:"mode"`
	Frequency   Frequency `json:"frequency"`
	Symbol      string    `json:"symbol"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// StartResponse is returned by the backend's start endpoints
type StartResponse struct {
	JobID     string    `json:"job_id"`
	Symbol    string    `json:"symbol"`
	Total     int       `json:"total,omitempty"`
	Mode      Mode      `json:"mode,omitempty"`
	Frequency Frequency `json:"frequency,omitempty"`
}

// Progress is the backend's progress snapshot for a job
type Progress struct {
	JobID   string  `json:"job_id"`
	Symbol  string  `json:"symbol"`
	Status  Status  `json:"status"`
	Total   int     `json:"total"`
	Done    int     `json:"done"`
	Current *string `json:"current,omitempty"`
	Error   *string `json:"error,omitempty"`
}

// Percent returns the rounded completion percentage in [0, 100]
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	pct := int(math.Round(float64(p.Done) * 100 / float64(p.Total)))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// CurrentTask returns the in-progress sub-task label, if any
func (p Progress) CurrentTask() string {
	if p.Current == nil {
		return ""
	}
	return *p.Current
}

// ErrorMessage returns the backend error message, if any
func (p Progress) ErrorMessage() string {
	if p.Error == nil {
		return ""
	}
	return *p.Error
}

// Result is the final payload of a finished job, keyed "<analysis>|<frequency>"
type Result struct {
	JobID   string                     `json:"job_id"`
	Symbol  string                     `json:"symbol"`
	Status  Status                     `json:"status"`
	Total   int                        `json:"total"`
	Done    int                        `json:"done"`
	Error   *string                    `json:"error,omitempty"`
	Results map[string]json.RawMessage `json:"results"`
}

// Keys returns the result keys without ordering guarantees
func (r *Result) Keys() []string {
	keys := make([]string, 0, len(r.Results))
	for k := range r.Results {
		keys = append(keys, k)
	}
	return keys
}

// Symbol is one entry of the autocomplete source
type Symbol struct {
	Symbol  string   `json:"symbol"`
	Sectors []string `json:"sectors"`
}

// JobEvent is emitted once per job when it reaches a terminal state
type JobEvent struct {
	JobID      string    `json:"job_id"`
	Symbol     string    `json:"symbol"`
	Mode       Mode      `json:"mode"`
	Frequency  Frequency `json:"frequency"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	ResultKeys []string  `json:"result_keys,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// NormalizeSymbol trims and upper-cases a ticker
func NormalizeSymbol(s string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(s))
	if sym == "" {
		return "", ErrEmptySymbol
	}
	return sym, nil
}

const resultKeySep = "|"

// ResultKey builds the composite key used in result payloads
func ResultKey(analysis string, freq Frequency) string {
	return analysis + resultKeySep + string(freq)
}

// SplitResultKey splits a composite key; keys without a frequency get annual
func SplitResultKey(key string) (string, Frequency) {
	name, freq, ok := strings.Cut(key, resultKeySep)
	if !ok || freq == "" {
		return key, FrequencyAnnual
	}
	return name, Frequency(freq)
}
