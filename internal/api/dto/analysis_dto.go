package dto

import (
	"encoding/json"

	"github.com/cuongbtq/analysis-console/internal/analysis/domain"
	"github.com/cuongbtq/analysis-console/internal/history"
	"github.com/cuongbtq/analysis-console/internal/poller"
	"github.com/cuongbtq/analysis-console/internal/results"
)

type SubmitAnalysisRequest struct {
	Symbol    string `json:"symbol" binding:"required"`
	Mode      string `json:"mode" binding:"required"`
	Frequency string `json:"frequency"`
}

// AnalysisResponse is the live snapshot without the result payload
type AnalysisResponse struct {
	poller.Snapshot
	HasResult bool `json:"has_result"`
}

// NewAnalysisResponse strips the result from s
func NewAnalysisResponse(s poller.Snapshot) AnalysisResponse {
	resp := AnalysisResponse{Snapshot: s, HasResult: s.Result != nil}
	resp.Result = nil
	return resp
}

type ResultsQuery struct {
	Query     string `form:"q"`
	Frequency string `form:"frequency"`
	Health    string `form:"health"`
}

type ResultMatch struct {
	results.Match
	Payload json.RawMessage `json:"payload"`
}

type ResultsResponse struct {
	JobID       string                   `json:"job_id"`
	Symbol      string                   `json:"symbol"`
	Mode        domain.Mode              `json:"mode"`
	Total       int                      `json:"total"`
	Matches     []ResultMatch            `json:"matches"`
	Frequencies map[domain.Frequency]int `json:"frequencies"`
	Health      map[results.Health]int   `json:"health"`
}

type SymbolsQuery struct {
	Query string `form:"q"`
	Limit int    `form:"limit"`
}

type SymbolsResponse struct {
	Symbols []domain.Symbol `json:"symbols"`
}

type ModeDTO struct {
	Mode        domain.Mode `json:"mode"`
	DisplayName string      `json:"display_name"`
	Aggregate   bool        `json:"aggregate"`
}

type ListHistoryRequest struct {
	Symbol   string `form:"symbol"`
	Mode     string `form:"mode"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListHistoryResponse struct {
	Jobs       []history.Record `json:"jobs"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
