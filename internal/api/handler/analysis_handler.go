package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/analysis-console/internal/analysis/domain"
	"github.com/cuongbtq/analysis-console/internal/api/apperror"
	"github.com/cuongbtq/analysis-console/internal/api/dto"
	"github.com/cuongbtq/analysis-console/internal/poller"
	"github.com/cuongbtq/analysis-console/internal/ratelimit"
	"github.com/cuongbtq/analysis-console/internal/results"
	"github.com/cuongbtq/analysis-console/internal/session"
	"github.com/gin-gonic/gin"
)

// AnalysisHandler drives the per-session reconciler
type AnalysisHandler struct {
	logger   *slog.Logger
	sessions *session.Registry
	limiter  *ratelimit.Limiter
}

// NewAnalysisHandler creates a new AnalysisHandler instance
func NewAnalysisHandler(deps *Dependencies) *AnalysisHandler {
	return &AnalysisHandler{
		logger:   deps.Logger,
		sessions: deps.Sessions,
		limiter:  deps.Limiter,
	}
}

// SubmitAnalysis handles POST /api/v1/analysis
// Starts a job for the session and supersedes the previous one
func (h *AnalysisHandler) SubmitAnalysis(c *gin.Context) {
	var req dto.SubmitAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperror.Wrap(apperror.BadRequest, "invalid request body", err))
		return
	}

	// Reject bad input before it costs a rate limit token
	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	freq, err := domain.ParseFrequency(req.Frequency)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if _, err := domain.NormalizeSymbol(req.Symbol); err != nil {
		respondError(c, h.logger, err)
		return
	}

	sid := session.ID(c)
	if !h.limiter.Allow(c.Request.Context(), sid) {
		respondError(c, h.logger, apperror.New(apperror.RateLimited, "too many analysis requests, try again shortly"))
		return
	}

	rec := h.sessions.Get(sid)
	if rec == nil {
		respondError(c, h.logger, apperror.New(apperror.Unavailable, "service is shutting down"))
		return
	}

	job, err := rec.Submit(c.Request.Context(), req.Symbol, mode, freq)
	if err != nil {
		if domain.IsPhase(err, domain.PhaseSubmit) {
			msg := rec.Snapshot().Error
			if msg == "" {
				msg = "could not start analysis"
			}
			respondError(c, h.logger, apperror.Wrap(apperror.BadGateway, msg, err))
			return
		}
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Analysis started",
		slog.String("session_id", sid),
		slog.String("job_id", job.ID),
		slog.String("symbol", job.Symbol),
		slog.String("mode", string(job.Mode)),
	)

	c.JSON(http.StatusAccepted, dto.NewAnalysisResponse(rec.Snapshot()))
}

// GetAnalysis handles GET /api/v1/analysis
func (h *AnalysisHandler) GetAnalysis(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewAnalysisResponse(h.snapshot(c)))
}

// StopAnalysis handles DELETE /api/v1/analysis
// Abandons the active job, as when the user navigates away
func (h *AnalysisHandler) StopAnalysis(c *gin.Context) {
	if rec, ok := h.sessions.Lookup(session.ID(c)); ok {
		rec.Stop()
	}
	c.Status(http.StatusNoContent)
}

// GetResults handles GET /api/v1/analysis/results
// Returns the faceted, filtered view of the finished result
func (h *AnalysisHandler) GetResults(c *gin.Context) {
	var q dto.ResultsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, h.logger, apperror.Wrap(apperror.BadRequest, "invalid query parameters", err))
		return
	}

	var freq domain.Frequency
	if f := strings.ToLower(strings.TrimSpace(q.Frequency)); f != "" && f != "all" {
		parsed, err := domain.ParseFrequency(f)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		freq = parsed
	}

	health, err := results.ParseHealth(q.Health)
	if err != nil {
		respondError(c, h.logger, apperror.Wrap(apperror.BadRequest, err.Error(), err))
		return
	}

	snap := h.snapshot(c)
	if snap.Result == nil {
		respondError(c, h.logger, apperror.New(apperror.Conflict, "no analysis result available"))
		return
	}

	entries, err := results.Build(snap.Result)
	if err != nil {
		respondError(c, h.logger, apperror.Wrap(apperror.BadGateway, "analysis result could not be read", err))
		return
	}

	view := results.Apply(entries, results.Filter{Query: q.Query, Frequency: freq, Health: health})

	resp := dto.ResultsResponse{
		JobID:       snap.Result.JobID,
		Symbol:      snap.Result.Symbol,
		Total:       view.Total,
		Matches:     make([]dto.ResultMatch, 0, len(view.Matches)),
		Frequencies: view.Frequencies,
		Health:      view.Health,
	}
	if snap.Job != nil {
		resp.Mode = snap.Job.Mode
	}
	for _, m := range view.Matches {
		resp.Matches = append(resp.Matches, dto.ResultMatch{
			Match:   m,
			Payload: snap.Result.Results[m.Key],
		})
	}

	c.JSON(http.StatusOK, resp)
}

// ListModes handles GET /api/v1/modes
func (h *AnalysisHandler) ListModes(c *gin.Context) {
	modes := domain.Modes()
	out := make([]dto.ModeDTO, 0, len(modes))
	for _, m := range modes {
		out = append(out, dto.ModeDTO{Mode: m, DisplayName: m.DisplayName(), Aggregate: m.IsAggregate()})
	}
	c.JSON(http.StatusOK, gin.H{"modes": out})
}

func (h *AnalysisHandler) snapshot(c *gin.Context) poller.Snapshot {
	if rec, ok := h.sessions.Lookup(session.ID(c)); ok {
		return rec.Snapshot()
	}
	return poller.Snapshot{State: domain.StateIdle, UpdatedAt: time.Now()}
}
