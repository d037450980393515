package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/analysis-console/internal/analysis/domain"
	"github.com/cuongbtq/analysis-console/internal/api/apperror"
	"github.com/cuongbtq/analysis-console/internal/api/dto"
	"github.com/cuongbtq/analysis-console/internal/history"
	"github.com/gin-gonic/gin"
)

const maxSymbolLimit = 50

// CatalogHandler serves symbol autocomplete, job history and health
type CatalogHandler struct {
	logger      *slog.Logger
	serviceName string
	symbols     SymbolSearcher
	history     HistoryLister
	backend     HealthChecker
	database    HealthChecker
}

// NewCatalogHandler creates a new CatalogHandler instance
func NewCatalogHandler(deps *Dependencies) *CatalogHandler {
	return &CatalogHandler{
		logger:      deps.Logger,
		serviceName: deps.ServiceName,
		symbols:     deps.Symbols,
		history:     deps.History,
		backend:     deps.Backend,
		database:    deps.Database,
	}
}

// SearchSymbols handles GET /api/v1/symbols
func (h *CatalogHandler) SearchSymbols(c *gin.Context) {
	var q dto.SymbolsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, h.logger, apperror.Wrap(apperror.BadRequest, "invalid query parameters", err))
		return
	}
	if q.Limit > maxSymbolLimit {
		q.Limit = maxSymbolLimit
	}

	list, err := h.symbols.Search(c.Request.Context(), q.Query, q.Limit)
	if err != nil {
		respondError(c, h.logger, apperror.Wrap(apperror.BadGateway, "could not load symbols", err))
		return
	}

	c.JSON(http.StatusOK, dto.SymbolsResponse{Symbols: list})
}

// ListHistory handles GET /api/v1/history
// Lists recorded jobs newest first with cursor pagination
func (h *CatalogHandler) ListHistory(c *gin.Context) {
	if h.history == nil {
		respondError(c, h.logger, apperror.New(apperror.Unavailable, "history is disabled"))
		return
	}

	var req dto.ListHistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondError(c, h.logger, apperror.Wrap(apperror.BadRequest, "invalid query parameters", err))
		return
	}

	if req.Mode != "" {
		mode, err := domain.ParseMode(req.Mode)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		req.Mode = string(mode)
	}
	if req.Status != "" && !domain.Status(req.Status).IsTerminal() {
		respondError(c, h.logger, apperror.New(apperror.BadRequest, "status must be done or error"))
		return
	}

	cursor, err := history.DecodeCursor(req.Cursor)
	if err != nil {
		respondError(c, h.logger, apperror.Wrap(apperror.BadRequest, "invalid cursor", err))
		return
	}

	records, err := h.history.List(c.Request.Context(), history.Filter{
		Symbol:   req.Symbol,
		Mode:     req.Mode,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	page, next := history.Page(records, req.PageSize)
	if page == nil {
		page = []history.Record{}
	}

	c.JSON(http.StatusOK, dto.ListHistoryResponse{Jobs: page, NextCursor: next})
}

// Health handles GET /health
// The service is healthy on its own; dependency reachability is reported alongside
func (h *CatalogHandler) Health(c *gin.Context) {
	resp := gin.H{
		"status":  "healthy",
		"service": h.serviceName,
		"backend": h.check(c.Request.Context(), "analysis backend", h.backend),
	}
	if h.database != nil {
		resp["database"] = h.check(c.Request.Context(), "database", h.database)
	}

	c.JSON(http.StatusOK, resp)
}

func (h *CatalogHandler) check(ctx context.Context, name string, hc HealthChecker) string {
	if hc == nil {
		return "ok"
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := hc.Health(ctx); err != nil {
		h.logger.Warn("Health check failed",
			slog.String("dependency", name),
			slog.String("error", err.Error()),
		)
		return "unreachable"
	}
	return "ok"
}
