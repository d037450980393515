package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/analysis-console/internal/analysis/domain"
	"github.com/cuongbtq/analysis-console/internal/api/apperror"
	"github.com/cuongbtq/analysis-console/internal/api/dto"
	"github.com/cuongbtq/analysis-console/internal/history"
	"github.com/cuongbtq/analysis-console/internal/ratelimit"
	"github.com/cuongbtq/analysis-console/internal/session"
	"github.com/gin-gonic/gin"
)

// SymbolSearcher serves symbol autocomplete
type SymbolSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]domain.Symbol, error)
}

// HistoryLister pages through recorded jobs
type HistoryLister interface {
	List(ctx context.Context, filter history.Filter) ([]history.Record, error)
}

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	ServiceName string
	Sessions    *session.Registry
	Symbols     SymbolSearcher
	History     HistoryLister // nil when history is disabled
	Limiter     *ratelimit.Limiter
	Backend     HealthChecker
	Database    HealthChecker // nil when history is disabled
}

// respondError writes err as a coded JSON error and aborts the request
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	ae := apperror.FromDomain(err)
	status := ae.HTTPStatus()

	if status >= 500 {
		logger.Error("Request failed",
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.String("error", ae.Error()),
		)
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, dto.ErrorResponse{
		Error: ae.Message(),
		Code:  string(ae.Code()),
	})
}
