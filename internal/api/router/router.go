package router

import (
	"time"

	"github.com/cuongbtq/analysis-console/internal/api/handler"
	"github.com/cuongbtq/analysis-console/internal/session"
	"github.com/cuongbtq/analysis-console/internal/telemetry"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Options holds the HTTP-level settings of the router
type Options struct {
	Session          session.CookieConfig
	AllowedOrigins   []string
	AllowCredentials bool
	CORSMaxAge       time.Duration
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, opts *Options) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(corsMiddleware(opts))

	catalog := handler.NewCatalogHandler(deps)
	analysis := handler.NewAnalysisHandler(deps)

	r.GET("/health", catalog.Health)
	r.GET("/metrics", gin.WrapH(telemetry.Handler()))

	// API v1 routes
	v1 := r.Group("/api/v1")
	v1.Use(session.Middleware(opts.Session)...)
	{
		v1.GET("/modes", analysis.ListModes)
		v1.GET("/symbols", catalog.SearchSymbols)
		v1.GET("/history", catalog.ListHistory)

		a := v1.Group("/analysis")
		{
			// POST /api/v1/analysis - Submit a symbol, superseding the active job
			a.POST("", analysis.SubmitAnalysis)

			// GET /api/v1/analysis - Current job snapshot
			a.GET("", analysis.GetAnalysis)

			// DELETE /api/v1/analysis - Abandon the active job
			a.DELETE("", analysis.StopAnalysis)

			// GET /api/v1/analysis/results - Faceted view of the finished result
			a.GET("/results", analysis.GetResults)
		}
	}

	return r
}

func corsMiddleware(opts *Options) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	if len(opts.AllowedOrigins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = opts.AllowedOrigins
		cfg.AllowCredentials = opts.AllowCredentials
	}
	cfg.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", RequestIDHeader}
	cfg.ExposeHeaders = []string{RequestIDHeader}
	if opts.CORSMaxAge > 0 {
		cfg.MaxAge = opts.CORSMaxAge
	}
	return cors.New(cfg)
}
