package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/ring-engine/internal/alerts"
	"github.com/rawblock/ring-engine/internal/config"
	"github.com/rawblock/ring-engine/internal/metrics"
	"github.com/rawblock/ring-engine/internal/pipeline"
	"github.com/rawblock/ring-engine/internal/shadow"
	"github.com/rawblock/ring-engine/pkg/models"
)

// ReportStore is the read side of the run store.
type ReportStore interface {
	GetRun(ctx context.Context, runID string) (*models.AnalysisRun, error)
	ListRuns(ctx context.Context, page, limit int) ([]models.RunSummary, int, error)
	AccountHistory(ctx context.Context, accountID string, limit int) ([]models.AccountVerdict, error)
}

// Deps are the services the router exposes. Store may be nil when no
// database is configured; the report routes then answer 503.
type Deps struct {
	Store    ReportStore
	Analyzer *pipeline.Analyzer
	Shadow   *shadow.Runner
	Alerts   *alerts.Manager
	Hub      *Hub

	// BaseContext outlives requests; async runs are bound to it.
	BaseContext context.Context

	CacheEnabled  bool
	EventsEnabled bool
}

type APIHandler struct {
	deps      Deps
	startedAt time.Time
}

func SetupRouter(cfg *config.Config, deps Deps) *gin.Engine {
	if deps.BaseContext == nil {
		deps.BaseContext = context.Background()
	}

	r := gin.Default()
	r.Use(corsMiddleware(cfg.AllowedOrigins))

	handler := &APIHandler{deps: deps, startedAt: time.Now()}
	limiter := NewRateLimiter(cfg.RateLimitPerMin, cfg.RateLimitBurst)
	go limiter.CleanupLoop(deps.BaseContext)

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api/v1")
	{
		api.GET("/health", handler.handleHealth)
		api.GET("/stream", deps.Hub.Subscribe)
		api.GET("/analyze/progress", handler.handleProgress)
	}

	protected := api.Group("")
	protected.Use(AuthMiddleware(cfg.AuthToken))
	{
		protected.POST("/analyze", limiter.Middleware(), handler.handleAnalyze)
		protected.POST("/analyze/async", limiter.Middleware(), handler.handleAnalyzeAsync)
		protected.POST("/shadow", limiter.Middleware(), handler.handleShadow)
		protected.GET("/shadow/:experiment/drift", handler.handleShadowDrift)

		protected.GET("/reports", handler.handleListReports)
		protected.GET("/reports/:id", handler.handleGetReport)
		protected.GET("/reports/:id/download", handler.handleDownloadReport)
		protected.GET("/reports/:id/rings/:ring_id", handler.handleGetRing)
		protected.GET("/accounts/:id/history", handler.handleAccountHistory)

		protected.GET("/alerts", handler.handleAlerts)
	}

	return r
}

// corsMiddleware allows every origin when allowedOrigins is empty or "*",
// otherwise only the listed ones.
func corsMiddleware(allowedOrigins string) gin.HandlerFunc {
	allowed := make(map[string]bool)
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = true
		}
	}
	allowAll := len(allowed) == 0 || allowed["*"]

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowAll {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else if allowed[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// OriginChecker builds the websocket origin check from ALLOWED_ORIGINS.
func OriginChecker(allowedOrigins string) func(string) bool {
	if strings.TrimSpace(allowedOrigins) == "" || strings.TrimSpace(allowedOrigins) == "*" {
		return nil
	}
	allowed := make(map[string]bool)
	for _, o := range strings.Split(allowedOrigins, ",") {
		allowed[strings.TrimSpace(o)] = true
	}
	return func(origin string) bool { return allowed[origin] }
}

// handleHealth returns engine status and wiring for service discovery
func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "operational",
		"engine":         "RawBlock Ring Detection Engine",
		"uptimeSeconds":  int64(time.Since(h.startedAt).Seconds()),
		"dbConnected":    h.deps.Store != nil,
		"cacheEnabled":   h.deps.CacheEnabled,
		"eventsEnabled":  h.deps.EventsEnabled,
		"streamClients":  h.deps.Hub.ClientCount(),
		"detection":      h.deps.Analyzer.Config(),
		"analysisStatus": h.deps.Analyzer.GetProgress(),
	})
}
