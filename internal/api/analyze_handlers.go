package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/ring-engine/internal/ingest"
	"github.com/rawblock/ring-engine/internal/metrics"
	"github.com/rawblock/ring-engine/internal/pipeline"
	"github.com/rawblock/ring-engine/internal/shadow"
)

// POST /api/v1/analyze
// Runs detection synchronously and returns the full report.
func (h *APIHandler) handleAnalyze(c *gin.Context) {
	txs, source, err := readBatch(c)
	if err != nil {
		respondInputError(c, err)
		return
	}

	res, err := h.deps.Analyzer.Analyze(c.Request.Context(), txs, source)
	if err != nil {
		metrics.RecordFailure()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Analysis failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id": res.Run.RunID,
		"cached": res.Cached,
		"report": res.Run.Report,
	})
}

// POST /api/v1/analyze/async
// Starts a background run; poll /analyze/progress, then fetch /reports/:id.
func (h *APIHandler) handleAnalyzeAsync(c *gin.Context) {
	txs, source, err := readBatch(c)
	if err != nil {
		respondInputError(c, err)
		return
	}

	runID, err := h.deps.Analyzer.AnalyzeAsync(h.deps.BaseContext, txs, source)
	if errors.Is(err, pipeline.ErrRunInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start analysis", "details": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":       "analysis_started",
		"run_id":       runID,
		"transactions": len(txs),
	})
}

// GET /api/v1/analyze/progress
func (h *APIHandler) handleProgress(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Analyzer.GetProgress())
}

// POST /api/v1/shadow
// { "experiment": "...", "transactions": [...], "shadow_config": {...} }
func (h *APIHandler) handleShadow(c *gin.Context) {
	if h.deps.Shadow == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Shadow runner not initialized"})
		return
	}

	var req struct {
		Experiment   string           `json:"experiment"`
		Transactions []ingest.Record  `json:"transactions" binding:"required"`
		ShadowConfig shadow.Overrides `json:"shadow_config"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInputError(c, err)
		return
	}

	txs, err := ingest.ParseRecords(req.Transactions)
	if err != nil {
		respondInputError(c, err)
		return
	}

	shadowCfg, err := req.ShadowConfig.Apply(h.deps.Analyzer.Config())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid shadow_config", "details": err.Error()})
		return
	}

	result, err := h.deps.Shadow.Run(c.Request.Context(), req.Experiment, txs, shadowCfg)
	if err != nil && result == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Shadow run failed", "details": err.Error()})
		return
	}
	if err != nil {
		log.Printf("[Shadow] %v", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"comparison": result,
		"persisted":  err == nil && h.deps.Store != nil,
	})
}

// GET /api/v1/shadow/:experiment/drift
func (h *APIHandler) handleShadowDrift(c *gin.Context) {
	if h.deps.Shadow == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Shadow runner not initialized"})
		return
	}

	drift, err := h.deps.Shadow.Drift(c.Request.Context(), c.Param("experiment"))
	if errors.Is(err, shadow.ErrNoStore) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database not connected"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute drift", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, drift)
}
