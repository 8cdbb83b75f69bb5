package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rawblock/ring-engine/internal/alerts"
	"github.com/rawblock/ring-engine/internal/db"
	"github.com/rawblock/ring-engine/pkg/models"
)

// GET /api/v1/reports?page=1&limit=50
func (h *APIHandler) handleListReports(c *gin.Context) {
	if h.deps.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database not connected"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	page, limit = db.NormalizePage(page, limit)

	runs, totalCount, err := h.deps.Store.ListRuns(c.Request.Context(), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list reports", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       runs,
		"totalCount": totalCount,
		"page":       page,
		"limit":      limit,
	})
}

// GET /api/v1/reports/:id
func (h *APIHandler) handleGetReport(c *gin.Context) {
	run, ok := h.loadRun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, run)
}

// GET /api/v1/reports/:id/rings/:ring_id
func (h *APIHandler) handleGetRing(c *gin.Context) {
	run, ok := h.loadRun(c)
	if !ok {
		return
	}

	var ring *models.Ring
	if run.Report != nil {
		ring = run.Report.FindRing(c.Param("ring_id"))
	}
	if ring == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Ring not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": run.RunID, "ring": ring})
}

// GET /api/v1/reports/:id/download
// Serves the report JSON as a file attachment.
func (h *APIHandler) handleDownloadReport(c *gin.Context) {
	run, ok := h.loadRun(c)
	if !ok {
		return
	}

	body, err := json.MarshalIndent(run.Report, "", "  ")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encode report"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="fraud_report_%s.json"`, run.RunID))
	c.Data(http.StatusOK, "application/json", body)
}

// GET /api/v1/accounts/:id/history?limit=50
// Lists the stored verdicts for one account across runs.
func (h *APIHandler) handleAccountHistory(c *gin.Context) {
	if h.deps.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database not connected"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	history, err := h.deps.Store.AccountHistory(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load account history", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"account_id": c.Param("id"), "history": history})
}

// GET /api/v1/alerts?limit=100&min_severity=high
func (h *APIHandler) handleAlerts(c *gin.Context) {
	if h.deps.Alerts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Alert manager not initialized"})
		return
	}

	minSeverity := c.Query("min_severity")
	if minSeverity != "" && !alerts.ValidSeverity(minSeverity) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown severity", "details": minSeverity})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	recent := h.deps.Alerts.Recent(limit, minSeverity)
	c.JSON(http.StatusOK, gin.H{"data": recent, "count": len(recent)})
}

// loadRun resolves :id and writes the error response itself on failure.
func (h *APIHandler) loadRun(c *gin.Context) (*models.AnalysisRun, bool) {
	if h.deps.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database not connected"})
		return nil, false
	}

	runID := c.Param("id")
	if _, err := uuid.Parse(runID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
		return nil, false
	}

	run, err := h.deps.Store.GetRun(c.Request.Context(), runID)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load report", "details": err.Error()})
		return nil, false
	}
	return run, true
}
