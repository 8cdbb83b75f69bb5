package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawblock/ring-engine/internal/alerts"
	"github.com/rawblock/ring-engine/internal/config"
	"github.com/rawblock/ring-engine/internal/db"
	"github.com/rawblock/ring-engine/internal/heuristics"
	"github.com/rawblock/ring-engine/internal/pipeline"
	"github.com/rawblock/ring-engine/internal/shadow"
	"github.com/rawblock/ring-engine/pkg/models"
)

const triangleCSV = "transaction_id,sender_id,receiver_id,amount,timestamp\n" +
	"T1,A,B,500,2024-03-01 09:00:00\n" +
	"T2,B,C,480,2024-03-01 10:00:00\n" +
	"T3,C,A,460,2024-03-01 11:00:00\n"

type memStore struct {
	mu   sync.Mutex
	runs map[string]*models.AnalysisRun
}

func newMemStore() *memStore {
	return &memStore{runs: make(map[string]*models.AnalysisRun)}
}

func (s *memStore) SaveRun(_ context.Context, run *models.AnalysisRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.RunID] = run
	return nil
}

func (s *memStore) GetRun(_ context.Context, id string) (*models.AnalysisRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return run, nil
}

func (s *memStore) ListRuns(_ context.Context, page, limit int) ([]models.RunSummary, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RunSummary, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r.Summary())
	}
	return out, len(s.runs), nil
}

func (s *memStore) AccountHistory(_ context.Context, accountID string, _ int) ([]models.AccountVerdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AccountVerdict, 0)
	for _, r := range s.runs {
		for _, a := range r.Report.SuspiciousAccounts {
			if a.AccountID == accountID {
				out = append(out, models.AccountVerdict{RunID: r.RunID, CreatedAt: r.CreatedAt, SuspiciousAccount: a})
			}
		}
	}
	return out, nil
}

type testEnv struct {
	router *gin.Engine
	store  *memStore
	alerts *alerts.Manager
}

func newTestEnv(t *testing.T, withStore bool, mutate func(*config.Config)) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{RateLimitPerMin: 600, RateLimitBurst: 100, Detection: heuristics.DefaultDetectionConfig()}
	if mutate != nil {
		mutate(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(nil)
	alertMgr := alerts.NewManager(BroadcastRingAlert(hub))
	env := testEnv{alerts: alertMgr}

	opts := []pipeline.Option{pipeline.WithAlerts(alertMgr), pipeline.WithCompletionHook(BroadcastRunCompleted(hub))}
	deps := Deps{Alerts: alertMgr, Hub: hub, BaseContext: ctx}
	if withStore {
		env.store = newMemStore()
		opts = append(opts, pipeline.WithStore(env.store))
		deps.Store = env.store
	}

	analyzer, err := pipeline.NewAnalyzer(cfg.Detection, opts...)
	require.NoError(t, err)
	deps.Analyzer = analyzer
	deps.Shadow = shadow.NewRunner(nil, cfg.Detection)

	env.router = SetupRouter(cfg, deps)
	return env
}

func (e testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func csvUpload(t *testing.T, body string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "transactions.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(method, path string, v interface{}) *http.Request {
	body, _ := json.Marshal(v)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type analyzeResponse struct {
	RunID  string                 `json:"run_id"`
	Cached bool                   `json:"cached"`
	Report models.DetectionReport `json:"report"`
}

func TestAnalyze_CSVUpload(t *testing.T) {
	env := newTestEnv(t, false, nil)

	w := env.do(csvUpload(t, triangleCSV))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp analyzeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)
	assert.False(t, resp.Cached)
	require.Len(t, resp.Report.FraudRings, 1)
	assert.Equal(t, "RING_001", resp.Report.FraudRings[0].RingID)
	assert.Equal(t, models.PatternCycle, resp.Report.FraudRings[0].PatternType)
	assert.Len(t, resp.Report.SuspiciousAccounts, 3)
}

func TestAnalyze_JSONBody(t *testing.T) {
	env := newTestEnv(t, false, nil)

	w := env.do(jsonRequest(http.MethodPost, "/api/v1/analyze", gin.H{
		"transactions": []gin.H{
			{"transaction_id": "T1", "sender_id": "A", "receiver_id": "B", "amount": "10", "timestamp": "2024-03-01 09:00:00"},
		},
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp analyzeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Report.FraudRings)
	assert.Equal(t, 2, resp.Report.Summary.TotalAccountsAnalyzed)
	assert.Contains(t, w.Body.String(), `"fraud_rings":[]`)
}

func TestAnalyze_JSONNumericAmounts(t *testing.T) {
	env := newTestEnv(t, false, nil)

	body := `{"transactions":[
		{"transaction_id":"T1","sender_id":"A","receiver_id":"B","amount":125.5,"timestamp":"2024-03-01 09:00:00"},
		{"transaction_id":"T2","sender_id":"B","receiver_id":"C","amount":"99.10","timestamp":"2024-03-01 10:00:00"},
		{"transaction_id":"T3","sender_id":"C","receiver_id":"A","amount":42,"timestamp":"2024-03-01 11:00:00"}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := env.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp analyzeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Report.FraudRings, 1)
	assert.Equal(t, models.PatternCycle, resp.Report.FraudRings[0].PatternType)

	t.Run("non-numeric amount", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(
			`{"transactions":[{"transaction_id":"T1","sender_id":"A","receiver_id":"B","amount":true,"timestamp":"2024-03-01 09:00:00"}]}`))
		req.Header.Set("Content-Type", "application/json")

		w := env.do(req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), `"field":"amount"`)
	})
}

func TestAnalyze_InputErrors(t *testing.T) {
	env := newTestEnv(t, false, nil)

	t.Run("missing columns", func(t *testing.T) {
		w := env.do(csvUpload(t, "transaction_id,sender_id,amount\nT1,A,10\n"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "receiver_id")
	})

	t.Run("bad timestamp", func(t *testing.T) {
		w := env.do(csvUpload(t, "transaction_id,sender_id,receiver_id,amount,timestamp\nT1,A,B,10,yesterday\n"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), `"field":"timestamp"`)
	})

	t.Run("no transactions key", func(t *testing.T) {
		w := env.do(jsonRequest(http.MethodPost, "/api/v1/analyze", gin.H{"rows": 1}))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, false, func(c *config.Config) { c.AuthToken = "s3cret" })

	w := env.do(csvUpload(t, triangleCSV))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := csvUpload(t, triangleCSV)
	req.Header.Set("Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusForbidden, env.do(req).Code)

	req = csvUpload(t, triangleCSV)
	req.Header.Set("Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, env.do(req).Code)

	health := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, health.Code, "health is public")
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, false, func(c *config.Config) {
		c.RateLimitPerMin = 1
		c.RateLimitBurst = 1
	})

	assert.Equal(t, http.StatusOK, env.do(csvUpload(t, triangleCSV)).Code)

	w := env.do(csvUpload(t, triangleCSV))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestReports_WithoutDatabase(t *testing.T) {
	env := newTestEnv(t, false, nil)

	for _, path := range []string{"/api/v1/reports", "/api/v1/reports/2b0c1c4e-7c59-4b8e-8f1e-3f7a4d2b9a10/download"} {
		w := env.do(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
}

func TestReports_StoredRunAndDownload(t *testing.T) {
	env := newTestEnv(t, true, nil)

	w := env.do(csvUpload(t, triangleCSV))
	require.Equal(t, http.StatusOK, w.Code)
	var resp analyzeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	get := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+resp.RunID, nil))
	require.Equal(t, http.StatusOK, get.Code)
	var run models.AnalysisRun
	require.NoError(t, json.Unmarshal(get.Body.Bytes(), &run))
	assert.Equal(t, resp.RunID, run.RunID)
	assert.Equal(t, models.SourceUpload, run.Source)

	dl := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+resp.RunID+"/download", nil))
	require.Equal(t, http.StatusOK, dl.Code)
	assert.Equal(t, fmt.Sprintf(`attachment; filename="fraud_report_%s.json"`, resp.RunID), dl.Header().Get("Content-Disposition"))
	var report models.DetectionReport
	require.NoError(t, json.Unmarshal(dl.Body.Bytes(), &report))
	assert.Len(t, report.FraudRings, 1)

	ring := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+resp.RunID+"/rings/RING_001", nil))
	require.Equal(t, http.StatusOK, ring.Code)
	assert.Contains(t, ring.Body.String(), `"pattern_type":"cycle"`)
	assert.Equal(t, http.StatusNotFound,
		env.do(httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+resp.RunID+"/rings/RING_999", nil)).Code)

	list := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/reports?page=1&limit=10", nil))
	require.Equal(t, http.StatusOK, list.Code)
	assert.Contains(t, list.Body.String(), `"totalCount":1`)

	history := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/accounts/A/history", nil))
	require.Equal(t, http.StatusOK, history.Code)
	assert.Contains(t, history.Body.String(), "cycle_length_3")
	var hist struct {
		History []models.AccountVerdict `json:"history"`
	}
	require.NoError(t, json.Unmarshal(history.Body.Bytes(), &hist))
	require.Len(t, hist.History, 1)
	assert.Equal(t, resp.RunID, hist.History[0].RunID)
	assert.Equal(t, "A", hist.History[0].AccountID)
	assert.False(t, hist.History[0].CreatedAt.IsZero())
}

func TestReports_NotFound(t *testing.T) {
	env := newTestEnv(t, true, nil)

	assert.Equal(t, http.StatusNotFound,
		env.do(httptest.NewRequest(http.MethodGet, "/api/v1/reports/2b0c1c4e-7c59-4b8e-8f1e-3f7a4d2b9a10", nil)).Code)
	assert.Equal(t, http.StatusNotFound,
		env.do(httptest.NewRequest(http.MethodGet, "/api/v1/reports/not-a-uuid", nil)).Code)
}

func TestAlerts_RaisedByAnalysis(t *testing.T) {
	env := newTestEnv(t, false, nil)
	require.Equal(t, http.StatusOK, env.do(csvUpload(t, triangleCSV)).Code)

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/alerts?min_severity=high", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data  []alerts.Alert `json:"data"`
		Count int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "RING_001", body.Data[0].RingID)
	assert.Equal(t, alerts.SeverityHigh, body.Data[0].Severity)

	bad := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/alerts?min_severity=urgent", nil))
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestShadow_StricterThreshold(t *testing.T) {
	env := newTestEnv(t, false, nil)

	records := make([]gin.H, 0, 10)
	for i := 0; i < 10; i++ {
		records = append(records, gin.H{
			"transaction_id": fmt.Sprintf("T%d", i),
			"sender_id":      fmt.Sprintf("S%02d", i),
			"receiver_id":    "HUB",
			"amount":         "900",
			"timestamp":      fmt.Sprintf("2024-03-01 %02d:00:00", i),
		})
	}

	w := env.do(jsonRequest(http.MethodPost, "/api/v1/shadow", gin.H{
		"experiment":    "smurf-11",
		"transactions":  records,
		"shadow_config": gin.H{"smurf_threshold": 11},
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Comparison models.ShadowComparison `json:"comparison"`
		Persisted  bool                    `json:"persisted"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Comparison.Diverged)
	assert.Equal(t, 11, body.Comparison.ProductionFlagged)
	assert.Equal(t, 0, body.Comparison.ShadowFlagged)
	assert.False(t, body.Persisted)

	bad := env.do(jsonRequest(http.MethodPost, "/api/v1/shadow", gin.H{
		"transactions":  records,
		"shadow_config": gin.H{"smurf_window": "soon"},
	}))
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestProgressAndHealth(t *testing.T) {
	env := newTestEnv(t, false, nil)

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/analyze/progress", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"is_running":false`)

	h := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, h.Code)
	assert.True(t, strings.Contains(h.Body.String(), `"dbConnected":false`))
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, false, func(c *config.Config) { c.AllowedOrigins = "https://dash.example" })

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/analyze", nil)
	req.Header.Set("Origin", "https://dash.example")
	w := env.do(req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://dash.example", w.Header().Get("Access-Control-Allow-Origin"))
}
