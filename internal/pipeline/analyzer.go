package pipeline

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/ring-engine/internal/cache"
	"github.com/rawblock/ring-engine/internal/heuristics"
	"github.com/rawblock/ring-engine/internal/metrics"
	"github.com/rawblock/ring-engine/pkg/models"
)

// Analyzer runs detection over a parsed batch and fans the finished run out
// to the optional collaborators: report cache, run store, event publisher,
// alerts and a completion hook for live dashboards. Every collaborator is
// best-effort; a failing one is logged and the report is still returned.
type Analyzer struct {
	cfg        heuristics.DetectionConfig
	store      RunStore
	cache      ReportCache
	publisher  EventPublisher
	alerts     AlertEmitter
	onComplete func(models.AnalysisRun)
	now        func() time.Time

	// Progress tracking (atomic for safe concurrent reads)
	isRunning    atomic.Bool
	currentRunID atomic.Value // string
	totalRuns    atomic.Int64
	inFlightTx   atomic.Int64

	mu        sync.RWMutex
	lastRunID string
	lastError string
}

// RunStore persists completed runs.
type RunStore interface {
	SaveRun(ctx context.Context, run *models.AnalysisRun) error
}

// ReportCache replays runs for identical input.
type ReportCache interface {
	Get(ctx context.Context, fingerprint string) (*models.AnalysisRun, bool, error)
	Set(ctx context.Context, run *models.AnalysisRun) error
}

// EventPublisher emits ring and run events downstream.
type EventPublisher interface {
	PublishRun(ctx context.Context, run *models.AnalysisRun) error
}

// AlertEmitter turns a report's rings into alerts.
type AlertEmitter interface {
	EmitFromReport(runID string, report *models.DetectionReport) int
}

// ErrRunInProgress is returned when an async run is requested while one is active.
var ErrRunInProgress = errors.New("analysis already in progress")

// Result is the outcome of a synchronous analysis.
type Result struct {
	Run    *models.AnalysisRun
	Cached bool
}

// Progress is the async runner's state for the API.
type Progress struct {
	IsRunning    bool   `json:"is_running"`
	CurrentRunID string `json:"current_run_id,omitempty"`
	InFlightTx   int64  `json:"in_flight_transactions"`
	TotalRuns    int64  `json:"total_runs"`
	LastRunID    string `json:"last_run_id,omitempty"`
	LastError    string `json:"last_error,omitempty"`
}

type Option func(*Analyzer)

func WithStore(s RunStore) Option { return func(a *Analyzer) { a.store = s } }
func WithCache(c ReportCache) Option { return func(a *Analyzer) { a.cache = c } }
func WithPublisher(p EventPublisher) Option { return func(a *Analyzer) { a.publisher = p } }
func WithAlerts(e AlertEmitter) Option { return func(a *Analyzer) { a.alerts = e } }
func WithClock(now func() time.Time) Option { return func(a *Analyzer) { a.now = now } }
func WithCompletionHook(fn func(models.AnalysisRun)) Option {
	return func(a *Analyzer) { a.onComplete = fn }
}

// NewAnalyzer validates cfg and builds an analyzer with the given collaborators.
func NewAnalyzer(cfg heuristics.DetectionConfig, opts ...Option) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Analyzer{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	a.currentRunID.Store("")
	return a, nil
}

// Config returns the production detection config.
func (a *Analyzer) Config() heuristics.DetectionConfig {
	return a.cfg
}

// Analyze runs detection synchronously. An identical earlier batch is
// served from the cache with its original run ID.
func (a *Analyzer) Analyze(ctx context.Context, txs []models.Transaction, source string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fingerprint := cache.Fingerprint(txs, a.cfg)
	if a.cache != nil {
		cached, ok, err := a.cache.Get(ctx, fingerprint)
		if err != nil {
			log.Printf("[Cache] Lookup failed, computing fresh: %v", err)
		}
		metrics.RecordCacheLookup(ok)
		if ok {
			log.Printf("[Pipeline] Cache hit for run %s (%d transactions)", cached.RunID, len(txs))
			return &Result{Run: cached, Cached: true}, nil
		}
	}

	run := a.run(ctx, uuid.NewString(), fingerprint, txs, source)
	return &Result{Run: run}, nil
}

// AnalyzeAsync starts a run in the background and returns its ID. ctx must
// outlive the calling request. Only one async run is active at a time.
func (a *Analyzer) AnalyzeAsync(ctx context.Context, txs []models.Transaction, source string) (string, error) {
	if !a.isRunning.CompareAndSwap(false, true) {
		log.Println("[Pipeline] Run already in progress, rejecting async request")
		return "", ErrRunInProgress
	}

	runID := uuid.NewString()
	a.currentRunID.Store(runID)
	a.inFlightTx.Store(int64(len(txs)))

	go func() {
		defer func() {
			a.currentRunID.Store("")
			a.inFlightTx.Store(0)
			a.isRunning.Store(false)
		}()

		if err := ctx.Err(); err != nil {
			log.Printf("[Pipeline] Async run %s cancelled before start", runID)
			a.setLast(runID, err.Error())
			metrics.RecordFailure()
			return
		}
		a.run(ctx, runID, cache.Fingerprint(txs, a.cfg), txs, source)
	}()

	return runID, nil
}

// GetProgress returns the current async state (thread-safe)
func (a *Analyzer) GetProgress() Progress {
	a.mu.RLock()
	lastRunID, lastError := a.lastRunID, a.lastError
	a.mu.RUnlock()

	return Progress{
		IsRunning:    a.isRunning.Load(),
		CurrentRunID: a.currentRunID.Load().(string),
		InFlightTx:   a.inFlightTx.Load(),
		TotalRuns:    a.totalRuns.Load(),
		LastRunID:    lastRunID,
		LastError:    lastError,
	}
}

func (a *Analyzer) run(ctx context.Context, runID, fingerprint string, txs []models.Transaction, source string) *models.AnalysisRun {
	log.Printf("[Pipeline] Run %s: analyzing %d transactions (%s)", runID, len(txs), source)

	report := heuristics.RunDetection(txs, a.cfg)
	run := &models.AnalysisRun{
		RunID:            runID,
		CreatedAt:        a.now().UTC(),
		Source:           source,
		TransactionCount: len(txs),
		Fingerprint:      fingerprint,
		Report:           &report,
	}

	metrics.RecordReport(len(txs), run.Report)
	a.totalRuns.Add(1)

	log.Printf("[Pipeline] Run %s: %d accounts, %d rings, %d flagged in %.2fs",
		runID, report.Summary.TotalAccountsAnalyzed, report.Summary.FraudRingsDetected,
		report.Summary.SuspiciousAccountsFlagged, report.Summary.ProcessingTimeSeconds)

	var lastErr string
	if a.store != nil {
		if err := a.store.SaveRun(ctx, run); err != nil {
			log.Printf("[Pipeline] Failed to persist run %s: %v", runID, err)
			lastErr = err.Error()
		}
	}
	if a.cache != nil {
		if err := a.cache.Set(ctx, run); err != nil {
			log.Printf("[Cache] Failed to store run %s: %v", runID, err)
		}
	}
	if a.publisher != nil {
		if err := a.publisher.PublishRun(ctx, run); err != nil {
			log.Printf("[Pipeline] Failed to publish run %s: %v", runID, err)
		}
	}
	// Completion goes out before ring alerts so listeners see the run first
	if a.onComplete != nil {
		a.onComplete(*run)
	}
	if a.alerts != nil {
		a.alerts.EmitFromReport(runID, run.Report)
	}

	a.setLast(runID, lastErr)
	return run
}

func (a *Analyzer) setLast(runID, errMsg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastRunID = runID
	a.lastError = errMsg
}
