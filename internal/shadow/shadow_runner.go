package shadow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rawblock/ring-engine/internal/cache"
	"github.com/rawblock/ring-engine/internal/heuristics"
	"github.com/rawblock/ring-engine/pkg/models"
)

// ResultStore persists shadow comparisons, never production results.
type ResultStore interface {
	SaveShadowResult(ctx context.Context, c *models.ShadowComparison) error
	ShadowDrift(ctx context.Context, experiment string) (*models.DriftReport, error)
}

// ErrNoStore is returned by Drift when no result store is configured.
var ErrNoStore = errors.New("shadow result store not configured")

// Runner executes an experimental detection config next to the production
// config on the same batch. Shadow output only feeds comparisons; it never
// reaches reports, alerts or events.
type Runner struct {
	store      ResultStore
	production heuristics.DetectionConfig
	evaluator  *Evaluator
}

// NewRunner creates a runner. store may be nil.
func NewRunner(store ResultStore, production heuristics.DetectionConfig) *Runner {
	return &Runner{
		store:      store,
		production: production,
		evaluator:  NewEvaluator(),
	}
}

// Run executes both configs concurrently and persists the comparison.
func (r *Runner) Run(ctx context.Context, experiment string, txs []models.Transaction, shadowCfg heuristics.DetectionConfig) (*models.ShadowComparison, error) {
	if experiment == "" {
		experiment = "default"
	}
	if err := shadowCfg.Validate(); err != nil {
		return nil, fmt.Errorf("shadow config: %w", err)
	}

	var prodReport, shadowReport models.DetectionReport
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		prodReport = heuristics.RunDetection(txs, r.production)
	}()
	go func() {
		defer wg.Done()
		shadowReport = heuristics.RunDetection(txs, shadowCfg)
	}()
	wg.Wait()

	result := r.evaluator.Compare(&prodReport, &shadowReport)
	result.Experiment = experiment
	result.Fingerprint = cache.Fingerprint(txs, shadowCfg)
	result.CreatedAt = time.Now().UTC()

	if result.Diverged {
		log.Printf("[Shadow] DIVERGENCE in %s: flagged %d→%d rings %d→%d ARI=%.3f (+%d/-%d accounts)",
			experiment, result.ProductionFlagged, result.ShadowFlagged,
			result.ProductionRings, result.ShadowRings, result.AdjustedRandIndex,
			len(result.OnlyShadow), len(result.OnlyProduction))
	}

	if r.store != nil {
		if err := r.store.SaveShadowResult(ctx, &result); err != nil {
			return &result, fmt.Errorf("persist shadow result: %w", err)
		}
	}
	return &result, nil
}

// Drift aggregates stored comparisons for an experiment.
func (r *Runner) Drift(ctx context.Context, experiment string) (*models.DriftReport, error) {
	if r.store == nil {
		return nil, ErrNoStore
	}
	return r.store.ShadowDrift(ctx, experiment)
}
