package shadow

import (
	"github.com/rawblock/ring-engine/internal/metrics"
	"github.com/rawblock/ring-engine/pkg/models"
)

// Evaluator measures structural divergence between a production report and
// a shadow report over the same batch. Ring IDs are not comparable across
// runs, so accounts are compared by how they are grouped (ARI, VI) and by
// which of them are flagged (Jaccard).
type Evaluator struct{}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Labeling maps every flagged account to the ring that owns it.
func (e *Evaluator) Labeling(report *models.DetectionReport) metrics.Labeling {
	labels := make(metrics.Labeling, len(report.SuspiciousAccounts))
	for _, acc := range report.SuspiciousAccounts {
		labels[acc.AccountID] = acc.RingID
	}
	return labels
}

// Compare fills a comparison from two reports. Experiment, fingerprint and
// timestamp are left to the caller.
func (e *Evaluator) Compare(prod, shadow *models.DetectionReport) models.ShadowComparison {
	prodFlagged := flaggedIDs(prod)
	shadowFlagged := flaggedIDs(shadow)

	c := models.ShadowComparison{
		ProductionFlagged: len(prodFlagged),
		ShadowFlagged:     len(shadowFlagged),
		ProductionRings:   len(prod.FraudRings),
		ShadowRings:       len(shadow.FraudRings),
		AdjustedRandIndex: metrics.AdjustedRandIndex(e.Labeling(prod), e.Labeling(shadow)),
		VariationOfInfo:   metrics.VariationOfInformation(e.Labeling(prod), e.Labeling(shadow)),
		FlaggedJaccard:    metrics.JaccardIndex(prodFlagged, shadowFlagged),
		OnlyProduction:    metrics.Difference(prodFlagged, shadowFlagged),
		OnlyShadow:        metrics.Difference(shadowFlagged, prodFlagged),
	}
	c.Diverged = len(c.OnlyProduction) > 0 || len(c.OnlyShadow) > 0 || c.ProductionRings != c.ShadowRings
	return c
}

func flaggedIDs(report *models.DetectionReport) []string {
	ids := make([]string, 0, len(report.SuspiciousAccounts))
	for _, acc := range report.SuspiciousAccounts {
		ids = append(ids, acc.AccountID)
	}
	return ids
}
