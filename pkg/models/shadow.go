package models

import "time"

// ShadowComparison captures the diff between a production and an
// experimental detection config run over the same batch.
type ShadowComparison struct {
	Experiment        string    `json:"experiment"`
	Fingerprint       string    `json:"fingerprint"`
	ProductionFlagged int       `json:"production_flagged"`
	ShadowFlagged     int       `json:"shadow_flagged"`
	ProductionRings   int       `json:"production_rings"`
	ShadowRings       int       `json:"shadow_rings"`
	AdjustedRandIndex float64   `json:"adjusted_rand_index"`
	VariationOfInfo   float64   `json:"variation_of_information"`
	FlaggedJaccard    float64   `json:"flagged_jaccard"`
	OnlyProduction    []string  `json:"only_production"` // Flagged by production, dropped by shadow
	OnlyShadow        []string  `json:"only_shadow"`     // Newly flagged by shadow
	Diverged          bool      `json:"diverged"`
	CreatedAt         time.Time `json:"created_at"`
}

// DriftReport aggregates stored comparisons for one experiment.
type DriftReport struct {
	Experiment      string  `json:"experiment"`
	TotalRuns       int     `json:"total_runs"`
	Divergences     int     `json:"divergences"`
	AvgRandIndex    float64 `json:"avg_adjusted_rand_index"`
	AvgFlaggedDelta float64 `json:"avg_flagged_delta"`
}
