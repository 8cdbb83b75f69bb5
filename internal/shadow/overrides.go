package shadow

import (
	"fmt"
	"time"

	"github.com/rawblock/ring-engine/internal/heuristics"
)

// Overrides is a sparse patch over the production config as accepted by
// the API. Durations use Go duration syntax ("48h").
type Overrides struct {
	CycleMinLen       *int     `json:"cycle_min_len,omitempty"`
	CycleMaxLen       *int     `json:"cycle_max_len,omitempty"`
	CycleLimit        *int     `json:"cycle_limit,omitempty"`
	SmurfThreshold    *int     `json:"smurf_threshold,omitempty"`
	SmurfWindow       string   `json:"smurf_window,omitempty"`
	ShellMinTx        *int     `json:"shell_min_tx,omitempty"`
	ShellMaxTx        *int     `json:"shell_max_tx,omitempty"`
	ShellLimit        *int     `json:"shell_limit,omitempty"`
	GuardMinTx        *int     `json:"guard_min_tx,omitempty"`
	GuardMinSpan      string   `json:"guard_min_span,omitempty"`
	GuardPenalty      *float64 `json:"guard_penalty,omitempty"`
	MinSuspicionScore *float64 `json:"min_suspicion_score,omitempty"`
}

// Apply returns base with the overrides applied and validated.
func (o Overrides) Apply(base heuristics.DetectionConfig) (heuristics.DetectionConfig, error) {
	cfg := base
	setInt(&cfg.Cycles.MinLen, o.CycleMinLen)
	setInt(&cfg.Cycles.MaxLen, o.CycleMaxLen)
	setInt(&cfg.Cycles.Limit, o.CycleLimit)
	setInt(&cfg.Smurfing.Threshold, o.SmurfThreshold)
	setInt(&cfg.ShellChains.MinInterTx, o.ShellMinTx)
	setInt(&cfg.ShellChains.MaxInterTx, o.ShellMaxTx)
	setInt(&cfg.ShellChains.Limit, o.ShellLimit)
	setInt(&cfg.Guard.MinTotalTx, o.GuardMinTx)
	if o.GuardPenalty != nil {
		cfg.Guard.Penalty = *o.GuardPenalty
	}
	if o.MinSuspicionScore != nil {
		cfg.MinSuspicionScore = *o.MinSuspicionScore
	}

	var err error
	if cfg.Smurfing.Window, err = parseDuration("smurf_window", o.SmurfWindow, cfg.Smurfing.Window); err != nil {
		return base, err
	}
	if cfg.Guard.MinActiveSpan, err = parseDuration("guard_min_span", o.GuardMinSpan, cfg.Guard.MinActiveSpan); err != nil {
		return base, err
	}

	if err := cfg.Validate(); err != nil {
		return base, err
	}
	return cfg, nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func parseDuration(name, raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback, fmt.Errorf("%w: %s: %v", heuristics.ErrInvalidConfig, name, err)
	}
	return d, nil
}
