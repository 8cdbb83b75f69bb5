package heuristics

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned by DetectionConfig.Validate.
var ErrInvalidConfig = errors.New("invalid detection config")

// CycleConfig bounds simple-cycle enumeration. MaxLen and Limit are the only
// protection against combinatorial blow-up in dense graphs and must be set.
type CycleConfig struct {
	MinLen int `json:"minLen"` // Shortest cycle reported (default: 3)
	MaxLen int `json:"maxLen"` // Longest cycle reported (default: 5)
	Limit  int `json:"limit"`  // Max distinct cycles (default: 500)
}

// SmurfingConfig controls fan-in / fan-out detection.
type SmurfingConfig struct {
	Threshold int           `json:"threshold"` // Min distinct counterparties in one window (default: 10)
	Window    time.Duration `json:"window"`    // Rolling window, boundary inclusive (default: 72h)
}

// ShellChainConfig controls layering chain detection.
type ShellChainConfig struct {
	MinInterTx int `json:"minInterTx"` // Interior account min totalTx (default: 2)
	MaxInterTx int `json:"maxInterTx"` // Interior account max totalTx (default: 3)
	Limit      int `json:"limit"`      // Max distinct chains (default: 200)
}

// GuardConfig is the false-positive guard for long-lived high-volume hubs
// (merchants, payroll). The thresholds are tuning constants.
type GuardConfig struct {
	MinTotalTx    int           `json:"minTotalTx"`    // default: 200
	MinActiveSpan time.Duration `json:"minActiveSpan"` // lastSeen - firstSeen (default: 7 days)
	Penalty       float64       `json:"penalty"`       // Subtracted from the score, floored at 0 (default: 25)
}

// DetectionConfig aggregates every detector's bounds plus the scoring cutoffs.
type DetectionConfig struct {
	Cycles            CycleConfig      `json:"cycles"`
	Smurfing          SmurfingConfig   `json:"smurfing"`
	ShellChains       ShellChainConfig `json:"shellChains"`
	Guard             GuardConfig      `json:"guard"`
	MinSuspicionScore float64          `json:"minSuspicionScore"` // Accounts below are dropped (default: 60)
}

// DefaultCycleConfig returns the default cycle bounds.
func DefaultCycleConfig() CycleConfig {
	return CycleConfig{MinLen: 3, MaxLen: 5, Limit: 500}
}

// DefaultSmurfingConfig returns the default 72h / 10 counterparty window.
func DefaultSmurfingConfig() SmurfingConfig {
	return SmurfingConfig{Threshold: 10, Window: 72 * time.Hour}
}

// DefaultShellChainConfig returns the default shell-account bounds.
func DefaultShellChainConfig() ShellChainConfig {
	return ShellChainConfig{MinInterTx: 2, MaxInterTx: 3, Limit: 200}
}

// DefaultGuardConfig returns the default false-positive guard.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{MinTotalTx: 200, MinActiveSpan: 7 * 24 * time.Hour, Penalty: 25}
}

// DefaultDetectionConfig returns sensible defaults for a full run.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		Cycles:            DefaultCycleConfig(),
		Smurfing:          DefaultSmurfingConfig(),
		ShellChains:       DefaultShellChainConfig(),
		Guard:             DefaultGuardConfig(),
		MinSuspicionScore: 60,
	}
}

// Validate checks that every safety bound is present and consistent.
func (c DetectionConfig) Validate() error {
	switch {
	case c.Cycles.MinLen < 2:
		return fmt.Errorf("%w: cycles.minLen must be >= 2, got %d", ErrInvalidConfig, c.Cycles.MinLen)
	case c.Cycles.MaxLen < c.Cycles.MinLen:
		return fmt.Errorf("%w: cycles.maxLen %d < minLen %d", ErrInvalidConfig, c.Cycles.MaxLen, c.Cycles.MinLen)
	case c.Cycles.Limit <= 0:
		return fmt.Errorf("%w: cycles.limit must be positive", ErrInvalidConfig)
	case c.Smurfing.Threshold <= 0:
		return fmt.Errorf("%w: smurfing.threshold must be positive", ErrInvalidConfig)
	case c.Smurfing.Window <= 0:
		return fmt.Errorf("%w: smurfing.window must be positive", ErrInvalidConfig)
	case c.ShellChains.MinInterTx < 0 || c.ShellChains.MaxInterTx < c.ShellChains.MinInterTx:
		return fmt.Errorf("%w: shellChains interTx range [%d, %d]", ErrInvalidConfig,
			c.ShellChains.MinInterTx, c.ShellChains.MaxInterTx)
	case c.ShellChains.Limit <= 0:
		return fmt.Errorf("%w: shellChains.limit must be positive", ErrInvalidConfig)
	case c.Guard.Penalty < 0:
		return fmt.Errorf("%w: guard.penalty must not be negative", ErrInvalidConfig)
	}
	return nil
}
