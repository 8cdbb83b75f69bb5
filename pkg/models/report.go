package models

// PatternType identifies which structural pattern produced a ring.
type PatternType string

const (
	PatternCycle          PatternType = "cycle"
	PatternSmurfingFanIn  PatternType = "smurfing_fanin"
	PatternSmurfingFanOut PatternType = "smurfing_fanout"
	PatternShellChain     PatternType = "shell_chain"
)

// Ring is a detected group of accounts exhibiting one fraud pattern.
type Ring struct {
	RingID         string      `json:"ring_id"`         // RING_001, RING_002, ... in emission order
	MemberAccounts []string    `json:"member_accounts"` // Path order for cycles and chains, hub first for smurfing
	PatternType    PatternType `json:"pattern_type"`
	RiskScore      float64     `json:"risk_score"`
}

// SuspiciousAccount is the per-account verdict after scoring and the false-positive guard.
type SuspiciousAccount struct {
	AccountID        string   `json:"account_id"`
	SuspicionScore   float64  `json:"suspicion_score"`   // 0-99 heuristic, not a probability
	DetectedPatterns []string `json:"detected_patterns"` // cycle_length_N / fan_in_72h / fan_out_72h / layering_3hop
	RingID           string   `json:"ring_id"`           // Ring that most recently raised the score
}

// ReportSummary holds the run-level counters.
type ReportSummary struct {
	TotalAccountsAnalyzed     int     `json:"total_accounts_analyzed"`
	SuspiciousAccountsFlagged int     `json:"suspicious_accounts_flagged"`
	FraudRingsDetected        int     `json:"fraud_rings_detected"` // All rings, independent of the account filter
	ProcessingTimeSeconds     float64 `json:"processing_time_seconds"`
}

// DetectionReport is the engine output. Its JSON shape is a fixed external
// schema consumed by the dashboard and the export download.
type DetectionReport struct {
	SuspiciousAccounts []SuspiciousAccount `json:"suspicious_accounts"`
	FraudRings         []Ring              `json:"fraud_rings"`
	Summary            ReportSummary       `json:"summary"`
}

// RingsByPattern counts the report's rings per pattern type.
func (r DetectionReport) RingsByPattern() map[PatternType]int {
	counts := make(map[PatternType]int)
	for _, ring := range r.FraudRings {
		counts[ring.PatternType]++
	}
	return counts
}

// FindRing returns the ring with the given ID, or nil.
func (r DetectionReport) FindRing(ringID string) *Ring {
	for i := range r.FraudRings {
		if r.FraudRings[i].RingID == ringID {
			return &r.FraudRings[i]
		}
	}
	return nil
}
