package models

import "time"

// Source of an analysis batch.
const (
	SourceUpload = "upload"
	SourceJSON   = "json"
	SourceCLI    = "cli"
)

// AnalysisRun is one completed detection run as persisted and served.
type AnalysisRun struct {
	RunID            string           `json:"run_id"`
	CreatedAt        time.Time        `json:"created_at"`
	Source           string           `json:"source"`
	TransactionCount int              `json:"transaction_count"`
	Fingerprint      string           `json:"fingerprint"` // Input + config hash, also the cache key
	Report           *DetectionReport `json:"report"`
}

// RunSummary is the list view of an AnalysisRun.
type RunSummary struct {
	RunID                 string    `json:"run_id"`
	CreatedAt             time.Time `json:"created_at"`
	Source                string    `json:"source"`
	TransactionCount      int       `json:"transaction_count"`
	SuspiciousAccounts    int       `json:"suspicious_accounts"`
	FraudRings            int       `json:"fraud_rings"`
	ProcessingTimeSeconds float64   `json:"processing_time_seconds"`
}

// Summary derives the list view.
func (r AnalysisRun) Summary() RunSummary {
	s := RunSummary{
		RunID:            r.RunID,
		CreatedAt:        r.CreatedAt,
		Source:           r.Source,
		TransactionCount: r.TransactionCount,
	}
	if r.Report != nil {
		s.SuspiciousAccounts = r.Report.Summary.SuspiciousAccountsFlagged
		s.FraudRings = r.Report.Summary.FraudRingsDetected
		s.ProcessingTimeSeconds = r.Report.Summary.ProcessingTimeSeconds
	}
	return s
}

// AccountVerdict is one account's verdict in one stored run.
type AccountVerdict struct {
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	SuspiciousAccount
}
