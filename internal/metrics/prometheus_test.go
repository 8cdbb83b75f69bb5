package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rawblock/ring-engine/pkg/models"
)

func TestRecordReport(t *testing.T) {
	beforeCycles := testutil.ToFloat64(ringsDetected.WithLabelValues("cycle"))
	beforeShell := testutil.ToFloat64(ringsDetected.WithLabelValues("shell_chain"))
	beforeFlagged := testutil.ToFloat64(accountsFlagged)
	beforeTx := testutil.ToFloat64(transactionsAnalyzed)

	report := &models.DetectionReport{
		SuspiciousAccounts: []models.SuspiciousAccount{{AccountID: "A"}, {AccountID: "B"}},
		FraudRings: []models.Ring{
			{RingID: "RING_001", PatternType: models.PatternCycle},
			{RingID: "RING_002", PatternType: models.PatternCycle},
			{RingID: "RING_003", PatternType: models.PatternShellChain},
		},
		Summary: models.ReportSummary{ProcessingTimeSeconds: 0.02},
	}
	RecordReport(40, report)

	if got := testutil.ToFloat64(ringsDetected.WithLabelValues("cycle")) - beforeCycles; got != 2 {
		t.Errorf("Expected 2 cycle rings counted. Got: %v", got)
	}
	if got := testutil.ToFloat64(ringsDetected.WithLabelValues("shell_chain")) - beforeShell; got != 1 {
		t.Errorf("Expected 1 shell chain counted. Got: %v", got)
	}
	if got := testutil.ToFloat64(accountsFlagged) - beforeFlagged; got != 2 {
		t.Errorf("Expected 2 flagged accounts. Got: %v", got)
	}
	if got := testutil.ToFloat64(transactionsAnalyzed) - beforeTx; got != 40 {
		t.Errorf("Expected 40 transactions. Got: %v", got)
	}
}

func TestRecordCacheLookup(t *testing.T) {
	before := testutil.ToFloat64(cacheLookups.WithLabelValues("hit"))
	RecordCacheLookup(true)
	if got := testutil.ToFloat64(cacheLookups.WithLabelValues("hit")) - before; got != 1 {
		t.Errorf("Expected one hit recorded. Got: %v", got)
	}
}
