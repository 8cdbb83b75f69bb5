package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawblock/ring-engine/internal/heuristics"
	"github.com/rawblock/ring-engine/pkg/models"
)

func setupTestRedis(t *testing.T) (*ReportCache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	c, err := NewReportCache(context.Background(), mr.Addr(), "", 0, time.Minute)
	require.NoError(t, err)

	t.Cleanup(func() {
		c.Close()
		mr.Close()
	})
	return c, mr
}

func batch() []models.Transaction {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return []models.Transaction{
		{ID: "T1", SenderID: "A", ReceiverID: "B", Amount: decimal.NewFromInt(100), Timestamp: base},
		{ID: "T2", SenderID: "B", ReceiverID: "C", Amount: decimal.NewFromInt(50), Timestamp: base.Add(time.Hour)},
	}
}

func TestReportCache_MissThenHit(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()

	run, ok, err := c.Get(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, run)

	stored := &models.AnalysisRun{
		RunID:            "2b0c1c4e-7c59-4b8e-8f1e-3f7a4d2b9a10",
		Source:           models.SourceJSON,
		TransactionCount: 2,
		Fingerprint:      "abc",
		Report: &models.DetectionReport{
			SuspiciousAccounts: []models.SuspiciousAccount{},
			FraudRings:         []models.Ring{{RingID: "RING_001", PatternType: models.PatternCycle, RiskScore: 90, MemberAccounts: []string{"A", "B", "C"}}},
		},
	}
	require.NoError(t, c.Set(ctx, stored))

	got, ok, err := c.Get(ctx, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stored.RunID, got.RunID)
	assert.Equal(t, "RING_001", got.Report.FraudRings[0].RingID)
}

func TestReportCache_TTL(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, &models.AnalysisRun{Fingerprint: "ttl", Report: &models.DetectionReport{}}))
	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, "ttl")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReportCache_SetRequiresFingerprint(t *testing.T) {
	c, _ := setupTestRedis(t)
	assert.Error(t, c.Set(context.Background(), &models.AnalysisRun{}))
}

func TestNewReportCache_ConnectionFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := NewReportCache(ctx, "127.0.0.1:1", "", 0, time.Minute)
	assert.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	cfg := heuristics.DefaultDetectionConfig()
	txs := batch()

	assert.Equal(t, Fingerprint(txs, cfg), Fingerprint(batch(), cfg), "deterministic")

	reordered := []models.Transaction{txs[1], txs[0]}
	assert.NotEqual(t, Fingerprint(txs, cfg), Fingerprint(reordered, cfg), "order sensitive")

	other := cfg
	other.Smurfing.Threshold = 12
	assert.NotEqual(t, Fingerprint(txs, cfg), Fingerprint(txs, other), "config sensitive")
}
