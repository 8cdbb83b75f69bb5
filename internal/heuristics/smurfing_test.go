package heuristics

import (
	"fmt"
	"testing"
	"time"

	"github.com/rawblock/ring-engine/pkg/models"
)

func TestDetectSmurfing_FanInWithinMinutes(t *testing.T) {
	var txs []models.Transaction
	for i := 0; i < 11; i++ {
		txs = append(txs, newTx(fmt.Sprintf("in%d", i), fmt.Sprintf("S%02d", i), "HUB", time.Duration(i)*time.Minute))
	}

	result := DetectSmurfing(BuildGraph(txs), DefaultSmurfingConfig())

	if len(result.FanIn) != 1 {
		t.Fatalf("Expected 1 fan-in hit. Got: %d", len(result.FanIn))
	}
	if len(result.FanOut) != 0 {
		t.Errorf("Expected no fan-out hits. Got: %d", len(result.FanOut))
	}

	hit := result.FanIn[0]
	if hit.Hub != "HUB" || hit.UniqueCounterparties != 11 {
		t.Errorf("Expected HUB with 11 counterparties. Got: %s / %d", hit.Hub, hit.UniqueCounterparties)
	}
	if len(hit.Members) != 12 || hit.Members[0] != "HUB" || hit.Members[1] != "S00" {
		t.Errorf("Expected hub first then senders in window order. Got: %v", hit.Members)
	}
	if hit.WindowEnd.Sub(hit.WindowStart) != 10*time.Minute {
		t.Errorf("Expected a 10 minute window. Got: %v", hit.WindowEnd.Sub(hit.WindowStart))
	}
}

func TestDetectSmurfing_FanOut(t *testing.T) {
	var txs []models.Transaction
	for i := 0; i < 10; i++ {
		txs = append(txs, newTx(fmt.Sprintf("out%d", i), "DISPERSER", fmt.Sprintf("R%02d", i), time.Duration(i)*time.Hour))
	}

	result := DetectSmurfing(BuildGraph(txs), DefaultSmurfingConfig())

	if len(result.FanOut) != 1 || result.FanOut[0].UniqueCounterparties != 10 {
		t.Fatalf("Expected one fan-out hit with 10 receivers. Got: %+v", result.FanOut)
	}
}

func TestDetectSmurfing_RepeatCounterpartiesNotDistinct(t *testing.T) {
	// 30 payments from only 5 senders never reaches 10 distinct
	var txs []models.Transaction
	for i := 0; i < 30; i++ {
		txs = append(txs, newTx(fmt.Sprintf("r%d", i), fmt.Sprintf("S%d", i%5), "HUB", time.Duration(i)*time.Minute))
	}

	result := DetectSmurfing(BuildGraph(txs), DefaultSmurfingConfig())

	if len(result.FanIn) != 0 {
		t.Errorf("Expected no fan-in for 5 distinct senders. Got: %+v", result.FanIn)
	}
}

func TestMaxUniqueWithinWindow_BoundaryInclusive(t *testing.T) {
	window := 72 * time.Hour
	sender := func(tx models.Transaction) string { return tx.SenderID }

	exact := []models.Transaction{
		newTx("a", "X", "HUB", 0),
		newTx("b", "Y", "HUB", window),
	}
	if best := maxUniqueWithinWindow(exact, window, sender); best.count != 2 {
		t.Errorf("Expected both transactions exactly 72h apart in one window. Got: %d", best.count)
	}

	beyond := []models.Transaction{
		newTx("a", "X", "HUB", 0),
		newTx("b", "Y", "HUB", window+time.Millisecond),
	}
	best := maxUniqueWithinWindow(beyond, window, sender)
	if best.count != 1 {
		t.Errorf("Expected eviction 1ms beyond 72h. Got: %d", best.count)
	}
}

func TestDetectSmurfing_SlowDripNotFlagged(t *testing.T) {
	// 12 distinct senders, one every 8 days: never more than 1 per window
	var txs []models.Transaction
	for i := 0; i < 12; i++ {
		txs = append(txs, newTx(fmt.Sprintf("d%d", i), fmt.Sprintf("S%02d", i), "HUB", time.Duration(i)*8*24*time.Hour))
	}

	result := DetectSmurfing(BuildGraph(txs), DefaultSmurfingConfig())

	if len(result.FanIn) != 0 {
		t.Errorf("Expected slow drip not to be flagged. Got: %+v", result.FanIn)
	}
}

func TestDetectSmurfing_CustomThreshold(t *testing.T) {
	var txs []models.Transaction
	for i := 0; i < 3; i++ {
		txs = append(txs, newTx(fmt.Sprintf("c%d", i), fmt.Sprintf("S%d", i), "HUB", time.Duration(i)*time.Minute))
	}

	cfg := SmurfingConfig{Threshold: 3, Window: time.Hour}
	result := DetectSmurfing(BuildGraph(txs), cfg)

	if len(result.FanIn) != 1 {
		t.Errorf("Expected fan-in at threshold 3. Got: %d", len(result.FanIn))
	}
}
