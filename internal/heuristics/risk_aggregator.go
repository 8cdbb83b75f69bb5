package heuristics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rawblock/ring-engine/pkg/models"
)

// Risk Aggregation & Account Scoring
//
// Merges the three detectors into one report:
//
//   1. Rings are emitted in a fixed order (cycles, fan-in, fan-out, shell
//      chains) and numbered RING_001, RING_002, ... in that order.
//   2. Every ring member gets a candidate score from a pattern ladder:
//        shell chain          90
//        fan-in / fan-out     88
//        cycle length 3/4/5   84/82/80
//      The account keeps the maximum. Its ring_id moves only when a later
//      ring strictly raises the score; ties keep the earlier ring.
//   3. False-positive guard: accounts flagged only by fan-in/fan-out that
//      are high-volume and long-lived (merchants, payroll) are penalized.
//   4. Accounts under MinSuspicionScore are dropped; the rest are sorted
//      descending by score, stable on ties.

// Pattern labels recorded in SuspiciousAccount.DetectedPatterns.
const (
	LabelFanIn    = "fan_in_72h"
	LabelFanOut   = "fan_out_72h"
	LabelLayering = "layering_3hop"
)

// Fixed ring-level risk scores.
const (
	CycleRiskScore      = 90.0
	ShellChainRiskScore = 92.0
)

// Fixed account-level candidate scores.
const (
	smurfingAccountScore   = 88.0
	shellChainAccountScore = 90.0
)

// CycleLabel returns the pattern label for a cycle of length n.
func CycleLabel(n int) string {
	return fmt.Sprintf("cycle_length_%d", n)
}

// SmurfingRiskScore is min(99, 70 + 2 × uniqueCounterparties), one decimal.
func SmurfingRiskScore(uniqueCounterparties int) float64 {
	return round1(math.Min(99, 70+2*float64(uniqueCounterparties)))
}

// CycleAccountScore favors shorter cycles: length 3→84, 4→82, 5→80.
func CycleAccountScore(length int) float64 {
	return 80 + float64(5-length)*2
}

// accountScore returns the candidate score and pattern label a ring
// contributes to each of its members.
func accountScore(ring models.Ring) (float64, string) {
	switch ring.PatternType {
	case models.PatternCycle:
		n := len(ring.MemberAccounts)
		return CycleAccountScore(n), CycleLabel(n)
	case models.PatternSmurfingFanIn:
		return smurfingAccountScore, LabelFanIn
	case models.PatternSmurfingFanOut:
		return smurfingAccountScore, LabelFanOut
	case models.PatternShellChain:
		return shellChainAccountScore, LabelLayering
	default:
		return 0, ""
	}
}

type accountScoreState struct {
	id       string
	score    float64
	patterns []string
	seen     map[string]struct{}
	ringID   string
}

func (s *accountScoreState) addPattern(label string) {
	if _, ok := s.seen[label]; ok {
		return
	}
	s.seen[label] = struct{}{}
	s.patterns = append(s.patterns, label)
}

// onlySmurfing reports whether every recorded pattern is fan-in or fan-out.
func (s *accountScoreState) onlySmurfing() bool {
	if len(s.patterns) == 0 {
		return false
	}
	for _, p := range s.patterns {
		if p != LabelFanIn && p != LabelFanOut {
			return false
		}
	}
	return true
}

// RunDetection builds the graph and runs the full detection pipeline.
func RunDetection(transactions []models.Transaction, cfg DetectionConfig) models.DetectionReport {
	start := time.Now()
	g := BuildGraph(transactions)
	report := AnalyzeGraph(g, cfg)
	report.Summary.ProcessingTimeSeconds = round2(time.Since(start).Seconds())
	return report
}

// AnalyzeGraph runs every detector over an already-built graph and
// aggregates their findings.
func AnalyzeGraph(g *Graph, cfg DetectionConfig) models.DetectionReport {
	start := time.Now()

	rings := BuildRings(g, cfg)
	accounts := ScoreAccounts(g, rings, cfg)

	return models.DetectionReport{
		SuspiciousAccounts: accounts,
		FraudRings:         rings,
		Summary: models.ReportSummary{
			TotalAccountsAnalyzed:     g.AccountCount(),
			SuspiciousAccountsFlagged: len(accounts),
			FraudRingsDetected:        len(rings),
			ProcessingTimeSeconds:     round2(time.Since(start).Seconds()),
		},
	}
}

// BuildRings runs the detectors and converts their findings to rings in
// emission order with sequential IDs.
func BuildRings(g *Graph, cfg DetectionConfig) []models.Ring {
	rings := make([]models.Ring, 0)
	emit := func(members []string, pattern models.PatternType, risk float64) {
		rings = append(rings, models.Ring{
			RingID:         fmt.Sprintf("RING_%03d", len(rings)+1),
			MemberAccounts: members,
			PatternType:    pattern,
			RiskScore:      risk,
		})
	}

	for _, cycle := range DetectCycles(g, cfg.Cycles) {
		emit(cycle, models.PatternCycle, CycleRiskScore)
	}

	smurfing := DetectSmurfing(g, cfg.Smurfing)
	for _, hit := range smurfing.FanIn {
		emit(hit.Members, models.PatternSmurfingFanIn, SmurfingRiskScore(hit.UniqueCounterparties))
	}
	for _, hit := range smurfing.FanOut {
		emit(hit.Members, models.PatternSmurfingFanOut, SmurfingRiskScore(hit.UniqueCounterparties))
	}

	for _, chain := range DetectShellChains(g, cfg.ShellChains) {
		emit(chain, models.PatternShellChain, ShellChainRiskScore)
	}

	return rings
}

// ScoreAccounts applies the pattern ladder, the false-positive guard and
// the minimum-score cutoff.
func ScoreAccounts(g *Graph, rings []models.Ring, cfg DetectionConfig) []models.SuspiciousAccount {
	states := make(map[string]*accountScoreState)
	order := make([]string, 0)

	for _, ring := range rings {
		candidate, label := accountScore(ring)
		for _, acc := range ring.MemberAccounts {
			st, ok := states[acc]
			if !ok {
				st = &accountScoreState{id: acc, seen: make(map[string]struct{}), ringID: ring.RingID}
				states[acc] = st
				order = append(order, acc)
			}
			st.addPattern(label)
			if candidate > st.score {
				st.score = candidate
				st.ringID = ring.RingID
			}
		}
	}

	for _, st := range states {
		applyGuard(g, st, cfg.Guard)
	}

	accounts := make([]models.SuspiciousAccount, 0, len(order))
	for _, id := range order {
		st := states[id]
		if st.score < cfg.MinSuspicionScore {
			continue
		}
		accounts = append(accounts, models.SuspiciousAccount{
			AccountID:        st.id,
			SuspicionScore:   round1(st.score),
			DetectedPatterns: st.patterns,
			RingID:           st.ringID,
		})
	}

	sort.SliceStable(accounts, func(i, j int) bool {
		return accounts[i].SuspicionScore > accounts[j].SuspicionScore
	})

	return accounts
}

// applyGuard penalizes established high-volume hubs that are flagged by
// volume patterns alone.
func applyGuard(g *Graph, st *accountScoreState, guard GuardConfig) {
	if !st.onlySmurfing() {
		return
	}
	stats, ok := g.Stats(st.id)
	if !ok {
		return
	}
	if stats.TotalTx >= guard.MinTotalTx && stats.ActiveSpan() >= guard.MinActiveSpan {
		st.score = math.Max(0, st.score-guard.Penalty)
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
