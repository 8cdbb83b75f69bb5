package heuristics

import (
	"time"

	"github.com/rawblock/ring-engine/pkg/models"
)

// Smurfing (Fan-In / Fan-Out) Detection
//
// Structuring splits a large sum across many small transfers so no single
// transfer trips a reporting threshold. In the graph it shows up as a hub
// touching an abnormal number of distinct counterparties in a short time:
//
//   Fan-in:   S₁ … Sₙ → H   (collection / aggregation account)
//   Fan-out:  H → R₁ … Rₙ   (dispersal account)
//
// For each account's chronological log a two-pointer window [i, j] is slid
// forward while a frequency map tracks how many times each counterparty
// appears inside it. The densest window by distinct counterparty count is
// kept. Entries exactly Window apart stay in the same window; anything
// further apart evicts the older entry.

// SmurfingHit is a hub whose densest window met the threshold.
type SmurfingHit struct {
	Hub                  string    `json:"hub"`
	Members              []string  `json:"members"` // Hub first, then counterparties in window order
	UniqueCounterparties int       `json:"uniqueCounterparties"`
	WindowStart          time.Time `json:"windowStart"`
	WindowEnd            time.Time `json:"windowEnd"`
}

// SmurfingResult holds both directions.
type SmurfingResult struct {
	FanIn  []SmurfingHit `json:"fanIn"`  // Many senders → one receiver
	FanOut []SmurfingHit `json:"fanOut"` // One sender → many receivers
}

type windowBest struct {
	count int
	i, j  int
}

// maxUniqueWithinWindow returns the densest window of a chronologically
// sorted log, counting distinct values of party(tx).
func maxUniqueWithinWindow(txs []models.Transaction, window time.Duration, party func(models.Transaction) string) windowBest {
	var best windowBest
	freq := make(map[string]int)
	i := 0

	for j := range txs {
		freq[party(txs[j])]++

		for txs[j].Timestamp.Sub(txs[i].Timestamp) > window {
			k := party(txs[i])
			freq[k]--
			if freq[k] == 0 {
				delete(freq, k)
			}
			i++
		}

		if len(freq) > best.count {
			best = windowBest{count: len(freq), i: i, j: j}
		}
	}

	return best
}

// DetectSmurfing scans every account's inbound and outbound logs.
func DetectSmurfing(g *Graph, cfg SmurfingConfig) SmurfingResult {
	result := SmurfingResult{
		FanIn:  make([]SmurfingHit, 0),
		FanOut: make([]SmurfingHit, 0),
	}

	for _, acc := range g.Accounts() {
		if hit, ok := detectHub(acc, g.InTransactions(acc), cfg); ok {
			result.FanIn = append(result.FanIn, hit)
		}
	}
	for _, acc := range g.Accounts() {
		if hit, ok := detectHub(acc, g.OutTransactions(acc), cfg); ok {
			result.FanOut = append(result.FanOut, hit)
		}
	}

	return result
}

// detectHub checks one side of hub's log: txs is either every inbound or
// every outbound transfer of hub, so the counterparty is always the far end.
func detectHub(hub string, txs []models.Transaction, cfg SmurfingConfig) (SmurfingHit, bool) {
	if len(txs) < cfg.Threshold {
		return SmurfingHit{}, false
	}

	party := func(tx models.Transaction) string { return tx.Counterparty(hub) }

	best := maxUniqueWithinWindow(txs, cfg.Window, party)
	if best.count < cfg.Threshold {
		return SmurfingHit{}, false
	}

	members := make([]string, 0, best.count+1)
	members = append(members, hub)
	seen := make(map[string]struct{}, best.count)
	for _, tx := range txs[best.i : best.j+1] {
		p := party(tx)
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		members = append(members, p)
	}

	return SmurfingHit{
		Hub:                  hub,
		Members:              members,
		UniqueCounterparties: best.count,
		WindowStart:          txs[best.i].Timestamp,
		WindowEnd:            txs[best.j].Timestamp,
	}, true
}
