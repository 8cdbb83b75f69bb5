package heuristics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawblock/ring-engine/pkg/models"
)

// Transaction Graph Builder
//
// Converts a flat ledger into an account-indexed directed graph. Every
// detector reads the same graph and none of them mutates it.
//
// Two views of the same data are kept per account:
//   - Structural adjacency: distinct neighbors only. Fifty payments A→B
//     produce one edge A→B. Cycle and shell-chain search walk this view.
//   - Chronological logs: every inbound and outbound transaction with full
//     multiplicity, sorted by timestamp. The smurfing window walks this view.
//
// Neighbor lists are kept in first-seen order next to the membership sets so
// that every traversal, and therefore every ring ID, is deterministic.

// AccountStats summarizes one account's activity over the whole batch.
type AccountStats struct {
	InCount   int             `json:"inCount"`
	OutCount  int             `json:"outCount"`
	TotalTx   int             `json:"totalTx"` // InCount + OutCount
	FirstSeen time.Time       `json:"firstSeen"`
	LastSeen  time.Time       `json:"lastSeen"`
	InVolume  decimal.Decimal `json:"inVolume"`
	OutVolume decimal.Decimal `json:"outVolume"`
}

// ActiveSpan is the time between the account's first and last transaction.
func (s AccountStats) ActiveSpan() time.Duration {
	return s.LastSeen.Sub(s.FirstSeen)
}

type accountEntry struct {
	out    []string
	in     []string
	outSet map[string]struct{}
	inSet  map[string]struct{}
	outTx  []models.Transaction
	inTx   []models.Transaction
	stats  AccountStats
}

// Graph is the read-only transaction graph for one analysis run.
type Graph struct {
	accounts []string // First-seen order
	entries  map[string]*accountEntry
	txCount  int
}

// BuildGraph ingests the transactions in order and sorts every account's
// logs chronologically. An empty input yields an empty graph.
func BuildGraph(transactions []models.Transaction) *Graph {
	g := &Graph{
		entries: make(map[string]*accountEntry),
	}

	for _, tx := range transactions {
		sender := g.ensure(tx.SenderID)
		receiver := g.ensure(tx.ReceiverID)

		// Structure
		if _, ok := sender.outSet[tx.ReceiverID]; !ok {
			sender.outSet[tx.ReceiverID] = struct{}{}
			sender.out = append(sender.out, tx.ReceiverID)
		}
		if _, ok := receiver.inSet[tx.SenderID]; !ok {
			receiver.inSet[tx.SenderID] = struct{}{}
			receiver.in = append(receiver.in, tx.SenderID)
		}

		// Logs
		sender.outTx = append(sender.outTx, tx)
		receiver.inTx = append(receiver.inTx, tx)

		// Stats
		sender.stats.OutCount++
		sender.stats.TotalTx++
		sender.stats.OutVolume = sender.stats.OutVolume.Add(tx.Amount)
		observe(&sender.stats, tx.Timestamp)

		receiver.stats.InCount++
		receiver.stats.TotalTx++
		receiver.stats.InVolume = receiver.stats.InVolume.Add(tx.Amount)
		observe(&receiver.stats, tx.Timestamp)

		g.txCount++
	}

	// Sliding-window detection depends on this ordering
	for _, e := range g.entries {
		sortByTimestamp(e.outTx)
		sortByTimestamp(e.inTx)
	}

	return g
}

func (g *Graph) ensure(id string) *accountEntry {
	if e, ok := g.entries[id]; ok {
		return e
	}
	e := &accountEntry{
		outSet: make(map[string]struct{}),
		inSet:  make(map[string]struct{}),
	}
	g.entries[id] = e
	g.accounts = append(g.accounts, id)
	return e
}

func observe(s *AccountStats, ts time.Time) {
	if s.FirstSeen.IsZero() || ts.Before(s.FirstSeen) {
		s.FirstSeen = ts
	}
	if s.LastSeen.IsZero() || ts.After(s.LastSeen) {
		s.LastSeen = ts
	}
}

func sortByTimestamp(txs []models.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Timestamp.Before(txs[j].Timestamp)
	})
}

// Accounts returns every account in first-seen order.
func (g *Graph) Accounts() []string {
	return g.accounts
}

// AccountCount returns the number of distinct accounts.
func (g *Graph) AccountCount() int {
	return len(g.accounts)
}

// TransactionCount returns the number of ingested transactions.
func (g *Graph) TransactionCount() int {
	return g.txCount
}

// OutNeighbors returns the distinct receivers of id in first-seen order.
func (g *Graph) OutNeighbors(id string) []string {
	if e, ok := g.entries[id]; ok {
		return e.out
	}
	return nil
}

// InNeighbors returns the distinct senders to id in first-seen order.
func (g *Graph) InNeighbors(id string) []string {
	if e, ok := g.entries[id]; ok {
		return e.in
	}
	return nil
}

// HasEdge reports whether at least one transaction from -> to exists.
func (g *Graph) HasEdge(from, to string) bool {
	e, ok := g.entries[from]
	if !ok {
		return false
	}
	_, ok = e.outSet[to]
	return ok
}

// OutDegree is the number of distinct receivers, not the outbound transaction count.
func (g *Graph) OutDegree(id string) int {
	return len(g.OutNeighbors(id))
}

// InDegree is the number of distinct senders.
func (g *Graph) InDegree(id string) int {
	return len(g.InNeighbors(id))
}

// OutTransactions returns id's outbound log sorted ascending by timestamp.
func (g *Graph) OutTransactions(id string) []models.Transaction {
	if e, ok := g.entries[id]; ok {
		return e.outTx
	}
	return nil
}

// InTransactions returns id's inbound log sorted ascending by timestamp.
func (g *Graph) InTransactions(id string) []models.Transaction {
	if e, ok := g.entries[id]; ok {
		return e.inTx
	}
	return nil
}

// Stats returns the account's summary statistics.
func (g *Graph) Stats(id string) (AccountStats, bool) {
	e, ok := g.entries[id]
	if !ok {
		return AccountStats{}, false
	}
	return e.stats, true
}
