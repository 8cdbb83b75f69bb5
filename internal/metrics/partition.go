package metrics

import (
	"math"
	"sort"
)

// Partition agreement between two detection runs.
//
// A run partitions accounts by the ring that owns them (ring_id). Comparing
// a production run with a shadow run over the same batch tells whether a
// config change merely relabels rings or actually regroups accounts.
//
//   ARI: -1 (worse than random) .. 1 (identical grouping), 0 = random
//   VI:  H(P|S) + H(S|P) in bits, 0 = identical grouping
//
// An account missing from one labeling becomes a singleton cluster there,
// so both partitions cover the same universe and unflagging a whole ring
// counts as a split rather than a relabel.

// Labeling maps account ID to its cluster label (ring ID).
type Labeling map[string]string

// unflaggedPrefix marks the singleton label of an account a run did not flag.
const unflaggedPrefix = "unflagged:"

func labelOf(l Labeling, acc string) string {
	if label, ok := l[acc]; ok && label != "" {
		return label
	}
	return unflaggedPrefix + acc
}

type contingency struct {
	n       int
	cells   map[[2]string]int
	rowSums map[string]int
	colSums map[string]int
}

func buildContingency(a, b Labeling) contingency {
	universe := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		universe[k] = struct{}{}
	}
	for k := range b {
		universe[k] = struct{}{}
	}

	c := contingency{
		n:       len(universe),
		cells:   make(map[[2]string]int),
		rowSums: make(map[string]int),
		colSums: make(map[string]int),
	}
	for acc := range universe {
		la, lb := labelOf(a, acc), labelOf(b, acc)
		c.cells[[2]string{la, lb}]++
		c.rowSums[la]++
		c.colSums[lb]++
	}
	return c
}

// AdjustedRandIndex computes ARI = (Index - Expected) / (Max - Expected)
// over pairs of accounts.
func AdjustedRandIndex(a, b Labeling) float64 {
	c := buildContingency(a, b)
	if c.n < 2 {
		return 0.0
	}

	sumNijC2 := 0.0
	for _, v := range c.cells {
		sumNijC2 += comb2(v)
	}
	sumAiC2 := 0.0
	for _, v := range c.rowSums {
		sumAiC2 += comb2(v)
	}
	sumBjC2 := 0.0
	for _, v := range c.colSums {
		sumBjC2 += comb2(v)
	}

	expectedIndex := (sumAiC2 * sumBjC2) / comb2(c.n)
	maxIndex := 0.5 * (sumAiC2 + sumBjC2)

	denominator := maxIndex - expectedIndex
	if math.Abs(denominator) < 1e-12 {
		return 1.0
	}
	return (sumNijC2 - expectedIndex) / denominator
}

// VariationOfInformation computes VI = H(A|B) + H(B|A).
func VariationOfInformation(a, b Labeling) float64 {
	c := buildContingency(a, b)
	if c.n < 2 {
		return 0.0
	}
	nf := float64(c.n)

	vi := 0.0
	for key, nij := range c.cells {
		if nij == 0 {
			continue
		}
		pij := float64(nij) / nf
		vi -= pij * math.Log2(float64(nij)/float64(c.colSums[key[1]]))
		vi -= pij * math.Log2(float64(nij)/float64(c.rowSums[key[0]]))
	}
	return vi
}

// JaccardIndex is |A ∩ B| / |A ∪ B| over two account sets. Two empty sets
// agree perfectly.
func JaccardIndex(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, x := range a {
		setA[x] = struct{}{}
	}
	union := len(setA)
	inter := 0
	seenB := make(map[string]struct{}, len(b))
	for _, x := range b {
		if _, dup := seenB[x]; dup {
			continue
		}
		seenB[x] = struct{}{}
		if _, ok := setA[x]; ok {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 1.0
	}
	return float64(inter) / float64(union)
}

// Difference returns the elements of a not in b, sorted.
func Difference(a, b []string) []string {
	inB := make(map[string]struct{}, len(b))
	for _, x := range b {
		inB[x] = struct{}{}
	}
	out := make([]string, 0)
	for _, x := range a {
		if _, ok := inB[x]; !ok {
			out = append(out, x)
		}
	}
	sort.Strings(out)
	return out
}

// comb2 computes C(n, 2) = n*(n-1)/2
func comb2(n int) float64 {
	if n < 2 {
		return 0
	}
	return float64(n) * float64(n-1) / 2.0
}
