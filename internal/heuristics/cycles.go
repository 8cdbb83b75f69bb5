package heuristics

import (
	"slices"
	"strings"
)

// Circular Flow (Round-Tripping) Detection
//
// Money that leaves an account and returns to it through a short chain of
// intermediaries is a classic layering signature:
//
//   A → B → C → A
//
// Enumeration is a bounded depth-first search of simple paths from every
// account. A path closes into a cycle when its last node has an edge back
// to the start. Rotations and reflections of the same cycle are collapsed
// by keying on the sorted member set, so A→B→C→A found from A and B→C→A→B
// found from B produce a single ring.
//
// Simple-cycle enumeration is exponential in the branching factor. MaxLen
// and Limit are the only bounds on work and memory.

type cycleFrame struct {
	node string
	path []string
}

// DetectCycles returns the distinct simple cycles with length in
// [MinLen, MaxLen], each in path order starting from its discovery node.
func DetectCycles(g *Graph, cfg CycleConfig) [][]string {
	cycles := make([][]string, 0)
	seen := make(map[string]struct{})

	for _, start := range g.Accounts() {
		stack := []cycleFrame{{node: start, path: []string{start}}}

		for len(stack) > 0 {
			frame := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if len(frame.path) > cfg.MaxLen {
				continue
			}

			for _, next := range g.OutNeighbors(frame.node) {
				if next == start {
					n := len(frame.path)
					if n < cfg.MinLen || n > cfg.MaxLen {
						continue
					}
					key := canonicalKey(frame.path)
					if _, dup := seen[key]; dup {
						continue
					}
					seen[key] = struct{}{}
					cycles = append(cycles, slices.Clone(frame.path))
					if len(cycles) >= cfg.Limit {
						return cycles
					}
					continue
				}

				if slices.Contains(frame.path, next) {
					continue
				}

				if len(frame.path) < cfg.MaxLen {
					path := make([]string, len(frame.path), len(frame.path)+1)
					copy(path, frame.path)
					stack = append(stack, cycleFrame{node: next, path: append(path, next)})
				}
			}
		}
	}

	return cycles
}

// canonicalKey sorts a member set and joins it. Structurally equivalent
// findings reached via different search paths share a key.
func canonicalKey(members []string) string {
	sorted := slices.Clone(members)
	slices.Sort(sorted)
	return strings.Join(sorted, "|")
}
