package heuristics

// Shell Account Layering Detection
//
// Layering routes funds through low-activity pass-through accounts to put
// distance between the source and the destination:
//
//   A → B → C → D     where B and C are "shell-like"
//
// An interior account is shell-like when its total transaction count sits
// in [MinInterTx, MaxInterTx], i.e. it exists only to receive and forward.
// Chains are three hops over the structural graph. Timestamps along the
// chain are not required to increase, so a reported chain may be
// temporally incoherent.

// DetectShellChains returns distinct [A, B, C, D] chains, deduplicated by
// sorted member set and capped at cfg.Limit.
func DetectShellChains(g *Graph, cfg ShellChainConfig) [][]string {
	chains := make([][]string, 0)
	seen := make(map[string]struct{})

	isShell := func(id string) bool {
		s, ok := g.Stats(id)
		if !ok {
			return false
		}
		return s.TotalTx >= cfg.MinInterTx && s.TotalTx <= cfg.MaxInterTx
	}

	for _, a := range g.Accounts() {
		for _, b := range g.OutNeighbors(a) {
			if !isShell(b) {
				continue
			}
			for _, c := range g.OutNeighbors(b) {
				if c == a || !isShell(c) {
					continue
				}
				for _, d := range g.OutNeighbors(c) {
					if d == a || d == b || d == c {
						continue
					}

					chain := []string{a, b, c, d}
					key := canonicalKey(chain)
					if _, dup := seen[key]; dup {
						continue
					}
					seen[key] = struct{}{}
					chains = append(chains, chain)

					if len(chains) >= cfg.Limit {
						return chains
					}
				}
			}
		}
	}

	return chains
}
