package validator

import (
	"strings"

	"github.com/aretw0/tessera/pkg/domain"
)

// checkCycles reports one CycleDetected per simple cycle. Strongly connected
// components locate the cyclic regions; simple cycles are then enumerated
// inside each one, each starting at its earliest declared step.
func (a *analysis) checkCycles() {
	var found [][]string
	for _, scc := range tarjanSCC(a.order, a.succ) {
		if len(scc) == 1 && !contains(a.succ[scc[0]], scc[0]) {
			continue
		}
		members := make(map[string]bool, len(scc))
		for _, id := range scc {
			members[id] = true
			a.cyclic[id] = true
		}
		found = append(found, a.simpleCycles(members, a.v.maxCycles-len(found))...)
		if len(found) >= a.v.maxCycles {
			a.v.logger.Warn("Cycle enumeration truncated", "limit", a.v.maxCycles)
			break
		}
	}

	// Report in declaration order of each cycle's first step.
	sortCycles(found, a.index)
	for _, cycle := range found {
		closed := append(append([]string{}, cycle...), cycle[0])
		a.errorf(domain.Diagnostic{Kind: domain.DiagCycleDetected, Step: cycle[0], Cycle: cycle},
			"cycle %s", strings.Join(closed, " -> "))
	}
}

// simpleCycles enumerates up to limit elementary cycles within members.
// A cycle is emitted only from its earliest declared step, which makes every
// rotation of it canonical and the enumeration free of duplicates.
//
// Steps that failed to close a cycle stay blocked until a step they feed
// does close one (Johnson's algorithm), so dead-end regions are walked once
// per start instead of once per path.
func (a *analysis) simpleCycles(members map[string]bool, limit int) [][]string {
	var out [][]string
	for _, start := range a.order {
		if !members[start] || len(out) >= limit {
			continue
		}
		allowed := func(w string) bool { return members[w] && a.index[w] >= a.index[start] }

		var path []string
		blocked := make(map[string]bool)
		blockedBy := make(map[string]map[string]bool)

		var unblock func(u string)
		unblock = func(u string) {
			blocked[u] = false
			for w := range blockedBy[u] {
				delete(blockedBy[u], w)
				if blocked[w] {
					unblock(w)
				}
			}
		}

		var circuit func(v string) bool
		circuit = func(v string) bool {
			closed := false
			path = append(path, v)
			blocked[v] = true
			for _, w := range a.succ[v] {
				if len(out) >= limit {
					break
				}
				if !allowed(w) {
					continue
				}
				if w == start {
					out = append(out, append([]string{}, path...))
					closed = true
				} else if !blocked[w] && circuit(w) {
					closed = true
				}
			}
			if closed {
				unblock(v)
			} else {
				for _, w := range a.succ[v] {
					if !allowed(w) {
						continue
					}
					if blockedBy[w] == nil {
						blockedBy[w] = make(map[string]bool)
					}
					blockedBy[w][v] = true
				}
			}
			path = path[:len(path)-1]
			return closed
		}
		circuit(start)
	}
	return out
}

func sortCycles(cycles [][]string, index map[string]int) {
	less := func(x, y []string) bool {
		for k := 0; k < len(x) && k < len(y); k++ {
			if x[k] != y[k] {
				return index[x[k]] < index[y[k]]
			}
		}
		return len(x) < len(y)
	}
	for i := 1; i < len(cycles); i++ {
		for j := i; j > 0 && less(cycles[j], cycles[j-1]); j-- {
			cycles[j], cycles[j-1] = cycles[j-1], cycles[j]
		}
	}
}

// tarjanSCC returns the strongly connected components of the graph given by
// nodes and edges.
func tarjanSCC(nodes []string, edges map[string][]string) [][]string {
	index := 0
	stack := make([]string, 0, len(nodes))
	onStack := make(map[string]bool, len(nodes))
	indices := make(map[string]int, len(nodes))
	lowlinks := make(map[string]int, len(nodes))
	sccs := make([][]string, 0)

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlinks[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range edges[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				if lowlinks[w] < lowlinks[v] {
					lowlinks[v] = lowlinks[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlinks[v] {
					lowlinks[v] = indices[w]
				}
			}
		}

		if lowlinks[v] == indices[v] {
			scc := make([]string, 0)
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, v := range nodes {
		if _, visited := indices[v]; !visited {
			strongConnect(v)
		}
	}
	return sccs
}
