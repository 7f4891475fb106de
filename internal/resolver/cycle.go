package resolver

import (
	"fmt"
	"strings"
)

// findCycle returns one same-step cycle as a closed path (first element
// repeated at the end), or nil. order fixes the visiting order so the
// reported cycle is stable across runs.
func findCycle(adj map[string][]string, order []string) []string {
	for _, scc := range tarjanSCC(adj, order) {
		if len(scc) > 1 || hasSelfLoop(scc[0], adj) {
			return cyclePath(scc, adj, order)
		}
	}
	return nil
}

func hasSelfLoop(node string, adj map[string][]string) bool {
	for _, w := range adj[node] {
		if w == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components, visiting roots in order.
func tarjanSCC(adj map[string][]string, order []string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
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

	for _, node := range order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// cyclePath walks edges inside scc from its earliest-declared member back
// to itself.
func cyclePath(scc []string, adj map[string][]string, order []string) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}
	var start string
	for _, n := range order {
		if members[n] {
			start = n
			break
		}
	}
	if hasSelfLoop(start, adj) && len(scc) == 1 {
		return []string{start, start}
	}

	// Depth-first search for a simple path start -> ... -> start.
	path := []string{start}
	onPath := map[string]bool{start: true}
	var walk func(v string) bool
	walk = func(v string) bool {
		for _, w := range adj[v] {
			if w == start && len(path) > 1 {
				path = append(path, w)
				return true
			}
			if members[w] && !onPath[w] {
				onPath[w] = true
				path = append(path, w)
				if walk(w) {
					return true
				}
				path = path[:len(path)-1]
				onPath[w] = false
			}
		}
		return false
	}
	walk(start)
	return path
}

// CircularDependencyError reports a same-step cycle.
type CircularDependencyError struct {
	Cycle []string
}

// ErrCodeCircular is the error code for same-step cycles.
const ErrCodeCircular = "E401"

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency [%s]: %s", ErrCodeCircular, strings.Join(e.Cycle, " -> "))
}

// Kind returns the error taxonomy name.
func (e *CircularDependencyError) Kind() string { return "CircularDependencyError" }

// ErrorCode returns the stable error code.
func (e *CircularDependencyError) ErrorCode() string { return ErrCodeCircular }

// Location returns the first node of the cycle.
func (e *CircularDependencyError) Location() string {
	if len(e.Cycle) == 0 {
		return ""
	}
	return e.Cycle[0]
}
