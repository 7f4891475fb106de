package resolver

import (
	"github.com/roach88/qml/internal/ir"
)

// Plan is the static evaluation schedule of a model, reused unchanged at
// every time step of every sample. Entries are indices into the model's
// Vars and Constraints.
type Plan struct {
	// Scalars are evaluated once per sample, before the time loop.
	Scalars []int
	// Series are evaluated in this order at each step.
	Series []int
	// Constraints keep declaration order and run after Series at each step.
	Constraints []int

	Graph *Graph
}

// Resolve builds the dependency graph of m, rejects same-step cycles and
// orders vars so that every same-step read is computed before it is used.
// Ties are broken by declaration order.
func Resolve(m *ir.Model) (*Plan, error) {
	g := Build(m)
	adj := g.sameStep()

	order := make([]string, len(m.Vars))
	for i, v := range m.Vars {
		order[i] = v.Name
	}
	if cycle := findCycle(adj, order); cycle != nil {
		return nil, &CircularDependencyError{Cycle: cycle}
	}

	plan := &Plan{Graph: g}
	for _, i := range topoSort(m.Vars, adj) {
		if m.Vars[i].IsSeries() {
			plan.Series = append(plan.Series, i)
		} else {
			plan.Scalars = append(plan.Scalars, i)
		}
	}
	for i := range m.Constraints {
		plan.Constraints = append(plan.Constraints, i)
	}
	return plan, nil
}

// topoSort is Kahn's algorithm over an acyclic adjacency, always emitting
// the earliest-declared ready var.
func topoSort(vars []ir.Var, adj map[string][]string) []int {
	index := make(map[string]int, len(vars))
	for i, v := range vars {
		index[v.Name] = i
	}
	pending := make([]int, len(vars)) // unresolved dependencies per var
	dependents := make([][]int, len(vars))
	for from, tos := range adj {
		f := index[from]
		seen := make(map[int]bool)
		for _, to := range tos {
			k := index[to]
			if seen[k] {
				continue
			}
			seen[k] = true
			pending[f]++
			dependents[k] = append(dependents[k], f)
		}
	}

	done := make([]bool, len(vars))
	out := make([]int, 0, len(vars))
	for len(out) < len(vars) {
		next := -1
		for i := range vars {
			if !done[i] && pending[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			break
		}
		done[next] = true
		out = append(out, next)
		for _, d := range dependents[next] {
			pending[d]--
		}
	}
	return out
}
