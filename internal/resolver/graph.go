// Package resolver builds the dependency graph of a compiled model and
// derives the evaluation order used at every time step.
//
// Edges come in two kinds. A same-step edge reads a value computed in the
// current step and constrains ordering; a lagged edge reads a value from an
// earlier step and is already available, so it is excluded from cycle
// detection. This is what lets x[t] = x[t-1] * r compile.
package resolver

import (
	"cmp"
	"slices"

	"github.com/roach88/qml/internal/ir"
)

// Node kinds.
const (
	NodeParam      = "param"
	NodeVar        = "var"
	NodeConstraint = "constraint"
)

// Edge kinds.
const (
	EdgeSameStep = "same-step"
	EdgeLagged   = "lagged"
)

// Node is a param, var or constraint.
type Node struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// Edge From -> To means evaluating From reads To. Lag is the number of
// steps back for lagged edges.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"`
	Lag  int    `json:"lag,omitempty"`
}

// Graph is the dependency graph of one model. Nodes keep declaration order
// and edges are sorted, so two builds of the same model are identical.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Build derives the graph of m. Edges are deduplicated; when a node reads
// another at several lags, each distinct lag is one edge.
func Build(m *ir.Model) *Graph {
	g := &Graph{}
	for _, p := range m.Params {
		g.Nodes = append(g.Nodes, Node{ID: p.Name, Kind: NodeParam})
	}
	for _, v := range m.Vars {
		g.Nodes = append(g.Nodes, Node{ID: v.Name, Kind: NodeVar})
	}
	for _, c := range m.Constraints {
		g.Nodes = append(g.Nodes, Node{ID: c.Name, Kind: NodeConstraint})
	}

	seen := make(map[Edge]bool)
	add := func(e Edge) {
		if !seen[e] {
			seen[e] = true
			g.Edges = append(g.Edges, e)
		}
	}
	for _, v := range m.Vars {
		for _, e := range reads(v.Name, v.Init) {
			add(e)
		}
		for _, e := range reads(v.Name, v.Recurrence) {
			add(e)
		}
	}
	for _, c := range m.Constraints {
		for _, e := range reads(c.Name, c.Expr) {
			add(e)
		}
	}

	slices.SortFunc(g.Edges, func(a, b Edge) int {
		switch {
		case a.From != b.From:
			return cmp.Compare(a.From, b.From)
		case a.To != b.To:
			return cmp.Compare(a.To, b.To)
		case a.Kind != b.Kind:
			return cmp.Compare(a.Kind, b.Kind)
		}
		return a.Lag - b.Lag
	})
	return g
}

// reads classifies every reference in expr. A relative index at offset 0
// and any plain reference are same-step reads; a negative offset is
// lagged. An absolute index into another var orders conservatively as
// same-step. An absolute index into the node itself can only read an
// earlier step and adds no edge.
func reads(from string, expr *ir.Expr) []Edge {
	var out []Edge
	expr.Walk(func(e *ir.Expr) {
		switch e.Kind {
		case ir.ExprRef:
			out = append(out, Edge{From: from, To: e.Name, Kind: EdgeSameStep})
		case ir.ExprIndex:
			switch {
			case e.Index.Relative && e.Index.Offset < 0:
				out = append(out, Edge{From: from, To: e.Name, Kind: EdgeLagged, Lag: -e.Index.Offset})
			case e.Index.Relative:
				out = append(out, Edge{From: from, To: e.Name, Kind: EdgeSameStep})
			case e.Name != from:
				out = append(out, Edge{From: from, To: e.Name, Kind: EdgeSameStep})
			}
		}
	})
	return out
}

// sameStep returns the adjacency of same-step edges between vars.
func (g *Graph) sameStep() map[string][]string {
	vars := make(map[string]bool)
	for _, n := range g.Nodes {
		if n.Kind == NodeVar {
			vars[n.ID] = true
		}
	}
	adj := make(map[string][]string)
	for _, e := range g.Edges {
		if e.Kind == EdgeSameStep && vars[e.From] && vars[e.To] {
			adj[e.From] = append(adj[e.From], e.To)
		}
	}
	return adj
}
