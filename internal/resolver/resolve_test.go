package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qml/internal/ir"
	"github.com/roach88/qml/internal/units"
)

var series = units.Series(units.Fraction)

func at(name string, offset int) *ir.Expr {
	return &ir.Expr{Kind: ir.ExprIndex, Type: units.Fraction, Name: name,
		Index: &ir.TimeIndex{Relative: true, Offset: offset}}
}

func abs(name string, k int) *ir.Expr {
	return &ir.Expr{Kind: ir.ExprIndex, Type: units.Fraction, Name: name, Index: &ir.TimeIndex{Offset: k}}
}

func ref(name string) *ir.Expr {
	return &ir.Expr{Kind: ir.ExprRef, Type: units.Fraction, Name: name}
}

func num(v float64) *ir.Expr {
	return &ir.Expr{Kind: ir.ExprNum, Type: units.Fraction, Value: v}
}

func plus(l, r *ir.Expr) *ir.Expr {
	return &ir.Expr{Kind: ir.ExprBinary, Type: units.Fraction, Operator: "+", Args: []*ir.Expr{l, r}}
}

func ge(l, r *ir.Expr) *ir.Expr {
	return &ir.Expr{Kind: ir.ExprBinary, Type: units.Boolean, Operator: ">=", Args: []*ir.Expr{l, r}}
}

func TestResolve_SameStepCycle(t *testing.T) {
	m := &ir.Model{Vars: []ir.Var{
		{Name: "a", Type: series, Recurrence: plus(at("b", 0), num(1))},
		{Name: "b", Type: series, Recurrence: plus(at("a", 0), num(1))},
	}}
	_, err := Resolve(m)
	var ce *CircularDependencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"a", "b", "a"}, ce.Cycle)
	assert.Equal(t, "CircularDependencyError", ce.Kind())
	assert.Equal(t, ErrCodeCircular, ce.ErrorCode())
	assert.Contains(t, ce.Error(), "a -> b -> a")
}

func TestResolve_SelfLoop(t *testing.T) {
	m := &ir.Model{Vars: []ir.Var{
		{Name: "x", Type: series, Recurrence: plus(at("x", 0), num(1))},
	}}
	_, err := Resolve(m)
	var ce *CircularDependencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"x", "x"}, ce.Cycle)
}

func TestResolve_LaggedSelfReference(t *testing.T) {
	m := &ir.Model{Vars: []ir.Var{
		{Name: "x", Type: series, Init: num(100), Recurrence: plus(at("x", -1), num(1))},
	}}
	plan, err := Resolve(m)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, plan.Series)
	assert.Equal(t, []Edge{{From: "x", To: "x", Kind: EdgeLagged, Lag: 1}}, plan.Graph.Edges)
}

func TestResolve_LaggedMutualReference(t *testing.T) {
	// a reads b one step back while b reads a now: ordered, not a cycle.
	m := &ir.Model{Vars: []ir.Var{
		{Name: "a", Type: series, Init: num(1), Recurrence: at("b", -1)},
		{Name: "b", Type: series, Recurrence: at("a", 0)},
	}}
	plan, err := Resolve(m)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, plan.Series)
}

func TestResolve_TopologicalOrder(t *testing.T) {
	m := &ir.Model{
		Params: []ir.Param{{Name: "p"}},
		Vars: []ir.Var{
			{Name: "revenue", Type: series, Recurrence: plus(at("customers", 0), ref("arpu"))},
			{Name: "customers", Type: series, Init: num(10), Recurrence: at("customers", -1)},
			{Name: "arpu", Type: units.Fraction, Recurrence: plus(ref("base"), ref("p"))},
			{Name: "base", Type: units.Fraction, Recurrence: num(3)},
		},
		Constraints: []ir.Constraint{
			{Name: "positive", Expr: ge(at("revenue", 0), num(0))},
		},
	}
	plan, err := Resolve(m)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, plan.Scalars)
	assert.Equal(t, []int{1, 0}, plan.Series)
	assert.Equal(t, []int{0}, plan.Constraints)

	assert.Len(t, plan.Graph.Nodes, 6)
	assert.Contains(t, plan.Graph.Edges, Edge{From: "positive", To: "revenue", Kind: EdgeSameStep})
	assert.Contains(t, plan.Graph.Edges, Edge{From: "arpu", To: "p", Kind: EdgeSameStep})
}

func TestResolve_DeclarationOrderTieBreak(t *testing.T) {
	m := &ir.Model{Vars: []ir.Var{
		{Name: "c", Type: series, Recurrence: num(1)},
		{Name: "a", Type: series, Recurrence: num(2)},
		{Name: "b", Type: series, Recurrence: num(3)},
	}}
	plan, err := Resolve(m)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, plan.Series)
}

func TestBuild_AbsoluteIndex(t *testing.T) {
	m := &ir.Model{Vars: []ir.Var{
		{Name: "x", Type: series, Recurrence: plus(abs("x", 0), abs("y", 0))},
		{Name: "y", Type: series, Recurrence: num(1)},
	}}
	g := Build(m)
	assert.Equal(t, []Edge{{From: "x", To: "y", Kind: EdgeSameStep}}, g.Edges)

	plan, err := Resolve(m)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, plan.Series)
}

func TestResolve_MutualAbsoluteIndexIsCycle(t *testing.T) {
	// Absolute indexes into another var always order as same-step, even
	// when the index names a step that is already computed.
	m := &ir.Model{Vars: []ir.Var{
		{Name: "a", Type: series, Recurrence: plus(num(1), abs("b", 0))},
		{Name: "b", Type: series, Recurrence: plus(abs("a", 0), abs("a", 0))},
	}}
	_, err := Resolve(m)
	var ce *CircularDependencyError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"a", "b", "a"}, ce.Cycle)
}

func TestBuild_Deterministic(t *testing.T) {
	m := &ir.Model{Vars: []ir.Var{
		{Name: "z", Type: series, Recurrence: plus(at("y", 0), plus(at("x", -2), at("x", -1)))},
		{Name: "y", Type: series, Recurrence: num(1)},
		{Name: "x", Type: series, Init: num(0), Recurrence: num(1)},
	}}
	first := Build(m)
	for range 20 {
		assert.Equal(t, first, Build(m))
	}
	assert.Equal(t, []Edge{
		{From: "z", To: "x", Kind: EdgeLagged, Lag: 1},
		{From: "z", To: "x", Kind: EdgeLagged, Lag: 2},
		{From: "z", To: "y", Kind: EdgeSameStep},
	}, first.Edges)
}
