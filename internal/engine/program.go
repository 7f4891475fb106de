package engine

import (
	"fmt"
	"math"

	"github.com/roach88/qml/internal/funcs"
	"github.com/roach88/qml/internal/ir"
)

// frame is the value store of one sample.
type frame struct {
	t       int
	params  []float64
	scalars []float64   // by var index; series slots unused
	series  [][]float64 // by var index; len is the number of computed steps
}

// evalFn is a compiled expression. Compiled programs are immutable and
// shared by all samples.
type evalFn func(f *frame) (float64, error)

type slotKind int

const (
	slotParam slotKind = iota
	slotScalar
	slotSeries
)

type slot struct {
	kind  slotKind
	index int
}

// lowerer lowers IR expressions to closures, resolving names to slots once.
type lowerer struct {
	slots map[string]slot
	funcs *funcs.Registry
}

func newLowerer(m *ir.Model, reg *funcs.Registry) *lowerer {
	c := &lowerer{slots: make(map[string]slot), funcs: reg}
	for i, p := range m.Params {
		c.slots[p.Name] = slot{kind: slotParam, index: i}
	}
	for i, v := range m.Vars {
		k := slotScalar
		if v.IsSeries() {
			k = slotSeries
		}
		c.slots[v.Name] = slot{kind: k, index: i}
	}
	return c
}

func (c *lowerer) compile(e *ir.Expr) (evalFn, error) {
	if e == nil {
		return nil, fmt.Errorf("missing expression")
	}
	fn, err := c.node(e)
	if err != nil {
		return nil, err
	}
	if e.Scale != 0 && e.Scale != 1 {
		scale, inner := e.Scale, fn
		fn = func(f *frame) (float64, error) {
			v, err := inner(f)
			return v * scale, err
		}
	}
	return fn, nil
}

func (c *lowerer) node(e *ir.Expr) (evalFn, error) {
	switch e.Kind {
	case ir.ExprNum:
		v := e.Value
		return func(*frame) (float64, error) { return v, nil }, nil

	case ir.ExprDt:
		// dt is one step, in the step's own unit.
		return func(*frame) (float64, error) { return 1, nil }, nil

	case ir.ExprTime:
		off := 0
		if e.Index != nil {
			off = e.Index.Offset
		}
		return func(f *frame) (float64, error) { return float64(f.t + off), nil }, nil

	case ir.ExprRef:
		s, ok := c.slots[e.Name]
		if !ok || s.kind == slotSeries {
			return nil, fmt.Errorf("unresolved reference %q", e.Name)
		}
		i := s.index
		if s.kind == slotParam {
			return func(f *frame) (float64, error) { return f.params[i], nil }, nil
		}
		return func(f *frame) (float64, error) { return f.scalars[i], nil }, nil

	case ir.ExprIndex:
		s, ok := c.slots[e.Name]
		if !ok || s.kind != slotSeries || e.Index == nil {
			return nil, fmt.Errorf("unresolved series read %q", e.Name)
		}
		i, ix, name := s.index, *e.Index, e.Name
		return func(f *frame) (float64, error) {
			step := ix.Resolve(f.t)
			if step < 0 {
				return 0, evalErrorf(ErrCodeIndex, "%s[%d]: lookback before t=0", name, step)
			}
			if step >= len(f.series[i]) {
				return 0, evalErrorf(ErrCodeIndex, "%s[%d] is not available at t=%d", name, step, f.t)
			}
			return f.series[i][step], nil
		}, nil

	case ir.ExprUnary:
		x, err := c.arg(e, 0)
		if err != nil {
			return nil, err
		}
		if e.Operator == "not" {
			return func(f *frame) (float64, error) {
				v, err := x(f)
				return ir.Bool(v == 0), err
			}, nil
		}
		return func(f *frame) (float64, error) {
			v, err := x(f)
			return -v, err
		}, nil

	case ir.ExprBinary:
		return c.binary(e)

	case ir.ExprIf:
		cond, err := c.arg(e, 0)
		if err != nil {
			return nil, err
		}
		then, err := c.arg(e, 1)
		if err != nil {
			return nil, err
		}
		els, err := c.arg(e, 2)
		if err != nil {
			return nil, err
		}
		rs := e.RightScaleOr1()
		// Only the taken branch is evaluated, so a guarded lookback such as
		// `if t == 0 then 0 else x[t-1]` never reads before t=0.
		return func(f *frame) (float64, error) {
			c, err := cond(f)
			if err != nil {
				return 0, err
			}
			if c != 0 {
				return then(f)
			}
			v, err := els(f)
			return v * rs, err
		}, nil

	case ir.ExprCall:
		fn, ok := c.funcs.Lookup(e.Name)
		if !ok {
			return nil, fmt.Errorf("unknown function %q", e.Name)
		}
		args := make([]evalFn, len(e.Args))
		for i := range e.Args {
			a, err := c.arg(e, i)
			if err != nil {
				return nil, err
			}
			args[i] = a
		}
		name := e.Name
		return func(f *frame) (float64, error) {
			vals := make([]float64, len(args))
			for i, a := range args {
				v, err := a(f)
				if err != nil {
					return 0, err
				}
				vals[i] = v
			}
			v, err := fn.Impl(vals)
			if err != nil {
				return 0, evalErrorf(ErrCodeArithmetic, "%s: %v", name, err)
			}
			return v, nil
		}, nil
	}
	return nil, fmt.Errorf("unknown expression kind %q", e.Kind)
}

func (c *lowerer) arg(e *ir.Expr, i int) (evalFn, error) {
	if i >= len(e.Args) {
		return nil, fmt.Errorf("%s node is missing operand %d", e.Kind, i)
	}
	return c.compile(e.Args[i])
}

// binary compiles l op r. `and` and `or` short-circuit.
func (c *lowerer) binary(e *ir.Expr) (evalFn, error) {
	l, err := c.arg(e, 0)
	if err != nil {
		return nil, err
	}
	r, err := c.arg(e, 1)
	if err != nil {
		return nil, err
	}
	op, rs := e.Operator, e.RightScaleOr1()

	switch op {
	case "and", "or":
		stop := 0.0 // `and` stops on false
		if op == "or" {
			stop = 1
		}
		return func(f *frame) (float64, error) {
			lv, err := l(f)
			if err != nil {
				return 0, err
			}
			if ir.Bool(lv != 0) == stop {
				return stop, nil
			}
			rv, err := r(f)
			return ir.Bool(rv != 0), err
		}, nil
	}

	if _, err := ir.ApplyBinary(op, 1, 1); err != nil {
		return nil, err
	}
	return func(f *frame) (float64, error) {
		lv, err := l(f)
		if err != nil {
			return 0, err
		}
		rv, err := r(f)
		if err != nil {
			return 0, err
		}
		v, err := ir.ApplyBinary(op, lv, rv*rs)
		if err != nil {
			return 0, evalErrorf(ErrCodeArithmetic, "%v", err)
		}
		return v, nil
	}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
