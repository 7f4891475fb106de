package compiler

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/qml/internal/dist"
	"github.com/roach88/qml/internal/funcs"
	"github.com/roach88/qml/internal/ir"
	"github.com/roach88/qml/internal/units"
)

type symbolKind int

const (
	symParam symbolKind = iota
	symScalar
	symSeries
)

type symbol struct {
	kind symbolKind
	typ  units.Type
}

// exprCtx restricts what an expression may reference.
type exprCtx struct {
	node     string // declaration name, for diagnostics
	constant bool   // literals and registered functions only
	timeless bool   // no t, no series reads
	initial  bool   // evaluated at t=0 only; lookback is impossible
	shift    int    // added to relative offsets (forward recurrences use -1)
}

// Checked is the output of type checking: every expression typed and
// lowered to IR form. Provenance is attached later, at emission.
type Checked struct {
	Decl        *ModelDecl
	Params      []ir.Param
	Vars        []ir.Var
	Constraints []ir.Constraint
}

type checker struct {
	alg     *units.Algebra
	funcs   *funcs.Registry
	decl    *ModelDecl
	symbols map[string]symbol
}

// Check type-checks the AST bottom-up and fails at the first unresolvable
// mismatch.
func Check(decl *ModelDecl, alg *units.Algebra, reg *funcs.Registry) (*Checked, error) {
	c := &checker{alg: alg, funcs: reg, decl: decl, symbols: make(map[string]symbol)}
	if err := c.declare(); err != nil {
		return nil, err
	}

	out := &Checked{Decl: decl}
	for _, p := range decl.Params {
		param, err := c.param(p)
		if err != nil {
			return nil, err
		}
		out.Params = append(out.Params, param)
	}
	for _, v := range decl.Vars {
		variable, err := c.variable(v)
		if err != nil {
			return nil, err
		}
		out.Vars = append(out.Vars, variable)
	}
	seen := make(map[string]bool)
	for _, k := range decl.Constraints {
		if seen[k.Name] {
			return nil, &ParseError{Code: ErrCodeDuplicate, Pos: k.Pos, Message: fmt.Sprintf("constraint %q declared twice", k.Name)}
		}
		seen[k.Name] = true
		con, err := c.constraint(k)
		if err != nil {
			return nil, err
		}
		out.Constraints = append(out.Constraints, con)
	}
	return out, nil
}

// declare builds the symbol table so that declarations may reference each
// other regardless of source order.
func (c *checker) declare() error {
	add := func(pos Pos, name string, s symbol) error {
		if name == "t" || name == "dt" {
			return &ParseError{Code: ErrCodeDuplicate, Pos: pos, Message: fmt.Sprintf("%q is reserved", name)}
		}
		if _, dup := c.symbols[name]; dup {
			return &ParseError{Code: ErrCodeDuplicate, Pos: pos, Message: fmt.Sprintf("%q declared twice", name)}
		}
		c.symbols[name] = s
		return nil
	}
	for _, p := range c.decl.Params {
		if !p.Type.IsNumeric() && p.Type.Kind != units.KindBoolean {
			return typeErrorf(units.ErrCodeNotAssignable, p.Pos, p.Name, "param type must be a scalar, got %s", p.Type)
		}
		if err := add(p.Pos, p.Name, symbol{kind: symParam, typ: p.Type}); err != nil {
			return err
		}
	}
	for _, v := range c.decl.Vars {
		kind := symScalar
		if v.Type.Kind == units.KindSeries {
			kind = symSeries
		}
		if err := add(v.Pos, v.Name, symbol{kind: kind, typ: v.Type}); err != nil {
			return err
		}
	}
	return nil
}

func (c *checker) param(p *ParamDecl) (ir.Param, error) {
	out := ir.Param{Name: p.Name, Type: p.Type}
	ctx := &exprCtx{node: p.Name, constant: true, timeless: true}

	if p.Value != nil {
		v, err := c.constant(p.Value, p.Type, ctx)
		if err != nil {
			return out, err
		}
		out.Value = &v
		return out, nil
	}

	family, ok := familyNames[strings.ToLower(p.Dist.Family)]
	if !ok {
		return out, typeErrorf(ErrCodeBadDistribution, p.Dist.Pos, p.Name, "unknown distribution %q", p.Dist.Family)
	}
	if want := ir.FamilyArity[family]; len(p.Dist.Args) != want {
		return out, typeErrorf(ErrCodeBadDistribution, p.Dist.Pos, p.Name,
			"%s takes %d parameters, got %d", p.Dist.Family, want, len(p.Dist.Args))
	}

	d := &ir.Distribution{Family: family}
	for _, a := range p.Dist.Args {
		// Beta shape and LogNormal log-space parameters are dimensionless;
		// the others are expressed in the param's own unit.
		target := p.Type
		if family == ir.FamilyBeta || family == ir.FamilyLogNormal {
			target = units.Fraction
		}
		v, err := c.constant(a, target, ctx)
		if err != nil {
			return out, err
		}
		d.Params = append(d.Params, v)
	}
	if _, err := dist.FromIR(d); err != nil {
		return out, typeErrorf(ErrCodeBadDistribution, p.Dist.Pos, p.Name, "%v", err)
	}
	for _, corr := range p.Dist.Correlations {
		rho, err := c.constant(corr.Rho, units.Fraction, ctx)
		if err != nil {
			return out, err
		}
		d.Correlations = append(d.Correlations, ir.Correlation{Param: corr.Param, Rho: rho})
	}
	out.Distribution = d
	return out, nil
}

var familyNames = map[string]string{
	"normal":    ir.FamilyNormal,
	"beta":      ir.FamilyBeta,
	"lognormal": ir.FamilyLogNormal,
	"uniform":   ir.FamilyUniform,
	"constant":  ir.FamilyConstant,
}

// constant checks e as a constant expression assignable to target and
// folds it to a number in target's unit.
func (c *checker) constant(e Expr, target units.Type, ctx *exprCtx) (float64, error) {
	x, err := c.expr(e, ctx)
	if err != nil {
		return 0, err
	}
	factor, err := c.alg.Assign(target, x.Type)
	if err != nil {
		return 0, typeErrorAt(e.Position(), ctx.node, err)
	}
	v, err := fold(x, c.funcs)
	if err != nil {
		return 0, typeErrorf(ErrCodeBadConstant, e.Position(), ctx.node, "%v", err)
	}
	return v * factor, nil
}

func (c *checker) variable(v *VarDecl) (ir.Var, error) {
	out := ir.Var{Name: v.Name, Type: v.Type}

	if v.Type.Kind != units.KindSeries {
		if v.Value == nil {
			return out, typeErrorf(ErrCodeSeriesDefinition, v.Pos, v.Name, "scalar var %s needs `= expr`, not indexed bindings", v.Name)
		}
		rec, err := c.assigned(v.Value, v.Type, &exprCtx{node: v.Name, timeless: true})
		if err != nil {
			return out, err
		}
		out.Recurrence = rec
		return out, nil
	}

	elem := *v.Type.Elem
	if v.Value != nil {
		rec, err := c.assigned(v.Value, elem, &exprCtx{node: v.Name})
		if err != nil {
			return out, err
		}
		out.Recurrence = rec
		return out, c.requireInit(v, out, false)
	}

	forward := false
	for _, b := range v.Bindings {
		if b.Target != v.Name {
			return out, typeErrorf(ErrCodeSeriesDefinition, b.Pos, v.Name, "binding for %s inside var %s", b.Target, v.Name)
		}
		kind, err := bindingKind(b)
		if err != nil {
			return out, err
		}
		switch kind {
		case bindInit:
			if out.Init != nil {
				return out, typeErrorf(ErrCodeSeriesDefinition, b.Pos, v.Name, "%s has more than one initial condition", v.Name)
			}
			init, err := c.assigned(b.Value, elem, &exprCtx{node: v.Name, initial: true})
			if err != nil {
				return out, err
			}
			out.Init = init
		case bindCurrent, bindForward:
			if out.Recurrence != nil {
				return out, typeErrorf(ErrCodeSeriesDefinition, b.Pos, v.Name, "%s has more than one recurrence", v.Name)
			}
			ctx := &exprCtx{node: v.Name}
			if kind == bindForward {
				ctx.shift = -1
				forward = true
			}
			rec, err := c.assigned(b.Value, elem, ctx)
			if err != nil {
				return out, err
			}
			out.Recurrence = rec
		}
	}
	if out.Recurrence == nil {
		return out, typeErrorf(ErrCodeSeriesDefinition, v.Pos, v.Name, "%s has no recurrence binding", v.Name)
	}
	return out, c.requireInit(v, out, forward)
}

// requireInit fails when the recurrence cannot produce t=0 on its own.
func (c *checker) requireInit(v *VarDecl, out ir.Var, forward bool) error {
	if out.Init != nil {
		return nil
	}
	if forward {
		return typeErrorf(ErrCodeSeriesDefinition, v.Pos, v.Name, "%s[t+1] needs an initial condition %s[0]", v.Name, v.Name)
	}
	selfLag := false
	out.Recurrence.Walk(func(e *ir.Expr) {
		if e.Kind == ir.ExprIndex && e.Name == v.Name && e.Index.Relative && e.Index.Offset < 0 {
			selfLag = true
		}
	})
	if selfLag {
		return typeErrorf(ErrCodeSeriesDefinition, v.Pos, v.Name, "%s reads its own past values and needs an initial condition %s[0]", v.Name, v.Name)
	}
	return nil
}

type bindKind int

const (
	bindInit bindKind = iota
	bindCurrent
	bindForward
)

// bindingKind classifies the left-hand index: [0], [t] or [t+1].
func bindingKind(b *Binding) (bindKind, error) {
	switch ix := b.Index.(type) {
	case *NumberLit:
		if ix.Value == 0 && ix.Unit == "" {
			return bindInit, nil
		}
	case *Ident:
		if ix.Name == "t" {
			return bindCurrent, nil
		}
	case *BinaryExpr:
		if id, ok := ix.L.(*Ident); ok && id.Name == "t" && ix.Op == PLUS {
			if n, ok := ix.R.(*NumberLit); ok && n.Value == 1 && n.Unit == "" {
				return bindForward, nil
			}
		}
	}
	return 0, typeErrorf(ErrCodeSeriesDefinition, b.Pos, b.Target, "left-hand side must be %s[0], %s[t] or %s[t+1]", b.Target, b.Target, b.Target)
}

// assigned checks e and scales it into the declared type's unit.
func (c *checker) assigned(e Expr, declared units.Type, ctx *exprCtx) (*ir.Expr, error) {
	x, err := c.expr(e, ctx)
	if err != nil {
		return nil, err
	}
	factor, err := c.alg.Assign(declared, x.Type)
	if err != nil {
		return nil, typeErrorAt(e.Position(), ctx.node, err)
	}
	if factor != 1 {
		x.Scale = x.ScaleOr1() * factor
	}
	if x.Type.Kind == units.KindUntyped {
		x.Type = declared
	}
	return x, nil
}

func (c *checker) constraint(k *ConstraintDecl) (ir.Constraint, error) {
	out := ir.Constraint{Name: k.Name, Severity: ir.Severity(k.Severity), Message: k.Message}
	if out.Message == "" {
		out.Message = fmt.Sprintf("constraint %s violated at t={t}", k.Name)
	}

	x, err := c.expr(k.Expr, &exprCtx{node: k.Name})
	if err != nil {
		return out, err
	}
	if x.Type.Kind != units.KindBoolean {
		return out, typeErrorf(ErrCodeNotBoolean, k.Expr.Position(), k.Name, "constraint must be Boolean, got %s", x.Type)
	}
	out.Expr = x

	switch {
	case k.At != nil:
		if *k.At > c.decl.Horizon {
			return out, typeErrorf(units.ErrCodeBadIndex, k.Pos, k.Name, "t = %d is beyond the horizon %d", *k.At, c.decl.Horizon)
		}
		out.Scope = ir.Scope{Kind: ir.ScopeAt, T: *k.At}
	case isStatic(x):
		out.Scope = ir.Scope{Kind: ir.ScopeStatic}
	default:
		out.Scope = ir.Scope{Kind: ir.ScopeAll}
	}
	return out, nil
}

// isStatic reports whether x reads neither time series nor t.
func isStatic(x *ir.Expr) bool {
	static := true
	x.Walk(func(e *ir.Expr) {
		if e.Kind == ir.ExprIndex || e.Kind == ir.ExprTime {
			static = false
		}
	})
	return static
}

var binaryOps = map[TokenType]units.Op{
	PLUS: units.Add, MINUS: units.Sub, STAR: units.Mul, SLASH: units.Div,
	LESS: units.Lt, LESS_EQ: units.Le, GREATER: units.Gt, GREATER_EQ: units.Ge,
	EQ: units.Eq, NEQ: units.Ne, AND: units.And, OR: units.Or,
}

func (c *checker) expr(e Expr, ctx *exprCtx) (*ir.Expr, error) {
	switch n := e.(type) {
	case *NumberLit:
		return c.number(n, ctx)

	case *BoolLit:
		v := 0.0
		if n.Value {
			v = 1
		}
		return &ir.Expr{Kind: ir.ExprNum, Type: units.Boolean, Value: v}, nil

	case *Ident:
		return c.ident(n, ctx)

	case *IndexExpr:
		return c.index(n, ctx)

	case *UnaryExpr:
		x, err := c.expr(n.X, ctx)
		if err != nil {
			return nil, err
		}
		var typ units.Type
		op := "-"
		if n.Op == NOT {
			op = "not"
			typ, err = c.alg.Not(x.Type)
		} else {
			typ, err = c.alg.Negate(x.Type)
		}
		if err != nil {
			return nil, typeErrorAt(n.Pos, ctx.node, err)
		}
		return &ir.Expr{Kind: ir.ExprUnary, Type: typ, Operator: op, Args: []*ir.Expr{x}}, nil

	case *BinaryExpr:
		l, err := c.expr(n.L, ctx)
		if err != nil {
			return nil, err
		}
		r, err := c.expr(n.R, ctx)
		if err != nil {
			return nil, err
		}
		op := binaryOps[n.Op]
		res, err := c.alg.Binary(op, l.Type, r.Type)
		if err != nil {
			return nil, typeErrorAt(n.Pos, ctx.node, err)
		}
		return &ir.Expr{
			Kind: ir.ExprBinary, Type: res.Type, Operator: string(op), Args: []*ir.Expr{l, r},
			Scale: nonUnit(res.Factor), RightScale: nonUnit(res.RightFactor),
		}, nil

	case *CallExpr:
		args := make([]*ir.Expr, len(n.Args))
		types := make([]units.Type, len(n.Args))
		for i, a := range n.Args {
			x, err := c.expr(a, ctx)
			if err != nil {
				return nil, err
			}
			args[i], types[i] = x, x.Type
		}
		typ, err := c.funcs.Resolve(c.alg, n.Name, types)
		if err != nil {
			return nil, typeErrorAt(n.Pos, ctx.node, err)
		}
		return &ir.Expr{Kind: ir.ExprCall, Type: typ, Name: n.Name, Args: args}, nil

	case *IfExpr:
		cond, err := c.expr(n.Cond, ctx)
		if err != nil {
			return nil, err
		}
		if cond.Type.Kind != units.KindBoolean {
			return nil, typeErrorf(ErrCodeNotBoolean, n.Cond.Position(), ctx.node, "condition must be Boolean, got %s", cond.Type)
		}
		then, err := c.expr(n.Then, ctx)
		if err != nil {
			return nil, err
		}
		els, err := c.expr(n.Else, ctx)
		if err != nil {
			return nil, err
		}
		res, err := c.alg.Unify(then.Type, els.Type)
		if err != nil {
			return nil, typeErrorAt(n.Pos, ctx.node, err)
		}
		return &ir.Expr{Kind: ir.ExprIf, Type: res.Type, Args: []*ir.Expr{cond, then, els}, RightScale: nonUnit(res.RightFactor)}, nil
	}
	return nil, typeErrorf(units.ErrCodeInvalidOperands, e.Position(), ctx.node, "unsupported expression %T", e)
}

func (c *checker) number(n *NumberLit, ctx *exprCtx) (*ir.Expr, error) {
	out := &ir.Expr{Kind: ir.ExprNum, Type: units.Untyped, Value: n.Value}
	switch {
	case n.Unit == "":
	case units.ValidCurrency(n.Unit):
		out.Type = units.Currency(n.Unit)
	default:
		g, err := units.ParseGranularity(n.Unit)
		if err != nil {
			return nil, typeErrorf(units.ErrCodeUnknownType, n.Pos, ctx.node, "unknown unit %q", n.Unit)
		}
		out.Type = units.Duration(g)
	}
	return out, nil
}

func (c *checker) ident(n *Ident, ctx *exprCtx) (*ir.Expr, error) {
	switch n.Name {
	case "t":
		if ctx.timeless {
			return nil, typeErrorf(ErrCodeScalarTime, n.Pos, ctx.node, "%s cannot depend on t", ctx.node)
		}
		out := &ir.Expr{Kind: ir.ExprTime, Type: units.Fraction}
		if ctx.shift != 0 {
			out.Index = &ir.TimeIndex{Relative: true, Offset: ctx.shift}
		}
		return out, nil
	case "dt":
		if ctx.constant {
			return nil, typeErrorf(ErrCodeBadConstant, n.Pos, ctx.node, "dt is not allowed in a constant expression")
		}
		return &ir.Expr{Kind: ir.ExprDt, Type: units.Duration(c.decl.Step)}, nil
	}

	sym, ok := c.symbols[n.Name]
	if !ok {
		return nil, typeErrorf(units.ErrCodeUnknownReference, n.Pos, ctx.node, "undefined: %s", n.Name)
	}
	if ctx.constant {
		return nil, typeErrorf(ErrCodeBadConstant, n.Pos, ctx.node, "%s: param values must be constant, found reference to %s", ctx.node, n.Name)
	}
	if sym.kind == symSeries {
		return nil, typeErrorf(units.ErrCodeUnindexedSeries, n.Pos, ctx.node, "%s is a TimeSeries: index it, e.g. %s[t]", n.Name, n.Name)
	}
	return &ir.Expr{Kind: ir.ExprRef, Type: sym.typ, Name: n.Name}, nil
}

func (c *checker) index(n *IndexExpr, ctx *exprCtx) (*ir.Expr, error) {
	sym, ok := c.symbols[n.Target]
	if !ok {
		return nil, typeErrorf(units.ErrCodeUnknownReference, n.Pos, ctx.node, "undefined: %s", n.Target)
	}
	typ, err := c.alg.Index(sym.typ)
	if err != nil {
		return nil, typeErrorAt(n.Pos, ctx.node, err)
	}
	if ctx.timeless {
		return nil, typeErrorf(ErrCodeScalarTime, n.Pos, ctx.node, "%s cannot read time series %s", ctx.node, n.Target)
	}

	ix, err := timeIndex(n.Index)
	if err != nil {
		return nil, typeErrorf(units.ErrCodeBadIndex, n.Index.Position(), ctx.node, "%v", err)
	}
	if ix.Relative {
		ix.Offset += ctx.shift
		if ix.Offset > 0 {
			return nil, typeErrorf(ErrCodeFutureReference, n.Pos, ctx.node,
				"%s reads %s at a later time step", ctx.node, n.Target)
		}
		if ctx.initial && ix.Offset < 0 {
			return nil, typeErrorf(units.ErrCodeBadIndex, n.Pos, ctx.node,
				"initial condition of %s cannot look back before t=0", ctx.node)
		}
	}
	return &ir.Expr{Kind: ir.ExprIndex, Type: typ, Name: n.Target, Index: &ix}, nil
}

// timeIndex accepts t, t+k, t-k and non-negative integer literals.
func timeIndex(e Expr) (ir.TimeIndex, error) {
	intLit := func(e Expr) (int, bool) {
		n, ok := e.(*NumberLit)
		if !ok || n.Unit != "" || n.Value != math.Trunc(n.Value) || n.Value < 0 || n.Value > math.MaxInt32 {
			return 0, false
		}
		return int(n.Value), true
	}
	switch ix := e.(type) {
	case *Ident:
		if ix.Name == "t" {
			return ir.TimeIndex{Relative: true}, nil
		}
	case *NumberLit:
		if k, ok := intLit(ix); ok {
			return ir.TimeIndex{Offset: k}, nil
		}
	case *BinaryExpr:
		id, ok := ix.L.(*Ident)
		k, isInt := intLit(ix.R)
		if ok && id.Name == "t" && isInt {
			switch ix.Op {
			case PLUS:
				return ir.TimeIndex{Relative: true, Offset: k}, nil
			case MINUS:
				return ir.TimeIndex{Relative: true, Offset: -k}, nil
			}
		}
	}
	return ir.TimeIndex{}, fmt.Errorf("time index must be t, t+k, t-k or an integer step")
}

func nonUnit(f float64) float64 {
	if f == 1 {
		return 0
	}
	return f
}

// fold evaluates a constant expression.
func fold(e *ir.Expr, reg *funcs.Registry) (float64, error) {
	var v float64
	switch e.Kind {
	case ir.ExprNum:
		v = e.Value
	case ir.ExprUnary:
		x, err := fold(e.Args[0], reg)
		if err != nil {
			return 0, err
		}
		if e.Operator == "not" {
			v = ir.Bool(x == 0)
		} else {
			v = -x
		}
	case ir.ExprBinary:
		l, err := fold(e.Args[0], reg)
		if err != nil {
			return 0, err
		}
		r, err := fold(e.Args[1], reg)
		if err != nil {
			return 0, err
		}
		if v, err = ir.ApplyBinary(e.Operator, l, r*e.RightScaleOr1()); err != nil {
			return 0, err
		}
	case ir.ExprCall:
		args := make([]float64, len(e.Args))
		for i, a := range e.Args {
			x, err := fold(a, reg)
			if err != nil {
				return 0, err
			}
			args[i] = x
		}
		x, err := reg.Call(e.Name, args)
		if err != nil {
			return 0, err
		}
		v = x
	case ir.ExprIf:
		cond, err := fold(e.Args[0], reg)
		if err != nil {
			return 0, err
		}
		if cond != 0 {
			v, err = fold(e.Args[1], reg)
		} else {
			v, err = fold(e.Args[2], reg)
			v *= e.RightScaleOr1()
		}
		if err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("not a constant expression")
	}
	v *= e.ScaleOr1()
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("constant expression is not finite")
	}
	return v, nil
}
