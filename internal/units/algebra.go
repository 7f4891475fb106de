package units

import (
	"errors"
	"fmt"
	"math"
)

// Op is a binary operator understood by the algebra.
type Op string

// Binary operators.
const (
	Add Op = "+"
	Sub Op = "-"
	Mul Op = "*"
	Div Op = "/"
	Lt  Op = "<"
	Le  Op = "<="
	Gt  Op = ">"
	Ge  Op = ">="
	Eq  Op = "=="
	Ne  Op = "!="
	And Op = "and"
	Or  Op = "or"
)

// IsComparison reports whether op yields a Boolean from two numbers.
func (op Op) IsComparison() bool {
	switch op {
	case Lt, Le, Gt, Ge, Eq, Ne:
		return true
	}
	return false
}

// Type error codes (E2xx).
const (
	ErrCodeUnitMismatch     = "E201" // operands have incompatible units
	ErrCodeInvalidOperands  = "E202" // operator not defined for operand kinds
	ErrCodeMeaninglessUnit  = "E203" // result dimensions have no economic meaning
	ErrCodeNotAssignable    = "E204" // value type does not match declaration
	ErrCodeUnindexedSeries  = "E205" // TimeSeries used without an index
	ErrCodeMixedCurrencies  = "E206" // product/quotient of two different currencies
	ErrCodeUnknownType      = "E207" // unknown type name or argument
	ErrCodeUnknownReference = "E208" // identifier not declared
	ErrCodeBadIndex         = "E209" // invalid time index
	ErrCodeBadCall          = "E210" // call to unknown function or bad arguments
)

// TypeError reports an ill-typed operation. Op and the operand types are
// set when the error comes from Binary.
type TypeError struct {
	Code    string
	Op      Op
	Left    Type
	Right   Type
	Message string
}

// Error implements the error interface.
func (e *TypeError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Kind returns the error taxonomy name.
func (e *TypeError) Kind() string {
	if e.Code == ErrCodeUnitMismatch {
		return "UnitMismatch"
	}
	return "TypeError"
}

// IsUnitMismatch reports whether err is a TypeError caused by incompatible
// units. Uses errors.As to handle wrapped errors.
func IsUnitMismatch(err error) bool {
	var te *TypeError
	return errors.As(err, &te) && te.Code == ErrCodeUnitMismatch
}

// Result is the outcome of a well-typed operation.
//
// Factor multiplies the raw result and RightFactor multiplies the right
// operand before the operation is applied. Both are 1 when no scale
// conversion is needed.
type Result struct {
	Type        Type
	Factor      float64
	RightFactor float64
}

// Conversions is a registry of currency conversion rates. The zero value is
// an empty registry.
type Conversions struct {
	rates map[[2]string]float64
}

// NewConversions returns an empty registry.
func NewConversions() *Conversions {
	return &Conversions{rates: make(map[[2]string]float64)}
}

// Register declares that one unit of from equals rate units of to. The
// inverse direction is derived.
func (c *Conversions) Register(from, to string, rate float64) {
	if c.rates == nil {
		c.rates = make(map[[2]string]float64)
	}
	c.rates[[2]string{from, to}] = rate
}

// Rate returns the number of to per one from.
func (c *Conversions) Rate(from, to string) (float64, bool) {
	if from == to {
		return 1, true
	}
	if c == nil {
		return 0, false
	}
	if r, ok := c.rates[[2]string{from, to}]; ok {
		return r, true
	}
	if r, ok := c.rates[[2]string{to, from}]; ok && r != 0 {
		return 1 / r, true
	}
	return 0, false
}

// Algebra derives result types for operators. It is safe for concurrent use
// once constructed.
type Algebra struct {
	conv *Conversions
}

// NewAlgebra returns an algebra using conv for cross-currency addition and
// comparison. conv may be nil.
func NewAlgebra(conv *Conversions) *Algebra {
	return &Algebra{conv: conv}
}

// Binary returns the type of l op r or a TypeError.
func (a *Algebra) Binary(op Op, l, r Type) (Result, error) {
	if l.Kind == KindSeries || r.Kind == KindSeries {
		return Result{}, &TypeError{
			Code: ErrCodeUnindexedSeries, Op: op, Left: l, Right: r,
			Message: fmt.Sprintf("cannot apply %s to %s and %s: index the time series first", op, l, r),
		}
	}

	switch {
	case op == And || op == Or:
		if l.Kind != KindBoolean || r.Kind != KindBoolean {
			return Result{}, invalidOperands(op, l, r)
		}
		return Result{Type: Boolean, Factor: 1, RightFactor: 1}, nil

	case op == Eq || op == Ne:
		if l.Kind == KindBoolean && r.Kind == KindBoolean {
			return Result{Type: Boolean, Factor: 1, RightFactor: 1}, nil
		}
		fallthrough

	case op.IsComparison(), op == Add, op == Sub:
		res, err := a.additive(op, l, r)
		if err != nil {
			return Result{}, err
		}
		if op.IsComparison() {
			res.Type = Boolean
		}
		return res, nil

	case op == Mul || op == Div:
		return a.multiplicative(op, l, r)
	}
	return Result{}, invalidOperands(op, l, r)
}

// additive handles + - and comparisons: both sides must share dimensions;
// the right side is rescaled into the left side's unit.
func (a *Algebra) additive(op Op, l, r Type) (Result, error) {
	if !l.IsNumeric() || !r.IsNumeric() {
		return Result{}, invalidOperands(op, l, r)
	}
	switch {
	case l.Kind == KindUntyped && r.Kind == KindUntyped:
		return Result{Type: Untyped, Factor: 1, RightFactor: 1}, nil
	case l.Kind == KindUntyped:
		return Result{Type: r, Factor: 1, RightFactor: 1}, nil
	case r.Kind == KindUntyped:
		return Result{Type: l, Factor: 1, RightFactor: 1}, nil
	}

	f, err := a.convert(r.Unit, l.Unit)
	if err != nil {
		return Result{}, &TypeError{
			Code: ErrCodeUnitMismatch, Op: op, Left: l, Right: r,
			Message: fmt.Sprintf("unit mismatch: %s %s %s (%v)", l, op, r, err),
		}
	}
	return Result{Type: l, Factor: 1, RightFactor: f}, nil
}

// multiplicative handles * and /: exponents add (or subtract) symbolically
// and the result is classified from the remaining dimensions.
func (a *Algebra) multiplicative(op Op, l, r Type) (Result, error) {
	if !l.IsNumeric() || !r.IsNumeric() {
		return Result{}, invalidOperands(op, l, r)
	}
	if l.Kind == KindUntyped && r.Kind == KindUntyped {
		return Result{Type: Untyped, Factor: 1, RightFactor: 1}, nil
	}

	lu, ru := l.Unit.Normalize(), r.Unit.Normalize()
	sign := 1
	if op == Div {
		sign = -1
	}

	if lu.CurrencyExp != 0 && ru.CurrencyExp != 0 && lu.Currency != ru.Currency {
		return Result{}, &TypeError{
			Code: ErrCodeMixedCurrencies, Op: op, Left: l, Right: r,
			Message: fmt.Sprintf("cannot combine %s %s %s: different currencies", l, op, r),
		}
	}

	out := Unit{
		CurrencyExp: lu.CurrencyExp + sign*ru.CurrencyExp,
		TimeExp:     lu.TimeExp + sign*ru.TimeExp,
	}
	out.Currency = firstNonEmpty(lu.Currency, ru.Currency)
	out.Time = firstNonEmpty(lu.Time, ru.Time)
	out = out.Normalize()

	typ, ok := FromUnit(out)
	if !ok {
		return Result{}, &TypeError{
			Code: ErrCodeMeaninglessUnit, Op: op, Left: l, Right: r,
			Message: fmt.Sprintf("%s %s %s has unit %s, which has no economic meaning", l, op, r, out),
		}
	}

	// value = l ⊗ r · (f_l ⊗ f_r) / f_out
	factor := lu.Factor() / out.Factor()
	if op == Mul {
		factor *= ru.Factor()
	} else {
		factor /= ru.Factor()
	}
	// Cancelling granularities must leave an exact 1, not a rounding residue.
	if math.Abs(factor-1) < 1e-12 {
		factor = 1
	}
	return Result{Type: typ, Factor: factor, RightFactor: 1}, nil
}

// Negate types unary minus.
func (a *Algebra) Negate(t Type) (Type, error) {
	if !t.IsNumeric() {
		return Type{}, &TypeError{Code: ErrCodeInvalidOperands, Left: t, Message: fmt.Sprintf("cannot negate %s", t)}
	}
	return t, nil
}

// Not types logical negation.
func (a *Algebra) Not(t Type) (Type, error) {
	if t.Kind != KindBoolean {
		return Type{}, &TypeError{Code: ErrCodeInvalidOperands, Left: t, Message: fmt.Sprintf("cannot apply not to %s", t)}
	}
	return Boolean, nil
}

// Index types s[i].
func (a *Algebra) Index(s Type) (Type, error) {
	if s.Kind != KindSeries {
		return Type{}, &TypeError{Code: ErrCodeBadIndex, Left: s, Message: fmt.Sprintf("cannot index %s: not a TimeSeries", s)}
	}
	return *s.Elem, nil
}

// Assign checks that a value of type actual may be stored in a slot declared
// as declared, returning the factor that converts the value.
func (a *Algebra) Assign(declared, actual Type) (float64, error) {
	if actual.Kind == KindUntyped && declared.IsNumeric() {
		return 1, nil
	}
	if declared.Kind == KindBoolean && actual.Kind == KindBoolean {
		return 1, nil
	}
	if declared.IsNumeric() && actual.IsNumeric() && declared.Kind == actual.Kind {
		if f, err := a.convert(actual.Unit, declared.Unit); err == nil {
			return f, nil
		}
	}
	return 0, &TypeError{
		Code: ErrCodeNotAssignable, Left: declared, Right: actual,
		Message: fmt.Sprintf("cannot use %s as %s", actual, declared),
	}
}

// Unify returns the common type of two branches of a conditional.
func (a *Algebra) Unify(l, r Type) (Result, error) {
	if l.Kind == KindBoolean && r.Kind == KindBoolean {
		return Result{Type: Boolean, Factor: 1, RightFactor: 1}, nil
	}
	return a.additive("if", l, r)
}

// convert returns the factor turning a value in unit from into unit to.
func (a *Algebra) convert(from, to Unit) (float64, error) {
	from, to = from.Normalize(), to.Normalize()
	if !from.SameDimensions(to) {
		return 0, fmt.Errorf("dimensions %s and %s differ", from, to)
	}
	f := 1.0
	if from.CurrencyExp != 0 && from.Currency != to.Currency {
		rate, ok := a.conv.Rate(from.Currency, to.Currency)
		if !ok {
			return 0, fmt.Errorf("no conversion registered from %s to %s", from.Currency, to.Currency)
		}
		for i := 0; i < abs(from.CurrencyExp); i++ {
			if from.CurrencyExp > 0 {
				f *= rate
			} else {
				f /= rate
			}
		}
	}
	if from.TimeExp != 0 && from.Time != to.Time {
		ratio := from.Time.Days() / to.Time.Days()
		for i := 0; i < abs(from.TimeExp); i++ {
			if from.TimeExp > 0 {
				f *= ratio
			} else {
				f /= ratio
			}
		}
	}
	return f, nil
}

func invalidOperands(op Op, l, r Type) *TypeError {
	return &TypeError{
		Code: ErrCodeInvalidOperands, Op: op, Left: l, Right: r,
		Message: fmt.Sprintf("operator %s not defined for %s and %s", op, l, r),
	}
}

func firstNonEmpty[T ~string](a, b T) T {
	if a != "" {
		return a
	}
	return b
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
