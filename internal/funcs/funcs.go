// Package funcs is the registered pure-function table shared by the type
// checker (signature resolution) and the execution engine (invocation).
//
// Economic formula libraries plug in here through Register; the package ships
// only the numeric builtins every model needs.
package funcs

import (
	"fmt"
	"math"
	"sort"

	"github.com/roach88/qml/internal/units"
)

// SignatureFunc derives a call's result type from its argument types.
type SignatureFunc func(alg *units.Algebra, args []units.Type) (units.Type, error)

// ImplFunc evaluates a call. Arguments arrive in the units the signature
// accepted; the result must be in the unit of the returned type.
type ImplFunc func(args []float64) (float64, error)

// Func is one registered function.
type Func struct {
	Name      string
	Arity     int // -1 for variadic (at least one argument)
	Signature SignatureFunc
	Impl      ImplFunc
}

// Registry maps names to functions. A Registry is immutable after
// construction is finished and may then be shared across goroutines.
type Registry struct {
	funcs map[string]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register adds or replaces f.
func (r *Registry) Register(f Func) {
	r.funcs[f.Name] = f
}

// Lookup returns the function registered under name.
func (r *Registry) Lookup(name string) (Func, bool) {
	if r == nil {
		return Func{}, false
	}
	f, ok := r.funcs[name]
	return f, ok
}

// Names returns all registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve type-checks a call to name with the given argument types.
func (r *Registry) Resolve(alg *units.Algebra, name string, args []units.Type) (units.Type, error) {
	f, ok := r.Lookup(name)
	if !ok {
		return units.Type{}, &units.TypeError{Code: units.ErrCodeBadCall, Message: fmt.Sprintf("unknown function %q", name)}
	}
	if f.Arity >= 0 && len(args) != f.Arity {
		return units.Type{}, &units.TypeError{
			Code:    units.ErrCodeBadCall,
			Message: fmt.Sprintf("%s expects %d argument(s), got %d", name, f.Arity, len(args)),
		}
	}
	if f.Arity < 0 && len(args) == 0 {
		return units.Type{}, &units.TypeError{Code: units.ErrCodeBadCall, Message: fmt.Sprintf("%s expects at least one argument", name)}
	}
	return f.Signature(alg, args)
}

// Call invokes name.
func (r *Registry) Call(name string, args []float64) (float64, error) {
	f, ok := r.Lookup(name)
	if !ok {
		return 0, fmt.Errorf("unknown function %q", name)
	}
	return f.Impl(args)
}

// Builtins returns a registry holding the numeric builtins.
func Builtins() *Registry {
	r := NewRegistry()
	r.Register(Func{Name: "min", Arity: -1, Signature: sameUnits, Impl: fold(math.Min)})
	r.Register(Func{Name: "max", Arity: -1, Signature: sameUnits, Impl: fold(math.Max)})
	r.Register(Func{Name: "abs", Arity: 1, Signature: sameUnits, Impl: unary(math.Abs)})
	r.Register(Func{Name: "round", Arity: 1, Signature: sameUnits, Impl: unary(math.Round)})
	r.Register(Func{Name: "floor", Arity: 1, Signature: sameUnits, Impl: unary(math.Floor)})
	r.Register(Func{Name: "ceil", Arity: 1, Signature: sameUnits, Impl: unary(math.Ceil)})
	r.Register(Func{Name: "clamp", Arity: 3, Signature: sameUnits, Impl: clamp})
	r.Register(Func{Name: "exp", Arity: 1, Signature: dimensionless(1), Impl: unary(math.Exp)})
	r.Register(Func{Name: "log", Arity: 1, Signature: dimensionless(1), Impl: positive("log", math.Log)})
	r.Register(Func{Name: "sqrt", Arity: 1, Signature: dimensionless(1), Impl: positive("sqrt", math.Sqrt)})
	r.Register(Func{Name: "pow", Arity: 2, Signature: dimensionless(2), Impl: binary(math.Pow)})
	r.Register(Func{Name: "compound", Arity: 2, Signature: compoundSig, Impl: compound})
	return r
}

// sameUnits accepts numeric arguments of one common type (untyped constants
// adopt it) and returns that type.
func sameUnits(alg *units.Algebra, args []units.Type) (units.Type, error) {
	out := units.Untyped
	for _, a := range args {
		res, err := alg.Binary(units.Add, out, a)
		if err != nil {
			return units.Type{}, err
		}
		if res.RightFactor != 1 {
			return units.Type{}, &units.TypeError{
				Code:    units.ErrCodeUnitMismatch,
				Message: fmt.Sprintf("arguments must share one unit, got %s and %s", out, a),
			}
		}
		out = res.Type
	}
	return out, nil
}

func dimensionless(n int) SignatureFunc {
	return func(_ *units.Algebra, args []units.Type) (units.Type, error) {
		for i, a := range args[:n] {
			if a.Kind != units.KindFraction && a.Kind != units.KindUntyped {
				return units.Type{}, &units.TypeError{
					Code:    units.ErrCodeBadCall,
					Message: fmt.Sprintf("argument %d must be a Fraction, got %s", i+1, a),
				}
			}
		}
		return units.Fraction, nil
	}
}

// compoundSig: compound(rate per period, number of periods) -> growth factor.
func compoundSig(_ *units.Algebra, args []units.Type) (units.Type, error) {
	rate, periods := args[0], args[1]
	if rate.Kind != units.KindFraction && rate.Kind != units.KindRate && rate.Kind != units.KindUntyped {
		return units.Type{}, &units.TypeError{Code: units.ErrCodeBadCall, Message: fmt.Sprintf("compound: rate must be a Fraction or Rate, got %s", rate)}
	}
	if rate.Kind == units.KindRate && rate.Unit.CurrencyExp != 0 {
		return units.Type{}, &units.TypeError{Code: units.ErrCodeBadCall, Message: fmt.Sprintf("compound: rate must be dimensionless, got %s", rate)}
	}
	if periods.Kind != units.KindFraction && periods.Kind != units.KindUntyped {
		return units.Type{}, &units.TypeError{Code: units.ErrCodeBadCall, Message: fmt.Sprintf("compound: periods must be a Fraction, got %s", periods)}
	}
	return units.Fraction, nil
}

func compound(args []float64) (float64, error) {
	return math.Pow(1+args[0], args[1]), nil
}

func fold(f func(a, b float64) float64) ImplFunc {
	return func(args []float64) (float64, error) {
		acc := args[0]
		for _, v := range args[1:] {
			acc = f(acc, v)
		}
		return acc, nil
	}
}

func unary(f func(float64) float64) ImplFunc {
	return func(args []float64) (float64, error) { return f(args[0]), nil }
}

func binary(f func(a, b float64) float64) ImplFunc {
	return func(args []float64) (float64, error) { return f(args[0], args[1]), nil }
}

func positive(name string, f func(float64) float64) ImplFunc {
	return func(args []float64) (float64, error) {
		if args[0] < 0 {
			return 0, fmt.Errorf("%s of negative value %g", name, args[0])
		}
		return f(args[0]), nil
	}
}

func clamp(args []float64) (float64, error) {
	v, lo, hi := args[0], args[1], args[2]
	if lo > hi {
		return 0, fmt.Errorf("clamp: lower bound %g exceeds upper bound %g", lo, hi)
	}
	return math.Max(lo, math.Min(hi, v)), nil
}
