package funcs

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qml/internal/units"
)

func TestBuiltins_Names(t *testing.T) {
	assert.Equal(t, []string{
		"abs", "ceil", "clamp", "compound", "exp", "floor", "log", "max", "min", "pow", "round", "sqrt",
	}, Builtins().Names())
}

func TestCall(t *testing.T) {
	r := Builtins()
	tests := []struct {
		name string
		args []float64
		want float64
	}{
		{"min", []float64{3, 1, 2}, 1},
		{"max", []float64{3, 1, 2}, 3},
		{"abs", []float64{-2.5}, 2.5},
		{"round", []float64{2.5}, 3},
		{"floor", []float64{-1.5}, -2},
		{"ceil", []float64{1.2}, 2},
		{"clamp", []float64{5, 0, 3}, 3},
		{"clamp", []float64{-1, 0, 3}, 0},
		{"exp", []float64{0}, 1},
		{"log", []float64{math.E}, 1},
		{"sqrt", []float64{9}, 3},
		{"pow", []float64{2, 10}, 1024},
		{"compound", []float64{0.1, 2}, 1.21},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Call(tt.name, tt.args)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestCall_Errors(t *testing.T) {
	r := Builtins()
	for _, tc := range []struct {
		name string
		args []float64
	}{
		{"log", []float64{-1}},
		{"sqrt", []float64{-4}},
		{"clamp", []float64{1, 3, 0}},
		{"nope", []float64{1}},
	} {
		_, err := r.Call(tc.name, tc.args)
		assert.Error(t, err, tc.name)
	}
}

func TestResolve_Signatures(t *testing.T) {
	r := Builtins()
	alg := units.NewAlgebra(nil)

	typ, err := r.Resolve(alg, "max", []units.Type{units.Currency("USD"), units.Untyped})
	require.NoError(t, err)
	assert.True(t, typ.Equal(units.Currency("USD")))

	typ, err = r.Resolve(alg, "compound", []units.Type{units.Rate(units.Month), units.Untyped})
	require.NoError(t, err)
	assert.Equal(t, units.Fraction, typ)

	typ, err = r.Resolve(alg, "exp", []units.Type{units.Untyped})
	require.NoError(t, err)
	assert.Equal(t, units.Fraction, typ)
}

func TestResolve_Errors(t *testing.T) {
	r := Builtins()
	alg := units.NewAlgebra(nil)
	tests := []struct {
		name string
		fn   string
		args []units.Type
		code string
	}{
		{"unknown function", "npv", []units.Type{units.Fraction}, units.ErrCodeBadCall},
		{"wrong arity", "pow", []units.Type{units.Fraction}, units.ErrCodeBadCall},
		{"variadic without args", "min", nil, units.ErrCodeBadCall},
		{"mixed units", "min", []units.Type{units.Currency("USD"), units.Duration(units.Month)}, units.ErrCodeUnitMismatch},
		{"exp of money", "exp", []units.Type{units.Currency("USD")}, units.ErrCodeBadCall},
		{"compound of money rate", "compound", []units.Type{units.CurrencyRate("USD", units.Month), units.Untyped}, units.ErrCodeBadCall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(alg, tt.fn, tt.args)
			var te *units.TypeError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.code, te.Code)
		})
	}
}

func TestResolve_ScaledArgumentsRejected(t *testing.T) {
	conv := units.NewConversions()
	conv.Register("EUR", "USD", 1.1)
	_, err := Builtins().Resolve(units.NewAlgebra(conv), "max", []units.Type{units.Currency("USD"), units.Currency("EUR")})
	assert.True(t, units.IsUnitMismatch(err))
}

func TestRegister_Custom(t *testing.T) {
	r := NewRegistry()
	r.Register(Func{
		Name:  "margin",
		Arity: 2,
		Signature: func(_ *units.Algebra, args []units.Type) (units.Type, error) {
			return units.Fraction, nil
		},
		Impl: func(args []float64) (float64, error) { return (args[0] - args[1]) / args[0], nil },
	})

	f, ok := r.Lookup("margin")
	require.True(t, ok)
	assert.Equal(t, 2, f.Arity)

	got, err := r.Call("margin", []float64{100, 60})
	require.NoError(t, err)
	assert.InDelta(t, 0.4, got, 1e-12)

	var nilReg *Registry
	_, ok = nilReg.Lookup("margin")
	assert.False(t, ok)
}
