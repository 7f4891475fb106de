package compiler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qml/internal/dist"
	"github.com/roach88/qml/internal/funcs"
	"github.com/roach88/qml/internal/ir"
	"github.com/roach88/qml/internal/resolver"
	"github.com/roach88/qml/internal/units"
)

func modelPath(name string) string {
	return filepath.Join("..", "..", "testdata", "models", name)
}

func readModel(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(modelPath(name))
	require.NoError(t, err)
	return string(b)
}

func TestCompile_Saas(t *testing.T) {
	m, err := New().CompileFile(modelPath("saas.qml"))
	require.NoError(t, err)

	assert.Equal(t, "Saas", m.ModelName)
	assert.Equal(t, ir.IRVersion, m.IRVersion)
	assert.Equal(t, 12, m.Horizon)
	assert.Equal(t, units.Month, m.Step)
	require.NoError(t, ir.VerifyHash(m))
	assert.Len(t, m.ModelHash, 64)

	require.Len(t, m.Params, 3)
	price := m.Params[0]
	require.NotNil(t, price.Value)
	assert.Equal(t, 49.0, *price.Value)
	assert.Nil(t, price.Distribution)
	assert.Equal(t, ir.Provenance{Source: "pricing page", Method: "observed", Confidence: 0.9, Notes: "list price"}, price.Provenance)

	churn := m.Params[1]
	assert.Nil(t, churn.Value)
	require.NotNil(t, churn.Distribution)
	assert.Equal(t, ir.FamilyBeta, churn.Distribution.Family)
	assert.Equal(t, []float64{2, 38}, churn.Distribution.Params)
	assert.Equal(t, []ir.Correlation{{Param: "growth", Rho: -0.3}}, churn.Distribution.Correlations)
	assert.True(t, churn.IsStochastic())

	growth := m.Params[2]
	assert.Equal(t, ir.FamilyNormal, growth.Distribution.Family)
	assert.Equal(t, []float64{0.05, 0.01}, growth.Distribution.Params)

	customers, ok := m.VarByName("customers")
	require.True(t, ok)
	assert.True(t, customers.IsSeries())
	require.NotNil(t, customers.Init)
	assert.Equal(t, 100.0, customers.Init.Value)
	lag := customers.Recurrence.Args[0]
	assert.Equal(t, ir.ExprIndex, lag.Kind)
	assert.Equal(t, "customers", lag.Name)
	assert.Equal(t, ir.TimeIndex{Relative: true, Offset: -1}, *lag.Index)

	revenue, _ := m.VarByName("revenue")
	assert.Nil(t, revenue.Init)
	assert.Equal(t, units.Currency("USD"), revenue.Recurrence.Type)

	arpu, _ := m.VarByName("arpu")
	assert.False(t, arpu.IsSeries())

	require.Len(t, m.Constraints, 2)
	assert.Equal(t, ir.Scope{Kind: ir.ScopeAll}, m.Constraints[0].Scope)
	assert.Equal(t, ir.Scope{Kind: ir.ScopeAt, T: 12}, m.Constraints[1].Scope)
}

func TestCompile_IRRoundTripsThroughSchema(t *testing.T) {
	m, err := Compile(readModel(t, "saas.qml"))
	require.NoError(t, err)

	data, err := ir.Marshal(m)
	require.NoError(t, err)
	loaded, err := ir.Load(data)
	require.NoError(t, err)

	assert.Equal(t, m.ModelHash, loaded.ModelHash)
	require.NoError(t, ir.VerifyHash(loaded))
}

func TestCompile_HashStability(t *testing.T) {
	src := readModel(t, "saas.qml")
	a, err := Compile(src)
	require.NoError(t, err)
	b, err := Compile(src)
	require.NoError(t, err)
	assert.Equal(t, a.ModelHash, b.ModelHash, "same source, same hash")

	// Layout and comments do not reach the IR.
	reformatted := "# leading comment\n" + strings.ReplaceAll(src, "\n  ", "\n      ")
	c, err := Compile(reformatted)
	require.NoError(t, err)
	assert.Equal(t, a.ModelHash, c.ModelHash)

	// Provenance is part of the content.
	changed := strings.Replace(src, `confidence: 0.9`, `confidence: 0.8`, 1)
	d, err := Compile(changed)
	require.NoError(t, err)
	assert.NotEqual(t, a.ModelHash, d.ModelHash)

	// So is every value.
	changed = strings.Replace(src, `= 49`, `= 50`, 1)
	e, err := Compile(changed)
	require.NoError(t, err)
	assert.NotEqual(t, a.ModelHash, e.ModelHash)
}

func TestCompile_Decay(t *testing.T) {
	m, err := Compile(readModel(t, "decay.qml"))
	require.NoError(t, err)

	assert.Empty(t, m.Params)
	require.Len(t, m.Vars, 1)
	x := m.Vars[0]
	assert.Equal(t, 1000.0, x.Init.Value)
	assert.Equal(t, ir.ExprBinary, x.Recurrence.Kind)
	assert.Equal(t, string(units.Mul), x.Recurrence.Operator)
}

func TestCompile_Runway(t *testing.T) {
	m, err := Compile(readModel(t, "cash.qml"))
	require.NoError(t, err)
	require.Len(t, m.Constraints, 1)
	assert.Equal(t, "out of cash at t={t}", m.Constraints[0].Message)
	assert.Equal(t, ir.SeverityFatal, m.Constraints[0].Severity)
}

func TestCompile_SameStepCycle(t *testing.T) {
	m, err := Compile(readModel(t, "cycle.qml"))
	require.Error(t, err)
	assert.Nil(t, m)

	var ce *resolver.CircularDependencyError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Cycle, "a")
	assert.Contains(t, ce.Cycle, "b")
	assert.Equal(t, resolver.ErrCodeCircular, ce.ErrorCode())
}

func TestCompile_LaggedSelfReferenceIsNotACycle(t *testing.T) {
	m, err := Compile(inline(5, `var x: TimeSeries<Fraction> {
    x[0] = 100
    x[t+1] = x[t] * 1.1
  }`))
	require.NoError(t, err)
	assert.Len(t, m.Vars, 1)
}

func TestCompile_ScalarCycle(t *testing.T) {
	_, err := Compile(inline(2, `var a: Fraction = b + 1
  var b: Fraction = a + 1`))
	require.Error(t, err)

	var ce *resolver.CircularDependencyError
	require.ErrorAs(t, err, &ce)
}

func TestCompile_CorrelationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{
			name: "unknown partner",
			body: `param a: Fraction ~ Normal(0, 1) correlated(ghost: 0.5) ` + prov,
			code: dist.ErrCodeUnknownParam,
		},
		{
			name: "self",
			body: `param a: Fraction ~ Normal(0, 1) correlated(a: 0.5) ` + prov,
			code: dist.ErrCodeSelfCorrelation,
		},
		{
			name: "literal partner",
			body: `param a: Fraction ~ Normal(0, 1) correlated(b: 0.5) ` + prov + `
  param b: Fraction = 1 ` + prov,
			code: dist.ErrCodeNotStochastic,
		},
		{
			name: "rho out of range",
			body: `param a: Fraction ~ Normal(0, 1) correlated(b: 1.5) ` + prov + `
  param b: Fraction ~ Normal(0, 1) ` + prov,
			code: dist.ErrCodeRhoRange,
		},
		{
			name: "conflicting rho",
			body: `param a: Fraction ~ Normal(0, 1) correlated(b: 0.5) ` + prov + `
  param b: Fraction ~ Normal(0, 1) correlated(a: 0.2) ` + prov,
			code: dist.ErrCodeConflictingRho,
		},
		{
			name: "not positive semi-definite",
			body: `param a: Fraction ~ Normal(0, 1) correlated(b: 0.9, c: 0.9) ` + prov + `
  param b: Fraction ~ Normal(0, 1) correlated(c: -0.9) ` + prov + `
  param c: Fraction ~ Normal(0, 1) ` + prov,
			code: dist.ErrCodeNotPSD,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Compile(inline(1, tt.body))
			require.Error(t, err)
			assert.Nil(t, m)

			var ce *dist.InvalidCorrelationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.code, ce.ErrorCode())
			assert.Equal(t, "InvalidCorrelationError", ce.Kind())
		})
	}
}

func TestCompile_ConsistentCorrelationsAccepted(t *testing.T) {
	m, err := Compile(inline(1, `param a: Fraction ~ Normal(0, 1) correlated(b: 0.5, c: 0.3) `+prov+`
  param b: Fraction ~ Normal(0, 1) correlated(a: 0.5) `+prov+`
  param c: Fraction ~ Uniform(0, 1) `+prov))
	require.NoError(t, err)
	assert.Len(t, m.Params, 3)
}

func TestCompile_FirstErrorWins(t *testing.T) {
	// Both a type error and a provenance error: type checking runs first.
	_, err := Compile(inline(1, `param a: Fraction = 1
  var v: Fraction = nope`))
	require.Error(t, err)
	assert.True(t, IsTypeError(err))
	assert.False(t, IsProvenanceError(err))
}

func TestCompile_CustomFunctions(t *testing.T) {
	reg := funcs.Builtins()
	reg.Register(funcs.Func{
		Name:  "double",
		Arity: 1,
		Signature: func(_ *units.Algebra, args []units.Type) (units.Type, error) {
			return args[0], nil
		},
		Impl: func(args []float64) (float64, error) { return 2 * args[0], nil },
	})

	src := inline(1, `param p: Fraction = double(4) `+prov)
	_, err := Compile(src)
	require.Error(t, err, "not registered by default")

	m, err := Compile(src, WithFuncs(reg))
	require.NoError(t, err)
	assert.Equal(t, 8.0, *m.Params[0].Value)
}

func TestCompileFile_Missing(t *testing.T) {
	_, err := New().CompileFile(modelPath("does-not-exist.qml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read model")
}
