package dist

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/roach88/qml/internal/ir"
	"github.com/roach88/qml/internal/units"
)

func TestCentral(t *testing.T) {
	tests := []struct {
		family string
		params []float64
		want   float64
	}{
		{ir.FamilyNormal, []float64{10, 2}, 10},
		{ir.FamilyBeta, []float64{2, 38}, 0.05},
		{ir.FamilyLogNormal, []float64{0, 1}, math.Exp(0.5)},
		{ir.FamilyUniform, []float64{4, 8}, 6},
		{ir.FamilyConstant, []float64{3.5}, 3.5},
	}
	for _, tt := range tests {
		t.Run(tt.family, func(t *testing.T) {
			d, err := New(tt.family, tt.params)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, d.Central(), 1e-12)
			assert.Equal(t, tt.family, d.Family())
			assert.Equal(t, tt.params, d.Params())
		})
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		family string
		params []float64
	}{
		{"unknown family", "gamma", []float64{1, 2}},
		{"wrong arity", ir.FamilyNormal, []float64{1}},
		{"zero sigma", ir.FamilyNormal, []float64{0, 0}},
		{"negative alpha", ir.FamilyBeta, []float64{-1, 2}},
		{"inverted uniform", ir.FamilyUniform, []float64{5, 1}},
		{"non-finite", ir.FamilyConstant, []float64{math.Inf(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.family, tt.params)
			var de *InvalidDistributionError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, ErrCodeBadDistribution, de.ErrorCode())
		})
	}
}

func TestQuantileInvertsCDF(t *testing.T) {
	for _, d := range []Distribution{
		Normal{Mu: 1, Sigma: 3},
		Beta{Alpha: 12, Beta: 88},
		LogNormal{Mu: 0.5, Sigma: 0.4},
		Uniform{Min: -2, Max: 2},
	} {
		for _, p := range []float64{0.05, 0.25, 0.5, 0.75, 0.95} {
			assert.InDelta(t, p, d.CDF(d.Quantile(p)), 1e-9, "%s p=%g", d.Family(), p)
		}
	}
}

func TestSampleMean(t *testing.T) {
	rng := NewRNG(42, 0)
	d := Beta{Alpha: 2, Beta: 38}
	xs := make([]float64, 20000)
	for i := range xs {
		xs[i] = d.Sample(rng)
	}
	assert.InDelta(t, d.Central(), stat.Mean(xs, nil), 0.002)
}

func TestNewRNG_Deterministic(t *testing.T) {
	a := NewRNG(7, 3)
	b := NewRNG(7, 3)
	c := NewRNG(7, 4)
	d := NewRNG(8, 3)
	for range 10 {
		x := a.Uint64()
		assert.Equal(t, x, b.Uint64())
		assert.NotEqual(t, x, c.Uint64())
		assert.NotEqual(t, x, d.Uint64())
	}
}

func literal(name string, v float64) ir.Param {
	return ir.Param{Name: name, Type: units.Fraction, Value: &v}
}

func random(name, family string, params []float64, corr ...ir.Correlation) ir.Param {
	return ir.Param{Name: name, Type: units.Fraction, Distribution: &ir.Distribution{
		Family: family, Params: params, Correlations: corr,
	}}
}

func TestJoint_Independent(t *testing.T) {
	j, err := NewJoint([]ir.Param{
		literal("a", 5),
		random("b", ir.FamilyUniform, []float64{0, 1}),
		random("c", ir.FamilyConstant, []float64{9}),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, j.Params())
	assert.True(t, j.Stochastic())

	out := make([]float64, 3)
	j.Central(out)
	assert.Equal(t, []float64{5, 0.5, 9}, out)

	j.Draw(NewRNG(1, 0), out)
	assert.Equal(t, 5.0, out[0])
	assert.True(t, out[1] > 0 && out[1] < 1)
	assert.Equal(t, 9.0, out[2])
}

func TestJoint_CorrelationInduced(t *testing.T) {
	j, err := NewJoint([]ir.Param{
		random("x", ir.FamilyNormal, []float64{0, 1}, ir.Correlation{Param: "y", Rho: 0.7}),
		random("y", ir.FamilyNormal, []float64{10, 2}),
	})
	require.NoError(t, err)

	const n = 20000
	xs, ys := make([]float64, n), make([]float64, n)
	out := make([]float64, 2)
	for i := range n {
		j.Draw(NewRNG(99, i), out)
		xs[i], ys[i] = out[0], out[1]
	}
	assert.InDelta(t, 0.7, stat.Correlation(xs, ys, nil), 0.02)
	assert.InDelta(t, 10, stat.Mean(ys, nil), 0.05)
}

func TestJoint_MarginalPreserved(t *testing.T) {
	j, err := NewJoint([]ir.Param{
		random("churn", ir.FamilyBeta, []float64{2, 38}, ir.Correlation{Param: "growth", Rho: -0.5}),
		random("growth", ir.FamilyUniform, []float64{0, 0.1}),
	})
	require.NoError(t, err)

	const n = 20000
	cs := make([]float64, n)
	out := make([]float64, 2)
	for i := range n {
		j.Draw(NewRNG(5, i), out)
		cs[i] = out[0]
		require.True(t, out[1] >= 0 && out[1] <= 0.1)
	}
	assert.InDelta(t, 0.05, stat.Mean(cs, nil), 0.002)
}

func TestJoint_PerfectCorrelation(t *testing.T) {
	j, err := NewJoint([]ir.Param{
		random("a", ir.FamilyNormal, []float64{0, 1}, ir.Correlation{Param: "b", Rho: 1}),
		random("b", ir.FamilyNormal, []float64{0, 1}),
	})
	require.NoError(t, err)

	out := make([]float64, 2)
	for i := range 100 {
		j.Draw(NewRNG(3, i), out)
		assert.InDelta(t, out[0], out[1], 1e-6)
	}
}

func TestJoint_NotPSD(t *testing.T) {
	_, err := NewJoint([]ir.Param{
		random("a", ir.FamilyNormal, []float64{0, 1},
			ir.Correlation{Param: "b", Rho: 0.9}, ir.Correlation{Param: "c", Rho: -0.9}),
		random("b", ir.FamilyNormal, []float64{0, 1}, ir.Correlation{Param: "c", Rho: 0.9}),
		random("c", ir.FamilyNormal, []float64{0, 1}),
	})
	var ce *InvalidCorrelationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeNotPSD, ce.Code)
	assert.Equal(t, []string{"a", "b", "c"}, ce.Params)
	assert.True(t, IsInvalidCorrelation(err))
}

func TestJoint_InvalidDeclarations(t *testing.T) {
	normal := []float64{0, 1}
	tests := []struct {
		name   string
		params []ir.Param
		code   string
	}{
		{"unknown", []ir.Param{
			random("a", ir.FamilyNormal, normal, ir.Correlation{Param: "zz", Rho: 0.1}),
		}, ErrCodeUnknownParam},
		{"self", []ir.Param{
			random("a", ir.FamilyNormal, normal, ir.Correlation{Param: "a", Rho: 0.1}),
		}, ErrCodeSelfCorrelation},
		{"literal target", []ir.Param{
			random("a", ir.FamilyNormal, normal, ir.Correlation{Param: "b", Rho: 0.1}),
			literal("b", 1),
		}, ErrCodeNotStochastic},
		{"constant source", []ir.Param{
			random("a", ir.FamilyConstant, []float64{1}, ir.Correlation{Param: "b", Rho: 0.1}),
			random("b", ir.FamilyNormal, normal),
		}, ErrCodeNotStochastic},
		{"rho out of range", []ir.Param{
			random("a", ir.FamilyNormal, normal, ir.Correlation{Param: "b", Rho: 1.5}),
			random("b", ir.FamilyNormal, normal),
		}, ErrCodeRhoRange},
		{"conflict", []ir.Param{
			random("a", ir.FamilyNormal, normal, ir.Correlation{Param: "b", Rho: 0.3}),
			random("b", ir.FamilyNormal, normal, ir.Correlation{Param: "a", Rho: 0.4}),
		}, ErrCodeConflictingRho},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewJoint(tt.params)
			var ce *InvalidCorrelationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.code, ce.Code)
		})
	}
}

func TestJoint_SymmetricDeclarationAllowed(t *testing.T) {
	_, err := NewJoint([]ir.Param{
		random("a", ir.FamilyNormal, []float64{0, 1}, ir.Correlation{Param: "b", Rho: 0.3}),
		random("b", ir.FamilyNormal, []float64{0, 1}, ir.Correlation{Param: "a", Rho: 0.3}),
	})
	require.NoError(t, err)
}
