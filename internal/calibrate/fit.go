package calibrate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/roach88/qml/internal/dist"
	"github.com/roach88/qml/internal/ir"
)

// Fittable families, in the order the config schema lists them.
var Families = []string{ir.FamilyNormal, ir.FamilyBeta, ir.FamilyLogNormal, ir.FamilyUniform}

// ParamNames returns the names of a family's positional parameters.
func ParamNames(family string) []string {
	switch family {
	case ir.FamilyNormal, ir.FamilyLogNormal:
		return []string{"mu", "sigma"}
	case ir.FamilyBeta:
		return []string{"alpha", "beta"}
	case ir.FamilyUniform:
		return []string{"min", "max"}
	case ir.FamilyConstant:
		return []string{"value"}
	}
	return nil
}

// Fit is a maximum likelihood estimate.
type Fit struct {
	Dist   dist.Distribution
	LogLik float64
}

// K returns the number of free parameters.
func (f Fit) K() int { return len(f.Dist.Params()) }

// MLE fits family to xs by maximum likelihood. Normal, log-normal and
// uniform have closed forms; beta is solved numerically with Nelder-Mead
// over log-parameters, started from the method-of-moments estimate.
func MLE(param, family string, xs []float64) (Fit, error) {
	if err := checkSupport(param, family, xs); err != nil {
		return Fit{}, err
	}

	var (
		params []float64
		err    error
	)
	switch family {
	case ir.FamilyNormal:
		mu, sigma := stat.PopMeanStdDev(xs, nil)
		params = []float64{mu, sigma}
	case ir.FamilyLogNormal:
		logs := make([]float64, len(xs))
		for i, x := range xs {
			logs[i] = math.Log(x)
		}
		mu, sigma := stat.PopMeanStdDev(logs, nil)
		params = []float64{mu, sigma}
	case ir.FamilyUniform:
		lo, hi := xs[0], xs[0]
		for _, x := range xs[1:] {
			lo = math.Min(lo, x)
			hi = math.Max(hi, x)
		}
		params = []float64{lo, hi}
	case ir.FamilyBeta:
		params, err = betaMLE(xs)
		if err != nil {
			return Fit{}, &FitConvergenceError{Param: param, Family: family, Message: err.Error()}
		}
	default:
		return Fit{}, &ConfigError{Message: fmt.Sprintf("param %q: family %q cannot be fitted", param, family)}
	}

	d, err := dist.New(family, params)
	if err != nil {
		// Degenerate data: zero variance or a single distinct value.
		return Fit{}, &FitConvergenceError{Param: param, Family: family, Message: err.Error()}
	}
	return Fit{Dist: d, LogLik: logLik(d, xs)}, nil
}

func checkSupport(param, family string, xs []float64) error {
	for _, x := range xs {
		switch {
		case family == ir.FamilyBeta && (x <= 0 || x >= 1):
			return &DataError{Code: ErrCodeDataDomain, Param: param, Message: fmt.Sprintf("beta requires observations in (0, 1), got %g", x)}
		case family == ir.FamilyLogNormal && x <= 0:
			return &DataError{Code: ErrCodeDataDomain, Param: param, Message: fmt.Sprintf("lognormal requires positive observations, got %g", x)}
		}
	}
	return nil
}

func logLik(d dist.Distribution, xs []float64) float64 {
	var ll float64
	for _, x := range xs {
		ll += d.LogProb(x)
	}
	return ll
}

// betaMLE minimises the per-observation negative log-likelihood, which
// depends on the data only through mean(ln x) and mean(ln(1-x)).
func betaMLE(xs []float64) ([]float64, error) {
	var s1, s2 float64
	for _, x := range xs {
		s1 += math.Log(x)
		s2 += math.Log1p(-x)
	}
	n := float64(len(xs))
	s1 /= n
	s2 /= n

	nll := func(v []float64) float64 {
		a, b := math.Exp(v[0]), math.Exp(v[1])
		la, _ := math.Lgamma(a)
		lb, _ := math.Lgamma(b)
		lab, _ := math.Lgamma(a + b)
		return la + lb - lab - (a-1)*s1 - (b-1)*s2
	}

	a0, b0 := betaMoments(xs)
	res, err := optimize.Minimize(
		optimize.Problem{Func: nll},
		[]float64{math.Log(a0), math.Log(b0)},
		&optimize.Settings{
			MajorIterations: 10000,
			Converger:       &optimize.FunctionConverge{Absolute: 1e-12, Iterations: 200},
		},
		&optimize.NelderMead{},
	)
	if err != nil {
		return nil, err
	}
	a, b := math.Exp(res.X[0]), math.Exp(res.X[1])
	if math.IsNaN(a) || math.IsNaN(b) || math.IsInf(a, 0) || math.IsInf(b, 0) || a <= 0 || b <= 0 {
		return nil, fmt.Errorf("optimiser left the parameter space (alpha=%g, beta=%g)", a, b)
	}
	return []float64{a, b}, nil
}

// betaMoments returns method-of-moments estimates, or (1, 1) when the
// sample variance is too large for any beta distribution.
func betaMoments(xs []float64) (float64, float64) {
	m, v := stat.PopMeanVariance(xs, nil)
	if v <= 0 {
		return 1, 1
	}
	common := m*(1-m)/v - 1
	if common <= 0 {
		return 1, 1
	}
	return m * common, (1 - m) * common
}
