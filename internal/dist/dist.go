// Package dist implements the parameter distributions, their central
// values, and correlated sampling through a Gaussian copula.
//
// The family set is closed: Normal, Beta, LogNormal, Uniform and Constant
// are the only implementations of Distribution, and every switch over
// families in this module is exhaustive.
package dist

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/roach88/qml/internal/ir"
)

// Distribution is a univariate marginal.
type Distribution interface {
	Family() string
	Params() []float64

	// Central is the deterministic-mode collapse: the mean in natural space.
	Central() float64
	Quantile(p float64) float64
	CDF(x float64) float64
	LogProb(x float64) float64
	Sample(rng *rand.Rand) float64

	sealed()
}

// Normal is N(Mu, Sigma^2).
type Normal struct{ Mu, Sigma float64 }

// Beta is Beta(Alpha, Beta) on [0, 1].
type Beta struct{ Alpha, Beta float64 }

// LogNormal is exp(N(Mu, Sigma^2)); Mu and Sigma are in log space.
type LogNormal struct{ Mu, Sigma float64 }

// Uniform is U(Min, Max).
type Uniform struct{ Min, Max float64 }

// Constant always yields V.
type Constant struct{ V float64 }

func (Normal) sealed()    {}
func (Beta) sealed()      {}
func (LogNormal) sealed() {}
func (Uniform) sealed()   {}
func (Constant) sealed()  {}

// New builds a distribution from its family name and positional parameters.
func New(family string, params []float64) (Distribution, error) {
	want, ok := ir.FamilyArity[family]
	if !ok {
		return nil, &InvalidDistributionError{Family: family, Message: "unknown family"}
	}
	if len(params) != want {
		return nil, &InvalidDistributionError{Family: family,
			Message: fmt.Sprintf("takes %d parameters, got %d", want, len(params))}
	}
	for _, p := range params {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, &InvalidDistributionError{Family: family, Message: "parameters must be finite"}
		}
	}

	switch family {
	case ir.FamilyNormal:
		if params[1] <= 0 {
			return nil, &InvalidDistributionError{Family: family, Message: "sigma must be positive"}
		}
		return Normal{Mu: params[0], Sigma: params[1]}, nil
	case ir.FamilyBeta:
		if params[0] <= 0 || params[1] <= 0 {
			return nil, &InvalidDistributionError{Family: family, Message: "alpha and beta must be positive"}
		}
		return Beta{Alpha: params[0], Beta: params[1]}, nil
	case ir.FamilyLogNormal:
		if params[1] <= 0 {
			return nil, &InvalidDistributionError{Family: family, Message: "sigma must be positive"}
		}
		return LogNormal{Mu: params[0], Sigma: params[1]}, nil
	case ir.FamilyUniform:
		if params[0] >= params[1] {
			return nil, &InvalidDistributionError{Family: family, Message: "min must be less than max"}
		}
		return Uniform{Min: params[0], Max: params[1]}, nil
	default:
		return Constant{V: params[0]}, nil
	}
}

// FromIR builds the distribution declared by d.
func FromIR(d *ir.Distribution) (Distribution, error) {
	if d == nil {
		return nil, &InvalidDistributionError{Message: "missing distribution"}
	}
	return New(d.Family, d.Params)
}

// ToIR returns the serialized form of d without correlations.
func ToIR(d Distribution) *ir.Distribution {
	return &ir.Distribution{Family: d.Family(), Params: d.Params()}
}

func (d Normal) Family() string             { return ir.FamilyNormal }
func (d Normal) Params() []float64          { return []float64{d.Mu, d.Sigma} }
func (d Normal) Central() float64           { return d.Mu }
func (d Normal) Quantile(p float64) float64 { return d.uv(nil).Quantile(p) }
func (d Normal) CDF(x float64) float64      { return d.uv(nil).CDF(x) }
func (d Normal) LogProb(x float64) float64  { return d.uv(nil).LogProb(x) }
func (d Normal) Sample(rng *rand.Rand) float64 {
	return d.uv(rng).Rand()
}
func (d Normal) uv(rng *rand.Rand) distuv.Normal {
	return distuv.Normal{Mu: d.Mu, Sigma: d.Sigma, Src: source(rng)}
}

func (d Beta) Family() string             { return ir.FamilyBeta }
func (d Beta) Params() []float64          { return []float64{d.Alpha, d.Beta} }
func (d Beta) Central() float64           { return d.Alpha / (d.Alpha + d.Beta) }
func (d Beta) Quantile(p float64) float64 { return d.uv(nil).Quantile(p) }
func (d Beta) CDF(x float64) float64      { return d.uv(nil).CDF(x) }
func (d Beta) LogProb(x float64) float64  { return d.uv(nil).LogProb(x) }
func (d Beta) Sample(rng *rand.Rand) float64 {
	return d.uv(rng).Rand()
}
func (d Beta) uv(rng *rand.Rand) distuv.Beta {
	return distuv.Beta{Alpha: d.Alpha, Beta: d.Beta, Src: source(rng)}
}

func (d LogNormal) Family() string    { return ir.FamilyLogNormal }
func (d LogNormal) Params() []float64 { return []float64{d.Mu, d.Sigma} }

// Central is the natural-space mean exp(mu + sigma^2/2), not exp(mu).
func (d LogNormal) Central() float64           { return math.Exp(d.Mu + d.Sigma*d.Sigma/2) }
func (d LogNormal) Quantile(p float64) float64 { return d.uv(nil).Quantile(p) }
func (d LogNormal) CDF(x float64) float64      { return d.uv(nil).CDF(x) }
func (d LogNormal) LogProb(x float64) float64  { return d.uv(nil).LogProb(x) }
func (d LogNormal) Sample(rng *rand.Rand) float64 {
	return d.uv(rng).Rand()
}
func (d LogNormal) uv(rng *rand.Rand) distuv.LogNormal {
	return distuv.LogNormal{Mu: d.Mu, Sigma: d.Sigma, Src: source(rng)}
}

func (d Uniform) Family() string             { return ir.FamilyUniform }
func (d Uniform) Params() []float64          { return []float64{d.Min, d.Max} }
func (d Uniform) Central() float64           { return (d.Min + d.Max) / 2 }
func (d Uniform) Quantile(p float64) float64 { return d.uv(nil).Quantile(p) }
func (d Uniform) CDF(x float64) float64      { return d.uv(nil).CDF(x) }
func (d Uniform) LogProb(x float64) float64  { return d.uv(nil).LogProb(x) }
func (d Uniform) Sample(rng *rand.Rand) float64 {
	return d.uv(rng).Rand()
}
func (d Uniform) uv(rng *rand.Rand) distuv.Uniform {
	return distuv.Uniform{Min: d.Min, Max: d.Max, Src: source(rng)}
}

func (d Constant) Family() string            { return ir.FamilyConstant }
func (d Constant) Params() []float64         { return []float64{d.V} }
func (d Constant) Central() float64          { return d.V }
func (d Constant) Quantile(float64) float64  { return d.V }
func (d Constant) Sample(*rand.Rand) float64 { return d.V }
func (d Constant) CDF(x float64) float64 {
	if x < d.V {
		return 0
	}
	return 1
}
func (d Constant) LogProb(x float64) float64 {
	if x == d.V {
		return 0
	}
	return math.Inf(-1)
}

// source adapts rng for distuv. A nil rng stays nil so that distuv never
// falls back to a shared global source through a non-nil interface.
func source(rng *rand.Rand) rand.Source {
	if rng == nil {
		return nil
	}
	return rng
}
