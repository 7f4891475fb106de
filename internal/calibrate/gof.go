package calibrate

import (
	"math"
	"slices"

	"github.com/roach88/qml/internal/dist"
)

// GoodnessOfFit summarises how well a fitted distribution describes the
// data it was fitted to.
type GoodnessOfFit struct {
	KSStatistic float64 `json:"ks_statistic"`
	KSPValue    float64 `json:"ks_p_value"`
	AIC         float64 `json:"aic"`
	BIC         float64 `json:"bic"`
}

// Assess computes the one-sample Kolmogorov-Smirnov test of xs against the
// fitted distribution plus AIC and BIC.
func Assess(fit Fit, xs []float64) GoodnessOfFit {
	d := KSStatistic(fit.Dist, xs)
	n := float64(len(xs))
	k := float64(fit.K())
	return GoodnessOfFit{
		KSStatistic: d,
		KSPValue:    KSPValue(d, len(xs)),
		AIC:         2*k - 2*fit.LogLik,
		BIC:         k*math.Log(n) - 2*fit.LogLik,
	}
}

// KSStatistic returns sup |F_n(x) - F(x)| for the empirical distribution
// of xs.
func KSStatistic(d dist.Distribution, xs []float64) float64 {
	sorted := slices.Clone(xs)
	slices.Sort(sorted)
	n := float64(len(sorted))
	var sup float64
	for i, x := range sorted {
		f := d.CDF(x)
		sup = max(sup, float64(i+1)/n-f, f-float64(i)/n)
	}
	return sup
}

// KSPValue returns the asymptotic p-value of statistic d for sample size
// n, using Stephens' small-sample correction of the Kolmogorov
// distribution.
func KSPValue(d float64, n int) float64 {
	if n <= 0 {
		return 1
	}
	sn := math.Sqrt(float64(n))
	lambda := (sn + 0.12 + 0.11/sn) * d
	if lambda < 1e-3 {
		return 1
	}
	var sum float64
	sign := 1.0
	for k := 1; k <= 100; k++ {
		term := sign * math.Exp(-2*float64(k*k)*lambda*lambda)
		sum += term
		if math.Abs(term) < 1e-12 {
			break
		}
		sign = -sign
	}
	return math.Min(1, math.Max(0, 2*sum))
}

// Confidence maps fit quality to a provenance confidence in [0.05, 0.99].
// The KS p-value is discounted for small samples.
func Confidence(g GoodnessOfFit, n int) float64 {
	c := g.KSPValue * math.Min(1, float64(n)/100)
	c = math.Min(0.99, math.Max(0.05, c))
	return math.Round(c*100) / 100
}
