package calibrate

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// DefaultBootstrapSamples is the number of resamples per parameter.
const DefaultBootstrapSamples = 1000

// DefaultConfidenceLevel is the coverage of reported intervals.
const DefaultConfidenceLevel = 0.95

// Bootstrap estimates percentile confidence intervals for the MLE of
// family on xs. Each of b replicates resamples xs with replacement and
// refits; replicates whose fit fails are discarded, and the estimate is
// rejected if fewer than half succeed. Keys are ParamNames(family).
func Bootstrap(ctx context.Context, param, family string, xs []float64, b int, level float64, rng *rand.Rand) (map[string][2]float64, error) {
	if b <= 0 {
		return nil, nil
	}
	names := ParamNames(family)
	estimates := make([][]float64, len(names))
	resample := make([]float64, len(xs))

	for range b {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range resample {
			resample[i] = xs[rng.IntN(len(xs))]
		}
		fit, err := MLE(param, family, resample)
		if err != nil {
			continue
		}
		for k, v := range fit.Dist.Params() {
			estimates[k] = append(estimates[k], v)
		}
	}
	if ok := len(estimates[0]); ok*2 < b {
		return nil, &FitConvergenceError{
			Param:   param,
			Family:  family,
			Message: fmt.Sprintf("only %d of %d bootstrap replicates could be fitted", ok, b),
		}
	}

	tail := (1 - level) / 2
	out := make(map[string][2]float64, len(names))
	for k, name := range names {
		est := estimates[k]
		slices.Sort(est)
		out[name] = [2]float64{
			stat.Quantile(tail, stat.Empirical, est, nil),
			stat.Quantile(1-tail, stat.Empirical, est, nil),
		}
	}
	return out, nil
}
