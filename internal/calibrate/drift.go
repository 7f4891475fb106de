package calibrate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// CUSUM defaults: allowance k and decision threshold h, in standard
// deviations of the baseline residuals.
const (
	DefaultCUSUMK        = 0.5
	DefaultCUSUMH        = 5.0
	DefaultMAPEThreshold = 0.1
)

// Drift directions.
const (
	DriftUp   = "up"   // observations run above predictions
	DriftDown = "down" // observations run below predictions
)

// DriftOptions configures Drift.
type DriftOptions struct {
	K             float64
	H             float64
	MAPEThreshold float64 // fraction, 0.1 is 10%
	Baseline      int     // residuals used to estimate scale; 0 means the first half
	MinSamples    int
}

// DriftReport is the outcome of comparing observations with predictions.
type DriftReport struct {
	N            int     `json:"n"`
	MAPE         float64 `json:"mape"`
	MAPEExceeded bool    `json:"mape_exceeded"`
	ChangePoint  int     `json:"change_point"` // -1 when no drift was detected
	Direction    string  `json:"direction,omitempty"`
	Scale        float64 `json:"scale"`
}

// Drifted reports whether either test flagged drift.
func (r *DriftReport) Drifted() bool {
	return r.MAPEExceeded || r.ChangePoint >= 0
}

// Drift computes the mean absolute percentage error of predicted against
// observed and runs a two-sided tabular CUSUM over the residuals
// observed-predicted, standardised by the standard deviation of the
// baseline window. ChangePoint is the first index at which either
// cumulative sum exceeds H.
func Drift(observed, predicted []float64, opts DriftOptions) (*DriftReport, error) {
	if len(observed) != len(predicted) {
		return nil, &DataError{
			Code:    ErrCodeData,
			Message: fmt.Sprintf("observed has %d values, predicted has %d", len(observed), len(predicted)),
		}
	}
	opts = driftDefaults(opts)
	n := len(observed)
	if n < opts.MinSamples {
		return nil, &InsufficientDataError{Param: "drift", N: n, Min: opts.MinSamples}
	}

	resid := make([]float64, n)
	var ape float64
	var counted int
	for i := range observed {
		resid[i] = observed[i] - predicted[i]
		if observed[i] != 0 {
			ape += math.Abs(resid[i] / observed[i])
			counted++
		}
	}

	r := &DriftReport{N: n, ChangePoint: -1}
	if counted > 0 {
		r.MAPE = ape / float64(counted)
	}
	r.MAPEExceeded = r.MAPE > opts.MAPEThreshold

	base := opts.Baseline
	if base <= 0 {
		base = n / 2
	}
	base = min(max(base, 2), n)
	r.Scale = stat.StdDev(resid[:base], nil)
	if r.Scale == 0 || math.IsNaN(r.Scale) {
		// A perfectly flat baseline carries no scale; fall back to raw units.
		r.Scale = 1
	}

	var hi, lo float64
	for i, e := range resid {
		z := e / r.Scale
		hi = math.Max(0, hi+z-opts.K)
		lo = math.Max(0, lo-z-opts.K)
		switch {
		case hi > opts.H:
			r.ChangePoint, r.Direction = i, DriftUp
		case lo > opts.H:
			r.ChangePoint, r.Direction = i, DriftDown
		default:
			continue
		}
		break
	}
	return r, nil
}

func driftDefaults(o DriftOptions) DriftOptions {
	if o.K <= 0 {
		o.K = DefaultCUSUMK
	}
	if o.H <= 0 {
		o.H = DefaultCUSUMH
	}
	if o.MAPEThreshold <= 0 {
		o.MAPEThreshold = DefaultMAPEThreshold
	}
	if o.MinSamples <= 0 {
		o.MinSamples = DefaultMinSamples
	}
	return o
}
