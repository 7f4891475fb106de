package calibrate

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// Missing-value strategies.
const (
	MissingDrop        = "drop"
	MissingInterpolate = "interpolate"
)

// Outlier filters.
const (
	OutliersNone      = "none"
	OutliersIQR       = "iqr"
	OutliersThreshold = "threshold"
)

// DefaultIQRFactor keeps observations within 3 interquartile ranges of the
// quartiles, which removes only extreme values.
const DefaultIQRFactor = 3.0

// CleanOptions selects how a column is prepared for fitting.
type CleanOptions struct {
	Missing   string
	Outliers  string
	IQRFactor float64
	Min, Max  *float64 // bounds for OutliersThreshold, inclusive
}

// Cleaned is a prepared column and what was removed from it.
type Cleaned struct {
	Values       []float64
	Missing      int // missing cells dropped (interpolated cells are kept)
	Interpolated int
	Outliers     int
}

// Clean handles missing cells, then filters outliers. Row order is kept.
func Clean(raw []float64, opts CleanOptions) Cleaned {
	var c Cleaned
	if opts.Missing == MissingInterpolate {
		c.Values, c.Interpolated, c.Missing = interpolate(raw)
	} else {
		for _, v := range raw {
			if math.IsNaN(v) {
				c.Missing++
				continue
			}
			c.Values = append(c.Values, v)
		}
	}

	lo, hi := math.Inf(-1), math.Inf(1)
	switch opts.Outliers {
	case OutliersIQR:
		if len(c.Values) < 4 {
			break
		}
		factor := opts.IQRFactor
		if factor <= 0 {
			factor = DefaultIQRFactor
		}
		sorted := slices.Clone(c.Values)
		slices.Sort(sorted)
		q1 := stat.Quantile(0.25, stat.Empirical, sorted, nil)
		q3 := stat.Quantile(0.75, stat.Empirical, sorted, nil)
		iqr := q3 - q1
		lo, hi = q1-factor*iqr, q3+factor*iqr
	case OutliersThreshold:
		if opts.Min != nil {
			lo = *opts.Min
		}
		if opts.Max != nil {
			hi = *opts.Max
		}
	}

	kept := c.Values[:0]
	for _, v := range c.Values {
		if v < lo || v > hi {
			c.Outliers++
			continue
		}
		kept = append(kept, v)
	}
	c.Values = kept
	return c
}

// interpolate fills interior gaps linearly between their neighbours.
// Leading and trailing gaps have only one neighbour and are dropped.
func interpolate(raw []float64) (out []float64, filled, dropped int) {
	first, last := -1, -1
	for i, v := range raw {
		if !math.IsNaN(v) {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return nil, 0, len(raw)
	}
	dropped = first + (len(raw) - 1 - last)

	out = make([]float64, 0, last-first+1)
	prev := first
	for i := first; i <= last; i++ {
		v := raw[i]
		if !math.IsNaN(v) {
			prev = i
			out = append(out, v)
			continue
		}
		next := i + 1
		for math.IsNaN(raw[next]) {
			next++
		}
		w := float64(i-prev) / float64(next-prev)
		out = append(out, raw[prev]+w*(raw[next]-raw[prev]))
		filled++
	}
	return out, filled, dropped
}
