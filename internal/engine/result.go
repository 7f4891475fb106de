package engine

import (
	"bytes"
	"encoding/json"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/roach88/qml/internal/constraint"
	"github.com/roach88/qml/internal/ir"
	"github.com/roach88/qml/internal/units"
)

// Run statuses.
const (
	StatusSuccess             = "success"
	StatusConstraintViolation = "constraint_violation"
)

// Result is the structured report of one run. It is returned even when
// fatal constraints fired; Status tells the caller.
type Result struct {
	RunID                string                 `json:"run_id"`
	ModelName            string                 `json:"model_name"`
	ModelHash            string                 `json:"model_hash"`
	IRVersion            string                 `json:"ir_version"`
	EngineVersion        string                 `json:"engine_version"`
	Status               string                 `json:"status"`
	Mode                 Mode                   `json:"mode"`
	Seed                 *uint64                `json:"seed,omitempty"`
	Samples              int                    `json:"samples"`
	Horizon              int                    `json:"horizon"`
	Step                 units.Granularity      `json:"step"`
	Variables            Variables              `json:"variables"`
	ConstraintViolations []constraint.Violation `json:"constraint_violations"`
	ConstraintSummary    []constraint.Summary   `json:"constraint_summary"`
	ViolationsTruncated  int                    `json:"violations_truncated,omitempty"`
	HaltedSamples        int                    `json:"halted_samples"`
}

// Variable is the output of one var. Deterministic runs fill Value
// (scalars) or TimeSeries; Monte Carlo runs fill Summary (scalars) or
// Statistics, one entry per step.
type Variable struct {
	Name       string     `json:"-"`
	Type       units.Type `json:"type"`
	Value      *float64   `json:"value,omitempty"`
	TimeSeries []float64  `json:"time_series,omitempty"`
	Summary    *Stats     `json:"summary,omitempty"`
	Statistics []*Stats   `json:"statistics,omitempty"`
}

// Variables keeps declaration order and marshals as a JSON object in that
// order.
type Variables []Variable

// MarshalJSON writes {"name": {...}, ...} in declaration order.
func (vs Variables) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, v := range vs {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(v.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Lookup returns the named var.
func (vs Variables) Lookup(name string) (*Variable, bool) {
	for i := range vs {
		if vs[i].Name == name {
			return &vs[i], true
		}
	}
	return nil, false
}

// Stats summarises the sampled values of one (var, t) coordinate. N counts
// the samples that reached t; samples halted earlier do not contribute.
type Stats struct {
	N      int     `json:"n"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stddev"`
	P5     float64 `json:"p5"`
	P25    float64 `json:"p25"`
	P75    float64 `json:"p75"`
	P95    float64 `json:"p95"`
}

// Summarize computes Stats over xs with a full sort. It returns nil for an
// empty input. xs is not modified.
func Summarize(xs []float64) *Stats {
	if len(xs) == 0 {
		return nil
	}
	sorted := slices.Clone(xs)
	slices.Sort(sorted)
	q := func(p float64) float64 {
		return stat.Quantile(p, stat.Empirical, sorted, nil)
	}
	s := &Stats{
		N:      len(sorted),
		Mean:   stat.Mean(xs, nil),
		Median: q(0.5),
		P5:     q(0.05),
		P25:    q(0.25),
		P75:    q(0.75),
		P95:    q(0.95),
	}
	if len(xs) > 1 {
		s.StdDev = stat.StdDev(xs, nil)
	}
	return s
}

// collect aggregates per-sample outputs in sample-index order, so the
// result does not depend on scheduling.
func (e *Engine) collect(runID string, mode Mode, outs []*sampleOut) *Result {
	m := e.model
	res := &Result{
		RunID:         runID,
		ModelName:     m.ModelName,
		ModelHash:     m.ModelHash,
		IRVersion:     ir.IRVersion,
		EngineVersion: ir.EngineVersion,
		Status:        StatusSuccess,
		Mode:          mode,
		Samples:       len(outs),
		Horizon:       m.Horizon,
		Step:          m.Step,
		Variables:     make(Variables, len(m.Vars)),
	}
	if mode == MonteCarlo {
		seed := e.seed
		res.Seed = &seed
	}

	tally := constraint.NewTally(m.Constraints, e.maxViolations)
	for _, o := range outs {
		tally.Add(o.violations, o.halted)
	}
	res.ConstraintViolations = tally.Violations()
	res.ConstraintSummary = tally.Summaries(len(outs))
	res.ViolationsTruncated = tally.Dropped()
	res.HaltedSamples = tally.Halted()
	if res.HaltedSamples > 0 {
		res.Status = StatusConstraintViolation
	}

	for i, v := range m.Vars {
		out := Variable{Name: v.Name, Type: v.Type}
		switch {
		case mode == Deterministic && v.IsSeries():
			out.TimeSeries = outs[0].series[i]
		case mode == Deterministic:
			val := outs[0].scalars[i]
			out.Value = &val
		case v.IsSeries():
			out.Statistics = seriesStats(outs, i, m.Horizon)
		default:
			xs := make([]float64, len(outs))
			for s, o := range outs {
				xs[s] = o.scalars[i]
			}
			out.Summary = Summarize(xs)
		}
		res.Variables[i] = out
	}
	return res
}

// seriesStats returns one Stats per step of var i, nil where no sample
// reached the step.
func seriesStats(outs []*sampleOut, i, horizon int) []*Stats {
	stats := make([]*Stats, horizon+1)
	xs := make([]float64, 0, len(outs))
	for t := range stats {
		xs = xs[:0]
		for _, o := range outs {
			if t < len(o.series[i]) {
				xs = append(xs, o.series[i][t])
			}
		}
		stats[t] = Summarize(xs)
	}
	return stats
}
