package constraint

import (
	"github.com/roach88/qml/internal/ir"
)

// Summary aggregates one constraint over all samples.
//
// ViolationRate is ViolatingSamples / Samples. A warning that fails at
// several steps of one sample counts once toward the rate and once per
// step toward Violations.
type Summary struct {
	Constraint       string      `json:"constraint"`
	Severity         ir.Severity `json:"severity"`
	Violations       int         `json:"violations"`
	ViolatingSamples int         `json:"violating_samples"`
	ViolationRate    float64     `json:"violation_rate"`
}

// Tally accumulates violations from many samples. Samples must be added
// in index order for the retained list to be deterministic.
type Tally struct {
	constraints []ir.Constraint
	index       map[string]int
	counts      []int
	samples     []int
	retained    []Violation
	limit       int
	dropped     int
	halted      int
}

// NewTally returns an empty tally that retains at most limit individual
// violations. A limit <= 0 retains all of them. Counts are always exact.
func NewTally(constraints []ir.Constraint, limit int) *Tally {
	t := &Tally{
		constraints: constraints,
		index:       make(map[string]int, len(constraints)),
		counts:      make([]int, len(constraints)),
		samples:     make([]int, len(constraints)),
		limit:       limit,
	}
	for i, c := range constraints {
		t.index[c.Name] = i
	}
	return t
}

// Add folds in the violations of one sample.
func (t *Tally) Add(vs []Violation, halted bool) {
	if halted {
		t.halted++
	}
	seen := make(map[int]bool)
	for _, v := range vs {
		i := t.index[v.Constraint]
		t.counts[i]++
		if !seen[i] {
			seen[i] = true
			t.samples[i]++
		}
		if t.limit <= 0 || len(t.retained) < t.limit {
			t.retained = append(t.retained, v)
		} else {
			t.dropped++
		}
	}
}

// Violations returns the retained violations.
func (t *Tally) Violations() []Violation {
	if t.retained == nil {
		return []Violation{}
	}
	return t.retained
}

// Dropped returns how many violations were counted but not retained.
func (t *Tally) Dropped() int { return t.dropped }

// Halted returns how many samples stopped on a fatal violation.
func (t *Tally) Halted() int { return t.halted }

// Summaries returns one entry per constraint, in declaration order.
func (t *Tally) Summaries(samples int) []Summary {
	out := make([]Summary, len(t.constraints))
	for i, c := range t.constraints {
		out[i] = Summary{
			Constraint:       c.Name,
			Severity:         c.Severity,
			Violations:       t.counts[i],
			ViolatingSamples: t.samples[i],
		}
		if samples > 0 {
			out[i].ViolationRate = float64(t.samples[i]) / float64(samples)
		}
	}
	return out
}
