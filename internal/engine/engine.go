package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/qml/internal/constraint"
	"github.com/roach88/qml/internal/dist"
	"github.com/roach88/qml/internal/funcs"
	"github.com/roach88/qml/internal/ir"
	"github.com/roach88/qml/internal/resolver"
)

// RunIDGenerator generates unique run identifiers.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type RunIDGenerator interface {
	Generate() string
}

// Mode selects how params are realised.
type Mode string

// Execution modes.
const (
	// Deterministic runs one pass with every distribution collapsed to its
	// central value. No RNG is consumed.
	Deterministic Mode = "deterministic"

	// MonteCarlo runs N independently seeded samples.
	MonteCarlo Mode = "monte_carlo"
)

// Defaults.
const (
	DefaultSamples       = 10000
	DefaultMaxViolations = 1000
)

// Engine executes one compiled model. The model, the evaluation plan, the
// compiled expressions and the joint parameter distribution are built once
// in New and shared read-only by every sample.
type Engine struct {
	model *ir.Model
	plan  *resolver.Plan
	joint *dist.Joint

	init   []evalFn // by var index; nil when the recurrence covers t=0
	rec    []evalFn // by var index
	checks []evalFn // by constraint index

	funcs         *funcs.Registry
	samples       int
	seed          uint64
	workers       int
	maxViolations int
	runIDs        RunIDGenerator
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithSamples sets the Monte Carlo sample count.
//
// Default: 10000 (DefaultSamples)
func WithSamples(n int) Option {
	return func(e *Engine) {
		e.samples = n
	}
}

// WithSeed sets the master seed. Sample i draws from dist.NewRNG(seed, i).
func WithSeed(seed uint64) Option {
	return func(e *Engine) {
		e.seed = seed
	}
}

// WithWorkers sets the number of samples evaluated concurrently.
//
// Default: runtime.GOMAXPROCS(0). Results do not depend on it.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithRunIDGenerator sets the run identifier source.
//
// Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Engine) {
		e.runIDs = g
	}
}

// WithMaxViolations caps the violations listed individually in a Result.
// Counts and rates stay exact. Zero or less lists every violation.
//
// Default: 1000 (DefaultMaxViolations)
func WithMaxViolations(n int) Option {
	return func(e *Engine) {
		e.maxViolations = n
	}
}

// WithFuncs sets the function table used by call expressions. It must be
// the table the model was compiled against. Default: funcs.Builtins().
func WithFuncs(r *funcs.Registry) Option {
	return func(e *Engine) {
		e.funcs = r
	}
}

// New prepares m for execution. It resolves the evaluation order, builds
// the joint parameter distribution and compiles every expression.
func New(m *ir.Model, opts ...Option) (*Engine, error) {
	e := &Engine{
		model:         m,
		funcs:         funcs.Builtins(),
		samples:       DefaultSamples,
		workers:       runtime.GOMAXPROCS(0),
		maxViolations: DefaultMaxViolations,
		runIDs:        UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.samples < 1 {
		return nil, fmt.Errorf("samples must be positive, got %d", e.samples)
	}
	if e.workers < 1 {
		e.workers = 1
	}

	plan, err := resolver.Resolve(m)
	if err != nil {
		return nil, err
	}
	e.plan = plan
	if e.joint, err = dist.NewJoint(m.Params); err != nil {
		return nil, err
	}

	c := newLowerer(m, e.funcs)
	e.init = make([]evalFn, len(m.Vars))
	e.rec = make([]evalFn, len(m.Vars))
	for i, v := range m.Vars {
		if v.Init != nil {
			if e.init[i], err = c.compile(v.Init); err != nil {
				return nil, invalidModel(v.Name, err)
			}
		}
		if e.rec[i], err = c.compile(v.Recurrence); err != nil {
			return nil, invalidModel(v.Name, err)
		}
	}
	e.checks = make([]evalFn, len(m.Constraints))
	for i, k := range m.Constraints {
		if e.checks[i], err = c.compile(k.Expr); err != nil {
			return nil, invalidModel(k.Name, err)
		}
	}
	return e, nil
}

func invalidModel(node string, err error) error {
	return &RuntimeError{Code: ErrCodeInvalidModel, Message: err.Error(), Node: node}
}

// Run executes the model in the given mode.
//
// Constraint violations never make Run fail: they are reported in the
// Result. Run fails on runtime errors (invalid lookback, non-finite values,
// division by zero) and on cancellation, which is checked between samples.
// When several samples fail, the error of the lowest sample index is
// returned regardless of scheduling.
func (e *Engine) Run(ctx context.Context, mode Mode) (*Result, error) {
	n := e.samples
	if mode == Deterministic {
		n = 1
	} else if mode != MonteCarlo {
		return nil, fmt.Errorf("unknown mode %q", mode)
	}

	runID := e.runIDs.Generate()
	slog.Info("run starting",
		"run_id", runID,
		"model", e.model.ModelName,
		"hash", e.model.ModelHash,
		"mode", mode,
		"samples", n,
		"workers", min(e.workers, n),
	)

	outs := make([]*sampleOut, n)
	if mode == Deterministic {
		params := make([]float64, len(e.model.Params))
		e.joint.Central(params)
		outs[0] = e.sample(0, params)
	} else if err := e.monteCarlo(ctx, outs); err != nil {
		return nil, err
	}

	// After an internal stop the unlaunched tail is nil; a failed sample
	// always precedes it.
	for i, o := range outs {
		if o == nil {
			break
		}
		if o.err != nil {
			slog.Error("run failed", "run_id", runID, "sample", i, "error", o.err)
			return nil, o.err
		}
	}

	res := e.collect(runID, mode, outs)
	slog.Info("run finished",
		"run_id", runID,
		"status", res.Status,
		"violations", len(res.ConstraintViolations),
		"halted_samples", res.HaltedSamples,
	)
	return res, nil
}

// monteCarlo evaluates every sample on a bounded worker pool. Samples are
// launched in index order; a runtime error stops further launches but lets
// every already-launched sample finish, so the lowest failing index is
// always evaluated.
func (e *Engine) monteCarlo(ctx context.Context, outs []*sampleOut) error {
	stop, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i := range outs {
		if stop.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			params := make([]float64, len(e.model.Params))
			e.joint.Draw(dist.NewRNG(e.seed, i), params)
			outs[i] = e.sample(i, params)
			if outs[i].err != nil {
				cancel()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("run cancelled: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run cancelled: %w", err)
	}
	return nil
}

// sampleOut is everything one sample produced.
type sampleOut struct {
	scalars    []float64
	series     [][]float64
	violations []constraint.Violation
	halted     bool
	err        error
}

// sample evaluates one sample: scalars once, then series and constraints
// step by step until the horizon or a fatal violation.
func (e *Engine) sample(idx int, params []float64) *sampleOut {
	m := e.model
	f := &frame{
		params:  params,
		scalars: make([]float64, len(m.Vars)),
		series:  make([][]float64, len(m.Vars)),
	}
	for _, i := range e.plan.Series {
		f.series[i] = make([]float64, 0, m.Horizon+1)
	}
	out := &sampleOut{scalars: f.scalars, series: f.series}

	for _, i := range e.plan.Scalars {
		v, err := e.rec[i](f)
		if err == nil && !finite(v) {
			err = evalErrorf(ErrCodeNonFinite, "value is %g", v)
		}
		if err != nil {
			out.err = locate(err, m.Vars[i].Name, 0, idx)
			return out
		}
		f.scalars[i] = v
	}

	mon := constraint.NewMonitor(m.Constraints, e.plan.Constraints, idx)
	for t := 0; t <= m.Horizon; t++ {
		f.t = t
		for _, i := range e.plan.Series {
			fn := e.rec[i]
			if t == 0 && e.init[i] != nil {
				fn = e.init[i]
			}
			v, err := fn(f)
			if err == nil && !finite(v) {
				err = evalErrorf(ErrCodeNonFinite, "value is %g", v)
			}
			if err != nil {
				out.err = locate(err, m.Vars[i].Name, t, idx)
				return out
			}
			f.series[i] = append(f.series[i], v)
		}

		err := mon.Step(t, func(i int, c *ir.Constraint) (bool, error) {
			v, err := e.checks[i](f)
			if err != nil {
				return false, locate(err, c.Name, t, idx)
			}
			return v != 0, nil
		})
		if err != nil {
			out.err = err
			return out
		}
		if mon.State() == constraint.Halted {
			slog.Debug("sample halted", "sample", idx, "t", mon.HaltedAt())
			break
		}
	}
	out.violations = mon.Violations()
	out.halted = mon.State() == constraint.Halted
	return out
}
