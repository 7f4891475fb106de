package calibrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/qml/internal/dist"
	"github.com/roach88/qml/internal/engine"
	"github.com/roach88/qml/internal/ir"
)

// Calibrator fits model parameters to observed data.
type Calibrator struct {
	now     func() time.Time
	runIDs  engine.RunIDGenerator
	workers int
}

// Option configures a Calibrator.
type Option func(*Calibrator)

// WithClock sets the wall clock stamped on calibration metadata.
func WithClock(now func() time.Time) Option {
	return func(c *Calibrator) { c.now = now }
}

// WithRunIDGenerator sets the calibration identifier source.
func WithRunIDGenerator(g engine.RunIDGenerator) Option {
	return func(c *Calibrator) { c.runIDs = g }
}

// WithWorkers bounds how many parameters are fitted concurrently.
func WithWorkers(n int) Option {
	return func(c *Calibrator) {
		if n > 0 {
			c.workers = n
		}
	}
}

// New creates a Calibrator.
func New(opts ...Option) *Calibrator {
	c := &Calibrator{
		now:     time.Now,
		runIDs:  engine.UUIDv7Generator{},
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// fitted carries a successful fit from a worker to the IR rewrite.
type fitted struct {
	fit Fit
	gof GoodnessOfFit
}

// Calibrate fits every configured parameter and derives a new model in
// which each successfully fitted parameter carries its MLE distribution,
// "mle" provenance and calibration metadata. The input model is not
// modified. A parameter that cannot be fitted is reported with its error
// and keeps its prior definition; only cancellation fails the whole call.
func (c *Calibrator) Calibrate(ctx context.Context, m *ir.Model, data *Table, cfg *Config) (*Report, error) {
	names := cfg.ParamNames()
	rep := &Report{
		RunID:           c.runIDs.Generate(),
		Timestamp:       c.now().UTC(),
		ModelName:       m.ModelName,
		SourceHash:      m.ModelHash,
		DataHash:        data.Hash(),
		Seed:            cfg.Seed,
		ConfidenceLevel: cfg.ConfidenceLevel,
		Parameters:      make([]ParamReport, len(names)),
	}
	rep.CalibrationHash = ir.CalibrationDigest(rep.SourceHash, rep.DataHash)

	slog.Info("calibration started",
		"model", m.ModelName,
		"params", len(names),
		"rows", data.Rows(),
	)

	fits := make([]*fitted, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, name := range names {
		g.Go(func() error {
			pr, f, err := c.fitParam(gctx, m, data, cfg, name)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if err != nil {
				pr.Error = errorInfo(err)
				slog.Warn("parameter calibration failed", "param", name, "error", err)
			}
			rep.Parameters[i] = pr
			fits[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("calibration cancelled: %w", err)
	}

	if cfg.Drift != nil {
		d, err := DriftFromTable(data, cfg.Drift, cfg.MinSamples)
		if err != nil {
			rep.DriftError = errorInfo(err)
		}
		rep.Drift = d
	}

	out, err := c.rewrite(m, cfg, rep, fits)
	if err != nil {
		return nil, err
	}
	rep.Model = out
	rep.ModelHash = out.ModelHash

	slog.Info("calibration finished",
		"model", m.ModelName,
		"hash", out.ModelHash,
		"failed", len(rep.Failed()),
	)
	return rep, nil
}

func (c *Calibrator) fitParam(ctx context.Context, m *ir.Model, data *Table, cfg *Config, name string) (ParamReport, *fitted, error) {
	pc := cfg.Parameters[name]
	pr := ParamReport{Name: name, Column: cfg.Column(name), Distribution: pc.Distribution}

	idx := -1
	for i := range m.Params {
		if m.Params[i].Name == name {
			idx = i
		}
	}
	if idx < 0 {
		return pr, nil, &ConfigError{Message: fmt.Sprintf("model %s has no param %q", m.ModelName, name)}
	}
	raw, ok := data.Column(pr.Column)
	if !ok {
		return pr, nil, &DataError{Code: ErrCodeUnknownColumn, Param: name, Message: fmt.Sprintf("no column %q in data", pr.Column)}
	}

	cl := Clean(raw, pc.Clean())
	pr.N, pr.Missing, pr.Interpolated, pr.Outliers = len(cl.Values), cl.Missing, cl.Interpolated, cl.Outliers
	if pr.N < cfg.MinSamples {
		return pr, nil, &InsufficientDataError{Param: name, N: pr.N, Min: cfg.MinSamples}
	}

	fit, err := MLE(name, pc.Distribution, cl.Values)
	if err != nil {
		return pr, nil, err
	}
	gof := Assess(fit, cl.Values)

	// The bootstrap stream depends only on the seed and the param's
	// position in the model, never on worker scheduling.
	rng := dist.NewRNG(cfg.Seed, idx)
	intervals, err := Bootstrap(ctx, name, pc.Distribution, cl.Values, *pc.BootstrapSamples, cfg.ConfidenceLevel, rng)
	if err != nil {
		return pr, nil, err
	}

	pr.Params = make(map[string]float64)
	for k, v := range fit.Dist.Params() {
		pr.Params[ParamNames(pc.Distribution)[k]] = v
	}
	pr.Intervals = intervals
	pr.GoodnessOfFit = &gof
	pr.Confidence = Confidence(gof, pr.N)
	return pr, &fitted{fit: fit, gof: gof}, nil
}

// rewrite derives the calibrated model from a clone of m.
func (c *Calibrator) rewrite(m *ir.Model, cfg *Config, rep *Report, fits []*fitted) (*ir.Model, error) {
	out := m.Clone()
	for i, pr := range rep.Parameters {
		f := fits[i]
		if f == nil {
			continue
		}
		p, _ := out.ParamByName(pr.Name)
		d := dist.ToIR(f.fit.Dist)
		if p.Distribution != nil {
			d.Correlations = p.Distribution.Correlations
		}
		p.Value = nil
		p.Distribution = d
		p.Provenance = ir.Provenance{
			Source:     ir.SourceCalibrated,
			Method:     ir.MethodMLE,
			Confidence: pr.Confidence,
			Notes:      fmt.Sprintf("%s fitted to column %q of %s (n=%d)", pr.Distribution, pr.Column, cfg.CSVPath, pr.N),
		}
		p.Calibration = &ir.CalibrationMeta{
			Timestamp:   rep.Timestamp,
			RunID:       rep.RunID,
			Samples:     pr.N,
			AIC:         f.gof.AIC,
			BIC:         f.gof.BIC,
			KSStatistic: f.gof.KSStatistic,
			KSPValue:    f.gof.KSPValue,
			Intervals:   pr.Intervals,
		}
	}
	if _, err := dist.NewJoint(out.Params); err != nil {
		return nil, fmt.Errorf("calibrated model: %w", err)
	}
	if err := ir.Stamp(out); err != nil {
		return nil, fmt.Errorf("calibrated model: %w", err)
	}
	return out, nil
}

// DriftFromTable runs Drift over the configured columns, skipping rows
// where either value is missing.
func DriftFromTable(data *Table, dc *DriftConfig, minSamples int) (*DriftReport, error) {
	obs, ok := data.Column(dc.Observed)
	if !ok {
		return nil, &DataError{Code: ErrCodeUnknownColumn, Param: "drift", Message: fmt.Sprintf("no column %q in data", dc.Observed)}
	}
	pred, ok := data.Column(dc.Predicted)
	if !ok {
		return nil, &DataError{Code: ErrCodeUnknownColumn, Param: "drift", Message: fmt.Sprintf("no column %q in data", dc.Predicted)}
	}
	var o, p []float64
	for i := range obs {
		if math.IsNaN(obs[i]) || math.IsNaN(pred[i]) {
			continue
		}
		o = append(o, obs[i])
		p = append(p, pred[i])
	}
	return Drift(o, p, dc.Options(minSamples))
}
