package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/qml/internal/compiler"
	"github.com/roach88/qml/internal/engine"
	"github.com/roach88/qml/internal/ir"
	"github.com/roach88/qml/internal/store"
	"github.com/roach88/qml/internal/testutil"
)

// codedError is implemented by every error kind the toolchain reports.
type codedError interface {
	error
	Kind() string
	ErrorCode() string
}

// Harness executes scenarios against a fresh store.
type Harness struct {
	store  *store.Store
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory store for isolation.
//
// Execution flow:
// 1. Compile the model
// 2. Match the expected error, if the scenario names one
// 3. Run the engine with a fixed run id and seed
// 4. Record the run in the store
// 5. Evaluate assertions
//
// A returned error means the scenario could not be executed; assertion
// failures are reported in Result.Errors.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:", store.WithClock(testutil.NewClock(testutil.Epoch, 0).Now))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	return h.run(ctx, scenario)
}

func (h *Harness) run(ctx context.Context, s *Scenario) (*Result, error) {
	result := NewResult(s.Name)

	m, err := compiler.New().CompileFile(s.Model)
	if err == nil {
		result.Run, err = execute(ctx, m, s, s.Workers)
	}
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil, err
	}

	if s.ExpectError != nil {
		result.Err = err
		if msg := matchError(err, s.ExpectError); msg != "" {
			result.AddError(msg)
		}
		h.logger.Info("scenario rejected model", "scenario", s.Name, "error", err)
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	rec, err := h.store.SaveRun(ctx, m, result.Run)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	result.Record = &rec

	actx := &AssertionContext{
		Ctx: ctx,
		Rerun: func(ctx context.Context, workers int) (*engine.Result, error) {
			return execute(ctx, m, s, workers)
		},
	}
	for _, msg := range EvaluateAssertions(result.Run, s.Assertions, actx) {
		result.AddError(msg)
	}

	h.logger.Info("scenario completed",
		"scenario", s.Name,
		"status", result.Run.Status,
		"pass", result.Pass,
	)
	return result, nil
}

// execute runs m the way the scenario configures it.
func execute(ctx context.Context, m *ir.Model, s *Scenario, workers int) (*engine.Result, error) {
	opts := []engine.Option{
		engine.WithRunIDGenerator(testutil.NewFixedRunID(s.RunID)),
		engine.WithSeed(s.Seed),
	}
	if s.Samples > 0 {
		opts = append(opts, engine.WithSamples(s.Samples))
	}
	if workers > 0 {
		opts = append(opts, engine.WithWorkers(workers))
	}
	e, err := engine.New(m, opts...)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, s.Mode)
}

// matchError returns a failure message, or "" when err matches want.
func matchError(err error, want *ErrorExpectation) string {
	if err == nil {
		return fmt.Sprintf("expected %s %s, model was accepted", want.Kind, want.Code)
	}
	var ce codedError
	if !errors.As(err, &ce) {
		return fmt.Sprintf("expected %s %s, got uncoded error: %v", want.Kind, want.Code, err)
	}
	if want.Kind != "" && ce.Kind() != want.Kind {
		return fmt.Sprintf("expected error kind %s, got %s: %v", want.Kind, ce.Kind(), err)
	}
	if want.Code != "" && ce.ErrorCode() != want.Code {
		return fmt.Sprintf("expected error code %s, got %s: %v", want.Code, ce.ErrorCode(), err)
	}
	if want.Message != "" && !strings.Contains(err.Error(), want.Message) {
		return fmt.Sprintf("expected error containing %q, got: %v", want.Message, err)
	}
	return ""
}
