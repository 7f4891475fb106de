package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/qml/internal/calibrate"
	"github.com/roach88/qml/internal/compiler"
	"github.com/roach88/qml/internal/engine"
	"github.com/roach88/qml/internal/ir"
	"github.com/roach88/qml/internal/testutil"
)

// createTestStore creates a store in a temp dir whose clock starts at
// testutil.Epoch and advances one second per insert.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithClock(testutil.NewClock(testutil.Epoch, time.Second).Now))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func readModelSource(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("..", "..", "testdata", "models", name))
	require.NoError(t, err)
	return string(b)
}

// compileModel compiles a model from the shared testdata directory.
func compileModel(t *testing.T, name string) *ir.Model {
	t.Helper()
	m, err := compiler.Compile(readModelSource(t, name))
	require.NoError(t, err)
	return m
}

// compileDecayFrom compiles decay.qml with a different initial stock, giving
// a second model named Decay with a different hash.
func compileDecayFrom(t *testing.T, initial int) *ir.Model {
	t.Helper()
	src := strings.Replace(readModelSource(t, "decay.qml"), "x[0] = 1000", fmt.Sprintf("x[0] = %d", initial), 1)
	m, err := compiler.Compile(src)
	require.NoError(t, err)
	return m
}

func runDeterministic(t *testing.T, m *ir.Model, runID string) *engine.Result {
	t.Helper()
	e, err := engine.New(m, engine.WithRunIDGenerator(testutil.NewFixedRunID(runID)))
	require.NoError(t, err)
	res, err := e.Run(context.Background(), engine.Deterministic)
	require.NoError(t, err)
	return res
}

func runMonteCarlo(t *testing.T, m *ir.Model, runID string, seed uint64) *engine.Result {
	t.Helper()
	e, err := engine.New(m,
		engine.WithRunIDGenerator(testutil.NewFixedRunID(runID)),
		engine.WithSamples(20),
		engine.WithSeed(seed),
		engine.WithWorkers(2),
	)
	require.NoError(t, err)
	res, err := e.Run(context.Background(), engine.MonteCarlo)
	require.NoError(t, err)
	return res
}

// calibratePrice fits saas.qml's price to a uniform spread of 40..49.
func calibratePrice(t *testing.T, m *ir.Model, runID string) *calibrate.Report {
	t.Helper()
	var b strings.Builder
	b.WriteString("price\n")
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "%d\n", 40+i%10)
	}
	tab, err := calibrate.ReadCSV(strings.NewReader(b.String()))
	require.NoError(t, err)
	cfg, err := calibrate.ParseConfig([]byte(`
csv_path: prices.csv
seed: 1
parameters:
  price:
    distribution: uniform
    bootstrap_samples: 20
`))
	require.NoError(t, err)

	c := calibrate.New(
		calibrate.WithClock(testutil.NewClock(testutil.Epoch, 0).Now),
		calibrate.WithRunIDGenerator(testutil.NewFixedRunID(runID)),
	)
	rep, err := c.Calibrate(context.Background(), m, tab, cfg)
	require.NoError(t, err)
	require.Empty(t, rep.Failed())
	return rep
}
