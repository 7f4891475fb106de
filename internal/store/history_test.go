package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qml/internal/testutil"
)

// populate stores, in order: Decay model, Decay run, Saas model, Saas run,
// calibrated Saas model, calibration.
func populate(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	decay := compileModel(t, "decay.qml")
	_, err := s.SaveRun(ctx, decay, runDeterministic(t, decay, "run-decay"))
	require.NoError(t, err)

	saas := compileModel(t, "saas.qml")
	_, err = s.SaveRun(ctx, saas, runMonteCarlo(t, saas, "run-saas", 7))
	require.NoError(t, err)

	_, err = s.SaveCalibration(ctx, saas, calibratePrice(t, saas, "cal-saas"))
	require.NoError(t, err)
}

func kinds(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Kind
	}
	return out
}

func TestHistory_Empty(t *testing.T) {
	s := createTestStore(t)

	entries, err := s.History(context.Background(), HistoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHistory_InterleavedBySeq(t *testing.T) {
	s := createTestStore(t)
	populate(t, s)

	entries, err := s.History(context.Background(), HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 6)

	assert.Equal(t, []string{KindModel, KindRun, KindModel, KindRun, KindModel, KindCalibration}, kinds(entries))
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.Seq)
		assert.Equal(t, testutil.Epoch.Add(time.Duration(i)*time.Second), e.CreatedAt)
	}

	assert.Equal(t, "ir v1", entries[0].Detail)
	assert.Equal(t, "run-decay", entries[1].ID)
	assert.Equal(t, "deterministic success samples=1", entries[1].Detail)
	assert.Equal(t, "monte_carlo success samples=20", entries[3].Detail)
	assert.Equal(t, "calibrated from "+entries[2].ModelHash[:12], entries[4].Detail)
	assert.Equal(t, "1 params, 0 failed", entries[5].Detail)
	assert.Equal(t, entries[4].ModelHash, entries[5].ModelHash, "calibration points at the derived model")
}

func TestHistory_FilterByModel(t *testing.T) {
	s := createTestStore(t)
	populate(t, s)
	ctx := context.Background()

	decay, err := s.History(ctx, HistoryFilter{Model: "Decay"})
	require.NoError(t, err)
	assert.Equal(t, []string{KindModel, KindRun}, kinds(decay))

	saas, err := s.History(ctx, HistoryFilter{Model: "Saas"})
	require.NoError(t, err)
	assert.Equal(t, []string{KindModel, KindRun, KindModel, KindCalibration}, kinds(saas))

	// A hash narrows to that exact model.
	byHash, err := s.History(ctx, HistoryFilter{Model: decay[0].ModelHash})
	require.NoError(t, err)
	assert.Equal(t, decay, byHash)
}

func TestHistory_LimitKeepsNewest(t *testing.T) {
	s := createTestStore(t)
	populate(t, s)

	entries, err := s.History(context.Background(), HistoryFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(5), entries[0].Seq)
	assert.Equal(t, int64(6), entries[1].Seq)
}
