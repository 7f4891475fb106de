package calibrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shiftedSeries returns 40 observations that alternate one unit around the
// prediction for 20 steps, then run 10 units above it.
func shiftedSeries() (obs, pred []float64) {
	for i := range 40 {
		pred = append(pred, 100)
		switch {
		case i >= 20:
			obs = append(obs, 110)
		case i%2 == 0:
			obs = append(obs, 101)
		default:
			obs = append(obs, 99)
		}
	}
	return obs, pred
}

func TestDrift_DetectsUpwardShift(t *testing.T) {
	obs, pred := shiftedSeries()
	r, err := Drift(obs, pred, DriftOptions{})
	require.NoError(t, err)

	assert.Equal(t, 40, r.N)
	assert.Equal(t, 20, r.ChangePoint)
	assert.Equal(t, DriftUp, r.Direction)
	assert.True(t, r.Drifted())
	assert.InDelta(t, 0.0505, r.MAPE, 0.001)
	assert.False(t, r.MAPEExceeded)
}

func TestDrift_DetectsDownwardShift(t *testing.T) {
	obs, pred := shiftedSeries()
	for i := 20; i < len(obs); i++ {
		obs[i] = 90
	}
	r, err := Drift(obs, pred, DriftOptions{})
	require.NoError(t, err)
	assert.Equal(t, 20, r.ChangePoint)
	assert.Equal(t, DriftDown, r.Direction)
}

func TestDrift_StableSeries(t *testing.T) {
	obs, pred := shiftedSeries()
	obs = obs[:20]
	pred = pred[:20]

	r, err := Drift(obs, pred, DriftOptions{})
	require.NoError(t, err)
	assert.Equal(t, -1, r.ChangePoint)
	assert.Empty(t, r.Direction)
	assert.False(t, r.Drifted())
}

func TestDrift_MAPEThreshold(t *testing.T) {
	obs := make([]float64, 12)
	pred := make([]float64, 12)
	for i := range obs {
		obs[i] = 100
		pred[i] = 80
	}
	r, err := Drift(obs, pred, DriftOptions{MAPEThreshold: 0.15})
	require.NoError(t, err)
	assert.InDelta(t, 0.2, r.MAPE, 1e-12)
	assert.True(t, r.MAPEExceeded)
	assert.True(t, r.Drifted())
}

func TestDrift_ZeroObservationsSkippedInMAPE(t *testing.T) {
	obs := []float64{0, 100, 100, 100, 100, 100, 100, 100, 100, 100}
	pred := []float64{5, 90, 110, 90, 110, 90, 110, 90, 110, 90}
	r, err := Drift(obs, pred, DriftOptions{})
	require.NoError(t, err)
	assert.InDelta(t, 0.1, r.MAPE, 1e-12)
}

func TestDrift_Errors(t *testing.T) {
	_, err := Drift([]float64{1, 2}, []float64{1}, DriftOptions{})
	var de *DataError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, ErrCodeData, de.Code)

	_, err = Drift([]float64{1, 2, 3}, []float64{1, 2, 3}, DriftOptions{})
	assert.True(t, IsInsufficientData(err))

	_, err = Drift([]float64{1, 2, 3}, []float64{1, 2, 3}, DriftOptions{MinSamples: 3})
	assert.NoError(t, err)
}
