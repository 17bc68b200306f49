package forecasting

import (
	"math"
	"math/rand"
	"testing"

	apperrors "github.com/SAP-F-2025/forecast-service/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitARIMARandomWalk(t *testing.T) {
	m, err := FitARIMA([]float64{0.1, 0.2, 0.3, 0.4}, Order{P: 0, D: 1, Q: 0})
	require.NoError(t, err)

	assert.InDelta(t, 0.4, m.ForecastNext(), 1e-9)
	assert.Equal(t, 3, m.Observations)
	assert.False(t, math.IsNaN(m.AIC))
	assert.GreaterOrEqual(t, m.Sigma2, sigma2Floor)
}

func TestFitARIMARecoversAR1(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	series := make([]float64, 300)
	for i := 1; i < len(series); i++ {
		series[i] = 0.6*series[i-1] + rng.NormFloat64()*0.1
	}

	m, err := FitARIMA(series, Order{P: 1, D: 0, Q: 0})
	require.NoError(t, err)
	require.Len(t, m.AR, 1)
	assert.InDelta(t, 0.6, m.AR[0], 0.15)
	assert.InDelta(t, 0.01, m.Sigma2, 0.005)

	// one step ahead of an AR(1) is phi times the last value
	assert.InDelta(t, m.AR[0]*series[len(series)-1], m.ForecastNext(), 1e-9)
}

func TestFitARIMATooShort(t *testing.T) {
	_, err := FitARIMA([]float64{0.1, 0.2}, Order{P: 1, D: 1, Q: 0})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientHistory)

	_, err = FitARIMA([]float64{0.1, 0.2, 0.3}, Order{P: -1})
	assert.Error(t, err)
}

func TestSelectARIMAPicksLowestAIC(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	series := make([]float64, 40)
	for i := 1; i < len(series); i++ {
		series[i] = series[i-1] + rng.NormFloat64()*0.05
	}

	best, candidates, err := SelectARIMA(series, DefaultAROrders, DefaultDifferencing, DefaultMAOrders)
	require.NoError(t, err)
	require.Len(t, candidates, 4)

	for _, c := range candidates {
		if c.Err == nil {
			assert.LessOrEqual(t, best.AIC, c.AIC, "order %s", c.Order)
		}
	}
	assert.Equal(t, 1, best.Order.D)
}

func TestSelectARIMANoConvergence(t *testing.T) {
	_, candidates, err := SelectARIMA([]float64{0.5, 0.6}, DefaultAROrders, DefaultDifferencing, DefaultMAOrders)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNoConvergence)
	assert.Len(t, candidates, 4)
	for _, c := range candidates {
		assert.Error(t, c.Err)
	}
}

func TestOrderString(t *testing.T) {
	assert.Equal(t, "(1,1,0)", Order{P: 1, D: 1, Q: 0}.String())
}
