package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightedMeanScore(t *testing.T) {
	// weights 0.9 and 1.0, most recent highest
	got := WeightedMeanScore([]float64{0.5, 1.0}, 0.9)
	assert.InDelta(t, (0.45+1.0)/1.9, got, 1e-9)
	assert.Equal(t, 0.0, WeightedMeanScore(nil, 0.9))
}

func TestTrendSlope(t *testing.T) {
	assert.InDelta(t, 0.1, TrendSlope([]float64{0.1, 0.2, 0.3, 0.4}), 1e-9)
	assert.InDelta(t, -0.05, TrendSlope([]float64{0.9, 0.85, 0.8}), 1e-9)
	assert.Equal(t, 0.0, TrendSlope([]float64{0.7}))
	assert.Equal(t, 0.0, TrendSlope(nil))
}

func TestRecentTrendSlopeFallsBackToFullSeries(t *testing.T) {
	scores := []float64{0.2, 0.4, 0.6}
	assert.InDelta(t, TrendSlope(scores), RecentTrendSlope(scores, 5), 1e-12)

	long := []float64{0.9, 0.9, 0.1, 0.2, 0.3, 0.4, 0.5}
	assert.InDelta(t, 0.1, RecentTrendSlope(long, 5), 1e-9)
}

func TestRecentDecay(t *testing.T) {
	assert.Equal(t, 0.0, RecentDecay([]float64{0.5, 0.6}, 3))
	// mean(last 3) = 0.5, mean(all) = 0.66
	assert.InDelta(t, -0.16, RecentDecay([]float64{0.9, 0.9, 0.5, 0.5, 0.5}, 3), 1e-9)
}

func TestExtractFeatures(t *testing.T) {
	scores := []float64{0.6, 0.8, 0.9, 1.0, 0.7}
	v := ExtractFeatures(scores)
	require.Len(t, v, len(FeatureNames))

	m := v.Map()
	assert.Equal(t, 0.7, m["last_score"])
	assert.InDelta(t, 0.1, m["first_last_delta"], 1e-9)
	assert.InDelta(t, 0.4, m["mastery_consistency"], 1e-9)
	assert.InDelta(t, 0.4, m["downside_risk"], 1e-9)
	assert.Greater(t, m["score_std"], 0.0)
	assert.InDelta(t, m["score_std"]/0.8, m["coefficient_of_variation"], 1e-6)
}

func TestExtractFeaturesSinglePoint(t *testing.T) {
	v := ExtractFeatures([]float64{0.5}).Map()
	assert.Equal(t, 0.5, v["weighted_mean_score"])
	assert.Equal(t, 0.0, v["trend_slope"])
	assert.Equal(t, 0.0, v["recent_trend_slope"])
	assert.Equal(t, 0.0, v["score_std"])
	assert.Equal(t, 0.0, v["recent_decay"])
	assert.Equal(t, 1.0, v["downside_risk"])
}
