package analytics

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	DefaultDecayLambda  = 0.9
	DefaultRecentWindow = 5
	DefaultDecayWindow  = 3
	cvEpsilon           = 1e-8
)

// FeatureNames is the fixed order of FeatureVector entries.
var FeatureNames = []string{
	"weighted_mean_score",
	"last_score",
	"trend_slope",
	"recent_trend_slope",
	"first_last_delta",
	"score_std",
	"coefficient_of_variation",
	"mastery_consistency",
	"recent_decay",
	"downside_risk",
}

type FeatureVector []float64

// Map returns the vector keyed by feature name.
func (v FeatureVector) Map() map[string]float64 {
	out := make(map[string]float64, len(v))
	for i, name := range FeatureNames {
		if i < len(v) {
			out[name] = v[i]
		}
	}
	return out
}

// ExtractFeatures computes the feature vector for a normalized score series.
func ExtractFeatures(scores []float64) FeatureVector {
	if len(scores) == 0 {
		return make(FeatureVector, len(FeatureNames))
	}
	std := PopStdDev(scores)
	mean := stat.Mean(scores, nil)
	return FeatureVector{
		WeightedMeanScore(scores, DefaultDecayLambda),
		scores[len(scores)-1],
		TrendSlope(scores),
		RecentTrendSlope(scores, DefaultRecentWindow),
		scores[len(scores)-1] - scores[0],
		std,
		std / (mean + cvEpsilon),
		FractionAtLeast(scores, MasteryThreshold),
		RecentDecay(scores, DefaultDecayWindow),
		FractionBelow(scores, PassingRatio),
	}
}

// WeightedMeanScore weights point t by lambda^(T-t-1).
func WeightedMeanScore(scores []float64, lambda float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	n := len(scores)
	weights := make([]float64, n)
	for t := range scores {
		weights[t] = math.Pow(lambda, float64(n-t-1))
	}
	return stat.Mean(scores, weights)
}

// TrendSlope is the OLS slope of score against index.
func TrendSlope(scores []float64) float64 {
	if len(scores) < 2 {
		return 0
	}
	x := make([]float64, len(scores))
	for i := range x {
		x[i] = float64(i)
	}
	_, beta := stat.LinearRegression(x, scores, nil, false)
	if math.IsNaN(beta) {
		return 0
	}
	return beta
}

// RecentTrendSlope is TrendSlope over the last k points.
func RecentTrendSlope(scores []float64, k int) float64 {
	if k <= 0 || len(scores) <= k {
		return TrendSlope(scores)
	}
	return TrendSlope(scores[len(scores)-k:])
}

// RecentDecay is mean(last k) - mean(all), or 0 for short series.
func RecentDecay(scores []float64, k int) float64 {
	if k <= 0 || len(scores) < k {
		return 0
	}
	return stat.Mean(scores[len(scores)-k:], nil) - stat.Mean(scores, nil)
}

func FractionAtLeast(scores []float64, threshold float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var n int
	for _, s := range scores {
		if s >= threshold {
			n++
		}
	}
	return float64(n) / float64(len(scores))
}

func FractionBelow(scores []float64, threshold float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var n int
	for _, s := range scores {
		if s < threshold {
			n++
		}
	}
	return float64(n) / float64(len(scores))
}
