package analytics

import "github.com/SAP-F-2025/forecast-service/internal/models"

// PassingThreshold returns the raw score needed to pass an assessment of the given max.
func PassingThreshold(maxScore float64) float64 {
	return PassingRatio * maxScore
}

// IsPassing reports whether score meets the passing threshold for maxScore.
func IsPassing(score, maxScore float64) bool {
	return score >= PassingThreshold(maxScore)
}

// Classify labels a predicted score against the max score used to produce it.
func Classify(predicted, maxScore float64) models.ForecastStatus {
	if IsPassing(predicted, maxScore) {
		return models.StatusPass
	}
	return models.StatusFail
}
