package insights

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/SAP-F-2025/forecast-service/internal/analytics"
	"github.com/SAP-F-2025/forecast-service/internal/models"
)

const (
	CategoryPerformance  = "performance"
	CategoryDistribution = "distribution"
	CategorySpread       = "spread"
	CategoryTrend        = "trend"
	CategoryAssessment   = "assessment"
	CategoryAtRisk       = "at_risk"

	// Passing rates below this call for reteaching.
	reteachPassingRate = 70.0
	// Listed at-risk students are capped to keep the message readable.
	maxListedStudents = 10
)

// StudentForecast is the forecast view the rules need.
type StudentForecast struct {
	StudentCode    string
	Name           string
	PredictedScore float64
	MaxScore       float64
	Status         models.ForecastStatus
}

// Input gathers everything the rules look at for one document.
type Input struct {
	Aggregates analytics.Aggregates
	Forecasts  []StudentForecast
}

// Generate derives rule-based insights. It never fails; empty input gives no insights.
func Generate(in Input) []models.Insight {
	var out []models.Insight
	agg := in.Aggregates
	if agg.Document.TotalScores == 0 {
		return out
	}

	out = append(out, performanceInsight(agg))

	stats := agg.Document.Stats
	if ins, ok := distributionInsight(stats); ok {
		out = append(out, ins)
	}
	out = append(out, spreadInsight(stats))

	if ins, ok := trendInsight(agg.Assessments); ok {
		out = append(out, ins)
	}
	if ins, ok := hardestAssessmentInsight(agg.Assessments); ok {
		out = append(out, ins)
	}
	if ins, ok := atRiskInsight(in.Forecasts); ok {
		out = append(out, ins)
	}
	return out
}

// MeanPassingRate averages the per-assessment passing rates.
func MeanPassingRate(assessments []analytics.AssessmentAggregate) float64 {
	if len(assessments) == 0 {
		return 0
	}
	var sum float64
	for _, a := range assessments {
		sum += a.PassingRate
	}
	return sum / float64(len(assessments))
}

// Skewness is the (mean - median) / std shape indicator; 0 when std is 0.
func Skewness(s models.DescriptiveStats) float64 {
	if s.StandardDeviation <= 0 {
		return 0
	}
	return (s.Mean - s.Median) / s.StandardDeviation
}

// CoefficientOfVariation is std / mean; +Inf when mean is not positive.
func CoefficientOfVariation(s models.DescriptiveStats) float64 {
	if s.Mean <= 0 {
		return math.Inf(1)
	}
	return s.StandardDeviation / s.Mean
}

func performanceInsight(agg analytics.Aggregates) models.Insight {
	rate := MeanPassingRate(agg.Assessments)
	n := len(agg.Assessments)
	switch {
	case rate >= 85:
		return models.Insight{Category: CategoryPerformance, Severity: models.SeverityInfo,
			Message: fmt.Sprintf("Excellent class performance across %d assessments: %.0f%% of scores are passing.", n, rate)}
	case rate >= 75:
		return models.Insight{Category: CategoryPerformance, Severity: models.SeverityInfo,
			Message: fmt.Sprintf("Good class performance across %d assessments: %.0f%% of scores are passing.", n, rate)}
	case rate >= 60:
		return models.Insight{Category: CategoryPerformance, Severity: models.SeverityWarning,
			Message: fmt.Sprintf("Satisfactory performance across %d assessments: %.0f%% of scores are passing, some students need support.", n, rate)}
	}
	return models.Insight{Category: CategoryPerformance, Severity: models.SeverityCritical,
		Message: fmt.Sprintf("Only %.0f%% of scores are passing across %d assessments. Review teaching approaches and adjust the pace of instruction.", rate, n)}
}

func distributionInsight(s models.DescriptiveStats) (models.Insight, bool) {
	skew := Skewness(s)
	switch {
	case skew > 0.5:
		return models.Insight{Category: CategoryDistribution, Severity: models.SeverityWarning,
			Message: "Most students are scoring in the lower range with a few high performers. Focus on core concepts."}, true
	case skew < -0.5:
		return models.Insight{Category: CategoryDistribution, Severity: models.SeverityInfo,
			Message: "Most students are scoring in the higher range with a few struggling students. Support them individually."}, true
	case math.Abs(skew) < 0.2:
		return models.Insight{Category: CategoryDistribution, Severity: models.SeverityInfo,
			Message: "Scores are spread evenly around the class average."}, true
	}
	return models.Insight{}, false
}

func spreadInsight(s models.DescriptiveStats) models.Insight {
	cv := CoefficientOfVariation(s)
	switch {
	case cv < 0.15:
		return models.Insight{Category: CategorySpread, Severity: models.SeverityInfo,
			Message: "Student scores are very similar: almost everyone scores at the same level."}
	case cv < 0.25:
		return models.Insight{Category: CategorySpread, Severity: models.SeverityInfo,
			Message: "Student scores are fairly similar. Small group instruction can address specific needs."}
	case cv < 0.35:
		return models.Insight{Category: CategorySpread, Severity: models.SeverityWarning,
			Message: "Student scores are somewhat varied. Use differentiated instruction."}
	}
	return models.Insight{Category: CategorySpread, Severity: models.SeverityWarning,
		Message: "Student scores are widely varied. Plan targeted interventions by achievement level."}
}

// trendInsight uses the mean percentage change of assessment means, normalized by max score.
func trendInsight(assessments []analytics.AssessmentAggregate) (models.Insight, bool) {
	if len(assessments) < 2 {
		return models.Insight{}, false
	}
	var changes []float64
	for i := 1; i < len(assessments); i++ {
		prev := normalizedMean(assessments[i-1])
		if prev <= 0 {
			continue
		}
		changes = append(changes, (normalizedMean(assessments[i])-prev)/prev*100)
	}
	if len(changes) == 0 {
		return models.Insight{}, false
	}
	var sum float64
	for _, c := range changes {
		sum += c
	}
	trend := sum / float64(len(changes))

	switch {
	case math.Abs(trend) < 1:
		return models.Insight{Category: CategoryTrend, Severity: models.SeverityInfo,
			Message: "The class is maintaining consistent performance across assessments."}, true
	case trend > 5:
		return models.Insight{Category: CategoryTrend, Severity: models.SeverityInfo,
			Message: fmt.Sprintf("The class is showing strong improvement (%.1f%% per assessment).", trend)}, true
	case trend > 0:
		return models.Insight{Category: CategoryTrend, Severity: models.SeverityInfo,
			Message: fmt.Sprintf("The class is improving gradually (%.1f%% per assessment).", trend)}, true
	case trend < -5:
		return models.Insight{Category: CategoryTrend, Severity: models.SeverityCritical,
			Message: fmt.Sprintf("Scores are declining significantly (%.1f%% per assessment).", trend)}, true
	}
	return models.Insight{Category: CategoryTrend, Severity: models.SeverityWarning,
		Message: fmt.Sprintf("Scores are declining slightly (%.1f%% per assessment).", trend)}, true
}

func hardestAssessmentInsight(assessments []analytics.AssessmentAggregate) (models.Insight, bool) {
	if len(assessments) == 0 {
		return models.Insight{}, false
	}
	hardest := assessments[0]
	for _, a := range assessments[1:] {
		if normalizedMean(a) < normalizedMean(hardest) {
			hardest = a
		}
	}
	severity := models.SeverityInfo
	msg := fmt.Sprintf("FA %d was the most challenging with an average of %.1f%% and a %.0f%% passing rate.",
		hardest.TestNumber, normalizedMean(hardest)*100, hardest.PassingRate)
	if hardest.PassingRate < reteachPassingRate {
		severity = models.SeverityWarning
		msg += " Reteach its key concepts before moving on."
	}
	return models.Insight{Category: CategoryAssessment, Severity: severity, Message: msg}, true
}

func atRiskInsight(forecasts []StudentForecast) (models.Insight, bool) {
	var failing []StudentForecast
	for _, f := range forecasts {
		if f.Status == models.StatusFail {
			failing = append(failing, f)
		}
	}
	if len(failing) == 0 {
		if len(forecasts) == 0 {
			return models.Insight{}, false
		}
		return models.Insight{Category: CategoryAtRisk, Severity: models.SeverityInfo,
			Message: "Every student is forecast to pass the post-test."}, true
	}

	sort.Slice(failing, func(i, j int) bool {
		return ratio(failing[i]) < ratio(failing[j])
	})
	names := make([]string, 0, maxListedStudents)
	for i, f := range failing {
		if i == maxListedStudents {
			break
		}
		label := f.StudentCode
		if f.Name != "" && f.Name != f.StudentCode {
			label = fmt.Sprintf("%s (%s)", f.Name, f.StudentCode)
		}
		names = append(names, label)
	}
	msg := fmt.Sprintf("%d of %d students are forecast to fail the post-test: %s",
		len(failing), len(forecasts), strings.Join(names, "; "))
	if len(failing) > maxListedStudents {
		msg += fmt.Sprintf(" and %d more", len(failing)-maxListedStudents)
	}
	return models.Insight{Category: CategoryAtRisk, Severity: models.SeverityCritical, Message: msg + "."}, true
}

func normalizedMean(a analytics.AssessmentAggregate) float64 {
	if a.MaxScore <= 0 {
		return 0
	}
	return a.Stats.Mean / a.MaxScore
}

func ratio(f StudentForecast) float64 {
	if f.MaxScore <= 0 {
		return 0
	}
	return f.PredictedScore / f.MaxScore
}
