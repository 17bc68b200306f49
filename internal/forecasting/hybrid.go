package forecasting

import (
	"context"
	"math"

	"github.com/SAP-F-2025/forecast-service/internal/analytics"
	"github.com/SAP-F-2025/forecast-service/internal/models"
)

const DefaultARIMAWeight = 0.5

type HybridOptions struct {
	ARIMAWeight float64
	// SelectByHoldout compares ARIMA alone with the blend on each student's last point.
	SelectByHoldout bool
}

// HybridStrategy blends a per-student ARIMA forecast with a sequence model trained across the cohort.
type HybridStrategy struct {
	arima *TimeSeriesStrategy
	model *SequenceModel
	opts  HybridOptions
}

func NewHybridStrategy(arima *TimeSeriesStrategy, model *SequenceModel, opts HybridOptions) *HybridStrategy {
	if opts.ARIMAWeight < 0 || opts.ARIMAWeight > 1 || math.IsNaN(opts.ARIMAWeight) {
		opts.ARIMAWeight = DefaultARIMAWeight
	}
	return &HybridStrategy{arima: arima, model: model, opts: opts}
}

func (h *HybridStrategy) Name() string { return string(models.MethodHybrid) }

func (h *HybridStrategy) Forecast(ctx context.Context, series analytics.StudentSeries) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}

	arimaNext, fitted, err := h.arima.NextDifference(series)
	if err != nil {
		return Prediction{}, err
	}
	seqNext := h.model.Predict(series.Differenced())

	next := h.blend(arimaNext, seqNext)
	method := models.MethodHybrid
	if h.opts.SelectByHoldout && h.arimaWinsHoldout(series) {
		next = arimaNext
		method = models.MethodTimeSeries
	}

	p := newPrediction(series, series.LastNormalized()+next, series.LastMaxScore(), method)
	order := fitted.Order
	p.Order = &order
	return p, nil
}

func (h *HybridStrategy) blend(arimaNext, seqNext float64) float64 {
	w := h.opts.ARIMAWeight
	return w*arimaNext + (1-w)*seqNext
}

// arimaWinsHoldout refits on all but the last point and compares absolute errors on the raw scale.
// The blend is kept when the holdout cannot be evaluated.
func (h *HybridStrategy) arimaWinsHoldout(series analytics.StudentSeries) bool {
	n := series.Len()
	if n < 3 {
		return false
	}
	history := series.Head(n - 1)
	actual := series.Scores[n-1]
	maxScore := series.MaxScores[n-1]

	arimaNext, _, err := h.arima.NextDifference(history)
	if err != nil {
		return false
	}
	seqNext := h.model.Predict(history.Differenced())

	base := history.LastNormalized()
	arimaPred := clip((base+arimaNext)*maxScore, 0, maxScore)
	hybridPred := clip((base+h.blend(arimaNext, seqNext))*maxScore, 0, maxScore)

	return math.Abs(arimaPred-actual) < math.Abs(hybridPred-actual)
}

// CandidateOrders lists the ARIMA orders searched for each student.
func (h *HybridStrategy) CandidateOrders() []Order { return h.arima.CandidateOrders() }
