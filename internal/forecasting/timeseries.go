package forecasting

import (
	"context"

	"github.com/SAP-F-2025/forecast-service/internal/analytics"
	"github.com/SAP-F-2025/forecast-service/internal/models"
)

// TimeSeriesStrategy fits an ARIMA order per student on the differenced normalized series.
type TimeSeriesStrategy struct {
	AROrders     []int
	MAOrders     []int
	Differencing int
}

func NewTimeSeriesStrategy() *TimeSeriesStrategy {
	return &TimeSeriesStrategy{
		AROrders:     DefaultAROrders,
		MAOrders:     DefaultMAOrders,
		Differencing: DefaultDifferencing,
	}
}

func (s *TimeSeriesStrategy) Name() string { return string(models.MethodTimeSeries) }

// CandidateOrders lists the orders searched for each student.
func (s *TimeSeriesStrategy) CandidateOrders() []Order {
	var out []Order
	for _, p := range s.AROrders {
		for _, q := range s.MAOrders {
			out = append(out, Order{P: p, D: s.Differencing, Q: q})
		}
	}
	return out
}

// NextDifference forecasts the next first-difference of the normalized series.
func (s *TimeSeriesStrategy) NextDifference(series analytics.StudentSeries) (float64, *ARIMAModel, error) {
	model, _, err := SelectARIMA(series.Differenced(), s.AROrders, s.Differencing, s.MAOrders)
	if err != nil {
		return 0, nil, err
	}
	return model.ForecastNext(), model, nil
}

func (s *TimeSeriesStrategy) Forecast(ctx context.Context, series analytics.StudentSeries) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	next, model, err := s.NextDifference(series)
	if err != nil {
		return Prediction{}, err
	}
	p := newPrediction(series, series.LastNormalized()+next, series.LastMaxScore(), models.MethodTimeSeries)
	order := model.Order
	p.Order = &order
	return p, nil
}
