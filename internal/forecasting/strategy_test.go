package forecasting

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/SAP-F-2025/forecast-service/internal/analytics"
	apperrors "github.com/SAP-F-2025/forecast-service/internal/errors"
	"github.com/SAP-F-2025/forecast-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func makeSeries(code string, scores []float64, maxScore float64) analytics.StudentSeries {
	s := analytics.StudentSeries{StudentID: 1, StudentCode: code}
	for i, v := range scores {
		s.TestNumbers = append(s.TestNumbers, i+1)
		s.Scores = append(s.Scores, v)
		s.MaxScores = append(s.MaxScores, maxScore)
		s.Normalized = append(s.Normalized, v/maxScore)
		s.Dates = append(s.Dates, analytics.AssessmentDate(testStart, i+1))
	}
	return s
}

func makeDataset(series ...analytics.StudentSeries) *analytics.Dataset {
	ds := &analytics.Dataset{DocumentID: 4}
	for _, s := range series {
		for i := range s.Scores {
			ds.Rows = append(ds.Rows, analytics.Row{
				StudentID:       s.StudentID,
				StudentCode:     s.StudentCode,
				TestNumber:      s.TestNumbers[i],
				Score:           s.Scores[i],
				MaxScore:        s.MaxScores[i],
				Date:            s.Dates[i],
				NormalizedScore: s.Normalized[i],
			})
		}
	}
	return ds
}

func TestTimeSeriesStrategyForecast(t *testing.T) {
	series := makeSeries("S-1", []float64{30, 35, 40, 45, 50}, 100)

	p, err := NewTimeSeriesStrategy().Forecast(context.Background(), series)
	require.NoError(t, err)

	assert.Equal(t, 6, p.TestNumber)
	assert.Equal(t, analytics.AssessmentDate(testStart, 6), p.Date)
	assert.InDelta(t, 55.0, p.PredictedScore, 1e-6)
	assert.Equal(t, 100.0, p.MaxScore)
	assert.Equal(t, models.MethodTimeSeries, p.Method)
	require.NotNil(t, p.Order)
	assert.Equal(t, 1, p.Order.D)
	assert.Equal(t, models.StatusFail, analytics.Classify(p.PredictedScore, p.MaxScore))
}

func TestTimeSeriesStrategyClipsToMax(t *testing.T) {
	series := makeSeries("S-1", []float64{60, 70, 80, 90, 100}, 100)

	p, err := NewTimeSeriesStrategy().Forecast(context.Background(), series)
	require.NoError(t, err)
	assert.Equal(t, 100.0, p.PredictedScore)
	assert.Equal(t, 1.0, p.Normalized)
}

func TestTimeSeriesStrategyUsesLastMaxScore(t *testing.T) {
	series := makeSeries("S-1", []float64{10, 12, 14, 16, 18}, 20)
	series.MaxScores[4] = 40
	series.Normalized[4] = 18.0 / 40

	p, err := NewTimeSeriesStrategy().Forecast(context.Background(), series)
	require.NoError(t, err)
	assert.Equal(t, 40.0, p.MaxScore)
	assert.LessOrEqual(t, p.PredictedScore, 40.0)
	assert.GreaterOrEqual(t, p.PredictedScore, 0.0)
}

func TestTimeSeriesStrategyTooShort(t *testing.T) {
	series := makeSeries("S-1", []float64{30, 35}, 100)

	_, err := NewTimeSeriesStrategy().Forecast(context.Background(), series)
	assert.ErrorIs(t, err, apperrors.ErrNoConvergence)
}

func TestCandidateOrders(t *testing.T) {
	orders := NewTimeSeriesStrategy().CandidateOrders()
	assert.Equal(t, []Order{{0, 1, 0}, {0, 1, 1}, {1, 1, 0}, {1, 1, 1}}, orders)
}

func TestBuild(t *testing.T) {
	ctx := context.Background()
	ds := makeDataset(
		makeSeries("A", []float64{30, 35, 40, 45, 50}, 100),
		makeSeries("B", []float64{70, 65, 72, 68, 74}, 100),
	)
	doc := &models.AnalysisDocument{ID: 4}

	t.Run("time series", func(t *testing.T) {
		s, err := Build(ctx, DefaultConfig(), ds, doc, nil)
		require.NoError(t, err)
		assert.Equal(t, "time_series", s.Name())
	})

	t.Run("hybrid", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Strategy = models.MethodHybrid
		cfg.Sequence.Epochs = 5
		s, err := Build(ctx, cfg, ds, doc, nil)
		require.NoError(t, err)
		assert.IsType(t, &HybridStrategy{}, s)
	})

	t.Run("regressor missing artifact", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Strategy = models.MethodFeatureRegressor
		cfg.RegressorModelPath = filepath.Join(t.TempDir(), "missing.json")
		_, err := Build(ctx, cfg, ds, doc, nil)
		require.Error(t, err)
		assert.True(t, apperrors.IsModelFitError(err))
		assert.ErrorIs(t, err, apperrors.ErrModelArtifactMissing)
	})

	t.Run("regressor uses document post-test max", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "model.json")
		require.NoError(t, os.WriteFile(path, []byte(testModelJSON), 0o600))

		maxScore := 50.0
		cfg := DefaultConfig()
		cfg.Strategy = models.MethodFeatureRegressor
		cfg.RegressorModelPath = path
		s, err := Build(ctx, cfg, ds, &models.AnalysisDocument{ID: 4, PostTestMaxScore: &maxScore}, nil)
		require.NoError(t, err)

		p, err := s.Forecast(ctx, makeSeries("A", []float64{30, 35, 40, 45, 80}, 100))
		require.NoError(t, err)
		assert.Equal(t, 50.0, p.MaxScore)
		assert.InDelta(t, 0.55*50, p.PredictedScore, 1e-9)
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Strategy = "prophet"
		_, err := Build(ctx, cfg, ds, doc, nil)
		assert.Error(t, err)
	})
}
