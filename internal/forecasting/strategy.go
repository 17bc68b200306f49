package forecasting

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/SAP-F-2025/forecast-service/internal/analytics"
	apperrors "github.com/SAP-F-2025/forecast-service/internal/errors"
	"github.com/SAP-F-2025/forecast-service/internal/models"
)

// Strategy forecasts the next assessment score for one student.
type Strategy interface {
	Name() string
	Forecast(ctx context.Context, series analytics.StudentSeries) (Prediction, error)
}

// Prediction is a raw-scale forecast for the slot after a student's last assessment.
type Prediction struct {
	StudentID      uint
	StudentCode    string
	TestNumber     int
	Date           time.Time
	PredictedScore float64
	MaxScore       float64
	Normalized     float64
	Method         models.ForecastMethod
	Order          *Order
	Features       analytics.FeatureVector
}

type Config struct {
	Strategy models.ForecastMethod

	// Weight of the ARIMA forecast in the hybrid blend; the sequence model gets 1-ARIMAWeight.
	ARIMAWeight     float64
	SelectByHoldout bool
	Sequence        SequenceConfig

	RegressorModelPath string
	DefaultPostTestMax float64
}

func DefaultConfig() Config {
	return Config{
		Strategy:           models.MethodTimeSeries,
		ARIMAWeight:        DefaultARIMAWeight,
		SelectByHoldout:    true,
		Sequence:           DefaultSequenceConfig(),
		DefaultPostTestMax: DefaultPostTestMax,
	}
}

// Build constructs the configured strategy for one run over one document.
// Models trained here belong to the returned strategy only.
func Build(ctx context.Context, cfg Config, ds *analytics.Dataset, doc *models.AnalysisDocument, logger *slog.Logger) (Strategy, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Strategy {
	case models.MethodTimeSeries, "":
		return NewTimeSeriesStrategy(), nil

	case models.MethodHybrid:
		var diffs [][]float64
		for _, s := range ds.AllSeries() {
			diffs = append(diffs, s.Differenced())
		}
		started := time.Now()
		model, err := TrainSequenceModel(ctx, diffs, cfg.Sequence)
		if err != nil {
			return nil, apperrors.NewModelFitError(doc.ID, "", "sequence", err)
		}
		logger.InfoContext(ctx, "Trained sequence model",
			"document_id", doc.ID,
			"samples", model.Samples(),
			"final_loss", model.Loss(),
			"duration", time.Since(started))
		return NewHybridStrategy(NewTimeSeriesStrategy(), model, HybridOptions{
			ARIMAWeight:     cfg.ARIMAWeight,
			SelectByHoldout: cfg.SelectByHoldout,
		}), nil

	case models.MethodFeatureRegressor:
		reg, err := LoadRegressor(cfg.RegressorModelPath)
		if err != nil {
			return nil, apperrors.NewModelFitError(doc.ID, "", "feature_regressor", err)
		}
		maxScore := cfg.DefaultPostTestMax
		if doc.PostTestMaxScore != nil && *doc.PostTestMaxScore > 0 {
			maxScore = *doc.PostTestMaxScore
		}
		return NewFeatureRegressorStrategy(reg, maxScore), nil
	}

	return nil, fmt.Errorf("unknown forecast strategy %q", cfg.Strategy)
}

// newPrediction rescales a normalized forecast by the series' last max score.
func newPrediction(series analytics.StudentSeries, normalized, maxScore float64, method models.ForecastMethod) Prediction {
	raw := clip(normalized*maxScore, 0, maxScore)
	date := series.LastDate()
	if !date.IsZero() {
		date = date.Add(analytics.AssessmentInterval)
	}
	p := Prediction{
		StudentID:      series.StudentID,
		StudentCode:    series.StudentCode,
		TestNumber:     series.LastTestNumber() + 1,
		Date:           date,
		PredictedScore: raw,
		MaxScore:       maxScore,
		Method:         method,
	}
	if maxScore > 0 {
		p.Normalized = raw / maxScore
	}
	return p
}

func clip(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
