package config

import (
	"io"
	"log/slog"
	"testing"

	"github.com/SAP-F-2025/forecast-service/internal/events"
	"github.com/SAP-F-2025/forecast-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("FORECAST_STRATEGY", "")
	t.Setenv("PORT", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "time_series", cfg.Forecast.Strategy)
	assert.Equal(t, 0.5, cfg.Forecast.ARIMAWeight)
	assert.Equal(t, 5, cfg.Forecast.SequenceWindow)
	assert.Equal(t, 60.0, cfg.Forecast.DefaultPostTestMax)
	assert.Equal(t, ModelFitSkip, cfg.Forecast.ModelFitPolicy)
	assert.Equal(t, TxScopeStudent, cfg.Forecast.TxScope)
	assert.Equal(t, "analysis.requested", cfg.Events.AnalysisJobTopic)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("FORECAST_STRATEGY", "hybrid")
	t.Setenv("FORECAST_ARIMA_WEIGHT", "0.7")
	t.Setenv("FORECAST_SEQUENCE_EPOCHS", "10")
	t.Setenv("FORECAST_MODEL_FIT_POLICY", "abort")
	t.Setenv("FORECAST_TX_SCOPE", "document")
	t.Setenv("CACHE_TTL", "90s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	fc := cfg.Forecast.Forecasting()
	assert.Equal(t, models.MethodHybrid, fc.Strategy)
	assert.Equal(t, 0.7, fc.ARIMAWeight)
	assert.Equal(t, 10, fc.Sequence.Epochs)
	assert.True(t, cfg.Forecast.AbortOnModelFit())
	assert.True(t, cfg.Forecast.DocumentScopedTx())
	assert.Equal(t, "1m30s", cfg.CacheTTL.String())
}

func TestLoadConfigRejectsInvalidForecastSettings(t *testing.T) {
	t.Setenv("FORECAST_STRATEGY", "prophet")
	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("FORECAST_STRATEGY", "hybrid")
	t.Setenv("FORECAST_ARIMA_WEIGHT", "1.5")
	_, err = LoadConfig()
	assert.Error(t, err)
}

func TestGetKafkaBrokers(t *testing.T) {
	c := EventConfig{KafkaBrokers: "a:9092, b:9092,,"}
	assert.Equal(t, []string{"a:9092", "b:9092"}, c.GetKafkaBrokers())
}

func TestCreateEventPublisherFallsBackToMock(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	for _, c := range []EventConfig{{Enabled: false}, {Enabled: true, Publisher: "mock"}, {Enabled: true, Publisher: "nats"}} {
		p, err := c.CreateEventPublisher(logger)
		require.NoError(t, err)
		assert.IsType(t, &events.MockEventPublisher{}, p)
	}
}

func TestCreateJobTransportInProcess(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := EventConfig{Enabled: true, Publisher: "mock"}

	tr, err := c.CreateJobTransport(logger)
	require.NoError(t, err)
	assert.True(t, tr.InProcess)
	assert.NoError(t, tr.Close())
}
