package config

import (
	"github.com/SAP-F-2025/forecast-service/internal/analytics"
	"github.com/SAP-F-2025/forecast-service/internal/forecasting"
	"github.com/SAP-F-2025/forecast-service/internal/models"
	"github.com/SAP-F-2025/forecast-service/internal/validator"
)

// What happens to a run when one student's model cannot be fitted.
const (
	ModelFitSkip  = "skip"
	ModelFitAbort = "abort"
)

// Transaction boundary of the per-student writes.
const (
	TxScopeStudent  = "student"
	TxScopeDocument = "document"
)

type ForecastConfig struct {
	Strategy           string  `json:"strategy" validate:"required,forecast_strategy"`
	ARIMAWeight        float64 `json:"arima_weight" validate:"blend_weight"`
	SelectByHoldout    bool    `json:"select_by_holdout"`
	SequenceWindow     int     `json:"sequence_window" validate:"min=1,max=50"`
	SequenceEpochs     int     `json:"sequence_epochs" validate:"min=1,max=1000"`
	SequenceHidden     int     `json:"sequence_hidden" validate:"min=1,max=256"`
	SequenceLR         float64 `json:"sequence_learning_rate" validate:"gt=0,lt=1"`
	Seed               int64   `json:"seed"`
	RegressorModelPath string  `json:"regressor_model"`
	DefaultPostTestMax float64 `json:"default_post_test_max" validate:"gt=0"`
	ModelFitPolicy     string  `json:"model_fit_policy" validate:"oneof=skip abort"`
	TxScope            string  `json:"tx_scope" validate:"oneof=student document"`
	MinAssessments     int     `json:"min_assessments" validate:"min=1"`
	DeleteOnFailure    bool    `json:"delete_on_failure"`
}

func DefaultForecastConfig() ForecastConfig {
	seq := forecasting.DefaultSequenceConfig()
	return ForecastConfig{
		Strategy:           string(models.MethodTimeSeries),
		ARIMAWeight:        forecasting.DefaultARIMAWeight,
		SelectByHoldout:    true,
		SequenceWindow:     seq.Window,
		SequenceEpochs:     seq.Epochs,
		SequenceHidden:     seq.Hidden,
		SequenceLR:         seq.LearningRate,
		Seed:               seq.Seed,
		DefaultPostTestMax: forecasting.DefaultPostTestMax,
		ModelFitPolicy:     ModelFitSkip,
		TxScope:            TxScopeStudent,
		MinAssessments:     analytics.DefaultMinAssessments,
		DeleteOnFailure:    true,
	}
}

func loadForecastConfig() ForecastConfig {
	d := DefaultForecastConfig()
	return ForecastConfig{
		Strategy:           getEnv("FORECAST_STRATEGY", d.Strategy),
		ARIMAWeight:        getEnvFloat("FORECAST_ARIMA_WEIGHT", d.ARIMAWeight),
		SelectByHoldout:    getEnvBool("FORECAST_SELECT_BY_HOLDOUT", d.SelectByHoldout),
		SequenceWindow:     getEnvInt("FORECAST_SEQUENCE_WINDOW", d.SequenceWindow),
		SequenceEpochs:     getEnvInt("FORECAST_SEQUENCE_EPOCHS", d.SequenceEpochs),
		SequenceHidden:     getEnvInt("FORECAST_SEQUENCE_HIDDEN", d.SequenceHidden),
		SequenceLR:         getEnvFloat("FORECAST_SEQUENCE_LEARNING_RATE", d.SequenceLR),
		Seed:               int64(getEnvInt("FORECAST_SEED", int(d.Seed))),
		RegressorModelPath: getEnv("FORECAST_REGRESSOR_MODEL", ""),
		DefaultPostTestMax: getEnvFloat("FORECAST_DEFAULT_POST_TEST_MAX", d.DefaultPostTestMax),
		ModelFitPolicy:     getEnv("FORECAST_MODEL_FIT_POLICY", d.ModelFitPolicy),
		TxScope:            getEnv("FORECAST_TX_SCOPE", d.TxScope),
		MinAssessments:     getEnvInt("FORECAST_MIN_ASSESSMENTS", d.MinAssessments),
		DeleteOnFailure:    getEnvBool("FORECAST_DELETE_ON_FAILURE", d.DeleteOnFailure),
	}
}

func (c ForecastConfig) Validate() error {
	return validator.New().ValidateStruct(c)
}

// Forecasting converts the settings into the strategy factory config.
func (c ForecastConfig) Forecasting() forecasting.Config {
	seq := forecasting.DefaultSequenceConfig()
	seq.Window = c.SequenceWindow
	seq.Epochs = c.SequenceEpochs
	seq.Hidden = c.SequenceHidden
	seq.LearningRate = c.SequenceLR
	seq.Seed = c.Seed

	return forecasting.Config{
		Strategy:           models.ForecastMethod(c.Strategy),
		ARIMAWeight:        c.ARIMAWeight,
		SelectByHoldout:    c.SelectByHoldout,
		Sequence:           seq,
		RegressorModelPath: c.RegressorModelPath,
		DefaultPostTestMax: c.DefaultPostTestMax,
	}
}

// Preprocess converts the settings into preprocessing options.
func (c ForecastConfig) Preprocess() analytics.PreprocessOptions {
	opts := analytics.DefaultPreprocessOptions()
	opts.MinAssessments = c.MinAssessments
	return opts
}

func (c ForecastConfig) AbortOnModelFit() bool {
	return c.ModelFitPolicy == ModelFitAbort
}

func (c ForecastConfig) DocumentScopedTx() bool {
	return c.TxScope == TxScopeDocument
}
