package analytics

import (
	"testing"

	"github.com/SAP-F-2025/forecast-service/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestPassingThreshold(t *testing.T) {
	assert.Equal(t, 75.0, PassingThreshold(100))
	assert.Equal(t, 45.0, PassingThreshold(60))
	assert.Equal(t, 37.5, PassingThreshold(50))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		predicted float64
		max       float64
		want      models.ForecastStatus
	}{
		{75, 100, models.StatusPass},
		{74.99, 100, models.StatusFail},
		{45, 60, models.StatusPass},
		{0, 60, models.StatusFail},
		{60, 60, models.StatusPass},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.predicted, tt.max), "predicted %.2f of %.0f", tt.predicted, tt.max)
	}
}
