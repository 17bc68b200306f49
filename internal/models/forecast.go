package models

import (
	"time"

	"gorm.io/datatypes"
)

type ForecastStatus string

const (
	StatusPass ForecastStatus = "Pass"
	StatusFail ForecastStatus = "Fail"
)

// ForecastMethod names the strategy that produced a forecast.
type ForecastMethod string

const (
	MethodTimeSeries       ForecastMethod = "time_series"
	MethodHybrid           ForecastMethod = "hybrid"
	MethodFeatureRegressor ForecastMethod = "feature_regressor"
)

type Forecast struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	DocumentID uint      `json:"document_id" gorm:"not null;uniqueIndex:idx_forecast_key,priority:1"`
	StudentID  uint      `json:"student_id" gorm:"not null;uniqueIndex:idx_forecast_key,priority:2;index"`
	TestNumber int       `json:"test_number" gorm:"not null;uniqueIndex:idx_forecast_key,priority:3"`
	Date       time.Time `json:"date" gorm:"type:date"`

	PredictedScore   float64        `json:"predicted_score" gorm:"not null"`
	MaxScore         float64        `json:"max_score" gorm:"not null"`
	PassingThreshold float64        `json:"passing_threshold" gorm:"not null"`
	PredictedStatus  ForecastStatus `json:"predicted_status" gorm:"size:10;not null" validate:"oneof=Pass Fail"`
	Method           ForecastMethod `json:"method" gorm:"size:32"`
	Features         datatypes.JSON `json:"features,omitempty" gorm:"type:jsonb"` // map[string]float64

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Student *Student `json:"student,omitempty" gorm:"foreignKey:StudentID"`
}

// ForecastKey is the identity of a forecast row.
type ForecastKey struct {
	DocumentID uint
	StudentID  uint
	TestNumber int
}

func (f *Forecast) Key() ForecastKey {
	return ForecastKey{DocumentID: f.DocumentID, StudentID: f.StudentID, TestNumber: f.TestNumber}
}

// ActualPostTest records the observed summative score used to evaluate forecasts.
type ActualPostTest struct {
	ID         uint    `json:"id" gorm:"primaryKey"`
	DocumentID uint    `json:"document_id" gorm:"not null;uniqueIndex:idx_post_test_key,priority:1"`
	StudentID  uint    `json:"student_id" gorm:"not null;uniqueIndex:idx_post_test_key,priority:2"`
	Score      float64 `json:"score" gorm:"not null" validate:"gte=0"`
	MaxScore   float64 `json:"max_score" gorm:"not null" validate:"gt=0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Student *Student `json:"student,omitempty" gorm:"foreignKey:StudentID"`
}
