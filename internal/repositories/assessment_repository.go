package repositories

import (
	"context"

	"github.com/SAP-F-2025/forecast-service/internal/models"
)

// RecordRepository stores assessment records keyed by (document_id, student_id, test_number).
type RecordRepository interface {
	ListByDocument(ctx context.Context, documentID uint) ([]models.AssessmentRecord, error) // Student preloaded
	UpsertRecords(ctx context.Context, records []models.AssessmentRecord) error
	DeleteByDocument(ctx context.Context, documentID uint) error
}

// ForecastRepository stores forecasts keyed by (document_id, student_id, test_number).
type ForecastRepository interface {
	UpsertForecast(ctx context.Context, key models.ForecastKey, forecast *models.Forecast) error
	ListByDocument(ctx context.Context, documentID uint) ([]models.Forecast, error)
	DeleteByDocument(ctx context.Context, documentID uint) error
}

type StatisticsRepository interface {
	UpsertDocumentStatistic(ctx context.Context, stat *models.DocumentStatistic) error
	UpsertAssessmentStatistic(ctx context.Context, stat *models.AssessmentStatistic) error
	UpsertStudentStatistic(ctx context.Context, stat *models.StudentStatistic) error

	GetDocumentStatistic(ctx context.Context, documentID uint) (*models.DocumentStatistic, error)
	ListAssessmentStatistics(ctx context.Context, documentID uint) ([]models.AssessmentStatistic, error)
	ListStudentStatistics(ctx context.Context, documentID uint) ([]models.StudentStatistic, error)

	DeleteByDocument(ctx context.Context, documentID uint) error
}

type InsightRepository interface {
	UpsertInsight(ctx context.Context, insight *models.DocumentInsight) error
	GetByDocument(ctx context.Context, documentID uint) (*models.DocumentInsight, error)
	DeleteByDocument(ctx context.Context, documentID uint) error
}

// PostTestRepository stores actual post-test scores keyed by (document_id, student_id).
type PostTestRepository interface {
	UpsertPostTest(ctx context.Context, postTest *models.ActualPostTest) error
	ListByDocument(ctx context.Context, documentID uint) ([]models.ActualPostTest, error)
}
