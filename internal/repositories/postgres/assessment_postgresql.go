package postgres

import (
	"context"
	"fmt"

	"github.com/SAP-F-2025/forecast-service/internal/models"
	"github.com/SAP-F-2025/forecast-service/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const upsertBatchSize = 500

type RecordPostgreSQL struct {
	db *gorm.DB
}

func NewRecordPostgreSQL(db *gorm.DB) repositories.RecordRepository {
	return &RecordPostgreSQL{db: db}
}

func (r *RecordPostgreSQL) ListByDocument(ctx context.Context, documentID uint) ([]models.AssessmentRecord, error) {
	var records []models.AssessmentRecord
	err := r.db.WithContext(ctx).
		Preload("Student").
		Where("document_id = ?", documentID).
		Order("student_id ASC, test_number ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list assessment records: %w", err)
	}
	return records, nil
}

func (r *RecordPostgreSQL) UpsertRecords(ctx context.Context, records []models.AssessmentRecord) error {
	if len(records) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "document_id"}, {Name: "student_id"}, {Name: "test_number"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"score", "max_score", "date", "normalized_score",
			"passing_threshold", "imputed", "topic_mapping_id", "updated_at",
		}),
	}).Omit("Student", "TopicMapping").CreateInBatches(&records, upsertBatchSize).Error
	if err != nil {
		return fmt.Errorf("failed to upsert assessment records: %w", err)
	}
	return nil
}

func (r *RecordPostgreSQL) DeleteByDocument(ctx context.Context, documentID uint) error {
	if err := r.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&models.AssessmentRecord{}).Error; err != nil {
		return fmt.Errorf("failed to delete assessment records: %w", err)
	}
	return nil
}

type ForecastPostgreSQL struct {
	db *gorm.DB
}

func NewForecastPostgreSQL(db *gorm.DB) repositories.ForecastRepository {
	return &ForecastPostgreSQL{db: db}
}

// UpsertForecast writes the forecast under key, replacing any earlier row.
func (f *ForecastPostgreSQL) UpsertForecast(ctx context.Context, key models.ForecastKey, forecast *models.Forecast) error {
	forecast.DocumentID = key.DocumentID
	forecast.StudentID = key.StudentID
	forecast.TestNumber = key.TestNumber

	err := f.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "document_id"}, {Name: "student_id"}, {Name: "test_number"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"date", "predicted_score", "max_score", "passing_threshold",
			"predicted_status", "method", "features", "updated_at",
		}),
	}).Omit("Student").Create(forecast).Error
	if err != nil {
		return fmt.Errorf("failed to upsert forecast: %w", err)
	}
	return nil
}

func (f *ForecastPostgreSQL) ListByDocument(ctx context.Context, documentID uint) ([]models.Forecast, error) {
	var forecasts []models.Forecast
	err := f.db.WithContext(ctx).
		Preload("Student").
		Where("document_id = ?", documentID).
		Order("student_id ASC").
		Find(&forecasts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list forecasts: %w", err)
	}
	return forecasts, nil
}

func (f *ForecastPostgreSQL) DeleteByDocument(ctx context.Context, documentID uint) error {
	if err := f.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&models.Forecast{}).Error; err != nil {
		return fmt.Errorf("failed to delete forecasts: %w", err)
	}
	return nil
}

type PostTestPostgreSQL struct {
	db *gorm.DB
}

func NewPostTestPostgreSQL(db *gorm.DB) repositories.PostTestRepository {
	return &PostTestPostgreSQL{db: db}
}

func (p *PostTestPostgreSQL) UpsertPostTest(ctx context.Context, postTest *models.ActualPostTest) error {
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_id"}, {Name: "student_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"score", "max_score", "updated_at"}),
	}).Omit("Student").Create(postTest).Error
	if err != nil {
		return fmt.Errorf("failed to upsert post-test: %w", err)
	}
	return nil
}

func (p *PostTestPostgreSQL) ListByDocument(ctx context.Context, documentID uint) ([]models.ActualPostTest, error) {
	var postTests []models.ActualPostTest
	err := p.db.WithContext(ctx).
		Preload("Student").
		Where("document_id = ?", documentID).
		Order("student_id ASC").
		Find(&postTests).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list post-tests: %w", err)
	}
	return postTests, nil
}
