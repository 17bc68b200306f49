package postgres

import (
	"context"
	"fmt"

	"github.com/SAP-F-2025/forecast-service/internal/models"
	"github.com/SAP-F-2025/forecast-service/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var descriptiveColumns = []string{
	"mean", "median", "mode", "standard_deviation", "minimum", "maximum",
}

func withColumns(extra ...string) []string {
	cols := append([]string{}, descriptiveColumns...)
	cols = append(cols, extra...)
	return append(cols, "updated_at")
}

type StatisticsPostgreSQL struct {
	db *gorm.DB
}

func NewStatisticsPostgreSQL(db *gorm.DB) repositories.StatisticsRepository {
	return &StatisticsPostgreSQL{db: db}
}

func (s *StatisticsPostgreSQL) UpsertDocumentStatistic(ctx context.Context, stat *models.DocumentStatistic) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_id"}},
		DoUpdates: clause.AssignmentColumns(withColumns("total_students", "total_scores", "mean_passing_threshold")),
	}).Create(stat).Error
	if err != nil {
		return fmt.Errorf("failed to upsert document statistic: %w", err)
	}
	return nil
}

func (s *StatisticsPostgreSQL) UpsertAssessmentStatistic(ctx context.Context, stat *models.AssessmentStatistic) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "document_id"}, {Name: "test_number"}},
		DoUpdates: clause.AssignmentColumns(withColumns(
			"topic_id", "max_score", "passing_threshold", "passing_rate", "failing_rate", "total_scores",
		)),
	}).Create(stat).Error
	if err != nil {
		return fmt.Errorf("failed to upsert assessment statistic: %w", err)
	}
	return nil
}

func (s *StatisticsPostgreSQL) UpsertStudentStatistic(ctx context.Context, stat *models.StudentStatistic) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_id"}, {Name: "student_id"}},
		DoUpdates: clause.AssignmentColumns(withColumns("passing_rate", "failing_rate", "total_scores")),
	}).Omit("Student").Create(stat).Error
	if err != nil {
		return fmt.Errorf("failed to upsert student statistic: %w", err)
	}
	return nil
}

func (s *StatisticsPostgreSQL) GetDocumentStatistic(ctx context.Context, documentID uint) (*models.DocumentStatistic, error) {
	var stat models.DocumentStatistic
	if err := s.db.WithContext(ctx).Where("document_id = ?", documentID).First(&stat).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("document statistic %d", documentID))
	}
	return &stat, nil
}

func (s *StatisticsPostgreSQL) ListAssessmentStatistics(ctx context.Context, documentID uint) ([]models.AssessmentStatistic, error) {
	var stats []models.AssessmentStatistic
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("test_number ASC").
		Find(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list assessment statistics: %w", err)
	}
	return stats, nil
}

func (s *StatisticsPostgreSQL) ListStudentStatistics(ctx context.Context, documentID uint) ([]models.StudentStatistic, error) {
	var stats []models.StudentStatistic
	err := s.db.WithContext(ctx).
		Preload("Student").
		Where("document_id = ?", documentID).
		Order("student_id ASC").
		Find(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list student statistics: %w", err)
	}
	return stats, nil
}

func (s *StatisticsPostgreSQL) DeleteByDocument(ctx context.Context, documentID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{
			&models.DocumentStatistic{},
			&models.AssessmentStatistic{},
			&models.StudentStatistic{},
		} {
			if err := tx.Where("document_id = ?", documentID).Delete(model).Error; err != nil {
				return fmt.Errorf("failed to delete statistics: %w", err)
			}
		}
		return nil
	})
}

type InsightPostgreSQL struct {
	db *gorm.DB
}

func NewInsightPostgreSQL(db *gorm.DB) repositories.InsightRepository {
	return &InsightPostgreSQL{db: db}
}

func (i *InsightPostgreSQL) UpsertInsight(ctx context.Context, insight *models.DocumentInsight) error {
	err := i.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"insights", "narrative", "updated_at"}),
	}).Create(insight).Error
	if err != nil {
		return fmt.Errorf("failed to upsert insight: %w", err)
	}
	return nil
}

func (i *InsightPostgreSQL) GetByDocument(ctx context.Context, documentID uint) (*models.DocumentInsight, error) {
	var insight models.DocumentInsight
	if err := i.db.WithContext(ctx).Where("document_id = ?", documentID).First(&insight).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("insight for document %d", documentID))
	}
	return &insight, nil
}

func (i *InsightPostgreSQL) DeleteByDocument(ctx context.Context, documentID uint) error {
	if err := i.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&models.DocumentInsight{}).Error; err != nil {
		return fmt.Errorf("failed to delete insights: %w", err)
	}
	return nil
}
