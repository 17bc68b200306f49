package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/SAP-F-2025/forecast-service/internal/models"
	"github.com/SAP-F-2025/forecast-service/internal/repositories"
	"gorm.io/gorm"
)

// Repository is the gorm-backed store.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Documents() repositories.DocumentRepository {
	return NewDocumentPostgreSQL(r.db)
}

func (r *Repository) Students() repositories.StudentRepository {
	return NewStudentPostgreSQL(r.db)
}

func (r *Repository) Topics() repositories.TopicRepository {
	return NewTopicPostgreSQL(r.db)
}

func (r *Repository) Records() repositories.RecordRepository {
	return NewRecordPostgreSQL(r.db)
}

func (r *Repository) Forecasts() repositories.ForecastRepository {
	return NewForecastPostgreSQL(r.db)
}

func (r *Repository) Statistics() repositories.StatisticsRepository {
	return NewStatisticsPostgreSQL(r.db)
}

func (r *Repository) Insights() repositories.InsightRepository {
	return NewInsightPostgreSQL(r.db)
}

func (r *Repository) PostTests() repositories.PostTestRepository {
	return NewPostTestPostgreSQL(r.db)
}

// WithTransaction runs fn inside a database transaction.
func (r *Repository) WithTransaction(ctx context.Context, fn func(tx repositories.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}

// DeleteDerived removes every row produced by an analysis run of the document.
func (r *Repository) DeleteDerived(ctx context.Context, documentID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{
			&models.Forecast{},
			&models.DocumentStatistic{},
			&models.AssessmentStatistic{},
			&models.StudentStatistic{},
			&models.DocumentInsight{},
		} {
			if err := tx.Where("document_id = ?", documentID).Delete(model).Error; err != nil {
				return fmt.Errorf("failed to delete derived rows: %w", err)
			}
		}
		return nil
	})
}

// AutoMigrate creates or updates the schema from the models.
func (r *Repository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(models.AllModels()...)
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, repositories.ErrNotFound)
	}
	return err
}

var _ repositories.Repository = (*Repository)(nil)
