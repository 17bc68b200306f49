package repositories

import (
	"context"

	"github.com/SAP-F-2025/forecast-service/internal/models"
)

type DocumentRepository interface {
	Create(ctx context.Context, doc *models.AnalysisDocument) error
	GetByID(ctx context.Context, id uint) (*models.AnalysisDocument, error)
	Update(ctx context.Context, doc *models.AnalysisDocument) error
	Delete(ctx context.Context, id uint) error // Soft delete
	List(ctx context.Context, filters DocumentFilters) ([]*models.AnalysisDocument, int64, error)

	SetProcessed(ctx context.Context, id uint, processed bool) error
}

type StudentRepository interface {
	Create(ctx context.Context, student *models.Student) error
	GetByID(ctx context.Context, id uint) (*models.Student, error)
	GetByCode(ctx context.Context, code string) (*models.Student, error)
	GetByCodes(ctx context.Context, codes []string) (map[string]*models.Student, error)
}

type TopicRepository interface {
	GetOrCreateTopic(ctx context.Context, name string, maxScore *float64) (*models.TestTopic, error)
	ListMappings(ctx context.Context, documentID uint) ([]models.TopicMapping, error) // Topic preloaded
	UpsertMapping(ctx context.Context, mapping *models.TopicMapping) error
}
