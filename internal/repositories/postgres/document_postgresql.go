package postgres

import (
	"context"
	"fmt"

	"github.com/SAP-F-2025/forecast-service/internal/models"
	"github.com/SAP-F-2025/forecast-service/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DocumentPostgreSQL struct {
	db *gorm.DB
}

func NewDocumentPostgreSQL(db *gorm.DB) repositories.DocumentRepository {
	return &DocumentPostgreSQL{db: db}
}

func (d *DocumentPostgreSQL) Create(ctx context.Context, doc *models.AnalysisDocument) error {
	if err := d.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

func (d *DocumentPostgreSQL) GetByID(ctx context.Context, id uint) (*models.AnalysisDocument, error) {
	var doc models.AnalysisDocument
	err := d.db.WithContext(ctx).
		Preload("TopicMappings").
		Preload("TopicMappings.Topic").
		First(&doc, id).Error
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("document %d", id))
	}
	return &doc, nil
}

func (d *DocumentPostgreSQL) Update(ctx context.Context, doc *models.AnalysisDocument) error {
	result := d.db.WithContext(ctx).Model(doc).Select("*").Omit("CreatedAt", "TopicMappings", "Records").Updates(doc)
	if result.Error != nil {
		return fmt.Errorf("failed to update document: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("document %d: %w", doc.ID, repositories.ErrNotFound)
	}
	return nil
}

// Delete soft deletes the document.
func (d *DocumentPostgreSQL) Delete(ctx context.Context, id uint) error {
	result := d.db.WithContext(ctx).Delete(&models.AnalysisDocument{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete document: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("document %d: %w", id, repositories.ErrNotFound)
	}
	return nil
}

func (d *DocumentPostgreSQL) List(ctx context.Context, filters repositories.DocumentFilters) ([]*models.AnalysisDocument, int64, error) {
	query := d.db.WithContext(ctx).Model(&models.AnalysisDocument{})

	if filters.Processed != nil {
		query = query.Where("processed = ?", *filters.Processed)
	}
	if filters.TeacherID != nil {
		query = query.Where("teacher_id = ?", *filters.TeacherID)
	}
	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", *filters.DateTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count documents: %w", err)
	}

	sortBy := "created_at"
	if filters.SortBy == "title" {
		sortBy = "title"
	}
	sortOrder := "DESC"
	if filters.SortOrder == "asc" {
		sortOrder = "ASC"
	}
	query = query.Order(sortBy + " " + sortOrder)

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	var docs []*models.AnalysisDocument
	if err := query.Find(&docs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, total, nil
}

func (d *DocumentPostgreSQL) SetProcessed(ctx context.Context, id uint, processed bool) error {
	result := d.db.WithContext(ctx).
		Model(&models.AnalysisDocument{}).
		Where("id = ?", id).
		Update("processed", processed)
	if result.Error != nil {
		return fmt.Errorf("failed to update processed flag: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("document %d: %w", id, repositories.ErrNotFound)
	}
	return nil
}

type StudentPostgreSQL struct {
	db *gorm.DB
}

func NewStudentPostgreSQL(db *gorm.DB) repositories.StudentRepository {
	return &StudentPostgreSQL{db: db}
}

func (s *StudentPostgreSQL) Create(ctx context.Context, student *models.Student) error {
	if err := s.db.WithContext(ctx).Create(student).Error; err != nil {
		return fmt.Errorf("failed to create student: %w", err)
	}
	return nil
}

func (s *StudentPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Student, error) {
	var student models.Student
	if err := s.db.WithContext(ctx).First(&student, id).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("student %d", id))
	}
	return &student, nil
}

func (s *StudentPostgreSQL) GetByCode(ctx context.Context, code string) (*models.Student, error) {
	var student models.Student
	if err := s.db.WithContext(ctx).Where("code = ?", code).First(&student).Error; err != nil {
		return nil, notFound(err, "student "+code)
	}
	return &student, nil
}

func (s *StudentPostgreSQL) GetByCodes(ctx context.Context, codes []string) (map[string]*models.Student, error) {
	out := make(map[string]*models.Student, len(codes))
	if len(codes) == 0 {
		return out, nil
	}
	var students []*models.Student
	if err := s.db.WithContext(ctx).Where("code IN ?", codes).Find(&students).Error; err != nil {
		return nil, fmt.Errorf("failed to load students: %w", err)
	}
	for _, st := range students {
		out[st.Code] = st
	}
	return out, nil
}

type TopicPostgreSQL struct {
	db *gorm.DB
}

func NewTopicPostgreSQL(db *gorm.DB) repositories.TopicRepository {
	return &TopicPostgreSQL{db: db}
}

func (t *TopicPostgreSQL) GetOrCreateTopic(ctx context.Context, name string, maxScore *float64) (*models.TestTopic, error) {
	topic := models.TestTopic{Name: name, MaxScore: maxScore}
	err := t.db.WithContext(ctx).
		Where(models.TestTopic{Name: name}).
		Attrs(models.TestTopic{MaxScore: maxScore}).
		FirstOrCreate(&topic).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get or create topic %q: %w", name, err)
	}
	return &topic, nil
}

func (t *TopicPostgreSQL) ListMappings(ctx context.Context, documentID uint) ([]models.TopicMapping, error) {
	var mappings []models.TopicMapping
	err := t.db.WithContext(ctx).
		Preload("Topic").
		Where("document_id = ?", documentID).
		Order("test_number ASC").
		Find(&mappings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list topic mappings: %w", err)
	}
	return mappings, nil
}

func (t *TopicPostgreSQL) UpsertMapping(ctx context.Context, mapping *models.TopicMapping) error {
	err := t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_id"}, {Name: "test_number"}},
		DoUpdates: clause.AssignmentColumns([]string{"topic_id", "max_score", "updated_at"}),
	}).Omit("Topic").Create(mapping).Error
	if err != nil {
		return fmt.Errorf("failed to upsert topic mapping: %w", err)
	}
	return nil
}
