package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/SAP-F-2025/forecast-service/internal/errors"
	"github.com/SAP-F-2025/forecast-service/internal/models"
	"github.com/SAP-F-2025/forecast-service/internal/repositories"
	"gorm.io/gorm"
)

type documentRepository struct {
	db  *DB
	log *undoLog
}

func (r *documentRepository) Create(_ context.Context, doc *models.AnalysisDocument) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	now := r.db.now()
	doc.ID = r.db.t.nextID()
	doc.CreatedAt, doc.UpdatedAt = now, now
	stored := *doc
	stored.TopicMappings, stored.Records = nil, nil
	track(r.log, r.db.t.documents, doc.ID)
	r.db.t.documents[doc.ID] = stored
	return nil
}

func (r *documentRepository) GetByID(_ context.Context, id uint) (*models.AnalysisDocument, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	doc, ok := r.db.t.documents[id]
	if !ok || doc.DeletedAt.Valid {
		return nil, fmt.Errorf("document %d: %w", id, repositories.ErrNotFound)
	}
	doc.TopicMappings = r.db.t.documentMappings(id)
	return &doc, nil
}

func (r *documentRepository) Update(_ context.Context, doc *models.AnalysisDocument) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	existing, ok := r.db.t.documents[doc.ID]
	if !ok || existing.DeletedAt.Valid {
		return fmt.Errorf("document %d: %w", doc.ID, repositories.ErrNotFound)
	}
	doc.CreatedAt = existing.CreatedAt
	doc.UpdatedAt = r.db.now()
	stored := *doc
	stored.TopicMappings, stored.Records = nil, nil
	track(r.log, r.db.t.documents, doc.ID)
	r.db.t.documents[doc.ID] = stored
	return nil
}

func (r *documentRepository) Delete(_ context.Context, id uint) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	doc, ok := r.db.t.documents[id]
	if !ok || doc.DeletedAt.Valid {
		return fmt.Errorf("document %d: %w", id, repositories.ErrNotFound)
	}
	doc.DeletedAt = gorm.DeletedAt{Time: r.db.now(), Valid: true}
	track(r.log, r.db.t.documents, id)
	r.db.t.documents[id] = doc
	return nil
}

func (r *documentRepository) List(_ context.Context, filters repositories.DocumentFilters) ([]*models.AnalysisDocument, int64, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	var out []*models.AnalysisDocument
	for _, doc := range r.db.t.documents {
		if doc.DeletedAt.Valid {
			continue
		}
		if filters.Processed != nil && doc.Processed != *filters.Processed {
			continue
		}
		if filters.TeacherID != nil && (doc.TeacherID == nil || *doc.TeacherID != *filters.TeacherID) {
			continue
		}
		if filters.DateFrom != nil && doc.CreatedAt.Before(*filters.DateFrom) {
			continue
		}
		if filters.DateTo != nil && doc.CreatedAt.After(*filters.DateTo) {
			continue
		}
		d := doc
		out = append(out, &d)
	}

	asc := filters.SortOrder == "asc"
	sort.Slice(out, func(i, j int) bool {
		var less bool
		if filters.SortBy == "title" {
			less = strings.Compare(out[i].Title, out[j].Title) < 0
		} else if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			less = out[i].ID < out[j].ID
		} else {
			less = out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		if asc {
			return less
		}
		return !less
	})

	total := int64(len(out))
	if filters.Offset > 0 {
		if filters.Offset >= len(out) {
			out = nil
		} else {
			out = out[filters.Offset:]
		}
	}
	if filters.Limit > 0 && filters.Limit < len(out) {
		out = out[:filters.Limit]
	}
	return out, total, nil
}

func (r *documentRepository) SetProcessed(_ context.Context, id uint, processed bool) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	doc, ok := r.db.t.documents[id]
	if !ok || doc.DeletedAt.Valid {
		return fmt.Errorf("document %d: %w", id, repositories.ErrNotFound)
	}
	doc.Processed = processed
	doc.UpdatedAt = r.db.now()
	track(r.log, r.db.t.documents, id)
	r.db.t.documents[id] = doc
	return nil
}

type studentRepository struct {
	db  *DB
	log *undoLog
}

func (r *studentRepository) Create(_ context.Context, student *models.Student) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	for _, st := range r.db.t.students {
		if st.Code == student.Code {
			return fmt.Errorf("student %q: %w", student.Code, apperrors.ErrDuplicateRecord)
		}
	}
	now := r.db.now()
	student.ID = r.db.t.nextID()
	student.CreatedAt, student.UpdatedAt = now, now
	track(r.log, r.db.t.students, student.ID)
	r.db.t.students[student.ID] = *student
	return nil
}

func (r *studentRepository) GetByID(_ context.Context, id uint) (*models.Student, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	if st := r.db.t.studentRef(id); st != nil {
		return st, nil
	}
	return nil, fmt.Errorf("student %d: %w", id, repositories.ErrNotFound)
}

func (r *studentRepository) GetByCode(_ context.Context, code string) (*models.Student, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	for _, st := range r.db.t.students {
		if st.Code == code {
			s := st
			return &s, nil
		}
	}
	return nil, fmt.Errorf("student %s: %w", code, repositories.ErrNotFound)
}

func (r *studentRepository) GetByCodes(_ context.Context, codes []string) (map[string]*models.Student, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	wanted := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		wanted[c] = struct{}{}
	}
	out := make(map[string]*models.Student, len(codes))
	for _, st := range r.db.t.students {
		if _, ok := wanted[st.Code]; ok {
			s := st
			out[st.Code] = &s
		}
	}
	return out, nil
}

type topicRepository struct {
	db  *DB
	log *undoLog
}

func (r *topicRepository) GetOrCreateTopic(_ context.Context, name string, maxScore *float64) (*models.TestTopic, error) {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	for _, tp := range r.db.t.topics {
		if tp.Name == name {
			t := tp
			return &t, nil
		}
	}
	now := r.db.now()
	topic := models.TestTopic{
		ID:        r.db.t.nextID(),
		Name:      name,
		MaxScore:  maxScore,
		CreatedAt: now,
		UpdatedAt: now,
	}
	track(r.log, r.db.t.topics, topic.ID)
	r.db.t.topics[topic.ID] = topic
	return &topic, nil
}

func (r *topicRepository) ListMappings(_ context.Context, documentID uint) ([]models.TopicMapping, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	return r.db.t.documentMappings(documentID), nil
}

func (r *topicRepository) UpsertMapping(_ context.Context, mapping *models.TopicMapping) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	key := pairKey{DocumentID: mapping.DocumentID, Other: uint(mapping.TestNumber)}
	now := r.db.now()
	if existing, ok := r.db.t.mappings[key]; ok {
		mapping.ID = existing.ID
		mapping.CreatedAt = existing.CreatedAt
	} else {
		mapping.ID = r.db.t.nextID()
		mapping.CreatedAt = now
	}
	mapping.UpdatedAt = now
	stored := *mapping
	stored.Topic = nil
	track(r.log, r.db.t.mappings, key)
	r.db.t.mappings[key] = stored
	return nil
}

func (t *tables) documentMappings(documentID uint) []models.TopicMapping {
	var out []models.TopicMapping
	for k, m := range t.mappings {
		if k.DocumentID != documentID {
			continue
		}
		m.Topic = t.topicRef(m.TopicID)
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TestNumber < out[j].TestNumber })
	return out
}
