package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/SAP-F-2025/forecast-service/internal/models"
	"github.com/SAP-F-2025/forecast-service/internal/repositories"
)

type statisticsRepository struct {
	db  *DB
	log *undoLog
}

func (r *statisticsRepository) UpsertDocumentStatistic(_ context.Context, stat *models.DocumentStatistic) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	now := r.db.now()
	if existing, ok := r.db.t.docStats[stat.DocumentID]; ok {
		stat.ID = existing.ID
		stat.CreatedAt = existing.CreatedAt
	} else {
		stat.ID = r.db.t.nextID()
		stat.CreatedAt = now
	}
	stat.UpdatedAt = now
	track(r.log, r.db.t.docStats, stat.DocumentID)
	r.db.t.docStats[stat.DocumentID] = *stat
	return nil
}

func (r *statisticsRepository) UpsertAssessmentStatistic(_ context.Context, stat *models.AssessmentStatistic) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	key := pairKey{DocumentID: stat.DocumentID, Other: uint(stat.TestNumber)}
	now := r.db.now()
	if existing, ok := r.db.t.assessmentStats[key]; ok {
		stat.ID = existing.ID
		stat.CreatedAt = existing.CreatedAt
	} else {
		stat.ID = r.db.t.nextID()
		stat.CreatedAt = now
	}
	stat.UpdatedAt = now
	track(r.log, r.db.t.assessmentStats, key)
	r.db.t.assessmentStats[key] = *stat
	return nil
}

func (r *statisticsRepository) UpsertStudentStatistic(_ context.Context, stat *models.StudentStatistic) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	key := pairKey{DocumentID: stat.DocumentID, Other: stat.StudentID}
	now := r.db.now()
	if existing, ok := r.db.t.studentStats[key]; ok {
		stat.ID = existing.ID
		stat.CreatedAt = existing.CreatedAt
	} else {
		stat.ID = r.db.t.nextID()
		stat.CreatedAt = now
	}
	stat.UpdatedAt = now
	stored := *stat
	stored.Student = nil
	track(r.log, r.db.t.studentStats, key)
	r.db.t.studentStats[key] = stored
	return nil
}

func (r *statisticsRepository) GetDocumentStatistic(_ context.Context, documentID uint) (*models.DocumentStatistic, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	stat, ok := r.db.t.docStats[documentID]
	if !ok {
		return nil, fmt.Errorf("document statistic %d: %w", documentID, repositories.ErrNotFound)
	}
	return &stat, nil
}

func (r *statisticsRepository) ListAssessmentStatistics(_ context.Context, documentID uint) ([]models.AssessmentStatistic, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	var out []models.AssessmentStatistic
	for k, s := range r.db.t.assessmentStats {
		if k.DocumentID == documentID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TestNumber < out[j].TestNumber })
	return out, nil
}

func (r *statisticsRepository) ListStudentStatistics(_ context.Context, documentID uint) ([]models.StudentStatistic, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	var out []models.StudentStatistic
	for k, s := range r.db.t.studentStats {
		if k.DocumentID != documentID {
			continue
		}
		s.Student = r.db.t.studentRef(s.StudentID)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (r *statisticsRepository) DeleteByDocument(_ context.Context, documentID uint) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()
	deleteStatistics(r.log, r.db.t, documentID)
	return nil
}

type insightRepository struct {
	db  *DB
	log *undoLog
}

func (r *insightRepository) UpsertInsight(_ context.Context, insight *models.DocumentInsight) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	now := r.db.now()
	if existing, ok := r.db.t.insights[insight.DocumentID]; ok {
		insight.ID = existing.ID
		insight.CreatedAt = existing.CreatedAt
	} else {
		insight.ID = r.db.t.nextID()
		insight.CreatedAt = now
	}
	insight.UpdatedAt = now
	track(r.log, r.db.t.insights, insight.DocumentID)
	r.db.t.insights[insight.DocumentID] = *insight
	return nil
}

func (r *insightRepository) GetByDocument(_ context.Context, documentID uint) (*models.DocumentInsight, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	insight, ok := r.db.t.insights[documentID]
	if !ok {
		return nil, fmt.Errorf("insight for document %d: %w", documentID, repositories.ErrNotFound)
	}
	return &insight, nil
}

func (r *insightRepository) DeleteByDocument(_ context.Context, documentID uint) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()
	track(r.log, r.db.t.insights, documentID)
	delete(r.db.t.insights, documentID)
	return nil
}
