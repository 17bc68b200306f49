package memory

import (
	"context"
	"sort"

	"github.com/SAP-F-2025/forecast-service/internal/models"
)

type recordRepository struct {
	db  *DB
	log *undoLog
}

func (r *recordRepository) ListByDocument(_ context.Context, documentID uint) ([]models.AssessmentRecord, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	var out []models.AssessmentRecord
	for k, rec := range r.db.t.records {
		if k.DocumentID != documentID {
			continue
		}
		rec.Student = r.db.t.studentRef(rec.StudentID)
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StudentID != out[j].StudentID {
			return out[i].StudentID < out[j].StudentID
		}
		return out[i].TestNumber < out[j].TestNumber
	})
	return out, nil
}

func (r *recordRepository) UpsertRecords(_ context.Context, records []models.AssessmentRecord) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	now := r.db.now()
	for i := range records {
		rec := &records[i]
		key := recordKey{DocumentID: rec.DocumentID, StudentID: rec.StudentID, TestNumber: rec.TestNumber}
		if existing, ok := r.db.t.records[key]; ok {
			rec.ID = existing.ID
			rec.CreatedAt = existing.CreatedAt
		} else {
			rec.ID = r.db.t.nextID()
			rec.CreatedAt = now
		}
		rec.UpdatedAt = now
		stored := *rec
		stored.Student, stored.TopicMapping = nil, nil
		track(r.log, r.db.t.records, key)
		r.db.t.records[key] = stored
	}
	return nil
}

func (r *recordRepository) DeleteByDocument(_ context.Context, documentID uint) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	for k := range r.db.t.records {
		if k.DocumentID == documentID {
			track(r.log, r.db.t.records, k)
			delete(r.db.t.records, k)
		}
	}
	return nil
}

type forecastRepository struct {
	db  *DB
	log *undoLog
}

func (r *forecastRepository) UpsertForecast(_ context.Context, key models.ForecastKey, forecast *models.Forecast) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	forecast.DocumentID = key.DocumentID
	forecast.StudentID = key.StudentID
	forecast.TestNumber = key.TestNumber

	now := r.db.now()
	if existing, ok := r.db.t.forecasts[key]; ok {
		forecast.ID = existing.ID
		forecast.CreatedAt = existing.CreatedAt
	} else {
		forecast.ID = r.db.t.nextID()
		forecast.CreatedAt = now
	}
	forecast.UpdatedAt = now
	stored := *forecast
	stored.Student = nil
	track(r.log, r.db.t.forecasts, key)
	r.db.t.forecasts[key] = stored
	return nil
}

func (r *forecastRepository) ListByDocument(_ context.Context, documentID uint) ([]models.Forecast, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	var out []models.Forecast
	for k, f := range r.db.t.forecasts {
		if k.DocumentID != documentID {
			continue
		}
		f.Student = r.db.t.studentRef(f.StudentID)
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StudentID != out[j].StudentID {
			return out[i].StudentID < out[j].StudentID
		}
		return out[i].TestNumber < out[j].TestNumber
	})
	return out, nil
}

func (r *forecastRepository) DeleteByDocument(_ context.Context, documentID uint) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	deleteForecasts(r.log, r.db.t, documentID)
	return nil
}

type postTestRepository struct {
	db  *DB
	log *undoLog
}

func (r *postTestRepository) UpsertPostTest(_ context.Context, postTest *models.ActualPostTest) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	key := pairKey{DocumentID: postTest.DocumentID, Other: postTest.StudentID}
	now := r.db.now()
	if existing, ok := r.db.t.postTests[key]; ok {
		postTest.ID = existing.ID
		postTest.CreatedAt = existing.CreatedAt
	} else {
		postTest.ID = r.db.t.nextID()
		postTest.CreatedAt = now
	}
	postTest.UpdatedAt = now
	stored := *postTest
	stored.Student = nil
	track(r.log, r.db.t.postTests, key)
	r.db.t.postTests[key] = stored
	return nil
}

func (r *postTestRepository) ListByDocument(_ context.Context, documentID uint) ([]models.ActualPostTest, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	var out []models.ActualPostTest
	for k, p := range r.db.t.postTests {
		if k.DocumentID != documentID {
			continue
		}
		p.Student = r.db.t.studentRef(p.StudentID)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}
