package memory

import (
	"context"
	"sync"
	"time"

	"github.com/SAP-F-2025/forecast-service/internal/models"
	"github.com/SAP-F-2025/forecast-service/internal/repositories"
)

type (
	pairKey struct {
		DocumentID uint
		Other      uint
	}

	recordKey = models.ForecastKey

	tables struct {
		seq uint

		documents       map[uint]models.AnalysisDocument
		students        map[uint]models.Student
		topics          map[uint]models.TestTopic
		mappings        map[pairKey]models.TopicMapping // (document, test number)
		records         map[recordKey]models.AssessmentRecord
		forecasts       map[models.ForecastKey]models.Forecast
		postTests       map[pairKey]models.ActualPostTest // (document, student)
		docStats        map[uint]models.DocumentStatistic
		assessmentStats map[pairKey]models.AssessmentStatistic // (document, test number)
		studentStats    map[pairKey]models.StudentStatistic    // (document, student)
		insights        map[uint]models.DocumentInsight
	}

	// DB is an in-process store with the same keying as the relational schema.
	DB struct {
		t     *tables
		mutex sync.RWMutex
		// serializes transactions; writes outside a transaction are not blocked
		txMutex sync.Mutex
		now     func() time.Time
	}
)

func newTables() *tables {
	return &tables{
		documents:       make(map[uint]models.AnalysisDocument),
		students:        make(map[uint]models.Student),
		topics:          make(map[uint]models.TestTopic),
		mappings:        make(map[pairKey]models.TopicMapping),
		records:         make(map[recordKey]models.AssessmentRecord),
		forecasts:       make(map[models.ForecastKey]models.Forecast),
		postTests:       make(map[pairKey]models.ActualPostTest),
		docStats:        make(map[uint]models.DocumentStatistic),
		assessmentStats: make(map[pairKey]models.AssessmentStatistic),
		studentStats:    make(map[pairKey]models.StudentStatistic),
		insights:        make(map[uint]models.DocumentInsight),
	}
}

// undoLog holds the prior state of every row a transaction wrote. Rolling back
// restores those rows only, so writes made outside the transaction survive.
type undoLog struct {
	steps []func()
}

// track must run with the DB mutex held, before m[k] is written or deleted.
func track[K comparable, V any](l *undoLog, m map[K]V, k K) {
	if l == nil {
		return
	}
	prev, existed := m[k]
	l.steps = append(l.steps, func() {
		if existed {
			m[k] = prev
		} else {
			delete(m, k)
		}
	})
}

func (l *undoLog) rollback() {
	for i := len(l.steps) - 1; i >= 0; i-- {
		l.steps[i]()
	}
	l.steps = nil
}

func (t *tables) nextID() uint {
	t.seq++
	return t.seq
}

func Open() *DB {
	return &DB{t: newTables(), now: time.Now}
}

// Repository exposes a DB through the repositories contract.
type Repository struct {
	db  *DB
	log *undoLog // non-nil inside a transaction
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Documents() repositories.DocumentRepository {
	return &documentRepository{db: r.db, log: r.log}
}

func (r *Repository) Students() repositories.StudentRepository {
	return &studentRepository{db: r.db, log: r.log}
}

func (r *Repository) Topics() repositories.TopicRepository {
	return &topicRepository{db: r.db, log: r.log}
}

func (r *Repository) Records() repositories.RecordRepository {
	return &recordRepository{db: r.db, log: r.log}
}

func (r *Repository) Forecasts() repositories.ForecastRepository {
	return &forecastRepository{db: r.db, log: r.log}
}

func (r *Repository) Statistics() repositories.StatisticsRepository {
	return &statisticsRepository{db: r.db, log: r.log}
}

func (r *Repository) Insights() repositories.InsightRepository {
	return &insightRepository{db: r.db, log: r.log}
}

func (r *Repository) PostTests() repositories.PostTestRepository {
	return &postTestRepository{db: r.db, log: r.log}
}

// WithTransaction records the prior value of every row fn writes and restores those
// rows when fn fails. Nested calls join the outer transaction.
func (r *Repository) WithTransaction(ctx context.Context, fn func(tx repositories.Repository) error) error {
	if r.log != nil {
		return fn(r)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.db.txMutex.Lock()
	defer r.db.txMutex.Unlock()

	log := &undoLog{}
	if err := fn(&Repository{db: r.db, log: log}); err != nil {
		r.db.mutex.Lock()
		log.rollback()
		r.db.mutex.Unlock()
		return err
	}
	return nil
}

func (r *Repository) DeleteDerived(_ context.Context, documentID uint) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	t := r.db.t
	deleteForecasts(r.log, t, documentID)
	deleteStatistics(r.log, t, documentID)
	track(r.log, t.insights, documentID)
	delete(t.insights, documentID)
	return nil
}

func deleteForecasts(log *undoLog, t *tables, documentID uint) {
	for k := range t.forecasts {
		if k.DocumentID == documentID {
			track(log, t.forecasts, k)
			delete(t.forecasts, k)
		}
	}
}

func deleteStatistics(log *undoLog, t *tables, documentID uint) {
	track(log, t.docStats, documentID)
	delete(t.docStats, documentID)
	for k := range t.assessmentStats {
		if k.DocumentID == documentID {
			track(log, t.assessmentStats, k)
			delete(t.assessmentStats, k)
		}
	}
	for k := range t.studentStats {
		if k.DocumentID == documentID {
			track(log, t.studentStats, k)
			delete(t.studentStats, k)
		}
	}
}

func (t *tables) studentRef(id uint) *models.Student {
	if st, ok := t.students[id]; ok {
		return &st
	}
	return nil
}

func (t *tables) topicRef(id uint) *models.TestTopic {
	if tp, ok := t.topics[id]; ok {
		return &tp
	}
	return nil
}

var _ repositories.Repository = (*Repository)(nil)
