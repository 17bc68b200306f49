package repositories

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("record not found")

// ===== SHARED FILTER STRUCTS =====

type DocumentFilters struct {
	Processed *bool      `json:"processed"`
	TeacherID *string    `json:"teacher_id"`
	DateFrom  *time.Time `json:"date_from"`
	DateTo    *time.Time `json:"date_to"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
	SortBy    string     `json:"sort_by"`    // "created_at", "title"
	SortOrder string     `json:"sort_order"` // "asc", "desc"
}

// Repository groups the sub-repositories of one store. Implementations guarantee at most
// one row per documented key on every upsert.
type Repository interface {
	Documents() DocumentRepository
	Students() StudentRepository
	Topics() TopicRepository
	Records() RecordRepository
	Forecasts() ForecastRepository
	Statistics() StatisticsRepository
	Insights() InsightRepository
	PostTests() PostTestRepository

	// WithTransaction runs fn against a transactional view; a returned error rolls back every write made through it.
	WithTransaction(ctx context.Context, fn func(tx Repository) error) error

	// DeleteDerived removes forecasts, statistics and insights of a document.
	DeleteDerived(ctx context.Context, documentID uint) error
}
