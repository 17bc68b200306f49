package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/forecast-service/internal/cache"
	"github.com/SAP-F-2025/forecast-service/internal/insights"
	"github.com/SAP-F-2025/forecast-service/internal/models"
	"github.com/SAP-F-2025/forecast-service/internal/repositories"
)

const DefaultResultsTTL = 10 * time.Minute

// ResultsService reads analysis output, through the cache when one is configured.
type ResultsService interface {
	GetDocument(ctx context.Context, documentID uint) (*models.AnalysisDocument, error)
	ListDocuments(ctx context.Context, filters repositories.DocumentFilters) (*DocumentListResponse, error)
	GetForecasts(ctx context.Context, documentID uint) (*ForecastsResponse, error)
	GetStatistics(ctx context.Context, documentID uint) (*StatisticsResponse, error)
}

type DocumentListResponse struct {
	Documents []*models.AnalysisDocument `json:"documents"`
	Total     int64                      `json:"total"`
}

type StudentForecastResponse struct {
	StudentID        uint                  `json:"student_id"`
	StudentCode      string                `json:"student_code"`
	Name             string                `json:"name"`
	TestNumber       int                   `json:"test_number"`
	Date             time.Time             `json:"date"`
	PredictedScore   float64               `json:"predicted_score"`
	MaxScore         float64               `json:"max_score"`
	PassingThreshold float64               `json:"passing_threshold"`
	PredictedStatus  models.ForecastStatus `json:"predicted_status"`
	Method           models.ForecastMethod `json:"method"`
	Features         map[string]float64    `json:"features,omitempty"`
}

type ForecastsResponse struct {
	DocumentID uint                      `json:"document_id"`
	Processed  bool                      `json:"processed"`
	Forecasts  []StudentForecastResponse `json:"forecasts"`
	Passing    int                       `json:"passing"`
	Failing    int                       `json:"failing"`
}

type StatisticsResponse struct {
	DocumentID  uint                         `json:"document_id"`
	Document    *models.DocumentStatistic    `json:"document"`
	Assessments []models.AssessmentStatistic `json:"assessments"`
	Students    []models.StudentStatistic    `json:"students"`
	Insights    []models.Insight             `json:"insights,omitempty"`
	Narrative   *insights.Narrative          `json:"narrative,omitempty"`
}

type resultsService struct {
	repo   repositories.Repository
	cache  cache.CacheService
	ttl    time.Duration
	logger *slog.Logger
}

func NewResultsService(repo repositories.Repository, cacheService cache.CacheService, ttl time.Duration, logger *slog.Logger) ResultsService {
	if ttl <= 0 {
		ttl = DefaultResultsTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &resultsService{repo: repo, cache: cacheService, ttl: ttl, logger: logger}
}

func (s *resultsService) GetDocument(ctx context.Context, documentID uint) (*models.AnalysisDocument, error) {
	doc, err := s.repo.Documents().GetByID(ctx, documentID)
	if err != nil {
		return nil, documentNotFound(documentID, err)
	}
	return doc, nil
}

func (s *resultsService) ListDocuments(ctx context.Context, filters repositories.DocumentFilters) (*DocumentListResponse, error) {
	docs, total, err := s.repo.Documents().List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return &DocumentListResponse{Documents: docs, Total: total}, nil
}

func (s *resultsService) GetForecasts(ctx context.Context, documentID uint) (*ForecastsResponse, error) {
	var cached ForecastsResponse
	if s.fromCache(ctx, cache.ForecastsKey(documentID), &cached) {
		return &cached, nil
	}

	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.Forecasts().ListByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list forecasts: %w", err)
	}

	resp := &ForecastsResponse{DocumentID: documentID, Processed: doc.Processed, Forecasts: make([]StudentForecastResponse, 0, len(rows))}
	for _, f := range rows {
		item := StudentForecastResponse{
			StudentID:        f.StudentID,
			TestNumber:       f.TestNumber,
			Date:             f.Date,
			PredictedScore:   f.PredictedScore,
			MaxScore:         f.MaxScore,
			PassingThreshold: f.PassingThreshold,
			PredictedStatus:  f.PredictedStatus,
			Method:           f.Method,
		}
		if f.Student != nil {
			item.StudentCode = f.Student.Code
			item.Name = f.Student.FullName()
		}
		if len(f.Features) > 0 {
			if err := json.Unmarshal(f.Features, &item.Features); err != nil {
				s.logger.WarnContext(ctx, "Ignoring unreadable forecast features", "forecast_id", f.ID, "error", err)
			}
		}
		if f.PredictedStatus == models.StatusPass {
			resp.Passing++
		} else {
			resp.Failing++
		}
		resp.Forecasts = append(resp.Forecasts, item)
	}

	if doc.Processed {
		s.toCache(ctx, cache.ForecastsKey(documentID), resp)
	}
	return resp, nil
}

func (s *resultsService) GetStatistics(ctx context.Context, documentID uint) (*StatisticsResponse, error) {
	var cached StatisticsResponse
	if s.fromCache(ctx, cache.StatisticsKey(documentID), &cached) {
		return &cached, nil
	}

	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !doc.Processed {
		return nil, fmt.Errorf("document %d: %w", documentID, ErrDocumentNotProcessed)
	}

	stats := s.repo.Statistics()
	docStat, err := stats.GetDocumentStatistic(ctx, documentID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("document %d: %w", documentID, ErrDocumentNotProcessed)
		}
		return nil, fmt.Errorf("failed to get document statistic: %w", err)
	}
	assessments, err := stats.ListAssessmentStatistics(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assessment statistics: %w", err)
	}
	students, err := stats.ListStudentStatistics(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list student statistics: %w", err)
	}

	resp := &StatisticsResponse{
		DocumentID:  documentID,
		Document:    docStat,
		Assessments: assessments,
		Students:    students,
	}

	row, err := s.repo.Insights().GetByDocument(ctx, documentID)
	switch {
	case err == nil:
		if len(row.Insights) > 0 {
			if err := json.Unmarshal(row.Insights, &resp.Insights); err != nil {
				s.logger.WarnContext(ctx, "Ignoring unreadable insights", "document_id", documentID, "error", err)
			}
		}
		if len(row.Narrative) > 0 {
			var n insights.Narrative
			if err := json.Unmarshal(row.Narrative, &n); err == nil {
				resp.Narrative = &n
			}
		}
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, fmt.Errorf("failed to get insights: %w", err)
	}

	s.toCache(ctx, cache.StatisticsKey(documentID), resp)
	return resp, nil
}

func (s *resultsService) fromCache(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	err := s.cache.Get(ctx, key, dest)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.WarnContext(ctx, "Cache read failed", "key", key, "error", err)
	}
	return false
}

func (s *resultsService) toCache(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.ttl); err != nil {
		s.logger.WarnContext(ctx, "Cache write failed", "key", key, "error", err)
	}
}
