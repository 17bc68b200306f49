package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/SAP-F-2025/forecast-service/internal/analytics"
	"github.com/SAP-F-2025/forecast-service/internal/cache"
	apperrors "github.com/SAP-F-2025/forecast-service/internal/errors"
	"github.com/SAP-F-2025/forecast-service/internal/models"
	"github.com/SAP-F-2025/forecast-service/internal/repositories"
	"github.com/SAP-F-2025/forecast-service/internal/validator"
)

// EvaluationService compares forecasts with actual post-test scores.
type EvaluationService interface {
	RecordPostTests(ctx context.Context, documentID uint, req *RecordPostTestsRequest) (int, error)
	Evaluate(ctx context.Context, documentID uint) (*EvaluationResponse, error)
}

type PostTestScore struct {
	StudentCode string  `json:"student_code" validate:"required,student_code"`
	Score       float64 `json:"score" validate:"gte=0"`
	MaxScore    float64 `json:"max_score" validate:"gt=0"`
}

type RecordPostTestsRequest struct {
	Scores []PostTestScore `json:"scores" validate:"required,min=1,dive"`
}

// BusinessRules checks every score against its max score.
func (r *RecordPostTestsRequest) BusinessRules() ValidationErrors {
	var errs ValidationErrors
	b := validator.NewBusinessValidator()
	for i, s := range r.Scores {
		errs = append(errs, b.ValidateScore(fmt.Sprintf("scores[%d].score", i), s.Score, s.MaxScore)...)
	}
	return errs
}

type EvaluationItem struct {
	StudentID       uint                  `json:"student_id"`
	StudentCode     string                `json:"student_code"`
	PredictedScore  float64               `json:"predicted_score"` // on the post-test scale
	ActualScore     float64               `json:"actual_score"`
	MaxScore        float64               `json:"max_score"`
	PredictedStatus models.ForecastStatus `json:"predicted_status"`
	ActualStatus    models.ForecastStatus `json:"actual_status"`
	AbsoluteError   float64               `json:"absolute_error"`
}

type EvaluationResponse struct {
	DocumentID  uint             `json:"document_id"`
	Students    int              `json:"students"`
	MAE         float64          `json:"mae"`
	RMSE        float64          `json:"rmse"`
	Accuracy    float64          `json:"accuracy"` // 0 - 100
	Items       []EvaluationItem `json:"items"`
	EvaluatedAt time.Time        `json:"evaluated_at"`
}

type evaluationService struct {
	repo      repositories.Repository
	cache     cache.CacheService
	validator *validator.Validator
	logger    *slog.Logger
	ttl       time.Duration
}

func NewEvaluationService(repo repositories.Repository, cacheService cache.CacheService, v *validator.Validator, ttl time.Duration, logger *slog.Logger) EvaluationService {
	if v == nil {
		v = validator.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultResultsTTL
	}
	return &evaluationService{repo: repo, cache: cacheService, validator: v, logger: logger, ttl: ttl}
}

func (s *evaluationService) RecordPostTests(ctx context.Context, documentID uint, req *RecordPostTestsRequest) (int, error) {
	if err := s.validator.Check(req); err != nil {
		return 0, err
	}
	doc, err := s.repo.Documents().GetByID(ctx, documentID)
	if err != nil {
		return 0, documentNotFound(documentID, err)
	}
	if doc.PostTestMaxScore != nil {
		for _, sc := range req.Scores {
			if sc.MaxScore != *doc.PostTestMaxScore {
				return 0, NewBusinessRuleError(RulePostTestMaxScore,
					fmt.Sprintf("max score %g differs from the document's post-test max score %g", sc.MaxScore, *doc.PostTestMaxScore),
					map[string]interface{}{"student_code": sc.StudentCode, "max_score": sc.MaxScore, "document_max_score": *doc.PostTestMaxScore})
			}
		}
	}

	records, err := s.repo.Records().ListByDocument(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to load assessment records: %w", err)
	}
	enrolled := make(map[uint]struct{}, len(records))
	for _, r := range records {
		enrolled[r.StudentID] = struct{}{}
	}

	codes := make([]string, len(req.Scores))
	for i, sc := range req.Scores {
		codes[i] = sc.StudentCode
	}

	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		students, err := tx.Students().GetByCodes(ctx, codes)
		if err != nil {
			return fmt.Errorf("failed to resolve students: %w", err)
		}
		for _, sc := range req.Scores {
			st, ok := students[sc.StudentCode]
			if !ok {
				return apperrors.NewMissingStudentError(sc.StudentCode)
			}
			if _, ok := enrolled[st.ID]; !ok {
				return NewBusinessRuleError(RulePostTestStudentEnrolled,
					"student has no assessment records in this document",
					map[string]interface{}{"student_code": sc.StudentCode})
			}
			if err := tx.PostTests().UpsertPostTest(ctx, &models.ActualPostTest{
				DocumentID: documentID,
				StudentID:  st.ID,
				Score:      sc.Score,
				MaxScore:   sc.MaxScore,
			}); err != nil {
				return apperrors.NewPersistenceError("upsert post test", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, cache.EvaluationKey(documentID)); err != nil {
			s.logger.WarnContext(ctx, "Failed to invalidate evaluation", "document_id", documentID, "error", err)
		}
	}
	s.logger.InfoContext(ctx, "Post-test scores recorded", "document_id", documentID, "count", len(req.Scores))
	return len(req.Scores), nil
}

// Evaluate pairs each student's latest forecast with their actual post-test score.
// Predictions are rescaled to the post-test max score before errors are taken.
func (s *evaluationService) Evaluate(ctx context.Context, documentID uint) (*EvaluationResponse, error) {
	var cached EvaluationResponse
	if s.cache != nil {
		if err := s.cache.Get(ctx, cache.EvaluationKey(documentID), &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.WarnContext(ctx, "Cache read failed", "document_id", documentID, "error", err)
		}
	}

	doc, err := s.repo.Documents().GetByID(ctx, documentID)
	if err != nil {
		return nil, documentNotFound(documentID, err)
	}
	if !doc.Processed {
		return nil, fmt.Errorf("document %d: %w", documentID, ErrDocumentNotProcessed)
	}

	forecasts, err := s.repo.Forecasts().ListByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list forecasts: %w", err)
	}
	actuals, err := s.repo.PostTests().ListByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list post tests: %w", err)
	}
	if len(actuals) == 0 {
		return nil, fmt.Errorf("document %d: %w", documentID, ErrNoPostTests)
	}

	latest := make(map[uint]models.Forecast, len(forecasts))
	for _, f := range forecasts {
		if prev, ok := latest[f.StudentID]; !ok || f.TestNumber > prev.TestNumber {
			latest[f.StudentID] = f
		}
	}

	resp := Score(actuals, latest)
	resp.DocumentID = documentID
	resp.EvaluatedAt = time.Now()

	if s.cache != nil {
		if err := s.cache.Set(ctx, cache.EvaluationKey(documentID), resp, s.ttl); err != nil {
			s.logger.WarnContext(ctx, "Cache write failed", "document_id", documentID, "error", err)
		}
	}
	return resp, nil
}

// Score computes MAE, RMSE and pass/fail accuracy over students with both values.
func Score(actuals []models.ActualPostTest, forecasts map[uint]models.Forecast) *EvaluationResponse {
	resp := &EvaluationResponse{Items: []EvaluationItem{}}
	var absErrs, sqErrs []float64
	correct := 0

	for _, a := range actuals {
		f, ok := forecasts[a.StudentID]
		if !ok || f.MaxScore <= 0 || a.MaxScore <= 0 {
			continue
		}
		predicted := f.PredictedScore / f.MaxScore * a.MaxScore
		item := EvaluationItem{
			StudentID:       a.StudentID,
			PredictedScore:  predicted,
			ActualScore:     a.Score,
			MaxScore:        a.MaxScore,
			PredictedStatus: f.PredictedStatus,
			ActualStatus:    analytics.Classify(a.Score, a.MaxScore),
			AbsoluteError:   math.Abs(predicted - a.Score),
		}
		if a.Student != nil {
			item.StudentCode = a.Student.Code
		}
		if item.PredictedStatus == item.ActualStatus {
			correct++
		}
		absErrs = append(absErrs, item.AbsoluteError)
		sqErrs = append(sqErrs, item.AbsoluteError*item.AbsoluteError)
		resp.Items = append(resp.Items, item)
	}

	resp.Students = len(resp.Items)
	if resp.Students == 0 {
		return resp
	}
	resp.MAE = stat.Mean(absErrs, nil)
	resp.RMSE = math.Sqrt(stat.Mean(sqErrs, nil))
	resp.Accuracy = float64(correct) / float64(resp.Students) * 100
	return resp
}
