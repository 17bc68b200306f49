package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"gorm.io/datatypes"

	"github.com/SAP-F-2025/forecast-service/internal/analytics"
	"github.com/SAP-F-2025/forecast-service/internal/cache"
	"github.com/SAP-F-2025/forecast-service/internal/config"
	apperrors "github.com/SAP-F-2025/forecast-service/internal/errors"
	"github.com/SAP-F-2025/forecast-service/internal/events"
	"github.com/SAP-F-2025/forecast-service/internal/forecasting"
	"github.com/SAP-F-2025/forecast-service/internal/insights"
	"github.com/SAP-F-2025/forecast-service/internal/models"
	"github.com/SAP-F-2025/forecast-service/internal/repositories"
	"github.com/SAP-F-2025/forecast-service/internal/validator"
)

// AnalysisService runs the forecasting pipeline for documents.
type AnalysisService interface {
	CreateDocument(ctx context.Context, req *CreateDocumentRequest) (*models.AnalysisDocument, error)
	Ingest(ctx context.Context, documentID uint, table *analytics.WideTable) (*models.IngestSummary, error)

	// Submit enqueues a run and returns without waiting for it.
	Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error)
	// Run processes a document synchronously and returns its summary.
	Run(ctx context.Context, documentID uint, userID string) (*models.AnalysisSummary, error)

	events.JobProcessor
}

type CreateDocumentRequest struct {
	Title            string     `json:"title" validate:"required,min=1,max=200"`
	SectionID        *uint      `json:"section_id"`
	TeacherID        *string    `json:"teacher_id"`
	TestStartDate    *time.Time `json:"test_start_date"`
	PostTestMaxScore *float64   `json:"post_test_max_score" validate:"omitempty,gt=0"`
}

type SubmitRequest struct {
	DocumentID       uint   `json:"document_id" validate:"required"`
	RequestingUserID string `json:"requesting_user_id"`
}

type SubmitResponse struct {
	JobID      string    `json:"job_id"`
	DocumentID uint      `json:"document_id"`
	QueuedAt   time.Time `json:"queued_at"`
}

type AnalysisServiceConfig struct {
	Repo      repositories.Repository
	Jobs      events.JobQueue
	Publisher events.EventPublisher
	Cache     cache.CacheService
	// Narrator is optional; rule-based insights are stored without a narrative when nil.
	Narrator  insights.Narrator
	Forecast  config.ForecastConfig
	Validator *validator.Validator
	Logger    *slog.Logger
}

type analysisService struct {
	repo      repositories.Repository
	jobs      events.JobQueue
	publisher events.EventPublisher
	cache     cache.CacheService
	narrator  insights.Narrator
	cfg       config.ForecastConfig
	validator *validator.Validator
	logger    *slog.Logger
	slog      *ServiceLogger
	build     strategyBuilder

	running sync.Map // document id -> struct{}
}

type strategyBuilder func(ctx context.Context, cfg forecasting.Config, ds *analytics.Dataset,
	doc *models.AnalysisDocument, logger *slog.Logger) (forecasting.Strategy, error)

func NewAnalysisService(c AnalysisServiceConfig) AnalysisService {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	v := c.Validator
	if v == nil {
		v = validator.New()
	}
	return &analysisService{
		repo:      c.Repo,
		jobs:      c.Jobs,
		publisher: c.Publisher,
		cache:     c.Cache,
		narrator:  c.Narrator,
		cfg:       c.Forecast,
		validator: v,
		logger:    logger,
		slog:      NewServiceLogger(logger, LogConfig{Service: "forecast-service", Component: "analysis"}),
		build:     forecasting.Build,
	}
}

// ===== DOCUMENTS =====

func (s *analysisService) CreateDocument(ctx context.Context, req *CreateDocumentRequest) (*models.AnalysisDocument, error) {
	if err := s.validator.Check(req); err != nil {
		return nil, err
	}

	doc := &models.AnalysisDocument{
		Title:            req.Title,
		SectionID:        req.SectionID,
		TeacherID:        req.TeacherID,
		TestStartDate:    req.TestStartDate,
		PostTestMaxScore: req.PostTestMaxScore,
	}
	if err := s.repo.Documents().Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	s.logger.Info("Document created", "document_id", doc.ID, "title", doc.Title)
	return doc, nil
}

// ===== TRIGGER =====

func (s *analysisService) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	if err := s.validator.Check(req); err != nil {
		return nil, err
	}
	if _, err := s.repo.Documents().GetByID(ctx, req.DocumentID); err != nil {
		return nil, documentNotFound(req.DocumentID, err)
	}
	if _, busy := s.running.Load(req.DocumentID); busy {
		return nil, fmt.Errorf("document %d: %w", req.DocumentID, ErrAnalysisInProgress)
	}

	job := events.NewAnalysisJob(req.DocumentID, req.RequestingUserID)
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue analysis job: %w", err)
	}

	s.logger.Info("Analysis job queued", "job_id", job.JobID, "document_id", req.DocumentID)
	return &SubmitResponse{JobID: job.JobID, DocumentID: req.DocumentID, QueuedAt: job.RequestedAt}, nil
}

// ===== PIPELINE =====

// Process runs the pipeline and always emits one completion event, except when
// another run already owns the document.
func (s *analysisService) Process(ctx context.Context, documentID uint, userID string) error {
	_, err := s.Run(ctx, documentID, userID)
	return err
}

func (s *analysisService) Run(ctx context.Context, documentID uint, userID string) (summary *models.AnalysisSummary, err error) {
	if _, busy := s.running.LoadOrStore(documentID, struct{}{}); busy {
		return nil, fmt.Errorf("document %d: %w", documentID, ErrAnalysisInProgress)
	}
	defer s.running.Delete(documentID)

	op := s.slog.WithOperation(ctx, "analyze_document", userID)
	defer func() {
		if r := recover(); r != nil {
			s.slog.LogRecovery(ctx, "analyze_document", documentID, r, debug.Stack())
			err = fmt.Errorf("panic during analysis: %v", r)
			summary = nil
			s.fail(ctx, documentID, userID, err)
		}
		op.LogResult(documentID, err)
	}()

	summary, err = s.analyze(ctx, documentID)
	if err != nil {
		s.fail(ctx, documentID, userID, err)
		return nil, err
	}
	summary.ProcessingTime = op.Elapsed()

	s.notify(ctx, documentID, userID, true)
	return summary, nil
}

func (s *analysisService) NotifyFailure(ctx context.Context, documentID uint, userID string, cause error) {
	s.fail(ctx, documentID, userID, cause)
}

func (s *analysisService) analyze(ctx context.Context, documentID uint) (*models.AnalysisSummary, error) {
	doc, err := s.repo.Documents().GetByID(ctx, documentID)
	if err != nil {
		return nil, documentNotFound(documentID, err)
	}

	started := time.Now()
	records, err := s.repo.Records().ListByDocument(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assessment records: %w", err)
	}
	mappings, err := s.repo.Topics().ListMappings(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load topic mappings: %w", err)
	}

	ds, err := analytics.NewPreprocessor(s.cfg.Preprocess()).FromRecords(doc, records, mappings)
	if err != nil {
		return nil, err
	}
	if err := s.resolveReferences(ctx, ds, mappings); err != nil {
		return nil, err
	}
	s.slog.LogStep(ctx, doc.ID, "preprocess", started, "rows", len(ds.Rows))

	started = time.Now()
	strategy, err := s.build(ctx, s.cfg.Forecasting(), ds, doc, s.logger)
	if err != nil {
		return nil, err
	}
	s.slog.LogStep(ctx, doc.ID, "build_strategy", started, "strategy", strategy.Name())

	started = time.Now()
	var summary *models.AnalysisSummary
	var views []insights.StudentForecast
	if s.cfg.DocumentScopedTx() {
		err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
			var ferr error
			summary, views, ferr = s.forecastStudents(ctx, tx, doc, ds, strategy)
			return ferr
		})
	} else {
		summary, views, err = s.forecastStudents(ctx, s.repo, doc, ds, strategy)
	}
	if err != nil {
		return nil, err
	}
	s.slog.LogStep(ctx, doc.ID, "forecast", started, "forecasts", summary.Forecasts)

	agg := analytics.Aggregate(ds)
	if err := s.saveStatistics(ctx, agg); err != nil {
		return nil, err
	}

	s.saveInsights(ctx, insights.Input{Aggregates: agg, Forecasts: views})

	if err := s.repo.Documents().SetProcessed(ctx, doc.ID, true); err != nil {
		return nil, apperrors.NewPersistenceError("mark document processed", err)
	}
	s.invalidate(ctx, doc.ID)

	return summary, nil
}

// resolveReferences fails on students or topic mappings the store cannot resolve.
func (s *analysisService) resolveReferences(ctx context.Context, ds *analytics.Dataset, mappings []models.TopicMapping) error {
	codes := ds.StudentCodes()
	found, err := s.repo.Students().GetByCodes(ctx, codes)
	if err != nil {
		return fmt.Errorf("failed to resolve students: %w", err)
	}
	for _, code := range codes {
		if _, ok := found[code]; !ok {
			return apperrors.NewMissingStudentError(code)
		}
	}

	if len(mappings) == 0 {
		return nil
	}
	mapped := make(map[int]struct{}, len(mappings))
	for _, m := range mappings {
		mapped[m.TestNumber] = struct{}{}
	}
	for _, n := range ds.TestNumbers() {
		if _, ok := mapped[n]; !ok {
			return apperrors.NewMissingTopicMappingError(ds.DocumentID, n)
		}
	}
	return nil
}

type orderLister interface {
	CandidateOrders() []forecasting.Order
}

func (s *analysisService) forecastStudents(ctx context.Context, repo repositories.Repository, doc *models.AnalysisDocument,
	ds *analytics.Dataset, strategy forecasting.Strategy) (*models.AnalysisSummary, []insights.StudentForecast, error) {

	summary := &models.AnalysisSummary{DocumentID: doc.ID, Method: models.ForecastMethod(strategy.Name())}
	// A rerun replaces the previous run's forecasts; skipped students and retired test numbers keep none.
	if err := repo.Forecasts().DeleteByDocument(ctx, doc.ID); err != nil {
		return nil, nil, apperrors.NewPersistenceError("clear previous forecasts", err)
	}
	rowsByStudent := make(map[string][]analytics.Row)
	for _, r := range ds.Rows {
		rowsByStudent[r.StudentCode] = append(rowsByStudent[r.StudentCode], r)
	}

	var views []insights.StudentForecast
	for _, series := range ds.AllSeries() {
		summary.Students++

		pred, err := strategy.Forecast(ctx, series)
		if err != nil {
			fitErr := apperrors.NewModelFitError(doc.ID, series.StudentCode, strategy.Name(), err)
			if s.cfg.AbortOnModelFit() || ctx.Err() != nil {
				return nil, nil, fitErr
			}
			s.slog.LogModelFitFailure(ctx, doc.ID, series.StudentCode, candidateNames(strategy), fitErr)
			summary.SkippedStudents = append(summary.SkippedStudents, series.StudentCode)
			continue
		}

		forecast, err := buildForecast(doc.ID, series, pred)
		if err != nil {
			return nil, nil, err
		}
		records := buildRecords(doc.ID, rowsByStudent[series.StudentCode])

		err = repo.WithTransaction(ctx, func(tx repositories.Repository) error {
			if err := tx.Records().UpsertRecords(ctx, records); err != nil {
				return err
			}
			return tx.Forecasts().UpsertForecast(ctx, forecast.Key(), forecast)
		})
		if err != nil {
			return nil, nil, apperrors.NewPersistenceError("upsert forecast for student "+series.StudentCode, err)
		}

		summary.Forecasts++
		views = append(views, insights.StudentForecast{
			StudentCode:    series.StudentCode,
			PredictedScore: forecast.PredictedScore,
			MaxScore:       forecast.MaxScore,
			Status:         forecast.PredictedStatus,
		})
	}

	if summary.Forecasts == 0 {
		return nil, nil, apperrors.NewModelFitError(doc.ID, "", strategy.Name(),
			fmt.Errorf("%w: no student could be forecast", apperrors.ErrNoConvergence))
	}
	return summary, views, nil
}

func candidateNames(strategy forecasting.Strategy) []string {
	lister, ok := strategy.(orderLister)
	if !ok {
		return nil
	}
	orders := lister.CandidateOrders()
	names := make([]string, len(orders))
	for i, o := range orders {
		names[i] = o.String()
	}
	return names
}

func buildForecast(documentID uint, series analytics.StudentSeries, pred forecasting.Prediction) (*models.Forecast, error) {
	features := pred.Features
	if features == nil {
		features = analytics.ExtractFeatures(series.Normalized)
	}
	encoded, err := json.Marshal(features.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to encode features: %w", err)
	}

	return &models.Forecast{
		DocumentID:       documentID,
		StudentID:        series.StudentID,
		TestNumber:       pred.TestNumber,
		Date:             pred.Date,
		PredictedScore:   pred.PredictedScore,
		MaxScore:         pred.MaxScore,
		PassingThreshold: analytics.PassingThreshold(pred.MaxScore),
		PredictedStatus:  analytics.Classify(pred.PredictedScore, pred.MaxScore),
		Method:           pred.Method,
		Features:         datatypes.JSON(encoded),
	}, nil
}

func buildRecords(documentID uint, rows []analytics.Row) []models.AssessmentRecord {
	out := make([]models.AssessmentRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.AssessmentRecord{
			DocumentID:       documentID,
			StudentID:        r.StudentID,
			TestNumber:       r.TestNumber,
			Score:            r.Score,
			MaxScore:         r.MaxScore,
			Date:             r.Date,
			NormalizedScore:  r.NormalizedScore,
			PassingThreshold: analytics.PassingThreshold(r.MaxScore),
			Imputed:          r.Imputed,
			TopicMappingID:   r.TopicMappingID,
		})
	}
	return out
}

func (s *analysisService) saveStatistics(ctx context.Context, agg analytics.Aggregates) error {
	err := s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		stats := tx.Statistics()
		if err := stats.DeleteByDocument(ctx, agg.DocumentID); err != nil {
			return err
		}
		if err := stats.UpsertDocumentStatistic(ctx, &models.DocumentStatistic{
			DocumentID:           agg.DocumentID,
			DescriptiveStats:     agg.Document.Stats,
			TotalStudents:        agg.Document.TotalStudents,
			TotalScores:          agg.Document.TotalScores,
			MeanPassingThreshold: agg.Document.MeanPassingThreshold,
		}); err != nil {
			return err
		}

		for _, a := range agg.Assessments {
			if err := stats.UpsertAssessmentStatistic(ctx, &models.AssessmentStatistic{
				DocumentID:       agg.DocumentID,
				TestNumber:       a.TestNumber,
				TopicID:          a.TopicID,
				DescriptiveStats: a.Stats,
				MaxScore:         a.MaxScore,
				PassingThreshold: a.PassingThreshold,
				PassingRate:      a.PassingRate,
				FailingRate:      a.FailingRate,
				TotalScores:      a.TotalScores,
			}); err != nil {
				return err
			}
		}

		for _, st := range agg.Students {
			if err := stats.UpsertStudentStatistic(ctx, &models.StudentStatistic{
				DocumentID:       agg.DocumentID,
				StudentID:        st.StudentID,
				DescriptiveStats: st.Stats,
				PassingRate:      st.PassingRate,
				FailingRate:      st.FailingRate,
				TotalScores:      st.TotalScores,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.NewPersistenceError("upsert statistics", err)
	}
	return nil
}

// saveInsights never fails the run.
func (s *analysisService) saveInsights(ctx context.Context, in insights.Input) {
	found := insights.Generate(in)
	row := &models.DocumentInsight{DocumentID: in.Aggregates.DocumentID}

	encoded, err := json.Marshal(found)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to encode insights", "document_id", row.DocumentID, "error", err)
		return
	}
	row.Insights = datatypes.JSON(encoded)

	if s.narrator != nil {
		narrative, err := s.narrator.Narrate(ctx, in, found)
		if err != nil {
			s.logger.WarnContext(ctx, "Narrative generation failed", "document_id", row.DocumentID, "error", err)
		} else if data, err := json.Marshal(narrative); err == nil {
			row.Narrative = datatypes.JSON(data)
		}
	}

	if err := s.repo.Insights().UpsertInsight(ctx, row); err != nil {
		s.logger.WarnContext(ctx, "Failed to store insights", "document_id", row.DocumentID, "error", err)
	}
}

// fail leaves the document unprocessed without derived rows and reports the failure.
func (s *analysisService) fail(ctx context.Context, documentID uint, userID string, cause error) {
	if errors.Is(cause, ErrAnalysisInProgress) {
		return
	}
	// Cleanup must run even when the run was cancelled.
	cleanupCtx := context.WithoutCancel(ctx)

	if !errors.Is(cause, ErrDocumentNotFound) {
		if err := s.repo.DeleteDerived(cleanupCtx, documentID); err != nil {
			s.logger.Error("Failed to delete derived rows", "document_id", documentID, "error", err)
		}
		if err := s.repo.Documents().SetProcessed(cleanupCtx, documentID, false); err != nil {
			s.logger.Error("Failed to reset processed flag", "document_id", documentID, "error", err)
		}
		if s.cfg.DeleteOnFailure {
			if err := s.repo.Documents().Delete(cleanupCtx, documentID); err != nil {
				s.logger.Error("Failed to delete document", "document_id", documentID, "error", err)
			}
		}
		s.invalidate(cleanupCtx, documentID)
	}

	s.logger.Warn("Analysis failed",
		"document_id", documentID,
		"status", apperrors.Classify(cause),
		"error", cause)
	s.notify(cleanupCtx, documentID, userID, false)
}

func (s *analysisService) notify(ctx context.Context, documentID uint, userID string, success bool) {
	if s.publisher == nil {
		return
	}
	event := events.NewAnalysisCompletedEvent(documentID, userID, success)
	if err := s.publisher.PublishNotificationEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish completion event",
			"document_id", documentID,
			"success", success,
			"error", err)
	}
}

func (s *analysisService) invalidate(ctx context.Context, documentID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePattern(ctx, cache.DocumentPattern(documentID)); err != nil {
		s.logger.Warn("Failed to invalidate cached results", "document_id", documentID, "error", err)
	}
}
