package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/forecast-service/internal/analytics"
	"github.com/SAP-F-2025/forecast-service/internal/cache"
	"github.com/SAP-F-2025/forecast-service/internal/config"
	apperrors "github.com/SAP-F-2025/forecast-service/internal/errors"
	"github.com/SAP-F-2025/forecast-service/internal/events"
	"github.com/SAP-F-2025/forecast-service/internal/forecasting"
	"github.com/SAP-F-2025/forecast-service/internal/insights"
	"github.com/SAP-F-2025/forecast-service/internal/models"
	"github.com/SAP-F-2025/forecast-service/internal/repositories"
	"github.com/SAP-F-2025/forecast-service/internal/repositories/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	repo      *memory.Repository
	publisher *events.MockEventPublisher
	jobs      *events.MockJobQueue
	cache     cache.CacheService
	service   *analysisService
	doc       *models.AnalysisDocument
	students  []*models.Student
}

var studentScores = map[string][]float64{
	"S1": {70, 74, 72, 80, 78, 82},
	"S2": {40, 45, 42, 50, 48, 52},
	"S3": {90, 88, 95, 92, 94, 96},
}

func newFixture(t *testing.T, mutate func(cfg *config.ForecastConfig)) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := testLogger()

	cfg := config.DefaultForecastConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	f := &fixture{
		repo:      memory.NewRepository(memory.Open()),
		publisher: events.NewMockEventPublisher(logger),
		jobs:      events.NewMockJobQueue(),
		cache:     cache.NewMemoryCache(time.Minute, time.Minute),
	}
	f.service = NewAnalysisService(AnalysisServiceConfig{
		Repo:      f.repo,
		Jobs:      f.jobs,
		Publisher: f.publisher,
		Cache:     f.cache,
		Forecast:  cfg,
		Logger:    logger,
	}).(*analysisService)

	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	f.doc = &models.AnalysisDocument{Title: "Grade 8 Math", TestStartDate: &start}
	require.NoError(t, f.repo.Documents().Create(ctx, f.doc))

	for _, code := range []string{"S1", "S2", "S3"} {
		st := &models.Student{Code: code, FirstName: "Student", LastName: code}
		require.NoError(t, f.repo.Students().Create(ctx, st))
		f.students = append(f.students, st)
		f.addRecords(t, st.ID, studentScores[code])
	}
	return f
}

func (f *fixture) addRecords(t *testing.T, studentID uint, scores []float64) {
	t.Helper()
	records := make([]models.AssessmentRecord, len(scores))
	for i, s := range scores {
		records[i] = models.AssessmentRecord{
			DocumentID: f.doc.ID,
			StudentID:  studentID,
			TestNumber: i + 1,
			Score:      s,
			MaxScore:   100,
		}
	}
	require.NoError(t, f.repo.Records().UpsertRecords(context.Background(), records))
}

func (f *fixture) lastEvent(t *testing.T) events.AnalysisCompletedEvent {
	t.Helper()
	published := f.publisher.GetPublishedEvents()
	require.NotEmpty(t, published)
	data, ok := published[len(published)-1].Data.(events.AnalysisCompletedEvent)
	require.True(t, ok)
	return data
}

// stubStrategy predicts a fixed normalized score and fails for listed students.
type stubStrategy struct {
	normalized float64
	failFor    map[string]bool
}

func (s *stubStrategy) Name() string { return string(models.MethodTimeSeries) }

func (s *stubStrategy) Forecast(_ context.Context, series analytics.StudentSeries) (forecasting.Prediction, error) {
	if s.failFor[series.StudentCode] {
		return forecasting.Prediction{}, apperrors.ErrNoConvergence
	}
	maxScore := series.LastMaxScore()
	return forecasting.Prediction{
		StudentID:      series.StudentID,
		StudentCode:    series.StudentCode,
		TestNumber:     series.LastTestNumber() + 1,
		PredictedScore: s.normalized * maxScore,
		MaxScore:       maxScore,
		Normalized:     s.normalized,
		Method:         models.MethodTimeSeries,
	}, nil
}

func (f *fixture) useStrategy(strategy forecasting.Strategy) {
	f.service.build = func(context.Context, forecasting.Config, *analytics.Dataset, *models.AnalysisDocument, *slog.Logger) (forecasting.Strategy, error) {
		return strategy, nil
	}
}

func TestRunPersistsForecastsAndStatistics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	summary, err := f.service.Run(ctx, f.doc.ID, "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Students)
	assert.Equal(t, 3, summary.Forecasts)
	assert.Empty(t, summary.SkippedStudents)

	doc, err := f.repo.Documents().GetByID(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.True(t, doc.Processed)

	forecasts, err := f.repo.Forecasts().ListByDocument(ctx, f.doc.ID)
	require.NoError(t, err)
	require.Len(t, forecasts, 3)
	for _, fc := range forecasts {
		assert.Equal(t, 7, fc.TestNumber)
		assert.InDelta(t, 75.0, fc.PassingThreshold, 1e-9)
		assert.GreaterOrEqual(t, fc.PredictedScore, 0.0)
		assert.LessOrEqual(t, fc.PredictedScore, fc.MaxScore)
		assert.Equal(t, analytics.Classify(fc.PredictedScore, fc.MaxScore), fc.PredictedStatus)

		var features map[string]float64
		require.NoError(t, json.Unmarshal(fc.Features, &features))
		assert.Contains(t, features, "weighted_mean_score")
	}

	docStat, err := f.repo.Statistics().GetDocumentStatistic(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, docStat.TotalStudents)
	assert.Equal(t, 18, docStat.TotalScores)
	assert.InDelta(t, 75.0, docStat.MeanPassingThreshold, 1e-9)

	assessments, err := f.repo.Statistics().ListAssessmentStatistics(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Len(t, assessments, 6)

	students, err := f.repo.Statistics().ListStudentStatistics(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Len(t, students, 3)

	row, err := f.repo.Insights().GetByDocument(ctx, f.doc.ID)
	require.NoError(t, err)
	var found []models.Insight
	require.NoError(t, json.Unmarshal(row.Insights, &found))
	assert.NotEmpty(t, found)

	event := f.lastEvent(t)
	assert.True(t, event.Status)
	assert.Equal(t, events.StatusTextAnalyzed, event.StatusText)
	assert.Equal(t, "user_teacher-1", f.publisher.GetPublishedEvents()[0].Channel())
}

func TestRunTwiceKeepsOneStatisticRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.service.Run(ctx, f.doc.ID, "u")
	require.NoError(t, err)
	first, err := f.repo.Statistics().GetDocumentStatistic(ctx, f.doc.ID)
	require.NoError(t, err)
	firstForecasts, err := f.repo.Forecasts().ListByDocument(ctx, f.doc.ID)
	require.NoError(t, err)

	_, err = f.service.Run(ctx, f.doc.ID, "u")
	require.NoError(t, err)
	second, err := f.repo.Statistics().GetDocumentStatistic(ctx, f.doc.ID)
	require.NoError(t, err)
	secondForecasts, err := f.repo.Forecasts().ListByDocument(ctx, f.doc.ID)
	require.NoError(t, err)

	assert.Equal(t, first.DescriptiveStats, second.DescriptiveStats)
	assert.Equal(t, first.TotalScores, second.TotalScores)
	assert.Equal(t, first.MeanPassingThreshold, second.MeanPassingThreshold)
	require.Len(t, secondForecasts, len(firstForecasts))
	for i := range firstForecasts {
		assert.Equal(t, firstForecasts[i].StudentID, secondForecasts[i].StudentID)
		assert.Equal(t, firstForecasts[i].TestNumber, secondForecasts[i].TestNumber)
		assert.Equal(t, firstForecasts[i].PredictedScore, secondForecasts[i].PredictedScore)
	}

	assessments, err := f.repo.Statistics().ListAssessmentStatistics(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Len(t, assessments, 6)
}

func TestRunFailsOnMissingStudent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.addRecords(t, 999, []float64{50, 55, 60, 65, 70})

	_, err := f.service.Run(ctx, f.doc.ID, "u")
	require.Error(t, err)
	assert.True(t, apperrors.IsMissingEntity(err))

	forecasts, err := f.repo.Forecasts().ListByDocument(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Empty(t, forecasts)

	_, err = f.repo.Documents().GetByID(ctx, f.doc.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	event := f.lastEvent(t)
	assert.False(t, event.Status)
	assert.Equal(t, events.StatusTextProcessingError, event.StatusText)
}

func TestRunFailsOnInsufficientHistoryBeforePersisting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(cfg *config.ForecastConfig) { cfg.DeleteOnFailure = false })
	require.NoError(t, f.repo.Records().DeleteByDocument(ctx, f.doc.ID))
	for _, st := range f.students {
		f.addRecords(t, st.ID, []float64{60, 70, 80, 90})
	}

	_, err := f.service.Run(ctx, f.doc.ID, "u")
	require.Error(t, err)
	assert.True(t, apperrors.IsDataError(err))
	assert.ErrorIs(t, err, apperrors.ErrInsufficientHistory)

	forecasts, err := f.repo.Forecasts().ListByDocument(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Empty(t, forecasts)
	_, err = f.repo.Statistics().GetDocumentStatistic(ctx, f.doc.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	doc, err := f.repo.Documents().GetByID(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.False(t, doc.Processed)
	assert.False(t, f.lastEvent(t).Status)
}

func TestRunFailsOnUnmappedAssessment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	topic, err := f.repo.Topics().GetOrCreateTopic(ctx, "Fractions", nil)
	require.NoError(t, err)
	for n := 1; n <= 5; n++ {
		require.NoError(t, f.repo.Topics().UpsertMapping(ctx, &models.TopicMapping{DocumentID: f.doc.ID, TestNumber: n, TopicID: topic.ID}))
	}

	_, err = f.service.Run(ctx, f.doc.ID, "u")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTopicMappingNotFound)
}

func TestModelFitPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("skip continues with remaining students", func(t *testing.T) {
		f := newFixture(t, nil)
		f.useStrategy(&stubStrategy{normalized: 0.8, failFor: map[string]bool{"S2": true}})

		summary, err := f.service.Run(ctx, f.doc.ID, "u")
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Forecasts)
		assert.Equal(t, []string{"S2"}, summary.SkippedStudents)

		forecasts, err := f.repo.Forecasts().ListByDocument(ctx, f.doc.ID)
		require.NoError(t, err)
		assert.Len(t, forecasts, 2)
	})

	t.Run("abort fails the run", func(t *testing.T) {
		f := newFixture(t, func(cfg *config.ForecastConfig) { cfg.ModelFitPolicy = config.ModelFitAbort })
		f.useStrategy(&stubStrategy{normalized: 0.8, failFor: map[string]bool{"S2": true}})

		_, err := f.service.Run(ctx, f.doc.ID, "u")
		require.Error(t, err)
		assert.True(t, apperrors.IsModelFitError(err))

		forecasts, err := f.repo.Forecasts().ListByDocument(ctx, f.doc.ID)
		require.NoError(t, err)
		assert.Empty(t, forecasts)
	})

	t.Run("every student failing fails the run", func(t *testing.T) {
		f := newFixture(t, nil)
		f.useStrategy(&stubStrategy{failFor: map[string]bool{"S1": true, "S2": true, "S3": true}})

		_, err := f.service.Run(ctx, f.doc.ID, "u")
		assert.ErrorIs(t, err, apperrors.ErrNoConvergence)
	})
}

func TestRerunDropsForecastOfSkippedStudent(t *testing.T) {
	for _, scope := range []string{config.TxScopeStudent, config.TxScopeDocument} {
		t.Run(scope, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, func(cfg *config.ForecastConfig) { cfg.TxScope = scope })
			f.useStrategy(&stubStrategy{normalized: 0.8})
			_, err := f.service.Run(ctx, f.doc.ID, "u")
			require.NoError(t, err)

			f.useStrategy(&stubStrategy{normalized: 0.5, failFor: map[string]bool{"S1": true}})
			summary, err := f.service.Run(ctx, f.doc.ID, "u")
			require.NoError(t, err)
			assert.Equal(t, []string{"S1"}, summary.SkippedStudents)

			forecasts, err := f.repo.Forecasts().ListByDocument(ctx, f.doc.ID)
			require.NoError(t, err)
			require.Len(t, forecasts, 2)
			for _, fc := range forecasts {
				assert.NotEqual(t, f.students[0].ID, fc.StudentID)
				assert.InDelta(t, 50.0, fc.PredictedScore, 1e-9)
			}
		})
	}
}

func TestIngestAfterRunResetsResultsAndRerunForecastsNextSlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.useStrategy(&stubStrategy{normalized: 0.8})
	_, err := f.service.Run(ctx, f.doc.ID, "u")
	require.NoError(t, err)

	headers := []string{"student_id", "fa1:100", "fa2:100", "fa3:100", "fa4:100", "fa5:100", "fa6:100", "fa7:100"}
	var cells [][]string
	for _, code := range []string{"S1", "S2", "S3"} {
		row := []string{code}
		for _, s := range studentScores[code] {
			row = append(row, strconv.FormatFloat(s, 'f', -1, 64))
		}
		cells = append(cells, append(row, "85"))
	}
	table, err := analytics.NewWideTable(headers, cells)
	require.NoError(t, err)
	_, err = f.service.Ingest(ctx, f.doc.ID, table)
	require.NoError(t, err)

	doc, err := f.repo.Documents().GetByID(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.False(t, doc.Processed)
	forecasts, err := f.repo.Forecasts().ListByDocument(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Empty(t, forecasts)
	_, err = f.repo.Statistics().GetDocumentStatistic(ctx, f.doc.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	_, err = f.service.Run(ctx, f.doc.ID, "u")
	require.NoError(t, err)

	forecasts, err = f.repo.Forecasts().ListByDocument(ctx, f.doc.ID)
	require.NoError(t, err)
	require.Len(t, forecasts, 3)
	for _, fc := range forecasts {
		assert.Equal(t, 8, fc.TestNumber)
	}
	assessments, err := f.repo.Statistics().ListAssessmentStatistics(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Len(t, assessments, 7)
}

func TestRunWithDocumentScopedTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(cfg *config.ForecastConfig) { cfg.TxScope = config.TxScopeDocument })
	f.useStrategy(&stubStrategy{normalized: 0.5})

	summary, err := f.service.Run(ctx, f.doc.ID, "u")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Forecasts)

	forecasts, err := f.repo.Forecasts().ListByDocument(ctx, f.doc.ID)
	require.NoError(t, err)
	require.Len(t, forecasts, 3)
	for _, fc := range forecasts {
		assert.Equal(t, models.StatusFail, fc.PredictedStatus)
	}
}

type stubNarrator struct {
	err error
}

func (n *stubNarrator) Narrate(context.Context, insights.Input, []models.Insight) (*insights.Narrative, error) {
	if n.err != nil {
		return nil, n.err
	}
	return &insights.Narrative{Model: "stub", Summary: "Most students are on track."}, nil
}

func TestNarrativeIsOptional(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, nil)
	f.service.narrator = &stubNarrator{}
	_, err := f.service.Run(ctx, f.doc.ID, "u")
	require.NoError(t, err)
	row, err := f.repo.Insights().GetByDocument(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Contains(t, string(row.Narrative), "Most students are on track.")

	f = newFixture(t, nil)
	f.service.narrator = &stubNarrator{err: errors.New("quota exceeded")}
	_, err = f.service.Run(ctx, f.doc.ID, "u")
	require.NoError(t, err)
	row, err = f.repo.Insights().GetByDocument(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Empty(t, row.Narrative)
}

func TestSubmitEnqueuesJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	resp, err := f.service.Submit(ctx, &SubmitRequest{DocumentID: f.doc.ID, RequestingUserID: "u-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.JobID)

	jobs := f.jobs.GetJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, resp.JobID, jobs[0].JobID)
	assert.Equal(t, f.doc.ID, jobs[0].DocumentID)
	assert.Equal(t, "u-1", jobs[0].RequestingUserID)

	_, err = f.service.Submit(ctx, &SubmitRequest{DocumentID: 404})
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	_, err = f.service.Submit(ctx, &SubmitRequest{})
	assert.True(t, IsValidation(err))
}

func TestRunRejectsConcurrentRunOfSameDocument(t *testing.T) {
	f := newFixture(t, nil)
	f.service.running.Store(f.doc.ID, struct{}{})

	_, err := f.service.Run(context.Background(), f.doc.ID, "u")
	assert.ErrorIs(t, err, ErrAnalysisInProgress)
	assert.Empty(t, f.publisher.GetPublishedEvents())
}

func TestNotifyFailureCleansUp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(cfg *config.ForecastConfig) { cfg.DeleteOnFailure = false })
	_, err := f.service.Run(ctx, f.doc.ID, "u")
	require.NoError(t, err)

	f.service.NotifyFailure(ctx, f.doc.ID, "u", errors.New("worker crashed"))

	doc, err := f.repo.Documents().GetByID(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.False(t, doc.Processed)
	forecasts, err := f.repo.Forecasts().ListByDocument(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Empty(t, forecasts)
	assert.False(t, f.lastEvent(t).Status)
}

func TestIngestCreatesStudentsMappingsAndRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	doc, err := f.service.CreateDocument(ctx, &CreateDocumentRequest{Title: "Section B"})
	require.NoError(t, err)

	table, err := analytics.NewWideTable(
		[]string{"student_id", "first_name", "last_name", "fa1:20", "fa2:20", "fa3:20", "fa4:20", "fa5:20"},
		[][]string{
			{"S1", "Ana", "Cruz", "15", "16", "17", "", "18"},
			{"N1", "Ben", "Diaz", "10", "12", "11", "13", "14"},
		})
	require.NoError(t, err)

	summary, err := f.service.Ingest(ctx, doc.ID, table)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalRows)
	assert.Equal(t, 10, summary.RecordsUpserted)
	assert.Equal(t, 1, summary.StudentsCreated)
	assert.Equal(t, 5, summary.MappingsCreated)
	assert.Equal(t, 1, summary.ImputedScores)

	mappings, err := f.repo.Topics().ListMappings(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, mappings, 5)
	require.NotNil(t, mappings[0].Topic)
	assert.Equal(t, "FA 1", mappings[0].Topic.Name)

	created, err := f.repo.Students().GetByCode(ctx, "N1")
	require.NoError(t, err)
	assert.Equal(t, "Ben", created.FirstName)

	records, err := f.repo.Records().ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, records, 10)
	for _, r := range records {
		assert.NotNil(t, r.TopicMappingID)
		assert.InDelta(t, r.Score/r.MaxScore, r.NormalizedScore, 1e-12)
		assert.InDelta(t, 15.0, r.PassingThreshold, 1e-12)
	}

	_, err = f.service.Run(ctx, doc.ID, "u")
	require.NoError(t, err)
}

func TestIngestRejectsShortHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	table, err := analytics.NewWideTable([]string{"student_id", "fa1", "fa2"}, [][]string{{"S9", "1", "2"}})
	require.NoError(t, err)

	_, err = f.service.Ingest(ctx, f.doc.ID, table)
	assert.True(t, apperrors.IsDataError(err))

	_, err = f.repo.Students().GetByCode(ctx, "S9")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}
