package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/SAP-F-2025/forecast-service/internal/errors"
	"github.com/SAP-F-2025/forecast-service/internal/models"
	"github.com/SAP-F-2025/forecast-service/internal/repositories"
)

func TestGetForecastsServesFromCacheUntilRerun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.useStrategy(&stubStrategy{normalized: 0.8})
	results := NewResultsService(f.repo, f.cache, time.Minute, testLogger())

	_, err := f.service.Run(ctx, f.doc.ID, "u")
	require.NoError(t, err)

	resp, err := results.GetForecasts(ctx, f.doc.ID)
	require.NoError(t, err)
	require.Len(t, resp.Forecasts, 3)
	assert.Equal(t, 3, resp.Passing)
	assert.Equal(t, "S1", resp.Forecasts[0].StudentCode)
	assert.Equal(t, "Student S1", resp.Forecasts[0].Name)
	assert.Contains(t, resp.Forecasts[0].Features, "last_score")

	// Deleting behind the cache leaves the cached view in place.
	require.NoError(t, f.repo.Forecasts().DeleteByDocument(ctx, f.doc.ID))
	cached, err := results.GetForecasts(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Len(t, cached.Forecasts, 3)

	f.useStrategy(&stubStrategy{normalized: 0.5})
	_, err = f.service.Run(ctx, f.doc.ID, "u")
	require.NoError(t, err)

	fresh, err := results.GetForecasts(ctx, f.doc.ID)
	require.NoError(t, err)
	require.Len(t, fresh.Forecasts, 3)
	assert.Equal(t, 3, fresh.Failing)
}

func TestGetStatistics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	results := NewResultsService(f.repo, nil, 0, testLogger())

	_, err := results.GetStatistics(ctx, f.doc.ID)
	assert.ErrorIs(t, err, ErrDocumentNotProcessed)

	_, err = f.service.Run(ctx, f.doc.ID, "u")
	require.NoError(t, err)

	resp, err := results.GetStatistics(ctx, f.doc.ID)
	require.NoError(t, err)
	require.NotNil(t, resp.Document)
	assert.Equal(t, 3, resp.Document.TotalStudents)
	assert.Len(t, resp.Assessments, 6)
	assert.Len(t, resp.Students, 3)
	assert.NotEmpty(t, resp.Insights)
	assert.Nil(t, resp.Narrative)

	_, err = results.GetStatistics(ctx, 404)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestListDocuments(t *testing.T) {
	f := newFixture(t, nil)
	results := NewResultsService(f.repo, nil, 0, testLogger())

	resp, err := results.ListDocuments(context.Background(), repositories.DocumentFilters{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, resp.Total)
	require.Len(t, resp.Documents, 1)
	assert.Equal(t, "Grade 8 Math", resp.Documents[0].Title)
}

func TestEvaluate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.useStrategy(&stubStrategy{normalized: 0.8})
	evaluation := NewEvaluationService(f.repo, f.cache, nil, time.Minute, testLogger())

	_, err := f.service.Run(ctx, f.doc.ID, "u")
	require.NoError(t, err)

	_, err = evaluation.Evaluate(ctx, f.doc.ID)
	assert.ErrorIs(t, err, ErrNoPostTests)

	count, err := evaluation.RecordPostTests(ctx, f.doc.ID, &RecordPostTestsRequest{Scores: []PostTestScore{
		{StudentCode: "S1", Score: 54, MaxScore: 60},
		{StudentCode: "S2", Score: 30, MaxScore: 60},
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	resp, err := evaluation.Evaluate(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Students)
	// Both predicted 48/60; errors are 6 and 18.
	assert.InDelta(t, 12.0, resp.MAE, 1e-9)
	assert.InDelta(t, 13.416407864998739, resp.RMSE, 1e-9)
	assert.InDelta(t, 50.0, resp.Accuracy, 1e-9)
}

func TestRecordPostTestsValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	evaluation := NewEvaluationService(f.repo, nil, nil, 0, testLogger())

	_, err := evaluation.RecordPostTests(ctx, f.doc.ID, &RecordPostTestsRequest{Scores: []PostTestScore{
		{StudentCode: "S1", Score: 70, MaxScore: 60},
	}})
	assert.True(t, IsValidation(err))

	_, err = evaluation.RecordPostTests(ctx, f.doc.ID, &RecordPostTestsRequest{Scores: []PostTestScore{
		{StudentCode: "S1", Score: 50, MaxScore: 60},
		{StudentCode: "ghost", Score: 50, MaxScore: 60},
	}})
	assert.True(t, apperrors.IsMissingEntity(err))

	stored, err := f.repo.PostTests().ListByDocument(ctx, f.doc.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRecordPostTestsBusinessRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	evaluation := NewEvaluationService(f.repo, nil, nil, 0, testLogger())

	// a student known to the store but without records in this document
	outsider := &models.Student{Code: "X1", FirstName: "Student", LastName: "X1"}
	require.NoError(t, f.repo.Students().Create(ctx, outsider))
	_, err := evaluation.RecordPostTests(ctx, f.doc.ID, &RecordPostTestsRequest{Scores: []PostTestScore{
		{StudentCode: "S1", Score: 50, MaxScore: 60},
		{StudentCode: "X1", Score: 40, MaxScore: 60},
	}})
	var ruleErr *BusinessRuleError
	require.ErrorAs(t, err, &ruleErr)
	assert.Equal(t, RulePostTestStudentEnrolled, ruleErr.Rule)
	assert.Equal(t, "X1", ruleErr.Context["student_code"])
	assert.True(t, IsBusinessRule(err))

	postMax := 50.0
	f.doc.PostTestMaxScore = &postMax
	require.NoError(t, f.repo.Documents().Update(ctx, f.doc))
	_, err = evaluation.RecordPostTests(ctx, f.doc.ID, &RecordPostTestsRequest{Scores: []PostTestScore{
		{StudentCode: "S1", Score: 50, MaxScore: 60},
	}})
	require.ErrorAs(t, err, &ruleErr)
	assert.Equal(t, RulePostTestMaxScore, ruleErr.Rule)

	count, err := evaluation.RecordPostTests(ctx, f.doc.ID, &RecordPostTestsRequest{Scores: []PostTestScore{
		{StudentCode: "S1", Score: 45, MaxScore: 50},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stored, err := f.repo.PostTests().ListByDocument(ctx, f.doc.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, f.students[0].ID, stored[0].StudentID)
}

func TestScoreSkipsStudentsWithoutForecast(t *testing.T) {
	actuals := []models.ActualPostTest{
		{StudentID: 1, Score: 45, MaxScore: 60},
		{StudentID: 2, Score: 20, MaxScore: 60},
	}
	forecasts := map[uint]models.Forecast{
		1: {StudentID: 1, PredictedScore: 80, MaxScore: 100, PredictedStatus: models.StatusPass},
	}

	resp := Score(actuals, forecasts)
	require.Len(t, resp.Items, 1)
	assert.InDelta(t, 48.0, resp.Items[0].PredictedScore, 1e-9)
	assert.InDelta(t, 3.0, resp.MAE, 1e-9)
	assert.Equal(t, models.StatusPass, resp.Items[0].ActualStatus)
	assert.InDelta(t, 100.0, resp.Accuracy, 1e-9)

	empty := Score(nil, forecasts)
	assert.Zero(t, empty.Students)
	assert.Zero(t, empty.MAE)
}
