package analytics

import (
	"testing"
	"time"

	apperrors "github.com/SAP-F-2025/forecast-service/internal/errors"
	"github.com/SAP-F-2025/forecast-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }

func testDocument() *models.AnalysisDocument {
	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	return &models.AnalysisDocument{ID: 9, Title: "Grade 7 Math", TestStartDate: &start}
}

func buildRecords(studentID uint, code string, scores []float64, maxScore float64) []models.AssessmentRecord {
	student := &models.Student{ID: studentID, Code: code}
	out := make([]models.AssessmentRecord, len(scores))
	for i, s := range scores {
		out[i] = models.AssessmentRecord{
			DocumentID: 9,
			StudentID:  studentID,
			TestNumber: i + 1,
			Score:      s,
			MaxScore:   maxScore,
			Student:    student,
		}
	}
	return out
}

func TestFromRecordsNormalizesAndDates(t *testing.T) {
	p := NewPreprocessor(DefaultPreprocessOptions())
	records := buildRecords(1, "S-1", []float64{40, 45, 30, 50, 35}, 50)

	ds, err := p.FromRecords(testDocument(), records, nil)
	require.NoError(t, err)
	require.Len(t, ds.Rows, 5)

	for _, r := range ds.Rows {
		assert.InDelta(t, r.Score/r.MaxScore, r.NormalizedScore, 1e-12)
		assert.GreaterOrEqual(t, r.NormalizedScore, 0.0)
		assert.LessOrEqual(t, r.NormalizedScore, 1.0)
		assert.InDelta(t, 0.75, r.NormalizedPassingThreshold, 1e-12)
	}
	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), ds.Rows[0].Date)
	assert.Equal(t, time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC), ds.Rows[4].Date)
}

func TestFromRecordsMaxScorePrecedence(t *testing.T) {
	p := NewPreprocessor(DefaultPreprocessOptions())
	records := buildRecords(1, "S-1", []float64{10, 20, 30, 20, 10}, 0)
	records[0].MaxScore = 40
	mappings := []models.TopicMapping{
		{ID: 1, DocumentID: 9, TestNumber: 1, TopicID: 3, MaxScore: floatPtr(80)},
		{ID: 2, DocumentID: 9, TestNumber: 2, TopicID: 4, MaxScore: floatPtr(60)},
		{ID: 3, DocumentID: 9, TestNumber: 3, TopicID: 5, Topic: &models.TestTopic{ID: 5, MaxScore: floatPtr(50)}},
	}

	ds, err := p.FromRecords(testDocument(), records, mappings)
	require.NoError(t, err)

	byTest := map[int]Row{}
	for _, r := range ds.Rows {
		byTest[r.TestNumber] = r
	}
	assert.Equal(t, 40.0, byTest[1].MaxScore, "record max wins")
	assert.Equal(t, 60.0, byTest[2].MaxScore, "mapping max")
	assert.Equal(t, 50.0, byTest[3].MaxScore, "topic max")
	assert.Equal(t, DefaultMaxScore, byTest[4].MaxScore, "default")
	require.NotNil(t, byTest[2].TopicID)
	assert.Equal(t, uint(4), *byTest[2].TopicID)
	assert.Nil(t, byTest[4].TopicID)
}

func TestFromRecordsErrors(t *testing.T) {
	p := NewPreprocessor(DefaultPreprocessOptions())
	doc := testDocument()

	t.Run("no records", func(t *testing.T) {
		_, err := p.FromRecords(doc, nil, nil)
		require.Error(t, err)
		assert.True(t, apperrors.IsDataError(err))
		assert.ErrorIs(t, err, apperrors.ErrNoRecords)
	})

	t.Run("insufficient history", func(t *testing.T) {
		records := append(buildRecords(1, "S-1", []float64{1, 2, 3, 4}, 10),
			buildRecords(2, "S-2", []float64{1, 2, 3}, 10)...)
		_, err := p.FromRecords(doc, records, nil)
		assert.True(t, apperrors.IsDataError(err))
		assert.ErrorIs(t, err, apperrors.ErrInsufficientHistory)
	})

	t.Run("score above max", func(t *testing.T) {
		records := buildRecords(1, "S-1", []float64{1, 2, 3, 4, 11}, 10)
		_, err := p.FromRecords(doc, records, nil)
		assert.ErrorIs(t, err, apperrors.ErrInvalidScore)
	})

	t.Run("negative score", func(t *testing.T) {
		records := buildRecords(1, "S-1", []float64{1, -2, 3, 4, 5}, 10)
		_, err := p.FromRecords(doc, records, nil)
		assert.ErrorIs(t, err, apperrors.ErrInvalidScore)
	})

	t.Run("duplicate key", func(t *testing.T) {
		records := buildRecords(1, "S-1", []float64{1, 2, 3, 4, 5}, 10)
		records = append(records, records[0])
		_, err := p.FromRecords(doc, records, nil)
		assert.ErrorIs(t, err, apperrors.ErrDuplicateRecord)
	})
}

func TestFromWideImputesColumnMean(t *testing.T) {
	table, err := NewWideTable(
		[]string{"student_id", "first_name", "fa1:10", "fa2:10", "fa3:10", "fa4:10", "fa5:10"},
		[][]string{
			{"A", "Ana", "8", "6", "", "9", "7"},
			{"B", "Ben", "4", "6", "5", "3", "6"},
			{"C", "Cy", "6", "9", "7", "6", "8"},
		},
	)
	require.NoError(t, err)

	p := NewPreprocessor(DefaultPreprocessOptions())
	ds, err := p.FromWide(testDocument(), table, nil)
	require.NoError(t, err)
	require.Len(t, ds.Rows, 15)

	a, ok := ds.Series("A")
	require.True(t, ok)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, a.TestNumbers)
	assert.InDelta(t, 6.0, a.Scores[2], 1e-12)

	var imputed int
	for _, r := range ds.Rows {
		if r.Imputed {
			imputed++
			assert.Equal(t, "A", r.StudentCode)
			assert.Equal(t, 3, r.TestNumber)
		}
	}
	assert.Equal(t, 1, imputed)
}

func TestFromWideRejectsMissingWhenImputationDisabled(t *testing.T) {
	table, err := NewWideTable(
		[]string{"student_id", "fa1:10", "fa2:10", "fa3:10", "fa4:10", "fa5:10"},
		[][]string{{"A", "8", "", "9", "7", "7"}, {"B", "1", "2", "3", "4", "5"}},
	)
	require.NoError(t, err)

	opts := DefaultPreprocessOptions()
	opts.ImputeMissing = false
	_, err = NewPreprocessor(opts).FromWide(testDocument(), table, nil)
	assert.True(t, apperrors.IsDataError(err))
}

func TestFromWideEmptyColumn(t *testing.T) {
	table, err := NewWideTable(
		[]string{"student_id", "fa1:10", "fa2:10", "fa3:10", "fa4:10", "fa5:10"},
		[][]string{{"A", "8", "", "9", "7", "7"}},
	)
	require.NoError(t, err)

	_, err = NewPreprocessor(DefaultPreprocessOptions()).FromWide(testDocument(), table, nil)
	assert.True(t, apperrors.IsDataError(err))
	assert.ErrorIs(t, err, apperrors.ErrMalformedInput)
}

func TestAnchorFallsBackToCreationDate(t *testing.T) {
	created := time.Date(2025, 1, 6, 15, 30, 0, 0, time.UTC)
	doc := &models.AnalysisDocument{ID: 9, CreatedAt: created}
	records := buildRecords(1, "S-1", []float64{1, 2, 3, 4, 5}, 10)

	ds, err := NewPreprocessor(DefaultPreprocessOptions()).FromRecords(doc, records, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), ds.Rows[0].Date)
	assert.Equal(t, time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC), ds.Rows[1].Date)
}
