package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(code string, test int, score, maxScore float64) Row {
	return Row{
		StudentCode:                code,
		TestNumber:                 test,
		Score:                      score,
		MaxScore:                   maxScore,
		NormalizedScore:            score / maxScore,
		NormalizedPassingThreshold: PassingThreshold(maxScore) / maxScore,
	}
}

func TestAggregateDocument(t *testing.T) {
	ds := &Dataset{DocumentID: 1, Rows: []Row{
		row("A", 1, 80, 100),
		row("A", 2, 40, 50),
		row("B", 1, 60, 100),
		row("B", 2, 30, 50),
	}}

	doc := Aggregate(ds).Document
	assert.InDelta(t, 52.5, doc.Stats.Mean, 1e-9)
	assert.InDelta(t, 50.0, doc.Stats.Median, 1e-9)
	assert.Equal(t, 30.0, doc.Stats.Minimum)
	assert.Equal(t, 80.0, doc.Stats.Maximum)
	assert.Equal(t, 2, doc.TotalStudents)
	assert.Equal(t, 4, doc.TotalScores)
	assert.InDelta(t, 56.25, doc.MeanPassingThreshold, 1e-9)
}

func TestAggregateAssessments(t *testing.T) {
	topic := uint(12)
	a := row("A", 1, 80, 100)
	a.TopicID = &topic
	b := row("B", 1, 60, 100)
	b.TopicID = &topic
	ds := &Dataset{Rows: []Row{a, b, row("A", 2, 40, 50), row("B", 2, 45, 50)}}

	aggs := Aggregate(ds).Assessments
	require.Len(t, aggs, 2)

	first := aggs[0]
	assert.Equal(t, 1, first.TestNumber)
	assert.InDelta(t, 70.0, first.Stats.Mean, 1e-9)
	assert.Equal(t, 75.0, first.PassingThreshold)
	assert.InDelta(t, 50.0, first.PassingRate, 1e-9)
	assert.InDelta(t, 50.0, first.FailingRate, 1e-9)
	assert.Equal(t, 2, first.TotalScores)
	require.NotNil(t, first.TopicID)
	assert.Equal(t, topic, *first.TopicID)

	second := aggs[1]
	assert.Equal(t, 2, second.TestNumber)
	assert.InDelta(t, 100.0, second.PassingRate, 1e-9)
	assert.InDelta(t, 0.0, second.FailingRate, 1e-9)
	assert.Nil(t, second.TopicID)
}

func TestAggregateStudentsUseOwnThreshold(t *testing.T) {
	ds := &Dataset{Rows: []Row{
		row("A", 1, 80, 100),
		row("A", 2, 40, 50),
		row("B", 1, 60, 100),
		row("B", 2, 30, 50),
	}}

	students := Aggregate(ds).Students
	require.Len(t, students, 2)

	assert.Equal(t, "A", students[0].StudentCode)
	assert.InDelta(t, 100.0, students[0].PassingRate, 1e-9)
	assert.InDelta(t, 0.0, students[0].FailingRate, 1e-9)
	assert.InDelta(t, 60.0, students[0].Stats.Mean, 1e-9)

	assert.Equal(t, "B", students[1].StudentCode)
	assert.InDelta(t, 0.0, students[1].PassingRate, 1e-9)
	assert.InDelta(t, 100.0, students[1].FailingRate, 1e-9)
}

func TestAggregateIsDeterministic(t *testing.T) {
	ds := &Dataset{Rows: []Row{row("B", 1, 3, 5), row("A", 1, 4, 5), row("A", 2, 5, 5), row("B", 2, 1, 5)}}
	assert.Equal(t, Aggregate(ds), Aggregate(ds))
}

func TestDatasetSeries(t *testing.T) {
	ds := &Dataset{Rows: []Row{row("B", 1, 3, 5), row("A", 1, 4, 5), row("A", 2, 5, 5)}}
	ds.sortRows()

	series := ds.AllSeries()
	require.Len(t, series, 2)
	assert.Equal(t, "A", series[0].StudentCode)
	assert.Equal(t, []float64{0.8, 1.0}, series[0].Normalized)
	assert.InDeltaSlice(t, []float64{0.2}, series[0].Differenced(), 1e-12)
	assert.Equal(t, 2, series[0].LastTestNumber())
	assert.Equal(t, []string{"A", "B"}, ds.StudentCodes())
	assert.Equal(t, []int{1, 2}, ds.TestNumbers())
	assert.Equal(t, 1, series[0].Head(1).Len())
}
