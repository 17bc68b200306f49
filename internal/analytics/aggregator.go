package analytics

import (
	"sort"

	"github.com/SAP-F-2025/forecast-service/internal/models"
	"gonum.org/v1/gonum/stat"
)

type DocumentAggregate struct {
	Stats                models.DescriptiveStats
	TotalStudents        int
	TotalScores          int
	MeanPassingThreshold float64
}

type AssessmentAggregate struct {
	TestNumber       int
	TopicMappingID   *uint
	TopicID          *uint
	Stats            models.DescriptiveStats
	MaxScore         float64
	PassingThreshold float64
	PassingRate      float64
	FailingRate      float64
	TotalScores      int
}

type StudentAggregate struct {
	StudentID   uint
	StudentCode string
	Stats       models.DescriptiveStats
	PassingRate float64
	FailingRate float64
	TotalScores int
}

// Aggregates holds the three statistic levels for one document.
type Aggregates struct {
	DocumentID  uint
	Document    DocumentAggregate
	Assessments []AssessmentAggregate
	Students    []StudentAggregate
}

// Aggregate computes document, assessment and student statistics. It is a pure
// function of the dataset rows.
func Aggregate(ds *Dataset) Aggregates {
	return Aggregates{
		DocumentID:  ds.DocumentID,
		Document:    aggregateDocument(ds.Rows),
		Assessments: aggregateAssessments(ds.Rows),
		Students:    aggregateStudents(ds.Rows),
	}
}

func aggregateDocument(rows []Row) DocumentAggregate {
	scores := make([]float64, 0, len(rows))
	maxScores := make([]float64, 0, len(rows))
	students := make(map[string]struct{})
	for _, r := range rows {
		scores = append(scores, r.Score)
		maxScores = append(maxScores, r.MaxScore)
		students[r.StudentCode] = struct{}{}
	}

	agg := DocumentAggregate{
		Stats:         Describe(scores),
		TotalStudents: len(students),
		TotalScores:   len(scores),
	}
	if len(maxScores) > 0 {
		agg.MeanPassingThreshold = PassingThreshold(stat.Mean(maxScores, nil))
	}
	return agg
}

func aggregateAssessments(rows []Row) []AssessmentAggregate {
	groups := make(map[int][]Row)
	for _, r := range rows {
		groups[r.TestNumber] = append(groups[r.TestNumber], r)
	}

	nums := make([]int, 0, len(groups))
	for n := range groups {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	out := make([]AssessmentAggregate, 0, len(nums))
	for _, n := range nums {
		group := groups[n]
		scores := make([]float64, len(group))
		var passed int
		for i, r := range group {
			scores[i] = r.Score
			if IsPassing(r.Score, r.MaxScore) {
				passed++
			}
		}
		first := group[0]
		passingRate := float64(passed) / float64(len(group)) * 100
		out = append(out, AssessmentAggregate{
			TestNumber:       n,
			TopicMappingID:   first.TopicMappingID,
			TopicID:          first.TopicID,
			Stats:            Describe(scores),
			MaxScore:         first.MaxScore,
			PassingThreshold: PassingThreshold(first.MaxScore),
			PassingRate:      passingRate,
			FailingRate:      100 - passingRate,
			TotalScores:      len(group),
		})
	}
	return out
}

func aggregateStudents(rows []Row) []StudentAggregate {
	groups := make(map[string][]Row)
	for _, r := range rows {
		groups[r.StudentCode] = append(groups[r.StudentCode], r)
	}

	codes := make([]string, 0, len(groups))
	for c := range groups {
		codes = append(codes, c)
	}
	sort.Strings(codes)

	out := make([]StudentAggregate, 0, len(codes))
	for _, code := range codes {
		group := groups[code]
		scores := make([]float64, len(group))
		var passed int
		for i, r := range group {
			scores[i] = r.Score
			// each record is judged against its own normalized threshold
			if r.NormalizedScore >= r.NormalizedPassingThreshold {
				passed++
			}
		}
		passingRate := float64(passed) / float64(len(group)) * 100
		out = append(out, StudentAggregate{
			StudentID:   group[0].StudentID,
			StudentCode: code,
			Stats:       Describe(scores),
			PassingRate: passingRate,
			FailingRate: 100 - passingRate,
			TotalScores: len(group),
		})
	}
	return out
}
