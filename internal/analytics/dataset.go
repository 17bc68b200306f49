package analytics

import (
	"sort"
	"time"
)

const (
	// PassingRatio is the fraction of max score needed to pass.
	PassingRatio = 0.75
	// MasteryThreshold flags near-perfect normalized scores.
	MasteryThreshold = 0.90

	DefaultMaxScore       = 100.0
	DefaultMinAssessments = 5

	AssessmentInterval = 7 * 24 * time.Hour
)

// Row is one student's normalized result on one assessment.
type Row struct {
	StudentID   uint
	StudentCode string
	TestNumber  int
	Score       float64
	MaxScore    float64
	Date        time.Time

	NormalizedScore            float64
	NormalizedPassingThreshold float64

	TopicMappingID *uint
	TopicID        *uint
	Imputed        bool
}

// Dataset is the long-format table for one document, sorted by student then test number.
type Dataset struct {
	DocumentID uint
	Rows       []Row
}

// StudentSeries is one student's ordered history.
type StudentSeries struct {
	StudentID   uint
	StudentCode string
	TestNumbers []int
	Scores      []float64
	MaxScores   []float64
	Normalized  []float64
	Dates       []time.Time
}

func (s StudentSeries) Len() int { return len(s.Normalized) }

func (s StudentSeries) LastTestNumber() int {
	if len(s.TestNumbers) == 0 {
		return 0
	}
	return s.TestNumbers[len(s.TestNumbers)-1]
}

func (s StudentSeries) LastMaxScore() float64 {
	if len(s.MaxScores) == 0 {
		return DefaultMaxScore
	}
	return s.MaxScores[len(s.MaxScores)-1]
}

func (s StudentSeries) LastNormalized() float64 {
	if len(s.Normalized) == 0 {
		return 0
	}
	return s.Normalized[len(s.Normalized)-1]
}

func (s StudentSeries) LastDate() time.Time {
	if len(s.Dates) == 0 {
		return time.Time{}
	}
	return s.Dates[len(s.Dates)-1]
}

// Differenced returns the first differences of the normalized series.
func (s StudentSeries) Differenced() []float64 {
	return Diff(s.Normalized)
}

// Head returns the series truncated to its first n points.
func (s StudentSeries) Head(n int) StudentSeries {
	if n >= s.Len() {
		return s
	}
	if n < 0 {
		n = 0
	}
	return StudentSeries{
		StudentID:   s.StudentID,
		StudentCode: s.StudentCode,
		TestNumbers: s.TestNumbers[:n],
		Scores:      s.Scores[:n],
		MaxScores:   s.MaxScores[:n],
		Normalized:  s.Normalized[:n],
		Dates:       s.Dates[:n],
	}
}

// Diff returns x[i]-x[i-1] for i >= 1.
func Diff(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	out := make([]float64, len(x)-1)
	for i := 1; i < len(x); i++ {
		out[i-1] = x[i] - x[i-1]
	}
	return out
}

// StudentCodes returns the distinct student codes in order.
func (d *Dataset) StudentCodes() []string {
	seen := make(map[string]struct{})
	var codes []string
	for _, r := range d.Rows {
		if _, ok := seen[r.StudentCode]; ok {
			continue
		}
		seen[r.StudentCode] = struct{}{}
		codes = append(codes, r.StudentCode)
	}
	sort.Strings(codes)
	return codes
}

// TestNumbers returns the distinct assessment numbers in ascending order.
func (d *Dataset) TestNumbers() []int {
	seen := make(map[int]struct{})
	var nums []int
	for _, r := range d.Rows {
		if _, ok := seen[r.TestNumber]; ok {
			continue
		}
		seen[r.TestNumber] = struct{}{}
		nums = append(nums, r.TestNumber)
	}
	sort.Ints(nums)
	return nums
}

// AllSeries groups rows into per-student series ordered by student code.
func (d *Dataset) AllSeries() []StudentSeries {
	index := make(map[string]int)
	var out []StudentSeries
	for _, r := range d.Rows {
		i, ok := index[r.StudentCode]
		if !ok {
			i = len(out)
			index[r.StudentCode] = i
			out = append(out, StudentSeries{StudentID: r.StudentID, StudentCode: r.StudentCode})
		}
		s := &out[i]
		s.TestNumbers = append(s.TestNumbers, r.TestNumber)
		s.Scores = append(s.Scores, r.Score)
		s.MaxScores = append(s.MaxScores, r.MaxScore)
		s.Normalized = append(s.Normalized, r.NormalizedScore)
		s.Dates = append(s.Dates, r.Date)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].StudentCode < out[b].StudentCode })
	return out
}

// Series returns one student's history.
func (d *Dataset) Series(code string) (StudentSeries, bool) {
	for _, s := range d.AllSeries() {
		if s.StudentCode == code {
			return s, true
		}
	}
	return StudentSeries{}, false
}

func (d *Dataset) sortRows() {
	sort.SliceStable(d.Rows, func(a, b int) bool {
		if d.Rows[a].StudentCode != d.Rows[b].StudentCode {
			return d.Rows[a].StudentCode < d.Rows[b].StudentCode
		}
		return d.Rows[a].TestNumber < d.Rows[b].TestNumber
	})
}
