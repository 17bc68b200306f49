package analytics

import (
	"fmt"
	"strconv"
	"time"

	apperrors "github.com/SAP-F-2025/forecast-service/internal/errors"
	"github.com/SAP-F-2025/forecast-service/internal/models"
)

type PreprocessOptions struct {
	MinAssessments  int
	DefaultMaxScore float64
	// ImputeMissing fills missing wide-table cells with the column mean; otherwise they are rejected.
	ImputeMissing bool
	Now           func() time.Time
}

func DefaultPreprocessOptions() PreprocessOptions {
	return PreprocessOptions{
		MinAssessments:  DefaultMinAssessments,
		DefaultMaxScore: DefaultMaxScore,
		ImputeMissing:   true,
		Now:             time.Now,
	}
}

// Preprocessor assembles normalized long-format datasets.
type Preprocessor struct {
	opts PreprocessOptions
}

func NewPreprocessor(opts PreprocessOptions) *Preprocessor {
	if opts.MinAssessments <= 0 {
		opts.MinAssessments = DefaultMinAssessments
	}
	if opts.DefaultMaxScore <= 0 {
		opts.DefaultMaxScore = DefaultMaxScore
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Preprocessor{opts: opts}
}

type mappingIndex map[int]models.TopicMapping

func indexMappings(mappings []models.TopicMapping) mappingIndex {
	idx := make(mappingIndex, len(mappings))
	for _, m := range mappings {
		idx[m.TestNumber] = m
	}
	return idx
}

// FromRecords builds a dataset from persisted assessment records.
func (p *Preprocessor) FromRecords(doc *models.AnalysisDocument, records []models.AssessmentRecord, mappings []models.TopicMapping) (*Dataset, error) {
	if len(records) == 0 {
		return nil, apperrors.NewDataError(doc.ID, "records", "", apperrors.ErrNoRecords)
	}

	idx := indexMappings(mappings)
	start := p.anchor(doc)
	ds := &Dataset{DocumentID: doc.ID, Rows: make([]Row, 0, len(records))}
	seen := make(map[string]struct{}, len(records))

	for _, rec := range records {
		code := strconv.FormatUint(uint64(rec.StudentID), 10)
		if rec.Student != nil && rec.Student.Code != "" {
			code = rec.Student.Code
		}
		key := fmt.Sprintf("%s/%d", code, rec.TestNumber)
		if _, dup := seen[key]; dup {
			return nil, apperrors.NewDataError(doc.ID, "records",
				fmt.Sprintf("student %s test %d", code, rec.TestNumber), apperrors.ErrDuplicateRecord)
		}
		seen[key] = struct{}{}

		maxScore := p.resolveMaxScore(rec.MaxScore, nil, idx, rec.TestNumber)
		row, err := p.buildRow(doc.ID, code, rec.TestNumber, rec.Score, maxScore, rec.Date, start, idx)
		if err != nil {
			return nil, err
		}
		row.StudentID = rec.StudentID
		row.Imputed = rec.Imputed
		if rec.TopicMappingID != nil {
			row.TopicMappingID = rec.TopicMappingID
		}
		ds.Rows = append(ds.Rows, row)
	}

	ds.sortRows()
	if err := p.checkHistory(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// FromWide builds a dataset from a wide table. Student ids are left unresolved.
func (p *Preprocessor) FromWide(doc *models.AnalysisDocument, table *WideTable, mappings []models.TopicMapping) (*Dataset, error) {
	if table == nil || len(table.Rows) == 0 {
		return nil, apperrors.NewDataError(doc.ID, "rows", "", apperrors.ErrNoRecords)
	}

	idx := indexMappings(mappings)
	start := p.anchor(doc)

	means := make(map[int]float64, len(table.Columns))
	for _, col := range table.Columns {
		var sum float64
		var n int
		for _, r := range table.Rows {
			if v := r.Scores[col.TestNumber]; v != nil {
				sum += *v
				n++
			}
		}
		if n == 0 {
			return nil, apperrors.NewDataError(doc.ID, col.Header, "column has no scores", apperrors.ErrMalformedInput)
		}
		means[col.TestNumber] = sum / float64(n)
	}

	ds := &Dataset{DocumentID: doc.ID}
	seen := make(map[string]struct{}, len(table.Rows))
	for _, r := range table.Rows {
		if _, dup := seen[r.StudentCode]; dup {
			return nil, apperrors.NewDataError(doc.ID, "student_id", "student "+r.StudentCode, apperrors.ErrDuplicateRecord)
		}
		seen[r.StudentCode] = struct{}{}

		for _, col := range table.Columns {
			score := r.Scores[col.TestNumber]
			imputed := false
			if score == nil {
				if !p.opts.ImputeMissing {
					return nil, apperrors.NewDataError(doc.ID, col.Header,
						"missing score for student "+r.StudentCode, apperrors.ErrInvalidScore)
				}
				mean := means[col.TestNumber]
				score = &mean
				imputed = true
			}
			maxScore := p.resolveMaxScore(0, col.MaxScore, idx, col.TestNumber)
			row, err := p.buildRow(doc.ID, r.StudentCode, col.TestNumber, *score, maxScore, time.Time{}, start, idx)
			if err != nil {
				return nil, err
			}
			row.Imputed = imputed
			ds.Rows = append(ds.Rows, row)
		}
	}

	ds.sortRows()
	if err := p.checkHistory(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

func (p *Preprocessor) anchor(doc *models.AnalysisDocument) time.Time {
	if start := doc.StartDate(); !start.IsZero() {
		return start
	}
	return p.opts.Now().UTC().Truncate(24 * time.Hour)
}

// resolveMaxScore applies record, header, mapping, topic, default precedence.
func (p *Preprocessor) resolveMaxScore(recordMax float64, headerMax *float64, idx mappingIndex, testNumber int) float64 {
	if recordMax > 0 {
		return recordMax
	}
	if headerMax != nil && *headerMax > 0 {
		return *headerMax
	}
	if m, ok := idx[testNumber]; ok {
		if v, ok := m.ResolvedMaxScore(); ok {
			return v
		}
	}
	return p.opts.DefaultMaxScore
}

func (p *Preprocessor) buildRow(docID uint, code string, testNumber int, score, maxScore float64, date, start time.Time, idx mappingIndex) (Row, error) {
	field := fmt.Sprintf("test %d", testNumber)
	if testNumber < 1 {
		return Row{}, apperrors.NewDataError(docID, field, "test number must be positive", apperrors.ErrMalformedInput)
	}
	if maxScore <= 0 {
		return Row{}, apperrors.NewDataError(docID, field, "max score must be positive", apperrors.ErrInvalidScore)
	}
	if score < 0 || score > maxScore {
		return Row{}, apperrors.NewDataError(docID, field,
			fmt.Sprintf("student %s score %.2f outside [0, %.2f]", code, score, maxScore), apperrors.ErrInvalidScore)
	}
	if date.IsZero() {
		date = AssessmentDate(start, testNumber)
	}

	row := Row{
		StudentCode:                code,
		TestNumber:                 testNumber,
		Score:                      score,
		MaxScore:                   maxScore,
		Date:                       date,
		NormalizedScore:            score / maxScore,
		NormalizedPassingThreshold: PassingThreshold(maxScore) / maxScore,
	}
	if m, ok := idx[testNumber]; ok {
		id := m.ID
		topic := m.TopicID
		row.TopicMappingID = &id
		row.TopicID = &topic
	}
	return row, nil
}

func (p *Preprocessor) checkHistory(ds *Dataset) error {
	counts := make(map[string]int)
	for _, r := range ds.Rows {
		counts[r.StudentCode]++
	}
	for _, code := range ds.StudentCodes() {
		if counts[code] < p.opts.MinAssessments {
			return apperrors.NewDataError(ds.DocumentID, "assessments",
				fmt.Sprintf("student %s has %d of %d required assessments", code, counts[code], p.opts.MinAssessments),
				apperrors.ErrInsufficientHistory)
		}
	}
	return nil
}

// AssessmentDate returns the inferred weekly date of test N.
func AssessmentDate(start time.Time, testNumber int) time.Time {
	return start.Add(time.Duration(testNumber-1) * AssessmentInterval)
}
