package analytics

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/SAP-F-2025/forecast-service/internal/errors"
)

var assessmentHeaderPattern = regexp.MustCompile(`^([A-Za-z_]+?)(\d+)(?::\s*(\d+(?:\.\d+)?))?$`)

var identityHeaders = map[string]string{
	"student_id": "code",
	"studentid":  "code",
	"student":    "code",
	"lrn":        "code",
	"id":         "code",
	"first_name": "first_name",
	"firstname":  "first_name",
	"last_name":  "last_name",
	"lastname":   "last_name",
	"section":    "section",
}

// WideColumn describes one `<prefix><N>:<max>` assessment column.
type WideColumn struct {
	Header     string
	Prefix     string
	TestNumber int
	MaxScore   *float64
}

type WideRow struct {
	StudentCode string
	FirstName   string
	LastName    string
	Section     string
	// Scores keyed by test number; nil marks a missing cell.
	Scores map[int]*float64
}

// WideTable is the one-row-per-student input format.
type WideTable struct {
	Columns []WideColumn
	Rows    []WideRow
}

// ParseAssessmentHeader parses headers like "fa3:50" or "FA3".
func ParseAssessmentHeader(header string) (WideColumn, error) {
	h := strings.TrimSpace(header)
	m := assessmentHeaderPattern.FindStringSubmatch(h)
	if m == nil {
		return WideColumn{}, fmt.Errorf("%w: unparsable assessment header %q", apperrors.ErrMalformedInput, header)
	}
	n, err := strconv.Atoi(m[2])
	if err != nil || n < 1 {
		return WideColumn{}, fmt.Errorf("%w: invalid test number in header %q", apperrors.ErrMalformedInput, header)
	}
	col := WideColumn{Header: h, Prefix: strings.ToLower(m[1]), TestNumber: n}
	if m[3] != "" {
		maxScore, err := strconv.ParseFloat(m[3], 64)
		if err != nil || maxScore <= 0 {
			return WideColumn{}, fmt.Errorf("%w: invalid max score in header %q", apperrors.ErrMalformedInput, header)
		}
		col.MaxScore = &maxScore
	}
	return col, nil
}

// NewWideTable builds a WideTable from raw header and cell text.
func NewWideTable(headers []string, cells [][]string) (*WideTable, error) {
	identity := make(map[string]int)
	columnAt := make(map[int]WideColumn)
	table := &WideTable{}
	seenTests := make(map[int]string)

	for i, raw := range headers {
		key := strings.ToLower(strings.TrimSpace(raw))
		if key == "" {
			continue
		}
		if role, ok := identityHeaders[key]; ok {
			if _, dup := identity[role]; !dup {
				identity[role] = i
			}
			continue
		}
		if !assessmentHeaderPattern.MatchString(strings.TrimSpace(raw)) {
			if strings.Contains(raw, ":") {
				_, err := ParseAssessmentHeader(raw)
				return nil, err
			}
			// Unrelated metadata column.
			continue
		}
		col, err := ParseAssessmentHeader(raw)
		if err != nil {
			return nil, err
		}
		if prev, dup := seenTests[col.TestNumber]; dup {
			return nil, fmt.Errorf("%w: headers %q and %q share test number %d",
				apperrors.ErrDuplicateRecord, prev, col.Header, col.TestNumber)
		}
		seenTests[col.TestNumber] = col.Header
		columnAt[i] = col
		table.Columns = append(table.Columns, col)
	}

	codeIdx, ok := identity["code"]
	if !ok {
		return nil, fmt.Errorf("%w: missing student identifier column", apperrors.ErrMalformedInput)
	}
	if len(table.Columns) == 0 {
		return nil, fmt.Errorf("%w: no assessment columns", apperrors.ErrMalformedInput)
	}

	cell := func(row []string, idx int) string {
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}
	lookup := func(row []string, role string) string {
		idx, ok := identity[role]
		if !ok {
			return ""
		}
		return cell(row, idx)
	}

	for lineNo, row := range cells {
		code := cell(row, codeIdx)
		if code == "" {
			if isBlankRow(row) {
				continue
			}
			return nil, fmt.Errorf("%w: row %d has no student identifier", apperrors.ErrMalformedInput, lineNo+1)
		}
		wr := WideRow{
			StudentCode: code,
			FirstName:   lookup(row, "first_name"),
			LastName:    lookup(row, "last_name"),
			Section:     lookup(row, "section"),
			Scores:      make(map[int]*float64, len(table.Columns)),
		}
		for idx, col := range columnAt {
			text := cell(row, idx)
			if text == "" || strings.EqualFold(text, "nan") || text == "-" {
				wr.Scores[col.TestNumber] = nil
				continue
			}
			v, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %q: %q is not a number",
					apperrors.ErrInvalidScore, lineNo+1, col.Header, text)
			}
			wr.Scores[col.TestNumber] = &v
		}
		table.Rows = append(table.Rows, wr)
	}

	return table, nil
}

// Column returns the column for a test number.
func (t *WideTable) Column(testNumber int) (WideColumn, bool) {
	for _, c := range t.Columns {
		if c.TestNumber == testNumber {
			return c, true
		}
	}
	return WideColumn{}, false
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
