package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/SAP-F-2025/forecast-service/internal/analytics"
	apperrors "github.com/SAP-F-2025/forecast-service/internal/errors"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

// DetectFormat picks a reader from the file extension.
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filename)
	}
}

// ReadFile parses an uploaded wide table, choosing the reader by filename.
func ReadFile(filename string, r io.Reader) (*analytics.WideTable, error) {
	format, err := DetectFormat(filename)
	if err != nil {
		return nil, err
	}
	if format == FormatXLSX {
		return ReadXLSX(r, "")
	}
	return ReadCSV(r)
}

// ReadCSV parses a one-row-per-student CSV with a header line.
func ReadCSV(r io.Reader) (*analytics.WideTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedInput, err)
	}
	return toTable(rows)
}

// ReadXLSX parses the named sheet, or the first sheet when sheet is empty.
func ReadXLSX(r io.Reader, sheet string) (*analytics.WideTable, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedInput, err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%w: workbook has no sheets", apperrors.ErrMalformedInput)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: sheet %q: %v", apperrors.ErrMalformedInput, sheet, err)
	}
	return toTable(rows)
}

func toTable(rows [][]string) (*analytics.WideTable, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: file is empty", apperrors.ErrNoRecords)
	}
	headers := rows[0]
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\ufeff")
	}
	table, err := analytics.NewWideTable(headers, rows[1:])
	if err != nil {
		return nil, err
	}
	if len(table.Rows) == 0 {
		return nil, fmt.Errorf("%w: file has no student rows", apperrors.ErrNoRecords)
	}
	return table, nil
}
