package analytics

import (
	"testing"

	apperrors "github.com/SAP-F-2025/forecast-service/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAssessmentHeader(t *testing.T) {
	tests := []struct {
		header  string
		prefix  string
		number  int
		max     *float64
		wantErr bool
	}{
		{header: "fa1:50", prefix: "fa", number: 1, max: floatPtr(50)},
		{header: "FA12:37.5", prefix: "fa", number: 12, max: floatPtr(37.5)},
		{header: "quiz3", prefix: "quiz", number: 3},
		{header: "fa1:0", wantErr: true},
		{header: "fa:20", wantErr: true},
		{header: "fa0:20", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			col, err := ParseAssessmentHeader(tt.header)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrMalformedInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.prefix, col.Prefix)
			assert.Equal(t, tt.number, col.TestNumber)
			assert.Equal(t, tt.max, col.MaxScore)
		})
	}
}

func TestNewWideTable(t *testing.T) {
	table, err := NewWideTable(
		[]string{"LRN", "First_Name", "Last_Name", "Section", "Remarks", "fa1:20", "fa2:25"},
		[][]string{
			{"1001", "Ana", "Reyes", "Rizal", "ok", "18", "nan"},
			{"", "", "", "", "", "", ""},
			{"1002", "Ben", "Cruz", "Rizal", "", "12.5", "20"},
		},
	)
	require.NoError(t, err)
	require.Len(t, table.Columns, 2)
	require.Len(t, table.Rows, 2)

	ana := table.Rows[0]
	assert.Equal(t, "1001", ana.StudentCode)
	assert.Equal(t, "Reyes", ana.LastName)
	assert.Equal(t, "Rizal", ana.Section)
	assert.Equal(t, 18.0, *ana.Scores[1])
	assert.Nil(t, ana.Scores[2])

	col, ok := table.Column(2)
	require.True(t, ok)
	assert.Equal(t, 25.0, *col.MaxScore)
}

func TestNewWideTableErrors(t *testing.T) {
	_, err := NewWideTable([]string{"name", "fa1:10"}, nil)
	assert.ErrorIs(t, err, apperrors.ErrMalformedInput, "missing identifier column")

	_, err = NewWideTable([]string{"student_id", "remarks"}, nil)
	assert.ErrorIs(t, err, apperrors.ErrMalformedInput, "no assessment columns")

	_, err = NewWideTable([]string{"student_id", "fa1:x"}, nil)
	assert.ErrorIs(t, err, apperrors.ErrMalformedInput)

	_, err = NewWideTable([]string{"student_id", "fa1:10", "qz1:10"}, nil)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateRecord)

	_, err = NewWideTable([]string{"student_id", "fa1:10"}, [][]string{{"A", "ten"}})
	assert.ErrorIs(t, err, apperrors.ErrInvalidScore)
}
