package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPipelineErrorsUnwrap(t *testing.T) {
	dataErr := NewDataError(7, "records", "", ErrNoRecords)
	wrapped := fmt.Errorf("preprocess: %w", dataErr)

	assert.True(t, IsDataError(wrapped))
	assert.True(t, errors.Is(wrapped, ErrNoRecords))
	assert.False(t, IsModelFitError(wrapped))
	assert.Equal(t, "data error (document 7) on records: no assessment records found", dataErr.Error())
}

func TestModelFitErrorMessage(t *testing.T) {
	err := NewModelFitError(3, "S-1", "arima", ErrNoConvergence)
	assert.Contains(t, err.Error(), "student S-1")
	assert.True(t, errors.Is(err, ErrNoConvergence))

	docLevel := NewModelFitError(3, "", "feature_regressor", ErrModelArtifactMissing)
	assert.NotContains(t, docLevel.Error(), "student")
}

func TestMissingEntity(t *testing.T) {
	err := NewMissingStudentError("1001")
	assert.True(t, IsMissingEntity(err))
	assert.True(t, errors.Is(err, ErrStudentNotFound))

	mapping := NewMissingTopicMappingError(4, 2)
	assert.Equal(t, "4/2", mapping.Key)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "success"},
		{NewDataError(1, "", "bad", nil), "data_error"},
		{NewModelFitError(1, "s", "arima", ErrNoConvergence), "model_fit_error"},
		{NewMissingStudentError("x"), "missing_entity"},
		{NewPersistenceError("upsert forecast", errors.New("boom")), "persistence_error"},
		{errors.New("other"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err))
	}
}
