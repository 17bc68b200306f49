package errors

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationErrorsMessage(t *testing.T) {
	var errs ValidationErrors
	assert.Equal(t, "validation failed", errs.Error())

	errs = errs.Add("score", "gte", "must be greater than or equal to 0", -1.0)
	assert.Equal(t, "validation failed: score must be greater than or equal to 0", errs.Error())

	errs = errs.Add("max_score", "gt", "must be greater than 0", 0.0)
	assert.Equal(t, "validation failed: 2 field errors", errs.Error())
	assert.Equal(t, []string{"score", "max_score"}, errs.Fields())
}

func TestSingleValidationError(t *testing.T) {
	err := NewValidationError("strategy", "is required", "")
	assert.Equal(t, "strategy is required", err.Error())
	assert.Empty(t, err.Rule)
}

type sample struct {
	Title  string  `validate:"required"`
	Weight float64 `validate:"gte=0,lte=1"`
	Status string  `validate:"oneof=Pass Fail"`
}

func TestToValidationErrors(t *testing.T) {
	err := validator.New().Struct(&sample{Weight: 2, Status: "Maybe"})
	require.Error(t, err)

	errs := ToValidationErrors(err)
	require.Len(t, errs, 3)
	assert.Equal(t, "is required", errs[0].Message)
	assert.Equal(t, "must be at most 1", errs[1].Message)
	assert.Equal(t, "lte", errs[1].Rule)
	assert.Equal(t, "must be one of: Pass, Fail", errs[2].Message)

	assert.Nil(t, ToValidationErrors(assert.AnError))
}
