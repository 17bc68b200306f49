package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError describes one rejected field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
	Rule    string `json:"rule,omitempty"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	switch len(ve) {
	case 0:
		return "validation failed"
	case 1:
		return "validation failed: " + ve[0].Field + " " + ve[0].Message
	}
	return fmt.Sprintf("validation failed: %d field errors", len(ve))
}

// Fields lists the rejected field names in order.
func (ve ValidationErrors) Fields() []string {
	out := make([]string, len(ve))
	for i, e := range ve {
		out[i] = e.Field
	}
	return out
}

// Add appends a rule violation and returns the extended slice.
func (ve ValidationErrors) Add(field, rule, message string, value any) ValidationErrors {
	return append(ve, ValidationError{Field: field, Message: message, Value: value, Rule: rule})
}

func NewValidationError(field, message string, value any) *ValidationError {
	return &ValidationError{Field: field, Message: message, Value: value}
}

// ToValidationErrors flattens go-playground field errors. Any other error
// yields an empty slice.
func ToValidationErrors(err error) ValidationErrors {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return nil
	}
	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = out.Add(fe.Field(), fe.Tag(), describeRule(fe), fe.Value())
	}
	return out
}

var ruleMessages = map[string]string{
	"required":          "is required",
	"min":               "must be at least %s",
	"max":               "must be at most %s",
	"gt":                "must be greater than %s",
	"gte":               "must be greater than or equal to %s",
	"lte":               "must be at most %s",
	"forecast_strategy": "must be a valid forecast strategy (time_series, hybrid, feature_regressor)",
	"blend_weight":      "must be between 0 and 1",
	"student_code":      "must be a non-empty student identifier without whitespace",
}

func describeRule(fe validator.FieldError) string {
	if fe.Tag() == "oneof" {
		return "must be one of: " + strings.Join(strings.Fields(fe.Param()), ", ")
	}
	if msg, ok := ruleMessages[fe.Tag()]; ok {
		if strings.Contains(msg, "%s") {
			return fmt.Sprintf(msg, fe.Param())
		}
		return msg
	}
	return fmt.Sprintf("failed rule '%s'", fe.Tag())
}
