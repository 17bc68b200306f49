package validator

import (
	"fmt"

	apperrors "github.com/SAP-F-2025/forecast-service/internal/errors"
	"github.com/SAP-F-2025/forecast-service/internal/models"
)

type (
	ValidationError  = apperrors.ValidationError
	ValidationErrors = apperrors.ValidationErrors
)

// BusinessRules is implemented by request types with cross-field rules.
type BusinessRules interface {
	BusinessRules() ValidationErrors
}

// BusinessValidator checks rules that struct tags cannot express.
type BusinessValidator struct{}

func NewBusinessValidator() *BusinessValidator {
	return &BusinessValidator{}
}

func (b *BusinessValidator) Validate(s interface{}) ValidationErrors {
	switch v := s.(type) {
	case *models.AssessmentRecord:
		return b.ValidateScore("score", v.Score, v.MaxScore)
	case *models.ActualPostTest:
		return b.ValidateScore("score", v.Score, v.MaxScore)
	case BusinessRules:
		return v.BusinessRules()
	}
	return nil
}

// ValidateScore requires 0 <= score <= maxScore and maxScore > 0.
func (b *BusinessValidator) ValidateScore(field string, score, maxScore float64) ValidationErrors {
	var errs ValidationErrors
	if maxScore <= 0 {
		errs = append(errs, ValidationError{Field: "max_score", Message: "must be greater than 0", Value: maxScore, Rule: "gt"})
		return errs
	}
	if score < 0 || score > maxScore {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be between 0 and %g", maxScore),
			Value:   score,
			Rule:    "score_range",
		})
	}
	return errs
}
