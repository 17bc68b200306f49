package services

import (
	"errors"
	"fmt"

	apperrors "github.com/SAP-F-2025/forecast-service/internal/errors"
	"github.com/SAP-F-2025/forecast-service/internal/repositories"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Document specific errors
	ErrDocumentNotFound     = errors.New("document not found")
	ErrAnalysisInProgress   = errors.New("analysis already running for document")
	ErrDocumentNotProcessed = errors.New("document has not been analyzed")

	// Evaluation specific errors
	ErrNoPostTests = errors.New("no actual post-test scores recorded")
)

// ===== CUSTOM ERROR TYPES =====

type ValidationErrors = apperrors.ValidationErrors

// Business rules reported through BusinessRuleError.
const (
	RulePostTestMaxScore        = "post_test_max_score"
	RulePostTestStudentEnrolled = "post_test_student_enrolled"
)

type BusinessRuleError struct {
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (bre *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violation (%s): %s", bre.Rule, bre.Message)
}

// ===== ERROR HELPERS =====

func NewBusinessRuleError(rule, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
		Context: context,
	}
}

// documentNotFound maps a repository miss onto ErrDocumentNotFound.
func documentNotFound(id uint, err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("document %d: %w", id, ErrDocumentNotFound)
	}
	return fmt.Errorf("failed to get document %d: %w", id, err)
}

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDocumentNotFound) ||
		errors.Is(err, repositories.ErrNotFound)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	var ve apperrors.ValidationErrors
	return errors.As(err, &ve)
}

func IsBusinessRule(err error) bool {
	var bre *BusinessRuleError
	return errors.As(err, &bre)
}

// IsConflict checks if error represents a resource conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrAnalysisInProgress) ||
		errors.Is(err, apperrors.ErrDuplicateRecord)
}
