package errors

import (
	"errors"
	"fmt"
)

// Sentinel causes wrapped by the pipeline error types.
var (
	ErrNoRecords            = errors.New("no assessment records found")
	ErrInsufficientHistory  = errors.New("insufficient assessment history")
	ErrDuplicateRecord      = errors.New("duplicate assessment record")
	ErrInvalidScore         = errors.New("invalid score")
	ErrMalformedInput       = errors.New("malformed input")
	ErrNoConvergence        = errors.New("no time-series order converged")
	ErrModelArtifactMissing = errors.New("model artifact missing")
	ErrStudentNotFound      = errors.New("student not found")
	ErrTopicMappingNotFound = errors.New("topic mapping not found")
)

// DataError reports input that cannot be analyzed. It is fatal to a run.
type DataError struct {
	DocumentID uint
	Field      string
	Reason     string
	Err        error
}

func (e *DataError) Error() string {
	msg := fmt.Sprintf("data error (document %d)", e.DocumentID)
	if e.Field != "" {
		msg += " on " + e.Field
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataError) Unwrap() error { return e.Err }

// ModelFitError reports that a forecasting model could not be produced for a student.
type ModelFitError struct {
	DocumentID uint
	StudentID  string
	Model      string
	Err        error
}

func (e *ModelFitError) Error() string {
	if e.StudentID == "" {
		return fmt.Sprintf("model fit error (%s, document %d): %v", e.Model, e.DocumentID, e.Err)
	}
	return fmt.Sprintf("model fit error (%s, document %d, student %s): %v", e.Model, e.DocumentID, e.StudentID, e.Err)
}

func (e *ModelFitError) Unwrap() error { return e.Err }

// MissingEntityError reports a reference that could not be resolved.
type MissingEntityError struct {
	Entity string
	Key    string
	Err    error
}

func (e *MissingEntityError) Error() string {
	return fmt.Sprintf("missing %s %q: %v", e.Entity, e.Key, e.Err)
}

func (e *MissingEntityError) Unwrap() error { return e.Err }

// PersistenceError reports a failed write of derived rows.
type PersistenceError struct {
	Operation string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error during %s: %v", e.Operation, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func NewDataError(documentID uint, field, reason string, cause error) *DataError {
	return &DataError{DocumentID: documentID, Field: field, Reason: reason, Err: cause}
}

func NewModelFitError(documentID uint, studentID, model string, cause error) *ModelFitError {
	return &ModelFitError{DocumentID: documentID, StudentID: studentID, Model: model, Err: cause}
}

func NewMissingStudentError(code string) *MissingEntityError {
	return &MissingEntityError{Entity: "student", Key: code, Err: ErrStudentNotFound}
}

func NewMissingTopicMappingError(documentID uint, testNumber int) *MissingEntityError {
	return &MissingEntityError{
		Entity: "topic mapping",
		Key:    fmt.Sprintf("%d/%d", documentID, testNumber),
		Err:    ErrTopicMappingNotFound,
	}
}

func NewPersistenceError(operation string, cause error) *PersistenceError {
	return &PersistenceError{Operation: operation, Err: cause}
}

func IsDataError(err error) bool {
	var de *DataError
	return errors.As(err, &de)
}

func IsModelFitError(err error) bool {
	var me *ModelFitError
	return errors.As(err, &me)
}

func IsMissingEntity(err error) bool {
	var me *MissingEntityError
	return errors.As(err, &me)
}

func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// Classify returns a short status label for logging.
func Classify(err error) string {
	switch {
	case err == nil:
		return "success"
	case IsDataError(err):
		return "data_error"
	case IsModelFitError(err):
		return "model_fit_error"
	case IsMissingEntity(err):
		return "missing_entity"
	case IsPersistenceError(err):
		return "persistence_error"
	default:
		return "error"
	}
}
