package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	apperrors "github.com/SAP-F-2025/forecast-service/internal/errors"
)

// ServiceLogger provides structured logging for pipeline operations
type ServiceLogger struct {
	logger *slog.Logger
	config LogConfig
}

type LogConfig struct {
	Service     string
	Component   string
	EnableDebug bool
}

func NewServiceLogger(logger *slog.Logger, config LogConfig) *ServiceLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &ServiceLogger{
		logger: logger.With("service", config.Service, "component", config.Component),
		config: config,
	}
}

func (l *ServiceLogger) Logger() *slog.Logger {
	return l.logger
}

// ===== OPERATION LOGGING =====

// LogOperation logs the outcome of one operation on a document with a classified status.
func (l *ServiceLogger) LogOperation(ctx context.Context, operation string, userID string, documentID uint, duration time.Duration, err error) {
	level := slog.LevelInfo
	status := apperrors.Classify(err)

	if err != nil {
		switch {
		case IsValidation(err) || IsBusinessRule(err):
			level = slog.LevelWarn
			status = "validation_error"
		case IsConflict(err):
			level = slog.LevelWarn
			status = "conflict"
		case IsNotFound(err):
			status = "not_found"
		case apperrors.IsDataError(err), apperrors.IsMissingEntity(err):
			level = slog.LevelWarn
		default:
			level = slog.LevelError
		}
	}

	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("user_id", userID),
		slog.Uint64("document_id", uint64(documentID)),
		slog.String("status", status),
		slog.Duration("duration", duration),
	}

	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		attrs = append(attrs, errorDetails(err)...)

		if level == slog.LevelError {
			if pc, file, line, ok := runtime.Caller(2); ok {
				if fn := runtime.FuncForPC(pc); fn != nil {
					attrs = append(attrs,
						slog.String("caller_func", fn.Name()),
						slog.String("caller_file", file),
						slog.Int("caller_line", line),
					)
				}
			}
		}
	}

	l.logger.LogAttrs(ctx, level, fmt.Sprintf("%s operation %s", operation, status), attrs...)
}

func errorDetails(err error) []slog.Attr {
	var (
		de *apperrors.DataError
		me *apperrors.ModelFitError
		ee *apperrors.MissingEntityError
		pe *apperrors.PersistenceError
		ve apperrors.ValidationErrors
	)
	switch {
	case errors.As(err, &de):
		return []slog.Attr{slog.String("field", de.Field), slog.String("reason", de.Reason)}
	case errors.As(err, &me):
		return []slog.Attr{slog.String("student_id", me.StudentID), slog.String("model", me.Model)}
	case errors.As(err, &ee):
		return []slog.Attr{slog.String("entity", ee.Entity), slog.String("entity_key", ee.Key)}
	case errors.As(err, &pe):
		return []slog.Attr{slog.String("persistence_operation", pe.Operation)}
	case errors.As(err, &ve):
		return []slog.Attr{slog.Int("validation_errors_count", len(ve))}
	}
	return nil
}

// LogModelFitFailure records a per-student fit failure that did not abort the run.
func (l *ServiceLogger) LogModelFitFailure(ctx context.Context, documentID uint, studentID string, candidates []string, err error) {
	l.logger.LogAttrs(ctx, slog.LevelWarn, "Skipping student after model fit failure",
		slog.Uint64("document_id", uint64(documentID)),
		slog.String("student_id", studentID),
		slog.Any("order_candidates", candidates),
		slog.String("error", err.Error()),
	)
}

func (l *ServiceLogger) LogStep(ctx context.Context, documentID uint, step string, started time.Time, args ...any) {
	if !l.config.EnableDebug {
		return
	}
	attrs := append([]any{"document_id", documentID, "step", step, "duration", time.Since(started)}, args...)
	l.logger.DebugContext(ctx, "Pipeline step finished", attrs...)
}

func (l *ServiceLogger) LogRecovery(ctx context.Context, operation string, documentID uint, recovered interface{}, stack []byte) {
	l.logger.LogAttrs(ctx, slog.LevelError, "Panic recovered",
		slog.String("operation", operation),
		slog.Uint64("document_id", uint64(documentID)),
		slog.Any("panic_value", recovered),
		slog.String("stack_trace", string(stack)),
	)
}

// ===== MIDDLEWARE AND HELPERS =====

// ContextualLogger wraps an operation with automatic outcome logging
type ContextualLogger struct {
	logger    *ServiceLogger
	operation string
	userID    string
	startTime time.Time
	ctx       context.Context
}

func (l *ServiceLogger) WithOperation(ctx context.Context, operation string, userID string) *ContextualLogger {
	return &ContextualLogger{
		logger:    l,
		operation: operation,
		userID:    userID,
		startTime: time.Now(),
		ctx:       ctx,
	}
}

func (cl *ContextualLogger) LogResult(documentID uint, err error) {
	cl.logger.LogOperation(cl.ctx, cl.operation, cl.userID, documentID, time.Since(cl.startTime), err)
}

func (cl *ContextualLogger) Elapsed() time.Duration {
	return time.Since(cl.startTime)
}
