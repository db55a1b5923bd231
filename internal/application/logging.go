package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/meeting-service/internal/logging"
)

// OperationRecorder receives the outcome of every service operation.
type OperationRecorder interface {
	RecordOperation(service, operation, outcome string, elapsed time.Duration)
}

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

func recordOperation(recorder OperationRecorder, serviceName, operation string, started time.Time, err error) {
	if recorder == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = ErrorKind(err)
	}
	recorder.RecordOperation(serviceName, operation, outcome, time.Since(started))
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	return "unexpected"
}
