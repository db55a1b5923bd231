package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/meeting-service/internal/application"
)

var (
	errBadRequestBody   = errors.New("request body is malformed")
	errInvalidLimit     = errors.New("limit must be a positive integer")
	errMissingToken     = errors.New("authentication token is required")
	errInvalidSession   = errors.New("session is invalid, please sign in again")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	return responder{logger: defaultLogger(logger)}
}

func (r responder) writeJSON(c *gin.Context, status int, payload any) {
	if status == http.StatusNoContent || payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}

func (r responder) writeError(c *gin.Context, status int, err error) {
	message := statusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(c.Request.Context()).WarnContext(c.Request.Context(), "request failed", "status", status, "error", err)
	}
	r.writeJSON(c, status, errorResponse{Message: message})
}

func (r responder) handleServiceError(c *gin.Context, err error) {
	ctx := c.Request.Context()
	if err == nil {
		r.writeError(c, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var vErr *application.ValidationError
	switch {
	case errors.As(err, &vErr):
		r.writeJSON(c, http.StatusBadRequest, errorResponse{
			ErrorCode: "VALIDATION_FAILED",
			Message:   statusMessage(http.StatusBadRequest),
			Errors:    vErr.FieldErrors,
		})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(c, http.StatusNotFound, errorResponse{ErrorCode: "NOT_FOUND", Message: statusMessage(http.StatusNotFound)})
	case errors.Is(err, application.ErrForbidden):
		r.writeJSON(c, http.StatusForbidden, errorResponse{ErrorCode: "FORBIDDEN", Message: statusMessage(http.StatusForbidden)})
	case errors.Is(err, application.ErrConflict):
		r.writeJSON(c, http.StatusConflict, errorResponse{ErrorCode: "CONFLICT", Message: statusMessage(http.StatusConflict)})
	case errors.Is(err, application.ErrInvalidCredentials):
		r.writeJSON(c, http.StatusUnauthorized, errorResponse{ErrorCode: "INVALID_CREDENTIALS", Message: "invalid email or password"})
	case errors.Is(err, application.ErrUnauthenticated):
		r.writeJSON(c, http.StatusUnauthorized, errorResponse{ErrorCode: "UNAUTHENTICATED", Message: statusMessage(http.StatusUnauthorized)})
	default:
		r.loggerFor(ctx).ErrorContext(ctx, "unexpected service error", "error", err)
		r.writeJSON(c, http.StatusInternalServerError, errorResponse{Message: statusMessage(http.StatusInternalServerError)})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func statusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "request is invalid"
	case http.StatusUnauthorized:
		return "authentication required"
	case http.StatusForbidden:
		return "you do not have permission to perform this operation"
	case http.StatusNotFound:
		return "resource not found"
	case http.StatusConflict:
		return "request conflicts with the current state of the resource"
	default:
		return "internal server error"
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}
