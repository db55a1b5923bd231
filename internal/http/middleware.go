package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/example/meeting-service/internal/application"
	"github.com/example/meeting-service/internal/auth"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Authenticator resolves bearer tokens and browser session cookies into principals.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (application.Principal, error)
	AuthenticateSession(ctx context.Context, token string) (application.Principal, error)
	SessionsEnabled() bool
}

// RequestRecorder receives one observation per completed request.
type RequestRecorder interface {
	RecordRequest(method, route string, status int, elapsed time.Duration)
}

// RequireAuth rejects requests without a valid bearer token, or a NextAuth session cookie when
// sessions are enabled, and stores the resolved principal in the request context.
func RequireAuth(authenticator Authenticator, logger *slog.Logger) gin.HandlerFunc {
	responder := newResponder(logger)

	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var (
			principal application.Principal
			err       error
		)
		if token := bearerToken(c.Request); token != "" {
			principal, err = authenticator.Authenticate(ctx, token)
		} else if cookie := sessionCookie(c.Request); cookie != "" && authenticator.SessionsEnabled() {
			principal, err = authenticator.AuthenticateSession(ctx, cookie)
		} else {
			responder.writeError(c, http.StatusUnauthorized, errMissingToken)
			c.Abort()
			return
		}

		if err != nil {
			switch {
			case errors.Is(err, application.ErrInvalidCredentials), errors.Is(err, application.ErrUnauthenticated):
				responder.writeError(c, http.StatusUnauthorized, errInvalidSession)
			default:
				responder.handleServiceError(c, err)
			}
			c.Abort()
			return
		}

		ctx = ContextWithPrincipal(ctx, principal)
		if logger := LoggerFromContext(ctx); logger != nil {
			ctx = ContextWithLogger(ctx, logger.With("user_id", principal.UserID))
		}
		withRequestContext(c, ctx)
		c.Next()
	}
}

const (
	corsAllowMethods = "GET, POST, PATCH, DELETE, OPTIONS"
	corsAllowHeaders = "Authorization, Content-Type, " + RequestIDHeader
	corsMaxAge       = "600"
)

// CORS lets browsers on the allowed origins call the API with credentials. "*" allows any
// origin; the request origin is echoed back because credentialed responses cannot carry a
// wildcard. Preflight requests from allowed origins are answered with 204 and never reach
// routing.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	anyOrigin := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "*" {
			anyOrigin = true
			continue
		}
		if origin != "" {
			allowed[strings.ToLower(origin)] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		header := c.Writer.Header()
		header.Add("Vary", "Origin")
		if _, ok := allowed[strings.ToLower(origin)]; !ok && !anyOrigin {
			c.Next()
			return
		}

		header.Set("Access-Control-Allow-Origin", origin)
		header.Set("Access-Control-Allow-Credentials", "true")
		header.Set("Access-Control-Expose-Headers", RequestIDHeader)

		if c.Request.Method != http.MethodOptions {
			c.Next()
			return
		}
		header.Set("Access-Control-Allow-Methods", corsAllowMethods)
		header.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		header.Set("Access-Control-Max-Age", corsMaxAge)
		c.AbortWithStatus(http.StatusNoContent)
	}
}

// RequestLogger assigns a request id, attaches a request scoped logger and logs the outcome of
// every request.
func RequestLogger(base *slog.Logger) gin.HandlerFunc {
	base = defaultLogger(base)

	return func(c *gin.Context) {
		start := time.Now()
		requestID := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Writer.Header().Set(RequestIDHeader, requestID)

		logger := base.With("request_id", requestID)
		withRequestContext(c, ContextWithLogger(c.Request.Context(), logger))

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		ctx := c.Request.Context()
		switch {
		case status >= http.StatusInternalServerError:
			logger.ErrorContext(ctx, "request completed", attrs...)
		case status >= http.StatusBadRequest:
			logger.WarnContext(ctx, "request completed", attrs...)
		default:
			logger.InfoContext(ctx, "request completed", attrs...)
		}
	}
}

// RequestMetrics reports every request to recorder, labelled by route template.
func RequestMetrics(recorder RequestRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		if recorder == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		recorder.RecordRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

// Recovery converts panics into 500 responses and logs them with the request logger.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	responder := newResponder(logger)

	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		ctx := c.Request.Context()
		responder.loggerFor(ctx).ErrorContext(ctx, "panic recovered", "panic", recovered)
		responder.writeJSON(c, http.StatusInternalServerError, errorResponse{Message: statusMessage(http.StatusInternalServerError)})
		c.Abort()
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func sessionCookie(r *http.Request) string {
	for _, name := range auth.SessionCookieNames {
		if cookie, err := r.Cookie(name); err == nil && cookie.Value != "" {
			return cookie.Value
		}
	}
	return ""
}

func parseLimit(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errInvalidLimit
	}
	return limit, nil
}
