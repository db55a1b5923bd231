package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/meeting-service/internal/application"
)

type loginService interface {
	Login(ctx context.Context, params application.LoginParams) (application.LoginResult, error)
}

type profileReader interface {
	Profile(ctx context.Context, principal application.Principal) (application.User, error)
}

// AuthHandler serves login and the token introspection endpoint.
type AuthHandler struct {
	service   loginService
	profiles  profileReader
	responder responder
	logger    *slog.Logger
}

// NewAuthHandler builds an AuthHandler. profiles backs the token introspection endpoint.
func NewAuthHandler(service loginService, profiles profileReader, logger *slog.Logger) *AuthHandler {
	base := defaultLogger(logger)
	return &AuthHandler{service: service, profiles: profiles, responder: newResponder(base), logger: base}
}

func (h *AuthHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "AuthHandler", operation, attrs...)
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	ctx := c.Request.Context()

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log(ctx, "Login", "error_kind", "bad_request").WarnContext(ctx, "failed to decode login request", "error", err)
		h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
		return
	}

	result, err := h.service.Login(ctx, application.LoginParams{Email: req.Email, Password: req.Password})
	if err != nil {
		h.log(ctx, "Login").WarnContext(ctx, "login rejected", "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(c, err)
		return
	}

	h.responder.writeJSON(c, http.StatusOK, loginResponse{
		AccessToken: result.AccessToken,
		ExpiresAt:   result.ExpiresAt,
		User:        toUserDTO(result.User),
	})
}

// Profile handles POST /auth/profile and returns the caller the token was issued to.
func (h *AuthHandler) Profile(c *gin.Context) {
	ctx := c.Request.Context()
	principal := principalFrom(c)

	user, err := h.profiles.Profile(ctx, principal)
	if err != nil {
		h.log(ctx, "Profile", "principal_id", principal.UserID).WarnContext(ctx, "profile lookup failed", "error", err)
		h.responder.handleServiceError(c, err)
		return
	}
	h.responder.writeJSON(c, http.StatusOK, toUserDTO(user))
}
