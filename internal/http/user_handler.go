package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/meeting-service/internal/application"
)

type userService interface {
	Register(ctx context.Context, params application.RegisterParams) (application.User, error)
	Profile(ctx context.Context, principal application.Principal) (application.User, error)
	UpdateProfile(ctx context.Context, params application.UpdateProfileParams) (application.User, error)
	DeleteProfile(ctx context.Context, principal application.Principal) error
}

// UserHandler serves registration and the caller's own profile.
type UserHandler struct {
	service   userService
	responder responder
	logger    *slog.Logger
}

// NewUserHandler builds a UserHandler; a nil logger falls back to slog.Default.
func NewUserHandler(service userService, logger *slog.Logger) *UserHandler {
	base := defaultLogger(logger)
	return &UserHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *UserHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "UserHandler", operation, attrs...)
}

// Register handles POST /users.
func (h *UserHandler) Register(c *gin.Context) {
	ctx := c.Request.Context()

	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log(ctx, "Register", "error_kind", "bad_request").WarnContext(ctx, "failed to decode registration", "error", err)
		h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
		return
	}

	user, err := h.service.Register(ctx, application.RegisterParams{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Avatar:   req.Avatar,
	})
	if err != nil {
		h.responder.handleServiceError(c, err)
		return
	}

	h.log(ctx, "Register", "user_id", user.ID).InfoContext(ctx, "user registered")
	h.responder.writeJSON(c, http.StatusCreated, toUserDTO(user))
}

// Profile handles GET /users/profile.
func (h *UserHandler) Profile(c *gin.Context) {
	user, err := h.service.Profile(c.Request.Context(), principalFrom(c))
	if err != nil {
		h.responder.handleServiceError(c, err)
		return
	}
	h.responder.writeJSON(c, http.StatusOK, toUserDTO(user))
}

// UpdateProfile handles PATCH /users/profile.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	ctx := c.Request.Context()
	principal := principalFrom(c)

	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log(ctx, "UpdateProfile", "principal_id", principal.UserID, "error_kind", "bad_request").WarnContext(ctx, "failed to decode profile update", "error", err)
		h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
		return
	}

	user, err := h.service.UpdateProfile(ctx, application.UpdateProfileParams{
		Principal: principal,
		Name:      req.Name,
		Avatar:    req.Avatar,
		Password:  req.Password,
	})
	if err != nil {
		h.responder.handleServiceError(c, err)
		return
	}
	h.responder.writeJSON(c, http.StatusOK, toUserDTO(user))
}

// DeleteProfile handles DELETE /users/profile.
func (h *UserHandler) DeleteProfile(c *gin.Context) {
	ctx := c.Request.Context()
	principal := principalFrom(c)

	if err := h.service.DeleteProfile(ctx, principal); err != nil {
		h.responder.handleServiceError(c, err)
		return
	}

	h.log(ctx, "DeleteProfile", "principal_id", principal.UserID).InfoContext(ctx, "user deleted")
	h.responder.writeJSON(c, http.StatusOK, messageResponse{Message: "User deleted successfully"})
}
