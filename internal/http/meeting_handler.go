package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/meeting-service/internal/application"
)

// DefaultHistoryLimit applies to GET /meetings/history when no limit is given.
const DefaultHistoryLimit = 10

type meetingService interface {
	ResolveByCallID(ctx context.Context, callID string) (application.Meeting, error)
	GetOrCreateByCallID(ctx context.Context, principal application.Principal, callID string, input application.MeetingInput) (application.Meeting, error)
	CreateMeeting(ctx context.Context, params application.CreateMeetingParams) (application.Meeting, error)
	ListAccessible(ctx context.Context, principal application.Principal) ([]application.Meeting, error)
	History(ctx context.Context, principal application.Principal, limit int) ([]application.Meeting, error)
	GetAuthorized(ctx context.Context, principal application.Principal, meetingID string) (application.Meeting, error)
	UpdateMeeting(ctx context.Context, params application.UpdateMeetingParams) (application.Meeting, error)
	JoinMeeting(ctx context.Context, principal application.Principal, meetingID string) (application.Meeting, error)
	StartMeeting(ctx context.Context, principal application.Principal, meetingID string) (application.Meeting, error)
	EndMeeting(ctx context.Context, principal application.Principal, meetingID string) (application.Meeting, error)
	DeleteMeeting(ctx context.Context, principal application.Principal, meetingID string) error
}

type lifecycleFunc func(ctx context.Context, principal application.Principal, meetingID string) (application.Meeting, error)

// MeetingHandler serves the meeting endpoints, including the call id composites used by clients
// that only know the call URL.
type MeetingHandler struct {
	service   meetingService
	responder responder
	logger    *slog.Logger
}

// NewMeetingHandler builds a MeetingHandler; a nil logger falls back to slog.Default.
func NewMeetingHandler(service meetingService, logger *slog.Logger) *MeetingHandler {
	base := defaultLogger(logger)
	return &MeetingHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *MeetingHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "MeetingHandler", operation, attrs...)
}

// Create handles POST /meetings.
func (h *MeetingHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()
	principal := principalFrom(c)

	var req meetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log(ctx, "Create", "principal_id", principal.UserID, "error_kind", "bad_request").WarnContext(ctx, "failed to decode meeting request", "error", err)
		h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
		return
	}

	meeting, err := h.service.CreateMeeting(ctx, application.CreateMeetingParams{Principal: principal, Input: req.toInput()})
	if err != nil {
		h.responder.handleServiceError(c, err)
		return
	}
	h.responder.writeJSON(c, http.StatusCreated, toMeetingDTO(meeting))
}

// List handles GET /meetings.
func (h *MeetingHandler) List(c *gin.Context) {
	meetings, err := h.service.ListAccessible(c.Request.Context(), principalFrom(c))
	if err != nil {
		h.responder.handleServiceError(c, err)
		return
	}
	h.responder.writeJSON(c, http.StatusOK, toMeetingDTOs(meetings))
}

// History handles GET /meetings/history?limit=n.
func (h *MeetingHandler) History(c *gin.Context) {
	limit, err := parseLimit(c.Query("limit"), DefaultHistoryLimit)
	if err != nil {
		h.responder.writeError(c, http.StatusBadRequest, err)
		return
	}

	meetings, err := h.service.History(c.Request.Context(), principalFrom(c), limit)
	if err != nil {
		h.responder.handleServiceError(c, err)
		return
	}
	h.responder.writeJSON(c, http.StatusOK, toMeetingDTOs(meetings))
}

// Get handles GET /meetings/:id.
func (h *MeetingHandler) Get(c *gin.Context) {
	meeting, err := h.service.GetAuthorized(c.Request.Context(), principalFrom(c), c.Param("id"))
	if err != nil {
		h.responder.handleServiceError(c, err)
		return
	}
	h.responder.writeJSON(c, http.StatusOK, toMeetingDTO(meeting))
}

// Update handles PATCH /meetings/:id.
func (h *MeetingHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()
	principal := principalFrom(c)
	meetingID := c.Param("id")

	var req meetingPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log(ctx, "Update", "principal_id", principal.UserID, "meeting_id", meetingID, "error_kind", "bad_request").WarnContext(ctx, "failed to decode meeting patch", "error", err)
		h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
		return
	}

	meeting, err := h.service.UpdateMeeting(ctx, application.UpdateMeetingParams{
		Principal: principal,
		MeetingID: meetingID,
		Patch:     req.toPatch(),
	})
	if err != nil {
		h.responder.handleServiceError(c, err)
		return
	}
	h.responder.writeJSON(c, http.StatusOK, toMeetingDTO(meeting))
}

// Delete handles DELETE /meetings/:id.
func (h *MeetingHandler) Delete(c *gin.Context) {
	if err := h.service.DeleteMeeting(c.Request.Context(), principalFrom(c), c.Param("id")); err != nil {
		h.responder.handleServiceError(c, err)
		return
	}
	h.responder.writeJSON(c, http.StatusOK, messageResponse{Message: "Meeting deleted successfully"})
}

// Join handles POST /meetings/:id/join.
func (h *MeetingHandler) Join(c *gin.Context) { h.lifecycle(c, h.service.JoinMeeting) }

// Start handles POST /meetings/:id/start.
func (h *MeetingHandler) Start(c *gin.Context) { h.lifecycle(c, h.service.StartMeeting) }

// End handles POST /meetings/:id/end.
func (h *MeetingHandler) End(c *gin.Context) { h.lifecycle(c, h.service.EndMeeting) }

func (h *MeetingHandler) lifecycle(c *gin.Context, op lifecycleFunc) {
	meeting, err := op(c.Request.Context(), principalFrom(c), c.Param("id"))
	if err != nil {
		h.responder.handleServiceError(c, err)
		return
	}
	h.responder.writeJSON(c, http.StatusOK, toMeetingDTO(meeting))
}

// GetByCall handles GET /meetings/by-call/:callId. An unknown call id is not an error; the
// response body is JSON null instead.
func (h *MeetingHandler) GetByCall(c *gin.Context) {
	ctx := c.Request.Context()
	principal := principalFrom(c)

	resolved, err := h.service.ResolveByCallID(ctx, c.Param("callId"))
	if errors.Is(err, application.ErrNotFound) {
		c.JSON(http.StatusOK, nil)
		return
	}
	if err != nil {
		h.responder.handleServiceError(c, err)
		return
	}

	meeting, err := h.service.GetAuthorized(ctx, principal, resolved.ID)
	if err != nil {
		h.responder.handleServiceError(c, err)
		return
	}
	h.responder.writeJSON(c, http.StatusOK, toMeetingDTO(meeting))
}

// EnsureByCall handles POST /meetings/by-call/:callId. The body is optional and only used when
// the meeting has to be created.
func (h *MeetingHandler) EnsureByCall(c *gin.Context) {
	ctx := c.Request.Context()
	principal := principalFrom(c)
	callID := c.Param("callId")

	var req meetingRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.log(ctx, "EnsureByCall", "principal_id", principal.UserID, "call_id", callID, "error_kind", "bad_request").WarnContext(ctx, "failed to decode meeting request", "error", err)
		h.responder.writeError(c, http.StatusBadRequest, errBadRequestBody)
		return
	}

	meeting, err := h.service.GetOrCreateByCallID(ctx, principal, callID, req.toInput())
	if err != nil {
		h.responder.handleServiceError(c, err)
		return
	}
	h.responder.writeJSON(c, http.StatusOK, toMeetingDTO(meeting))
}

// JoinByCall handles POST /meetings/by-call/:callId/join, creating the meeting first when the
// call id is unknown.
func (h *MeetingHandler) JoinByCall(c *gin.Context) { h.lifecycleByCall(c, "JoinByCall", h.service.JoinMeeting) }

// StartByCall handles POST /meetings/by-call/:callId/start.
func (h *MeetingHandler) StartByCall(c *gin.Context) {
	h.lifecycleByCall(c, "StartByCall", h.service.StartMeeting)
}

// EndByCall handles POST /meetings/by-call/:callId/end.
func (h *MeetingHandler) EndByCall(c *gin.Context) { h.lifecycleByCall(c, "EndByCall", h.service.EndMeeting) }

func (h *MeetingHandler) lifecycleByCall(c *gin.Context, operation string, op lifecycleFunc) {
	ctx := c.Request.Context()
	principal := principalFrom(c)
	callID := c.Param("callId")

	ensured, err := h.service.GetOrCreateByCallID(ctx, principal, callID, application.MeetingInput{})
	if err != nil {
		h.responder.handleServiceError(c, err)
		return
	}

	meeting, err := op(ctx, principal, ensured.ID)
	if err != nil {
		h.log(ctx, operation, "principal_id", principal.UserID, "call_id", callID, "meeting_id", ensured.ID).
			WarnContext(ctx, "meeting operation rejected", "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(c, err)
		return
	}
	h.responder.writeJSON(c, http.StatusOK, toMeetingDTO(meeting))
}
