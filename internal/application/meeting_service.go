package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/example/meeting-service/internal/persistence"
)

const (
	defaultHistoryLimit    = 10
	maxCallIDLength        = 255
	maxGetOrCreateAttempts = 3
)

// MeetingRepository captures the persistence operations needed by the meeting service.
//
// Implementations return ErrNotFound for missing rows and ErrConflict when a call id is already
// taken. UpdateMeeting adds participants that are not yet stored and never removes membership.
type MeetingRepository interface {
	FindMeeting(ctx context.Context, criteria MeetingCriteria, relations Relations) (Meeting, error)
	ListMeetings(ctx context.Context, query MeetingQuery) ([]Meeting, error)
	CreateMeeting(ctx context.Context, meeting Meeting) (Meeting, error)
	UpdateMeeting(ctx context.Context, meeting Meeting) (Meeting, error)
	DeleteMeeting(ctx context.Context, id string) error
}

// UserDirectory resolves user ids to accounts.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (User, error)
}

// MeetingService owns meeting lifecycle transitions and host/participant authorization.
type MeetingService struct {
	meetings    MeetingRepository
	users       UserDirectory
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
	recorder    OperationRecorder
}

// NewMeetingService constructs a meeting service with the provided dependencies.
func NewMeetingService(meetings MeetingRepository, users UserDirectory, idGenerator func() string, now func() time.Time) *MeetingService {
	return NewMeetingServiceWithLogger(meetings, users, idGenerator, now, nil)
}

// NewMeetingServiceWithLogger constructs a meeting service with a specified logger.
func NewMeetingServiceWithLogger(meetings MeetingRepository, users UserDirectory, idGenerator func() string, now func() time.Time, logger *slog.Logger) *MeetingService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &MeetingService{
		meetings:    meetings,
		users:       users,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// WithRecorder attaches an operation recorder and returns the service for chaining.
func (s *MeetingService) WithRecorder(recorder OperationRecorder) *MeetingService {
	if s != nil {
		s.recorder = recorder
	}
	return s
}

func (s *MeetingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "MeetingService", operation, attrs...)
}

func (s *MeetingService) finish(ctx context.Context, logger *slog.Logger, operation string, started time.Time, err error, failure, success string, attrs ...any) {
	recordOperation(s.recorder, "MeetingService", operation, started, err)
	if err != nil {
		logger.ErrorContext(ctx, failure, "error", err, "error_kind", ErrorKind(err))
		return
	}
	logger.With(attrs...).InfoContext(ctx, success)
}

func (s *MeetingService) ready() error {
	if s == nil {
		return fmt.Errorf("MeetingService is nil")
	}
	if s.meetings == nil {
		return fmt.Errorf("meeting repository not configured")
	}
	return nil
}

// ResolveByCallID returns the meeting bound to callID with host and participants loaded.
func (s *MeetingService) ResolveByCallID(ctx context.Context, callID string) (meeting Meeting, err error) {
	if err = s.ready(); err != nil {
		return
	}

	callID = strings.TrimSpace(callID)
	logger := s.loggerWith(ctx, "ResolveByCallID", "call_id", callID)
	started := time.Now()
	defer func() {
		s.finish(ctx, logger, "ResolveByCallID", started, err, "failed to resolve meeting", "meeting resolved", "meeting_id", meeting.ID)
	}()

	if vErr := validateCallID(callID); vErr.HasErrors() {
		err = vErr
		return
	}

	meeting, err = s.meetings.FindMeeting(ctx, MeetingCriteria{CallID: callID}, AllRelations)
	err = mapMeetingRepoError(err)
	return
}

// GetOrCreateByCallID returns the meeting bound to callID, creating it with the principal as host
// when none exists. Supplied input is ignored when the meeting already exists.
func (s *MeetingService) GetOrCreateByCallID(ctx context.Context, principal Principal, callID string, input MeetingInput) (meeting Meeting, err error) {
	if err = s.ready(); err != nil {
		return
	}

	callID = strings.TrimSpace(callID)
	logger := s.loggerWith(ctx, "GetOrCreateByCallID",
		"principal_id", principal.UserID,
		"call_id", callID,
	)
	started := time.Now()
	created := false
	defer func() {
		s.finish(ctx, logger, "GetOrCreateByCallID", started, err, "failed to get or create meeting", "meeting resolved",
			"meeting_id", meeting.ID, "created", created)
	}()

	if principal.UserID == "" {
		err = ErrUnauthenticated
		return
	}

	input.CallID = callID
	if vErr := validateCallID(callID); vErr.HasErrors() {
		err = vErr
		return
	}

	var host *User
	for attempt := 1; attempt <= maxGetOrCreateAttempts; attempt++ {
		meeting, err = s.meetings.FindMeeting(ctx, MeetingCriteria{CallID: callID}, AllRelations)
		if err == nil {
			return
		}
		if err = mapMeetingRepoError(err); !errors.Is(err, ErrNotFound) {
			return
		}

		// input only matters once the call id is known to be unused
		if vErr := validateMeetingInput(input); vErr.HasErrors() {
			err = vErr
			return
		}

		if host == nil {
			var resolved User
			resolved, err = s.resolveUser(ctx, principal.UserID)
			if err != nil {
				return
			}
			host = &resolved
		}

		meeting, err = s.insertMeeting(ctx, *host, input)
		if err == nil {
			created = true
			return
		}
		if !errors.Is(err, ErrConflict) {
			return
		}
		logger.DebugContext(ctx, "call id claimed concurrently, retrying lookup", "attempt", attempt)
	}

	meeting = Meeting{}
	err = ErrConflict
	return
}

// CreateMeeting persists a new meeting hosted by the principal.
func (s *MeetingService) CreateMeeting(ctx context.Context, params CreateMeetingParams) (meeting Meeting, err error) {
	if err = s.ready(); err != nil {
		return
	}

	params.Input.CallID = strings.TrimSpace(params.Input.CallID)
	logger := s.loggerWith(ctx, "CreateMeeting",
		"principal_id", params.Principal.UserID,
		"call_id", params.Input.CallID,
	)
	started := time.Now()
	defer func() {
		s.finish(ctx, logger, "CreateMeeting", started, err, "failed to create meeting", "meeting created", "meeting_id", meeting.ID)
	}()

	if params.Principal.UserID == "" {
		err = ErrUnauthenticated
		return
	}

	if vErr := validateMeetingInput(params.Input); vErr.HasErrors() {
		err = vErr
		return
	}

	var host User
	host, err = s.resolveUser(ctx, params.Principal.UserID)
	if err != nil {
		return
	}

	meeting, err = s.insertMeeting(ctx, host, params.Input)
	return
}

// ListAccessible returns every meeting the principal hosts or participates in, most recent first.
func (s *MeetingService) ListAccessible(ctx context.Context, principal Principal) (meetings []Meeting, err error) {
	return s.list(ctx, "ListAccessible", principal, 0)
}

// History returns the principal's most recent accessible meetings. A non-positive limit selects
// the default of 10.
func (s *MeetingService) History(ctx context.Context, principal Principal, limit int) (meetings []Meeting, err error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.list(ctx, "History", principal, limit)
}

func (s *MeetingService) list(ctx context.Context, operation string, principal Principal, limit int) (meetings []Meeting, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, operation,
		"principal_id", principal.UserID,
		"limit", limit,
	)
	started := time.Now()
	defer func() {
		s.finish(ctx, logger, operation, started, err, "failed to list meetings", "meetings listed", "result_count", len(meetings))
	}()

	if principal.UserID == "" {
		err = ErrUnauthenticated
		return
	}

	meetings, err = s.meetings.ListMeetings(ctx, MeetingQuery{
		AccessibleTo: principal.UserID,
		Limit:        limit,
		Relations:    AllRelations,
	})
	if err != nil {
		meetings = nil
		err = mapMeetingRepoError(err)
		return
	}
	if meetings == nil {
		meetings = []Meeting{}
	}
	return
}

// GetAuthorized returns the meeting when the principal is its host or a participant.
func (s *MeetingService) GetAuthorized(ctx context.Context, principal Principal, meetingID string) (meeting Meeting, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "GetAuthorized",
		"principal_id", principal.UserID,
		"meeting_id", meetingID,
	)
	started := time.Now()
	defer func() {
		s.finish(ctx, logger, "GetAuthorized", started, err, "failed to load meeting", "meeting loaded")
	}()

	meeting, err = s.authorized(ctx, principal, meetingID)
	return
}

// UpdateMeeting applies a partial patch to a meeting owned by the principal.
func (s *MeetingService) UpdateMeeting(ctx context.Context, params UpdateMeetingParams) (meeting Meeting, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "UpdateMeeting",
		"principal_id", params.Principal.UserID,
		"meeting_id", params.MeetingID,
	)
	started := time.Now()
	defer func() {
		s.finish(ctx, logger, "UpdateMeeting", started, err, "failed to update meeting", "meeting updated", "status", meeting.Status)
	}()

	var existing Meeting
	existing, err = s.hostOnly(ctx, params.Principal, params.MeetingID)
	if err != nil {
		return
	}

	if vErr := validateMeetingPatch(existing.Status, params.Patch); vErr.HasErrors() {
		err = vErr
		return
	}

	meeting, err = s.save(ctx, applyMeetingPatch(existing, params.Patch))
	return
}

// JoinMeeting adds the principal to the meeting's participants. Joining twice is a no-op.
func (s *MeetingService) JoinMeeting(ctx context.Context, principal Principal, meetingID string) (meeting Meeting, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "JoinMeeting",
		"principal_id", principal.UserID,
		"meeting_id", meetingID,
	)
	started := time.Now()
	defer func() {
		s.finish(ctx, logger, "JoinMeeting", started, err, "failed to join meeting", "meeting joined", "participant_count", meeting.ParticipantCount)
	}()

	if principal.UserID == "" {
		err = ErrUnauthenticated
		return
	}
	if vErr := validateMeetingID(meetingID); vErr.HasErrors() {
		err = vErr
		return
	}

	var existing Meeting
	existing, err = s.meetings.FindMeeting(ctx, MeetingCriteria{ID: meetingID}, Relations{Participants: true})
	if err != nil {
		err = mapMeetingRepoError(err)
		return
	}

	var user User
	user, err = s.resolveUser(ctx, principal.UserID)
	if err != nil {
		return
	}

	if !existing.HasParticipant(user.ID) {
		existing.Participants = append(existing.Participants, user)
		existing.ParticipantCount = len(existing.Participants)
		if _, err = s.save(ctx, existing); err != nil {
			return
		}
	}

	meeting, err = s.authorized(ctx, principal, meetingID)
	return
}

// StartMeeting marks the meeting ongoing and stamps its start time. Only the host may start it.
func (s *MeetingService) StartMeeting(ctx context.Context, principal Principal, meetingID string) (meeting Meeting, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "StartMeeting",
		"principal_id", principal.UserID,
		"meeting_id", meetingID,
	)
	started := time.Now()
	defer func() {
		s.finish(ctx, logger, "StartMeeting", started, err, "failed to start meeting", "meeting started")
	}()

	var existing Meeting
	existing, err = s.hostOnly(ctx, principal, meetingID)
	if err != nil {
		return
	}

	now := s.now()
	existing.Status = StatusOngoing
	existing.StartTime = &now

	meeting, err = s.save(ctx, existing)
	return
}

// EndMeeting marks the meeting completed, stamps its end time and derives the duration in whole
// minutes from the start time. Only the host may end it.
func (s *MeetingService) EndMeeting(ctx context.Context, principal Principal, meetingID string) (meeting Meeting, err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "EndMeeting",
		"principal_id", principal.UserID,
		"meeting_id", meetingID,
	)
	started := time.Now()
	defer func() {
		s.finish(ctx, logger, "EndMeeting", started, err, "failed to end meeting", "meeting ended", "duration_minutes", meeting.Duration)
	}()

	var existing Meeting
	existing, err = s.hostOnly(ctx, principal, meetingID)
	if err != nil {
		return
	}

	now := s.now()
	existing.Status = StatusCompleted
	existing.EndTime = &now
	if existing.StartTime != nil {
		existing.Duration = durationMinutes(*existing.StartTime, now)
	}

	meeting, err = s.save(ctx, existing)
	return
}

// DeleteMeeting removes the meeting and its memberships. Only the host may delete it.
func (s *MeetingService) DeleteMeeting(ctx context.Context, principal Principal, meetingID string) (err error) {
	if err = s.ready(); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "DeleteMeeting",
		"principal_id", principal.UserID,
		"meeting_id", meetingID,
	)
	started := time.Now()
	defer func() {
		s.finish(ctx, logger, "DeleteMeeting", started, err, "failed to delete meeting", "meeting deleted")
	}()

	if _, err = s.hostOnly(ctx, principal, meetingID); err != nil {
		return
	}

	err = mapMeetingRepoError(s.meetings.DeleteMeeting(ctx, meetingID))
	return
}

// authorized loads the meeting with all relations and requires the principal to be host or
// participant.
func (s *MeetingService) authorized(ctx context.Context, principal Principal, meetingID string) (Meeting, error) {
	if principal.UserID == "" {
		return Meeting{}, ErrUnauthenticated
	}
	if vErr := validateMeetingID(meetingID); vErr.HasErrors() {
		return Meeting{}, vErr
	}

	meeting, err := s.meetings.FindMeeting(ctx, MeetingCriteria{ID: meetingID}, AllRelations)
	if err != nil {
		return Meeting{}, mapMeetingRepoError(err)
	}
	if !meeting.IsHost(principal.UserID) && !meeting.HasParticipant(principal.UserID) {
		return Meeting{}, ErrForbidden
	}
	return meeting, nil
}

func (s *MeetingService) hostOnly(ctx context.Context, principal Principal, meetingID string) (Meeting, error) {
	meeting, err := s.authorized(ctx, principal, meetingID)
	if err != nil {
		return Meeting{}, err
	}
	if !meeting.IsHost(principal.UserID) {
		return Meeting{}, ErrForbidden
	}
	return meeting, nil
}

func (s *MeetingService) resolveUser(ctx context.Context, userID string) (User, error) {
	if s.users == nil {
		return User{}, fmt.Errorf("user directory not configured")
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return User{}, mapMeetingRepoError(err)
	}
	return user, nil
}

func (s *MeetingService) insertMeeting(ctx context.Context, host User, input MeetingInput) (Meeting, error) {
	now := s.now()
	meeting := Meeting{
		ID:               s.idGenerator(),
		Title:            strings.TrimSpace(input.Title),
		Description:      normalizeOptionalString(input.Description),
		CallID:           input.CallID,
		Status:           input.Status,
		StartTime:        input.StartTime,
		ParticipantCount: 1,
		HostID:           host.ID,
		Host:             &host,
		Participants:     []User{host},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if meeting.Title == "" {
		meeting.Title = input.CallID
	}
	if meeting.Status == "" {
		meeting.Status = StatusScheduled
	}

	persisted, err := s.meetings.CreateMeeting(ctx, meeting)
	if err != nil {
		return Meeting{}, mapMeetingRepoError(err)
	}
	return persisted, nil
}

func (s *MeetingService) save(ctx context.Context, meeting Meeting) (Meeting, error) {
	meeting.UpdatedAt = s.now()
	persisted, err := s.meetings.UpdateMeeting(ctx, meeting)
	if err != nil {
		return Meeting{}, mapMeetingRepoError(err)
	}
	return persisted, nil
}

func applyMeetingPatch(meeting Meeting, patch MeetingPatch) Meeting {
	if patch.Title != nil {
		meeting.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		meeting.Description = normalizeOptionalString(patch.Description)
	}
	if patch.Status != nil {
		meeting.Status = *patch.Status
	}
	if patch.StartTime != nil {
		start := *patch.StartTime
		meeting.StartTime = &start
	}
	if patch.EndTime != nil {
		end := *patch.EndTime
		meeting.EndTime = &end
	}
	if patch.Duration != nil {
		meeting.Duration = *patch.Duration
	}
	return meeting
}

// durationMinutes rounds the elapsed time to whole minutes, half away from zero. Negative spans
// yield zero.
func durationMinutes(start, end time.Time) int {
	minutes := math.Round(end.Sub(start).Minutes())
	if minutes < 0 {
		return 0
	}
	return int(minutes)
}

func validateCallID(callID string) *ValidationError {
	vErr := &ValidationError{}
	switch {
	case strings.TrimSpace(callID) == "":
		vErr.add("callId", "call id is required")
	case len(callID) > maxCallIDLength:
		vErr.add("callId", fmt.Sprintf("call id must be at most %d characters", maxCallIDLength))
	}
	return vErr
}

func validateMeetingID(meetingID string) *ValidationError {
	vErr := &ValidationError{}
	if strings.TrimSpace(meetingID) == "" {
		vErr.add("meetingId", "meeting id is required")
	}
	return vErr
}

func validateMeetingInput(input MeetingInput) *ValidationError {
	vErr := validateCallID(input.CallID)
	if input.Status != "" && !input.Status.Valid() {
		vErr.add("status", "status is invalid")
	}
	return vErr
}

func validateMeetingPatch(current MeetingStatus, patch MeetingPatch) *ValidationError {
	vErr := &ValidationError{}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		vErr.add("title", "title must not be blank")
	}
	if patch.Status != nil {
		switch {
		case !patch.Status.Valid():
			vErr.add("status", "status is invalid")
		case !current.CanTransitionTo(*patch.Status):
			vErr.add("status", fmt.Sprintf("status cannot change from %s to %s", current, *patch.Status))
		}
	}
	if patch.Duration != nil && *patch.Duration < 0 {
		vErr.add("duration", "duration must not be negative")
	}
	return vErr
}

func mapMeetingRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, persistence.ErrDuplicate):
		return ErrConflict
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		// the host or a participant vanished between lookup and write
		return ErrNotFound
	case errors.Is(err, persistence.ErrConstraintViolation):
		return newValidationError("meeting", "meeting violates a storage constraint")
	}
	return err
}

func normalizeOptionalString(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
