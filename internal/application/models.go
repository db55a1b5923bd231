package application

import "time"

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID string
}

// MeetingStatus is the lifecycle state of a meeting.
type MeetingStatus string

const (
	StatusScheduled MeetingStatus = "scheduled"
	StatusOngoing   MeetingStatus = "ongoing"
	StatusCompleted MeetingStatus = "completed"
	StatusCancelled MeetingStatus = "cancelled"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s MeetingStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusOngoing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether a meeting in status s may be moved to next. Status only moves
// forward along scheduled, ongoing, completed, or sideways to cancelled from a meeting that has
// not completed. Keeping the current status is always allowed.
func (s MeetingStatus) CanTransitionTo(next MeetingStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusScheduled:
		return next == StatusOngoing || next == StatusCompleted || next == StatusCancelled
	case StatusOngoing:
		return next == StatusCompleted || next == StatusCancelled
	}
	return false
}

// User is an account as exposed by the application services. Credentials are never part of it.
type User struct {
	ID        string
	Email     string
	Name      string
	Avatar    *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserCredentials pairs a user with the stored password hash.
type UserCredentials struct {
	User         User
	PasswordHash string
}

// Meeting is the meeting view returned by MeetingService.
//
// HostID is always populated. Host and Participants are populated only when the corresponding
// relation was loaded.
type Meeting struct {
	ID               string
	Title            string
	Description      *string
	CallID           string
	Status           MeetingStatus
	StartTime        *time.Time
	EndTime          *time.Time
	Duration         int
	ParticipantCount int
	HostID           string
	Host             *User
	Participants     []User
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsHost reports whether userID owns the meeting.
func (m Meeting) IsHost(userID string) bool {
	return userID != "" && (m.HostID == userID || (m.Host != nil && m.Host.ID == userID))
}

// HasParticipant reports whether userID is in the loaded participant set.
func (m Meeting) HasParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	for _, p := range m.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// Relations selects which related records a store join-fetches with a meeting.
type Relations struct {
	Host         bool
	Participants bool
}

// AllRelations loads both the host and the participant set.
var AllRelations = Relations{Host: true, Participants: true}

// MeetingCriteria identifies a single meeting by id or by call id.
type MeetingCriteria struct {
	ID     string
	CallID string
}

// MeetingQuery describes a listing of meetings ordered by creation time, most recent first.
type MeetingQuery struct {
	AccessibleTo string
	Limit        int
	Relations    Relations
}

// MeetingInput captures caller provided fields for a new meeting.
type MeetingInput struct {
	Title       string
	Description *string
	CallID      string
	Status      MeetingStatus
	StartTime   *time.Time
}

// MeetingPatch carries a partial update; nil fields are left untouched.
type MeetingPatch struct {
	Title       *string
	Description *string
	Status      *MeetingStatus
	StartTime   *time.Time
	EndTime     *time.Time
	Duration    *int
}

// CreateMeetingParams wraps the data required to create a meeting.
type CreateMeetingParams struct {
	Principal Principal
	Input     MeetingInput
}

// UpdateMeetingParams wraps the data required to patch a meeting.
type UpdateMeetingParams struct {
	Principal Principal
	MeetingID string
	Patch     MeetingPatch
}

// RegisterParams captures the data required to create an account.
type RegisterParams struct {
	Email    string
	Name     string
	Password string
	Avatar   *string
}

// UpdateProfileParams captures a partial profile update for the calling user.
type UpdateProfileParams struct {
	Principal Principal
	Name      *string
	Avatar    *string
	Password  *string
}

// LoginParams captures the data required to authenticate a user.
type LoginParams struct {
	Email    string
	Password string
}

// LoginResult captures the outcome of a successful login.
type LoginResult struct {
	User        User
	AccessToken string
	ExpiresAt   time.Time
}
