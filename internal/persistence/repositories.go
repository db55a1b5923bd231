package persistence

import "context"

// UserRepository exposes CRUD operations for users.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	UpdateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	DeleteUser(ctx context.Context, id string) error
}

// Relations selects which related records are join-fetched with a meeting.
type Relations struct {
	Host         bool
	Participants bool
}

// MeetingLookup identifies a single meeting either by id or by call id. When both are set,
// both must match.
type MeetingLookup struct {
	ID     string
	CallID string
}

// MeetingFilter narrows meeting listings. Results are always ordered by creation time,
// most recent first.
type MeetingFilter struct {
	// AccessibleTo keeps meetings hosted by or joined by the user.
	AccessibleTo string
	// Limit caps the number of rows; zero means unlimited.
	Limit     int
	Relations Relations
}

// MeetingRepository stores meetings and their participant sets.
//
// CreateMeeting returns ErrDuplicate when the call id is already taken. UpdateMeeting writes the
// meeting columns and adds any participants not yet stored; membership is never removed through
// UpdateMeeting, and the stored participant count is recomputed from the membership rows in the
// same transaction.
type MeetingRepository interface {
	CreateMeeting(ctx context.Context, meeting Meeting) error
	UpdateMeeting(ctx context.Context, meeting Meeting) error
	FindMeeting(ctx context.Context, lookup MeetingLookup, relations Relations) (Meeting, error)
	ListMeetings(ctx context.Context, filter MeetingFilter) ([]Meeting, error)
	DeleteMeeting(ctx context.Context, id string) error
}
