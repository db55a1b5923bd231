// Package appstore adapts the persistence repositories to the interfaces consumed by the
// application services, converting rows to application models. Persistence errors are passed
// through unchanged; the services translate them.
package appstore

import (
	"context"
	"time"

	"github.com/example/meeting-service/internal/application"
	"github.com/example/meeting-service/internal/persistence"
)

// Store implements application.MeetingRepository, application.UserRepository and
// application.CredentialStore on top of a persistence backend.
type Store struct {
	users    persistence.UserRepository
	meetings persistence.MeetingRepository
}

var (
	_ application.MeetingRepository = (*Store)(nil)
	_ application.UserRepository    = (*Store)(nil)
	_ application.CredentialStore   = (*Store)(nil)
)

// New wraps the given repositories.
func New(users persistence.UserRepository, meetings persistence.MeetingRepository) *Store {
	return &Store{users: users, meetings: meetings}
}

// CreateUser stores the account and returns it as persisted.
func (s *Store) CreateUser(ctx context.Context, creds application.UserCredentials) (application.User, error) {
	row := persistence.User{
		ID:           creds.User.ID,
		Email:        creds.User.Email,
		Name:         creds.User.Name,
		PasswordHash: creds.PasswordHash,
		Avatar:       creds.User.Avatar,
		CreatedAt:    creds.User.CreatedAt,
		UpdatedAt:    creds.User.UpdatedAt,
	}
	if err := s.users.CreateUser(ctx, row); err != nil {
		return application.User{}, err
	}
	return s.GetUser(ctx, row.ID)
}

// GetUser returns the account with id.
func (s *Store) GetUser(ctx context.Context, id string) (application.User, error) {
	row, err := s.users.GetUser(ctx, id)
	if err != nil {
		return application.User{}, err
	}
	return toUser(row), nil
}

// GetUserCredentialsByEmail returns the account and its password hash.
func (s *Store) GetUserCredentialsByEmail(ctx context.Context, email string) (application.UserCredentials, error) {
	row, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return application.UserCredentials{}, err
	}
	return application.UserCredentials{User: toUser(row), PasswordHash: row.PasswordHash}, nil
}

// UpdateUser writes the profile fields, keeping the stored hash unless passwordHash is set.
func (s *Store) UpdateUser(ctx context.Context, user application.User, passwordHash *string) (application.User, error) {
	row, err := s.users.GetUser(ctx, user.ID)
	if err != nil {
		return application.User{}, err
	}

	row.Name = user.Name
	row.Avatar = user.Avatar
	row.UpdatedAt = user.UpdatedAt
	if passwordHash != nil {
		row.PasswordHash = *passwordHash
	}
	if err := s.users.UpdateUser(ctx, row); err != nil {
		return application.User{}, err
	}
	return s.GetUser(ctx, user.ID)
}

// DeleteUser removes the account.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return s.users.DeleteUser(ctx, id)
}

// FindMeeting returns the meeting matching criteria.
func (s *Store) FindMeeting(ctx context.Context, criteria application.MeetingCriteria, relations application.Relations) (application.Meeting, error) {
	row, err := s.meetings.FindMeeting(ctx,
		persistence.MeetingLookup{ID: criteria.ID, CallID: criteria.CallID},
		persistence.Relations(relations),
	)
	if err != nil {
		return application.Meeting{}, err
	}
	return toMeeting(row), nil
}

// ListMeetings returns meetings most recent first.
func (s *Store) ListMeetings(ctx context.Context, query application.MeetingQuery) ([]application.Meeting, error) {
	rows, err := s.meetings.ListMeetings(ctx, persistence.MeetingFilter{
		AccessibleTo: query.AccessibleTo,
		Limit:        query.Limit,
		Relations:    persistence.Relations(query.Relations),
	})
	if err != nil {
		return nil, err
	}
	meetings := make([]application.Meeting, 0, len(rows))
	for _, row := range rows {
		meetings = append(meetings, toMeeting(row))
	}
	return meetings, nil
}

// CreateMeeting stores the meeting and returns it with both relations loaded.
func (s *Store) CreateMeeting(ctx context.Context, meeting application.Meeting) (application.Meeting, error) {
	if err := s.meetings.CreateMeeting(ctx, toMeetingRow(meeting)); err != nil {
		return application.Meeting{}, err
	}
	return s.FindMeeting(ctx, application.MeetingCriteria{ID: meeting.ID}, application.AllRelations)
}

// UpdateMeeting writes the meeting and returns it with both relations loaded.
func (s *Store) UpdateMeeting(ctx context.Context, meeting application.Meeting) (application.Meeting, error) {
	if err := s.meetings.UpdateMeeting(ctx, toMeetingRow(meeting)); err != nil {
		return application.Meeting{}, err
	}
	return s.FindMeeting(ctx, application.MeetingCriteria{ID: meeting.ID}, application.AllRelations)
}

// DeleteMeeting removes the meeting.
func (s *Store) DeleteMeeting(ctx context.Context, id string) error {
	return s.meetings.DeleteMeeting(ctx, id)
}

func toUser(row persistence.User) application.User {
	return application.User{
		ID:        row.ID,
		Email:     row.Email,
		Name:      row.Name,
		Avatar:    row.Avatar,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func toMeeting(row persistence.Meeting) application.Meeting {
	meeting := application.Meeting{
		ID:               row.ID,
		Title:            row.Title,
		Description:      row.Description,
		CallID:           row.CallID,
		Status:           application.MeetingStatus(row.Status),
		StartTime:        row.StartTime,
		EndTime:          row.EndTime,
		Duration:         row.Duration,
		ParticipantCount: row.ParticipantCount,
		HostID:           row.HostID,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
	if row.Host != nil {
		host := toUser(*row.Host)
		meeting.Host = &host
	}
	if row.Participants != nil {
		meeting.Participants = make([]application.User, 0, len(row.Participants))
		for _, p := range row.Participants {
			meeting.Participants = append(meeting.Participants, toUser(p))
		}
	}
	return meeting
}

func toMeetingRow(meeting application.Meeting) persistence.Meeting {
	row := persistence.Meeting{
		ID:               meeting.ID,
		Title:            meeting.Title,
		Description:      meeting.Description,
		CallID:           meeting.CallID,
		Status:           string(meeting.Status),
		StartTime:        utcPtr(meeting.StartTime),
		EndTime:          utcPtr(meeting.EndTime),
		Duration:         meeting.Duration,
		ParticipantCount: meeting.ParticipantCount,
		HostID:           meeting.HostID,
		CreatedAt:        meeting.CreatedAt,
		UpdatedAt:        meeting.UpdatedAt,
	}
	for _, p := range meeting.Participants {
		row.Participants = append(row.Participants, persistence.User{ID: p.ID})
	}
	return row
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
