package testfixtures

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/meeting-service/internal/application"
)

type meetingRecord struct {
	meeting      application.Meeting
	participants []string
}

// MemoryStore is an in-memory implementation of the application repositories. It enforces the
// same uniqueness, cascade and participant count rules as the SQL stores.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]application.UserCredentials
	meetings map[string]*meetingRecord
	byCallID map[string]string
	failures map[string]error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]application.UserCredentials),
		meetings: make(map[string]*meetingRecord),
		byCallID: make(map[string]string),
		failures: make(map[string]error),
	}
}

// SeedUsers inserts the fixtures as accounts.
func (s *MemoryStore) SeedUsers(fixtures ...UserFixture) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range fixtures {
		s.users[f.ID] = f.Credentials()
	}
	return s
}

// FailNext makes the next call of the named method return err.
func (s *MemoryStore) FailNext(method string, err error) {
	s.mu.Lock()
	s.failures[method] = err
	s.mu.Unlock()
}

func (s *MemoryStore) injected(method string) error {
	err, ok := s.failures[method]
	if ok {
		delete(s.failures, method)
	}
	return err
}

// MeetingCount returns the number of stored meetings.
func (s *MemoryStore) MeetingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.meetings)
}

// ---------------------------- users ----------------------------

// CreateUser stores a new account; emails are unique.
func (s *MemoryStore) CreateUser(ctx context.Context, creds application.UserCredentials) (application.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("CreateUser"); err != nil {
		return application.User{}, err
	}
	if _, ok := s.users[creds.User.ID]; ok {
		return application.User{}, application.ErrConflict
	}
	for _, existing := range s.users {
		if existing.User.Email == creds.User.Email {
			return application.User{}, application.ErrConflict
		}
	}
	creds.User.Avatar = copyStringPtr(creds.User.Avatar)
	s.users[creds.User.ID] = creds
	return creds.User, nil
}

// GetUser returns the account with id.
func (s *MemoryStore) GetUser(ctx context.Context, id string) (application.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("GetUser"); err != nil {
		return application.User{}, err
	}
	creds, ok := s.users[id]
	if !ok {
		return application.User{}, application.ErrNotFound
	}
	return cloneUser(creds.User), nil
}

// GetUserCredentialsByEmail returns the account and password hash for email.
func (s *MemoryStore) GetUserCredentialsByEmail(ctx context.Context, email string) (application.UserCredentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, creds := range s.users {
		if creds.User.Email == email {
			creds.User = cloneUser(creds.User)
			return creds, nil
		}
	}
	return application.UserCredentials{}, application.ErrNotFound
}

// UpdateUser writes profile fields and optionally the password hash.
func (s *MemoryStore) UpdateUser(ctx context.Context, user application.User, passwordHash *string) (application.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	creds, ok := s.users[user.ID]
	if !ok {
		return application.User{}, application.ErrNotFound
	}
	creds.User.Name = user.Name
	creds.User.Avatar = copyStringPtr(user.Avatar)
	creds.User.UpdatedAt = user.UpdatedAt
	if passwordHash != nil {
		creds.PasswordHash = *passwordHash
	}
	s.users[user.ID] = creds
	return cloneUser(creds.User), nil
}

// DeleteUser removes the account, the meetings it hosts and its memberships.
func (s *MemoryStore) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return application.ErrNotFound
	}
	delete(s.users, id)

	for meetingID, record := range s.meetings {
		if record.meeting.HostID == id {
			delete(s.byCallID, record.meeting.CallID)
			delete(s.meetings, meetingID)
			continue
		}
		kept := record.participants[:0]
		for _, participant := range record.participants {
			if participant != id {
				kept = append(kept, participant)
			}
		}
		record.participants = kept
		record.meeting.ParticipantCount = len(kept)
	}
	return nil
}

// PasswordHash returns the stored hash for id, for assertions.
func (s *MemoryStore) PasswordHash(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id].PasswordHash
}

// ---------------------------- meetings ----------------------------

// FindMeeting returns the meeting matching criteria with the requested relations.
func (s *MemoryStore) FindMeeting(ctx context.Context, criteria application.MeetingCriteria, relations application.Relations) (application.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("FindMeeting"); err != nil {
		return application.Meeting{}, err
	}

	id := criteria.ID
	if id == "" {
		id = s.byCallID[criteria.CallID]
	}
	record, ok := s.meetings[id]
	if !ok || (criteria.CallID != "" && record.meeting.CallID != criteria.CallID) {
		return application.Meeting{}, application.ErrNotFound
	}
	return s.hydrate(record, relations), nil
}

// ListMeetings returns meetings ordered by creation time, most recent first.
func (s *MemoryStore) ListMeetings(ctx context.Context, query application.MeetingQuery) ([]application.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("ListMeetings"); err != nil {
		return nil, err
	}

	records := make([]*meetingRecord, 0, len(s.meetings))
	for _, record := range s.meetings {
		if query.AccessibleTo != "" && !accessible(record, query.AccessibleTo) {
			continue
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i].meeting, records[j].meeting
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID > b.ID
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	if query.Limit > 0 && len(records) > query.Limit {
		records = records[:query.Limit]
	}

	out := make([]application.Meeting, 0, len(records))
	for _, record := range records {
		out = append(out, s.hydrate(record, query.Relations))
	}
	return out, nil
}

// CreateMeeting stores a new meeting with its initial participants.
func (s *MemoryStore) CreateMeeting(ctx context.Context, meeting application.Meeting) (application.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("CreateMeeting"); err != nil {
		return application.Meeting{}, err
	}

	if _, taken := s.byCallID[meeting.CallID]; taken {
		return application.Meeting{}, application.ErrConflict
	}
	if _, taken := s.meetings[meeting.ID]; taken {
		return application.Meeting{}, application.ErrConflict
	}
	if _, ok := s.users[meeting.HostID]; !ok {
		return application.Meeting{}, application.ErrNotFound
	}

	record := &meetingRecord{meeting: stripRelations(meeting)}
	if err := s.addParticipants(record, meeting.Participants); err != nil {
		return application.Meeting{}, err
	}
	s.meetings[meeting.ID] = record
	s.byCallID[meeting.CallID] = meeting.ID
	return s.hydrate(record, application.AllRelations), nil
}

// UpdateMeeting writes the meeting columns and adds participants not yet stored.
func (s *MemoryStore) UpdateMeeting(ctx context.Context, meeting application.Meeting) (application.Meeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("UpdateMeeting"); err != nil {
		return application.Meeting{}, err
	}

	record, ok := s.meetings[meeting.ID]
	if !ok {
		return application.Meeting{}, application.ErrNotFound
	}

	updated := stripRelations(meeting)
	updated.CallID = record.meeting.CallID
	updated.HostID = record.meeting.HostID
	updated.CreatedAt = record.meeting.CreatedAt

	participants := append([]string(nil), record.participants...)
	candidate := &meetingRecord{meeting: updated, participants: participants}
	if err := s.addParticipants(candidate, meeting.Participants); err != nil {
		return application.Meeting{}, err
	}
	*record = *candidate
	return s.hydrate(record, application.AllRelations), nil
}

// DeleteMeeting removes the meeting and its memberships.
func (s *MemoryStore) DeleteMeeting(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("DeleteMeeting"); err != nil {
		return err
	}
	record, ok := s.meetings[id]
	if !ok {
		return application.ErrNotFound
	}
	delete(s.byCallID, record.meeting.CallID)
	delete(s.meetings, id)
	return nil
}

func (s *MemoryStore) addParticipants(record *meetingRecord, users []application.User) error {
	for _, user := range users {
		if _, ok := s.users[user.ID]; !ok {
			return application.ErrNotFound
		}
		if containsID(record.participants, user.ID) {
			continue
		}
		record.participants = append(record.participants, user.ID)
	}
	record.meeting.ParticipantCount = len(record.participants)
	return nil
}

func (s *MemoryStore) hydrate(record *meetingRecord, relations application.Relations) application.Meeting {
	meeting := record.meeting
	meeting.Description = copyStringPtr(meeting.Description)
	meeting.StartTime = copyTimePtr(meeting.StartTime)
	meeting.EndTime = copyTimePtr(meeting.EndTime)
	if relations.Host {
		if creds, ok := s.users[meeting.HostID]; ok {
			host := cloneUser(creds.User)
			meeting.Host = &host
		}
	}
	if relations.Participants {
		meeting.Participants = make([]application.User, 0, len(record.participants))
		for _, id := range record.participants {
			if creds, ok := s.users[id]; ok {
				meeting.Participants = append(meeting.Participants, cloneUser(creds.User))
			}
		}
	}
	return meeting
}

func accessible(record *meetingRecord, userID string) bool {
	return record.meeting.HostID == userID || containsID(record.participants, userID)
}

func stripRelations(meeting application.Meeting) application.Meeting {
	meeting.Host = nil
	meeting.Participants = nil
	meeting.Description = copyStringPtr(meeting.Description)
	meeting.StartTime = copyTimePtr(meeting.StartTime)
	meeting.EndTime = copyTimePtr(meeting.EndTime)
	if meeting.UpdatedAt.IsZero() {
		meeting.UpdatedAt = time.Now()
	}
	return meeting
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func cloneUser(user application.User) application.User {
	user.Avatar = copyStringPtr(user.Avatar)
	return user
}
