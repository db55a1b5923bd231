package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/meeting-service/internal/persistence"
)

const meetingColumns = `id, title, description, call_id, status, start_time, end_time, duration,
	participant_count, host_id, created_at, updated_at`

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// MeetingRepository implements persistence.MeetingRepository using SQLite.
type MeetingRepository struct {
	pool *ConnectionPool
}

// NewMeetingRepository creates a new SQLite meeting repository.
func NewMeetingRepository(pool *ConnectionPool) *MeetingRepository {
	return &MeetingRepository{pool: pool}
}

// CreateMeeting inserts the meeting and its initial participants. A taken call id yields
// persistence.ErrDuplicate and an unknown host or participant persistence.ErrForeignKeyViolation.
func (r *MeetingRepository) CreateMeeting(ctx context.Context, meeting persistence.Meeting) error {
	if meeting.ID == "" || meeting.CallID == "" || meeting.HostID == "" {
		return persistence.ErrConstraintViolation
	}
	if meeting.CreatedAt.IsZero() {
		meeting.CreatedAt = time.Now().UTC()
	}
	if meeting.UpdatedAt.IsZero() {
		meeting.UpdatedAt = meeting.CreatedAt
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		const query = `INSERT INTO meetings (` + meetingColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		_, err := tx.ExecContext(ctx, query,
			meeting.ID,
			meeting.Title,
			nullableString(meeting.Description),
			meeting.CallID,
			meeting.Status,
			nullableTime(meeting.StartTime),
			nullableTime(meeting.EndTime),
			meeting.Duration,
			0,
			meeting.HostID,
			formatTime(meeting.CreatedAt),
			formatTime(meeting.UpdatedAt),
		)
		if err != nil {
			return mapError(err)
		}

		if err := addParticipants(ctx, tx, meeting.ID, meeting.ParticipantIDs(), meeting.CreatedAt); err != nil {
			return err
		}
		return recountParticipants(ctx, tx, meeting.ID)
	})
}

// UpdateMeeting writes the mutable columns and adds participants that are not stored yet.
// The participant count is always recomputed from the membership rows.
func (r *MeetingRepository) UpdateMeeting(ctx context.Context, meeting persistence.Meeting) error {
	if meeting.ID == "" {
		return persistence.ErrNotFound
	}
	if meeting.UpdatedAt.IsZero() {
		meeting.UpdatedAt = time.Now().UTC()
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		const query = `
			UPDATE meetings
			SET title = ?, description = ?, status = ?, start_time = ?, end_time = ?, duration = ?, updated_at = ?
			WHERE id = ?`
		result, err := tx.ExecContext(ctx, query,
			meeting.Title,
			nullableString(meeting.Description),
			meeting.Status,
			nullableTime(meeting.StartTime),
			nullableTime(meeting.EndTime),
			meeting.Duration,
			formatTime(meeting.UpdatedAt),
			meeting.ID,
		)
		if err != nil {
			return mapError(err)
		}
		if err := requireAffected(result); err != nil {
			return err
		}

		if err := addParticipants(ctx, tx, meeting.ID, meeting.ParticipantIDs(), meeting.UpdatedAt); err != nil {
			return err
		}
		return recountParticipants(ctx, tx, meeting.ID)
	})
}

// FindMeeting returns the meeting matching lookup with the requested relations.
func (r *MeetingRepository) FindMeeting(ctx context.Context, lookup persistence.MeetingLookup, relations persistence.Relations) (persistence.Meeting, error) {
	var clauses []string
	var args []any
	if lookup.ID != "" {
		clauses = append(clauses, "id = ?")
		args = append(args, lookup.ID)
	}
	if lookup.CallID != "" {
		clauses = append(clauses, "call_id = ?")
		args = append(args, lookup.CallID)
	}
	if len(clauses) == 0 {
		return persistence.Meeting{}, persistence.ErrNotFound
	}

	var meeting persistence.Meeting
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		query := `SELECT ` + meetingColumns + ` FROM meetings WHERE ` + strings.Join(clauses, " AND ")
		found, err := scanMeeting(tx.QueryRowContext(ctx, query, args...))
		if err != nil {
			return err
		}

		loaded := []persistence.Meeting{found}
		if err := loadRelations(ctx, tx, loaded, relations); err != nil {
			return err
		}
		meeting = loaded[0]
		return nil
	})
	return meeting, err
}

// ListMeetings returns meetings ordered by creation time, most recent first.
func (r *MeetingRepository) ListMeetings(ctx context.Context, filter persistence.MeetingFilter) ([]persistence.Meeting, error) {
	query := `SELECT ` + meetingColumns + ` FROM meetings`
	var args []any
	if filter.AccessibleTo != "" {
		query += ` WHERE host_id = ? OR EXISTS (
			SELECT 1 FROM meeting_participants mp WHERE mp.meeting_id = meetings.id AND mp.user_id = ?)`
		args = append(args, filter.AccessibleTo, filter.AccessibleTo)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit)

	var meetings []persistence.Meeting
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return mapError(err)
		}
		for rows.Next() {
			meeting, err := scanMeeting(rows)
			if err != nil {
				rows.Close()
				return err
			}
			meetings = append(meetings, meeting)
		}
		if err := rows.Close(); err != nil {
			return mapError(err)
		}
		if err := rows.Err(); err != nil {
			return mapError(err)
		}
		return loadRelations(ctx, tx, meetings, filter.Relations)
	})
	if err != nil {
		return nil, err
	}
	if meetings == nil {
		meetings = []persistence.Meeting{}
	}
	return meetings, nil
}

// DeleteMeeting removes the meeting; memberships cascade.
func (r *MeetingRepository) DeleteMeeting(ctx context.Context, id string) error {
	result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM meetings WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(result)
}

func addParticipants(ctx context.Context, tx *sql.Tx, meetingID string, userIDs []string, joinedAt time.Time) error {
	const query = `
		INSERT INTO meeting_participants (meeting_id, user_id, joined_at) VALUES (?, ?, ?)
		ON CONFLICT (meeting_id, user_id) DO NOTHING`
	for _, userID := range userIDs {
		if _, err := tx.ExecContext(ctx, query, meetingID, userID, formatTime(joinedAt)); err != nil {
			return mapError(err)
		}
	}
	return nil
}

func recountParticipants(ctx context.Context, tx *sql.Tx, meetingID string) error {
	const query = `
		UPDATE meetings
		SET participant_count = (SELECT COUNT(*) FROM meeting_participants WHERE meeting_id = ?)
		WHERE id = ?`
	if _, err := tx.ExecContext(ctx, query, meetingID, meetingID); err != nil {
		return mapError(err)
	}
	return nil
}

// loadRelations fills Host and Participants of meetings in place with one query per relation.
func loadRelations(ctx context.Context, q queryer, meetings []persistence.Meeting, relations persistence.Relations) error {
	if len(meetings) == 0 {
		return nil
	}

	if relations.Host {
		hostIDs := make([]any, 0, len(meetings))
		seen := make(map[string]bool)
		for _, m := range meetings {
			if !seen[m.HostID] {
				seen[m.HostID] = true
				hostIDs = append(hostIDs, m.HostID)
			}
		}
		hosts, err := queryUsers(ctx, q, `SELECT `+userColumns+` FROM users WHERE id IN (`+placeholders(len(hostIDs))+`)`, hostIDs...)
		if err != nil {
			return err
		}
		byID := make(map[string]persistence.User, len(hosts))
		for _, h := range hosts {
			byID[h.ID] = h
		}
		for i := range meetings {
			if host, ok := byID[meetings[i].HostID]; ok {
				meetings[i].Host = &host
			}
		}
	}

	if relations.Participants {
		meetingIDs := make([]any, 0, len(meetings))
		index := make(map[string]int, len(meetings))
		for i := range meetings {
			meetingIDs = append(meetingIDs, meetings[i].ID)
			index[meetings[i].ID] = i
			meetings[i].Participants = []persistence.User{}
		}

		query := `
			SELECT mp.meeting_id, u.id, u.email, u.name, u.password_hash, u.avatar, u.created_at, u.updated_at
			FROM meeting_participants mp
			JOIN users u ON u.id = mp.user_id
			WHERE mp.meeting_id IN (` + placeholders(len(meetingIDs)) + `)
			ORDER BY mp.joined_at, mp.rowid`
		rows, err := q.QueryContext(ctx, query, meetingIDs...)
		if err != nil {
			return mapError(err)
		}
		defer rows.Close()

		for rows.Next() {
			var meetingID string
			user, err := scanUser(prefixedScanner{rows: rows, prefix: &meetingID})
			if err != nil {
				return err
			}
			i := index[meetingID]
			meetings[i].Participants = append(meetings[i].Participants, user)
		}
		if err := rows.Err(); err != nil {
			return mapError(err)
		}
	}
	return nil
}

func queryUsers(ctx context.Context, q queryer, query string, args ...any) ([]persistence.User, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var users []persistence.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// prefixedScanner scans one leading column into prefix before the user columns.
type prefixedScanner struct {
	rows   *sql.Rows
	prefix *string
}

func (s prefixedScanner) Scan(dest ...any) error {
	return s.rows.Scan(append([]any{s.prefix}, dest...)...)
}

func scanMeeting(row rowScanner) (persistence.Meeting, error) {
	var (
		m                    persistence.Meeting
		description          sql.NullString
		start, end           sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(
		&m.ID,
		&m.Title,
		&description,
		&m.CallID,
		&m.Status,
		&start,
		&end,
		&m.Duration,
		&m.ParticipantCount,
		&m.HostID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Meeting{}, mapError(err)
	}

	m.Description = stringPtr(description)
	if m.StartTime, err = parseNullableTime(start); err != nil {
		return persistence.Meeting{}, err
	}
	if m.EndTime, err = parseNullableTime(end); err != nil {
		return persistence.Meeting{}, err
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Meeting{}, err
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Meeting{}, fmt.Errorf("meeting %s: %w", m.ID, err)
	}
	return m, nil
}
