// Package postgres implements the persistence repositories on PostgreSQL through GORM.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/meeting-service/internal/persistence"
)

// Config holds PostgreSQL connection settings.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store implements persistence.UserRepository and persistence.MeetingRepository.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

var (
	_ persistence.UserRepository    = (*Store)(nil)
	_ persistence.MeetingRepository = (*Store)(nil)
)

// Open connects to PostgreSQL. Call Migrate before first use.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres: dsn cannot be empty")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Discard,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres: access connection pool: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("postgres: ping database: %w", err)
	}

	if err := db.SetupJoinTable(&meetingModel{}, "Participants", &participantModel{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("postgres: setup participants join table: %w", err)
	}

	return &Store{db: db, logger: logger.With("component", "postgres")}, nil
}

// Migrate creates or updates the tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&userModel{}, &meetingModel{}, &participantModel{}); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	s.logger.InfoContext(ctx, "database schema migrated")
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ---------------------------- users ----------------------------

// CreateUser inserts a new user. Emails are stored lower-cased and must be unique.
func (s *Store) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}
	user.Email = normalizeEmail(user.Email)
	stampUser(&user)

	model := toUserModel(user)
	return mapError(s.db.WithContext(ctx).Create(&model).Error)
}

// UpdateUser overwrites the mutable columns of an existing user.
func (s *Store) UpdateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.PasswordHash == "" {
		return persistence.ErrConstraintViolation
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = time.Now().UTC()
	}
	user.Email = normalizeEmail(user.Email)

	model := toUserModel(user)
	result := s.db.WithContext(ctx).
		Model(&userModel{ID: user.ID}).
		Select("email", "name", "password_hash", "avatar", "updated_at").
		Updates(&model)
	if result.Error != nil {
		return mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// GetUser retrieves a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (persistence.User, error) {
	if id == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	var model userModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&model).Error; err != nil {
		return persistence.User{}, mapError(err)
	}
	return fromUserModel(model), nil
}

// GetUserByEmail retrieves a user by email, ignoring case.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	var model userModel
	if err := s.db.WithContext(ctx).Where("email = ?", email).Take(&model).Error; err != nil {
		return persistence.User{}, mapError(err)
	}
	return fromUserModel(model), nil
}

// DeleteUser removes the user and recomputes the participant count of every meeting the user
// had joined. Hosted meetings and memberships cascade.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return mapError(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var joined []string
		if err := tx.Model(&participantModel{}).Where("user_id = ?", id).Pluck("meeting_id", &joined).Error; err != nil {
			return err
		}

		result := tx.Where("id = ?", id).Delete(&userModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return persistence.ErrNotFound
		}

		for _, meetingID := range joined {
			if err := recountParticipants(tx, meetingID); err != nil {
				return err
			}
		}
		return nil
	}))
}

// ---------------------------- meetings ----------------------------

// CreateMeeting inserts the meeting and its initial participants.
func (s *Store) CreateMeeting(ctx context.Context, meeting persistence.Meeting) error {
	if meeting.ID == "" || meeting.CallID == "" || meeting.HostID == "" {
		return persistence.ErrConstraintViolation
	}
	if meeting.CreatedAt.IsZero() {
		meeting.CreatedAt = time.Now().UTC()
	}
	if meeting.UpdatedAt.IsZero() {
		meeting.UpdatedAt = meeting.CreatedAt
	}

	return mapError(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := toMeetingModel(meeting)
		model.ParticipantCount = 0
		if err := tx.Omit(clause.Associations).Create(&model).Error; err != nil {
			return err
		}
		if err := addParticipants(tx, meeting.ID, meeting.ParticipantIDs(), meeting.CreatedAt); err != nil {
			return err
		}
		return recountParticipants(tx, meeting.ID)
	}))
}

// UpdateMeeting writes the mutable columns and adds participants that are not stored yet.
func (s *Store) UpdateMeeting(ctx context.Context, meeting persistence.Meeting) error {
	if meeting.ID == "" {
		return persistence.ErrNotFound
	}
	if meeting.UpdatedAt.IsZero() {
		meeting.UpdatedAt = time.Now().UTC()
	}

	return mapError(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := toMeetingModel(meeting)
		result := tx.Model(&meetingModel{ID: meeting.ID}).
			Select("title", "description", "status", "start_time", "end_time", "duration", "updated_at").
			Omit(clause.Associations).
			Updates(&model)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return persistence.ErrNotFound
		}

		if err := addParticipants(tx, meeting.ID, meeting.ParticipantIDs(), meeting.UpdatedAt); err != nil {
			return err
		}
		return recountParticipants(tx, meeting.ID)
	}))
}

// FindMeeting returns the meeting matching lookup with the requested relations.
func (s *Store) FindMeeting(ctx context.Context, lookup persistence.MeetingLookup, relations persistence.Relations) (persistence.Meeting, error) {
	if lookup.ID == "" && lookup.CallID == "" {
		return persistence.Meeting{}, persistence.ErrNotFound
	}

	var meeting persistence.Meeting
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := withRelations(tx, relations)
		if lookup.ID != "" {
			query = query.Where("id = ?", lookup.ID)
		}
		if lookup.CallID != "" {
			query = query.Where("call_id = ?", lookup.CallID)
		}

		var model meetingModel
		if err := query.Take(&model).Error; err != nil {
			return err
		}

		loaded := []persistence.Meeting{fromMeetingModel(model)}
		if relations.Participants {
			if err := loadParticipants(tx, loaded); err != nil {
				return err
			}
		}
		meeting = loaded[0]
		return nil
	})
	return meeting, mapError(err)
}

// ListMeetings returns meetings ordered by creation time, most recent first.
func (s *Store) ListMeetings(ctx context.Context, filter persistence.MeetingFilter) ([]persistence.Meeting, error) {
	meetings := []persistence.Meeting{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := withRelations(tx, filter.Relations)
		if filter.AccessibleTo != "" {
			member := tx.Model(&participantModel{}).Select("1").
				Where("meeting_participants.meeting_id = meetings.id AND meeting_participants.user_id = ?", filter.AccessibleTo)
			query = query.Where("host_id = ? OR EXISTS (?)", filter.AccessibleTo, member)
		}
		query = query.Order("created_at DESC").Order("id DESC")
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}

		var models []meetingModel
		if err := query.Find(&models).Error; err != nil {
			return err
		}
		for _, model := range models {
			meetings = append(meetings, fromMeetingModel(model))
		}
		if filter.Relations.Participants {
			return loadParticipants(tx, meetings)
		}
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	return meetings, nil
}

// DeleteMeeting removes the meeting; memberships cascade.
func (s *Store) DeleteMeeting(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&meetingModel{})
	if result.Error != nil {
		return mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func withRelations(tx *gorm.DB, relations persistence.Relations) *gorm.DB {
	query := tx.Model(&meetingModel{})
	if relations.Host {
		query = query.Preload("Host")
	}
	return query
}

func addParticipants(tx *gorm.DB, meetingID string, userIDs []string, joinedAt time.Time) error {
	for _, userID := range userIDs {
		row := participantModel{MeetingID: meetingID, UserID: userID, JoinedAt: joinedAt.UTC()}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

func recountParticipants(tx *gorm.DB, meetingID string) error {
	count := tx.Model(&participantModel{}).Select("COUNT(*)").Where("meeting_id = ?", meetingID)
	return tx.Model(&meetingModel{}).Where("id = ?", meetingID).UpdateColumn("participant_count", count).Error
}

// loadParticipants fills Participants of meetings in place, in join order.
func loadParticipants(tx *gorm.DB, meetings []persistence.Meeting) error {
	if len(meetings) == 0 {
		return nil
	}
	ids := make([]string, 0, len(meetings))
	index := make(map[string]int, len(meetings))
	for i := range meetings {
		ids = append(ids, meetings[i].ID)
		index[meetings[i].ID] = i
		meetings[i].Participants = []persistence.User{}
	}

	var rows []participantRow
	err := tx.Table("meeting_participants AS mp").
		Select("mp.meeting_id, u.id, u.email, u.name, u.password_hash, u.avatar, u.created_at, u.updated_at").
		Joins("JOIN users u ON u.id = mp.user_id").
		Where("mp.meeting_id IN ?", ids).
		Order("mp.joined_at, mp.user_id").
		Scan(&rows).Error
	if err != nil {
		return err
	}
	for _, row := range rows {
		i := index[row.MeetingID]
		meetings[i].Participants = append(meetings[i].Participants, row.user())
	}
	return nil
}

func stampUser(user *persistence.User) {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// mapError translates GORM and PostgreSQL errors into persistence sentinels. GORM translates
// unique and foreign key violations itself; the remaining constraint classes are recognised by
// SQLSTATE.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, persistence.ErrNotFound),
		errors.Is(err, persistence.ErrDuplicate),
		errors.Is(err, persistence.ErrForeignKeyViolation),
		errors.Is(err, persistence.ErrConstraintViolation):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return persistence.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", persistence.ErrDuplicate, err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%w: %v", persistence.ErrForeignKeyViolation, err)
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "SQLSTATE 23505"):
		return fmt.Errorf("%w: %v", persistence.ErrDuplicate, err)
	case strings.Contains(msg, "SQLSTATE 23503"):
		return fmt.Errorf("%w: %v", persistence.ErrForeignKeyViolation, err)
	case strings.Contains(msg, "SQLSTATE 23514"), strings.Contains(msg, "SQLSTATE 23502"):
		return fmt.Errorf("%w: %v", persistence.ErrConstraintViolation, err)
	}
	return err
}
