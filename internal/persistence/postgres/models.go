package postgres

import (
	"time"

	"github.com/example/meeting-service/internal/persistence"
)

type userModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	Name         string `gorm:"not null"`
	PasswordHash string `gorm:"not null"`
	Avatar       *string
	CreatedAt    time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt    time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (userModel) TableName() string { return "users" }

type meetingModel struct {
	ID               string `gorm:"primaryKey"`
	Title            string `gorm:"not null"`
	Description      *string
	CallID           string `gorm:"uniqueIndex;not null"`
	Status           string `gorm:"not null;default:scheduled;check:chk_meetings_status,status IN ('scheduled','ongoing','completed','cancelled')"`
	StartTime        *time.Time
	EndTime          *time.Time
	Duration         int         `gorm:"not null;default:0;check:chk_meetings_duration,duration >= 0"`
	ParticipantCount int         `gorm:"not null;default:0"`
	HostID           string      `gorm:"index;not null"`
	Host             *userModel  `gorm:"foreignKey:HostID;constraint:OnDelete:CASCADE"`
	Participants     []userModel `gorm:"many2many:meeting_participants;joinForeignKey:MeetingID;joinReferences:UserID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time   `gorm:"index;not null;autoCreateTime:false"`
	UpdatedAt        time.Time   `gorm:"not null;autoUpdateTime:false"`
}

func (meetingModel) TableName() string { return "meetings" }

// participantModel is the join table behind meetingModel.Participants. JoinedAt orders the
// participant list.
type participantModel struct {
	MeetingID string    `gorm:"primaryKey"`
	UserID    string    `gorm:"primaryKey;index"`
	JoinedAt  time.Time `gorm:"not null"`
}

func (participantModel) TableName() string { return "meeting_participants" }

// participantRow is one participant loaded together with its meeting id.
type participantRow struct {
	MeetingID    string
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Avatar       *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func toUserModel(user persistence.User) userModel {
	return userModel{
		ID:           user.ID,
		Email:        user.Email,
		Name:         user.Name,
		PasswordHash: user.PasswordHash,
		Avatar:       user.Avatar,
		CreatedAt:    user.CreatedAt.UTC(),
		UpdatedAt:    user.UpdatedAt.UTC(),
	}
}

func fromUserModel(m userModel) persistence.User {
	return persistence.User{
		ID:           m.ID,
		Email:        m.Email,
		Name:         m.Name,
		PasswordHash: m.PasswordHash,
		Avatar:       m.Avatar,
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
}

func (r participantRow) user() persistence.User {
	return fromUserModel(userModel{
		ID:           r.ID,
		Email:        r.Email,
		Name:         r.Name,
		PasswordHash: r.PasswordHash,
		Avatar:       r.Avatar,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	})
}

// toMeetingModel converts the meeting columns. Relations are written separately.
func toMeetingModel(meeting persistence.Meeting) meetingModel {
	return meetingModel{
		ID:               meeting.ID,
		Title:            meeting.Title,
		Description:      meeting.Description,
		CallID:           meeting.CallID,
		Status:           meeting.Status,
		StartTime:        utcPtr(meeting.StartTime),
		EndTime:          utcPtr(meeting.EndTime),
		Duration:         meeting.Duration,
		ParticipantCount: meeting.ParticipantCount,
		HostID:           meeting.HostID,
		CreatedAt:        meeting.CreatedAt.UTC(),
		UpdatedAt:        meeting.UpdatedAt.UTC(),
	}
}

func fromMeetingModel(m meetingModel) persistence.Meeting {
	meeting := persistence.Meeting{
		ID:               m.ID,
		Title:            m.Title,
		Description:      m.Description,
		CallID:           m.CallID,
		Status:           m.Status,
		StartTime:        utcPtr(m.StartTime),
		EndTime:          utcPtr(m.EndTime),
		Duration:         m.Duration,
		ParticipantCount: m.ParticipantCount,
		HostID:           m.HostID,
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
	}
	if m.Host != nil {
		host := fromUserModel(*m.Host)
		meeting.Host = &host
	}
	return meeting
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
