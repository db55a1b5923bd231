package http

import (
	"time"

	"github.com/example/meeting-service/internal/application"
)

type userDTO struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Avatar    *string   `json:"avatar"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toUserDTO(user application.User) userDTO {
	return userDTO{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Avatar:    user.Avatar,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

// meetingDTO is the wire form of a meeting. Host and participants are omitted when they were not
// loaded.
type meetingDTO struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      *string    `json:"description"`
	CallID           string     `json:"callId"`
	Status           string     `json:"status"`
	StartTime        *time.Time `json:"startTime"`
	EndTime          *time.Time `json:"endTime"`
	Duration         int        `json:"duration"`
	ParticipantCount int        `json:"participantCount"`
	HostID           string     `json:"hostId"`
	Host             *userDTO   `json:"host,omitempty"`
	Participants     []userDTO  `json:"participants,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

func toMeetingDTO(meeting application.Meeting) meetingDTO {
	dto := meetingDTO{
		ID:               meeting.ID,
		Title:            meeting.Title,
		Description:      meeting.Description,
		CallID:           meeting.CallID,
		Status:           string(meeting.Status),
		StartTime:        meeting.StartTime,
		EndTime:          meeting.EndTime,
		Duration:         meeting.Duration,
		ParticipantCount: meeting.ParticipantCount,
		HostID:           meeting.HostID,
		CreatedAt:        meeting.CreatedAt,
		UpdatedAt:        meeting.UpdatedAt,
	}
	if meeting.Host != nil {
		host := toUserDTO(*meeting.Host)
		dto.Host = &host
	}
	if meeting.Participants != nil {
		dto.Participants = make([]userDTO, 0, len(meeting.Participants))
		for _, participant := range meeting.Participants {
			dto.Participants = append(dto.Participants, toUserDTO(participant))
		}
	}
	return dto
}

func toMeetingDTOs(meetings []application.Meeting) []meetingDTO {
	out := make([]meetingDTO, 0, len(meetings))
	for _, meeting := range meetings {
		out = append(out, toMeetingDTO(meeting))
	}
	return out
}

// meetingRequest is accepted by POST /meetings and POST /meetings/by-call/:callId. On the by-call
// route every field is optional and callId comes from the path.
type meetingRequest struct {
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	CallID      string     `json:"callId"`
	Status      string     `json:"status"`
	StartTime   *time.Time `json:"startTime"`
}

func (r meetingRequest) toInput() application.MeetingInput {
	return application.MeetingInput{
		Title:       r.Title,
		Description: r.Description,
		CallID:      r.CallID,
		Status:      application.MeetingStatus(r.Status),
		StartTime:   r.StartTime,
	}
}

type meetingPatchRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Status      *string    `json:"status"`
	StartTime   *time.Time `json:"startTime"`
	EndTime     *time.Time `json:"endTime"`
	Duration    *int       `json:"duration"`
}

func (r meetingPatchRequest) toPatch() application.MeetingPatch {
	patch := application.MeetingPatch{
		Title:       r.Title,
		Description: r.Description,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		Duration:    r.Duration,
	}
	if r.Status != nil {
		status := application.MeetingStatus(*r.Status)
		patch.Status = &status
	}
	return patch
}

type registerRequest struct {
	Email    string  `json:"email"`
	Name     string  `json:"name"`
	Password string  `json:"password"`
	Avatar   *string `json:"avatar"`
}

type profileRequest struct {
	Name     *string `json:"name"`
	Avatar   *string `json:"avatar"`
	Password *string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expiresAt"`
	User        userDTO   `json:"user"`
}
