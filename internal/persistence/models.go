package persistence

import "time"

// User represents an account row.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Avatar       *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Meeting represents a meeting row together with the relations that were requested when it
// was loaded. Host is nil unless Relations.Host was set; Participants is nil unless
// Relations.Participants was set.
type Meeting struct {
	ID               string
	Title            string
	Description      *string
	CallID           string
	Status           string
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

// ParticipantIDs returns the ids of the loaded participants in join order.
func (m Meeting) ParticipantIDs() []string {
	if len(m.Participants) == 0 {
		return nil
	}
	ids := make([]string, 0, len(m.Participants))
	for _, p := range m.Participants {
		ids = append(ids, p.ID)
	}
	return ids
}
