package database

import "time"

// Run is the stored summary row for a persisted experiment
type Run struct {
	ID               string    `json:"id" db:"id"`
	Seed             int64     `json:"seed" db:"seed"`
	ParticipantCount int       `json:"participant_count" db:"participant_count"`
	InteractionCount int       `json:"interaction_count" db:"interaction_count"`
	StartedAt        time.Time `json:"started_at" db:"started_at"`
	CompletedAt      time.Time `json:"completed_at" db:"completed_at"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}
