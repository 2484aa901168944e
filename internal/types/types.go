package types

import "time"

// Interaction is one scored exchange between a simulated participant and a
// chatbot. Scores are keyed by rubric dimension name, each in [1.0, 5.0].
type Interaction struct {
	ParticipantID      string             `json:"participant_id"`
	InteractionID      string             `json:"interaction_id"`
	Topic              string             `json:"topic"`
	Scores             map[string]float64 `json:"scores"`
	TotalWeightedScore float64            `json:"total_weighted_score"`
}

// Participant is a simulated subject. Each participant carries one
// strength topic and one weakness topic; interactions on those topics
// score systematically higher and lower.
type Participant struct {
	ID       string `json:"id"`
	Strength string `json:"strength"`
	Weakness string `json:"weakness"`
}

// ExperimentResult is the frozen output of a completed run. Interactions are
// ordered by participant, then by generation order within a participant.
type ExperimentResult struct {
	RunID        string        `json:"run_id"`
	Seed         int64         `json:"seed"`
	Interactions []Interaction `json:"interactions"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  time.Time     `json:"completed_at"`
}

// ParticipantIDs returns the distinct participant ids in first-seen order
func (r *ExperimentResult) ParticipantIDs() []string {
	seen := make(map[string]bool)
	ids := []string{}
	for _, it := range r.Interactions {
		if !seen[it.ParticipantID] {
			seen[it.ParticipantID] = true
			ids = append(ids, it.ParticipantID)
		}
	}
	return ids
}

// SimulateRequest represents the request structure for the simulate endpoint.
// Unknown fields are ignored for forward compatibility with thin clients.
type SimulateRequest struct {
	ParticipantCount           int   `json:"participantCount"`
	InteractionsPerParticipant int   `json:"interactionsPerParticipant"`
	Seed                       int64 `json:"seed"`
}
