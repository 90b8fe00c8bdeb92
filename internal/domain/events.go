package domain

import "time"

// EventType identifies a challenge lifecycle event
type EventType string

const (
	EventChallengeCreated       EventType = "challenge.created"
	EventDatesProposed          EventType = "challenge.dates_proposed"
	EventChallengeScheduled     EventType = "challenge.scheduled"
	EventChallengeCompleted     EventType = "challenge.completed"
	EventChallengeForfeited     EventType = "challenge.forfeited"
	EventChallengeCancelled     EventType = "challenge.cancelled"
	EventChallengeAutoForfeited EventType = "challenge.auto_forfeited"
)

// ChallengeEvent is emitted after every successful challenge transition
type ChallengeEvent struct {
	Type         EventType  `json:"type"`
	TournamentID string     `json:"tournament_id"`
	Challenge    Challenge  `json:"challenge"`
	Standings    []Standing `json:"standings,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}
