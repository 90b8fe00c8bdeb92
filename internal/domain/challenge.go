package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ChallengeStatus is the state of a challenge
type ChallengeStatus string

const (
	StatusPending   ChallengeStatus = "pending"
	StatusScheduled ChallengeStatus = "scheduled"
	StatusCompleted ChallengeStatus = "completed"
	StatusCancelled ChallengeStatus = "cancelled"
	StatusForfeited ChallengeStatus = "forfeited"
)

// OpenStatuses are the non-terminal statuses
var OpenStatuses = []ChallengeStatus{StatusPending, StatusScheduled}

// transitions lists the allowed next states for each status
var transitions = map[ChallengeStatus][]ChallengeStatus{
	StatusPending:   {StatusScheduled, StatusCancelled, StatusForfeited},
	StatusScheduled: {StatusCompleted, StatusCancelled, StatusForfeited},
}

// IsTerminal reports whether no further transition is possible
func (s ChallengeStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusForfeited
}

// IsOpen reports whether the challenge is still awaiting a resolution
func (s ChallengeStatus) IsOpen() bool {
	return s == StatusPending || s == StatusScheduled
}

// CanTransitionTo reports whether s -> next is a legal transition
func (s ChallengeStatus) CanTransitionTo(next ChallengeStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status
func (s ChallengeStatus) Valid() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusCompleted, StatusCancelled, StatusForfeited:
		return true
	}
	return false
}

// ForfeitReason tags why a side forfeited
type ForfeitReason string

const (
	ForfeitUnspecified ForfeitReason = ""
	ForfeitNoShow      ForfeitReason = "no_show"
	ForfeitGaveUp      ForfeitReason = "gave_up"
	ForfeitTimeout     ForfeitReason = "timeout"
)

// TierPair holds one value per side of a challenge
type TierPair struct {
	Challenger int `json:"challenger"`
	Defender   int `json:"defender"`
}

// PrestigePair holds the prestige delta applied to each side
type PrestigePair struct {
	Challenger int `json:"challenger"`
	Defender   int `json:"defender"`
}

// GameResult is the outcome of one game within a match
type GameResult struct {
	Number   int    `json:"number"`
	WinnerID string `json:"winner_id"`
	LoserID  string `json:"loser_id"`
}

// MatchResult records the outcome of a challenge
type MatchResult struct {
	WinnerID string       `json:"winner_id"`
	Score    string       `json:"score"`
	Games    []GameResult `json:"games,omitempty"`
}

// Forfeit holds forfeit metadata
type Forfeit struct {
	ForfeitingID string        `json:"forfeiting_id"`
	Unfair       bool          `json:"unfair"`
	Reason       ForfeitReason `json:"reason,omitempty"`
	Penalty      int           `json:"penalty"`
}

// Challenge is a request by one standing to contest another's ladder position.
// Result, TierAfter and PrestigeAwarded are set only once the challenge is
// completed or forfeited.
type Challenge struct {
	ID               string          `json:"id"`
	TournamentID     string          `json:"tournament_id"`
	ChallengerID     string          `json:"challenger_id"`
	DefenderID       string          `json:"defender_id"`
	ChallengerTeamID string          `json:"challenger_team_id"`
	DefenderTeamID   string          `json:"defender_team_id"`
	Status           ChallengeStatus `json:"status"`
	TierBefore       TierPair        `json:"tier_before"`
	ProposedDates    []time.Time     `json:"proposed_dates,omitempty"`
	ScheduledDate    *time.Time      `json:"scheduled_date,omitempty"`
	Result           *MatchResult    `json:"result,omitempty"`
	TierAfter        *TierPair       `json:"tier_after,omitempty"`
	PrestigeAwarded  *PrestigePair   `json:"prestige_awarded,omitempty"`
	Forfeit          *Forfeit        `json:"forfeit,omitempty"`
	CastDemanded     bool            `json:"cast_demanded"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	ResolvedAt       *time.Time      `json:"resolved_at,omitempty"`
}

// Involves reports whether standingID is one of the two participants
func (c *Challenge) Involves(standingID string) bool {
	return c.ChallengerID == standingID || c.DefenderID == standingID
}

// Opponent returns the other participant
func (c *Challenge) Opponent(standingID string) string {
	if c.ChallengerID == standingID {
		return c.DefenderID
	}
	return c.ChallengerID
}

// IsPastDue reports whether a pending challenge with no proposed dates has
// passed deadline at now
func (c *Challenge) IsPastDue(deadline, now time.Time) bool {
	return c.Status == StatusPending && len(c.ProposedDates) == 0 && now.After(deadline)
}

// Clone returns a deep copy of the challenge
func (c Challenge) Clone() Challenge {
	c.ProposedDates = append([]time.Time(nil), c.ProposedDates...)
	if c.ScheduledDate != nil {
		t := *c.ScheduledDate
		c.ScheduledDate = &t
	}
	if c.Result != nil {
		r := *c.Result
		r.Games = append([]GameResult(nil), r.Games...)
		c.Result = &r
	}
	if c.TierAfter != nil {
		t := *c.TierAfter
		c.TierAfter = &t
	}
	if c.PrestigeAwarded != nil {
		p := *c.PrestigeAwarded
		c.PrestigeAwarded = &p
	}
	if c.Forfeit != nil {
		f := *c.Forfeit
		c.Forfeit = &f
	}
	if c.ResolvedAt != nil {
		t := *c.ResolvedAt
		c.ResolvedAt = &t
	}
	return c
}

// CreateChallengeRequest represents a request to issue a challenge
type CreateChallengeRequest struct {
	TournamentID string `json:"tournament_id"`
	ChallengerID string `json:"challenger_id"`
	DefenderID   string `json:"defender_id"`
	CastDemanded bool   `json:"cast_demanded"`
}

// SubmitResultRequest represents a reported match result
type SubmitResultRequest struct {
	WinnerID string       `json:"winner_id"`
	Score    string       `json:"score"`
	Games    []GameResult `json:"games,omitempty"`
}

// ForfeitRequest represents a forfeit by one side
type ForfeitRequest struct {
	ForfeitingID string        `json:"forfeiting_id"`
	Unfair       bool          `json:"unfair"`
	Reason       ForfeitReason `json:"reason,omitempty"`
}

// Score is a parsed "W-L" match score from the winner's perspective
type Score struct {
	Wins   int
	Losses int
}

func (s Score) String() string {
	return fmt.Sprintf("%d-%d", s.Wins, s.Losses)
}

// ParseScore parses a "W-L" score string
func ParseScore(raw string) (Score, error) {
	parts := strings.Split(strings.TrimSpace(raw), "-")
	if len(parts) != 2 {
		return Score{}, fmt.Errorf("score %q: expected W-L", raw)
	}
	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Score{}, fmt.Errorf("score %q: %w", raw, err)
	}
	l, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Score{}, fmt.Errorf("score %q: %w", raw, err)
	}
	return Score{Wins: w, Losses: l}, nil
}

// FitsFormat reports whether the score is a finished best-of-N result
func (s Score) FitsFormat(bestOf int) bool {
	need := (bestOf + 1) / 2
	return s.Wins == need && s.Losses >= 0 && s.Losses < need
}
