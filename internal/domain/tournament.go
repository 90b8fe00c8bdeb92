package domain

import "time"

// TournamentStatus is the lifecycle state of a tournament
type TournamentStatus string

const (
	TournamentUpcoming  TournamentStatus = "upcoming"
	TournamentActive    TournamentStatus = "active"
	TournamentCompleted TournamentStatus = "completed"
)

// tournamentOrder ranks statuses; transitions only move forward.
var tournamentOrder = map[TournamentStatus]int{
	TournamentUpcoming:  0,
	TournamentActive:    1,
	TournamentCompleted: 2,
}

// CanAdvanceTo reports whether s may transition to next
func (s TournamentStatus) CanAdvanceTo(next TournamentStatus) bool {
	from, ok := tournamentOrder[s]
	if !ok {
		return false
	}
	to, ok := tournamentOrder[next]
	return ok && to > from
}

// Rules holds the challenge rules of a tournament
type Rules struct {
	ChallengeTimeframeDays     int `json:"challenge_timeframe_days" yaml:"challenge_timeframe_days"`
	ProtectionDaysAfterDefense int `json:"protection_days_after_defense" yaml:"protection_days_after_defense"`
	MaxChallengesPerMonth      int `json:"max_challenges_per_month" yaml:"max_challenges_per_month"`
	MinRequiredDateOptions     int `json:"min_required_date_options" yaml:"min_required_date_options"`
}

// Tournament represents a tiered ladder tournament
type Tournament struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Status         TournamentStatus `json:"status"`
	MaxTiers       int              `json:"max_tiers"`
	TierCapacities []int            `json:"tier_capacities,omitempty"`
	BestOf         int              `json:"best_of"`
	Rules          Rules            `json:"rules"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Validate checks the tournament configuration
func (t *Tournament) Validate() error {
	if t.Name == "" || t.MaxTiers < 1 {
		return ErrInvalidTournament
	}
	if t.BestOf < 1 || t.BestOf%2 == 0 {
		return ErrInvalidTournament
	}
	if len(t.TierCapacities) > 0 && len(t.TierCapacities) != t.MaxTiers {
		return ErrInvalidTournament
	}
	for _, c := range t.TierCapacities {
		if c < 0 {
			return ErrInvalidTournament
		}
	}
	r := t.Rules
	if r.ChallengeTimeframeDays < 0 || r.ProtectionDaysAfterDefense < 0 ||
		r.MaxChallengesPerMonth < 0 || r.MinRequiredDateOptions < 0 {
		return ErrInvalidTournament
	}
	return nil
}

// WinsNeeded returns the number of games needed to win the match format
func (t *Tournament) WinsNeeded() int {
	return (t.BestOf + 1) / 2
}

// TierCapacity returns the capacity of tier, or 0 when unbounded
func (t *Tournament) TierCapacity(tier int) int {
	if tier < 1 || tier > len(t.TierCapacities) {
		return 0
	}
	return t.TierCapacities[tier-1]
}

// ResponseDeadline returns the time by which a challenge created at createdAt
// must be answered
func (t *Tournament) ResponseDeadline(createdAt time.Time) time.Time {
	return createdAt.AddDate(0, 0, t.Rules.ChallengeTimeframeDays)
}

// Clone returns a deep copy of the tournament
func (t Tournament) Clone() Tournament {
	t.TierCapacities = append([]int(nil), t.TierCapacities...)
	return t
}

// CreateTournamentRequest represents a request to create a tournament
type CreateTournamentRequest struct {
	Name           string `json:"name"`
	MaxTiers       int    `json:"max_tiers"`
	TierCapacities []int  `json:"tier_capacities,omitempty"`
	BestOf         int    `json:"best_of"`
	Rules          Rules  `json:"rules"`
}

// Standing is a team's record inside one tournament
type Standing struct {
	ID             string     `json:"id"`
	TeamID         string     `json:"team_id"`
	TournamentID   string     `json:"tournament_id"`
	Tier           int        `json:"tier"`
	Prestige       int        `json:"prestige"`
	Wins           int        `json:"wins"`
	Losses         int        `json:"losses"`
	WinStreak      int        `json:"win_streak"`
	ProtectedUntil *time.Time `json:"protected_until,omitempty"`
	JoinedAt       time.Time  `json:"joined_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsProtected reports whether the standing is immune from challenges at now
func (s *Standing) IsProtected(now time.Time) bool {
	return s.ProtectedUntil != nil && s.ProtectedUntil.After(now)
}

// StandingUpdate describes a change to a standing. Nil pointers and zero
// deltas leave the field untouched.
type StandingUpdate struct {
	Tier           *int
	PrestigeDelta  int
	WinsDelta      int
	LossesDelta    int
	WinStreak      *int
	ProtectedUntil *time.Time
}

// Apply applies the update to s in place
func (u StandingUpdate) Apply(s *Standing, now time.Time) {
	if u.Tier != nil {
		s.Tier = *u.Tier
	}
	s.Prestige += u.PrestigeDelta
	s.Wins += u.WinsDelta
	s.Losses += u.LossesDelta
	if u.WinStreak != nil {
		s.WinStreak = *u.WinStreak
	}
	if u.ProtectedUntil != nil {
		t := *u.ProtectedUntil
		s.ProtectedUntil = &t
	}
	s.UpdatedAt = now
}

// LadderEntry is one row of a tournament ladder
type LadderEntry struct {
	Rank     int      `json:"rank"`
	Standing Standing `json:"standing"`
}
