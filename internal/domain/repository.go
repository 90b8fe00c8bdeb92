package domain

import (
	"context"
	"time"
)

// TeamRegistry owns team identity and rosters
type TeamRegistry interface {
	CreateTeam(ctx context.Context, team *Team) error
	GetTeam(ctx context.Context, id string) (*Team, error)
	GetTeamBySlug(ctx context.Context, slug string) (*Team, error)
	GetTeamMembers(ctx context.Context, teamID string) ([]Member, error)
	SaveTeam(ctx context.Context, team *Team) error
}

// TournamentRegistry owns tournament configuration and standings
type TournamentRegistry interface {
	CreateTournament(ctx context.Context, t *Tournament) error
	GetTournament(ctx context.Context, id string) (*Tournament, error)
	// GetTournamentForUpdate reads a tournament and holds its row until the
	// surrounding transaction ends.
	GetTournamentForUpdate(ctx context.Context, id string) (*Tournament, error)
	ListTournaments(ctx context.Context, status TournamentStatus) ([]Tournament, error)
	SaveTournament(ctx context.Context, t *Tournament) error

	CreateStanding(ctx context.Context, s *Standing) error
	GetStanding(ctx context.Context, id string) (*Standing, error)
	GetStandingByTeam(ctx context.Context, teamID, tournamentID string) (*Standing, error)
	ListStandings(ctx context.Context, tournamentID string) ([]Standing, error)
	ListStandingsByTeam(ctx context.Context, teamID string) ([]Standing, error)
	UpdateStanding(ctx context.Context, id string, update StandingUpdate) (*Standing, error)
	// LockStandings holds the given standing rows until the surrounding
	// transaction ends. Outside WithinTx it is a no-op.
	LockStandings(ctx context.Context, ids ...string) error
}

// ChallengeLedger stores challenges
type ChallengeLedger interface {
	InsertChallenge(ctx context.Context, c *Challenge) error
	GetChallenge(ctx context.Context, id string) (*Challenge, error)
	// GetChallengeForUpdate reads a challenge and holds its row until the
	// surrounding transaction ends.
	GetChallengeForUpdate(ctx context.Context, id string) (*Challenge, error)
	FindChallengesByParticipant(ctx context.Context, standingID string, statuses ...ChallengeStatus) ([]Challenge, error)
	FindChallengesByStatus(ctx context.Context, tournamentID string, statuses ...ChallengeStatus) ([]Challenge, error)
	CountChallengesCreatedSince(ctx context.Context, challengerID string, since time.Time) (int, error)
	UpdateChallenge(ctx context.Context, c *Challenge) error
}

// Store groups the registries and the ledger behind one transactional
// boundary.
type Store interface {
	TeamRegistry
	TournamentRegistry
	ChallengeLedger

	// WithinTx runs fn against a Store bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
