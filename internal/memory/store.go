// Package memory implements the domain repository ports in process. It backs
// the "memory" storage driver and the service tests.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/tier-ladder/internal/domain"
)

type state struct {
	teams       map[string]domain.Team
	tournaments map[string]domain.Tournament
	standings   map[string]domain.Standing
	challenges  map[string]domain.Challenge
}

func (s *state) clone() *state {
	return &state{
		teams:       maps.Clone(s.teams),
		tournaments: maps.Clone(s.tournaments),
		standings:   maps.Clone(s.standings),
		challenges:  maps.Clone(s.challenges),
	}
}

type db struct {
	mu   sync.Mutex
	data *state
}

// Store is an in-memory domain.Store. Every call is serialized by one mutex;
// WithinTx holds it for the whole callback and restores a snapshot when the
// callback fails or the context ends before commit.
type Store struct {
	db   *db
	inTx bool
	now  func() time.Time
}

var _ domain.Store = (*Store)(nil)

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		db: &db{data: &state{
			teams:       make(map[string]domain.Team),
			tournaments: make(map[string]domain.Tournament),
			standings:   make(map[string]domain.Standing),
			challenges:  make(map[string]domain.Challenge),
		}},
		now: time.Now,
	}
}

// SetNow overrides the clock used for UpdatedAt stamps
func (s *Store) SetNow(now func() time.Time) {
	s.now = now
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.db.mu.Lock()
	return s.db.mu.Unlock
}

// WithinTx runs fn while holding the store lock
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	snapshot := s.db.data.clone()
	tx := &Store{db: s.db, inTx: true, now: s.now}
	err := fn(ctx, tx)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.db.data = snapshot
		return err
	}
	return nil
}

// --- teams ---

func (s *Store) CreateTeam(_ context.Context, team *domain.Team) error {
	defer s.lock()()
	for _, t := range s.db.data.teams {
		if t.Slug == team.Slug {
			return domain.ErrDuplicateSlug
		}
	}
	s.db.data.teams[team.ID] = team.Clone()
	return nil
}

func (s *Store) GetTeam(_ context.Context, id string) (*domain.Team, error) {
	defer s.lock()()
	t, ok := s.db.data.teams[id]
	if !ok {
		return nil, domain.ErrTeamNotFound
	}
	t = t.Clone()
	return &t, nil
}

func (s *Store) GetTeamBySlug(_ context.Context, slug string) (*domain.Team, error) {
	defer s.lock()()
	for _, t := range s.db.data.teams {
		if t.Slug == slug {
			t = t.Clone()
			return &t, nil
		}
	}
	return nil, domain.ErrTeamNotFound
}

func (s *Store) GetTeamMembers(_ context.Context, teamID string) ([]domain.Member, error) {
	defer s.lock()()
	t, ok := s.db.data.teams[teamID]
	if !ok {
		return nil, domain.ErrTeamNotFound
	}
	return append([]domain.Member{}, t.Members...), nil
}

func (s *Store) SaveTeam(_ context.Context, team *domain.Team) error {
	defer s.lock()()
	if _, ok := s.db.data.teams[team.ID]; !ok {
		return domain.ErrTeamNotFound
	}
	s.db.data.teams[team.ID] = team.Clone()
	return nil
}

// --- tournaments ---

func (s *Store) CreateTournament(_ context.Context, t *domain.Tournament) error {
	defer s.lock()()
	s.db.data.tournaments[t.ID] = t.Clone()
	return nil
}

func (s *Store) GetTournament(_ context.Context, id string) (*domain.Tournament, error) {
	defer s.lock()()
	t, ok := s.db.data.tournaments[id]
	if !ok {
		return nil, domain.ErrTournamentNotFound
	}
	t = t.Clone()
	return &t, nil
}

// GetTournamentForUpdate is GetTournament; WithinTx already serializes writers
func (s *Store) GetTournamentForUpdate(ctx context.Context, id string) (*domain.Tournament, error) {
	return s.GetTournament(ctx, id)
}

func (s *Store) ListTournaments(_ context.Context, status domain.TournamentStatus) ([]domain.Tournament, error) {
	defer s.lock()()
	out := []domain.Tournament{}
	for _, t := range s.db.data.tournaments {
		if status == "" || t.Status == status {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SaveTournament(_ context.Context, t *domain.Tournament) error {
	defer s.lock()()
	if _, ok := s.db.data.tournaments[t.ID]; !ok {
		return domain.ErrTournamentNotFound
	}
	s.db.data.tournaments[t.ID] = t.Clone()
	return nil
}

// --- standings ---

func (s *Store) CreateStanding(_ context.Context, st *domain.Standing) error {
	defer s.lock()()
	for _, existing := range s.db.data.standings {
		if existing.TeamID == st.TeamID && existing.TournamentID == st.TournamentID {
			return domain.ErrAlreadyJoined
		}
	}
	s.db.data.standings[st.ID] = *st
	return nil
}

func (s *Store) GetStanding(_ context.Context, id string) (*domain.Standing, error) {
	defer s.lock()()
	st, ok := s.db.data.standings[id]
	if !ok {
		return nil, domain.ErrStandingNotFound
	}
	return &st, nil
}

func (s *Store) GetStandingByTeam(_ context.Context, teamID, tournamentID string) (*domain.Standing, error) {
	defer s.lock()()
	for _, st := range s.db.data.standings {
		if st.TeamID == teamID && st.TournamentID == tournamentID {
			return &st, nil
		}
	}
	return nil, domain.ErrStandingNotFound
}

func (s *Store) ListStandings(_ context.Context, tournamentID string) ([]domain.Standing, error) {
	defer s.lock()()
	return s.filterStandings(func(st domain.Standing) bool { return st.TournamentID == tournamentID }), nil
}

func (s *Store) ListStandingsByTeam(_ context.Context, teamID string) ([]domain.Standing, error) {
	defer s.lock()()
	return s.filterStandings(func(st domain.Standing) bool { return st.TeamID == teamID }), nil
}

func (s *Store) filterStandings(keep func(domain.Standing) bool) []domain.Standing {
	out := []domain.Standing{}
	for _, st := range s.db.data.standings {
		if keep(st) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tier != out[j].Tier {
			return out[i].Tier < out[j].Tier
		}
		if out[i].Prestige != out[j].Prestige {
			return out[i].Prestige > out[j].Prestige
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) UpdateStanding(_ context.Context, id string, update domain.StandingUpdate) (*domain.Standing, error) {
	defer s.lock()()
	st, ok := s.db.data.standings[id]
	if !ok {
		return nil, domain.ErrStandingNotFound
	}
	update.Apply(&st, s.now())
	s.db.data.standings[id] = st
	return &st, nil
}

// LockStandings is a no-op; WithinTx already serializes all access
func (s *Store) LockStandings(context.Context, ...string) error {
	return nil
}

// --- challenges ---

func (s *Store) InsertChallenge(_ context.Context, c *domain.Challenge) error {
	defer s.lock()()
	s.db.data.challenges[c.ID] = c.Clone()
	return nil
}

func (s *Store) GetChallenge(_ context.Context, id string) (*domain.Challenge, error) {
	defer s.lock()()
	c, ok := s.db.data.challenges[id]
	if !ok {
		return nil, domain.ErrChallengeNotFound
	}
	c = c.Clone()
	return &c, nil
}

func (s *Store) GetChallengeForUpdate(ctx context.Context, id string) (*domain.Challenge, error) {
	return s.GetChallenge(ctx, id)
}

func (s *Store) FindChallengesByParticipant(_ context.Context, standingID string, statuses ...domain.ChallengeStatus) ([]domain.Challenge, error) {
	defer s.lock()()
	return s.filterChallenges(func(c domain.Challenge) bool {
		return c.Involves(standingID) && hasStatus(c.Status, statuses)
	}), nil
}

func (s *Store) FindChallengesByStatus(_ context.Context, tournamentID string, statuses ...domain.ChallengeStatus) ([]domain.Challenge, error) {
	defer s.lock()()
	return s.filterChallenges(func(c domain.Challenge) bool {
		return c.TournamentID == tournamentID && hasStatus(c.Status, statuses)
	}), nil
}

func (s *Store) CountChallengesCreatedSince(_ context.Context, challengerID string, since time.Time) (int, error) {
	defer s.lock()()
	n := 0
	for _, c := range s.db.data.challenges {
		if c.ChallengerID == challengerID && !c.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *Store) UpdateChallenge(_ context.Context, c *domain.Challenge) error {
	defer s.lock()()
	if _, ok := s.db.data.challenges[c.ID]; !ok {
		return domain.ErrChallengeNotFound
	}
	s.db.data.challenges[c.ID] = c.Clone()
	return nil
}

func (s *Store) filterChallenges(keep func(domain.Challenge) bool) []domain.Challenge {
	out := []domain.Challenge{}
	for _, c := range s.db.data.challenges {
		if keep(c) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func hasStatus(status domain.ChallengeStatus, statuses []domain.ChallengeStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
