package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/tier-ladder/internal/config"
	"github.com/tier-ladder/internal/domain"
	"github.com/tier-ladder/internal/memory"
	"github.com/tier-ladder/internal/prestige"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	store       *memory.Store
	clock       *clockwork.FakeClock
	engine      *ChallengeEngine
	teams       *TeamService
	tournaments *TournamentService
	events      *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	store := memory.NewStore()
	store.SetNow(clock.Now)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.DefaultConfig().Ladder
	engine := NewChallengeEngine(store, prestige.NewCalculator(cfg.Penalties), &cfg, clock, logger)
	events := &recordingNotifier{}
	engine.SetNotifier(events)

	return &fixture{
		store:       store,
		clock:       clock,
		engine:      engine,
		teams:       NewTeamService(store, clock, logger),
		tournaments: NewTournamentService(store, clock, logger),
		events:      events,
	}
}

func defaultRules() domain.Rules {
	return domain.Rules{
		ChallengeTimeframeDays:     10,
		ProtectionDaysAfterDefense: 7,
		MinRequiredDateOptions:     2,
	}
}

// activeTournament creates a best-of-3, five tier tournament and starts it
func (f *fixture) activeTournament(t *testing.T, rules domain.Rules) *domain.Tournament {
	t.Helper()
	ctx := context.Background()
	tour, err := f.tournaments.CreateTournament(ctx, domain.CreateTournamentRequest{
		Name:     "Spring Ladder",
		MaxTiers: 5,
		BestOf:   3,
		Rules:    rules,
	})
	require.NoError(t, err)
	tour, err = f.tournaments.AdvanceStatus(ctx, tour.ID, domain.TournamentActive)
	require.NoError(t, err)
	return tour
}

// entrant registers a team and places it directly on the given tier
func (f *fixture) entrant(t *testing.T, tournamentID, name string, tier int) *domain.Standing {
	t.Helper()
	ctx := context.Background()
	team, err := f.teams.RegisterTeam(ctx, domain.RegisterTeamRequest{Name: name, CaptainID: name + "-captain"})
	require.NoError(t, err)
	st := &domain.Standing{
		ID:           uuid.NewString(),
		TeamID:       team.ID,
		TournamentID: tournamentID,
		Tier:         tier,
		JoinedAt:     f.clock.Now(),
	}
	require.NoError(t, f.store.CreateStanding(ctx, st))
	return st
}

func (f *fixture) challenge(t *testing.T, tournamentID string, challenger, defender *domain.Standing) *domain.Challenge {
	t.Helper()
	c, err := f.engine.CreateChallenge(context.Background(), domain.CreateChallengeRequest{
		TournamentID: tournamentID,
		ChallengerID: challenger.ID,
		DefenderID:   defender.ID,
	})
	require.NoError(t, err)
	return c
}

// scheduled walks a new challenge to scheduled and moves the clock past the
// match date
func (f *fixture) scheduled(t *testing.T, tournamentID string, challenger, defender *domain.Standing) *domain.Challenge {
	t.Helper()
	ctx := context.Background()
	c := f.challenge(t, tournamentID, challenger, defender)

	first := f.clock.Now().Add(24 * time.Hour)
	_, err := f.engine.ProposeDates(ctx, c.ID, []time.Time{first, first.Add(24 * time.Hour)})
	require.NoError(t, err)
	c, err = f.engine.ScheduleChallenge(ctx, c.ID, first)
	require.NoError(t, err)

	f.clock.Advance(25 * time.Hour)
	return c
}

func (f *fixture) standing(t *testing.T, id string) *domain.Standing {
	t.Helper()
	st, err := f.store.GetStanding(context.Background(), id)
	require.NoError(t, err)
	return st
}

func requireReason(t *testing.T, err error, reason domain.Reason) *domain.RejectionError {
	t.Helper()
	require.Error(t, err)
	rej, ok := domain.AsRejection(err)
	require.Truef(t, ok, "expected rejection %s, got %v", reason, err)
	require.Equal(t, reason, rej.Reason, rej.Error())
	return rej
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.ChallengeEvent
	err    error
}

func (r *recordingNotifier) Publish(_ context.Context, event domain.ChallengeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingNotifier) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingCache struct {
	mu        sync.Mutex
	standings map[string]domain.Standing
	err       error
}

func (r *recordingCache) UpsertStandings(_ context.Context, _ string, standings ...domain.Standing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.standings == nil {
		r.standings = make(map[string]domain.Standing)
	}
	for _, s := range standings {
		r.standings[s.ID] = s
	}
	return nil
}

var errBoom = errors.New("boom")
