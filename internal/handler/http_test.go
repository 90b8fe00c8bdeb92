package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tier-ladder/internal/config"
	"github.com/tier-ladder/internal/domain"
	"github.com/tier-ladder/internal/memory"
	"github.com/tier-ladder/internal/prestige"
	"github.com/tier-ladder/internal/service"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type envelope struct {
	Success     bool            `json:"success"`
	Data        json.RawMessage `json:"data"`
	Error       string          `json:"error"`
	Reason      string          `json:"reason"`
	ChallengeID string          `json:"challenge_id"`
}

type testServer struct {
	handler *Handler
	router  http.Handler
	clock   *clockwork.FakeClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	store := memory.NewStore()
	store.SetNow(clock.Now)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.DefaultConfig().Ladder

	h := NewHandler(
		service.NewTeamService(store, clock, logger),
		service.NewTournamentService(store, clock, logger),
		service.NewChallengeEngine(store, prestige.NewCalculator(cfg.Penalties), &cfg, clock, logger),
		nil,
		&cfg,
		logger,
	)
	return &testServer{handler: h, router: h.Router(), clock: clock}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

// setupLadder creates an active tournament with two joined teams
func (s *testServer) setupLadder(t *testing.T) (domain.Tournament, []domain.Standing) {
	t.Helper()
	code, env := s.do(t, http.MethodPost, "/api/v1/tournaments", domain.CreateTournamentRequest{
		Name:     "Spring Ladder",
		MaxTiers: 5,
		BestOf:   3,
		Rules: domain.Rules{
			ChallengeTimeframeDays:     10,
			ProtectionDaysAfterDefense: 7,
			MinRequiredDateOptions:     2,
		},
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	tour := decodeData[domain.Tournament](t, env)

	code, env = s.do(t, http.MethodPost, "/api/v1/tournaments/"+tour.ID+"/status", statusRequest{Status: domain.TournamentActive})
	require.Equal(t, http.StatusOK, code, env.Error)

	var standings []domain.Standing
	for _, name := range []string{"Night Owls", "Day Hawks"} {
		code, env = s.do(t, http.MethodPost, "/api/v1/teams", domain.RegisterTeamRequest{Name: name, CaptainID: name + "-captain"})
		require.Equal(t, http.StatusCreated, code, env.Error)
		team := decodeData[domain.Team](t, env)

		code, env = s.do(t, http.MethodPost, "/api/v1/tournaments/"+tour.ID+"/join", joinRequest{TeamID: team.ID})
		require.Equal(t, http.StatusCreated, code, env.Error)
		standings = append(standings, decodeData[domain.Standing](t, env))
	}
	return tour, standings
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
}

func TestReadyCheck(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, code)

	s.handler.AddReadinessCheck("postgres", func(context.Context) error { return errors.New("connection refused") })
	code, env := s.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, env.Success)
	assert.Contains(t, string(env.Data), "connection refused")
}

func TestChallengeLifecycle(t *testing.T) {
	s := newTestServer(t)
	tour, standings := s.setupLadder(t)

	code, env := s.do(t, http.MethodPost, "/api/v1/challenges", domain.CreateChallengeRequest{
		TournamentID: tour.ID,
		ChallengerID: standings[0].ID,
		DefenderID:   standings[1].ID,
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	c := decodeData[domain.Challenge](t, env)
	assert.Equal(t, domain.StatusPending, c.Status)

	// a second challenge between the same pair is refused with the open id
	code, env = s.do(t, http.MethodPost, "/api/v1/challenges", domain.CreateChallengeRequest{
		TournamentID: tour.ID,
		ChallengerID: standings[0].ID,
		DefenderID:   standings[1].ID,
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, string(domain.ReasonDuplicateChallenge), env.Reason)
	assert.Equal(t, c.ID, env.ChallengeID)

	first := epoch.Add(24 * time.Hour)
	code, env = s.do(t, http.MethodPost, "/api/v1/challenges/"+c.ID+"/dates", proposeRequest{Dates: []time.Time{first, first.Add(24 * time.Hour)}})
	require.Equal(t, http.StatusOK, code, env.Error)

	code, env = s.do(t, http.MethodPost, "/api/v1/challenges/"+c.ID+"/schedule", scheduleRequest{Date: first})
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, domain.StatusScheduled, decodeData[domain.Challenge](t, env).Status)

	code, env = s.do(t, http.MethodPost, "/api/v1/challenges/"+c.ID+"/result", domain.SubmitResultRequest{WinnerID: standings[0].ID, Score: "2-1"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, string(domain.ReasonMatchNotYetPlayed), env.Reason)

	s.clock.Advance(25 * time.Hour)
	code, env = s.do(t, http.MethodPost, "/api/v1/challenges/"+c.ID+"/result", domain.SubmitResultRequest{WinnerID: standings[0].ID, Score: "2-1"})
	require.Equal(t, http.StatusOK, code, env.Error)
	done := decodeData[domain.Challenge](t, env)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	require.NotNil(t, done.Result)
	assert.Equal(t, "2-1", done.Result.Score)

	code, env = s.do(t, http.MethodPost, "/api/v1/challenges/"+c.ID+"/cancel", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, string(domain.ReasonChallengeAlreadyTerminal), env.Reason)

	code, env = s.do(t, http.MethodGet, "/api/v1/tournaments/"+tour.ID+"/challenges?status=completed", nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Len(t, decodeData[[]domain.Challenge](t, env), 1)
}

func TestChallengeErrors(t *testing.T) {
	s := newTestServer(t)
	tour, standings := s.setupLadder(t)

	code, env := s.do(t, http.MethodGet, "/api/v1/challenges/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, string(domain.ReasonChallengeNotFound), env.Reason)

	code, _ = s.do(t, http.MethodPost, "/api/v1/challenges", map[string]string{"tournament_id": tour.ID})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = s.do(t, http.MethodPost, "/api/v1/challenges", domain.CreateChallengeRequest{
		TournamentID: tour.ID,
		ChallengerID: standings[0].ID,
		DefenderID:   standings[0].ID,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, string(domain.ReasonSelfChallenge), env.Reason)

	code, _ = s.do(t, http.MethodGet, "/api/v1/tournaments/"+tour.ID+"/challenges?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPendingForTeamAndPastDue(t *testing.T) {
	s := newTestServer(t)
	tour, standings := s.setupLadder(t)

	code, env := s.do(t, http.MethodPost, "/api/v1/challenges", domain.CreateChallengeRequest{
		TournamentID: tour.ID,
		ChallengerID: standings[0].ID,
		DefenderID:   standings[1].ID,
	})
	require.Equal(t, http.StatusCreated, code, env.Error)

	code, env = s.do(t, http.MethodGet, "/api/v1/teams/"+standings[1].TeamID+"/challenges", nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Len(t, decodeData[[]domain.Challenge](t, env), 1)

	s.clock.Advance(11 * 24 * time.Hour)
	code, env = s.do(t, http.MethodGet, "/api/v1/tournaments/"+tour.ID+"/past-due", nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Len(t, decodeData[[]service.PastDueChallenge](t, env), 1)
}

func TestRosterRequiresCaptain(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodPost, "/api/v1/teams", domain.RegisterTeamRequest{Name: "Night Owls", CaptainID: "cap"})
	require.Equal(t, http.StatusCreated, code, env.Error)
	team := decodeData[domain.Team](t, env)

	member := domain.Member{UserID: "u2", DisplayName: "Second"}
	code, _ = s.do(t, http.MethodPost, "/api/v1/teams/"+team.ID+"/members", member)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = s.do(t, http.MethodPost, "/api/v1/teams/"+team.ID+"/members", member, actorHeader, "u2")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, string(domain.ReasonNotCaptain), env.Reason)

	code, env = s.do(t, http.MethodPost, "/api/v1/teams/"+team.ID+"/members", member, actorHeader, "cap")
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Len(t, decodeData[domain.Team](t, env).Members, 2)

	code, env = s.do(t, http.MethodGet, "/api/v1/teams/by-slug/night-owls", nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, team.ID, decodeData[domain.Team](t, env).ID)

	code, env = s.do(t, http.MethodPost, "/api/v1/teams", domain.RegisterTeamRequest{Name: "Night Owls!", CaptainID: "other"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, string(domain.ReasonDuplicateTeamName), env.Reason)
}

type stubLadder struct {
	entries []domain.LadderEntry
	err     error
}

func (l *stubLadder) GetLadder(context.Context, string, int) ([]domain.LadderEntry, error) {
	return l.entries, l.err
}

func (l *stubLadder) GetRank(_ context.Context, _, standingID string) (*domain.LadderEntry, error) {
	for _, e := range l.entries {
		if e.Standing.ID == standingID {
			return &e, nil
		}
	}
	return nil, domain.ErrStandingNotFound
}

func (l *stubLadder) Exists(context.Context, string) (bool, error) {
	return len(l.entries) > 0, l.err
}

func TestLadder_FallsBackToStore(t *testing.T) {
	s := newTestServer(t)
	tour, standings := s.setupLadder(t)

	code, env := s.do(t, http.MethodGet, "/api/v1/tournaments/"+tour.ID+"/ladder?limit=1", nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	entries := decodeData[[]domain.LadderEntry](t, env)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Rank)

	s.handler.SetLadderReader(&stubLadder{err: errors.New("redis down")})
	code, env = s.do(t, http.MethodGet, "/api/v1/tournaments/"+tour.ID+"/ladder", nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Len(t, decodeData[[]domain.LadderEntry](t, env), 2)

	code, env = s.do(t, http.MethodGet, "/api/v1/tournaments/"+tour.ID+"/ladder/"+standings[1].ID, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, standings[1].ID, decodeData[domain.LadderEntry](t, env).Standing.ID)

	code, _ = s.do(t, http.MethodGet, "/api/v1/tournaments/"+tour.ID+"/ladder/nobody", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestLadder_ServedFromCache(t *testing.T) {
	s := newTestServer(t)
	tour, _ := s.setupLadder(t)

	cached := []domain.LadderEntry{{Rank: 1, Standing: domain.Standing{ID: "cached", Tier: 1}}}
	s.handler.SetLadderReader(&stubLadder{entries: cached})

	code, env := s.do(t, http.MethodGet, "/api/v1/tournaments/"+tour.ID+"/ladder", nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, cached, decodeData[[]domain.LadderEntry](t, env))
}

func TestTournamentValidationAndLock(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodPost, "/api/v1/tournaments", domain.CreateTournamentRequest{Name: "Broken", MaxTiers: 0, BestOf: 2})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, string(domain.ReasonInvalidTournament), env.Reason)

	tour, _ := s.setupLadder(t)
	code, env = s.do(t, http.MethodPut, "/api/v1/tournaments/"+tour.ID+"/rules", domain.CreateTournamentRequest{Name: "Renamed", MaxTiers: 4, BestOf: 1})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, string(domain.ReasonTournamentLocked), env.Reason)

	code, env = s.do(t, http.MethodGet, "/api/v1/tournaments?status=active", nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Len(t, decodeData[[]domain.Tournament](t, env), 1)
}
