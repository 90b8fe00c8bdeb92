package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tier-ladder/internal/domain"
)

func seedStanding(t *testing.T, s *Store, id string, tier int) {
	t.Helper()
	require.NoError(t, s.CreateStanding(context.Background(), &domain.Standing{
		ID: id, TeamID: "team-" + id, TournamentID: "t1", Tier: tier,
	}))
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedStanding(t, s, "a", 3)

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		tier := 1
		if _, err := tx.UpdateStanding(ctx, "a", domain.StandingUpdate{Tier: &tier, PrestigeDelta: 10}); err != nil {
			return err
		}
		if err := tx.InsertChallenge(ctx, &domain.Challenge{ID: "c1", ChallengerID: "a", TournamentID: "t1"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	st, err := s.GetStanding(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 3, st.Tier)
	assert.Zero(t, st.Prestige)

	_, err = s.GetChallenge(ctx, "c1")
	assert.ErrorIs(t, err, domain.ErrChallengeNotFound)
}

func TestWithinTx_RollsBackWhenContextEnds(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := s.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		if err := tx.InsertChallenge(ctx, &domain.Challenge{ID: "c1", ChallengerID: "a", TournamentID: "t1"}); err != nil {
			return err
		}
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.GetChallenge(context.Background(), "c1")
	assert.ErrorIs(t, err, domain.ErrChallengeNotFound)
}

func TestWithinTx_Commits(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	seedStanding(t, s, "a", 3)

	err := s.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		_, err := tx.UpdateStanding(ctx, "a", domain.StandingUpdate{WinsDelta: 1})
		return err
	})
	require.NoError(t, err)

	st, err := s.GetStanding(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Wins)
}

func TestCreateStanding_RejectsSecondJoin(t *testing.T) {
	s := NewStore()
	seedStanding(t, s, "a", 3)

	err := s.CreateStanding(context.Background(), &domain.Standing{ID: "b", TeamID: "team-a", TournamentID: "t1"})
	assert.ErrorIs(t, err, domain.ErrAlreadyJoined)
}

func TestChallengeQueries(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertChallenge(ctx, &domain.Challenge{ID: "c1", TournamentID: "t1", ChallengerID: "a", DefenderID: "b", Status: domain.StatusPending, CreatedAt: base.AddDate(0, -1, 0)}))
	require.NoError(t, s.InsertChallenge(ctx, &domain.Challenge{ID: "c2", TournamentID: "t1", ChallengerID: "a", DefenderID: "c", Status: domain.StatusCompleted, CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, s.InsertChallenge(ctx, &domain.Challenge{ID: "c3", TournamentID: "t1", ChallengerID: "c", DefenderID: "a", Status: domain.StatusScheduled, CreatedAt: base.Add(2 * time.Hour)}))

	open, err := s.FindChallengesByParticipant(ctx, "a", domain.OpenStatuses...)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "c1", open[0].ID)
	assert.Equal(t, "c3", open[1].ID)

	completed, err := s.FindChallengesByStatus(ctx, "t1", domain.StatusCompleted)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "c2", completed[0].ID)

	n, err := s.CountChallengesCreatedSince(ctx, "a", base)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetChallenge_ReturnsCopy(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.InsertChallenge(ctx, &domain.Challenge{ID: "c1", ProposedDates: []time.Time{time.Unix(100, 0)}}))

	c, err := s.GetChallenge(ctx, "c1")
	require.NoError(t, err)
	c.ProposedDates[0] = time.Unix(200, 0)

	again, err := s.GetChallenge(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, time.Unix(100, 0), again.ProposedDates[0])
}
