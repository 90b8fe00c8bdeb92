package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tier-ladder/internal/domain"
)

func TestCreateTournament_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  domain.CreateTournamentRequest
	}{
		{"even best-of", domain.CreateTournamentRequest{Name: "Cup", MaxTiers: 3, BestOf: 2}},
		{"no tiers", domain.CreateTournamentRequest{Name: "Cup", MaxTiers: 0, BestOf: 3}},
		{"capacity per tier", domain.CreateTournamentRequest{Name: "Cup", MaxTiers: 3, BestOf: 3, TierCapacities: []int{1, 2}}},
		{"no name", domain.CreateTournamentRequest{Name: "  ", MaxTiers: 3, BestOf: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.tournaments.CreateTournament(ctx, tt.req)
			requireReason(t, err, domain.ReasonInvalidTournament)
		})
	}

	tour, err := f.tournaments.CreateTournament(ctx, domain.CreateTournamentRequest{Name: "Cup", MaxTiers: 3, BestOf: 5})
	require.NoError(t, err)
	assert.Equal(t, domain.TournamentUpcoming, tour.Status)
	assert.Equal(t, 3, tour.WinsNeeded())
}

func TestAdvanceStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tour, err := f.tournaments.CreateTournament(ctx, domain.CreateTournamentRequest{Name: "Cup", MaxTiers: 3, BestOf: 3})
	require.NoError(t, err)

	_, err = f.tournaments.AdvanceStatus(ctx, tour.ID, domain.TournamentActive)
	require.NoError(t, err)
	_, err = f.tournaments.AdvanceStatus(ctx, tour.ID, domain.TournamentUpcoming)
	requireReason(t, err, domain.ReasonInvalidStatusTransition)
	_, err = f.tournaments.AdvanceStatus(ctx, tour.ID, domain.TournamentCompleted)
	require.NoError(t, err)

	active, err := f.tournaments.ListTournaments(ctx, domain.TournamentActive)
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := f.tournaments.ListTournaments(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestJoinTournament(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cache := &recordingCache{}
	f.tournaments.SetLadderCache(cache)
	tour, err := f.tournaments.CreateTournament(ctx, domain.CreateTournamentRequest{
		Name: "Cup", MaxTiers: 3, BestOf: 3, TierCapacities: []int{1, 2, 2},
	})
	require.NoError(t, err)

	var teamIDs []string
	for _, name := range []string{"Red Foxes", "Blue Owls", "Green Bears"} {
		team, err := f.teams.RegisterTeam(ctx, domain.RegisterTeamRequest{Name: name, CaptainID: name})
		require.NoError(t, err)
		teamIDs = append(teamIDs, team.ID)
	}

	st, err := f.tournaments.JoinTournament(ctx, tour.ID, teamIDs[0])
	require.NoError(t, err)
	assert.Equal(t, 3, st.Tier, "teams start on the bottom tier")
	assert.Zero(t, st.Prestige)
	assert.Contains(t, cache.standings, st.ID)

	_, err = f.tournaments.JoinTournament(ctx, tour.ID, teamIDs[0])
	requireReason(t, err, domain.ReasonAlreadyJoined)

	_, err = f.tournaments.JoinTournament(ctx, tour.ID, teamIDs[1])
	require.NoError(t, err)
	_, err = f.tournaments.JoinTournament(ctx, tour.ID, teamIDs[2])
	requireReason(t, err, domain.ReasonTierFull)

	_, err = f.tournaments.JoinTournament(ctx, tour.ID, "missing")
	requireReason(t, err, domain.ReasonTeamNotFound)

	standings, err := f.tournaments.ListStandings(ctx, tour.ID)
	require.NoError(t, err)
	assert.Len(t, standings, 2)
}

func TestJoinTournament_ConcurrentJoinsRespectCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tour, err := f.tournaments.CreateTournament(ctx, domain.CreateTournamentRequest{
		Name: "Cup", MaxTiers: 2, BestOf: 3, TierCapacities: []int{2, 3},
	})
	require.NoError(t, err)

	var teamIDs []string
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("Team %d", i)
		team, err := f.teams.RegisterTeam(ctx, domain.RegisterTeamRequest{Name: name, CaptainID: name})
		require.NoError(t, err)
		teamIDs = append(teamIDs, team.ID)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		joined int
		full   int
	)
	for _, id := range teamIDs {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.tournaments.JoinTournament(ctx, tour.ID, id)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				joined++
			} else if domain.IsRejection(err, domain.ReasonTierFull) {
				full++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, joined)
	assert.Equal(t, 5, full)
	standings, err := f.tournaments.ListStandings(ctx, tour.ID)
	require.NoError(t, err)
	assert.Len(t, standings, 3)
}

func TestUpdateRules_LockedOnceJoined(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := domain.CreateTournamentRequest{Name: "Cup", MaxTiers: 3, BestOf: 3, Rules: defaultRules()}
	tour, err := f.tournaments.CreateTournament(ctx, req)
	require.NoError(t, err)

	req.Rules.MaxChallengesPerMonth = 4
	updated, err := f.tournaments.UpdateRules(ctx, tour.ID, req)
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Rules.MaxChallengesPerMonth)

	req.BestOf = 4
	_, err = f.tournaments.UpdateRules(ctx, tour.ID, req)
	requireReason(t, err, domain.ReasonInvalidTournament)

	team, err := f.teams.RegisterTeam(ctx, domain.RegisterTeamRequest{Name: "Red Foxes", CaptainID: "cap"})
	require.NoError(t, err)
	_, err = f.tournaments.JoinTournament(ctx, tour.ID, team.ID)
	require.NoError(t, err)

	req.BestOf = 5
	_, err = f.tournaments.UpdateRules(ctx, tour.ID, req)
	requireReason(t, err, domain.ReasonTournamentLocked)
}
