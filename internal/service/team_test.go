package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tier-ladder/internal/domain"
)

func TestRegisterTeam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	team, err := f.teams.RegisterTeam(ctx, domain.RegisterTeamRequest{
		Name:               "  Night Owls Ünited ",
		CaptainID:          "u1",
		CaptainDisplayName: "Ada",
	})
	require.NoError(t, err)

	assert.Equal(t, "Night Owls Ünited", team.Name)
	assert.Equal(t, "night-owls-united", team.Slug)
	assert.Equal(t, "u1", team.CaptainID)
	require.Len(t, team.Members, 1)
	assert.True(t, team.Members[0].IsCaptain)

	bySlug, err := f.teams.GetTeamBySlug(ctx, "night-owls-united")
	require.NoError(t, err)
	assert.Equal(t, team.ID, bySlug.ID)

	_, err = f.teams.RegisterTeam(ctx, domain.RegisterTeamRequest{Name: "night owls united", CaptainID: "u2"})
	requireReason(t, err, domain.ReasonDuplicateTeamName)

	_, err = f.teams.RegisterTeam(ctx, domain.RegisterTeamRequest{Name: "No Captain"})
	requireReason(t, err, domain.ReasonInvalidRoster)
}

func TestTeamRoster(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	team, err := f.teams.RegisterTeam(ctx, domain.RegisterTeamRequest{Name: "Red Foxes", CaptainID: "cap"})
	require.NoError(t, err)

	_, err = f.teams.AddMember(ctx, team.ID, "not-cap", domain.Member{UserID: "p1"})
	requireReason(t, err, domain.ReasonNotCaptain)

	team, err = f.teams.AddMember(ctx, team.ID, "cap", domain.Member{UserID: "p1", DisplayName: "Pat", Role: "support", IsCaptain: true})
	require.NoError(t, err)
	require.Len(t, team.Members, 2)
	assert.False(t, team.Members[1].IsCaptain, "new members never join as captain")

	_, err = f.teams.AddMember(ctx, team.ID, "cap", domain.Member{UserID: "p1"})
	requireReason(t, err, domain.ReasonInvalidRoster)

	team, err = f.teams.UpdateMemberRole(ctx, team.ID, "cap", "p1", "carry")
	require.NoError(t, err)
	m, ok := team.Member("p1")
	require.True(t, ok)
	assert.Equal(t, "carry", m.Role)

	_, err = f.teams.RemoveMember(ctx, team.ID, "cap", "cap")
	requireReason(t, err, domain.ReasonInvalidRoster)

	team, err = f.teams.TransferCaptain(ctx, team.ID, "cap", "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", team.CaptainID)

	isCaptain, err := f.teams.IsCaptain(ctx, team.ID, "cap")
	require.NoError(t, err)
	assert.False(t, isCaptain)

	team, err = f.teams.RemoveMember(ctx, team.ID, "p1", "cap")
	require.NoError(t, err)

	members, err := f.teams.GetTeamMembers(ctx, team.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "p1", members[0].UserID)
	assert.True(t, members[0].IsCaptain)
}

func TestRetireTeam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tour := f.activeTournament(t, defaultRules())
	retiring := f.entrant(t, tour.ID, "Red Foxes", 3)
	other := f.entrant(t, tour.ID, "Blue Owls", 3)

	team, err := f.teams.RetireTeam(ctx, retiring.TeamID, "Red Foxes-captain")
	require.NoError(t, err)
	assert.True(t, team.Retired)

	_, err = f.teams.AddMember(ctx, team.ID, "Red Foxes-captain", domain.Member{UserID: "late"})
	requireReason(t, err, domain.ReasonTeamNotFound)

	_, err = f.engine.CreateChallenge(ctx, domain.CreateChallengeRequest{
		TournamentID: tour.ID, ChallengerID: other.ID, DefenderID: retiring.ID,
	})
	requireReason(t, err, domain.ReasonTeamNotFound)

	// standings survive retirement
	_, err = f.tournaments.GetStanding(ctx, retiring.ID)
	assert.NoError(t, err)
}

func TestGetTeam_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.teams.GetTeam(context.Background(), "missing")
	requireReason(t, err, domain.ReasonTeamNotFound)
	assert.True(t, domain.IsNotFoundError(err))
}
