package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tier-ladder/internal/domain"
)

func TestSortedIDs(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, sortedIDs([]string{"b", "a", "b", ""}))
	assert.Empty(t, sortedIDs(nil))
}

func TestStatusArgs(t *testing.T) {
	assert.Nil(t, statusArgs(nil))
	assert.Equal(t, []string{"pending", "scheduled"}, statusArgs(domain.OpenStatuses))
}

func TestEncodeChallenge_NullableColumns(t *testing.T) {
	c := &domain.Challenge{TierBefore: domain.TierPair{Challenger: 4, Defender: 3}}

	enc, err := encodeChallenge(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"challenger":4,"defender":3}`, string(enc.tierBefore))
	assert.Nil(t, enc.result)
	assert.Nil(t, enc.forfeit)

	c.Forfeit = &domain.Forfeit{ForfeitingID: "s1", Reason: domain.ForfeitNoShow, Penalty: 15, Unfair: true}
	enc, err = encodeChallenge(c)
	require.NoError(t, err)

	decoded, err := unmarshalNullable[domain.Forfeit](enc.forfeit)
	require.NoError(t, err)
	assert.Equal(t, c.Forfeit, decoded)
}

func TestTournamentByIDQuery(t *testing.T) {
	assert.False(t, strings.HasSuffix(tournamentByIDQuery(false), "FOR UPDATE"))
	assert.True(t, strings.HasSuffix(tournamentByIDQuery(true), "FOR UPDATE"))
}

func TestStamp_UsesInjectedClock(t *testing.T) {
	fixed := time.Date(2024, 1, 14, 9, 30, 0, 0, time.FixedZone("CET", 3600))
	r := &Repository{now: func() time.Time { return fixed }}

	assert.Equal(t, fixed.UTC(), r.stamp())
	assert.Equal(t, time.UTC, r.stamp().Location())

	r.SetNow(func() time.Time { return fixed.Add(time.Hour) })
	assert.Equal(t, fixed.Add(time.Hour).UTC(), r.stamp())
}
