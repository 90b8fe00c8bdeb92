package prestige

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tier-ladder/internal/domain"
)

func TestBaseAward_SameTierAlwaysSumsToEight(t *testing.T) {
	for tier := 1; tier <= 8; tier++ {
		for _, challengerWon := range []bool{true, false} {
			a := BaseAward(tier, tier, challengerWon)
			assert.Equal(t, 8, a.Challenger+a.Defender)
			if challengerWon {
				assert.Equal(t, Award{Challenger: 6, Defender: 2}, a)
			} else {
				assert.Equal(t, Award{Challenger: 2, Defender: 6}, a)
			}
		}
	}
}

func TestBaseAward_ChallengerOneTierBelow(t *testing.T) {
	for defender := 1; defender <= 7; defender++ {
		challenger := defender + 1
		assert.Equal(t, Award{Challenger: 10, Defender: 1}, BaseAward(challenger, defender, true))
		assert.Equal(t, Award{Challenger: 3, Defender: 4}, BaseAward(challenger, defender, false))
	}
}

func TestBaseAward_ChallengerAbove(t *testing.T) {
	assert.Equal(t, Award{Challenger: 4, Defender: 3}, BaseAward(2, 3, true))
	assert.Equal(t, Award{Challenger: 1, Defender: 10}, BaseAward(2, 3, false))
}

func TestSwapTiers(t *testing.T) {
	assert.Equal(t, domain.TierPair{Challenger: 3, Defender: 4}, SwapTiers(4, 3, true))
	assert.Equal(t, domain.TierPair{Challenger: 4, Defender: 3}, SwapTiers(4, 3, false))
	assert.Equal(t, domain.TierPair{Challenger: 3, Defender: 3}, SwapTiers(3, 3, true))
}

func TestPenalties_For(t *testing.T) {
	p := DefaultPenalties()

	tests := []struct {
		name   string
		unfair bool
		reason domain.ForfeitReason
		want   int
	}{
		{name: "fair without reason", want: 0},
		{name: "unfair without reason", unfair: true, want: 10},
		{name: "no show", reason: domain.ForfeitNoShow, want: 15},
		{name: "no show flagged", unfair: true, reason: domain.ForfeitNoShow, want: 15},
		{name: "gave up", reason: domain.ForfeitGaveUp, want: 20},
		{name: "timeout", reason: domain.ForfeitTimeout, want: 0},
		{name: "timeout flagged", unfair: true, reason: domain.ForfeitTimeout, want: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.For(tt.unfair, tt.reason))
		})
	}
}

func TestResolve_ChallengerWinsFromBelow(t *testing.T) {
	calc := NewCalculator(DefaultPenalties())

	out := calc.Resolve(Input{ChallengerTier: 4, DefenderTier: 3, ChallengerWon: true})

	assert.Equal(t, domain.TierPair{Challenger: 3, Defender: 4}, out.TierAfter)
	assert.Equal(t, domain.PrestigePair{Challenger: 10, Defender: 1}, out.Prestige)
	assert.False(t, out.ProtectDefender)
	assert.Zero(t, out.Penalty)
}

func TestResolve_SameTierDefenderWins(t *testing.T) {
	calc := NewCalculator(DefaultPenalties())

	out := calc.Resolve(Input{ChallengerTier: 3, DefenderTier: 3, ChallengerWon: false})

	assert.Equal(t, domain.TierPair{Challenger: 3, Defender: 3}, out.TierAfter)
	assert.Equal(t, domain.PrestigePair{Challenger: 2, Defender: 6}, out.Prestige)
	assert.True(t, out.ProtectDefender)
}

func TestResolve_DefenderNoShow(t *testing.T) {
	calc := NewCalculator(DefaultPenalties())

	out := calc.Resolve(Input{
		ChallengerTier: 4,
		DefenderTier:   3,
		ChallengerWon:  true,
		Forfeit:        &domain.ForfeitRequest{Reason: domain.ForfeitNoShow},
	})

	assert.Equal(t, domain.TierPair{Challenger: 3, Defender: 4}, out.TierAfter)
	assert.Equal(t, domain.PrestigePair{Challenger: 10, Defender: 1 - 15}, out.Prestige)
	assert.Equal(t, 15, out.Penalty)
}

func TestResolve_ChallengerForfeitsUnfairly(t *testing.T) {
	calc := NewCalculator(Penalties{Unfair: 7, NoShow: 15, GaveUp: 20})

	out := calc.Resolve(Input{
		ChallengerTier:      4,
		DefenderTier:        3,
		ChallengerWon:       false,
		Forfeit:             &domain.ForfeitRequest{Unfair: true},
		ForfeitByChallenger: true,
	})

	assert.Equal(t, domain.PrestigePair{Challenger: 3 - 7, Defender: 4}, out.Prestige)
	assert.True(t, out.ProtectDefender)
}
