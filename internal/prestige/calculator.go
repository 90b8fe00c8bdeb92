// Package prestige converts challenge outcomes into tier changes and prestige
// deltas. Everything here is pure: no storage, no clock.
package prestige

import "github.com/tier-ladder/internal/domain"

// Award is a fixed prestige pair for one outcome
type Award struct {
	Challenger int
	Defender   int
}

var (
	// same tier: winner 6, loser 2
	sameTierChallengerWin = Award{Challenger: 6, Defender: 2}
	sameTierDefenderWin   = Award{Challenger: 2, Defender: 6}

	// challenger started in the better tier
	higherChallengerWin = Award{Challenger: 4, Defender: 3}
	higherDefenderWin   = Award{Challenger: 1, Defender: 10}

	// defender started in the better tier, the usual climb
	lowerChallengerWin = Award{Challenger: 10, Defender: 1}
	lowerDefenderWin   = Award{Challenger: 3, Defender: 4}
)

// Penalties are the prestige deductions for unfair forfeits
type Penalties struct {
	Unfair int `yaml:"unfair"`
	NoShow int `yaml:"no_show"`
	GaveUp int `yaml:"gave_up"`
}

// DefaultPenalties returns the standard forfeit severities
func DefaultPenalties() Penalties {
	return Penalties{Unfair: 10, NoShow: 15, GaveUp: 20}
}

// For returns the penalty for a forfeit. A no_show or gave_up reason counts as
// unfair on its own; anything else is only penalized when flagged unfair.
func (p Penalties) For(unfair bool, reason domain.ForfeitReason) int {
	switch reason {
	case domain.ForfeitNoShow:
		return p.NoShow
	case domain.ForfeitGaveUp:
		return p.GaveUp
	}
	if unfair {
		return p.Unfair
	}
	return 0
}

// Calculator resolves challenge outcomes
type Calculator struct {
	penalties Penalties
}

// NewCalculator creates a calculator with the given penalties
func NewCalculator(p Penalties) *Calculator {
	return &Calculator{penalties: p}
}

// Input describes a finished challenge. Tiers are the ones in effect when the
// match is resolved.
type Input struct {
	ChallengerTier int
	DefenderTier   int
	ChallengerWon  bool
	Forfeit        *domain.ForfeitRequest
	// ForfeitByChallenger is only read when Forfeit is set
	ForfeitByChallenger bool
}

// Outcome is everything a resolution writes back
type Outcome struct {
	TierAfter       domain.TierPair
	Prestige        domain.PrestigePair
	Penalty         int
	ProtectDefender bool
}

// BaseAward returns the prestige pair before any forfeit penalty
func BaseAward(challengerTier, defenderTier int, challengerWon bool) Award {
	switch {
	case challengerTier == defenderTier:
		if challengerWon {
			return sameTierChallengerWin
		}
		return sameTierDefenderWin
	case challengerTier < defenderTier:
		if challengerWon {
			return higherChallengerWin
		}
		return higherDefenderWin
	default:
		if challengerWon {
			return lowerChallengerWin
		}
		return lowerDefenderWin
	}
}

// SwapTiers applies the ladder rule: a challenger win trades tiers, a defender
// win leaves both where they are.
func SwapTiers(challengerTier, defenderTier int, challengerWon bool) domain.TierPair {
	if challengerWon {
		return domain.TierPair{Challenger: defenderTier, Defender: challengerTier}
	}
	return domain.TierPair{Challenger: challengerTier, Defender: defenderTier}
}

// Resolve computes tiers, prestige and protection for a finished challenge
func (c *Calculator) Resolve(in Input) Outcome {
	award := BaseAward(in.ChallengerTier, in.DefenderTier, in.ChallengerWon)
	out := Outcome{
		TierAfter:       SwapTiers(in.ChallengerTier, in.DefenderTier, in.ChallengerWon),
		Prestige:        domain.PrestigePair{Challenger: award.Challenger, Defender: award.Defender},
		ProtectDefender: !in.ChallengerWon,
	}

	if in.Forfeit != nil {
		out.Penalty = c.penalties.For(in.Forfeit.Unfair, in.Forfeit.Reason)
		if in.ForfeitByChallenger {
			out.Prestige.Challenger -= out.Penalty
		} else {
			out.Prestige.Defender -= out.Penalty
		}
	}
	return out
}
