package service

import (
	"errors"
	"sort"
	"time"

	"github.com/tier-ladder/internal/domain"
)

// lookupErr turns a registry miss into the matching rejection and anything
// else into a transient failure.
func lookupErr(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrTournamentNotFound):
		return domain.Reject(domain.ReasonTournamentNotFound, "%s", op)
	case errors.Is(err, domain.ErrStandingNotFound):
		return domain.Reject(domain.ReasonStandingNotFound, "%s", op)
	case errors.Is(err, domain.ErrChallengeNotFound):
		return domain.Reject(domain.ReasonChallengeNotFound, "%s", op)
	case errors.Is(err, domain.ErrTeamNotFound):
		return domain.Reject(domain.ReasonTeamNotFound, "%s", op)
	}
	return domain.Transient(op, err)
}

// requireStatus rejects challenges outside the allowed statuses. Terminal
// challenges always get ChallengeAlreadyTerminal.
func requireStatus(c *domain.Challenge, allowed ...domain.ChallengeStatus) error {
	if c.Status.IsTerminal() {
		return domain.RejectChallenge(domain.ReasonChallengeAlreadyTerminal, c.ID)
	}
	for _, s := range allowed {
		if c.Status == s {
			return nil
		}
	}
	rej := domain.Reject(domain.ReasonInvalidStatusForOperation, "challenge is %s", c.Status)
	rej.ChallengeID = c.ID
	return rej
}

// transition moves c to next, rejecting moves the status machine forbids
func transition(c *domain.Challenge, next domain.ChallengeStatus) error {
	if !c.Status.CanTransitionTo(next) {
		// no allowed statuses, so this always rejects
		return requireStatus(c)
	}
	c.Status = next
	return nil
}

// checkTierRelationship allows a challenge within the same tier or into the
// tier directly above.
func checkTierRelationship(challengerTier, defenderTier int) error {
	if challengerTier == defenderTier || challengerTier == defenderTier+1 {
		return nil
	}
	return domain.Reject(domain.ReasonInvalidTierRelationship,
		"tier %d cannot challenge tier %d", challengerTier, defenderTier)
}

// monthStart returns the first instant of now's calendar month in UTC
func monthStart(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// normalizeDates sorts dates and drops duplicates
func normalizeDates(dates []time.Time) []time.Time {
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.UTC().Truncate(time.Second))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })

	distinct := out[:0]
	for i, d := range out {
		if i > 0 && d.Equal(distinct[len(distinct)-1]) {
			continue
		}
		distinct = append(distinct, d)
	}
	return distinct
}

// matchProposedDate returns the proposed date closest to chosen, if it lies
// within tolerance
func matchProposedDate(proposed []time.Time, chosen time.Time, tolerance time.Duration) (time.Time, bool) {
	var (
		best     time.Time
		bestDiff time.Duration = -1
	)
	for _, p := range proposed {
		diff := p.Sub(chosen)
		if diff < 0 {
			diff = -diff
		}
		if diff <= tolerance && (bestDiff < 0 || diff < bestDiff) {
			best, bestDiff = p, diff
		}
	}
	return best, bestDiff >= 0
}

// validateScore checks a reported result against the tournament format
func validateScore(t *domain.Tournament, c *domain.Challenge, req domain.SubmitResultRequest) (domain.Score, error) {
	score, err := domain.ParseScore(req.Score)
	if err != nil {
		return domain.Score{}, domain.Reject(domain.ReasonScoreFormatInvalid, "%v", err)
	}
	if !score.FitsFormat(t.BestOf) {
		return domain.Score{}, domain.Reject(domain.ReasonScoreFormatInvalid,
			"score %s does not finish a best-of-%d", score, t.BestOf)
	}
	if len(req.Games) == 0 {
		return score, nil
	}
	if len(req.Games) != score.Wins+score.Losses {
		return domain.Score{}, domain.Reject(domain.ReasonScoreFormatInvalid,
			"score %s needs %d games, got %d", score, score.Wins+score.Losses, len(req.Games))
	}

	loserID := c.Opponent(req.WinnerID)
	won := 0
	for _, g := range req.Games {
		switch {
		case g.WinnerID == req.WinnerID && g.LoserID == loserID:
			won++
		case g.WinnerID == loserID && g.LoserID == req.WinnerID:
		default:
			return domain.Score{}, domain.Reject(domain.ReasonScoreFormatInvalid,
				"game %d is not between the two participants", g.Number)
		}
	}
	if won != score.Wins {
		return domain.Score{}, domain.Reject(domain.ReasonScoreFormatInvalid,
			"games show %d wins for the winner, score says %d", won, score.Wins)
	}
	if req.Games[len(req.Games)-1].WinnerID != req.WinnerID {
		return domain.Score{}, domain.Reject(domain.ReasonScoreFormatInvalid, "match must end on the winner's game")
	}
	return score, nil
}

// numberGames fills in missing game numbers in play order
func numberGames(games []domain.GameResult) []domain.GameResult {
	out := make([]domain.GameResult, len(games))
	for i, g := range games {
		if g.Number == 0 {
			g.Number = i + 1
		}
		out[i] = g
	}
	return out
}

// resultUpdate builds the standing bookkeeping for one side
func resultUpdate(won bool, tier, prestige, streak int) domain.StandingUpdate {
	u := domain.StandingUpdate{Tier: &tier, PrestigeDelta: prestige}
	if won {
		next := streak + 1
		u.WinsDelta = 1
		u.WinStreak = &next
	} else {
		zero := 0
		u.LossesDelta = 1
		u.WinStreak = &zero
	}
	return u
}
