package service

import (
	"context"
	"sort"
	"time"

	"github.com/tier-ladder/internal/domain"
)

// PastDueChallenge is a pending challenge whose response deadline has passed
type PastDueChallenge struct {
	Challenge domain.Challenge `json:"challenge"`
	Deadline  time.Time        `json:"deadline"`
	OverdueBy time.Duration    `json:"overdue_by"`
}

// GraceElapsed reports whether the challenge has been overdue for at least grace
func (p PastDueChallenge) GraceElapsed(grace time.Duration) bool {
	return p.OverdueBy > grace
}

// GetChallenge returns a challenge by ID
func (e *ChallengeEngine) GetChallenge(ctx context.Context, id string) (*domain.Challenge, error) {
	c, err := e.store.GetChallenge(ctx, id)
	if err != nil {
		return nil, lookupErr("getting challenge", err)
	}
	return c, nil
}

// ListPendingForTeam returns every open challenge involving any of the team's
// standings, oldest first
func (e *ChallengeEngine) ListPendingForTeam(ctx context.Context, teamID string) ([]domain.Challenge, error) {
	if _, err := e.store.GetTeam(ctx, teamID); err != nil {
		return nil, lookupErr("getting team", err)
	}
	standings, err := e.store.ListStandingsByTeam(ctx, teamID)
	if err != nil {
		return nil, domain.Transient("listing standings", err)
	}

	seen := make(map[string]bool)
	var out []domain.Challenge
	for _, s := range standings {
		challenges, err := e.store.FindChallengesByParticipant(ctx, s.ID, domain.OpenStatuses...)
		if err != nil {
			return nil, domain.Transient("finding challenges", err)
		}
		for _, c := range challenges {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ListByStatus returns a tournament's challenges in the given status
func (e *ChallengeEngine) ListByStatus(ctx context.Context, tournamentID string, status domain.ChallengeStatus) ([]domain.Challenge, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidRequest
	}
	if _, err := e.store.GetTournament(ctx, tournamentID); err != nil {
		return nil, lookupErr("getting tournament", err)
	}
	challenges, err := e.store.FindChallengesByStatus(ctx, tournamentID, status)
	if err != nil {
		return nil, domain.Transient("finding challenges", err)
	}
	return challenges, nil
}

// GetPastDueChallenges returns pending challenges of a tournament that have no
// proposed dates and whose response deadline has passed
func (e *ChallengeEngine) GetPastDueChallenges(ctx context.Context, tournamentID string) ([]PastDueChallenge, error) {
	t, err := e.store.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, lookupErr("getting tournament", err)
	}
	pending, err := e.store.FindChallengesByStatus(ctx, t.ID, domain.StatusPending)
	if err != nil {
		return nil, domain.Transient("finding pending challenges", err)
	}

	now := e.clock.Now()
	var out []PastDueChallenge
	for _, c := range pending {
		deadline := t.ResponseDeadline(c.CreatedAt)
		if !c.IsPastDue(deadline, now) {
			continue
		}
		out = append(out, PastDueChallenge{
			Challenge: c,
			Deadline:  deadline,
			OverdueBy: now.Sub(deadline),
		})
	}
	return out, nil
}
