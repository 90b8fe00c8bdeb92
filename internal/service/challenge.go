package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/tier-ladder/internal/config"
	"github.com/tier-ladder/internal/domain"
	"github.com/tier-ladder/internal/prestige"
)

// ChallengeEngine owns the challenge lifecycle
type ChallengeEngine struct {
	store    domain.Store
	calc     *prestige.Calculator
	config   *config.LadderConfig
	clock    clockwork.Clock
	logger   *slog.Logger

	mu       sync.RWMutex
	notifier Notifier
	cache    LadderCache
}

// NewChallengeEngine creates a new challenge engine
func NewChallengeEngine(
	store domain.Store,
	calc *prestige.Calculator,
	cfg *config.LadderConfig,
	clock clockwork.Clock,
	logger *slog.Logger,
) *ChallengeEngine {
	return &ChallengeEngine{
		store:  store,
		calc:   calc,
		config: cfg,
		clock:  clock,
		logger: logger,
	}
}

// SetNotifier sets the notifier for challenge events
func (e *ChallengeEngine) SetNotifier(n Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifier = n
}

// SetLadderCache sets the cache refreshed after standings change
func (e *ChallengeEngine) SetLadderCache(c LadderCache) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = c
}

// CreateChallenge issues a challenge from one standing to another
func (e *ChallengeEngine) CreateChallenge(ctx context.Context, req domain.CreateChallengeRequest) (*domain.Challenge, error) {
	now := e.clock.Now()

	var created *domain.Challenge
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		t, err := tx.GetTournament(ctx, req.TournamentID)
		if err != nil {
			return lookupErr("getting tournament", err)
		}
		if t.Status != domain.TournamentActive {
			return domain.Reject(domain.ReasonTournamentNotActive, "tournament is %s", t.Status)
		}

		if err := tx.LockStandings(ctx, req.ChallengerID, req.DefenderID); err != nil {
			return domain.Transient("locking standings", err)
		}
		challenger, err := e.participant(ctx, tx, t.ID, req.ChallengerID)
		if err != nil {
			return err
		}
		defender, err := e.participant(ctx, tx, t.ID, req.DefenderID)
		if err != nil {
			return err
		}
		if challenger.ID == defender.ID || challenger.TeamID == defender.TeamID {
			return domain.Reject(domain.ReasonSelfChallenge, "a team cannot challenge itself")
		}

		if err := checkTierRelationship(challenger.Tier, defender.Tier); err != nil {
			return err
		}
		if defender.IsProtected(now) {
			return domain.Reject(domain.ReasonDefenderProtected,
				"protected until %s", defender.ProtectedUntil.UTC().Format(time.RFC3339))
		}

		open, err := tx.FindChallengesByParticipant(ctx, challenger.ID, domain.OpenStatuses...)
		if err != nil {
			return domain.Transient("finding open challenges", err)
		}
		for _, c := range open {
			if c.ChallengerID == challenger.ID && c.DefenderID == defender.ID {
				return domain.RejectChallenge(domain.ReasonDuplicateChallenge, c.ID)
			}
		}

		if limit := t.Rules.MaxChallengesPerMonth; limit > 0 {
			n, err := tx.CountChallengesCreatedSince(ctx, challenger.ID, monthStart(now))
			if err != nil {
				return domain.Transient("counting challenges", err)
			}
			if n >= limit {
				return domain.Reject(domain.ReasonMonthlyLimitExceeded, "%d of %d challenges used this month", n, limit)
			}
		}

		c := &domain.Challenge{
			ID:               uuid.NewString(),
			TournamentID:     t.ID,
			ChallengerID:     challenger.ID,
			DefenderID:       defender.ID,
			ChallengerTeamID: challenger.TeamID,
			DefenderTeamID:   defender.TeamID,
			Status:           domain.StatusPending,
			TierBefore:       domain.TierPair{Challenger: challenger.Tier, Defender: defender.Tier},
			CastDemanded:     req.CastDemanded,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := tx.InsertChallenge(ctx, c); err != nil {
			return domain.Transient("inserting challenge", err)
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, domain.Transient("creating challenge", err)
	}

	e.logger.Info("challenge created",
		"challenge_id", created.ID,
		"tournament_id", created.TournamentID,
		"challenger_id", created.ChallengerID,
		"defender_id", created.DefenderID,
	)
	e.publish(ctx, domain.EventChallengeCreated, created, nil)
	return created, nil
}

// ProposeDates records the defender's candidate match dates
func (e *ChallengeEngine) ProposeDates(ctx context.Context, challengeID string, dates []time.Time) (*domain.Challenge, error) {
	c, _, err := e.transition(ctx, "proposing dates", challengeID,
		func(ctx context.Context, tx domain.Store, c *domain.Challenge, now time.Time) ([]domain.Standing, error) {
			if err := requireStatus(c, domain.StatusPending); err != nil {
				return nil, err
			}
			t, err := tx.GetTournament(ctx, c.TournamentID)
			if err != nil {
				return nil, lookupErr("getting tournament", err)
			}

			for _, d := range dates {
				if !d.After(now) {
					return nil, domain.Reject(domain.ReasonDateNotInFuture, "%s is not after %s",
						d.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339))
				}
			}
			distinct := normalizeDates(dates)
			if need := max(1, t.Rules.MinRequiredDateOptions); len(distinct) < need {
				return nil, domain.Reject(domain.ReasonInsufficientDateOptions,
					"%d distinct dates given, %d required", len(distinct), need)
			}

			c.ProposedDates = distinct
			return nil, nil
		})
	if err != nil {
		return nil, err
	}

	e.logger.Info("dates proposed", "challenge_id", c.ID, "options", len(c.ProposedDates))
	e.publish(ctx, domain.EventDatesProposed, c, nil)
	return c, nil
}

// ScheduleChallenge picks one of the proposed dates
func (e *ChallengeEngine) ScheduleChallenge(ctx context.Context, challengeID string, chosen time.Time) (*domain.Challenge, error) {
	c, _, err := e.transition(ctx, "scheduling challenge", challengeID,
		func(ctx context.Context, tx domain.Store, c *domain.Challenge, now time.Time) ([]domain.Standing, error) {
			if err := requireStatus(c, domain.StatusPending); err != nil {
				return nil, err
			}
			if len(c.ProposedDates) == 0 {
				return nil, domain.Reject(domain.ReasonInsufficientDateOptions, "no dates proposed yet")
			}
			match, ok := matchProposedDate(c.ProposedDates, chosen, e.config.ScheduleTolerance)
			if !ok {
				return nil, domain.Reject(domain.ReasonScheduledDateNotAmongProposed,
					"%s", chosen.UTC().Format(time.RFC3339))
			}

			if err := transition(c, domain.StatusScheduled); err != nil {
				return nil, err
			}
			c.ScheduledDate = &match
			return nil, nil
		})
	if err != nil {
		return nil, err
	}

	e.logger.Info("challenge scheduled", "challenge_id", c.ID, "scheduled_date", c.ScheduledDate)
	e.publish(ctx, domain.EventChallengeScheduled, c, nil)
	return c, nil
}

// SubmitResult completes a scheduled challenge with a played result
func (e *ChallengeEngine) SubmitResult(ctx context.Context, challengeID string, req domain.SubmitResultRequest) (*domain.Challenge, error) {
	c, standings, err := e.transition(ctx, "submitting result", challengeID,
		func(ctx context.Context, tx domain.Store, c *domain.Challenge, now time.Time) ([]domain.Standing, error) {
			if err := requireStatus(c, domain.StatusScheduled); err != nil {
				return nil, err
			}
			if c.ScheduledDate != nil && c.ScheduledDate.After(now) {
				return nil, domain.Reject(domain.ReasonMatchNotYetPlayed,
					"scheduled for %s", c.ScheduledDate.UTC().Format(time.RFC3339))
			}
			if !c.Involves(req.WinnerID) {
				return nil, domain.Reject(domain.ReasonNotParticipant, "winner %s", req.WinnerID)
			}
			t, err := tx.GetTournament(ctx, c.TournamentID)
			if err != nil {
				return nil, lookupErr("getting tournament", err)
			}
			score, err := validateScore(t, c, req)
			if err != nil {
				return nil, err
			}

			result := domain.MatchResult{
				WinnerID: req.WinnerID,
				Score:    score.String(),
				Games:    numberGames(req.Games),
			}
			standings, err := e.resolve(ctx, tx, t, c, result, nil, now)
			if err != nil {
				return nil, err
			}
			if err := transition(c, domain.StatusCompleted); err != nil {
				return nil, err
			}
			return standings, nil
		})
	if err != nil {
		return nil, err
	}

	e.logger.Info("challenge completed",
		"challenge_id", c.ID,
		"winner_id", c.Result.WinnerID,
		"score", c.Result.Score,
	)
	e.publish(ctx, domain.EventChallengeCompleted, c, standings)
	return c, nil
}

// ForfeitChallenge resolves an open challenge in favour of the side that did
// not forfeit
func (e *ChallengeEngine) ForfeitChallenge(ctx context.Context, challengeID string, req domain.ForfeitRequest) (*domain.Challenge, error) {
	c, standings, err := e.transition(ctx, "forfeiting challenge", challengeID,
		func(ctx context.Context, tx domain.Store, c *domain.Challenge, now time.Time) ([]domain.Standing, error) {
			if err := requireStatus(c, domain.OpenStatuses...); err != nil {
				return nil, err
			}
			if !c.Involves(req.ForfeitingID) {
				return nil, domain.Reject(domain.ReasonNotParticipant, "forfeiting side %s", req.ForfeitingID)
			}
			return e.forfeit(ctx, tx, c, req, now)
		})
	if err != nil {
		return nil, err
	}

	e.logger.Info("challenge forfeited",
		"challenge_id", c.ID,
		"forfeiting_id", c.Forfeit.ForfeitingID,
		"penalty", c.Forfeit.Penalty,
	)
	e.publish(ctx, domain.EventChallengeForfeited, c, standings)
	return c, nil
}

// CancelChallenge withdraws an open challenge without touching standings
func (e *ChallengeEngine) CancelChallenge(ctx context.Context, challengeID string) (*domain.Challenge, error) {
	c, _, err := e.transition(ctx, "cancelling challenge", challengeID,
		func(_ context.Context, _ domain.Store, c *domain.Challenge, _ time.Time) ([]domain.Standing, error) {
			if err := requireStatus(c, domain.OpenStatuses...); err != nil {
				return nil, err
			}
			if err := transition(c, domain.StatusCancelled); err != nil {
				return nil, err
			}
			return nil, nil
		})
	if err != nil {
		return nil, err
	}

	e.logger.Info("challenge cancelled", "challenge_id", c.ID)
	e.publish(ctx, domain.EventChallengeCancelled, c, nil)
	return c, nil
}

// ForfeitPastDue auto-forfeits a challenge against its defender when it is
// still past its response deadline plus grace. The check is repeated under the
// challenge lock so a concurrent date proposal wins.
func (e *ChallengeEngine) ForfeitPastDue(ctx context.Context, challengeID string, grace time.Duration) (*domain.Challenge, error) {
	c, standings, err := e.transition(ctx, "auto-forfeiting challenge", challengeID,
		func(ctx context.Context, tx domain.Store, c *domain.Challenge, now time.Time) ([]domain.Standing, error) {
			if err := requireStatus(c, domain.StatusPending); err != nil {
				return nil, err
			}
			t, err := tx.GetTournament(ctx, c.TournamentID)
			if err != nil {
				return nil, lookupErr("getting tournament", err)
			}
			if !c.IsPastDue(t.ResponseDeadline(c.CreatedAt).Add(grace), now) {
				rej := domain.Reject(domain.ReasonInvalidStatusForOperation, "challenge is not past due")
				rej.ChallengeID = c.ID
				return nil, rej
			}
			return e.forfeit(ctx, tx, c, domain.ForfeitRequest{
				ForfeitingID: c.DefenderID,
				Reason:       domain.ForfeitTimeout,
			}, now)
		})
	if err != nil {
		return nil, err
	}

	e.logger.Info("challenge auto-forfeited",
		"challenge_id", c.ID,
		"tournament_id", c.TournamentID,
		"defender_id", c.DefenderID,
	)
	e.publish(ctx, domain.EventChallengeAutoForfeited, c, standings)
	return c, nil
}

type transitionFunc func(ctx context.Context, tx domain.Store, c *domain.Challenge, now time.Time) ([]domain.Standing, error)

// transition loads a challenge under lock, applies fn and persists the result
// in one transaction
func (e *ChallengeEngine) transition(ctx context.Context, op, challengeID string, fn transitionFunc) (*domain.Challenge, []domain.Standing, error) {
	now := e.clock.Now()

	var (
		updated   *domain.Challenge
		standings []domain.Standing
	)
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		c, err := tx.GetChallengeForUpdate(ctx, challengeID)
		if err != nil {
			return lookupErr("getting challenge", err)
		}
		changed, err := fn(ctx, tx, c, now)
		if err != nil {
			return err
		}
		c.UpdatedAt = now
		if err := tx.UpdateChallenge(ctx, c); err != nil {
			return domain.Transient("updating challenge", err)
		}
		updated, standings = c, changed
		return nil
	})
	if err != nil {
		return nil, nil, domain.Transient(op, err)
	}
	return updated, standings, nil
}

// forfeit credits the opponent of the forfeiting side with a clean win
func (e *ChallengeEngine) forfeit(ctx context.Context, tx domain.Store, c *domain.Challenge, req domain.ForfeitRequest, now time.Time) ([]domain.Standing, error) {
	t, err := tx.GetTournament(ctx, c.TournamentID)
	if err != nil {
		return nil, lookupErr("getting tournament", err)
	}
	result := domain.MatchResult{
		WinnerID: c.Opponent(req.ForfeitingID),
		Score:    domain.Score{Wins: t.WinsNeeded()}.String(),
	}
	standings, err := e.resolve(ctx, tx, t, c, result, &req, now)
	if err != nil {
		return nil, err
	}
	if err := transition(c, domain.StatusForfeited); err != nil {
		return nil, err
	}
	return standings, nil
}

// resolve applies the calculator outcome to both standings and records it on
// the challenge. Tiers are read under lock at resolution time.
func (e *ChallengeEngine) resolve(
	ctx context.Context,
	tx domain.Store,
	t *domain.Tournament,
	c *domain.Challenge,
	result domain.MatchResult,
	forfeit *domain.ForfeitRequest,
	now time.Time,
) ([]domain.Standing, error) {
	if err := tx.LockStandings(ctx, c.ChallengerID, c.DefenderID); err != nil {
		return nil, domain.Transient("locking standings", err)
	}
	challenger, err := tx.GetStanding(ctx, c.ChallengerID)
	if err != nil {
		return nil, lookupErr("getting challenger standing", err)
	}
	defender, err := tx.GetStanding(ctx, c.DefenderID)
	if err != nil {
		return nil, lookupErr("getting defender standing", err)
	}

	challengerWon := result.WinnerID == c.ChallengerID
	in := prestige.Input{
		ChallengerTier: challenger.Tier,
		DefenderTier:   defender.Tier,
		ChallengerWon:  challengerWon,
	}
	if forfeit != nil {
		in.Forfeit = forfeit
		in.ForfeitByChallenger = forfeit.ForfeitingID == c.ChallengerID
	}
	out := e.calc.Resolve(in)

	challengerUpdate := resultUpdate(challengerWon, out.TierAfter.Challenger, out.Prestige.Challenger, challenger.WinStreak)
	defenderUpdate := resultUpdate(!challengerWon, out.TierAfter.Defender, out.Prestige.Defender, defender.WinStreak)
	if out.ProtectDefender && t.Rules.ProtectionDaysAfterDefense > 0 {
		until := now.AddDate(0, 0, t.Rules.ProtectionDaysAfterDefense)
		defenderUpdate.ProtectedUntil = &until
	}

	updatedChallenger, err := tx.UpdateStanding(ctx, challenger.ID, challengerUpdate)
	if err != nil {
		return nil, domain.Transient("updating challenger standing", err)
	}
	updatedDefender, err := tx.UpdateStanding(ctx, defender.ID, defenderUpdate)
	if err != nil {
		return nil, domain.Transient("updating defender standing", err)
	}

	c.Result = &result
	c.TierAfter = &out.TierAfter
	c.PrestigeAwarded = &out.Prestige
	if forfeit != nil {
		c.Forfeit = &domain.Forfeit{
			ForfeitingID: forfeit.ForfeitingID,
			Unfair:       forfeit.Unfair || out.Penalty > 0,
			Reason:       forfeit.Reason,
			Penalty:      out.Penalty,
		}
	}
	resolvedAt := now
	c.ResolvedAt = &resolvedAt

	return []domain.Standing{*updatedChallenger, *updatedDefender}, nil
}

// participant loads a standing and checks it belongs to the tournament and to
// a team that is still registered
func (e *ChallengeEngine) participant(ctx context.Context, tx domain.Store, tournamentID, standingID string) (*domain.Standing, error) {
	s, err := tx.GetStanding(ctx, standingID)
	if err != nil {
		return nil, lookupErr("getting standing "+standingID, err)
	}
	if s.TournamentID != tournamentID {
		return nil, domain.Reject(domain.ReasonStandingNotFound, "standing %s is not in tournament %s", standingID, tournamentID)
	}
	team, err := tx.GetTeam(ctx, s.TeamID)
	if err != nil {
		return nil, lookupErr("getting team "+s.TeamID, err)
	}
	if team.Retired {
		return nil, domain.Reject(domain.ReasonTeamNotFound, "team %s is retired", team.ID)
	}
	return s, nil
}

// publish fans an event out after commit. Failures are logged, the
// transition already happened.
func (e *ChallengeEngine) publish(ctx context.Context, typ domain.EventType, c *domain.Challenge, standings []domain.Standing) {
	e.mu.RLock()
	cache, notifier := e.cache, e.notifier
	e.mu.RUnlock()

	if cache != nil && len(standings) > 0 {
		if err := cache.UpsertStandings(ctx, c.TournamentID, standings...); err != nil {
			e.logger.Warn("failed to refresh ladder cache", "tournament_id", c.TournamentID, "error", err)
		}
	}
	if notifier == nil {
		return
	}
	event := domain.ChallengeEvent{
		Type:         typ,
		TournamentID: c.TournamentID,
		Challenge:    c.Clone(),
		Standings:    standings,
		Timestamp:    e.clock.Now(),
	}
	if err := notifier.Publish(ctx, event); err != nil {
		e.logger.Warn("failed to publish challenge event",
			"type", typ,
			"challenge_id", c.ID,
			"error", err,
		)
	}
}
