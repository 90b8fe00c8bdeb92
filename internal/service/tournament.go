package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/tier-ladder/internal/domain"
)

// TournamentService manages tournament configuration and membership
type TournamentService struct {
	store  domain.Store
	clock  clockwork.Clock
	logger *slog.Logger
	cache  LadderCache
}

// NewTournamentService creates a new tournament service
func NewTournamentService(store domain.Store, clock clockwork.Clock, logger *slog.Logger) *TournamentService {
	return &TournamentService{
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// SetLadderCache sets the cache refreshed when a team joins
func (s *TournamentService) SetLadderCache(c LadderCache) {
	s.cache = c
}

// CreateTournament creates an upcoming tournament
func (s *TournamentService) CreateTournament(ctx context.Context, req domain.CreateTournamentRequest) (*domain.Tournament, error) {
	now := s.clock.Now()
	t := &domain.Tournament{
		ID:             uuid.NewString(),
		Name:           strings.TrimSpace(req.Name),
		Status:         domain.TournamentUpcoming,
		MaxTiers:       req.MaxTiers,
		TierCapacities: append([]int(nil), req.TierCapacities...),
		BestOf:         req.BestOf,
		Rules:          req.Rules,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := t.Validate(); err != nil {
		return nil, domain.Reject(domain.ReasonInvalidTournament, "%v", err)
	}
	if err := s.store.CreateTournament(ctx, t); err != nil {
		return nil, domain.Transient("creating tournament", err)
	}

	s.logger.Info("tournament created", "tournament_id", t.ID, "max_tiers", t.MaxTiers, "best_of", t.BestOf)
	return t, nil
}

// GetTournament returns a tournament by ID
func (s *TournamentService) GetTournament(ctx context.Context, id string) (*domain.Tournament, error) {
	t, err := s.store.GetTournament(ctx, id)
	if err != nil {
		return nil, lookupErr("getting tournament", err)
	}
	return t, nil
}

// ListTournaments returns tournaments, optionally filtered by status
func (s *TournamentService) ListTournaments(ctx context.Context, status domain.TournamentStatus) ([]domain.Tournament, error) {
	tournaments, err := s.store.ListTournaments(ctx, status)
	if err != nil {
		return nil, domain.Transient("listing tournaments", err)
	}
	return tournaments, nil
}

// UpdateRules replaces the configuration of a tournament nobody has joined yet
func (s *TournamentService) UpdateRules(ctx context.Context, id string, req domain.CreateTournamentRequest) (*domain.Tournament, error) {
	var updated *domain.Tournament
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		t, err := tx.GetTournament(ctx, id)
		if err != nil {
			return lookupErr("getting tournament", err)
		}
		standings, err := tx.ListStandings(ctx, t.ID)
		if err != nil {
			return domain.Transient("listing standings", err)
		}
		if len(standings) > 0 {
			return domain.Reject(domain.ReasonTournamentLocked, "%d teams already joined", len(standings))
		}

		if name := strings.TrimSpace(req.Name); name != "" {
			t.Name = name
		}
		t.MaxTiers = req.MaxTiers
		t.TierCapacities = append([]int(nil), req.TierCapacities...)
		t.BestOf = req.BestOf
		t.Rules = req.Rules
		if err := t.Validate(); err != nil {
			return domain.Reject(domain.ReasonInvalidTournament, "%v", err)
		}
		t.UpdatedAt = s.clock.Now()
		if err := tx.SaveTournament(ctx, t); err != nil {
			return domain.Transient("saving tournament", err)
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, domain.Transient("updating tournament", err)
	}
	return updated, nil
}

// AdvanceStatus moves a tournament forward through its lifecycle
func (s *TournamentService) AdvanceStatus(ctx context.Context, id string, next domain.TournamentStatus) (*domain.Tournament, error) {
	var updated *domain.Tournament
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		t, err := tx.GetTournament(ctx, id)
		if err != nil {
			return lookupErr("getting tournament", err)
		}
		if !t.Status.CanAdvanceTo(next) {
			return domain.Reject(domain.ReasonInvalidStatusTransition, "%s to %s", t.Status, next)
		}
		t.Status = next
		t.UpdatedAt = s.clock.Now()
		if err := tx.SaveTournament(ctx, t); err != nil {
			return domain.Transient("saving tournament", err)
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, domain.Transient("advancing tournament", err)
	}

	s.logger.Info("tournament status changed", "tournament_id", updated.ID, "status", updated.Status)
	return updated, nil
}

// JoinTournament enters a team at the bottom tier
func (s *TournamentService) JoinTournament(ctx context.Context, tournamentID, teamID string) (*domain.Standing, error) {
	var joined *domain.Standing
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		// concurrent joins queue here so the bottom tier count stays exact
		t, err := tx.GetTournamentForUpdate(ctx, tournamentID)
		if err != nil {
			return lookupErr("getting tournament", err)
		}
		if t.Status == domain.TournamentCompleted {
			return domain.Reject(domain.ReasonTournamentNotActive, "tournament is completed")
		}
		team, err := tx.GetTeam(ctx, teamID)
		if err != nil {
			return lookupErr("getting team", err)
		}
		if team.Retired {
			return domain.Reject(domain.ReasonTeamNotFound, "team %s is retired", team.ID)
		}

		bottom := t.MaxTiers
		if capacity := t.TierCapacity(bottom); capacity > 0 {
			standings, err := tx.ListStandings(ctx, t.ID)
			if err != nil {
				return domain.Transient("listing standings", err)
			}
			occupied := 0
			for _, st := range standings {
				if st.Tier == bottom {
					occupied++
				}
			}
			if occupied >= capacity {
				return domain.Reject(domain.ReasonTierFull, "tier %d holds %d teams", bottom, capacity)
			}
		}

		now := s.clock.Now()
		st := &domain.Standing{
			ID:           uuid.NewString(),
			TeamID:       team.ID,
			TournamentID: t.ID,
			Tier:         bottom,
			JoinedAt:     now,
			UpdatedAt:    now,
		}
		if err := tx.CreateStanding(ctx, st); err != nil {
			if errors.Is(err, domain.ErrAlreadyJoined) {
				return domain.Reject(domain.ReasonAlreadyJoined, "team %s", team.ID)
			}
			return domain.Transient("creating standing", err)
		}
		joined = st
		return nil
	})
	if err != nil {
		return nil, domain.Transient("joining tournament", err)
	}

	s.logger.Info("team joined tournament",
		"tournament_id", joined.TournamentID,
		"team_id", joined.TeamID,
		"standing_id", joined.ID,
	)
	if s.cache != nil {
		if err := s.cache.UpsertStandings(ctx, joined.TournamentID, *joined); err != nil {
			s.logger.Warn("failed to refresh ladder cache", "tournament_id", joined.TournamentID, "error", err)
		}
	}
	return joined, nil
}

// ListStandings returns a tournament's standings ordered by tier then prestige
func (s *TournamentService) ListStandings(ctx context.Context, tournamentID string) ([]domain.Standing, error) {
	if _, err := s.store.GetTournament(ctx, tournamentID); err != nil {
		return nil, lookupErr("getting tournament", err)
	}
	standings, err := s.store.ListStandings(ctx, tournamentID)
	if err != nil {
		return nil, domain.Transient("listing standings", err)
	}
	return standings, nil
}

// GetStanding returns one standing
func (s *TournamentService) GetStanding(ctx context.Context, id string) (*domain.Standing, error) {
	st, err := s.store.GetStanding(ctx, id)
	if err != nil {
		return nil, lookupErr("getting standing", err)
	}
	return st, nil
}
