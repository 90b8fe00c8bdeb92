package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jonboulle/clockwork"

	"github.com/tier-ladder/internal/domain"
)

// TeamService manages team identity and rosters
type TeamService struct {
	store  domain.Store
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewTeamService creates a new team service
func NewTeamService(store domain.Store, clock clockwork.Clock, logger *slog.Logger) *TeamService {
	return &TeamService{
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// RegisterTeam creates a team with its captain as the only member
func (s *TeamService) RegisterTeam(ctx context.Context, req domain.RegisterTeamRequest) (*domain.Team, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || req.CaptainID == "" {
		return nil, domain.Reject(domain.ReasonInvalidRoster, "name and captain are required")
	}
	teamSlug := slug.Make(name)
	if teamSlug == "" {
		return nil, domain.Reject(domain.ReasonInvalidRoster, "name %q has no usable characters", name)
	}

	displayName := req.CaptainDisplayName
	if displayName == "" {
		displayName = req.CaptainID
	}
	now := s.clock.Now()
	team := &domain.Team{
		ID:        uuid.NewString(),
		Name:      name,
		Slug:      teamSlug,
		CaptainID: req.CaptainID,
		Members: []domain.Member{{
			UserID:      req.CaptainID,
			DisplayName: displayName,
			Role:        req.CaptainRole,
			IsCaptain:   true,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := team.Validate(); err != nil {
		return nil, domain.Reject(domain.ReasonInvalidRoster, "%v", err)
	}

	if err := s.store.CreateTeam(ctx, team); err != nil {
		if errors.Is(err, domain.ErrDuplicateSlug) {
			return nil, domain.Reject(domain.ReasonDuplicateTeamName, "%q", teamSlug)
		}
		return nil, domain.Transient("creating team", err)
	}

	s.logger.Info("team registered", "team_id", team.ID, "slug", team.Slug)
	return team, nil
}

// GetTeam returns a team by ID
func (s *TeamService) GetTeam(ctx context.Context, id string) (*domain.Team, error) {
	team, err := s.store.GetTeam(ctx, id)
	if err != nil {
		return nil, lookupErr("getting team", err)
	}
	return team, nil
}

// GetTeamBySlug returns a team by its slug
func (s *TeamService) GetTeamBySlug(ctx context.Context, teamSlug string) (*domain.Team, error) {
	team, err := s.store.GetTeamBySlug(ctx, teamSlug)
	if err != nil {
		return nil, lookupErr("getting team", err)
	}
	return team, nil
}

// GetTeamMembers returns the roster of a team
func (s *TeamService) GetTeamMembers(ctx context.Context, teamID string) ([]domain.Member, error) {
	members, err := s.store.GetTeamMembers(ctx, teamID)
	if err != nil {
		return nil, lookupErr("getting team members", err)
	}
	return members, nil
}

// IsCaptain reports whether userID captains the team
func (s *TeamService) IsCaptain(ctx context.Context, teamID, userID string) (bool, error) {
	team, err := s.GetTeam(ctx, teamID)
	if err != nil {
		return false, err
	}
	return team.CaptainID == userID, nil
}

// AddMember adds a player to the roster
func (s *TeamService) AddMember(ctx context.Context, teamID, actorID string, member domain.Member) (*domain.Team, error) {
	return s.mutate(ctx, teamID, actorID, func(team *domain.Team) error {
		if _, ok := team.Member(member.UserID); ok {
			return domain.Reject(domain.ReasonInvalidRoster, "%s is already on the roster", member.UserID)
		}
		member.IsCaptain = false
		if member.DisplayName == "" {
			member.DisplayName = member.UserID
		}
		team.Members = append(team.Members, member)
		return nil
	})
}

// RemoveMember drops a player from the roster. The captain cannot be removed.
func (s *TeamService) RemoveMember(ctx context.Context, teamID, actorID, userID string) (*domain.Team, error) {
	return s.mutate(ctx, teamID, actorID, func(team *domain.Team) error {
		if userID == team.CaptainID {
			return domain.Reject(domain.ReasonInvalidRoster, "transfer the captaincy before leaving")
		}
		for i, m := range team.Members {
			if m.UserID == userID {
				team.Members = append(team.Members[:i], team.Members[i+1:]...)
				return nil
			}
		}
		return domain.Reject(domain.ReasonInvalidRoster, "%s is not on the roster", userID)
	})
}

// UpdateMemberRole changes a player's role label
func (s *TeamService) UpdateMemberRole(ctx context.Context, teamID, actorID, userID, role string) (*domain.Team, error) {
	return s.mutate(ctx, teamID, actorID, func(team *domain.Team) error {
		for i := range team.Members {
			if team.Members[i].UserID == userID {
				team.Members[i].Role = role
				return nil
			}
		}
		return domain.Reject(domain.ReasonInvalidRoster, "%s is not on the roster", userID)
	})
}

// TransferCaptain hands the captaincy to another member
func (s *TeamService) TransferCaptain(ctx context.Context, teamID, actorID, newCaptainID string) (*domain.Team, error) {
	return s.mutate(ctx, teamID, actorID, func(team *domain.Team) error {
		if _, ok := team.Member(newCaptainID); !ok {
			return domain.Reject(domain.ReasonInvalidRoster, "%s is not on the roster", newCaptainID)
		}
		for i := range team.Members {
			team.Members[i].IsCaptain = team.Members[i].UserID == newCaptainID
		}
		team.CaptainID = newCaptainID
		return nil
	})
}

// RetireTeam marks a team retired. Its standings are kept.
func (s *TeamService) RetireTeam(ctx context.Context, teamID, actorID string) (*domain.Team, error) {
	team, err := s.mutate(ctx, teamID, actorID, func(team *domain.Team) error {
		team.Retired = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("team retired", "team_id", team.ID)
	return team, nil
}

// mutate applies a captain-initiated roster change in one transaction
func (s *TeamService) mutate(ctx context.Context, teamID, actorID string, fn func(team *domain.Team) error) (*domain.Team, error) {
	var updated *domain.Team
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		team, err := tx.GetTeam(ctx, teamID)
		if err != nil {
			return lookupErr("getting team", err)
		}
		if team.Retired {
			return domain.Reject(domain.ReasonTeamNotFound, "team %s is retired", team.ID)
		}
		if team.CaptainID != actorID {
			return domain.Reject(domain.ReasonNotCaptain, "%s does not captain %s", actorID, team.Name)
		}
		if err := fn(team); err != nil {
			return err
		}
		if err := team.Validate(); err != nil {
			return domain.Reject(domain.ReasonInvalidRoster, "%v", err)
		}
		team.UpdatedAt = s.clock.Now()
		if err := tx.SaveTeam(ctx, team); err != nil {
			return domain.Transient("saving team", err)
		}
		updated = team
		return nil
	})
	if err != nil {
		return nil, domain.Transient("updating team", err)
	}
	return updated, nil
}
