package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tier-ladder/internal/domain"
)

const teamColumns = `id, name, slug, captain_id, members, retired, created_at, updated_at`

// CreateTeam inserts a new team
func (r *Repository) CreateTeam(ctx context.Context, team *domain.Team) error {
	members, err := json.Marshal(team.Members)
	if err != nil {
		return fmt.Errorf("encoding members: %w", err)
	}

	query := `
		INSERT INTO teams (` + teamColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.Exec(ctx, query,
		team.ID,
		team.Name,
		team.Slug,
		team.CaptainID,
		members,
		team.Retired,
		team.CreatedAt,
		team.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateSlug
		}
		return fmt.Errorf("creating team: %w", err)
	}
	return nil
}

// GetTeam retrieves a team by ID
func (r *Repository) GetTeam(ctx context.Context, id string) (*domain.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE id = $1`
	return r.scanTeam(r.db.QueryRow(ctx, query, id))
}

// GetTeamBySlug retrieves a team by its slug
func (r *Repository) GetTeamBySlug(ctx context.Context, slug string) (*domain.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE slug = $1`
	return r.scanTeam(r.db.QueryRow(ctx, query, slug))
}

// GetTeamMembers returns a team's roster
func (r *Repository) GetTeamMembers(ctx context.Context, teamID string) ([]domain.Member, error) {
	team, err := r.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	return team.Members, nil
}

// SaveTeam overwrites a team's mutable fields
func (r *Repository) SaveTeam(ctx context.Context, team *domain.Team) error {
	members, err := json.Marshal(team.Members)
	if err != nil {
		return fmt.Errorf("encoding members: %w", err)
	}

	query := `
		UPDATE teams
		SET name = $2, slug = $3, captain_id = $4, members = $5, retired = $6, updated_at = $7
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		team.ID,
		team.Name,
		team.Slug,
		team.CaptainID,
		members,
		team.Retired,
		team.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateSlug
		}
		return fmt.Errorf("saving team: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTeamNotFound
	}
	return nil
}

func (r *Repository) scanTeam(row pgx.Row) (*domain.Team, error) {
	var (
		team    domain.Team
		members []byte
	)
	err := row.Scan(
		&team.ID,
		&team.Name,
		&team.Slug,
		&team.CaptainID,
		&members,
		&team.Retired,
		&team.CreatedAt,
		&team.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTeamNotFound
		}
		return nil, fmt.Errorf("getting team: %w", err)
	}
	if err := json.Unmarshal(members, &team.Members); err != nil {
		return nil, fmt.Errorf("decoding members: %w", err)
	}
	team.CreatedAt = team.CreatedAt.UTC()
	team.UpdatedAt = team.UpdatedAt.UTC()
	return &team, nil
}
