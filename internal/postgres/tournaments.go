package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tier-ladder/internal/domain"
)

const (
	tournamentColumns = `id, name, status, max_tiers, tier_capacities, best_of, rules, created_at, updated_at`
	standingColumns   = `id, team_id, tournament_id, tier, prestige, wins, losses, win_streak, protected_until, joined_at, updated_at`
)

// CreateTournament inserts a new tournament
func (r *Repository) CreateTournament(ctx context.Context, t *domain.Tournament) error {
	rules, err := json.Marshal(t.Rules)
	if err != nil {
		return fmt.Errorf("encoding rules: %w", err)
	}

	query := `
		INSERT INTO tournaments (` + tournamentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.Exec(ctx, query,
		t.ID,
		t.Name,
		string(t.Status),
		t.MaxTiers,
		capacities(t.TierCapacities),
		t.BestOf,
		rules,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating tournament: %w", err)
	}
	return nil
}

// GetTournament retrieves a tournament by ID
func (r *Repository) GetTournament(ctx context.Context, id string) (*domain.Tournament, error) {
	return r.getTournament(ctx, tournamentByIDQuery(false), id)
}

// GetTournamentForUpdate retrieves a tournament and locks its row for the
// rest of the transaction
func (r *Repository) GetTournamentForUpdate(ctx context.Context, id string) (*domain.Tournament, error) {
	return r.getTournament(ctx, tournamentByIDQuery(r.inTx), id)
}

func tournamentByIDQuery(lock bool) string {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	return query
}

func (r *Repository) getTournament(ctx context.Context, query, id string) (*domain.Tournament, error) {
	t, err := scanTournament(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTournamentNotFound
		}
		return nil, fmt.Errorf("getting tournament: %w", err)
	}
	return t, nil
}

// ListTournaments lists tournaments, filtered by status unless status is empty
func (r *Repository) ListTournaments(ctx context.Context, status domain.TournamentStatus) ([]domain.Tournament, error) {
	query := `
		SELECT ` + tournamentColumns + `
		FROM tournaments
		WHERE $1::text = '' OR status = $1::text
		ORDER BY created_at, id
	`
	rows, err := r.db.Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("listing tournaments: %w", err)
	}
	defer rows.Close()

	tournaments := []domain.Tournament{}
	for rows.Next() {
		t, err := scanTournament(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning tournament: %w", err)
		}
		tournaments = append(tournaments, *t)
	}
	return tournaments, rows.Err()
}

// SaveTournament overwrites a tournament's mutable fields
func (r *Repository) SaveTournament(ctx context.Context, t *domain.Tournament) error {
	rules, err := json.Marshal(t.Rules)
	if err != nil {
		return fmt.Errorf("encoding rules: %w", err)
	}

	query := `
		UPDATE tournaments
		SET name = $2, status = $3, max_tiers = $4, tier_capacities = $5, best_of = $6, rules = $7, updated_at = $8
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		t.ID,
		t.Name,
		string(t.Status),
		t.MaxTiers,
		capacities(t.TierCapacities),
		t.BestOf,
		rules,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving tournament: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTournamentNotFound
	}
	return nil
}

// CreateStanding enters a team into a tournament
func (r *Repository) CreateStanding(ctx context.Context, s *domain.Standing) error {
	query := `
		INSERT INTO standings (` + standingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Exec(ctx, query,
		s.ID,
		s.TeamID,
		s.TournamentID,
		s.Tier,
		s.Prestige,
		s.Wins,
		s.Losses,
		s.WinStreak,
		s.ProtectedUntil,
		s.JoinedAt,
		s.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyJoined
		}
		return fmt.Errorf("creating standing: %w", err)
	}
	return nil
}

// GetStanding retrieves a standing by ID
func (r *Repository) GetStanding(ctx context.Context, id string) (*domain.Standing, error) {
	query := `SELECT ` + standingColumns + ` FROM standings WHERE id = $1`
	return getStanding(r.db.QueryRow(ctx, query, id))
}

// GetStandingByTeam retrieves a team's standing in a tournament
func (r *Repository) GetStandingByTeam(ctx context.Context, teamID, tournamentID string) (*domain.Standing, error) {
	query := `SELECT ` + standingColumns + ` FROM standings WHERE team_id = $1 AND tournament_id = $2`
	return getStanding(r.db.QueryRow(ctx, query, teamID, tournamentID))
}

// ListStandings returns a tournament's standings, best tier first
func (r *Repository) ListStandings(ctx context.Context, tournamentID string) ([]domain.Standing, error) {
	query := `
		SELECT ` + standingColumns + `
		FROM standings
		WHERE tournament_id = $1
		ORDER BY tier, prestige DESC, id
	`
	return r.queryStandings(ctx, query, tournamentID)
}

// ListStandingsByTeam returns every standing a team holds
func (r *Repository) ListStandingsByTeam(ctx context.Context, teamID string) ([]domain.Standing, error) {
	query := `
		SELECT ` + standingColumns + `
		FROM standings
		WHERE team_id = $1
		ORDER BY tier, prestige DESC, id
	`
	return r.queryStandings(ctx, query, teamID)
}

// UpdateStanding applies an update and returns the new row
func (r *Repository) UpdateStanding(ctx context.Context, id string, update domain.StandingUpdate) (*domain.Standing, error) {
	query := `
		UPDATE standings SET
			tier = COALESCE($2, tier),
			prestige = prestige + $3,
			wins = wins + $4,
			losses = losses + $5,
			win_streak = COALESCE($6, win_streak),
			protected_until = COALESCE($7, protected_until),
			updated_at = $8
		WHERE id = $1
		RETURNING ` + standingColumns
	return getStanding(r.db.QueryRow(ctx, query,
		id,
		update.Tier,
		update.PrestigeDelta,
		update.WinsDelta,
		update.LossesDelta,
		update.WinStreak,
		update.ProtectedUntil,
		r.stamp(),
	))
}

// LockStandings takes row locks on the standings in id order so concurrent
// resolutions touching the same pair cannot deadlock
func (r *Repository) LockStandings(ctx context.Context, ids ...string) error {
	if !r.inTx {
		return nil
	}
	query := `SELECT id FROM standings WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	if _, err := r.db.Exec(ctx, query, sortedIDs(ids)); err != nil {
		return fmt.Errorf("locking standings: %w", err)
	}
	return nil
}

func (r *Repository) queryStandings(ctx context.Context, query string, arg string) ([]domain.Standing, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("listing standings: %w", err)
	}
	defer rows.Close()

	standings := []domain.Standing{}
	for rows.Next() {
		s, err := scanStanding(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning standing: %w", err)
		}
		standings = append(standings, *s)
	}
	return standings, rows.Err()
}

func getStanding(row pgx.Row) (*domain.Standing, error) {
	s, err := scanStanding(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrStandingNotFound
		}
		return nil, fmt.Errorf("getting standing: %w", err)
	}
	return s, nil
}

func scanStanding(row pgx.Row) (*domain.Standing, error) {
	var s domain.Standing
	err := row.Scan(
		&s.ID,
		&s.TeamID,
		&s.TournamentID,
		&s.Tier,
		&s.Prestige,
		&s.Wins,
		&s.Losses,
		&s.WinStreak,
		&s.ProtectedUntil,
		&s.JoinedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.ProtectedUntil = utcPtr(s.ProtectedUntil)
	s.JoinedAt = s.JoinedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}

func scanTournament(row pgx.Row) (*domain.Tournament, error) {
	var (
		t      domain.Tournament
		status string
		rules  []byte
	)
	err := row.Scan(
		&t.ID,
		&t.Name,
		&status,
		&t.MaxTiers,
		&t.TierCapacities,
		&t.BestOf,
		&rules,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rules, &t.Rules); err != nil {
		return nil, fmt.Errorf("decoding rules: %w", err)
	}
	if len(t.TierCapacities) == 0 {
		t.TierCapacities = nil
	}
	t.Status = domain.TournamentStatus(status)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

// capacities keeps the NOT NULL column happy for unbounded tournaments
func capacities(c []int) []int {
	if c == nil {
		return []int{}
	}
	return c
}
