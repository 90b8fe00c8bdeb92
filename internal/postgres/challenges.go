package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tier-ladder/internal/domain"
)

const challengeColumns = `id, tournament_id, challenger_id, defender_id, challenger_team_id, defender_team_id,
	status, tier_before, proposed_dates, scheduled_date, result, tier_after, prestige_awarded, forfeit,
	cast_demanded, created_at, updated_at, resolved_at`

// challengeRow holds the encoded JSONB columns of a challenge
type challengeRow struct {
	tierBefore []byte
	result     []byte
	tierAfter  []byte
	prestige   []byte
	forfeit    []byte
}

func encodeChallenge(c *domain.Challenge) (challengeRow, error) {
	var (
		row challengeRow
		err error
	)
	if row.tierBefore, err = json.Marshal(c.TierBefore); err != nil {
		return row, fmt.Errorf("encoding tier_before: %w", err)
	}
	if row.result, err = marshalNullable(c.Result); err != nil {
		return row, fmt.Errorf("encoding result: %w", err)
	}
	if row.tierAfter, err = marshalNullable(c.TierAfter); err != nil {
		return row, fmt.Errorf("encoding tier_after: %w", err)
	}
	if row.prestige, err = marshalNullable(c.PrestigeAwarded); err != nil {
		return row, fmt.Errorf("encoding prestige_awarded: %w", err)
	}
	if row.forfeit, err = marshalNullable(c.Forfeit); err != nil {
		return row, fmt.Errorf("encoding forfeit: %w", err)
	}
	return row, nil
}

// InsertChallenge stores a new challenge
func (r *Repository) InsertChallenge(ctx context.Context, c *domain.Challenge) error {
	enc, err := encodeChallenge(c)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO challenges (` + challengeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err = r.db.Exec(ctx, query,
		c.ID,
		c.TournamentID,
		c.ChallengerID,
		c.DefenderID,
		c.ChallengerTeamID,
		c.DefenderTeamID,
		string(c.Status),
		enc.tierBefore,
		proposedDates(c.ProposedDates),
		c.ScheduledDate,
		enc.result,
		enc.tierAfter,
		enc.prestige,
		enc.forfeit,
		c.CastDemanded,
		c.CreatedAt,
		c.UpdatedAt,
		c.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting challenge: %w", err)
	}
	return nil
}

// GetChallenge retrieves a challenge by ID
func (r *Repository) GetChallenge(ctx context.Context, id string) (*domain.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE id = $1`
	return getChallenge(r.db.QueryRow(ctx, query, id))
}

// GetChallengeForUpdate retrieves a challenge and locks its row for the rest
// of the transaction
func (r *Repository) GetChallengeForUpdate(ctx context.Context, id string) (*domain.Challenge, error) {
	if !r.inTx {
		return r.GetChallenge(ctx, id)
	}
	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE id = $1 FOR UPDATE`
	return getChallenge(r.db.QueryRow(ctx, query, id))
}

// FindChallengesByParticipant returns challenges where the standing is either
// side, optionally filtered by status
func (r *Repository) FindChallengesByParticipant(ctx context.Context, standingID string, statuses ...domain.ChallengeStatus) ([]domain.Challenge, error) {
	query := `
		SELECT ` + challengeColumns + `
		FROM challenges
		WHERE (challenger_id = $1 OR defender_id = $1)
		  AND ($2::text[] IS NULL OR status = ANY($2::text[]))
		ORDER BY created_at, id
	`
	return r.queryChallenges(ctx, query, standingID, statusArgs(statuses))
}

// FindChallengesByStatus returns a tournament's challenges, optionally
// filtered by status
func (r *Repository) FindChallengesByStatus(ctx context.Context, tournamentID string, statuses ...domain.ChallengeStatus) ([]domain.Challenge, error) {
	query := `
		SELECT ` + challengeColumns + `
		FROM challenges
		WHERE tournament_id = $1
		  AND ($2::text[] IS NULL OR status = ANY($2::text[]))
		ORDER BY created_at, id
	`
	return r.queryChallenges(ctx, query, tournamentID, statusArgs(statuses))
}

// CountChallengesCreatedSince counts challenges issued by a standing since a
// point in time
func (r *Repository) CountChallengesCreatedSince(ctx context.Context, challengerID string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM challenges WHERE challenger_id = $1 AND created_at >= $2`
	var count int
	if err := r.db.QueryRow(ctx, query, challengerID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting challenges: %w", err)
	}
	return count, nil
}

// UpdateChallenge overwrites a challenge's mutable fields
func (r *Repository) UpdateChallenge(ctx context.Context, c *domain.Challenge) error {
	enc, err := encodeChallenge(c)
	if err != nil {
		return err
	}

	query := `
		UPDATE challenges SET
			status = $2,
			proposed_dates = $3,
			scheduled_date = $4,
			result = $5,
			tier_after = $6,
			prestige_awarded = $7,
			forfeit = $8,
			updated_at = $9,
			resolved_at = $10
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		c.ID,
		string(c.Status),
		proposedDates(c.ProposedDates),
		c.ScheduledDate,
		enc.result,
		enc.tierAfter,
		enc.prestige,
		enc.forfeit,
		c.UpdatedAt,
		c.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("updating challenge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrChallengeNotFound
	}
	return nil
}

func (r *Repository) queryChallenges(ctx context.Context, query string, args ...any) ([]domain.Challenge, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding challenges: %w", err)
	}
	defer rows.Close()

	challenges := []domain.Challenge{}
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning challenge: %w", err)
		}
		challenges = append(challenges, *c)
	}
	return challenges, rows.Err()
}

func getChallenge(row pgx.Row) (*domain.Challenge, error) {
	c, err := scanChallenge(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("getting challenge: %w", err)
	}
	return c, nil
}

func scanChallenge(row pgx.Row) (*domain.Challenge, error) {
	var (
		c      domain.Challenge
		status string
		enc    challengeRow
	)
	err := row.Scan(
		&c.ID,
		&c.TournamentID,
		&c.ChallengerID,
		&c.DefenderID,
		&c.ChallengerTeamID,
		&c.DefenderTeamID,
		&status,
		&enc.tierBefore,
		&c.ProposedDates,
		&c.ScheduledDate,
		&enc.result,
		&enc.tierAfter,
		&enc.prestige,
		&enc.forfeit,
		&c.CastDemanded,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = domain.ChallengeStatus(status)

	if err := json.Unmarshal(enc.tierBefore, &c.TierBefore); err != nil {
		return nil, fmt.Errorf("decoding tier_before: %w", err)
	}
	if c.Result, err = unmarshalNullable[domain.MatchResult](enc.result); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	if c.TierAfter, err = unmarshalNullable[domain.TierPair](enc.tierAfter); err != nil {
		return nil, fmt.Errorf("decoding tier_after: %w", err)
	}
	if c.PrestigeAwarded, err = unmarshalNullable[domain.PrestigePair](enc.prestige); err != nil {
		return nil, fmt.Errorf("decoding prestige_awarded: %w", err)
	}
	if c.Forfeit, err = unmarshalNullable[domain.Forfeit](enc.forfeit); err != nil {
		return nil, fmt.Errorf("decoding forfeit: %w", err)
	}

	if len(c.ProposedDates) == 0 {
		c.ProposedDates = nil
	}
	for i, d := range c.ProposedDates {
		c.ProposedDates[i] = d.UTC()
	}
	c.ScheduledDate = utcPtr(c.ScheduledDate)
	c.ResolvedAt = utcPtr(c.ResolvedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

// proposedDates keeps the NOT NULL column happy before any dates are offered
func proposedDates(d []time.Time) []time.Time {
	if d == nil {
		return []time.Time{}
	}
	return d
}
