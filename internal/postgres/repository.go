package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tier-ladder/internal/config"
	"github.com/tier-ladder/internal/domain"
)

const uniqueViolation = "23505"

// querier is the subset of pgx shared by the pool and a transaction
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL-based data access. It implements
// domain.Store; inside WithinTx every call runs on the same transaction.
type Repository struct {
	pool   *pgxpool.Pool
	db     querier
	inTx   bool
	now    func() time.Time
	logger *slog.Logger
}

var _ domain.Store = (*Repository)(nil)

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		db:     pool,
		now:    time.Now,
		logger: logger,
	}, nil
}

// SetNow overrides the clock used for updated_at stamps
func (r *Repository) SetNow(now func() time.Time) {
	r.now = now
}

func (r *Repository) stamp() time.Time {
	return r.now().UTC()
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks the database connection
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS teams (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			slug VARCHAR(255) NOT NULL UNIQUE,
			captain_id VARCHAR(64) NOT NULL,
			members JSONB NOT NULL DEFAULT '[]',
			retired BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS tournaments (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'upcoming',
			max_tiers INT NOT NULL,
			tier_capacities INT[] NOT NULL DEFAULT '{}',
			best_of INT NOT NULL DEFAULT 1,
			rules JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS standings (
			id VARCHAR(64) PRIMARY KEY,
			team_id VARCHAR(64) NOT NULL REFERENCES teams(id),
			tournament_id VARCHAR(64) NOT NULL REFERENCES tournaments(id),
			tier INT NOT NULL,
			prestige INT NOT NULL DEFAULT 0,
			wins INT NOT NULL DEFAULT 0,
			losses INT NOT NULL DEFAULT 0,
			win_streak INT NOT NULL DEFAULT 0,
			protected_until TIMESTAMPTZ,
			joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(team_id, tournament_id)
		)`,
		`CREATE TABLE IF NOT EXISTS challenges (
			id VARCHAR(64) PRIMARY KEY,
			tournament_id VARCHAR(64) NOT NULL REFERENCES tournaments(id),
			challenger_id VARCHAR(64) NOT NULL REFERENCES standings(id),
			defender_id VARCHAR(64) NOT NULL REFERENCES standings(id),
			challenger_team_id VARCHAR(64) NOT NULL,
			defender_team_id VARCHAR(64) NOT NULL,
			status VARCHAR(20) NOT NULL,
			tier_before JSONB NOT NULL,
			proposed_dates TIMESTAMPTZ[] NOT NULL DEFAULT '{}',
			scheduled_date TIMESTAMPTZ,
			result JSONB,
			tier_after JSONB,
			prestige_awarded JSONB,
			forfeit JSONB,
			cast_demanded BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			resolved_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_standings_tournament ON standings(tournament_id, tier, prestige DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_challenges_tournament_status ON challenges(tournament_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_challenges_challenger ON challenges(challenger_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_challenges_defender ON challenges(defender_id, status)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// WithinTx runs fn in a single transaction. Nested calls reuse the outer
// transaction.
func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Store) error) error {
	if r.inTx {
		return fn(ctx, r)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		// no-op once committed
		_ = tx.Rollback(context.Background())
	}()

	if err := fn(ctx, &Repository{pool: r.pool, db: tx, inTx: true, now: r.now, logger: r.logger}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// sortedIDs returns the distinct ids in lock order
func sortedIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// statusArgs converts a status filter to a text[] parameter. An empty filter
// becomes NULL, which the queries treat as "any status".
func statusArgs(statuses []domain.ChallengeStatus) []string {
	if len(statuses) == 0 {
		return nil
	}
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// marshalNullable encodes v as JSON, or NULL when v is a nil pointer
func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// unmarshalNullable decodes a nullable JSONB column
func unmarshalNullable[T any](data []byte) (*T, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
