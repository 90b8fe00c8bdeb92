package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/tier-ladder/internal/config"
	"github.com/tier-ladder/internal/domain"
)

// tierWeight spaces tiers far enough apart that prestige never crosses into
// the next tier's score band
const tierWeight = 1_000_000

// LadderCache keeps each tournament's ladder in a sorted set ordered by tier
// then prestige, with the standing bodies in a hash next to it
type LadderCache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewClient opens and checks a Redis connection
func NewClient(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

// NewLadderCache creates a ladder cache on an open client
func NewLadderCache(client *redis.Client, logger *slog.Logger) *LadderCache {
	return &LadderCache{
		client: client,
		logger: logger,
	}
}

// rankingKey returns the Redis key for a tournament's sorted set
func rankingKey(tournamentID string) string {
	return fmt.Sprintf("ladder:%s:ranking", tournamentID)
}

// standingsKey returns the Redis key for a tournament's standing bodies
func standingsKey(tournamentID string) string {
	return fmt.Sprintf("ladder:%s:standings", tournamentID)
}

// rankScore orders standings ascending: better tier first, then more prestige
func rankScore(s domain.Standing) float64 {
	return float64(s.Tier*tierWeight - s.Prestige)
}

// UpsertStandings writes the given standings into the ladder
func (c *LadderCache) UpsertStandings(ctx context.Context, tournamentID string, standings ...domain.Standing) error {
	if len(standings) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	if err := c.queueStandings(ctx, pipe, tournamentID, standings); err != nil {
		return err
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("upserting standings: %w", err)
	}
	return nil
}

// ReplaceLadder atomically swaps a tournament's ladder for the given standings
func (c *LadderCache) ReplaceLadder(ctx context.Context, tournamentID string, standings []domain.Standing) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, rankingKey(tournamentID), standingsKey(tournamentID))
	if err := c.queueStandings(ctx, pipe, tournamentID, standings); err != nil {
		return err
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replacing ladder: %w", err)
	}
	return nil
}

func (c *LadderCache) queueStandings(ctx context.Context, pipe redis.Pipeliner, tournamentID string, standings []domain.Standing) error {
	for _, s := range standings {
		body, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("encoding standing %s: %w", s.ID, err)
		}
		pipe.ZAdd(ctx, rankingKey(tournamentID), redis.Z{Score: rankScore(s), Member: s.ID})
		pipe.HSet(ctx, standingsKey(tournamentID), s.ID, body)
	}
	return nil
}

// GetLadder returns the top limit entries of a tournament ladder
func (c *LadderCache) GetLadder(ctx context.Context, tournamentID string, limit int) ([]domain.LadderEntry, error) {
	ids, err := c.client.ZRange(ctx, rankingKey(tournamentID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting ladder: %w", err)
	}
	if len(ids) == 0 {
		return []domain.LadderEntry{}, nil
	}

	bodies, err := c.client.HMGet(ctx, standingsKey(tournamentID), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("getting standings: %w", err)
	}

	entries := make([]domain.LadderEntry, 0, len(ids))
	for i, body := range bodies {
		raw, ok := body.(string)
		if !ok {
			c.logger.Warn("ladder entry without standing body", "tournament_id", tournamentID, "standing_id", ids[i])
			continue
		}
		var s domain.Standing
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, fmt.Errorf("decoding standing %s: %w", ids[i], err)
		}
		entries = append(entries, domain.LadderEntry{Rank: i + 1, Standing: s})
	}
	return entries, nil
}

// GetRank returns a single standing's ladder position
func (c *LadderCache) GetRank(ctx context.Context, tournamentID, standingID string) (*domain.LadderEntry, error) {
	pipe := c.client.Pipeline()
	rankCmd := pipe.ZRank(ctx, rankingKey(tournamentID), standingID)
	bodyCmd := pipe.HGet(ctx, standingsKey(tournamentID), standingID)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("getting rank: %w", err)
	}

	rank, err := rankCmd.Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrStandingNotFound
		}
		return nil, fmt.Errorf("getting rank result: %w", err)
	}
	body, err := bodyCmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrStandingNotFound
		}
		return nil, fmt.Errorf("getting standing: %w", err)
	}

	var s domain.Standing
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("decoding standing: %w", err)
	}
	return &domain.LadderEntry{Rank: int(rank) + 1, Standing: s}, nil
}

// Exists checks if a tournament ladder is cached
func (c *LadderCache) Exists(ctx context.Context, tournamentID string) (bool, error) {
	exists, err := c.client.Exists(ctx, rankingKey(tournamentID)).Result()
	if err != nil {
		return false, fmt.Errorf("checking existence: %w", err)
	}
	return exists > 0, nil
}
