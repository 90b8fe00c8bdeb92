package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/tier-ladder/internal/config"
	"github.com/tier-ladder/internal/domain"
)

// StandingSource reads the authoritative standings
type StandingSource interface {
	ListTournaments(ctx context.Context, status domain.TournamentStatus) ([]domain.Tournament, error)
	ListStandings(ctx context.Context, tournamentID string) ([]domain.Standing, error)
}

// LadderRebuilder replaces a cached ladder wholesale
type LadderRebuilder interface {
	ReplaceLadder(ctx context.Context, tournamentID string, standings []domain.Standing) error
}

// LadderSync periodically rebuilds the cached ladders from the store, so
// any upsert lost while the cache was unreachable is repaired
type LadderSync struct {
	source StandingSource
	cache  LadderRebuilder
	config *config.SyncConfig
	clock  clockwork.Clock
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewLadderSync creates a new ladder sync worker
func NewLadderSync(
	source StandingSource,
	cache LadderRebuilder,
	cfg *config.SyncConfig,
	clock clockwork.Clock,
	logger *slog.Logger,
) *LadderSync {
	return &LadderSync{
		source: source,
		cache:  cache,
		config: cfg,
		clock:  clock,
		logger: logger,
	}
}

// Start begins the background sync process
func (w *LadderSync) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	w.logger.Info("ladder sync started", "interval", w.config.Interval)

	go w.run(ctx, w.stopCh, w.doneCh)
	return nil
}

// Stop stops the background sync process
func (w *LadderSync) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)
	<-doneCh

	w.logger.Info("ladder sync stopped")
	return nil
}

// run is the main worker loop
func (w *LadderSync) run(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := w.clock.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.Chan():
			if err := w.RunOnce(ctx); err != nil {
				w.logger.Error("ladder sync cycle failed", "error", err)
			}
		}
	}
}

// RunOnce rebuilds every tournament's ladder. It keeps going after a
// per-tournament failure and returns the joined errors.
func (w *LadderSync) RunOnce(ctx context.Context) error {
	startTime := w.clock.Now()

	tournaments, err := w.source.ListTournaments(ctx, "")
	if err != nil {
		return fmt.Errorf("listing tournaments: %w", err)
	}

	var errs []error
	synced := 0
	for _, t := range tournaments {
		if err := w.SyncTournament(ctx, t.ID); err != nil {
			w.logger.Error("failed to sync ladder",
				"tournament_id", t.ID,
				"error", err,
			)
			errs = append(errs, err)
			continue
		}
		synced++
	}

	w.logger.Info("ladder sync cycle completed",
		"duration", w.clock.Since(startTime),
		"synced", synced,
		"errors", len(errs),
	)
	return errors.Join(errs...)
}

// SyncTournament rebuilds one tournament's ladder from the store
func (w *LadderSync) SyncTournament(ctx context.Context, tournamentID string) error {
	standings, err := w.source.ListStandings(ctx, tournamentID)
	if err != nil {
		return fmt.Errorf("listing standings for %s: %w", tournamentID, err)
	}
	if err := w.cache.ReplaceLadder(ctx, tournamentID, standings); err != nil {
		return fmt.Errorf("replacing ladder for %s: %w", tournamentID, err)
	}

	w.logger.Debug("synced ladder",
		"tournament_id", tournamentID,
		"standings", len(standings),
	)
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *LadderSync) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

