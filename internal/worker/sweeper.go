package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"github.com/tier-ladder/internal/config"
	"github.com/tier-ladder/internal/domain"
	"github.com/tier-ladder/internal/service"
)

// TournamentLister lists tournaments by status
type TournamentLister interface {
	ListTournaments(ctx context.Context, status domain.TournamentStatus) ([]domain.Tournament, error)
}

// PastDueForfeiter finds and resolves unanswered challenges
type PastDueForfeiter interface {
	GetPastDueChallenges(ctx context.Context, tournamentID string) ([]service.PastDueChallenge, error)
	ForfeitPastDue(ctx context.Context, challengeID string, grace time.Duration) (*domain.Challenge, error)
}

// Locker serializes sweeps across replicas
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// SweepReport summarizes one sweep
type SweepReport struct {
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Tournaments int           `json:"tournaments"`
	Examined    int           `json:"examined"`
	Forfeited   []string      `json:"forfeited"`
	Skipped     int           `json:"skipped"`
	Errors      int           `json:"errors"`
	// LockHeld is true when another replica owned the sweep
	LockHeld bool `json:"lock_held"`
}

// TimeoutSweeper auto-forfeits challenges whose defender never answered
// within the tournament's timeframe plus a grace period
type TimeoutSweeper struct {
	tournaments TournamentLister
	engine      PastDueForfeiter
	locker      Locker
	config      *config.SweeperConfig
	clock       clockwork.Clock
	logger      *slog.Logger

	scheduler gocron.Scheduler

	mu      sync.Mutex
	running bool
	nextDue time.Time
	sweepMu sync.Mutex
}

// NewTimeoutSweeper creates a new sweeper. The first sweep is due one
// interval after construction.
func NewTimeoutSweeper(
	tournaments TournamentLister,
	engine PastDueForfeiter,
	cfg *config.SweeperConfig,
	clock clockwork.Clock,
	logger *slog.Logger,
) *TimeoutSweeper {
	return &TimeoutSweeper{
		tournaments: tournaments,
		engine:      engine,
		config:      cfg,
		clock:       clock,
		logger:      logger,
		nextDue:     clock.Now().Add(cfg.Interval),
	}
}

// SetLocker makes every sweep acquire l first
func (s *TimeoutSweeper) SetLocker(l Locker) {
	s.locker = l
}

// Start schedules the sweep every configured interval
func (s *TimeoutSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	scheduler, err := gocron.NewScheduler(gocron.WithClock(s.clock))
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(s.config.Interval),
		gocron.NewTask(func() {
			s.RunOnce(ctx)
		}),
		gocron.WithName("timeout-sweeper"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return fmt.Errorf("scheduling sweep: %w", err)
	}

	scheduler.Start()
	s.scheduler = scheduler
	s.running = true

	s.logger.Info("timeout sweeper started",
		"interval", s.config.Interval,
		"grace_period", s.config.GracePeriod,
	)
	return nil
}

// Stop waits for a running sweep and stops the schedule
func (s *TimeoutSweeper) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	scheduler := s.scheduler
	s.scheduler = nil
	s.running = false
	s.mu.Unlock()

	// a sweep in flight still needs s.mu to finish
	err := scheduler.Shutdown()

	s.logger.Info("timeout sweeper stopped")
	if err != nil {
		return fmt.Errorf("stopping scheduler: %w", err)
	}
	return nil
}

// IsRunning returns whether the sweep is scheduled
func (s *TimeoutSweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextDue returns when the next sweep is expected. It never moves backwards.
func (s *TimeoutSweeper) NextDue() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextDue
}

// RunOnce sweeps every active tournament. Running it twice for the same
// instant forfeits nothing the second time.
func (s *TimeoutSweeper) RunOnce(ctx context.Context) SweepReport {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	started := s.clock.Now()
	report := SweepReport{StartedAt: started, Forfeited: []string{}}
	defer s.advance(started)

	if s.locker != nil {
		acquired, err := s.locker.Acquire(ctx)
		if err != nil {
			s.logger.Error("failed to acquire sweep lock", "error", err)
			report.Errors++
			return report
		}
		if !acquired {
			s.logger.Info("sweep skipped, lock held elsewhere")
			report.LockHeld = true
			return report
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("failed to release sweep lock", "error", err)
			}
		}()
	}

	tournaments, err := s.tournaments.ListTournaments(ctx, domain.TournamentActive)
	if err != nil {
		s.logger.Error("failed to list tournaments for sweep", "error", err)
		report.Errors++
		return report
	}

	for _, t := range tournaments {
		report.Tournaments++
		s.sweepTournament(ctx, t.ID, &report)
	}

	report.Duration = s.clock.Since(started)
	s.logger.Info("sweep completed",
		"duration", report.Duration,
		"tournaments", report.Tournaments,
		"forfeited", len(report.Forfeited),
		"skipped", report.Skipped,
		"errors", report.Errors,
	)
	return report
}

func (s *TimeoutSweeper) sweepTournament(ctx context.Context, tournamentID string, report *SweepReport) {
	pastDue, err := s.engine.GetPastDueChallenges(ctx, tournamentID)
	if err != nil {
		s.logger.Error("failed to find past due challenges",
			"tournament_id", tournamentID,
			"error", err,
		)
		report.Errors++
		return
	}

	for _, p := range pastDue {
		report.Examined++
		if !p.GraceElapsed(s.config.GracePeriod) {
			continue
		}

		c, err := s.engine.ForfeitPastDue(ctx, p.Challenge.ID, s.config.GracePeriod)
		_, rejected := domain.AsRejection(err)
		switch {
		case err == nil:
			report.Forfeited = append(report.Forfeited, c.ID)
		case rejected:
			// answered or resolved since the scan
			s.logger.Debug("challenge no longer past due",
				"challenge_id", p.Challenge.ID,
				"error", err,
			)
			report.Skipped++
		default:
			s.logger.Error("failed to auto-forfeit challenge",
				"challenge_id", p.Challenge.ID,
				"error", err,
			)
			report.Errors++
		}
	}
}

// advance moves nextDue forward by whole intervals until it is after ranAt
func (s *TimeoutSweeper) advance(ranAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.config.Interval <= 0 {
		return
	}
	for !s.nextDue.After(ranAt) {
		s.nextDue = s.nextDue.Add(s.config.Interval)
	}
}
