package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tier-ladder/internal/config"
	"github.com/tier-ladder/internal/domain"
	"github.com/tier-ladder/internal/handler"
	"github.com/tier-ladder/internal/kafka"
	"github.com/tier-ladder/internal/memory"
	"github.com/tier-ladder/internal/postgres"
	"github.com/tier-ladder/internal/prestige"
	"github.com/tier-ladder/internal/redis"
	"github.com/tier-ladder/internal/service"
	"github.com/tier-ladder/internal/websocket"
	"github.com/tier-ladder/internal/worker"
)

const sweeperLockKey = "sweeper:lock"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewRealClock()

	// Storage
	var (
		store  domain.Store
		checks = map[string]handler.ReadinessCheck{}
	)
	switch cfg.Storage.Driver {
	case "memory":
		logger.Warn("using in-memory storage, state is lost on restart")
		mem := memory.NewStore()
		mem.SetNow(clock.Now)
		store = mem
	case "postgres":
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		repo, err := postgres.NewRepository(&cfg.Postgres, logger)
		if err != nil {
			logger.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer repo.Close()
		repo.SetNow(clock.Now)
		if err := repo.RunMigrations(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		store = repo
		checks["postgres"] = repo.Ping
		logger.Info("connected to PostgreSQL")
	default:
		logger.Error("unknown storage driver", "driver", cfg.Storage.Driver)
		os.Exit(1)
	}

	// Services
	engine := service.NewChallengeEngine(store, prestige.NewCalculator(cfg.Ladder.Penalties), &cfg.Ladder, clock, logger)
	teams := service.NewTeamService(store, clock, logger)
	tournaments := service.NewTournamentService(store, clock, logger)

	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	notifiers := service.Notifiers{wsHub}

	httpHandler := handler.NewHandler(teams, tournaments, engine, wsHub, &cfg.Ladder, logger)

	sweeper := worker.NewTimeoutSweeper(tournaments, engine, &cfg.Sweeper, clock, logger)

	// Redis ladder cache and sweep lock
	var ladderSync *worker.LadderSync
	if cfg.Redis.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		client, err := redis.NewClient(&cfg.Redis)
		if err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		logger.Info("connected to Redis")

		ladder := redis.NewLadderCache(client, logger)
		engine.SetLadderCache(ladder)
		tournaments.SetLadderCache(ladder)
		httpHandler.SetLadderReader(ladder)
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }

		sweeper.SetLocker(redis.NewLock(client, sweeperLockKey, cfg.Sweeper.LockTTL))

		ladderSync = worker.NewLadderSync(store, ladder, &cfg.Sync, clock, logger)
		logger.Info("rebuilding ladders from storage")
		if err := ladderSync.RunOnce(ctx); err != nil {
			logger.Warn("failed to rebuild ladders on startup", "error", err)
		}
		if cfg.Sync.Enabled {
			if err := ladderSync.Start(ctx); err != nil {
				logger.Error("failed to start ladder sync", "error", err)
				os.Exit(1)
			}
		}
	}

	// Kafka event producer, registered before the result consumer starts
	var (
		eventProducer *kafka.EventProducer
		kafkaConsumer *kafka.Consumer
	)
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka",
			"brokers", cfg.Kafka.Brokers,
			"results_topic", cfg.Kafka.ResultsTopic,
			"events_topic", cfg.Kafka.EventsTopic,
		)
		eventProducer, err = kafka.NewEventProducer(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create Kafka producer, continuing without event stream", "error", err)
		} else {
			notifiers = append(notifiers, eventProducer)
		}
	}
	engine.SetNotifier(notifiers)

	if cfg.Kafka.Enabled {
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, engine, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else if err := kafkaConsumer.Start(); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
			kafkaConsumer = nil
		} else {
			logger.Info("Kafka consumer started successfully")
		}
	}

	for name, check := range checks {
		httpHandler.AddReadinessCheck(name, check)
	}

	if cfg.Sweeper.Enabled {
		if err := sweeper.Start(ctx); err != nil {
			logger.Error("failed to start timeout sweeper", "error", err)
			os.Exit(1)
		}
		logger.Info("timeout sweeper scheduled", "next_due", sweeper.NextDue())
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port, "storage", cfg.Storage.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	if err := sweeper.Stop(); err != nil {
		logger.Error("failed to stop timeout sweeper", "error", err)
	}
	if ladderSync != nil {
		if err := ladderSync.Stop(); err != nil {
			logger.Error("failed to stop ladder sync", "error", err)
		}
	}

	if eventProducer != nil {
		if err := eventProducer.Close(); err != nil {
			logger.Error("failed to close Kafka producer", "error", err)
		}
	}
	wsHub.Stop()

	logger.Info("server stopped")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
