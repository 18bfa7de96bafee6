package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/auramd-consensus-server/internal/api"
	"github.com/auramd-consensus-server/internal/config"
	"github.com/auramd-consensus-server/internal/database"
	"github.com/auramd-consensus-server/internal/domain"
	"github.com/auramd-consensus-server/internal/notify"
	"github.com/auramd-consensus-server/internal/repository"
	"github.com/auramd-consensus-server/internal/review"
	"github.com/auramd-consensus-server/internal/service"
	"github.com/auramd-consensus-server/pkg/opinion"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := newLogger(cfg.Logging)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Consensus persistence (optional)
	var store domain.ConsensusStore
	if cfg.Database.Enabled {
		db, err := database.NewConnection(ctx, cfg.Database, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to database")
		}
		defer db.Close()

		runner, err := database.NewMigrationRunner(cfg.Database, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create migration runner")
		}
		if err := runner.Up(); err != nil {
			logger.WithError(err).Fatal("Failed to run database migrations")
		}
		if err := runner.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close migration runner")
		}

		store = repository.NewConsensusRepository(db.Pool, logger)
	} else {
		logger.Warn("Database disabled; consensus records will not be persisted")
	}

	// Clinician review store
	reviews, err := newReviewStore(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open review store")
	}
	defer reviews.Close()

	// Shared opinion cache (optional)
	var cache *opinion.Cache
	if cfg.Cache.Enabled {
		cache, err = opinion.NewCache(cfg.Cache)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis cache")
		}
		defer cache.Close()
	}

	// Opinion sources, each behind its own circuit breaker
	resilient := buildSources(ctx, cfg, cache, logger)
	if len(resilient) == 0 {
		logger.Warn("No opinion sources enabled; every analysis will degrade to fallback opinions")
	}

	sources := make([]domain.OpinionSource, 0, len(resilient))
	for _, src := range resilient {
		sources = append(sources, src)
	}

	hub := notify.NewHub(logger)

	diagnosis, err := service.NewDiagnosisService(logger, cfg.Engine, cfg.Sources.Timeout, sources, service.DiagnosisServiceOptions{
		Store:     store,
		Notifier:  hub,
		CacheSize: cfg.Cache.ResultLRU,
		CacheTTL:  cfg.Cache.ResultTTL,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create diagnosis service")
	}

	server := api.NewServer(configManager, logger, diagnosis, api.Options{
		Store:   store,
		Reviews: reviews,
		Hub:     hub,
		SourceStates: func() map[string]string {
			states := make(map[string]string, len(resilient))
			for _, src := range resilient {
				states[src.Name()] = src.BreakerState().String()
			}
			return states
		},
	})

	logger.WithFields(logrus.Fields{
		"host":    cfg.Server.Host,
		"port":    cfg.Server.Port,
		"sources": len(sources),
	}).Info("Starting AuraMD consensus server")

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}

// newLogger builds the process logger from the logging configuration.
func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	if cfg.Output == "stderr" {
		logger.SetOutput(os.Stderr)
	}

	return logger
}

// newReviewStore opens the configured clinician review backend. SQLite keeps
// standalone deployments free of external infrastructure; postgres shares the
// main database.
func newReviewStore(cfg *domain.Config) (review.Store, error) {
	if cfg.Review.Backend == "postgres" {
		return review.NewPostgresStoreFromURL(database.URL(cfg.Database))
	}
	return review.NewSQLiteStore(cfg.Review.SQLitePath)
}

// buildSources constructs every enabled opinion source and wraps each in a
// circuit breaker with the shared Redis cache.
func buildSources(ctx context.Context, cfg *domain.Config, cache *opinion.Cache, logger *logrus.Logger) []*opinion.ResilientSource {
	var sources []*opinion.ResilientSource

	if cfg.Sources.OpenAI.Enabled {
		if cfg.Sources.OpenAI.APIKey == "" {
			logger.Warn("OpenAI source enabled without API key, skipping")
		} else {
			client := opinion.NewOpenAIClient(cfg.Sources.OpenAI)
			sources = append(sources, opinion.NewResilientSource(client, cache, logger))
		}
	}

	if cfg.Sources.Anthropic.Enabled {
		if cfg.Sources.Anthropic.APIKey == "" {
			logger.Warn("Anthropic source enabled without API key, skipping")
		} else {
			client := opinion.NewAnthropicClient(cfg.Sources.Anthropic)
			sources = append(sources, opinion.NewResilientSource(client, cache, logger))
		}
	}

	if cfg.Sources.Gemini.Enabled {
		if cfg.Sources.Gemini.APIKey == "" {
			logger.Warn("Gemini source enabled without API key, skipping")
		} else if client, err := opinion.NewGeminiClient(ctx, cfg.Sources.Gemini); err != nil {
			logger.WithError(err).Warn("Failed to create Gemini client, skipping")
		} else {
			sources = append(sources, opinion.NewResilientSource(client, cache, logger))
		}
	}

	return sources
}
