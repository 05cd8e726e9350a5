// Package cli holds the start-up steps shared by cmd/savings-rate,
// cmd/sr-server and cmd/sr-worker.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"savingsrate/internal/cache"
	"savingsrate/internal/config"
	"savingsrate/internal/core"
	"savingsrate/internal/engine"
	"savingsrate/internal/log"
	"savingsrate/internal/reference"
	"savingsrate/internal/services"
	"savingsrate/internal/sources"
	"savingsrate/internal/storage"

	"github.com/joho/godotenv"
)

// referenceCacheSize bounds distinct (endpoint, window) pairs kept in memory.
const referenceCacheSize = 32

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(cfg *config.Config) *log.Logger {
	logger := log.New(log.Config{
		Level:  log.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
		Output: os.Stdout,
	})
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and exits on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	return cfg
}

// OpenSettingsStore opens the settings database, seeding the default self
// profile on first use. It exits the process on failure.
func OpenSettingsStore(ctx context.Context, logger *log.Logger, dbPath string) *storage.Store {
	store, err := storage.Open(dbPath, logger)
	if err != nil {
		logger.Error("Failed to open settings store", log.FieldError, err.Error(), "path", dbPath)
		os.Exit(1)
	}
	seeded, err := store.EnsureDefaults(ctx)
	if err != nil {
		logger.Error("Failed to seed default settings", log.FieldError, err.Error())
		store.Close()
		os.Exit(1)
	}
	if seeded {
		logger.Info("Seeded default self profile", "path", dbPath)
	}
	return store
}

// ComparisonConfig maps process configuration onto the service.
func ComparisonConfig(cfg *config.Config) services.ComparisonConfig {
	return services.ComparisonConfig{
		Concurrency:      cfg.SourceConcurrency,
		ReferenceURL:     cfg.ReferenceURL,
		ReferenceAPIKey:  cfg.ReferenceAPIKey,
		ReferenceLabel:   cfg.ReferenceLabel,
		ReferenceTimeout: cfg.ReferenceTimeout,
	}
}

// NoteMerger builds the merger configured by NOTE_SEPARATOR and NOTE_JOINER.
func NoteMerger(cfg *config.Config) engine.NoteMerger {
	m := engine.DefaultNoteMerger()
	m.Separator = cfg.NoteSeparator
	if cfg.NoteJoiner != "" {
		m.Joiner = cfg.NoteJoiner
	}
	return m
}

// NewComparisonService wires the engine, the cached reference client and the
// row sources around settings. The returned manager sweeps the reference
// cache and is not started.
func NewComparisonService(cfg *config.Config, settings services.SettingsReader, logger *log.Logger) (*services.ComparisonService, *cache.Manager) {
	refCache := cache.NewLRU[[]core.ReferencePoint](referenceCacheSize, cfg.ReferenceCacheTTL)
	manager := cache.NewManager(logger)
	manager.Register("reference", refCache)

	ref := reference.NewClient(cfg.ReferenceTimeout,
		reference.WithCache(refCache),
		reference.WithLogger(logger),
	)
	svc := services.NewComparisonService(settings, sources.Open, ComparisonConfig(cfg),
		services.WithEngine(engine.New(engine.WithNoteMerger(NoteMerger(cfg)))),
		services.WithReference(ref),
		services.WithLogger(logger),
	)
	return svc, manager
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. cleanup
// runs with a context bounded by timeout before done is closed.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", log.FieldOperation, log.OpShutdown, "signal", sig.String())

		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}
