package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"savingsrate/internal/amqp"
	"savingsrate/internal/cache"
	"savingsrate/internal/cli"
	"savingsrate/internal/core"
	apphttp "savingsrate/internal/http"
	"savingsrate/internal/log"
)

func main() {
	cli.LoadEnvFile()

	bootstrap := log.New(log.DefaultConfig())
	cfg := cli.LoadAndValidateConfig(bootstrap)
	logger := cli.SetupLogger(cfg)

	store := cli.OpenSettingsStore(context.Background(), logger, cfg.SettingsDBPath)
	defer store.Close()

	svc, cacheManager := cli.NewComparisonService(cfg, store, logger)

	seriesCache := cache.NewLRU[core.ComparisonResult](1, cfg.SeriesCacheTTL)
	cacheManager.Register("series", seriesCache)

	opts := []apphttp.Option{
		apphttp.WithLogger(logger),
		apphttp.WithResultCache(seriesCache),
		apphttp.WithWarSetter(store),
		apphttp.WithChecks(apphttp.Check{Name: "settings", Fn: store.Ping}),
	}

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(amqp.Config{
			URL:               cfg.AMQPURL,
			Exchange:          cfg.AMQPExchange,
			RefreshQueue:      cfg.AMQPRefreshQueue,
			ResultsRoutingKey: cfg.AMQPResultsRoutingKey,
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
			os.Exit(1)
		}
		defer amqpClient.Close()
		opts = append(opts,
			apphttp.WithPublisher(amqpClient),
			apphttp.WithChecks(apphttp.Check{Name: "amqp", Fn: amqpClient.Healthy}),
		)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, opts...)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		cacheManager.Stop()
	})
	cacheManager.Start(ctx, time.Minute)

	logger.Info("Starting savings-rate server", "port", cfg.Port, "db", cfg.SettingsDBPath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}
