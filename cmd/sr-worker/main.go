package main

import (
	"context"
	"errors"
	"os"
	"time"

	"savingsrate/internal/amqp"
	"savingsrate/internal/cli"
	"savingsrate/internal/log"
	"savingsrate/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	bootstrap := log.New(log.DefaultConfig())
	cfg := cli.LoadAndValidateConfig(bootstrap)
	logger := cli.SetupLogger(cfg)

	if cfg.AMQPURL == "" && cfg.RefreshSchedule == "" {
		logger.Error("Nothing to do: set AMQP_URL and/or REFRESH_SCHEDULE")
		os.Exit(1)
	}

	store := cli.OpenSettingsStore(context.Background(), logger, cfg.SettingsDBPath)
	defer store.Close()

	svc, cacheManager := cli.NewComparisonService(cfg, store, logger)

	var amqpClient *amqp.Client
	var publisher worker.ResultPublisher
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
		publisher = amqpClient
	}

	refresher := worker.NewRefreshWorker(svc, publisher, logger)
	scheduler := worker.NewScheduler(logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		scheduler.Stop(ctx)
		cacheManager.Stop()
	})
	cacheManager.Start(ctx, time.Minute)

	if cfg.RefreshSchedule != "" {
		// With a broker the tick is enqueued rather than run in-process.
		job := func(ctx context.Context) error { return refresher.Refresh(ctx, "schedule") }
		if amqpClient != nil {
			job = func(ctx context.Context) error {
				_, err := amqpClient.PublishRefresh(ctx, "schedule")
				return err
			}
		}
		if err := scheduler.Add(ctx, cfg.RefreshSchedule, "refresh", job); err != nil {
			logger.Error("Failed to schedule refresh", log.FieldError, err.Error())
			os.Exit(1)
		}
		scheduler.Start()
	}

	logger.Info("Performing startup refresh...", log.FieldOperation, log.OpStartup)
	if err := refresher.Refresh(ctx, log.OpStartup); err != nil {
		logger.Error("Startup refresh failed", log.FieldOperation, log.OpStartup, log.FieldError, err.Error())
	}

	if amqpClient != nil {
		go func() {
			if err := amqpClient.Run(ctx, refresher.HandleRefresh); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err.Error())
			}
		}()
	}

	logger.Info("Worker started", "schedule", cfg.RefreshSchedule, "amqp", amqpClient != nil)
	<-ctx.Done()
	<-done
	logger.Info("Worker shutdown complete")
}
