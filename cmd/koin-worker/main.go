package main

import (
	"context"
	"errors"
	"os"
	"time"

	"koin/internal/amqp"
	"koin/internal/cache"
	"koin/internal/cli"
	"koin/internal/dedupe"
	"koin/internal/log"
	gsheet "koin/internal/sheets/google"
	"koin/internal/watch"
	"koin/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	logger.Info("Starting koin-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" && len(cfg.ExportUsers) == 0 {
		logger.Error("Nothing to do: set AMQP_URL or EXPORT_USERS")
		os.Exit(1)
	}

	res := cli.InitBackend(context.Background(), logger, cfg)
	st := res.Store

	// Initialize Google Sheets exporter (optional)
	var exporter worker.Exporter
	if cfg.ExportEnabled() {
		e, err := gsheet.New(context.Background(), cfg.GoogleSpreadsheetID, cfg.GoogleReportSheet, cfg.GoogleCredentialsFile, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets exporter", log.FieldError, err)
			os.Exit(1)
		}
		exporter = e
		logger.Info("Google Sheets export enabled", log.FieldSpreadsheet, cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	views := watch.New(st, cache.NewViews(cfg.ViewCacheSize, cfg.ViewCacheTTL), logger)
	syncWorker := worker.NewSyncWorker(views, exporter, dedupe.NewRepairer(st, logger), cfg.ExportMonths, logger)

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		c, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		amqpClient = c
	}

	var reconciler *worker.Reconciler
	if len(cfg.ExportUsers) > 0 {
		reconciler = worker.NewReconciler(syncWorker, worker.ReconcilerConfig{
			Interval: cfg.ReconcileInterval,
			Users:    cfg.ExportUsers,
		}, logger)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if reconciler != nil {
			if err := reconciler.Stop(stopCtx); err != nil {
				logger.Error("Failed to stop reconciler", log.FieldError, err)
			}
		}
		if amqpClient != nil {
			amqpClient.Close()
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Failed to close store", log.FieldError, err)
		}
	})

	if reconciler != nil {
		if err := reconciler.Start(ctx); err != nil {
			logger.Error("Failed to start reconciler", log.FieldError, err)
			os.Exit(1)
		}
	}

	if amqpClient != nil {
		go func() {
			if err := amqpClient.Consume(ctx, syncWorker.HandleMessage); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err)
				os.Exit(1)
			}
		}()
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
