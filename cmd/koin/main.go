package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"koin/internal/amqp"
	"koin/internal/cache"
	"koin/internal/cli"
	"koin/internal/creditcard"
	"koin/internal/dedupe"
	apphttp "koin/internal/http"
	"koin/internal/ledger"
	"koin/internal/log"
	"koin/internal/store"
	"koin/internal/watch"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	res := cli.InitBackend(context.Background(), logger, cfg)
	st := res.Store

	// The queue is optional: without it writes are not announced and
	// repairs always run inline.
	var (
		amqpClient *amqp.Client
		publisher  ledger.Publisher
		jobs       apphttp.RepairQueue
	)
	if cfg.AMQPURL != "" {
		c, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("AMQP unavailable, continuing without change messages", log.FieldError, err)
		} else {
			amqpClient, publisher, jobs = c, c, c
		}
	}

	views := cache.NewViews(cfg.ViewCacheSize, cfg.ViewCacheTTL)
	deps := apphttp.Deps{
		Store:      st,
		Ledger:     ledger.NewService(st, publisher, logger),
		Cards:      creditcard.NewService(st, logger),
		Repairer:   dedupe.NewRepairer(st, logger),
		Watch:      watch.New(st, views, logger),
		Views:      views,
		Jobs:       jobs,
		UserHeader: cfg.UserHeader,
		Logger:     logger,
	}
	if sub, ok := st.(store.Subscriber); ok {
		deps.Subscriber = sub
	}

	srv := apphttp.NewServer(":"+cfg.Port, deps)
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if amqpClient != nil {
			amqpClient.Close()
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Failed to close store", log.FieldError, err)
		}
	})

	logger.Info("Starting koin server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
