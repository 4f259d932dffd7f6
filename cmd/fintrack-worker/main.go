package main

import (
	"context"
	"errors"
	"os"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cli"
	applog "fintrack/internal/log"
	"fintrack/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)

	logger.Info("Starting fintrack-worker")

	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}
	if cfg.DataBackend == "memory" {
		logger.Warn("Memory backend is process local; budget alerts will not see server writes")
	}

	res, err := cli.OpenBackend(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err.Error())
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err.Error())
		_ = res.Cleanup()
		os.Exit(1)
	}

	alerts := worker.NewAlertWorker(res.Backend.Analytics, cfg.BudgetAlertThreshold, logger.Logger)

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, func(context.Context) {
		if err := amqpClient.Close(); err != nil {
			logger.Error("AMQP close error", applog.FieldError, err.Error())
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err.Error())
		}
	})

	logger.Info("Consuming ledger events",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue,
		"threshold", cfg.BudgetAlertThreshold)

	err = amqpClient.ConsumeLedgerEvents(ctx, alerts.HandleLedgerEvent)
	switch {
	case errors.Is(err, context.Canceled), ctx.Err() != nil:
	default:
		logger.Error("Message consumption failed", applog.FieldError, err.Error())
		_ = amqpClient.Close()
		_ = res.Cleanup()
		os.Exit(1)
	}

	<-done
	logger.Info("Worker stopped gracefully")
}
