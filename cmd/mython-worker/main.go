// Command mython-worker mirrors the ledger to the EXPORT_TARGETS sinks. It
// re-exports on every change event from the AMQP feed and, as a catch-up
// for missed messages, on a fixed interval.
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"mython/internal/cli"
	"mython/internal/config"
	"mython/internal/export"
	"mython/internal/log"
	"mython/internal/worker"
)

const resyncInterval = 15 * time.Minute

func main() {
	cli.LoadEnvFile()

	cfg := config.Load()
	if err := cfg.ValidateWorker(); err != nil {
		log.Default().Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg).WithComponent(log.ComponentWorker)
	logger.Info("Starting mython-worker", log.FieldOperation, log.OpStartup)

	be, err := cli.OpenBackend(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to open storage backend", log.FieldError, err, log.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}
	defer be.Close()

	sink, err := export.OpenAll(context.Background(), cfg.ExportTargets, logger)
	if err != nil {
		logger.Error("Failed to open export targets", log.FieldError, err)
		os.Exit(1)
	}

	amqpClient, err := cli.OpenAMQP(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	if amqpClient != nil {
		defer amqpClient.Close()
	} else {
		logger.Info("AMQP_URL not set, exporting on interval only", "interval", resyncInterval)
	}

	exportWorker := worker.NewExportWorker(be.KV, cfg.StorageKey, sink, worker.ExportWorkerConfig{
		Debounce: cfg.ExportDebounce,
	}, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := exportWorker.Stop(ctx); err != nil {
			logger.Error("Export worker stop failed", log.FieldError, err)
		}
	})

	if err := exportWorker.Start(ctx); err != nil {
		logger.Error("Failed to start export worker", log.FieldError, err)
		os.Exit(1)
	}

	if amqpClient != nil {
		go func() {
			err := amqpClient.ConsumeLedgerEvents(ctx, exportWorker.HandleLedgerEvent)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", log.FieldError, err)
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(resyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				exportWorker.Trigger()
			}
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete", "exports", exportWorker.Exports())
}
