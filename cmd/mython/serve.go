package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"mython/internal/cli"
	apphttp "mython/internal/http"
	"mython/internal/log"
	"mython/internal/services"
	"mython/internal/session"
)

type serveCmd struct {
	Port            string        `help:"Override PORT."`
	ShutdownTimeout time.Duration `name:"shutdown-timeout" default:"30s" help:"Grace period for in-flight requests."`
}

type pinger interface {
	Ping(ctx context.Context) error
}

func (c *serveCmd) Run(g *globals) error {
	cfg, logger, err := g.setup()
	if err != nil {
		return err
	}
	if c.Port != "" {
		cfg.Port = c.Port
	}

	store, be, err := cli.OpenLedger(context.Background(), cfg, logger)
	if err != nil {
		return err
	}

	opts := []services.Option{services.WithCloser(be.Close)}
	publisher, err := cli.OpenAMQP(cfg, logger)
	if err != nil {
		// The change feed is optional; the API works without it.
		logger.Warn("AMQP unavailable, change feed disabled", log.FieldError, err)
	} else if publisher != nil {
		opts = append(opts, services.WithPublisher(publisher))
	}
	svc := services.NewLedgerService(store, logger, opts...)

	sessions := session.NewManager(session.Credentials{
		Username: cfg.AuthUsername,
		Password: cfg.AuthPassword,
	}, cfg.SessionTTL, logger)

	var serverOpts []apphttp.Option
	if p, ok := be.KV.(pinger); ok {
		serverOpts = append(serverOpts, apphttp.WithReadinessCheck("storage", p.Ping))
	}
	srv := apphttp.NewServer(":"+cfg.Port, svc, sessions, logger, serverOpts...)
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, c.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := svc.Close(); err != nil {
			logger.Error("Ledger service close error", log.FieldError, err)
		}
	})

	logger.Info("Starting mython server",
		"port", cfg.Port,
		log.FieldBackend, cfg.DataBackend,
		log.FieldKey, store.Key(),
		log.FieldLen, store.Len(),
		log.FieldOperation, log.OpStartup)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		_ = svc.Close()
		return err
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
	return nil
}
