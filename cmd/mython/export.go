package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mython/internal/cli"
	"mython/internal/export"
	"mython/internal/log"
)

type exportCmd struct {
	Out     []string      `help:"Where to write [jsonfile:/path/file.json es8:http://myelasticsearch:9200/mython sheets:<id>/<sheet>]. Defaults to EXPORT_TARGETS."`
	Timeout time.Duration `default:"2m" help:"Give up after this long."`
}

func (c *exportCmd) Run(g *globals) error {
	cfg, logger, err := g.setup()
	if err != nil {
		return err
	}

	targets := c.Out
	if len(targets) == 0 {
		targets = cfg.ExportTargets
	}
	if len(targets) == 0 {
		return errors.New("no export target: pass --out or set EXPORT_TARGETS")
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	store, be, err := cli.OpenLedger(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.Close()

	sink, err := export.OpenAll(ctx, targets, logger)
	if err != nil {
		return err
	}

	txs := store.Snapshot()
	if err := sink.Write(ctx, txs); err != nil {
		return fmt.Errorf("export to %s: %w", sink.Name(), err)
	}
	logger.Info("Export complete", log.FieldSink, sink.Name(), log.FieldLen, len(txs), log.FieldOperation, log.OpExport)
	return nil
}
