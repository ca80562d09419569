package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"mython/internal/aggregate"
	"mython/internal/cli"
	"mython/internal/core"
)

type listCmd struct {
	Month string `help:"Only show records of this month (0-11, full or short name)."`

	out io.Writer `kong:"-"`
}

func (c *listCmd) Run(g *globals) error {
	cfg, logger, err := g.setup()
	if err != nil {
		return err
	}
	store, be, err := cli.OpenLedger(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	defer be.Close()

	txs := store.Snapshot()
	if c.Month != "" {
		m, err := core.ParseMonth(c.Month)
		if err != nil {
			return err
		}
		txs = aggregate.FilterMonth(txs, m)
	}
	return writeTable(writerOr(c.out), txs)
}

func writeTable(w io.Writer, txs []core.Transaction) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tDATE\tTYPE\tAMOUNT\tMODE\tPARTICULARS")
	for i, t := range txs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", i, t.Date, t.Kind, core.FormatAmount(t.Amount), t.Mode, t.Label)
	}
	return tw.Flush()
}

type dashboardCmd struct {
	Month string `help:"Month to summarise (0-11, full or short name). Defaults to the current month."`

	out io.Writer        `kong:"-"`
	now func() time.Time `kong:"-"`
}

func (c *dashboardCmd) Run(g *globals) error {
	cfg, logger, err := g.setup()
	if err != nil {
		return err
	}
	store, be, err := cli.OpenLedger(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	defer be.Close()

	now := time.Now()
	if c.now != nil {
		now = c.now()
	}
	m := core.MonthOf(now)
	if c.Month != "" {
		if m, err = core.ParseMonth(c.Month); err != nil {
			return err
		}
	}
	return writeDashboard(writerOr(c.out), aggregate.Build(store.Snapshot(), m, now))
}

func writeDashboard(w io.Writer, d aggregate.Dashboard) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

func writerOr(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}
