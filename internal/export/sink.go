// Package export writes ledger snapshots to external targets.
//
// A target is named by a spec of the form <kind>:<address>:
//
//	jsonfile:/var/backups/mython.json
//	es8:http://localhost:9200/mython
//	sheets:<spreadsheet id>/<sheet name>
package export

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"mython/internal/core"
	"mython/internal/log"
)

var ErrUnknownSink = errors.New("unknown export sink")

// Sink receives the full ordered list on every export.
type Sink interface {
	Name() string
	Write(ctx context.Context, txs []core.Transaction) error
}

// Open builds the sink a spec describes.
func Open(ctx context.Context, spec string, logger *log.Logger) (Sink, error) {
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithComponent(log.ComponentExport)

	kind, addr, ok := strings.Cut(strings.TrimSpace(spec), ":")
	if !ok || addr == "" {
		return nil, fmt.Errorf("%w: %q (expected <kind>:<address>)", ErrUnknownSink, spec)
	}
	switch strings.ToLower(kind) {
	case "jsonfile":
		return NewJSONFile(addr), nil
	case "es8":
		return NewElasticsearchV8(addr, logger)
	case "sheets":
		id, sheet, _ := strings.Cut(addr, "/")
		return NewSheetsFromEnv(ctx, id, sheet, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSink, kind)
	}
}

// OpenAll opens every spec and combines them. An empty list yields nil.
func OpenAll(ctx context.Context, specs []string, logger *log.Logger) (Sink, error) {
	var sinks []Sink
	for _, spec := range specs {
		s, err := Open(ctx, spec, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	}
	return Multi(sinks), nil
}

// Multi writes to every sink concurrently.
type Multi []Sink

func (m Multi) Name() string {
	names := make([]string, len(m))
	for i, s := range m {
		names[i] = s.Name()
	}
	return strings.Join(names, ",")
}

// Write returns the first sink error; the other sinks still run to completion
// unless they observe the cancelled context.
func (m Multi) Write(ctx context.Context, txs []core.Transaction) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range m {
		s := s
		g.Go(func() error {
			if err := s.Write(ctx, txs); err != nil {
				return fmt.Errorf("%s: %w", s.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
