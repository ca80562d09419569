package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"mython/internal/amqp"
	"mython/internal/core"
	"mython/internal/export"
	"mython/internal/ledger"
	"mython/internal/log"
	"mython/internal/storage"
)

// ExportWorkerConfig holds configuration for the export worker
type ExportWorkerConfig struct {
	// Debounce coalesces bursts of events into one export (default: 2s)
	Debounce time.Duration

	// MaxRetryInterval caps the wait between failed exports (default: 5m)
	MaxRetryInterval time.Duration
}

func DefaultExportWorkerConfig() ExportWorkerConfig {
	return ExportWorkerConfig{
		Debounce:         2 * time.Second,
		MaxRetryInterval: 5 * time.Minute,
	}
}

// ExportWorker re-exports the persisted ledger whenever a change event
// arrives. It reads the snapshot from storage rather than from the event, so
// a burst of events costs a single export.
type ExportWorker struct {
	kv     storage.KV
	key    string
	sink   export.Sink
	config ExportWorkerConfig
	logger *log.Logger

	trigger chan struct{}
	exports atomic.Int64

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewExportWorker(kv storage.KV, key string, sink export.Sink, config ExportWorkerConfig, logger *log.Logger) *ExportWorker {
	if key == "" {
		key = ledger.DefaultKey
	}
	if config.Debounce < 0 {
		config.Debounce = 0
	}
	if config.MaxRetryInterval <= 0 {
		config.MaxRetryInterval = DefaultExportWorkerConfig().MaxRetryInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ExportWorker{
		kv:      kv,
		key:     key,
		sink:    sink,
		config:  config,
		logger:  logger.WithComponent(log.ComponentWorker),
		trigger: make(chan struct{}, 1),
	}
}

// HandleLedgerEvent is the AMQP consumer callback.
func (w *ExportWorker) HandleLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	w.logger.DebugContext(ctx, "Ledger event received",
		log.FieldOperation, msg.Op,
		log.FieldTxID, msg.ID,
		log.FieldLen, msg.Len)
	w.Trigger()
	return nil
}

// Trigger schedules an export. Calls made while one is already pending
// collapse into it.
func (w *ExportWorker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Exports reports how many exports completed successfully.
func (w *ExportWorker) Exports() int64 { return w.exports.Load() }

// Snapshot reads and decodes the persisted ledger.
func (w *ExportWorker) Snapshot(ctx context.Context) ([]core.Transaction, error) {
	data, err := w.kv.Get(ctx, w.key)
	if errors.Is(err, storage.ErrNotFound) {
		return []core.Transaction{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return ledger.Decode(data)
}

// ExportNow writes the current snapshot to the sink.
func (w *ExportWorker) ExportNow(ctx context.Context) error {
	txs, err := w.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := w.sink.Write(ctx, txs); err != nil {
		return fmt.Errorf("export to %s: %w", w.sink.Name(), err)
	}
	w.exports.Add(1)
	w.logger.InfoContext(ctx, "Ledger exported",
		log.FieldOperation, log.OpExport,
		log.FieldSink, w.sink.Name(),
		log.FieldLen, len(txs))
	return nil
}

// Start begins the processing loop. Returns an error if already running.
func (w *ExportWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("export worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.runLoop(ctx)

	w.logger.InfoContext(ctx, "Export worker started",
		log.FieldSink, w.sink.Name(),
		"debounce", w.config.Debounce)
	return nil
}

// Stop gracefully stops the worker and waits for the loop to exit.
func (w *ExportWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stopCh)
	done := w.doneCh
	w.mu.Unlock()

	select {
	case <-done:
		w.logger.InfoContext(ctx, "Export worker stopped gracefully")
		return nil
	case <-ctx.Done():
		w.logger.WarnContext(ctx, "Export worker stop timed out")
		return ctx.Err()
	}
}

func (w *ExportWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *ExportWorker) runLoop(ctx context.Context) {
	defer close(w.doneCh)

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = max(w.config.Debounce, time.Second)
	retry.MaxInterval = w.config.MaxRetryInterval
	retry.MaxElapsedTime = 0

	timer := time.NewTimer(0) // export once on startup
	defer timer.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-w.trigger:
			resetTimer(timer, w.config.Debounce)
		case <-timer.C:
			if err := w.ExportNow(ctx); err != nil {
				wait := retry.NextBackOff()
				w.logger.ErrorContext(ctx, "Export failed, will retry",
					log.FieldOperation, log.OpExport,
					log.FieldError, err,
					"retry_in", wait)
				timer.Reset(wait)
				continue
			}
			retry.Reset()
		}
	}
}

// resetTimer re-arms t for d, discarding a pending fire.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
