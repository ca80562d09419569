package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mython/internal/aggregate"
	"mython/internal/amqp"
	"mython/internal/core"
	"mython/internal/entry"
	"mython/internal/ledger"
	"mython/internal/log"
)

const (
	eventQueueSize = 256
	publishTimeout = 5 * time.Second
)

// Publisher forwards ledger events to the broker.
type Publisher interface {
	PublishLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error
	Close() error
}

// LedgerService orchestrates ledger operations across the store and the
// optional AMQP change feed. Publishing happens after the local write and
// never fails the caller.
type LedgerService struct {
	store     *ledger.Store
	workflow  *entry.Workflow
	publisher Publisher
	logger    *log.Logger
	closers   []func() error

	mu          sync.Mutex
	closed      bool
	events      chan ledger.Event
	unsubscribe func()
	wg          sync.WaitGroup
}

type Option func(*LedgerService)

// WithPublisher enables the change feed.
func WithPublisher(p Publisher) Option {
	return func(s *LedgerService) { s.publisher = p }
}

// WithBuilder overrides the entry builder (clock and id source).
func WithBuilder(b *entry.Builder) Option {
	return func(s *LedgerService) { s.workflow = entry.NewWorkflow(s.store, b, s.logger) }
}

// WithCloser registers an extra resource released by Close, such as the
// storage backend.
func WithCloser(fn func() error) Option {
	return func(s *LedgerService) {
		if fn != nil {
			s.closers = append(s.closers, fn)
		}
	}
}

func NewLedgerService(store *ledger.Store, logger *log.Logger, opts ...Option) *LedgerService {
	if logger == nil {
		logger = log.Default()
	}
	s := &LedgerService{
		store:  store,
		logger: logger.WithComponent(log.ComponentLedger),
	}
	s.workflow = entry.NewWorkflow(store, nil, logger)
	for _, opt := range opts {
		opt(s)
	}

	if s.publisher == nil {
		s.logger.Warn("AMQP client not available, ledger events will not be published")
		return s
	}

	s.events = make(chan ledger.Event, eventQueueSize)
	s.unsubscribe = store.Subscribe(s.enqueue)
	s.wg.Add(1)
	go s.publishLoop()
	return s
}

// Store exposes the underlying ledger for readers and subscribers.
func (s *LedgerService) Store() *ledger.Store { return s.store }

// Submit validates the form and prepends the new record.
func (s *LedgerService) Submit(ctx context.Context, f entry.Form) (core.Transaction, error) {
	return s.workflow.Submit(ctx, f)
}

func (s *LedgerService) Delete(ctx context.Context, id string) (bool, error) {
	return s.store.Delete(ctx, id)
}

func (s *LedgerService) Reorder(ctx context.Context, index int, dir ledger.Direction) (bool, error) {
	return s.store.Reorder(ctx, index, dir)
}

func (s *LedgerService) List() []core.Transaction {
	return s.store.Snapshot()
}

// Dashboard derives the figures for month m from a snapshot taken now.
func (s *LedgerService) Dashboard(m core.MonthIndex, now time.Time) aggregate.Dashboard {
	return aggregate.Build(s.store.Snapshot(), m, now)
}

func (s *LedgerService) enqueue(ev ledger.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("Event queue full, dropping ledger event",
			log.FieldOperation, string(ev.Op),
			log.FieldTxID, ev.ID)
	}
}

func (s *LedgerService) publishLoop() {
	defer s.wg.Done()
	for ev := range s.events {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		msg := amqp.NewLedgerEventMessage(string(ev.Op), ev.ID, ev.Index, ev.Len)
		if err := s.publisher.PublishLedgerEvent(ctx, msg); err != nil {
			// the local write already happened
			s.logger.ErrorContext(ctx, "Failed to publish ledger event",
				log.FieldOperation, log.OpPublish,
				log.FieldTxID, ev.ID,
				log.FieldError, err)
		}
		cancel()
	}
}

// Close drains pending events and releases the publisher and every
// registered closer.
func (s *LedgerService) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.events != nil {
		s.unsubscribe()
		close(s.events)
	}
	s.mu.Unlock()
	s.wg.Wait()

	var errs []error
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	for _, fn := range s.closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
