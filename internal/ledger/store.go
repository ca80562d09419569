// Package ledger owns the ordered list of transactions and keeps the
// persisted copy in step with it.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"mython/internal/core"
	"mython/internal/log"
	"mython/internal/storage"
)

// DefaultKey is the namespace key the list is stored under.
const DefaultKey = "mython_transactions"

// persistTimeout bounds a single write of the list. The write is detached
// from the caller's cancellation so a dropped request still persists.
const persistTimeout = 10 * time.Second

// ErrNotPersisted wraps failures to write the list after the in-memory
// mutation was applied.
var ErrNotPersisted = errors.New("persist ledger")

// Direction of a Reorder move.
type Direction int

const (
	Up   Direction = iota // toward index 0
	Down                  // toward the end
)

var ErrInvalidDirection = errors.New("ledger: invalid direction")

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up":
		return Up, nil
	case "down":
		return Down, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// Op names the mutation an Event reports.
type Op string

const (
	OpAdd     Op = "add"
	OpDelete  Op = "delete"
	OpReorder Op = "reorder"
)

// Event is delivered to listeners after an effective mutation. Index is the
// position the record occupied before a delete, or the position it moved to.
type Event struct {
	Op    Op
	ID    string
	Index int
	Len   int
}

type Listener func(Event)

type listener struct {
	id int
	fn Listener
}

// Store is safe for concurrent use. Mutations and their persistence writes
// are serialized by one mutex; listeners run after it is released.
type Store struct {
	mu     sync.Mutex
	txs    []core.Transaction
	kv     storage.KV
	key    string
	logger *log.Logger

	lmu       sync.Mutex
	listeners []listener
	nextID    int
}

type Option func(*Store)

func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open rehydrates the list from kv. A missing or unreadable payload yields an
// empty ledger; only backend I/O failures are returned.
func Open(ctx context.Context, kv storage.KV, opts ...Option) (*Store, error) {
	s := &Store{
		kv:     kv,
		key:    DefaultKey,
		logger: log.Default(),
		txs:    []core.Transaction{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent(log.ComponentLedger)

	data, err := kv.Get(ctx, s.key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.logger.InfoContext(ctx, "No persisted ledger, starting empty", log.FieldKey, s.key)
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("load %s: %w", s.key, err)
	}

	txs, err := Decode(data)
	if err != nil {
		s.logger.WarnContext(ctx, "Persisted ledger unreadable, starting empty",
			log.FieldKey, s.key,
			log.FieldOperation, log.OpLoad,
			"error_type", log.ErrorTypeCorruptState,
			log.FieldError, err)
		return s, nil
	}
	s.txs = txs
	s.logger.InfoContext(ctx, "Ledger loaded", log.FieldKey, s.key, log.FieldLen, len(txs))
	return s, nil
}

// Add places tx at the front of the list. Callers validate.
func (s *Store) Add(ctx context.Context, tx core.Transaction) error {
	s.mu.Lock()
	next := make([]core.Transaction, 0, len(s.txs)+1)
	next = append(next, tx)
	s.txs = append(next, s.txs...)
	ev := Event{Op: OpAdd, ID: tx.ID, Index: 0, Len: len(s.txs)}
	err := s.persistLocked(ctx)
	s.mu.Unlock()

	s.notify(ev)
	return err
}

// Delete removes the first record with id. Unknown ids are a no-op.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	idx := -1
	for i := range s.txs {
		if s.txs[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false, nil
	}
	next := make([]core.Transaction, 0, len(s.txs)-1)
	next = append(next, s.txs[:idx]...)
	s.txs = append(next, s.txs[idx+1:]...)
	ev := Event{Op: OpDelete, ID: id, Index: idx, Len: len(s.txs)}
	err := s.persistLocked(ctx)
	s.mu.Unlock()

	s.notify(ev)
	return true, err
}

// Reorder swaps the record at index with its neighbour in dir. Moves past
// either end or from an out of range index are a no-op.
func (s *Store) Reorder(ctx context.Context, index int, dir Direction) (bool, error) {
	s.mu.Lock()
	target := index - 1
	if dir == Down {
		target = index + 1
	}
	if index < 0 || index >= len(s.txs) || target < 0 || target >= len(s.txs) {
		s.mu.Unlock()
		return false, nil
	}
	next := make([]core.Transaction, len(s.txs))
	copy(next, s.txs)
	next[index], next[target] = next[target], next[index]
	s.txs = next
	ev := Event{Op: OpReorder, ID: next[target].ID, Index: target, Len: len(next)}
	err := s.persistLocked(ctx)
	s.mu.Unlock()

	s.notify(ev)
	return true, err
}

// Snapshot returns a copy of the list in display order.
func (s *Store) Snapshot() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, len(s.txs))
	copy(out, s.txs)
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.txs)
}

// Key is the namespace key the store persists under.
func (s *Store) Key() string { return s.key }

// Subscribe registers fn for every future event. The returned func removes it.
func (s *Store) Subscribe(fn Listener) (cancel func()) {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.lmu.Lock()
			defer s.lmu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Store) notify(ev Event) {
	s.lmu.Lock()
	ls := make([]listener, len(s.listeners))
	copy(ls, s.listeners)
	s.lmu.Unlock()

	for _, l := range ls {
		l.fn(ev)
	}
}

// persistLocked writes the whole list. Must hold s.mu.
func (s *Store) persistLocked(ctx context.Context) error {
	data, err := Encode(s.txs)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to encode ledger", log.FieldOperation, log.OpPersist, log.FieldError, err)
		return fmt.Errorf("%w: encode: %w", ErrNotPersisted, err)
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.kv.Set(wctx, s.key, data); err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist ledger",
			log.FieldOperation, log.OpPersist,
			log.FieldKey, s.key,
			"error_type", log.ErrorTypeDatabase,
			log.FieldError, err)
		return fmt.Errorf("%w: %w", ErrNotPersisted, err)
	}
	s.logger.DebugContext(ctx, "Ledger persisted", log.FieldKey, s.key, log.FieldLen, len(s.txs))
	return nil
}
