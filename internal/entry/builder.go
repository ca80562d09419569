// Package entry turns submitted forms into transactions and hands them to
// the ledger.
package entry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"mython/internal/core"
	"mython/internal/log"
)

var (
	ErrMissingAmount = errors.New("amount is required")
	ErrMissingLabel  = errors.New("particulars are required")
)

// IDGenerator hands out record ids.
type IDGenerator interface {
	NewID() (string, error)
}

// IDFunc adapts a function to IDGenerator.
type IDFunc func() (string, error)

func (f IDFunc) NewID() (string, error) { return f() }

// UUIDGenerator issues time ordered UUIDv7 ids.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id.String(), nil
}

type Builder struct {
	Clock func() time.Time
	IDs   IDGenerator
}

func NewBuilder() *Builder {
	return &Builder{Clock: time.Now, IDs: UUIDGenerator{}}
}

// Build validates f and produces the record it describes.
func (b *Builder) Build(f Form) (core.Transaction, error) {
	now := b.now()

	kind, err := core.ParseKind(f.Kind)
	if err != nil {
		return core.Transaction{}, err
	}

	amountText := strings.TrimSpace(string(f.Amount))
	if amountText == "" {
		return core.Transaction{}, ErrMissingAmount
	}
	amount, err := core.ParseAmount(amountText)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("%w: %q is not a valid amount", ErrMissingAmount, amountText)
	}

	tx := core.Transaction{Kind: kind, Amount: amount}

	switch kind {
	case core.Income:
		month := core.MonthOf(now)
		if strings.TrimSpace(f.Month) != "" {
			if month, err = core.ParseMonth(f.Month); err != nil {
				return core.Transaction{}, err
			}
		}
		tx.Date = core.NewDate(now.Year(), month.Number(), 1)
		tx.Label = core.IncomeLabel(month)
		tx.Mode = core.ModeNone

	case core.Expense:
		label := sanitizeInput(f.Label)
		if label == "" {
			return core.Transaction{}, ErrMissingLabel
		}
		tx.Label = label

		tx.Date = core.DateOf(now)
		if strings.TrimSpace(f.Date) != "" {
			if tx.Date, err = core.ParseDate(f.Date); err != nil {
				return core.Transaction{}, err
			}
		}

		tx.Mode = core.ModeCash
		if strings.TrimSpace(f.Mode) != "" {
			mode, err := core.ParsePaymentMode(f.Mode)
			if err != nil {
				return core.Transaction{}, err
			}
			if mode == core.ModeNone {
				return core.Transaction{}, fmt.Errorf("%w: expenses are paid by CASH or UPI", core.ErrInvalidMode)
			}
			tx.Mode = mode
		}
	}

	ids := b.IDs
	if ids == nil {
		ids = UUIDGenerator{}
	}
	if tx.ID, err = ids.NewID(); err != nil {
		return core.Transaction{}, err
	}

	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

func (b *Builder) now() time.Time {
	if b.Clock == nil {
		return time.Now()
	}
	return b.Clock()
}

// IsRejection reports whether err means the form itself was unacceptable,
// as opposed to a failure further down.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrMissingAmount, ErrMissingLabel,
		core.ErrInvalidKind, core.ErrInvalidMode, core.ErrInvalidDate,
		core.ErrInvalidMonth, core.ErrInvalidAmount, core.ErrEmptyLabel,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// sanitizeInput trims and strips control characters except tab, LF and CR.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// Adder is the part of the ledger a workflow needs.
type Adder interface {
	Add(ctx context.Context, tx core.Transaction) error
}

// Workflow validates a submission and stores it at the top of the ledger.
type Workflow struct {
	builder *Builder
	store   Adder
	logger  *log.Logger
	events  *log.StructuredLogger
}

func NewWorkflow(store Adder, builder *Builder, logger *log.Logger) *Workflow {
	if builder == nil {
		builder = NewBuilder()
	}
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithComponent(log.ComponentEntry)
	return &Workflow{
		builder: builder,
		store:   store,
		logger:  logger,
		events:  log.NewStructuredLogger(logger),
	}
}

// Submit builds the record and adds it. Rejected forms never reach the
// store. A persistence failure is returned with the record, which is
// already in the in-memory list.
func (w *Workflow) Submit(ctx context.Context, f Form) (core.Transaction, error) {
	tx, err := w.builder.Build(f)
	if err != nil {
		w.logger.WarnContext(ctx, "Entry rejected",
			log.FieldOperation, log.OpValidate,
			"error_type", log.ErrorTypeValidation,
			log.FieldError, err)
		return core.Transaction{}, err
	}

	if err := w.store.Add(ctx, tx); err != nil {
		return tx, err
	}

	w.events.LogTransactionAdded(ctx, tx.ID, tx.Kind.String(), tx.Date.String(),
		core.FormatAmount(tx.Amount), tx.Mode.String())
	return tx, nil
}
