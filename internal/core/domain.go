package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  Kind = "INCOME"
	Expense Kind = "EXPENSE"
)

// Payment modes. Income records always carry ModeNone.
const (
	ModeCash PaymentMode = "CASH"
	ModeUPI  PaymentMode = "UPI"
	ModeNone PaymentMode = "NONE"
)

// IncomeLabelPrefix starts every income label ("Income for March").
const IncomeLabelPrefix = "Income for "

type (
	// Kind is the transaction type as stored on the wire.
	Kind string

	// PaymentMode is how an expense was paid.
	PaymentMode string

	// Date is a local calendar date with no time-of-day component.
	Date struct {
		time.Time
	}

	// Transaction is a single ledger record. Records are never edited after
	// creation, only deleted or moved as a whole.
	Transaction struct {
		ID     string
		Date   Date
		Kind   Kind
		Amount decimal.Decimal
		Label  string
		Mode   PaymentMode
	}
)

var (
	ErrEmptyID       = errors.New("empty id")
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidKind   = errors.New("invalid transaction type")
	ErrInvalidMode   = errors.New("invalid payment mode")
	ErrInvalidMonth  = errors.New("invalid month")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyLabel    = errors.New("empty label")
)

// DateLayout is the wire format of Date.
const DateLayout = "2006-01-02"

// NewDate creates a new Date from year, month (1-12), day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string. Out-of-range components are
// rejected rather than normalized.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month (1-12)
func (d Date) Month() int {
	return int(d.Time.Month())
}

// MonthIndex returns the zero-based month (January=0).
func (d Date) MonthIndex() MonthIndex {
	return MonthIndex(d.Time.Month() - 1)
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalJSON overrides the embedded time.Time encoding.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	return d.UnmarshalText([]byte(s))
}

// ParseKind maps the wire string to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
	return k, nil
}

func (k Kind) Valid() bool {
	switch k {
	case Income, Expense:
		return true
	default:
		return false
	}
}

func (k Kind) String() string {
	return string(k)
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParsePaymentMode maps the wire string to a PaymentMode.
func ParsePaymentMode(s string) (PaymentMode, error) {
	m := PaymentMode(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
	return m, nil
}

func (m PaymentMode) Valid() bool {
	switch m {
	case ModeCash, ModeUPI, ModeNone:
		return true
	default:
		return false
	}
}

func (m PaymentMode) String() string {
	return string(m)
}

func (m *PaymentMode) UnmarshalText(b []byte) error {
	parsed, err := ParsePaymentMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// IncomeLabel returns the label every income record for month carries.
func IncomeLabel(month MonthIndex) string {
	return IncomeLabelPrefix + month.Name()
}

// IsExpense reports whether t is an expense record.
func (t Transaction) IsExpense() bool {
	return t.Kind == Expense
}

// IsIncome reports whether t is an income record.
func (t Transaction) IsIncome() bool {
	return t.Kind == Income
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrEmptyID
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if t.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	switch t.Kind {
	case Expense:
		if strings.TrimSpace(t.Label) == "" {
			return ErrEmptyLabel
		}
		if t.Mode != ModeCash && t.Mode != ModeUPI {
			return fmt.Errorf("%w: expense paid with %q", ErrInvalidMode, t.Mode)
		}
	case Income:
		if t.Mode != ModeNone {
			return fmt.Errorf("%w: income paid with %q", ErrInvalidMode, t.Mode)
		}
		if !strings.HasPrefix(t.Label, IncomeLabelPrefix) {
			return fmt.Errorf("%w: income label %q", ErrEmptyLabel, t.Label)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, t.Kind)
	}
	return nil
}

// transactionJSON is the persisted and served shape of a Transaction.
type transactionJSON struct {
	ID          string      `json:"id"`
	Date        Date        `json:"date"`
	Type        Kind        `json:"type"`
	Amount      json.Number `json:"amount"`
	Particulars string      `json:"particulars"`
	Mode        PaymentMode `json:"mode"`
}

// MarshalJSON writes the amount as a bare JSON number.
func (t Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(transactionJSON{
		ID:          t.ID,
		Date:        t.Date,
		Type:        t.Kind,
		Amount:      json.Number(t.Amount.String()),
		Particulars: t.Label,
		Mode:        t.Mode,
	})
}

func (t *Transaction) UnmarshalJSON(b []byte) error {
	var raw transactionJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.Amount == "" {
		return fmt.Errorf("%w: missing", ErrInvalidAmount)
	}
	amount, err := decimal.NewFromString(raw.Amount.String())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	*t = Transaction{
		ID:     raw.ID,
		Date:   raw.Date,
		Kind:   raw.Type,
		Amount: amount,
		Label:  raw.Particulars,
		Mode:   raw.Mode,
	}
	return nil
}
