// Package aggregate derives dashboard figures from a transaction list.
//
// Every function is pure: it reads the slice it is given, never modifies it
// and keeps no state between calls. Month filters compare the calendar month
// only, so records from different years fall into the same bucket.
package aggregate

import (
	"time"

	"github.com/shopspring/decimal"

	"mython/internal/core"
)

const (
	TopLimit    = 5
	RecentLimit = 3
)

var hundred = decimal.NewFromInt(100)

type MonthTotals struct {
	Month   core.MonthIndex `json:"month"`
	Name    string          `json:"name"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
}

type DayTotal struct {
	Day   int             `json:"day"`
	Total decimal.Decimal `json:"total"`
}

type ModeShare struct {
	Mode    core.PaymentMode `json:"mode"`
	Value   decimal.Decimal  `json:"value"`
	Percent int64            `json:"percent"`
}

// Summary holds the totals of one month.
type Summary struct {
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Balance decimal.Decimal `json:"balance"`
}

// FilterMonth returns the records dated in month m of any year, in list order.
func FilterMonth(txs []core.Transaction, m core.MonthIndex) []core.Transaction {
	out := make([]core.Transaction, 0)
	for _, t := range txs {
		if t.Date.MonthIndex() == m {
			out = append(out, t)
		}
	}
	return out
}

func monthExpenses(txs []core.Transaction, m core.MonthIndex, limit int) []core.Transaction {
	out := make([]core.Transaction, 0)
	for _, t := range txs {
		if limit >= 0 && len(out) == limit {
			break
		}
		if t.IsExpense() && t.Date.MonthIndex() == m {
			out = append(out, t)
		}
	}
	return out
}

// TopExpenses returns the first TopLimit expenses of month m as they appear
// in the list. The list order is the user's ranking; amounts are not sorted.
func TopExpenses(txs []core.Transaction, m core.MonthIndex) []core.Transaction {
	return monthExpenses(txs, m, TopLimit)
}

// RecentExpenses returns the first RecentLimit expenses of month m.
func RecentExpenses(txs []core.Transaction, m core.MonthIndex) []core.Transaction {
	return monthExpenses(txs, m, RecentLimit)
}

// YearlyComparison sums income and expense per calendar month, January
// through December, across all years.
func YearlyComparison(txs []core.Transaction) []MonthTotals {
	out := make([]MonthTotals, 0, 12)
	for _, m := range core.Months() {
		out = append(out, MonthTotals{
			Month:   m,
			Name:    m.Short(),
			Income:  decimal.Zero,
			Expense: decimal.Zero,
		})
	}
	for _, t := range txs {
		m := t.Date.MonthIndex()
		if !m.Valid() {
			continue
		}
		switch t.Kind {
		case core.Income:
			out[m].Income = out[m].Income.Add(t.Amount)
		case core.Expense:
			out[m].Expense = out[m].Expense.Add(t.Amount)
		}
	}
	return out
}

// DailyTrend returns one total per day of month m in year, zero filled.
// Only expenses count; records from other years still land on their
// day-of-month when it exists in year's calendar.
func DailyTrend(txs []core.Transaction, m core.MonthIndex, year int) []DayTotal {
	n := core.DaysIn(year, m)
	out := make([]DayTotal, n)
	for i := range out {
		out[i] = DayTotal{Day: i + 1, Total: decimal.Zero}
	}
	for _, t := range txs {
		if !t.IsExpense() || t.Date.MonthIndex() != m {
			continue
		}
		if d := t.Date.Day(); d >= 1 && d <= n {
			out[d-1].Total = out[d-1].Total.Add(t.Amount)
		}
	}
	return out
}

// ModeDistribution groups month m expenses by payment mode in first-seen
// order. Percent is the share rounded half away from zero; every percent is
// 0 when the month's total is zero.
func ModeDistribution(txs []core.Transaction, m core.MonthIndex) []ModeShare {
	out := make([]ModeShare, 0, 2)
	pos := map[core.PaymentMode]int{}
	total := decimal.Zero
	for _, t := range txs {
		if !t.IsExpense() || t.Date.MonthIndex() != m {
			continue
		}
		i, ok := pos[t.Mode]
		if !ok {
			i = len(out)
			pos[t.Mode] = i
			out = append(out, ModeShare{Mode: t.Mode, Value: decimal.Zero})
		}
		out[i].Value = out[i].Value.Add(t.Amount)
		total = total.Add(t.Amount)
	}
	if total.IsZero() {
		return out
	}
	for i := range out {
		out[i].Percent = out[i].Value.Mul(hundred).Div(total).Round(0).IntPart()
	}
	return out
}

// Totals sums month m's income and expense and the difference between them.
func Totals(txs []core.Transaction, m core.MonthIndex) Summary {
	s := Summary{Income: decimal.Zero, Expense: decimal.Zero}
	for _, t := range txs {
		if t.Date.MonthIndex() != m {
			continue
		}
		switch t.Kind {
		case core.Income:
			s.Income = s.Income.Add(t.Amount)
		case core.Expense:
			s.Expense = s.Expense.Add(t.Amount)
		}
	}
	s.Balance = s.Income.Sub(s.Expense)
	return s
}

// Dashboard bundles every derivation for one selected month.
type Dashboard struct {
	Month          core.MonthIndex    `json:"month"`
	MonthName      string             `json:"month_name"`
	Year           int                `json:"year"`
	Totals         Summary            `json:"totals"`
	TopExpenses    []core.Transaction `json:"top_expenses"`
	RecentExpenses []core.Transaction `json:"recent_expenses"`
	Yearly         []MonthTotals      `json:"yearly"`
	DailyTrend     []DayTotal         `json:"daily_trend"`
	Modes          []ModeShare        `json:"modes"`
}

// Build computes the dashboard for month m. now supplies the displayed year
// and the calendar the daily trend is laid out on.
func Build(txs []core.Transaction, m core.MonthIndex, now time.Time) Dashboard {
	year := now.Year()
	return Dashboard{
		Month:          m,
		MonthName:      m.Name(),
		Year:           year,
		Totals:         Totals(txs, m),
		TopExpenses:    TopExpenses(txs, m),
		RecentExpenses: RecentExpenses(txs, m),
		Yearly:         YearlyComparison(txs),
		DailyTrend:     DailyTrend(txs, m, year),
		Modes:          ModeDistribution(txs, m),
	}
}
