package entry

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Form is what the entry screen submits. Fields that do not apply to the
// selected kind are ignored.
type Form struct {
	Kind   string      `json:"type"`
	Amount AmountInput `json:"amount"`
	Label  string      `json:"particulars"`
	// Date is the expense date, YYYY-MM-DD. Empty means today.
	Date string `json:"date"`
	// Month is the income month: a 0-11 index, a full or short name.
	// Empty means the current month.
	Month string `json:"month"`
	// Mode is CASH or UPI for expenses. Empty means CASH.
	Mode string `json:"mode"`
}

// AmountInput accepts either a JSON number or a JSON string so that the raw
// text typed into the amount box reaches ParseAmount untouched.
type AmountInput string

func (a *AmountInput) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = AmountInput(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	*a = AmountInput(n.String())
	return nil
}
