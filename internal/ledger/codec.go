package ledger

import (
	"encoding/json"
	"errors"
	"fmt"

	"mython/internal/core"
)

// ErrCorruptState is wrapped by Decode when the payload cannot be trusted.
var ErrCorruptState = errors.New("ledger: corrupt persisted state")

// Encode renders the list as the persisted JSON array. An empty list encodes
// as [] rather than null.
func Encode(txs []core.Transaction) ([]byte, error) {
	if txs == nil {
		txs = []core.Transaction{}
	}
	return json.Marshal(txs)
}

// Decode parses a persisted JSON array and checks every record. Order is
// preserved exactly as stored.
func Decode(data []byte) ([]core.Transaction, error) {
	var txs []core.Transaction
	if err := json.Unmarshal(data, &txs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}

	seen := make(map[string]struct{}, len(txs))
	for i, tx := range txs {
		if err := tx.Validate(); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrCorruptState, i, err)
		}
		if _, dup := seen[tx.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrCorruptState, tx.ID)
		}
		seen[tx.ID] = struct{}{}
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	return txs, nil
}
