// Package storage holds the key-value backends the ledger persists into.
//
// Every backend stores opaque byte values under string keys. The ledger
// writes its whole JSON array under a single namespace key, so backends only
// need point reads and upserts.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("storage: key not found")

// KV is the persistence port of the ledger.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}
