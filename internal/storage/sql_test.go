package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mython/internal/log"
)

func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	_, err := kv.Get(ctx, "mython_transactions")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kv.Set(ctx, "mython_transactions", []byte(`[]`)))
	got, err := kv.Get(ctx, "mython_transactions")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(got))

	payload := []byte(`[{"id":"1","date":"2024-03-05","type":"EXPENSE","amount":1,"particulars":"tea","mode":"CASH"}]`)
	require.NoError(t, kv.Set(ctx, "mython_transactions", payload))
	got, err = kv.Get(ctx, "mython_transactions")
	require.NoError(t, err)
	assert.Equal(t, string(payload), string(got))

	_, err = kv.Get(ctx, "other")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteKV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "mython.db")
	kv, err := OpenSQLite(path, log.Discard())
	require.NoError(t, err)
	defer kv.Close()

	exerciseKV(t, kv)
	require.NoError(t, kv.Ping(context.Background()))
}

func TestSQLiteKV_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mython.db")
	ctx := context.Background()

	kv, err := OpenSQLite(path, log.Discard())
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, "k", []byte("v1")))
	require.NoError(t, kv.Close())

	// Migrations must be idempotent on an existing file
	kv, err = OpenSQLite(path, log.Discard())
	require.NoError(t, err)
	defer kv.Close()

	got, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got))
}

func TestPostgresKV(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_URL")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_URL not set")
	}
	kv, err := OpenPostgres(context.Background(), dsn, log.Discard())
	require.NoError(t, err)
	defer kv.Close()

	_, err = kv.db.Exec(`DELETE FROM kv`)
	require.NoError(t, err)
	exerciseKV(t, kv)
}
