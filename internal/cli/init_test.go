package cli

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mython/internal/config"
	"mython/internal/log"
)

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("MYTHON_TEST_FROM_DOTENV=yes\nPORT=1234\n"), 0o600))

	t.Setenv("PORT", "9999")
	t.Setenv("MYTHON_TEST_FROM_DOTENV", "")
	require.NoError(t, os.Unsetenv("MYTHON_TEST_FROM_DOTENV"))

	LoadEnvFile(path)
	assert.Equal(t, "yes", os.Getenv("MYTHON_TEST_FROM_DOTENV"))
	assert.Equal(t, "9999", os.Getenv("PORT"), "existing variables are not overridden")

	LoadEnvFile(filepath.Join(dir, "missing.env"))
}

func TestLoadAndValidateConfig(t *testing.T) {
	t.Setenv("DATA_BACKEND", "memory")
	t.Setenv("PORT", "8081")
	cfg, err := LoadAndValidateConfig()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.DataBackend)

	t.Setenv("PORT", "nope")
	_, err = LoadAndValidateConfig()
	assert.ErrorContains(t, err, "invalid port")
}

func TestSetupLogger(t *testing.T) {
	logger := SetupLogger(&config.Config{LogLevel: "debug", LogFormat: "json"})
	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(context.Background(), -4), "debug level enabled")

	logger = SetupLogger(nil)
	assert.False(t, logger.Enabled(context.Background(), -4))
	log.SetDefault(log.Discard())
}

func TestOpenLedger(t *testing.T) {
	cfg := &config.Config{DataBackend: "file", DataDir: t.TempDir(), StorageKey: "ledger_test"}

	store, be, err := OpenLedger(context.Background(), cfg, log.Discard())
	require.NoError(t, err)
	defer be.Close()

	assert.Equal(t, "ledger_test", store.Key())
	assert.Equal(t, 0, store.Len())

	_, _, err = OpenLedger(context.Background(), &config.Config{DataBackend: "sheets"}, log.Discard())
	assert.Error(t, err)
}

func TestOpenAMQPDisabled(t *testing.T) {
	client, err := OpenAMQP(&config.Config{}, log.Discard())
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestShutdownOn(t *testing.T) {
	sig := make(chan os.Signal, 1)
	released := false
	cleaned := make(chan struct{})

	ctx, done := shutdownOn(sig, func() { released = true }, log.Discard(), time.Second, func(ctx context.Context) {
		assert.NoError(t, ctx.Err())
		close(cleaned)
	})
	assert.NoError(t, ctx.Err())

	sig <- syscall.SIGTERM
	WaitForShutdown(ctx, done)

	assert.Error(t, ctx.Err())
	assert.True(t, released)
	select {
	case <-cleaned:
	default:
		t.Fatal("cleanup did not run")
	}
}
