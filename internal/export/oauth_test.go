package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const installedClient = `{"installed":{"client_id":"cid","client_secret":"secret","auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token","redirect_uris":["http://localhost"]}}`

func clearGoogleEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_FILE", "GOOGLE_APPLICATION_CREDENTIALS",
		"GOOGLE_OAUTH_CLIENT_JSON", "GOOGLE_OAUTH_CLIENT_FILE", "GOOGLE_OAUTH_TOKEN_FILE",
	} {
		t.Setenv(k, "")
	}
}

func TestOAuthConfigFromEnv(t *testing.T) {
	clearGoogleEnv(t)

	_, err := OAuthConfigFromEnv()
	assert.ErrorIs(t, err, errNoOAuthClient)

	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", installedClient)
	cfg, err := OAuthConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "cid", cfg.ClientID)
	assert.Contains(t, cfg.Scopes, "https://www.googleapis.com/auth/spreadsheets")

	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", "")
	path := filepath.Join(t.TempDir(), "client.json")
	require.NoError(t, os.WriteFile(path, []byte(installedClient), 0o600))
	t.Setenv("GOOGLE_OAUTH_CLIENT_FILE", path)
	cfg, err = OAuthConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.ClientSecret)
}

func TestTokenRoundTrip(t *testing.T) {
	clearGoogleEnv(t)
	assert.Equal(t, DefaultTokenFile, TokenFile())

	path := filepath.Join(t.TempDir(), "token.json")
	t.Setenv("GOOGLE_OAUTH_TOKEN_FILE", path)
	assert.Equal(t, path, TokenFile())

	want := &oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", Expiry: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, SaveToken(path, want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, want.AccessToken, got.AccessToken)
	assert.Equal(t, want.RefreshToken, got.RefreshToken)
	assert.True(t, want.Expiry.Equal(got.Expiry))
}

func TestNewSheetsFromEnvCredentials(t *testing.T) {
	clearGoogleEnv(t)

	_, err := NewSheetsFromEnv(context.Background(), "id", "", nil)
	assert.ErrorContains(t, err, "missing Google credentials")

	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", installedClient)
	t.Setenv("GOOGLE_OAUTH_TOKEN_FILE", filepath.Join(t.TempDir(), "absent.json"))
	_, err = NewSheetsFromEnv(context.Background(), "id", "", nil)
	assert.ErrorContains(t, err, "run mython sheets-auth")

	tokenPath := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, SaveToken(tokenPath, &oauth2.Token{AccessToken: "a", TokenType: "Bearer"}))
	t.Setenv("GOOGLE_OAUTH_TOKEN_FILE", tokenPath)
	sink, err := NewSheetsFromEnv(context.Background(), "id", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "sheets:Transactions", sink.Name())
}
