package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"golang.org/x/oauth2"

	"mython/internal/cli"
	"mython/internal/export"
)

// sheetsAuthCmd runs the installed-app OAuth flow once and stores the user
// token the sheets export target falls back to.
type sheetsAuthCmd struct {
	RedirectPort int           `name:"redirect-port" env:"OAUTH_REDIRECT_PORT" default:"8085" help:"Local port for the OAuth redirect (http://localhost:<port>/callback)."`
	Token        string        `help:"Where to save the token. Defaults to GOOGLE_OAUTH_TOKEN_FILE or token.json."`
	Timeout      time.Duration `default:"5m" help:"How long to wait for the browser."`
}

func (c *sheetsAuthCmd) Run(g *globals) error {
	cli.LoadEnvFile(g.EnvFile...)

	cfg, err := export.OAuthConfigFromEnv()
	if err != nil {
		return err
	}
	cfg.RedirectURL = fmt.Sprintf("http://localhost:%d/callback", c.RedirectPort)

	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", c.RedirectPort))
	if err != nil {
		return fmt.Errorf("listen for oauth redirect: %w", err)
	}

	state := fmt.Sprintf("mython-%d", time.Now().UnixNano())
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("error") != "":
			http.Error(w, "OAuth error: "+q.Get("error"), http.StatusBadRequest)
			errCh <- fmt.Errorf("authorization denied: %s", q.Get("error"))
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
		default:
			fmt.Fprintln(w, "You may close this window and return to the terminal.")
			codeCh <- q.Get("code")
		}
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	fmt.Printf("Open this URL to authorize:\n%s\n", cfg.AuthCodeURL(state, oauth2.AccessTypeOffline))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors.New("authorization timed out")
		}
		return errors.New("interrupted")
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("token exchange: %w", err)
	}
	out := c.Token
	if out == "" {
		out = export.TokenFile()
	}
	if err := export.SaveToken(out, tok); err != nil {
		return err
	}
	fmt.Printf("Saved token to %s\n", out)
	return nil
}
