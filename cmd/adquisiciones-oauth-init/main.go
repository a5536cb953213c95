// Command adquisiciones-oauth-init authorizes a Google user for the sheets
// export and stores the result as "authorized_user" credentials, a format
// the exporter accepts in place of a service account key.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gsheet "google.golang.org/api/sheets/v4"

	"adquisiciones/internal/cli"
	applog "adquisiciones/internal/log"
)

// authorizedUser mirrors the credentials file written by gcloud for user accounts.
type authorizedUser struct {
	Type         string `json:"type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
}

func authorizedUserJSON(cfg *oauth2.Config, tok *oauth2.Token) ([]byte, error) {
	if tok == nil || tok.RefreshToken == "" {
		return nil, errors.New("token has no refresh token; revoke the app's access and authorize again")
	}
	return json.MarshalIndent(authorizedUser{
		Type:         "authorized_user",
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RefreshToken: tok.RefreshToken,
	}, "", "  ")
}

func loadClientSecret() ([]byte, error) {
	if v := os.Getenv("GOOGLE_OAUTH_CLIENT_JSON"); v != "" {
		return []byte(v), nil
	}
	if path := os.Getenv("GOOGLE_OAUTH_CLIENT_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read client file: %w", err)
		}
		return b, nil
	}
	return nil, errors.New("set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	cli.LoadEnvFile()
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(getenv("LOG_LEVEL", "info")),
		Format:    "text",
		Component: applog.ComponentCLI,
		Output:    os.Stderr,
	})
	if err := run(logger); err != nil {
		logger.Error("Authorization failed", applog.FieldError, err)
		os.Exit(1)
	}
}

func run(logger *applog.Logger) error {
	secret, err := loadClientSecret()
	if err != nil {
		return err
	}
	cfg, err := google.ConfigFromJSON(secret, gsheet.SpreadsheetsScope)
	if err != nil {
		return fmt.Errorf("oauth config: %w", err)
	}

	// The OAuth client must list this redirect URI.
	port := getenv("OAUTH_REDIRECT_PORT", "8085")
	cfg.RedirectURL = "http://localhost:" + port + "/callback"

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
		if e := r.URL.Query().Get("error"); e != "" {
			http.Error(w, "OAuth error: "+e, http.StatusBadRequest)
			errCh <- fmt.Errorf("oauth error: %s", e)
			return
		}
		fmt.Fprintln(w, "Autorización completada. Puede cerrar esta ventana.")
		codeCh <- r.URL.Query().Get("code")
	})
	srv := &http.Server{Addr: "localhost:" + port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ApprovalForce makes Google return a refresh token on every consent.
	fmt.Printf("Open this URL to authorize:\n%s\n", cfg.AuthCodeURL("adquisiciones", oauth2.AccessTypeOffline, oauth2.ApprovalForce))

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Minute):
		return errors.New("authorization timed out")
	case <-ctx.Done():
		return errors.New("interrupted")
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("token exchange: %w", err)
	}
	creds, err := authorizedUserJSON(cfg, tok)
	if err != nil {
		return err
	}

	out := getenv("GOOGLE_SERVICE_ACCOUNT_FILE", "credentials.json")
	if err := os.WriteFile(out, creds, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	logger.Info("Saved credentials", "path", out)
	return nil
}
