// Package gcal implements the destination calendar client on the Google
// Calendar API. All errors leave this package classified by sync kind.
package gcal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"

	"github.com/TeeRawk/calendar-sync-app-sub002/internal/sync"
)

// LoadOAuthConfig reads a downloaded OAuth client file (the standard
// "installed"/"web" JSON from the Google console) and scopes it to
// calendar access.
func LoadOAuthConfig(path string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials %s: %w", path, err)
	}
	cfg, err := google.ConfigFromJSON(data, calendar.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials %s: %w", path, err)
	}
	return cfg, nil
}

// LoadToken reads a previously stored OAuth token.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token %s: %w", path, err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token %s: %w", path, err)
	}
	return &tok, nil
}

// NewHTTPClient builds an authorized HTTP client from the stored
// credentials and token. Consent and token acquisition live outside this
// program: a missing or unreadable credentials file is a configuration
// error, a missing token means the user must (re)authorize, and a token
// the endpoint later refuses surfaces through classify as reauth.
func NewHTTPClient(ctx context.Context, credentialsPath, tokenPath string) (*http.Client, error) {
	cfg, err := LoadOAuthConfig(credentialsPath)
	if err != nil {
		return nil, sync.ConfigError("load oauth credentials", err)
	}
	tok, err := LoadToken(tokenPath)
	if err != nil {
		return nil, sync.ReauthError("load oauth token", err)
	}
	return oauth2.NewClient(ctx, cfg.TokenSource(ctx, tok)), nil
}
