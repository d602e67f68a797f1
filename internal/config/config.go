package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/TeeRawk/calendar-sync-app-sub002/internal/model"
)

// SyncConfig describes one feed-to-calendar pairing.
type SyncConfig struct {
	// ID is the identifier used to select this sync on the command line
	// and in logs.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`

	// FeedURL is the ICS subscription endpoint.
	FeedURL string `yaml:"feed_url" json:"feed_url"`
	// CalendarID is the destination Google calendar
	// (an address like "abc123@group.calendar.google.com", or "primary").
	CalendarID string `yaml:"calendar_id" json:"calendar_id"`

	// Enabled syncs are picked up by the daemon and runnable one-shot.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Mode is "full" or "busy_free".
	Mode model.Mode `yaml:"mode" json:"mode"`
	// Privacy is "full_details" or "busy_only".
	Privacy model.Privacy `yaml:"privacy" json:"privacy"`

	// Timezone is the IANA destination zone (e.g. "Europe/Madrid").
	// Empty falls back to the top-level zone.
	Timezone string `yaml:"timezone,omitempty" json:"timezone,omitempty"`

	// LookbackDays / HorizonDays bound the sync window around "now".
	LookbackDays int `yaml:"lookback_days" json:"lookback_days"`
	HorizonDays  int `yaml:"horizon_days" json:"horizon_days"`

	// Cron overrides the top-level schedule for this sync. Empty inherits.
	Cron string `yaml:"cron,omitempty" json:"cron,omitempty"`
}

// GoogleConfig locates the OAuth client credentials and the stored token.
// Relative paths are resolved against the config file's directory.
type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
	TokenFile       string `yaml:"token_file" json:"token_file"`
}

// Config is the top-level application configuration.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Timezone is the default IANA destination zone for all syncs.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Cron is the default schedule the daemon runs enabled syncs on
	// (e.g. "*/30 * * * *").
	Cron string `yaml:"cron" json:"cron"`

	Google GoogleConfig `yaml:"google" json:"google"`

	Syncs []SyncConfig `yaml:"syncs" json:"syncs"`
}

// Store is the read surface the sync engine needs. The YAML-backed Config
// implements it; a different backing store can replace it without touching
// the engine.
type Store interface {
	GetSync(id string) (*SyncConfig, error)
	ListSyncs() []SyncConfig
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Timezone: "UTC",
		Cron:     "*/30 * * * *",
		Google: GoogleConfig{
			CredentialsFile: "credentials.json",
			TokenFile:       "token.json",
		},
		Syncs: []SyncConfig{},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.Cron == "" {
		c.Cron = "*/30 * * * *"
	}
	if c.Google.CredentialsFile == "" {
		c.Google.CredentialsFile = "credentials.json"
	}
	if c.Google.TokenFile == "" {
		c.Google.TokenFile = "token.json"
	}
	if c.Syncs == nil {
		c.Syncs = []SyncConfig{}
	}
	for i := range c.Syncs {
		s := &c.Syncs[i]
		if s.Mode == "" {
			s.Mode = model.ModeFull
		}
		if s.Privacy == "" {
			s.Privacy = model.PrivacyFullDetails
		}
		if s.Timezone == "" {
			s.Timezone = c.Timezone
		}
		if s.LookbackDays < 0 {
			s.LookbackDays = 0
		}
		if s.HorizonDays <= 0 {
			s.HorizonDays = 60
		}
	}
}

// Validate reports the first structural problem with the sync entry.
func (s *SyncConfig) Validate() error {
	if s.ID == "" {
		return errors.New("sync id is empty")
	}
	if s.FeedURL == "" {
		return fmt.Errorf("sync %q: feed_url is empty", s.ID)
	}
	if s.CalendarID == "" {
		return fmt.Errorf("sync %q: calendar_id is empty", s.ID)
	}
	if !s.Mode.Valid() {
		return fmt.Errorf("sync %q: unknown mode %q", s.ID, s.Mode)
	}
	if !s.Privacy.Valid() {
		return fmt.Errorf("sync %q: unknown privacy %q", s.ID, s.Privacy)
	}
	return nil
}

// GetSync returns the sync entry with the given id.
func (c *Config) GetSync(id string) (*SyncConfig, error) {
	for i := range c.Syncs {
		if c.Syncs[i].ID == id {
			s := c.Syncs[i]
			return &s, nil
		}
	}
	return nil, fmt.Errorf("unknown sync id %q", id)
}

// ListSyncs returns a copy of all configured sync entries.
func (c *Config) ListSyncs() []SyncConfig {
	out := make([]SyncConfig, len(c.Syncs))
	copy(out, c.Syncs)
	return out
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".calsync-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// Set permissions to 0600 on temp file before rename.
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	// Rename over the target path.
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save is a convenience method on Config that delegates to the package-level
// Save function:
//
//	cfg, _ := config.Load(path)
//	// ... mutate cfg ...
//	if err := cfg.Save(path); err != nil { ... }
func (c *Config) Save(path string) error {
	return Save(path, c)
}
