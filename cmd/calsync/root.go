package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/TeeRawk/calendar-sync-app-sub002/internal/config"
	"github.com/TeeRawk/calendar-sync-app-sub002/internal/gcal"
	"github.com/TeeRawk/calendar-sync-app-sub002/internal/ics"
	appLog "github.com/TeeRawk/calendar-sync-app-sub002/internal/log"
	"github.com/TeeRawk/calendar-sync-app-sub002/internal/sync"
)

var (
	cfgFile  string
	logLevel string
	cfg      *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "calsync",
	Short: "One-way sync from ICS feeds into Google Calendar",
	Long: `calsync mirrors events from ICS subscription feeds into Google
calendars. Recurring events are expanded into concrete occurrences inside a
bounded window, converted once into the destination timezone, and written
with an embedded marker so later runs can update or remove exactly the
events they own.`,
	PersistentPreRunE: setup,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute runs the CLI. Run-fatal errors exit 1; a required
// reauthorization exits 2 so wrappers can alert distinctly.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if sync.IsKind(err, sync.KindReauthRequired) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (default ~/.config/calsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
}

func setup(cmd *cobra.Command, _ []string) error {
	// version must not touch the filesystem; Load would create a default
	// config on first run.
	if cmd == versionCmd {
		return nil
	}

	// .env is optional; environment beats file values for the few
	// settings that tend to differ per deployment.
	_ = godotenv.Load()

	path := cfgFile
	if path == "" {
		path = defaultConfigPath()
	}

	var err error
	cfg, err = config.Load(path)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	cfgFile = path

	if v := os.Getenv("GOOGLE_CREDENTIALS_FILE"); v != "" {
		cfg.Google.CredentialsFile = v
	}
	if v := os.Getenv("GOOGLE_TOKEN_FILE"); v != "" {
		cfg.Google.TokenFile = v
	}

	level := cfg.LogLevel
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level = v
	}
	if logLevel != "" {
		level = logLevel
	}
	appLog.Init(level)

	return nil
}

func defaultConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "calsync", "config.yaml")
}

func cacheDir() string {
	cacheHome := os.Getenv("XDG_CACHE_HOME")
	if cacheHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join("var", "feed-cache")
		}
		cacheHome = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheHome, "calsync", "feeds")
}

// resolvePath anchors relative credential paths at the config file's
// directory.
func resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(cfgFile), p)
}

func buildEngine() *sync.Engine {
	fetcher := ics.NewFetcher(cacheDir())
	factory := gcal.Factory(resolvePath(cfg.Google.CredentialsFile), resolvePath(cfg.Google.TokenFile))
	return sync.NewEngine(cfg, fetcher, factory)
}
