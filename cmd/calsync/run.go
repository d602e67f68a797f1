package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TeeRawk/calendar-sync-app-sub002/internal/model"
	"github.com/TeeRawk/calendar-sync-app-sub002/internal/sync"
)

var runTimezone string

var runCmd = &cobra.Command{
	Use:   "run <sync-id>",
	Short: "Run one sync now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		engine := buildEngine()

		var opts []sync.RunOption
		if runTimezone != "" {
			opts = append(opts, sync.WithTimezoneHint(runTimezone))
		}

		res, err := engine.RunSync(ctx, args[0], opts...)
		printResult(res, err)
		return err
	},
}

func init() {
	runCmd.Flags().StringVar(&runTimezone, "timezone", "", "destination IANA timezone for this run (overrides config)")
	rootCmd.AddCommand(runCmd)
}

func printResult(res *model.SyncResult, runErr error) {
	switch {
	case runErr != nil && sync.IsKind(runErr, sync.KindReauthRequired):
		color.Red("sync %s aborted: Google authorization expired, reauthorize and retry", res.ConfigID)
	case runErr != nil:
		color.Red("sync %s failed: %v", res.ConfigID, runErr)
	case !res.Ok():
		color.Yellow("sync %s completed with %d event errors", res.ConfigID, len(res.Errors))
	default:
		color.Green("sync %s completed", res.ConfigID)
	}

	fmt.Printf("  created:      %d\n", res.Created)
	fmt.Printf("  updated:      %d\n", res.Updated)
	fmt.Printf("  deleted:      %d\n", res.Deleted)
	fmt.Printf("  skipped:      %d\n", res.Skipped)
	fmt.Printf("  parse errors: %d\n", res.ParseErrors)
	fmt.Printf("  duration:     %s\n", res.Duration.Round(time.Millisecond))

	for _, ee := range res.Errors {
		color.Red("  %s %s (%s): %s", ee.Op, ee.Key, ee.Kind, ee.Message)
	}
}
