package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	appLog "github.com/TeeRawk/calendar-sync-app-sub002/internal/log"
	"github.com/TeeRawk/calendar-sync-app-sub002/internal/schedule"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run enabled syncs on their cron schedules until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		engine := buildEngine()

		sched, err := schedule.New(engine, cfg.ListSyncs(), cfg.Cron)
		if err != nil {
			return err
		}

		appLog.Info("daemon starting", "version", version, "config", cfgFile)
		sched.Start(ctx)
		appLog.Info("daemon exiting")
		appLog.Sync()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
