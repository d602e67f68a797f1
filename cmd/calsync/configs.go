package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var configsCmd = &cobra.Command{
	Use:   "configs",
	Short: "List configured syncs",
	RunE: func(_ *cobra.Command, _ []string) error {
		syncs := cfg.ListSyncs()
		if len(syncs) == 0 {
			fmt.Printf("no syncs configured in %s\n", cfgFile)
			return nil
		}

		for _, s := range syncs {
			state := color.GreenString("enabled")
			if !s.Enabled {
				state = color.YellowString("disabled")
			}
			name := s.Name
			if name == "" {
				name = s.ID
			}
			fmt.Printf("%-20s %-10s mode=%-9s privacy=%-12s tz=%s\n", name, state, s.Mode, s.Privacy, s.Timezone)
			fmt.Printf("  %s -> %s\n", redactFeedURL(s.FeedURL), s.CalendarID)
		}
		return nil
	},
}

// redactFeedURL truncates long feed URLs, which tend to embed private
// tokens, before display.
func redactFeedURL(u string) string {
	const max = 40
	if len(u) <= max {
		return u
	}
	return u[:max] + "..."
}

func init() {
	rootCmd.AddCommand(configsCmd)
}
