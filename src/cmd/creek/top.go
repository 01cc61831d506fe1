package main

import (
	"time"

	"github.com/spf13/cobra"

	"creek/src/tui"
)

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Live view of shards, cursors, lag and leases",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		return tui.Start(client(), appConfig.URL, interval)
	},
}

func init() {
	topCmd.Flags().Duration("interval", time.Second, "Refresh interval")
}
