package main

import (
	"github.com/spf13/cobra"

	"github.com/mossy-p/peercall/internal/ui"
)

var flagSignalURL string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "peercall",
	Short: "Two-party WebRTC calls through a room-based signaling server",
	Long: `peercall joins a two-person room on a signaling server and negotiates a
WebRTC call with whoever else is in it. The operator commands inspect and
clear rooms on the same server.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagSignalURL, "server", "s", "", "signaling server websocket URL (default $SIGNAL_URL or ws://localhost:8080/ws)")
	rootCmd.AddCommand(joinCmd, roomsCmd)
}

// Execute runs the root command and reports a failure on stdout.
func Execute() int {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		return 1
	}
	return 0
}
