package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "jjm",
	Short: "JJM water-utility telemetry service",
	Long: `jjm simulates the field sensors of a water utility, raises alerts on
critical readings, tracks citizen grievances and serves the dashboard API
and real-time feed.

Run without a subcommand to start the server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(seedCmd)
}

func main() {
	// Initialize timezone to Asia/Kolkata
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		panic("Failed to load Asia/Kolkata timezone: " + err.Error())
	}
	time.Local = loc

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
