// Copyright Contributors to the ingestctl project

// ingestctl is the unified binary for the ingestion lifecycle manager.
//
// Available commands:
//   - serve:      Start the control-plane HTTP server (REST API, webhook
//     ingress, health/ready/metrics endpoints)
//   - cron-tick:  Evaluate enabled cron tasks once and exit; meant to be
//     invoked by an external scheduler, not a timer owned by this process
//   - version:    Print build information
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ingestctl",
	Short: "ingestctl - ingestion lifecycle manager control plane",
	Long: `ingestctl schedules, triggers, and tracks ingestion tasks that pull
data from a source, run it through a transformer, and hand it to a
destination, on a manual, cron, or webhook trigger.

Examples:
  # Start the control-plane server
  ingestctl serve --config=./ingestctl.yaml

  # Evaluate cron tasks once, driven by an external scheduler
  ingestctl cron-tick --config=./ingestctl.yaml`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
