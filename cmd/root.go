// Package cmd implements the okapi command-line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "okapi",
	Short: "okapi — personal AI assistant gateway",
	Long:  "okapi is a personal AI assistant that bridges chat channels to an LLM-driven agent with tools, memory, and scheduling.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = Version
}
