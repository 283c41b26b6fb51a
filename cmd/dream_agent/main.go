// Package main provides the entry point for the Dream Bridge service and its
// operator commands.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dream_agent",
	Short: "Dream Bridge API server and operator tools",
	Long: `Dream Bridge turns a recorded dream into a transcription, a dominant emotion,
an illustration and a personal message.

Configuration is read from an optional YAML or JSON file (--config), DREAM_*
environment variables and command-line flags, in increasing order of precedence.`,
	SilenceUsage: true,
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML or JSON config file")
	rootCmd.PersistentFlags().String("database-url", "", "Database URL (postgres://... or sqlite://path)")
	rootCmd.PersistentFlags().Bool("simulation", false, "Replay the simulation fixture instead of calling providers")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
