// Package cmd contains the loom command line interface.
package cmd

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loomlabs/loom/internal/config"
	"github.com/loomlabs/loom/internal/log"
)

var userID string

var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "loom - a conversational assistant with tools and long-term memory",
	Long: `loom is a conversational assistant core. It runs a resumable
conversation workflow backed by a checkpoint store, a bounded tool loop
over multiple model providers, and a per-user long-term memory.

Running loom without a subcommand starts an interactive chat.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&userID, "user", "local", "user id for memory scoping")
}

// newLogger builds the process logger from config.
func newLogger(cfg *config.Config) log.Logger {
	return log.New(log.Config{Level: parseLevel(cfg.LogLevel), JSON: cfg.LogJSON})
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
