// Package cmd implements the datalens CLI.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/datalens/internal/config"
)

const version = "1.0.0"

var configFlag string

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "datalens",
		Short: "Natural-language analytics gateway",
		Long:  "datalens answers natural-language questions about an analytics database over a WebSocket API.",
	}
	cmd.PersistentFlags().StringVar(&configFlag, "config", "", "path to config file")
	cmd.AddCommand(serveCmd())
	cmd.AddCommand(sessionsCmd())
	cmd.AddCommand(doctorCmd())
	cmd.AddCommand(versionCmd())
	return cmd
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("datalens " + version)
		},
	}
}

func resolveConfigPath() string {
	if configFlag != "" {
		return configFlag
	}
	return config.DefaultPath()
}

func loadConfig() *config.Config {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// setupLogging installs the global slog handler at the configured level.
func setupLogging(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}
