package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "smartmart",
		Short:         "SmartMart shop API, worker and maintenance tasks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(workerCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(settingsCmd(&configPath))
	rootCmd.AddCommand(gdprCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		logger.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
