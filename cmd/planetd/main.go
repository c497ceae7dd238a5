package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/planetpulse/internal/config"
	"github.com/alfredjeanlab/planetpulse/internal/ui"
)

var (
	configFile string
	jsonOutput bool

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "planetd <command>",
	Short:         "Planet event pipeline: analytics consumer, planet fetcher and stats API",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			if err := os.Setenv("PLANETS_CONFIG_FILE", configFile); err != nil {
				return err
			}
		}
		c, err := config.Load()
		if err != nil {
			return err
		}
		l, err := newLogger(os.Stderr, c.LogFormat, c.LogLevel)
		if err != nil {
			return err
		}
		cfg, logger = c, l
		slog.SetDefault(l)

		if !ui.ShouldUseColor(os.Stdout) {
			ui.ForceNoColor()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "TOML config file (overrides PLANETS_CONFIG_FILE)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "pipeline", Title: "Pipeline:"},
		&cobra.Group{ID: "catalog", Title: "Catalog:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)
	cobra.EnableCommandSorting = false

	// Pipeline
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(consumeCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(statsCmd)

	// Catalog
	rootCmd.AddCommand(planetsCmd)

	// System
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(archiveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmtErr(err)
		os.Exit(1)
	}
}
