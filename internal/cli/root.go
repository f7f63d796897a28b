// Package cli implements the funnelbot command line interface.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/leadgenlab/funnelbot/internal/config"
	"github.com/leadgenlab/funnelbot/internal/db"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "funnelbot",
	Short:        "Conversational funnel bot",
	Long:         "funnelbot runs a messaging funnel: an onboarding questionnaire, durable delayed follow-ups and lead capture, backed by sqlite.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}

// openDatabase opens the configured sqlite store and applies pending
// migrations.
func openDatabase(cmd *cobra.Command, cfg *config.Config, logger zerolog.Logger) (*db.DB, error) {
	database, err := db.Open(cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}
	applied, err := database.MigrateUp(cmd.Context())
	if err != nil {
		database.Close()
		return nil, err
	}
	if applied > 0 {
		logger.Info().Int("applied", applied).Msg("migrations applied")
	}
	return database, nil
}
