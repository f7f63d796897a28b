package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/leadgenlab/funnelbot/internal/db"
)

var cleanupDays int

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 30, "retire timer rows older than this many days")
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove spent timer rows",
	Long:  "Remove reminder timers whose halves both fired and final timers already marked sent, once they are older than the retention window. Pending timers are never touched.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		database, err := openDatabase(cmd, cfg, logger)
		if err != nil {
			return err
		}
		defer database.Close()

		cutoff := time.Now().UTC().AddDate(0, 0, -cleanupDays)
		removed, err := db.NewTimerRepository(database).CleanupOlderThan(cmd.Context(), cutoff)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d spent timer rows\n", removed)
		return nil
	},
}
