package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/leadgenlab/funnelbot/internal/db"
	"github.com/leadgenlab/funnelbot/internal/models"
)

var exportJSON bool

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.AddCommand(exportStatusCmd)
	exportCmd.AddCommand(exportLeadsCmd)
	exportCmd.PersistentFlags().BoolVar(&exportJSON, "json", false, "emit JSON instead of a table")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export funnel data",
	Long:  "Export funnel state for reporting or handover to the sales team.",
}

var exportStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Export funnel totals",
	Long:  "Export aggregate funnel totals: registrations, completions, captured phones and variant split.",
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

		stats, err := db.NewParticipantRepository(database).Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to load stats: %w", err)
		}

		if exportJSON {
			return writeJSON(stats)
		}

		writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintf(writer, "Participants:\t%d\n", stats.Total)
		fmt.Fprintf(writer, "Completed:\t%d\n", stats.Completed)
		fmt.Fprintf(writer, "Phones captured:\t%d\n", stats.VIP)
		fmt.Fprintf(writer, "Hot leads:\t%d\n", stats.HotLeads)
		fmt.Fprintf(writer, "Mentor A:\t%d\n", stats.MentorA)
		fmt.Fprintf(writer, "Mentor B:\t%d\n", stats.MentorB)
		return writer.Flush()
	},
}

var exportLeadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Export hot leads",
	Long:  "Export participants that shared a phone number, newest first.",
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

		leads, err := db.NewParticipantRepository(database).HotLeads(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list leads: %w", err)
		}

		if exportJSON {
			return writeJSON(leads)
		}

		writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(writer, "ID\tNAME\tPHONE\tCONTACT TIME\tVARIANT\tCAPTURED")
		for _, p := range leads {
			fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\t%s\n",
				p.ID, p.Name, p.Phone, p.ContactTime, p.Variant, formatPhoneAt(p))
		}
		return writer.Flush()
	},
}

func formatPhoneAt(p *models.Participant) string {
	if p.PhoneAt == nil {
		return "-"
	}
	return p.PhoneAt.UTC().Format(time.RFC3339)
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
