package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leadgenlab/funnelbot/internal/db"
	"github.com/leadgenlab/funnelbot/internal/funnel"
	"github.com/leadgenlab/funnelbot/internal/scheduler"
	"github.com/leadgenlab/funnelbot/internal/telegram"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot",
	Long:  "Run the bot: poll for updates, drive the funnel and fire delayed follow-ups until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		database, err := openDatabase(cmd, cfg, logger)
		if err != nil {
			return err
		}
		defer database.Close()

		client := telegram.NewClient(cfg.APIBaseURL, cfg.BotToken, logger)

		sched := scheduler.New(scheduler.Config{
			ReminderInterval: cfg.ReminderPollInterval,
			FinalInterval:    cfg.FinalPollInterval,
		}, db.NewTimerRepository(database), db.NewParticipantRepository(database), db.NewEventRepository(database), logger)

		engine := funnel.NewEngine(cfg, database, client, sched, logger)
		sched.SetActions(engine)

		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := sched.Stop(); err != nil {
				logger.Warn().Err(err).Msg("scheduler stop failed")
			}
		}()

		poller := telegram.NewPoller(client, engine, cfg.PollTimeout, cfg.RestartBackoff, logger)
		logger.Info().Msg("funnelbot started")

		if err := poller.Run(ctx); err != nil {
			return err
		}
		logger.Info().Msg("funnelbot shutting down")
		return nil
	},
}
