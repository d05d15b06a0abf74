package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/agentsmith/internal/config"
	"github.com/alfredjeanlab/agentsmith/internal/store/postgres"
	"github.com/alfredjeanlab/agentsmith/internal/sweeper"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired events from the database once and exit",
	Long: `Run a single sweep against AGENTSMITH_DATABASE_URL, for use from cron
when the server's own sweeper is not enough.`,
	GroupID:           "system",
	Args:              cobra.NoArgs,
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return errors.New("AGENTSMITH_DATABASE_URL is required")
		}
		st, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer st.Close()

		var sweepErr error
		sw := sweeper.New(st, cfg.SweepInterval, slog.New(slog.NewTextHandler(os.Stderr, nil)))
		sw.OnSweep = func(_ int64, err error) { sweepErr = err }
		deleted := sw.SweepOnce(context.Background())
		if sweepErr != nil {
			return fmt.Errorf("sweeping: %w", sweepErr)
		}

		if jsonOutput {
			printJSON(cmd.OutOrStdout(), map[string]int64{"deleted": deleted})
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired events\n", deleted)
		}
		return nil
	},
}
