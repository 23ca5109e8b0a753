package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/praxis/internal/audit"
	"github.com/gosuda/praxis/internal/config"
	"github.com/gosuda/praxis/internal/store/postgres"
)

// newCleanupCommand runs one retention purge. It is the entry point for
// external schedulers when the in-process job is disabled.
func newCleanupCommand() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete audit entries older than the retention window and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if days == 0 {
				days = cfg.Audit.RetentionDays
			}
			conns, err := maxConns(cfg)
			if err != nil {
				return err
			}

			store, err := postgres.New(ctx, cfg.Database.DSN(), conns)
			if err != nil {
				return err
			}
			defer store.Close()

			deleted, err := audit.NewQueryService(store.Audit(), cfg.Audit.CleanupBatch, nil).CleanOld(ctx, days)
			if err != nil {
				return err
			}

			log.Info().Int64("deleted", deleted).Int("days_to_keep", days).Msg("audit cleanup finished")
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "days of audit history to keep (default PRAXIS_AUDIT_RETENTION_DAYS)")

	return cmd
}
