package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/praxis/internal/config"
	"github.com/gosuda/praxis/internal/store/postgres"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded PostgreSQL schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load()
			if err != nil {
				return err
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

			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			log.Info().Str("database", cfg.Database.DBName).Msg("schema applied")
			return nil
		},
	}
}
