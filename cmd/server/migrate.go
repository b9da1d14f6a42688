package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"entrypass/internal/platform/config"
	"entrypass/internal/platform/logger"
	"entrypass/internal/platform/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("ENTRYPASS_DATABASE_URL is required for migrate")
			}
			log := logger.New(cfg.LogLevel)

			db, err := postgres.Open(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.Migrate(cmd.Context(), db, log); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info("migrations complete")
			return nil
		},
	}
}
