package main

import (
	"github.com/spf13/cobra"

	"github.com/edgard/nexa/internal/database"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}

			db, err := database.NewDB(cfg.Database.DSN, cfg.Database.MaxOpenConns)
			if err != nil {
				return err
			}
			database.CloseDB(db)

			log.Info("Migrations applied")
			return nil
		},
	}
}
