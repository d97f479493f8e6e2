package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"certo/internal/platform/config"
	"certo/internal/platform/postgres"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url is not configured")
			}

			db, err := postgres.Open(cmd.Context(), cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer db.Close()
			return postgres.Migrate(cmd.Context(), db)
		},
	}
}
