package main

import (
	"errors"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"

	chatService "github.com/zhouzirui/scene-studio/backend/internal/service/chat"
)

var migrateDown bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the Postgres schema migrations",
	Long: `Apply the embedded Postgres schema migrations to DATABASE_URL.

Examples:
  scene-studio migrate
  scene-studio migrate --down`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		if cfg.Store.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}

		ctx := cmd.Context()
		db, err := chatService.OpenPostgres(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		dir := migrate.Up
		if migrateDown {
			dir = migrate.Down
		}
		n, err := chatService.Migrate(ctx, db, dir)
		if err != nil {
			return err
		}
		logger.Info().Int("applied", n).Bool("down", migrateDown).Msg("migrations finished")
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "roll back instead of applying")
}
