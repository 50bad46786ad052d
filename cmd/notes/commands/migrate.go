package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/notes/backend/pkg/config"
	"github.com/wonny/notes/backend/pkg/database"
	"github.com/wonny/notes/backend/pkg/logger"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "DB 스키마 적용",
	Long: `Applies the embedded SQL migrations. Migrations are re-runnable.

Example:
  go run ./cmd/notes migrate`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	names, err := database.Migrations()
	if err != nil {
		return err
	}
	if err := db.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	log.WithField("migrations", len(names)).Info("Migrations applied")
	return nil
}
