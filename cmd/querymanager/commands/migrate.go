package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openmmo/querymanager/internal/logger"
	"github.com/openmmo/querymanager/pkg/config"
	"github.com/openmmo/querymanager/pkg/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Bring the configured database schema up to date.

For SQLite this creates the schema on a fresh file and plays any pending
patch files from the configured patch directory. For PostgreSQL it applies
the embedded migrations. The server performs the same work on startup;
this command exists to migrate ahead of a deploy.

Examples:
  # Run migrations with default config
  querymanager migrate

  # Run migrations with custom config
  querymanager migrate --config /etc/querymanager/config.yaml`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	logger.Info("Running database migrations", logger.Database(string(cfg.Database.Type)))

	status, err := database.Migrate(context.Background(), &cfg.Database)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Printf("Schema is up to date (database type: %s, version %d", cfg.Database.Type, status.Version)
	if status.Patches > 0 {
		fmt.Printf(", %d patch(es) applied", status.Patches)
	}
	fmt.Println(")")
	return nil
}
