package app

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/regbridge/regbridge/database"
)

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Migrate the database down",
	Long: `Migrate the database schema down by reverting migrations.
WARNING: This operation can result in data loss. Use with caution.

Examples:
  # Migrate down by 1 step
  regbridge-api migrate down --config config.yaml --num-steps 1 --yes

  # Migrate down all the way (WARNING: destroys all data)
  regbridge-api migrate down --config config.yaml --yes`,
	RunE: runMigrateDown,
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	cfg, connString, err := migrationConnString(cmd)
	if err != nil {
		return err
	}

	numSteps, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return fmt.Errorf("failed to get num-steps flag: %w", err)
	}

	scope := "ALL migrations (this destroys all data)"
	if numSteps > 0 {
		scope = fmt.Sprintf("%d migration step(s)", numSteps)
	}
	prompt := fmt.Sprintf("About to revert %s on database: %s@%s:%d/%s",
		scope, cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	ok, err := confirm(cmd, prompt)
	if err != nil {
		return err
	}
	if !ok {
		slog.Info("Migration cancelled by user")
		return nil
	}

	slog.Info("Reverting database migrations...")
	if err := database.MigrateDown(connString, numSteps); err != nil {
		return fmt.Errorf("failed to revert migrations: %w", err)
	}

	version, dirty, err := database.GetVersion(connString)
	switch {
	case err != nil:
		slog.Warn("Unable to get migration version", "error", err)
	case dirty:
		slog.Warn("Database is in a dirty state", "version", version)
	default:
		slog.Info("Migrations reverted successfully", "version", version)
	}

	return nil
}
