package main

import (
	"github.com/ewiniecke/nb27-backup/internal/models"
	"github.com/ewiniecke/nb27-backup/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	targetDB string
	resetDB  bool
	fromFile string
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore the newest archived snapshot",
	Long: `Restore the newest archived snapshot:
1. Preflight: bucket, pg_restore and password must be available (exit 2)
2. Select the newest *.dump under the prefix (exit 3 if none)
3. Download the dump and its .sha256 sidecar
4. Verify the checksum (exit 4 on mismatch, database untouched)
5. Drop and recreate the target database (only with --reset or RESET_DB=1)
6. pg_restore --clean --if-exists into the target database`,
	Args: cobra.NoArgs,
	RunE: runRestore,
}

func init() {
	restoreCmd.Flags().StringVar(&targetDB, "target-db", "", "database to restore into (default TARGET_DB or PGDATABASE)")
	restoreCmd.Flags().BoolVar(&resetDB, "reset", false, "drop and recreate the target database first (default RESET_DB)")
	restoreCmd.Flags().StringVar(&fromFile, "from-file", "", "restore a local dump (with its .sha256 next to it) instead of the archive")
}

// applyRestoreFlags lets explicitly set flags override the environment.
func applyRestoreFlags(cmd *cobra.Command, cfg *models.Config) {
	if cmd.Flags().Changed("target-db") {
		cfg.Restore.TargetDB = targetDB
	}
	if cmd.Flags().Changed("reset") {
		cfg.Restore.ResetDB = resetDB
	}
	if cmd.Flags().Changed("from-file") {
		cfg.Restore.FromFile = fromFile
	}
}

func runRestore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRestoreFlags(cmd, cfg)

	ctx, cancel := signalContext()
	defer cancel()

	svcs, err := runner.DefaultServices(ctx, cfg, log.Logger, progressWriter())
	if err != nil {
		log.Error().Err(err).Msg("failed to set up services")
		return err
	}

	result, err := runner.NewRestorer(log.Logger, svcs).Run(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Int("exit_code", runner.ExitCode(err)).Msg("restore failed")
		return err
	}

	log.Info().
		Str("source", result.Source).
		Str("database", result.Database).
		Int("tables", len(result.Tables)).
		Msg("restore completed successfully")
	return nil
}
