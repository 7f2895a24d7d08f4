package main

import (
	"github.com/ewiniecke/nb27-backup/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	noBackup    bool
	restorePath string
)

var fullCmd = &cobra.Command{
	Use:   "full",
	Short: "Dump, then optionally reset and restore from a local file",
	Long: `Run the maintenance sequence:
1. Dump the database (skipped with --no-backup)
2. Reset the target database and restore --restore-path into it (when given)`,
	Args: cobra.NoArgs,
	RunE: runFull,
}

func init() {
	fullCmd.Flags().BoolVar(&noBackup, "no-backup", false, "skip the dump step")
	fullCmd.Flags().StringVar(&restorePath, "restore-path", "", "local dump to reset and restore from")
	fullCmd.Flags().StringVar(&targetDB, "target-db", "", "database to restore into (default TARGET_DB or PGDATABASE)")
}

func runFull(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("target-db") {
		cfg.Restore.TargetDB = targetDB
	}

	ctx, cancel := signalContext()
	defer cancel()

	svcs, err := runner.DefaultServices(ctx, cfg, log.Logger, progressWriter())
	if err != nil {
		log.Error().Err(err).Msg("failed to set up services")
		return err
	}

	if noBackup {
		log.Info().Msg("skipping dump (--no-backup)")
	} else {
		result, err := runner.NewDumper(log.Logger, svcs).Run(ctx, cfg)
		if err != nil {
			log.Error().Err(err).Int("exit_code", runner.ExitCode(err)).Msg("dump failed")
			return err
		}
		log.Info().Str("dump", result.Artifacts.DumpPath).Msg("dump completed successfully")
	}

	if restorePath == "" {
		return nil
	}

	cfg.Restore.FromFile = restorePath
	cfg.Restore.ResetDB = true

	result, err := runner.NewRestorer(log.Logger, svcs).Run(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Int("exit_code", runner.ExitCode(err)).Msg("restore failed")
		return err
	}

	log.Info().
		Str("source", result.Source).
		Str("database", result.Database).
		Msg("restore completed successfully")
	return nil
}
