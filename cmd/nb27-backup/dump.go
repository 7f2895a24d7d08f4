package main

import (
	"github.com/ewiniecke/nb27-backup/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Take a verified snapshot of the database",
	Long: `Take a snapshot of the database:
1. Prepare the backup directory and its .gitignore rules
2. pg_dump in custom format into a temporary file
3. Check the archive's table of contents
4. Rename the temporary file to <db>_<YYYY-MM-DD_HHMMSS>.dump
5. Write the .sha256 checksum sidecar
6. Upload both files with server-side encryption (if a bucket is configured)
7. Send Telegram notification (if configured)`,
	Args: cobra.NoArgs,
	RunE: runDump,
}

func runDump(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	svcs, err := runner.DefaultServices(ctx, cfg, log.Logger, progressWriter())
	if err != nil {
		log.Error().Err(err).Msg("failed to set up services")
		return err
	}

	result, err := runner.NewDumper(log.Logger, svcs).Run(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Int("exit_code", runner.ExitCode(err)).Msg("dump failed")
		return err
	}

	log.Info().
		Str("dump", result.Artifacts.DumpPath).
		Str("log", result.Artifacts.LogPath).
		Msg("dump completed successfully")
	return nil
}
