package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ewiniecke/nb27-backup/internal/models"
	"github.com/ewiniecke/nb27-backup/internal/services/archive"
	"github.com/ewiniecke/nb27-backup/internal/services/postgres"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived dumps, newest first",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Archive.Enabled() {
		err := fmt.Errorf("%w: S3_BUCKET_NAME (or BUCKET) is not set", models.ErrConfig)
		log.Error().Err(err).Msg("cannot list archive")
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	store, err := archive.New(ctx, cfg.Archive, log.Logger)
	if err != nil {
		log.Error().Err(err).Msg("failed to set up archive client")
		return fmt.Errorf("%w: %v", models.ErrConfig, err)
	}

	objects, err := store.List(ctx, cfg.Archive.Prefix, postgres.DumpSuffix)
	if err != nil {
		log.Error().Err(err).Msg("failed to list archive")
		return err
	}

	if len(objects) == 0 {
		err := fmt.Errorf("%w in s3://%s/%s", models.ErrNoDumpFound, cfg.Archive.Bucket, cfg.Archive.Prefix)
		log.Warn().Err(err).Send()
		return err
	}

	return printObjects(os.Stdout, objects)
}

func printObjects(w io.Writer, objects []models.ArchiveObject) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "LAST MODIFIED\tSIZE\tKEY")
	for _, obj := range objects {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\n", obj.LastModified.UTC().Format(time.RFC3339), obj.Size, obj.Key)
	}
	return tw.Flush()
}
