package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/ewiniecke/nb27-backup/internal/config"
	"github.com/ewiniecke/nb27-backup/internal/models"
	"github.com/ewiniecke/nb27-backup/internal/services/checksum"
	"github.com/ewiniecke/nb27-backup/internal/services/metrics"
	"github.com/ewiniecke/nb27-backup/internal/services/postgres"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Dumper produces one verified, optionally archived snapshot of a database.
type Dumper struct {
	svcs   Services
	logger zerolog.Logger
}

// NewDumper creates a dump runner.
func NewDumper(logger zerolog.Logger, svcs Services) *Dumper {
	return &Dumper{svcs: svcs, logger: logger}
}

// Run executes the dump procedure. Nothing exists under the final artifact
// name unless pg_dump succeeded and the archive passed the TOC check.
//
//nolint:gocognit,gocyclo // dump procedure has multiple steps by design
func (d *Dumper) Run(ctx context.Context, cfg *models.Config) (_ *models.DumpResult, runErr error) {
	clock := d.svcs.clock()
	start := clock.Now()
	logger := d.logger.With().
		Str("run_id", uuid.NewString()).
		Str("operation", models.OperationDump).
		Logger()

	result := &models.DumpResult{}
	failedStep := "validate"

	defer func() {
		result.Duration = clock.Now().Sub(start)
		msg := models.TelegramMessage{
			Success:   runErr == nil,
			Operation: models.OperationDump,
			StartTime: start,
			Duration:  result.Duration,
			Checksum:  result.Checksum,
			SizeBytes: result.SizeBytes,
			Uploaded:  result.Uploaded,
		}
		if result.Artifacts.DumpPath != "" {
			msg.Artifact = filepath.Base(result.Artifacts.DumpPath)
		}
		if cfg != nil {
			msg.Host = cfg.Postgres.Host
			msg.Database = cfg.Postgres.Database
		}
		finish(ctx, logger, d.svcs, cfg, msg, metrics.Run{
			Operation: models.OperationDump,
			Start:     start,
			Duration:  result.Duration,
			Bytes:     result.SizeBytes,
		}, runErr, failedStep)
	}()

	// Step 1: Preflight
	if err := config.ValidateDump(cfg); err != nil {
		return nil, err
	}
	if err := d.svcs.Postgres.CheckTools(postgres.ToolDump, postgres.ToolRestore); err != nil {
		return nil, err
	}

	logger.Info().
		Str("host", cfg.Postgres.Host).
		Int("port", cfg.Postgres.Port).
		Str("database", cfg.Postgres.Database).
		Msg("starting dump run")

	// Step 2: Workspace
	failedStep = "workspace"
	if err := d.svcs.Workspace.Ensure(cfg.Workspace); err != nil {
		return nil, fmt.Errorf("workspace setup failed: %w", err)
	}

	// Step 3: Dump into the temp path
	failedStep = "dump"
	result.Artifacts = postgres.Artifacts(cfg.Workspace.Dir, cfg.Postgres.Database, start)
	artifacts := result.Artifacts

	dumpRes, err := d.svcs.Postgres.Dump(ctx, cfg.Postgres, cfg.Dump, artifacts.TempPath, artifacts.LogPath)
	if err != nil {
		return nil, fmt.Errorf("pg_dump failed: %w", err)
	}
	if dumpRes.Error != nil {
		return nil, fmt.Errorf("pg_dump failed (see %s): %w", artifacts.LogPath, dumpRes.Error)
	}
	result.SizeBytes = dumpRes.SizeBytes

	// Step 4: Structural check of the temp file
	failedStep = "verify"
	if err := d.checkArchive(ctx, logger, cfg.Dump, artifacts.TempPath); err != nil {
		_ = os.Remove(artifacts.TempPath)
		return nil, err
	}

	// Step 5: Commit
	failedStep = "finalize"
	if err := os.Rename(artifacts.TempPath, artifacts.DumpPath); err != nil {
		_ = os.Remove(artifacts.TempPath)
		return nil, fmt.Errorf("failed to finalize dump: %w", err)
	}
	logger.Info().Str("dump", artifacts.DumpPath).Msg("dump finalized")

	// Step 6: Checksum sidecar
	failedStep = "checksum"
	sidecar, digest, err := checksum.WriteSidecar(artifacts.DumpPath)
	if err != nil {
		return nil, err
	}
	result.Checksum = digest
	logger.Info().Str("sidecar", sidecar).Str("sha256", digest).Msg("checksum written")

	// Step 7: Optional archive upload
	failedStep = "upload"
	if err := d.upload(ctx, logger, cfg.Archive, result); err != nil {
		return nil, err
	}

	failedStep = ""
	logger.Info().
		Str("dump", artifacts.DumpPath).
		Str("log", artifacts.LogPath).
		Int64("size_bytes", result.SizeBytes).
		Bool("uploaded", result.Uploaded).
		Dur("duration", clock.Now().Sub(start)).
		Msg("dump run completed successfully")

	return result, nil
}

func (d *Dumper) checkArchive(ctx context.Context, logger zerolog.Logger, settings models.DumpSettings, archivePath string) error {
	listing, err := d.svcs.Postgres.ListTOC(ctx, archivePath, settings.TOCEntries)
	if err != nil {
		if settings.VerifyArchive {
			return fmt.Errorf("archive check failed: %w", err)
		}
		logger.Warn().Err(err).Msg("archive check failed, continuing")
		return nil
	}

	logger.Info().Int("entries", listing.Total).Msg("archive table of contents")
	for _, entry := range listing.Entries {
		logger.Info().Str("toc", entry).Send()
	}
	return nil
}

func (d *Dumper) upload(ctx context.Context, logger zerolog.Logger, cfg models.ArchiveConfig, result *models.DumpResult) error {
	if !cfg.Enabled() {
		logger.Info().Msg("no archive bucket configured, skipping upload")
		return nil
	}
	if d.svcs.Archive == nil {
		return errors.New("archive bucket configured but no archive client available")
	}

	// Sidecar first: a visible dump object always has its checksum next to it.
	files := []string{result.Artifacts.ChecksumPath, result.Artifacts.DumpPath}
	for _, file := range files {
		key := path.Join(cfg.Prefix, filepath.Base(file))
		if err := d.svcs.Archive.PutEncrypted(ctx, file, key); err != nil {
			return err
		}
		result.Keys = append(result.Keys, key)
	}

	result.Uploaded = true
	logger.Info().Str("bucket", cfg.Bucket).Strs("keys", result.Keys).Msg("artifacts archived")
	return nil
}
