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
	"github.com/ewiniecke/nb27-backup/internal/services/archive"
	"github.com/ewiniecke/nb27-backup/internal/services/checksum"
	"github.com/ewiniecke/nb27-backup/internal/services/metrics"
	"github.com/ewiniecke/nb27-backup/internal/services/postgres"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Restorer loads the most recent verified snapshot into a database.
type Restorer struct {
	svcs   Services
	logger zerolog.Logger
}

// NewRestorer creates a restore runner.
func NewRestorer(logger zerolog.Logger, svcs Services) *Restorer {
	return &Restorer{svcs: svcs, logger: logger}
}

// Run executes the restore procedure. The database is not touched until the
// artifact matches its checksum sidecar.
//
//nolint:gocognit,gocyclo // restore procedure has multiple steps by design
func (r *Restorer) Run(ctx context.Context, cfg *models.Config) (_ *models.RestoreResult, runErr error) {
	clock := r.svcs.clock()
	start := clock.Now()
	logger := r.logger.With().
		Str("run_id", uuid.NewString()).
		Str("operation", models.OperationRestore).
		Logger()

	result := &models.RestoreResult{}
	var sizeBytes int64
	failedStep := "preflight"

	defer func() {
		result.Duration = clock.Now().Sub(start)
		msg := models.TelegramMessage{
			Success:   runErr == nil,
			Operation: models.OperationRestore,
			StartTime: start,
			Duration:  result.Duration,
			Artifact:  result.Source,
			SizeBytes: sizeBytes,
			Tables:    len(result.Tables),
		}
		if cfg != nil {
			msg.Host = cfg.Postgres.Host
			msg.Database = cfg.Restore.TargetDB
		}
		finish(ctx, logger, r.svcs, cfg, msg, metrics.Run{
			Operation: models.OperationRestore,
			Start:     start,
			Duration:  result.Duration,
			Bytes:     sizeBytes,
		}, runErr, failedStep)
	}()

	// Preflight: no network or database action before this passes
	if err := config.ValidateRestore(cfg); err != nil {
		return nil, err
	}
	if err := r.svcs.Postgres.CheckTools(postgres.ToolRestore); err != nil {
		return nil, err
	}
	if cfg.Restore.FromFile == "" && r.svcs.Archive == nil {
		return nil, fmt.Errorf("%w: no archive client available for bucket %s", models.ErrConfig, cfg.Archive.Bucket)
	}

	result.Database = cfg.Restore.TargetDB
	result.Reset = cfg.Restore.ResetDB

	logger.Info().
		Str("host", cfg.Postgres.Host).
		Str("database", result.Database).
		Bool("reset", result.Reset).
		Msg("starting restore run")

	// Step 1-2: Locate and fetch the artifact pair
	if cfg.Restore.FromFile != "" {
		result.Source = cfg.Restore.FromFile
		result.DumpPath = cfg.Restore.FromFile
		result.ChecksumPath = checksum.SidecarPath(cfg.Restore.FromFile)
		if info, err := os.Stat(result.DumpPath); err == nil {
			sizeBytes = info.Size()
		}
		logger.Info().Str("file", result.DumpPath).Msg("restoring from local file")
	} else {
		failedStep = "workspace"
		if err := r.svcs.Workspace.Ensure(cfg.Workspace); err != nil {
			return nil, fmt.Errorf("workspace setup failed: %w", err)
		}

		failedStep = "fetch"
		size, err := r.fetch(ctx, logger, cfg, result)
		if err != nil {
			return nil, err
		}
		sizeBytes = size
	}

	// Step 3: Integrity gate
	failedStep = "verify"
	digest, err := checksum.Verify(result.DumpPath, result.ChecksumPath)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("sha256", digest).Msg("checksum verified")

	// Step 4: Optional destructive reset
	if cfg.Restore.ResetDB {
		failedStep = "reset"
		if err := r.svcs.Admin.ResetDatabase(ctx, cfg.Postgres, result.Database); err != nil {
			return nil, fmt.Errorf("database reset failed: %w", err)
		}
	}

	// Step 5: Load
	failedStep = "restore"
	restoreRes, err := r.svcs.Postgres.Restore(ctx, cfg.Postgres, result.Database, result.DumpPath)
	if err != nil {
		return nil, fmt.Errorf("pg_restore failed: %w", err)
	}
	if restoreRes.Error != nil {
		return nil, fmt.Errorf("pg_restore failed: %w", restoreRes.Error)
	}

	// Step 6: Report
	failedStep = ""
	r.reportTables(ctx, logger, cfg.Postgres, result)

	logger.Info().
		Str("source", result.Source).
		Str("database", result.Database).
		Dur("duration", clock.Now().Sub(start)).
		Msg("restore run completed successfully")

	if cfg.Restore.FromFile == "" {
		logger.Info().
			Strs("files", []string{result.DumpPath, result.ChecksumPath}).
			Msg("downloaded files can be removed once no longer needed")
	}

	return result, nil
}

// fetch selects the newest archived dump and downloads it with its sidecar.
func (r *Restorer) fetch(ctx context.Context, logger zerolog.Logger, cfg *models.Config, result *models.RestoreResult) (int64, error) {
	latest, err := r.svcs.Archive.ListLatest(ctx, cfg.Archive.Prefix, postgres.DumpSuffix)
	if err != nil {
		return 0, err
	}
	logger.Info().
		Str("key", latest.Key).
		Time("last_modified", latest.LastModified).
		Int64("size_bytes", latest.Size).
		Msg("selected latest dump")

	result.Source = latest.Key
	result.DumpPath = filepath.Join(cfg.Workspace.Dir, path.Base(latest.Key))
	result.ChecksumPath = checksum.SidecarPath(result.DumpPath)

	size, err := r.svcs.Archive.Download(ctx, latest.Key, result.DumpPath)
	if err != nil {
		return 0, err
	}

	sidecarKey := checksum.SidecarPath(latest.Key)
	if _, err := r.svcs.Archive.Download(ctx, sidecarKey, result.ChecksumPath); err != nil {
		if errors.Is(err, archive.ErrObjectNotFound) {
			return 0, fmt.Errorf("%w: sidecar %s is missing from the archive", models.ErrChecksumMismatch, sidecarKey)
		}
		return 0, err
	}

	return size, nil
}

// reportTables logs the row count of every restored table. Failures only warn.
func (r *Restorer) reportTables(ctx context.Context, logger zerolog.Logger, cfg models.PostgresConfig, result *models.RestoreResult) {
	if r.svcs.Admin == nil {
		return
	}

	stats, err := r.svcs.Admin.TableStats(ctx, cfg, result.Database)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to collect table statistics")
		return
	}

	result.Tables = stats
	for _, st := range stats {
		logger.Info().
			Str("schema", st.Schema).
			Str("table", st.Name).
			Int64("rows", st.Rows).
			Msg("restored table")
	}
}
