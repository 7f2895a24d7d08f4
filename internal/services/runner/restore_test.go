package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ewiniecke/nb27-backup/internal/models"
	"github.com/ewiniecke/nb27-backup/internal/services/checksum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedPair stores a dump and its matching sidecar in the mock archive.
func (f *fixture) seedPair(t *testing.T, name string, body []byte, modified time.Time) {
	t.Helper()

	digest, err := checksum.Reader(bytesReader(body))
	require.NoError(t, err)

	f.archive.add("backups/"+name, body, modified)
	f.archive.add("backups/"+name+".sha256", []byte(checksum.Line(digest, name)), modified)
}

func TestRestorer_Success(t *testing.T) {
	f := newFixture(t)
	f.seedPair(t, "nhl_beyond_2025-09-30_120000.dump", []byte("PGDMP old"), testTime.Add(-24*time.Hour))
	f.seedPair(t, "nhl_beyond_2025-10-01_120000.dump", []byte("PGDMP new"), testTime)

	var restoredPath string
	f.postgres.restoreFunc = func(ctx context.Context, cfg models.PostgresConfig, target, archivePath string) (*models.PostgresRestoreResult, error) {
		restoredPath = archivePath
		return &models.PostgresRestoreResult{Database: target}, nil
	}

	result, err := NewRestorer(testLogger(), f.services()).Run(context.Background(), f.config())

	require.NoError(t, err)
	assert.Equal(t, "backups/nhl_beyond_2025-10-01_120000.dump", result.Source)
	assert.Equal(t, filepath.Join(f.dir, "nhl_beyond_2025-10-01_120000.dump"), result.DumpPath)
	assert.Equal(t, result.DumpPath, restoredPath)
	assert.Equal(t, "nhl_beyond", result.Database)
	assert.False(t, result.Reset)
	require.Len(t, result.Tables, 1)

	assert.Equal(t, []string{
		"backups/nhl_beyond_2025-10-01_120000.dump",
		"backups/nhl_beyond_2025-10-01_120000.dump.sha256",
	}, f.archive.downloads)

	// Downloaded files are left for the operator
	content, err := os.ReadFile(result.DumpPath)
	require.NoError(t, err)
	assert.Equal(t, "PGDMP new", string(content))

	require.Len(t, f.telegram.messages, 1)
	assert.True(t, f.telegram.messages[0].Success)
	assert.Equal(t, 1, f.telegram.messages[0].Tables)
	require.Len(t, f.metrics.runs, 1)
	assert.Equal(t, models.OperationRestore, f.metrics.runs[0].Operation)
	assert.Equal(t, int64(len("PGDMP new")), f.metrics.runs[0].Bytes)
}

func TestRestorer_TamperedArtifact(t *testing.T) {
	f := newFixture(t)
	f.seedPair(t, "nhl_beyond_2025-10-01_120000.dump", []byte("PGDMP archive"), testTime)

	// Flip one byte of the stored artifact
	body := f.archive.objects["backups/nhl_beyond_2025-10-01_120000.dump"]
	body[0] ^= 0x01

	cfg := f.config()
	cfg.Restore.ResetDB = true

	_, err := NewRestorer(testLogger(), f.services()).Run(context.Background(), cfg)

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrChecksumMismatch)
	assert.Equal(t, ExitChecksumMismatch, ExitCode(err))
	assert.Zero(t, f.postgres.restoreCalls)
	assert.Empty(t, f.admin.calls)

	require.Len(t, f.telegram.messages, 1)
	assert.Equal(t, "verify", f.telegram.messages[0].FailedStep)
}

func TestRestorer_MissingSidecar(t *testing.T) {
	f := newFixture(t)
	f.archive.add("backups/nhl_beyond_2025-10-01_120000.dump", []byte("PGDMP"), testTime)

	_, err := NewRestorer(testLogger(), f.services()).Run(context.Background(), f.config())

	require.Error(t, err)
	assert.Equal(t, ExitChecksumMismatch, ExitCode(err))
	assert.Zero(t, f.postgres.restoreCalls)
}

func TestRestorer_EmptyArchive(t *testing.T) {
	f := newFixture(t)
	f.archive.add("backups/readme.txt", []byte("x"), testTime)

	_, err := NewRestorer(testLogger(), f.services()).Run(context.Background(), f.config())

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNoDumpFound)
	assert.Equal(t, ExitNoDumpFound, ExitCode(err))
	assert.Empty(t, f.archive.downloads)
	assert.Zero(t, f.postgres.restoreCalls)

	require.Len(t, f.telegram.messages, 1)
	assert.Equal(t, "fetch", f.telegram.messages[0].FailedStep)
}

func TestRestorer_Preflight(t *testing.T) {
	tests := []struct {
		name   string
		modify func(f *fixture, cfg *models.Config)
	}{
		{"no bucket", func(f *fixture, cfg *models.Config) { cfg.Archive.Bucket = "" }},
		{"no password", func(f *fixture, cfg *models.Config) { cfg.Postgres.Password = "" }},
		{"missing pg_restore", func(f *fixture, cfg *models.Config) {
			f.postgres.checkToolsFunc = func(names ...string) error {
				assert.Equal(t, []string{"pg_restore"}, names)
				return models.ErrConfig
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seedPair(t, "nhl_beyond_2025-10-01_120000.dump", []byte("PGDMP"), testTime)
			cfg := f.config()
			tt.modify(f, cfg)

			_, err := NewRestorer(testLogger(), f.services()).Run(context.Background(), cfg)

			require.Error(t, err)
			assert.Equal(t, ExitConfig, ExitCode(err))
			assert.Empty(t, f.archive.downloads)
			assert.Zero(t, f.workspace.calls)
			assert.Zero(t, f.postgres.restoreCalls)
			assert.Empty(t, f.admin.calls)
		})
	}
}

func TestRestorer_HostNotRequired(t *testing.T) {
	f := newFixture(t)
	f.seedPair(t, "nhl_beyond_2025-10-01_120000.dump", []byte("PGDMP"), testTime)
	cfg := f.config()
	cfg.Postgres.Host = ""
	cfg.Postgres.Username = ""

	var gotUser string
	f.postgres.restoreFunc = func(ctx context.Context, pg models.PostgresConfig, target, archivePath string) (*models.PostgresRestoreResult, error) {
		gotUser = pg.Username
		return &models.PostgresRestoreResult{Database: target}, nil
	}

	_, err := NewRestorer(testLogger(), f.services()).Run(context.Background(), cfg)

	require.NoError(t, err)
	assert.Equal(t, "postgres", gotUser)
}

func TestRestorer_ResetGating(t *testing.T) {
	t.Run("reset unset never drops", func(t *testing.T) {
		f := newFixture(t)
		f.seedPair(t, "nhl_beyond_2025-10-01_120000.dump", []byte("PGDMP"), testTime)

		_, err := NewRestorer(testLogger(), f.services()).Run(context.Background(), f.config())

		require.NoError(t, err)
		assert.Equal(t, []string{"stats:nhl_beyond"}, f.admin.calls)
	})

	t.Run("reset set drops before loading", func(t *testing.T) {
		f := newFixture(t)
		f.seedPair(t, "nhl_beyond_2025-10-01_120000.dump", []byte("PGDMP"), testTime)
		cfg := f.config()
		cfg.Restore.ResetDB = true
		cfg.Restore.TargetDB = "nhl_scratch"

		f.postgres.restoreFunc = func(ctx context.Context, pg models.PostgresConfig, target, archivePath string) (*models.PostgresRestoreResult, error) {
			assert.Equal(t, []string{"reset:nhl_scratch"}, f.admin.calls)
			return &models.PostgresRestoreResult{Database: target}, nil
		}

		result, err := NewRestorer(testLogger(), f.services()).Run(context.Background(), cfg)

		require.NoError(t, err)
		assert.True(t, result.Reset)
		assert.Equal(t, []string{"reset:nhl_scratch", "stats:nhl_scratch"}, f.admin.calls)
	})

	t.Run("reset failure aborts", func(t *testing.T) {
		f := newFixture(t)
		f.seedPair(t, "nhl_beyond_2025-10-01_120000.dump", []byte("PGDMP"), testTime)
		f.admin.resetErr = errBoom
		cfg := f.config()
		cfg.Restore.ResetDB = true

		_, err := NewRestorer(testLogger(), f.services()).Run(context.Background(), cfg)

		require.Error(t, err)
		assert.ErrorIs(t, err, errBoom)
		assert.Zero(t, f.postgres.restoreCalls)
	})
}

func TestRestorer_ToolFailure(t *testing.T) {
	f := newFixture(t)
	f.seedPair(t, "nhl_beyond_2025-10-01_120000.dump", []byte("PGDMP"), testTime)
	f.postgres.restoreFunc = func(ctx context.Context, cfg models.PostgresConfig, target, archivePath string) (*models.PostgresRestoreResult, error) {
		return &models.PostgresRestoreResult{
			Database: target,
			Error:    &models.ToolError{Tool: "pg_restore", ExitCode: 1, Err: errors.New("errors ignored on restore: 3")},
		}, nil
	}

	_, err := NewRestorer(testLogger(), f.services()).Run(context.Background(), f.config())

	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
	require.Len(t, f.telegram.messages, 1)
	assert.Equal(t, "restore", f.telegram.messages[0].FailedStep)
}

func TestRestorer_TableStatsFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.seedPair(t, "nhl_beyond_2025-10-01_120000.dump", []byte("PGDMP"), testTime)
	f.admin.tableStatsFunc = func(ctx context.Context, cfg models.PostgresConfig, name string) ([]models.TableStat, error) {
		return nil, errBoom
	}

	result, err := NewRestorer(testLogger(), f.services()).Run(context.Background(), f.config())

	require.NoError(t, err)
	assert.Empty(t, result.Tables)
}

func TestRestorer_FromFile(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(f.dir, 0o750))

	dumpPath := filepath.Join(f.dir, "nhl_beyond_2025-10-01_120000.dump")
	require.NoError(t, os.WriteFile(dumpPath, []byte("PGDMP local"), 0o600))
	_, _, err := checksum.WriteSidecar(dumpPath)
	require.NoError(t, err)

	cfg := f.config()
	cfg.Archive.Bucket = ""
	cfg.Restore.FromFile = dumpPath
	svcs := f.services()
	svcs.Archive = nil

	result, err := NewRestorer(testLogger(), svcs).Run(context.Background(), cfg)

	require.NoError(t, err)
	assert.Equal(t, dumpPath, result.Source)
	assert.Equal(t, dumpPath, result.DumpPath)
	assert.Equal(t, 1, f.postgres.restoreCalls)
	assert.Empty(t, f.archive.downloads)
}

func TestRestorer_FromFileTampered(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(f.dir, 0o750))

	dumpPath := filepath.Join(f.dir, "nhl_beyond_2025-10-01_120000.dump")
	require.NoError(t, os.WriteFile(dumpPath, []byte("PGDMP local"), 0o600))
	_, _, err := checksum.WriteSidecar(dumpPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dumpPath, []byte("PGDMP lOcal"), 0o600))

	cfg := f.config()
	cfg.Restore.FromFile = dumpPath

	_, err = NewRestorer(testLogger(), f.services()).Run(context.Background(), cfg)

	require.Error(t, err)
	assert.Equal(t, ExitChecksumMismatch, ExitCode(err))
	assert.Zero(t, f.postgres.restoreCalls)
}
