package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ewiniecke/nb27-backup/internal/models"
	"github.com/ewiniecke/nb27-backup/internal/services/checksum"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintSummary_MasksSecrets(t *testing.T) {
	cfg := &models.Config{
		Postgres: models.PostgresConfig{
			Host:     "db.internal",
			Port:     5432,
			Database: "nhl_beyond",
			Username: "analyst",
			Password: "hunter2",
		},
		Archive: models.ArchiveConfig{
			Bucket:          "nb27-backups",
			Prefix:          "backups/",
			AccessKeyID:     "AKIAEXAMPLE",
			SecretAccessKey: "wJalrXUtnFEMI",
		},
		Workspace: models.WorkspaceConfig{Dir: "backups"},
		Restore:   models.RestoreSettings{TargetDB: "nhl_beyond"},
		Telegram:  &models.TelegramConfig{BotToken: "123456:SECRET", ChatID: "-100"},
	}

	var buf bytes.Buffer
	printSummary(&buf, cfg)
	out := buf.String()

	assert.Contains(t, out, "db.internal")
	assert.Contains(t, out, "nb27-backups")
	assert.Contains(t, out, "Password: (configured)")
	assert.Contains(t, out, "Bot Token: (configured)")
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "SECRET")
	assert.Contains(t, out, "Secret key: (configured)")
	assert.NotContains(t, out, "wJalrXUtnFEMI")
}

func TestPrintSummary_NoBucket(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, &models.Config{})

	assert.Contains(t, buf.String(), "dumps stay local")
	assert.Contains(t, buf.String(), "Password: (unset)")
}

func TestPrintObjects(t *testing.T) {
	var buf bytes.Buffer
	err := printObjects(&buf, []models.ArchiveObject{
		{Key: "backups/nhl_beyond_2025-10-01_120000.dump", Size: 2048, LastModified: time.Date(2025, 10, 1, 12, 0, 5, 0, time.UTC)},
	})

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "LAST MODIFIED")
	assert.Contains(t, buf.String(), "2025-10-01T12:00:05Z")
	assert.Contains(t, buf.String(), "backups/nhl_beyond_2025-10-01_120000.dump")
}

func TestApplyRestoreFlags(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().StringVar(&targetDB, "target-db", "", "")
	cmd.Flags().BoolVar(&resetDB, "reset", false, "")
	cmd.Flags().StringVar(&fromFile, "from-file", "", "")
	require.NoError(t, cmd.Flags().Parse([]string{"--target-db", "nhl_scratch"}))

	cfg := &models.Config{Restore: models.RestoreSettings{TargetDB: "nhl_beyond", ResetDB: true}}
	applyRestoreFlags(cmd, cfg)

	assert.Equal(t, "nhl_scratch", cfg.Restore.TargetDB)
	assert.True(t, cfg.Restore.ResetDB, "unset flag keeps the environment value")
	assert.Empty(t, cfg.Restore.FromFile)
}

func TestVerifyCommand(t *testing.T) {
	dumpPath := filepath.Join(t.TempDir(), "nhl_beyond_2025-10-01_120000.dump")
	require.NoError(t, os.WriteFile(dumpPath, []byte("PGDMP"), 0o600))
	_, _, err := checksum.WriteSidecar(dumpPath)
	require.NoError(t, err)

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	require.NoError(t, runVerify(cmd, []string{dumpPath}))
	assert.Contains(t, out.String(), "OK")

	require.NoError(t, os.WriteFile(dumpPath, []byte("PGDMQ"), 0o600))
	err = runVerify(cmd, []string{dumpPath})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrChecksumMismatch)
}
