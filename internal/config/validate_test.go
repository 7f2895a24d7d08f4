package config

import (
	"testing"

	"github.com/ewiniecke/nb27-backup/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *models.Config {
	return &models.Config{
		Postgres: models.PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "nhl_beyond",
			Username: "analyst",
			Password: "secret",
		},
		Archive: models.ArchiveConfig{
			Bucket: "nb27-archive",
			Prefix: "backups/",
		},
		Dump: models.DumpSettings{
			CompressLevel: 9,
			TOCEntries:    20,
			VerifyArchive: true,
		},
		Restore: models.RestoreSettings{
			TargetDB: "nhl_beyond",
		},
	}
}

func TestValidateDump_Valid(t *testing.T) {
	assert.NoError(t, ValidateDump(validConfig()))
}

func TestValidateDump_BucketOptional(t *testing.T) {
	cfg := validConfig()
	cfg.Archive.Bucket = ""

	assert.NoError(t, ValidateDump(cfg))
}

func TestValidateDump_MissingRequired(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Host = ""
	cfg.Postgres.Username = ""
	cfg.Postgres.Password = ""

	err := ValidateDump(cfg)

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConfig)
	assert.Contains(t, err.Error(), "PGHOST")
	assert.Contains(t, err.Error(), "PGUSER")
	assert.Contains(t, err.Error(), "PGPASSWORD")
}

func TestValidateDump_InvalidCompressLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Dump.CompressLevel = 12

	err := ValidateDump(cfg)

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConfig)
	assert.Contains(t, err.Error(), "DUMP_COMPRESS_LEVEL")
}

func TestValidateDump_Nil(t *testing.T) {
	assert.ErrorIs(t, ValidateDump(nil), models.ErrConfig)
}

func TestValidateRestore_DefaultsUser(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Username = ""
	cfg.Postgres.Host = ""

	require.NoError(t, ValidateRestore(cfg))
	assert.Equal(t, "postgres", cfg.Postgres.Username)
}

func TestValidateRestore_TargetDefaultsToDatabase(t *testing.T) {
	cfg := validConfig()
	cfg.Restore.TargetDB = ""

	require.NoError(t, ValidateRestore(cfg))
	assert.Equal(t, "nhl_beyond", cfg.Restore.TargetDB)
}

func TestValidateRestore_RequiresBucket(t *testing.T) {
	cfg := validConfig()
	cfg.Archive.Bucket = ""

	err := ValidateRestore(cfg)

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConfig)
	assert.Contains(t, err.Error(), "S3_BUCKET_NAME")
}

func TestValidateRestore_FromFileSkipsBucket(t *testing.T) {
	cfg := validConfig()
	cfg.Archive.Bucket = ""
	cfg.Restore.FromFile = "backups/nhl_beyond_2025-10-01_120000.dump"

	assert.NoError(t, ValidateRestore(cfg))
}

func TestValidateRestore_RequiresPassword(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = ""

	err := ValidateRestore(cfg)

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConfig)
	assert.Contains(t, err.Error(), "PGPASSWORD")
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Port = 70000

	err := Validate(cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "PGPORT")
}
