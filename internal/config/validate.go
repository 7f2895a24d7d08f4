package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ewiniecke/nb27-backup/internal/models"
	"github.com/go-playground/validator/v10"
)

// fieldEnv names the environment variable behind each validated field so that
// messages point the operator at what to set.
var fieldEnv = map[string]string{
	"Host":          "PGHOST",
	"Port":          "PGPORT",
	"Database":      "PGDATABASE",
	"Username":      "PGUSER",
	"Password":      "PGPASSWORD",
	"CompressLevel": "DUMP_COMPRESS_LEVEL",
	"TOCEntries":    "DUMP_TOC_ENTRIES",
}

var validate = validator.New()

// ValidateDump checks the settings the dump procedure cannot run without.
// Host, user and password are mandatory.
func ValidateDump(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: configuration is nil", models.ErrConfig)
	}

	if err := validate.Struct(cfg.Postgres); err != nil {
		return describe(err)
	}
	if err := validate.Struct(cfg.Dump); err != nil {
		return describe(err)
	}

	return nil
}

// ValidateRestore checks the settings the restore procedure cannot run without
// and applies the restore-side defaults (user "postgres", target database).
// The bucket is only required when restoring from the archive.
func ValidateRestore(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: configuration is nil", models.ErrConfig)
	}

	if cfg.Postgres.Username == "" {
		cfg.Postgres.Username = DefaultRestoreUser
	}
	if cfg.Restore.TargetDB == "" {
		cfg.Restore.TargetDB = cfg.Postgres.Database
	}

	if cfg.Restore.FromFile == "" && !cfg.Archive.Enabled() {
		return fmt.Errorf("%w: S3_BUCKET_NAME (or BUCKET) is not set", models.ErrConfig)
	}

	if err := validate.StructPartial(cfg.Postgres, "Password", "Port", "Database"); err != nil {
		return describe(err)
	}

	return nil
}

// describe turns validator output into a single configuration error naming
// every offending variable.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", models.ErrConfig, err)
	}

	var missing, invalid []string
	for _, fe := range verrs {
		name := fe.Field()
		if env, ok := fieldEnv[name]; ok {
			name = env
		}
		if fe.Tag() == "required" {
			missing = append(missing, name)
			continue
		}
		invalid = append(invalid, fmt.Sprintf("%s (%s=%s)", name, fe.Tag(), fe.Param()))
	}

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing required variables: "+strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		parts = append(parts, "invalid values: "+strings.Join(invalid, ", "))
	}

	return fmt.Errorf("%w: %s", models.ErrConfig, strings.Join(parts, "; "))
}

// Validate checks values that are invalid regardless of which procedure runs.
func Validate(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: configuration is nil", models.ErrConfig)
	}

	if err := validate.StructPartial(cfg.Postgres, "Port", "Database"); err != nil {
		return describe(err)
	}
	if err := validate.Struct(cfg.Dump); err != nil {
		return describe(err)
	}

	return nil
}
