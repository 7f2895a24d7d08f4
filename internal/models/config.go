// Package models contains the data structures used throughout nb27-backup.
package models

// Config holds the complete configuration for a dump or restore run.
// It is built once at the entrypoint and passed to the procedures.
type Config struct {
	Postgres  PostgresConfig
	Archive   ArchiveConfig
	Workspace WorkspaceConfig
	Dump      DumpSettings
	Restore   RestoreSettings
	Metrics   MetricsSettings
	Telegram  *TelegramConfig // nil if not configured
}

// ArchiveConfig holds the object storage settings.
type ArchiveConfig struct {
	Bucket       string // optional for dump, required for restore
	Prefix       string // key prefix, "backups/" by default
	Region       string
	Profile      string
	Endpoint     string // optional, for S3-compatible stores
	UsePathStyle bool

	// Static keys, used only when both are set. Otherwise the default AWS
	// credential chain applies.
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled reports whether an archive bucket is configured.
func (c ArchiveConfig) Enabled() bool {
	return c.Bucket != ""
}

// WorkspaceConfig describes the local backup directory.
type WorkspaceConfig struct {
	Dir           string
	GitignorePath string // "" disables the exclusion rules
}

// DumpSettings holds dump-specific settings.
type DumpSettings struct {
	CompressLevel int  `validate:"gte=0,lte=9"`
	TOCEntries    int  `validate:"gte=0"`
	VerifyArchive bool // if true, a failed TOC listing aborts the dump
}

// RestoreSettings holds restore-specific settings.
type RestoreSettings struct {
	TargetDB string
	ResetDB  bool   // drop and recreate the target before loading
	FromFile string // restore a local artifact instead of the latest archived one
}

// MetricsSettings controls the Prometheus textfile output.
type MetricsSettings struct {
	Textfile string // "" disables metrics output
}
