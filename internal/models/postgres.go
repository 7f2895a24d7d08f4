package models

import "time"

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `validate:"required"`
	Port     int    `validate:"gt=0,lte=65535"`
	Database string `validate:"required"`
	Username string `validate:"required"`
	Password string `validate:"required"`
}

// PostgresDumpResult holds the result of a pg_dump invocation.
type PostgresDumpResult struct {
	OutputPath string
	LogPath    string
	SizeBytes  int64
	Duration   time.Duration
	Error      error
}

// PostgresRestoreResult holds the result of a pg_restore invocation.
type PostgresRestoreResult struct {
	Database string
	Duration time.Duration
	Error    error
}

// TOCListing is the table of contents of a custom-format archive.
type TOCListing struct {
	Entries []string // first N entries, comment lines excluded
	Total   int
}

// TableStat is the row count of one user table.
type TableStat struct {
	Schema string
	Name   string
	Rows   int64
}
