package models

import "time"

// Operation names used in logs, notifications and metrics.
const (
	OperationDump    = "dump"
	OperationRestore = "restore"
)

// DumpArtifacts names the files produced by one dump run.
type DumpArtifacts struct {
	Timestamp    string
	TempPath     string
	DumpPath     string
	ChecksumPath string
	LogPath      string
}

// DumpResult holds the outcome of the dump procedure.
type DumpResult struct {
	Artifacts DumpArtifacts
	Checksum  string
	SizeBytes int64
	Uploaded  bool
	Keys      []string // archive keys written, dump first
	Duration  time.Duration
}

// RestoreResult holds the outcome of the restore procedure.
type RestoreResult struct {
	Source       string // archive key or local path
	DumpPath     string
	ChecksumPath string
	Database     string
	Reset        bool
	Tables       []TableStat
	Duration     time.Duration
}
