package postgres

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/ewiniecke/nb27-backup/internal/models"
	"github.com/ewiniecke/nb27-backup/internal/services/checksum"
)

// Artifact naming. These names are shared by the dump and restore procedures
// and by earlier archives, so they must not change.
const (
	TimestampLayout = "2006-01-02_150405"
	DumpSuffix      = ".dump"
	tempPrefix      = ".tmp_"
)

// Timestamp formats t as the YYYY-MM-DD_HHMMSS token used in artifact names.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// DumpFilename returns "<db>_<timestamp>.dump".
func DumpFilename(database, timestamp string) string {
	return fmt.Sprintf("%s_%s%s", database, timestamp, DumpSuffix)
}

// LogFilename returns "pg_dump_<timestamp>.log".
func LogFilename(timestamp string) string {
	return fmt.Sprintf("pg_dump_%s.log", timestamp)
}

// Artifacts names every file of one dump run inside dir.
func Artifacts(dir, database string, t time.Time) models.DumpArtifacts {
	ts := Timestamp(t)
	name := DumpFilename(database, ts)
	dumpPath := filepath.Join(dir, name)

	return models.DumpArtifacts{
		Timestamp:    ts,
		TempPath:     filepath.Join(dir, tempPrefix+name),
		DumpPath:     dumpPath,
		ChecksumPath: checksum.SidecarPath(dumpPath),
		LogPath:      filepath.Join(dir, LogFilename(ts)),
	}
}
