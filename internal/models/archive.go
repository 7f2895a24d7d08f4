package models

import "time"

// ArchiveObject is a dump artifact stored in the archive bucket.
type ArchiveObject struct {
	Key          string
	Size         int64
	LastModified time.Time
}
