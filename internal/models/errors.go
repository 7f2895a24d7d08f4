package models

import (
	"errors"
	"fmt"
)

// Failure classes surfaced to the operator as distinct exit codes.
var (
	ErrConfig           = errors.New("configuration error")
	ErrNoDumpFound      = errors.New("no dump found")
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// ToolError reports a non-zero exit of an external client tool.
type ToolError struct {
	Tool     string
	ExitCode int
	Err      error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s failed (exit %d): %v", e.Tool, e.ExitCode, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}
