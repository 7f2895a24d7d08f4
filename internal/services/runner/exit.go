package runner

import (
	"errors"

	"github.com/ewiniecke/nb27-backup/internal/models"
)

// Process exit codes.
const (
	ExitOK               = 0
	ExitFailure          = 1
	ExitConfig           = 2
	ExitNoDumpFound      = 3
	ExitChecksumMismatch = 4
)

// ExitCode maps a run error to the process exit status. A failing client tool
// passes its own status through.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	switch {
	case errors.Is(err, models.ErrConfig):
		return ExitConfig
	case errors.Is(err, models.ErrNoDumpFound):
		return ExitNoDumpFound
	case errors.Is(err, models.ErrChecksumMismatch):
		return ExitChecksumMismatch
	}

	var toolErr *models.ToolError
	if errors.As(err, &toolErr) && toolErr.ExitCode > 0 {
		return toolErr.ExitCode
	}

	return ExitFailure
}
