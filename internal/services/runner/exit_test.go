package runner

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ewiniecke/nb27-backup/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"config", fmt.Errorf("%w: PGHOST", models.ErrConfig), ExitConfig},
		{"no dump", fmt.Errorf("%w in s3://b/backups/", models.ErrNoDumpFound), ExitNoDumpFound},
		{"mismatch", fmt.Errorf("verify: %w", models.ErrChecksumMismatch), ExitChecksumMismatch},
		{"tool", fmt.Errorf("pg_dump failed: %w", &models.ToolError{Tool: "pg_dump", ExitCode: 7, Err: errors.New("x")}), 7},
		{"tool killed", &models.ToolError{Tool: "pg_dump", ExitCode: 0, Err: errors.New("signal: killed")}, ExitFailure},
		{"cancelled", context.Canceled, ExitFailure},
		{"other", errors.New("boom"), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}
