// Package postgres wraps the PostgreSQL client tools used by the dump and
// restore procedures.
package postgres

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ewiniecke/nb27-backup/internal/models"
	"github.com/rs/zerolog"
)

// Client tool names.
const (
	ToolDump    = "pg_dump"
	ToolRestore = "pg_restore"
)

// Service defines the interface for PostgreSQL client tool operations.
type Service interface {
	Dump(ctx context.Context, cfg models.PostgresConfig, settings models.DumpSettings, outputPath, logPath string) (*models.PostgresDumpResult, error)
	ListTOC(ctx context.Context, archivePath string, limit int) (*models.TOCListing, error)
	Restore(ctx context.Context, cfg models.PostgresConfig, target, archivePath string) (*models.PostgresRestoreResult, error)
	CheckTools(names ...string) error
}

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	ExecuteWithEnv(ctx context.Context, env []string, stdout, stderr io.Writer, name string, args ...string) error
	LookPath(name string) (string, error)
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// ExecuteWithEnv runs a command with additional environment variables. A non-zero
// exit is reported as a *models.ToolError carrying the tail of stderr.
func (e *DefaultExecutor) ExecuteWithEnv(ctx context.Context, env []string, stdout, stderr io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)

	tail := &tailBuffer{max: 4096}
	cmd.Stdout = stdout
	if stderr != nil {
		cmd.Stderr = io.MultiWriter(stderr, tail)
	} else {
		cmd.Stderr = tail
	}

	if err := cmd.Run(); err != nil {
		exitCode := 1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
			exitCode = exitErr.ExitCode()
		}
		if msg := strings.TrimSpace(tail.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return &models.ToolError{Tool: name, ExitCode: exitCode, Err: err}
	}

	return nil
}

// LookPath searches for an executable in PATH.
func (e *DefaultExecutor) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	buf bytes.Buffer
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n, _ := t.buf.Write(p)
	if extra := t.buf.Len() - t.max; extra > 0 {
		t.buf.Next(extra)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	return t.buf.String()
}

// Impl implements the PostgreSQL Service interface.
type Impl struct {
	executor CommandExecutor
	logger   zerolog.Logger
}

// New creates a new PostgreSQL service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		executor: &DefaultExecutor{},
		logger:   logger,
	}
}

// NewWithExecutor creates a new PostgreSQL service with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, executor CommandExecutor) *Impl {
	return &Impl{
		executor: executor,
		logger:   logger,
	}
}

// connectionArgs returns the libpq connection flags shared by both tools.
// Empty host or user fall back to the client defaults.
func connectionArgs(cfg models.PostgresConfig, database string) []string {
	var args []string
	if cfg.Host != "" {
		args = append(args, "--host="+cfg.Host)
	}
	if cfg.Port != 0 {
		args = append(args, fmt.Sprintf("--port=%d", cfg.Port))
	}
	if cfg.Username != "" {
		args = append(args, "--username="+cfg.Username)
	}
	return append(args, "--dbname="+database)
}

func passwordEnv(cfg models.PostgresConfig) []string {
	if cfg.Password == "" {
		return nil
	}
	return []string{fmt.Sprintf("PGPASSWORD=%s", cfg.Password)}
}

// Dump runs pg_dump in custom archive format into outputPath, with verbose
// diagnostics written to logPath. On failure the partial output is removed.
func (s *Impl) Dump(ctx context.Context, cfg models.PostgresConfig, settings models.DumpSettings, outputPath, logPath string) (*models.PostgresDumpResult, error) {
	s.logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Str("output", outputPath).
		Str("log", logPath).
		Msg("starting PostgreSQL dump")

	start := time.Now()
	result := &models.PostgresDumpResult{
		OutputPath: outputPath,
		LogPath:    logPath,
	}

	// Ensure output directory exists
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o750); err != nil {
		result.Error = fmt.Errorf("failed to create output directory: %w", err)
		result.Duration = time.Since(start)
		return result, nil
	}

	logFile, err := os.Create(logPath) //nolint:gosec // logPath is controlled by caller
	if err != nil {
		result.Error = fmt.Errorf("failed to create log file: %w", err)
		result.Duration = time.Since(start)
		return result, nil
	}
	defer func() { _ = logFile.Close() }()

	args := connectionArgs(cfg, cfg.Database)
	args = append(args,
		"--format=custom",
		fmt.Sprintf("--compress=%d", settings.CompressLevel),
		"--no-owner",
		"--no-privileges",
		"--verbose",
		"--file="+outputPath,
	)

	if execErr := s.executor.ExecuteWithEnv(ctx, passwordEnv(cfg), nil, logFile, ToolDump, args...); execErr != nil {
		// Clean up partial file
		_ = os.Remove(outputPath)
		result.Error = execErr
		result.Duration = time.Since(start)
		return result, nil //nolint:nilerr // error is stored in result struct by design
	}

	if info, err := os.Stat(outputPath); err == nil {
		result.SizeBytes = info.Size()
	}

	result.Duration = time.Since(start)

	s.logger.Info().
		Str("output", outputPath).
		Int64("size_bytes", result.SizeBytes).
		Dur("duration", result.Duration).
		Msg("PostgreSQL dump completed")

	return result, nil
}

// ListTOC lists the archive's table of contents and returns the first limit
// entries. Comment lines are skipped.
func (s *Impl) ListTOC(ctx context.Context, archivePath string, limit int) (*models.TOCListing, error) {
	var stdout bytes.Buffer
	if err := s.executor.ExecuteWithEnv(ctx, nil, &stdout, nil, ToolRestore, "--list", archivePath); err != nil {
		return nil, fmt.Errorf("failed to list archive contents: %w", err)
	}

	listing := &models.TOCListing{}
	scanner := bufio.NewScanner(&stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		listing.Total++
		if len(listing.Entries) < limit {
			listing.Entries = append(listing.Entries, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read archive listing: %w", err)
	}

	if listing.Total == 0 {
		return nil, fmt.Errorf("archive %s has an empty table of contents", filepath.Base(archivePath))
	}

	return listing, nil
}

// Restore loads a custom-format archive into the target database. Existing
// objects are dropped right before they are recreated.
func (s *Impl) Restore(ctx context.Context, cfg models.PostgresConfig, target, archivePath string) (*models.PostgresRestoreResult, error) {
	s.logger.Info().
		Str("host", cfg.Host).
		Str("database", target).
		Str("archive", archivePath).
		Msg("starting PostgreSQL restore")

	start := time.Now()
	result := &models.PostgresRestoreResult{Database: target}

	args := connectionArgs(cfg, target)
	args = append(args,
		"--no-owner",
		"--no-privileges",
		"--clean",
		"--if-exists",
		archivePath,
	)

	if execErr := s.executor.ExecuteWithEnv(ctx, passwordEnv(cfg), nil, nil, ToolRestore, args...); execErr != nil {
		result.Error = execErr
		result.Duration = time.Since(start)
		return result, nil //nolint:nilerr // error is stored in result struct by design
	}

	result.Duration = time.Since(start)

	s.logger.Info().
		Str("database", target).
		Dur("duration", result.Duration).
		Msg("PostgreSQL restore completed")

	return result, nil
}

// CheckTools verifies that every named client tool is on PATH.
func (s *Impl) CheckTools(names ...string) error {
	var missing []string
	for _, name := range names {
		path, err := s.executor.LookPath(name)
		if err != nil {
			missing = append(missing, name)
			continue
		}
		s.logger.Debug().Str("tool", name).Str("path", path).Msg("found client tool")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: required tools not found on PATH: %s", models.ErrConfig, strings.Join(missing, ", "))
	}

	return nil
}
