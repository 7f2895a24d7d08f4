// Package workspace prepares the local backup directory.
package workspace

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ewiniecke/nb27-backup/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the interface for workspace preparation.
type Service interface {
	Ensure(cfg models.WorkspaceConfig) error
}

// Impl implements the workspace Service interface.
type Impl struct {
	logger zerolog.Logger
}

// New creates a new workspace service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{logger: logger}
}

// ExclusionRules returns the version-control exclusion rules for a backup directory.
func ExclusionRules(dir string) []string {
	base := filepath.ToSlash(filepath.Clean(dir))
	return []string{
		strings.TrimSuffix(base, "/") + "/",
		"*.dump",
		"*.sha256",
	}
}

// Ensure creates the backup directory and appends any missing exclusion rules
// to the gitignore file. Rules already present are left alone.
func (s *Impl) Ensure(cfg models.WorkspaceConfig) error {
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	if cfg.GitignorePath == "" {
		return nil
	}

	existing, err := readLines(cfg.GitignorePath)
	if err != nil {
		return err
	}

	var missing []string
	for _, rule := range ExclusionRules(relativeTo(cfg.GitignorePath, cfg.Dir)) {
		if !existing[rule] {
			missing = append(missing, rule)
		}
	}

	if len(missing) == 0 {
		s.logger.Debug().Str("gitignore", cfg.GitignorePath).Msg("exclusion rules already present")
		return nil
	}

	f, err := os.OpenFile(cfg.GitignorePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // path is operator controlled
	if err != nil {
		return fmt.Errorf("failed to open gitignore: %w", err)
	}
	defer func() { _ = f.Close() }()

	var b strings.Builder
	if needsNewline(cfg.GitignorePath) {
		b.WriteString("\n")
	}
	for _, rule := range missing {
		b.WriteString(rule)
		b.WriteString("\n")
	}

	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("failed to update gitignore: %w", err)
	}

	s.logger.Info().
		Str("gitignore", cfg.GitignorePath).
		Strs("rules", missing).
		Msg("added backup exclusion rules")

	return nil
}

// relativeTo expresses dir relative to the directory holding the gitignore file
// when dir lives below it.
func relativeTo(gitignorePath, dir string) string {
	rel, err := filepath.Rel(filepath.Dir(gitignorePath), dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return dir
	}
	return rel
}

func readLines(path string) (map[string]bool, error) {
	lines := map[string]bool{}

	f, err := os.Open(path) //nolint:gosec // path is operator controlled
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return lines, nil
		}
		return nil, fmt.Errorf("failed to read gitignore: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines[strings.TrimSpace(scanner.Text())] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read gitignore: %w", err)
	}

	return lines, nil
}

// needsNewline reports whether the file is non-empty and lacks a trailing newline.
func needsNewline(path string) bool {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator controlled
	if err != nil || len(data) == 0 {
		return false
	}
	return data[len(data)-1] != '\n'
}
