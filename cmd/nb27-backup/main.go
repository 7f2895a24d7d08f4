// Package main is the entry point for nb27-backup.
package main

import (
	"os"

	"github.com/ewiniecke/nb27-backup/internal/services/runner"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(runner.ExitCode(err))
	}
}
