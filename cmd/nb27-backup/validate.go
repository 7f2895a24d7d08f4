package main

import (
	"fmt"
	"io"

	"github.com/ewiniecke/nb27-backup/internal/config"
	"github.com/ewiniecke/nb27-backup/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the resolved configuration",
	Long:  `Resolve the configuration from the environment and files and print a summary without running anything.`,
	Args:  cobra.NoArgs,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("configuration validation failed")
		return err
	}

	printSummary(cmd.OutOrStdout(), cfg)
	return nil
}

func printSummary(w io.Writer, cfg *models.Config) {
	p := func(format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

	p("Configuration is valid!\n\n")

	p("PostgreSQL:\n")
	p("  Host: %s\n", orUnset(cfg.Postgres.Host))
	p("  Port: %d\n", cfg.Postgres.Port)
	p("  Database: %s\n", cfg.Postgres.Database)
	p("  User: %s\n", orUnset(cfg.Postgres.Username))
	p("  Password: %s\n", mask(cfg.Postgres.Password))

	p("\nDump:\n")
	p("  Directory: %s\n", cfg.Workspace.Dir)
	p("  Gitignore: %s\n", orUnset(cfg.Workspace.GitignorePath))
	p("  Compression: %d\n", cfg.Dump.CompressLevel)
	p("  TOC entries shown: %d\n", cfg.Dump.TOCEntries)
	p("  Verify archive: %v\n", cfg.Dump.VerifyArchive)

	p("\nRestore:\n")
	p("  Target database: %s\n", cfg.Restore.TargetDB)
	p("  Reset database: %v\n", cfg.Restore.ResetDB)

	p("\nArchive:\n")
	if cfg.Archive.Enabled() {
		p("  Bucket: %s\n", cfg.Archive.Bucket)
		p("  Prefix: %s\n", cfg.Archive.Prefix)
		p("  Region: %s\n", orUnset(cfg.Archive.Region))
		p("  Profile: %s\n", orUnset(cfg.Archive.Profile))
		if cfg.Archive.AccessKeyID != "" {
			p("  Access key: %s\n", mask(cfg.Archive.AccessKeyID))
			p("  Secret key: %s\n", mask(cfg.Archive.SecretAccessKey))
		}
		if cfg.Archive.Endpoint != "" {
			p("  Endpoint: %s\n", cfg.Archive.Endpoint)
		}
	} else {
		p("  (no bucket configured, dumps stay local)\n")
	}

	p("\nOptional Features:\n")
	p("  Telegram: %v\n", cfg.Telegram != nil)
	p("  Metrics textfile: %s\n", orUnset(cfg.Metrics.Textfile))

	if cfg.Telegram != nil {
		p("\nTelegram Configuration:\n")
		p("  Chat ID: %s\n", cfg.Telegram.ChatID)
		p("  Bot Token: %s\n", mask(cfg.Telegram.BotToken))
	}
}

func mask(secret string) string {
	if secret == "" {
		return "(unset)"
	}
	return "(configured)"
}

func orUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}
