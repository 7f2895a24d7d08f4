// Package config builds the run configuration from the environment, an optional
// .env file and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ewiniecke/nb27-backup/internal/models"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Defaults shared by the dump and restore procedures.
const (
	DefaultPort          = 5432
	DefaultDatabase      = "nhl_beyond"
	DefaultRestoreUser   = "postgres"
	DefaultPrefix        = "backups/"
	DefaultWorkspaceDir  = "backups"
	DefaultGitignorePath = ".gitignore"
	DefaultDotEnvFile    = ".env"
	DefaultCompressLevel = 9
	DefaultTOCEntries    = 20
)

// envBindings maps config keys to the environment variables that set them,
// in precedence order.
var envBindings = map[string][]string{
	"postgres.host":          {"PGHOST"},
	"postgres.port":          {"PGPORT"},
	"postgres.username":      {"PGUSER"},
	"postgres.password":      {"PGPASSWORD"},
	"postgres.database":      {"PGDATABASE"},
	"restore.target_db":      {"TARGET_DB"},
	"restore.reset_db":       {"RESET_DB"},
	"archive.bucket":         {"S3_BUCKET_NAME", "BUCKET"},
	"archive.prefix":         {"S3_PREFIX"},
	"archive.region":         {"AWS_REGION"},
	"archive.profile":        {"AWS_PROFILE"},
	"archive.endpoint":       {"S3_ENDPOINT_URL"},
	"archive.use_path_style": {"S3_USE_PATH_STYLE"},
	"archive.access_key_id":  {"AWS_ACCESS_KEY_ID"},
	"archive.secret_key":     {"AWS_SECRET_ACCESS_KEY"},
	"workspace.dir":          {"BACKUP_DIR"},
	"workspace.gitignore":    {"BACKUP_GITIGNORE"},
	"dump.compress_level":    {"DUMP_COMPRESS_LEVEL"},
	"dump.toc_entries":       {"DUMP_TOC_ENTRIES"},
	"dump.verify_archive":    {"DUMP_VERIFY_ARCHIVE"},
	"telegram.bot_token":     {"TELEGRAM_BOT_TOKEN"},
	"telegram.chat_id":       {"TELEGRAM_CHAT_ID"},
	"metrics.textfile":       {"METRICS_TEXTFILE"},
}

// Parser handles configuration loading.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser with defaults and env bindings applied.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("postgres.port", DefaultPort)
	v.SetDefault("postgres.database", DefaultDatabase)
	v.SetDefault("restore.reset_db", false)
	v.SetDefault("archive.prefix", DefaultPrefix)
	v.SetDefault("workspace.dir", DefaultWorkspaceDir)
	v.SetDefault("workspace.gitignore", DefaultGitignorePath)
	v.SetDefault("dump.compress_level", DefaultCompressLevel)
	v.SetDefault("dump.toc_entries", DefaultTOCEntries)
	v.SetDefault("dump.verify_archive", true)

	for key, names := range envBindings {
		_ = v.BindEnv(append([]string{key}, names...)...)
	}

	return &Parser{v: v}
}

// Load reads the optional YAML config file and .env file, then resolves the
// configuration. An empty configFile is skipped. An empty dotEnvFile falls back
// to ".env" in the working directory when it exists.
func (p *Parser) Load(configFile, dotEnvFile string) (*models.Config, error) {
	if configFile != "" {
		p.v.SetConfigFile(configFile)
		if err := p.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := p.loadDotEnv(dotEnvFile); err != nil {
		return nil, err
	}

	return p.parse()
}

// LoadReader loads configuration from YAML content (useful for testing).
func (p *Parser) LoadReader(content string) (*models.Config, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

// loadDotEnv fills keys from a dotenv file. Values already present in the
// process environment win.
func (p *Parser) loadDotEnv(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultDotEnvFile
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("reading env file: %w", err)
	}

	dv := viper.New()
	dv.SetConfigType("env")
	dv.SetConfigFile(path)
	if err := dv.ReadInConfig(); err != nil {
		return fmt.Errorf("reading env file: %w", err)
	}

	for key, names := range envBindings {
		if anyEnvSet(names) {
			continue
		}
		for _, name := range names {
			if dv.IsSet(name) {
				p.v.Set(key, dv.GetString(name))
				break
			}
		}
	}

	return nil
}

func anyEnvSet(names []string) bool {
	for _, name := range names {
		if _, ok := os.LookupEnv(name); ok {
			return true
		}
	}
	return false
}

func (p *Parser) parse() (*models.Config, error) {
	st := &strictReader{v: p.v}
	cfg := &models.Config{
		Postgres: models.PostgresConfig{
			Host:     p.v.GetString("postgres.host"),
			Port:     st.int("postgres.port"),
			Database: p.v.GetString("postgres.database"),
			Username: p.v.GetString("postgres.username"),
			Password: p.v.GetString("postgres.password"),
		},
		Archive: models.ArchiveConfig{
			Bucket:       p.v.GetString("archive.bucket"),
			Prefix:       normalizePrefix(p.v.GetString("archive.prefix")),
			Region:       p.v.GetString("archive.region"),
			Profile:      p.v.GetString("archive.profile"),
			Endpoint:     p.v.GetString("archive.endpoint"),
			UsePathStyle: st.bool("archive.use_path_style"),

			AccessKeyID:     p.v.GetString("archive.access_key_id"),
			SecretAccessKey: p.v.GetString("archive.secret_key"),
		},
		Workspace: models.WorkspaceConfig{
			Dir:           p.expandEnv(p.v.GetString("workspace.dir")),
			GitignorePath: p.v.GetString("workspace.gitignore"),
		},
		Dump: models.DumpSettings{
			CompressLevel: st.int("dump.compress_level"),
			TOCEntries:    st.int("dump.toc_entries"),
			VerifyArchive: st.bool("dump.verify_archive"),
		},
		Restore: models.RestoreSettings{
			TargetDB: p.v.GetString("restore.target_db"),
			ResetDB:  st.bool("restore.reset_db"),
		},
		Metrics: models.MetricsSettings{
			Textfile: p.expandEnv(p.v.GetString("metrics.textfile")),
		},
	}

	if err := st.err(); err != nil {
		return nil, err
	}

	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = DefaultPort
	}
	if cfg.Postgres.Database == "" {
		cfg.Postgres.Database = DefaultDatabase
	}
	if cfg.Restore.TargetDB == "" {
		cfg.Restore.TargetDB = cfg.Postgres.Database
	}
	if cfg.Workspace.Dir == "" {
		cfg.Workspace.Dir = DefaultWorkspaceDir
	}

	botToken := p.v.GetString("telegram.bot_token")
	chatID := p.v.GetString("telegram.chat_id")
	if botToken != "" || chatID != "" {
		if botToken == "" {
			return nil, fmt.Errorf("%w: TELEGRAM_BOT_TOKEN is required when TELEGRAM_CHAT_ID is set", models.ErrConfig)
		}
		if chatID == "" {
			return nil, fmt.Errorf("%w: TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set", models.ErrConfig)
		}
		cfg.Telegram = &models.TelegramConfig{BotToken: botToken, ChatID: chatID}
	}

	return cfg, nil
}

// strictReader reads numeric and boolean keys, collecting values that do not
// parse. viper's typed getters turn those into zero values silently.
type strictReader struct {
	v       *viper.Viper
	invalid []string
}

func (r *strictReader) int(key string) int {
	n, err := cast.ToIntE(r.v.Get(key))
	if err != nil {
		r.reject(key)
	}
	return n
}

func (r *strictReader) bool(key string) bool {
	b, err := cast.ToBoolE(r.v.Get(key))
	if err != nil {
		r.reject(key)
	}
	return b
}

func (r *strictReader) reject(key string) {
	name := key
	if names := envBindings[key]; len(names) > 0 {
		name = names[0]
	}
	for _, env := range envBindings[key] {
		if _, ok := os.LookupEnv(env); ok {
			name = env
			break
		}
	}
	r.invalid = append(r.invalid, fmt.Sprintf("%s=%q", name, r.v.GetString(key)))
}

func (r *strictReader) err() error {
	if len(r.invalid) == 0 {
		return nil
	}
	return fmt.Errorf("%w: invalid values: %s", models.ErrConfig, strings.Join(r.invalid, ", "))
}

// normalizePrefix makes a non-empty key prefix end with a slash.
func normalizePrefix(prefix string) string {
	prefix = strings.TrimLeft(prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}
