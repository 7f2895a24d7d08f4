package postgres

import (
	"context"
	"fmt"

	"github.com/ewiniecke/nb27-backup/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// MaintenanceDatabase is the database used for server-level statements.
const MaintenanceDatabase = "postgres"

// Admin defines database-level operations that run over a direct connection.
type Admin interface {
	ResetDatabase(ctx context.Context, cfg models.PostgresConfig, name string) error
	TableStats(ctx context.Context, cfg models.PostgresConfig, name string) ([]models.TableStat, error)
}

// PgxAdmin implements Admin with jackc/pgx.
type PgxAdmin struct {
	logger zerolog.Logger
}

// NewAdmin creates a new pgx-backed admin.
func NewAdmin(logger zerolog.Logger) *PgxAdmin {
	return &PgxAdmin{logger: logger}
}

// ConnConfig builds a pgx connection config for the given database. Unset
// fields keep the libpq defaults.
func ConnConfig(cfg models.PostgresConfig, database string) (*pgx.ConnConfig, error) {
	connCfg, err := pgx.ParseConfig("")
	if err != nil {
		return nil, fmt.Errorf("failed to build connection config: %w", err)
	}

	if cfg.Host != "" {
		connCfg.Host = cfg.Host
	}
	if cfg.Port > 0 && cfg.Port <= 65535 {
		connCfg.Port = uint16(cfg.Port)
	}
	if cfg.Username != "" {
		connCfg.User = cfg.Username
	}
	if cfg.Password != "" {
		connCfg.Password = cfg.Password
	}
	connCfg.Database = database

	return connCfg, nil
}

func (a *PgxAdmin) connect(ctx context.Context, cfg models.PostgresConfig, database string) (*pgx.Conn, error) {
	connCfg, err := ConnConfig(cfg, database)
	if err != nil {
		return nil, err
	}

	conn, err := pgx.ConnectConfig(ctx, connCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", database, err)
	}
	return conn, nil
}

// ResetDatabase drops the named database if it exists and creates it empty.
// Open sessions on it are terminated first.
func (a *PgxAdmin) ResetDatabase(ctx context.Context, cfg models.PostgresConfig, name string) error {
	if name == MaintenanceDatabase {
		return fmt.Errorf("refusing to reset the %s maintenance database", MaintenanceDatabase)
	}

	conn, err := a.connect(ctx, cfg, MaintenanceDatabase)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close(ctx) }()

	if _, err := conn.Exec(ctx,
		"SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1 AND pid <> pg_backend_pid()",
		name,
	); err != nil {
		a.logger.Warn().Err(err).Str("database", name).Msg("failed to terminate active sessions")
	}

	ident := pgx.Identifier{name}.Sanitize()

	a.logger.Warn().Str("database", name).Msg("dropping database")
	if _, err := conn.Exec(ctx, "DROP DATABASE IF EXISTS "+ident); err != nil {
		return fmt.Errorf("failed to drop database %s: %w", name, err)
	}

	if _, err := conn.Exec(ctx, "CREATE DATABASE "+ident); err != nil {
		return fmt.Errorf("failed to create database %s: %w", name, err)
	}

	a.logger.Info().Str("database", name).Msg("database recreated")
	return nil
}

const userTablesQuery = `
	SELECT n.nspname, c.relname
	FROM pg_catalog.pg_class c
	JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
	WHERE c.relkind IN ('r', 'p')
	  AND n.nspname NOT IN ('pg_catalog', 'information_schema')
	  AND n.nspname NOT LIKE 'pg_toast%'
	ORDER BY n.nspname, c.relname`

// TableStats returns every user table in the database with its exact row count.
func (a *PgxAdmin) TableStats(ctx context.Context, cfg models.PostgresConfig, name string) ([]models.TableStat, error) {
	conn, err := a.connect(ctx, cfg, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close(ctx) }()

	rows, err := conn.Query(ctx, userTablesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	stats, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.TableStat, error) {
		var st models.TableStat
		err := row.Scan(&st.Schema, &st.Name)
		return st, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read tables: %w", err)
	}

	for i := range stats {
		ident := pgx.Identifier{stats[i].Schema, stats[i].Name}.Sanitize()
		if err := conn.QueryRow(ctx, "SELECT count(*) FROM "+ident).Scan(&stats[i].Rows); err != nil {
			return nil, fmt.Errorf("failed to count rows in %s: %w", ident, err)
		}
	}

	return stats, nil
}
