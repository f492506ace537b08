// Package migrations applies the embedded SQL schema.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

//go:embed sql/*.sql
var files embed.FS

// Migration is a single versioned schema file.
type Migration struct {
	Version string
	Name    string
	SQL     string
}

// Migrator applies pending migrations, one transaction per file, and records
// each applied version in schema_migrations.
type Migrator struct {
	db     *sqlx.DB
	source fs.FS
	logger *zap.Logger
	now    func() time.Time
}

// NewMigrator creates a migrator over the embedded schema files.
func NewMigrator(db *sqlx.DB, logger *zap.Logger) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{db: db, source: files, logger: logger, now: time.Now}
}

const createTrackingTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version VARCHAR(255) PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Load returns the available migrations ordered by version.
func (m *Migrator) Load() ([]Migration, error) {
	entries, err := fs.Glob(m.source, "sql/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(entries)

	migrations := make([]Migration, 0, len(entries))
	for _, entry := range entries {
		name := path.Base(entry)
		version, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, fmt.Errorf("migration %s: name must be <version>_<description>.sql", name)
		}
		content, err := fs.ReadFile(m.source, entry)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		migrations = append(migrations, Migration{Version: version, Name: name, SQL: string(content)})
	}
	return migrations, nil
}

// Up applies every pending migration and returns how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	if _, err := m.db.ExecContext(ctx, createTrackingTable); err != nil {
		return 0, fmt.Errorf("create migration tracking table: %w", err)
	}

	migrations, err := m.Load()
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, migration := range migrations {
		done, err := m.isApplied(ctx, migration.Version)
		if err != nil {
			return applied, err
		}
		if done {
			m.logger.Debug("migration already applied", zap.String("migration", migration.Name))
			continue
		}
		if err := m.apply(ctx, migration); err != nil {
			return applied, err
		}
		m.logger.Info("migration applied", zap.String("migration", migration.Name))
		applied++
	}
	return applied, nil
}

func (m *Migrator) isApplied(ctx context.Context, version string) (bool, error) {
	var exists int
	err := m.db.GetContext(ctx, &exists, `SELECT 1 FROM schema_migrations WHERE version = $1`, version)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	return true, nil
}

func (m *Migrator) apply(ctx context.Context, migration Migration) (err error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", migration.Name, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, migration.SQL); err != nil {
		return fmt.Errorf("execute migration %s: %w", migration.Name, err)
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2)`, migration.Version, m.now().UTC()); err != nil {
		return fmt.Errorf("record migration %s: %w", migration.Name, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", migration.Name, err)
	}
	return nil
}
