// Package db holds the bot's small amount of persistent state: what was last
// compared, the svn revision map, and a log of posted notifications.
package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

//go:generate go tool github.com/sqlc-dev/sqlc/cmd/sqlc generate

//go:embed migrations/*.sql
var migrationFS embed.FS

var migrationPattern = regexp.MustCompile(`^(\d{3})-.*\.sql$`)

var pragmas = []struct{ name, stmt string }{
	{"enable foreign keys", "PRAGMA foreign_keys=ON;"},
	{"set WAL", "PRAGMA journal_mode=wal;"},
	{"set busy_timeout", "PRAGMA busy_timeout=1000;"},
}

// Open opens an sqlite database. The watcher and the HTTP handlers share it,
// so WAL and a busy timeout are set.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", p.name, err)
		}
	}
	return db, nil
}

// MigrationFunc is told about each migration applied.
type MigrationFunc func(name string, start, end time.Time)

// RunMigrations applies the embedded NNN-*.sql files not yet recorded in the
// migrations table, in numeric order. onApplied may be nil.
func RunMigrations(ctx context.Context, db *sql.DB, onApplied MigrationFunc) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var migrations []string
	for _, e := range entries {
		if !e.IsDir() && migrationPattern.MatchString(e.Name()) {
			migrations = append(migrations, e.Name())
		}
	}
	sort.Strings(migrations)

	executed, err := executedMigrations(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		n, err := strconv.Atoi(migrationPattern.FindStringSubmatch(m)[1])
		if err != nil {
			return fmt.Errorf("parse migration number %s: %w", m, err)
		}
		if executed[n] {
			continue
		}
		start := time.Now()
		if err := executeMigration(ctx, db, m); err != nil {
			return fmt.Errorf("execute %s: %w", m, err)
		}
		slog.Info("db: applied migration", "file", m, "number", n)
		if onApplied != nil {
			onApplied(m, start, time.Now())
		}
	}
	return nil
}

func executedMigrations(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	executed := make(map[int]bool)
	var name string
	err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='migrations'").Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Info("db: migrations table not found; running all migrations")
		return executed, nil
	}
	if err != nil {
		return nil, fmt.Errorf("check migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT migration_number FROM migrations")
	if err != nil {
		return nil, fmt.Errorf("query executed migrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan migration number: %w", err)
		}
		executed[n] = true
	}
	return executed, rows.Err()
}

func executeMigration(ctx context.Context, db *sql.DB, filename string) error {
	content, err := migrationFS.ReadFile("migrations/" + filename)
	if err != nil {
		return fmt.Errorf("read %s: %w", filename, err)
	}
	if _, err := db.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("exec %s: %w", filename, err)
	}
	return nil
}
