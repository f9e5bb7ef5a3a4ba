package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver, registered as "pgx"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // embedded ledger file, registered as "sqlite3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Connect opens the ledger database. driver is "sqlite3" (embedded file, the default)
// or "pgx" for a shared Postgres ledger.
func Connect(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case "", "sqlite", "sqlite3":
		driver = "sqlite3"
		if err := ensureDir(dsn); err != nil {
			return nil, err
		}
		dsn = sqliteDSN(dsn)
	case "pgx", "postgres":
		driver = "pgx"
	default:
		return nil, fmt.Errorf("unsupported ledger driver %q", driver)
	}
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		// single writer; sqlite serializes writes anyway and this avoids SQLITE_BUSY under load
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// sqliteDSN turns a bare path into a DSN with WAL and a busy timeout.
func sqliteDSN(dsn string) string {
	if strings.HasPrefix(dsn, "file:") || strings.Contains(dsn, "?") {
		return dsn
	}
	return "file:" + dsn + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
}

func ensureDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Migrate applies embedded migrations that have not been recorded in schema_migrations yet.
// It returns the names of the files it applied.
func Migrate(ctx context.Context, db *sqlx.DB) ([]string, error) {
	if _, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS schema_migrations (
            version TEXT PRIMARY KEY,
            applied_at TIMESTAMP NOT NULL
        )
    `); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations: %w", err)
	}
	var done []string
	if err := db.SelectContext(ctx, &done, `SELECT version FROM schema_migrations`); err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	applied := make(map[string]bool, len(done))
	for _, v := range done {
		applied[v] = true
	}

	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	var ran []string
	for _, f := range names {
		name := filepath.Base(f)
		if applied[name] {
			continue
		}
		body, err := migrationFiles.ReadFile(f)
		if err != nil {
			return ran, err
		}
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return ran, err
		}
		for _, stmt := range splitStatements(string(body)) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return ran, fmt.Errorf("migration %s: %w", name, err)
			}
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO schema_migrations(version, applied_at) VALUES (?, ?)`), name, time.Now().UTC()); err != nil {
			_ = tx.Rollback()
			return ran, fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return ran, err
		}
		ran = append(ran, name)
	}
	return ran, nil
}

// splitStatements splits on ';' at line ends and drops comment-only chunks.
func splitStatements(sql string) []string {
	var out []string
	for _, chunk := range strings.Split(sql, ";\n") {
		var lines []string
		for _, l := range strings.Split(chunk, "\n") {
			if t := strings.TrimSpace(l); t != "" && !strings.HasPrefix(t, "--") {
				lines = append(lines, l)
			}
		}
		if stmt := strings.TrimSuffix(strings.TrimSpace(strings.Join(lines, "\n")), ";"); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
