package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

// Migration is one embedded schema file named <version>_<name>.sql.
type Migration struct {
	Version int
	Name    string
	File    string
}

// SQL returns the statement batch of m.
func (m Migration) SQL() (string, error) {
	b, err := fs.ReadFile(migrationsFS, path.Join("sql", m.File))
	if err != nil {
		return "", fmt.Errorf("read migration %s: %w", m.File, err)
	}
	return string(b), nil
}

// Run applies pending time_entries schema migrations. The whole file is sent
// as one batch, so multiStatements is forced on for the migration connection.
// A version recorded under a different name than the embedded file is an
// error: renumbered migrations must not be skipped silently.
func Run(ctx context.Context, dsn string, log *slog.Logger) error {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fmt.Errorf("migrate: parse DSN: %w", err)
	}
	cfg.MultiStatements = true
	cfg.ParseTime = true

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return err
	}
	defer db.Close()

	c, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(c); err != nil {
		return err
	}

	migrations, err := List()
	if err != nil {
		return err
	}

	h := history{db: db}
	if err := h.ensure(ctx); err != nil {
		return err
	}
	applied, err := h.applied(ctx)
	if err != nil {
		return err
	}

	for _, m := range Pending(migrations, applied) {
		batch, err := m.SQL()
		if err != nil {
			return err
		}
		log.Info("applying migration", slog.Int("version", m.Version), slog.String("name", m.Name))
		if _, err := db.ExecContext(ctx, batch); err != nil {
			return fmt.Errorf("applying %s: %w", m.File, err)
		}
		if err := h.record(ctx, m); err != nil {
			return err
		}
	}
	for v, name := range applied {
		for _, m := range migrations {
			if m.Version == v && m.Name != name {
				return fmt.Errorf("migration %d was applied as %q but is embedded as %q", v, name, m.Name)
			}
		}
	}
	log.Debug("schema up to date", slog.Int("migrations", len(migrations)))
	return nil
}

// Pending returns the migrations whose version is not in applied, in order.
func Pending(migrations []Migration, applied map[int]string) []Migration {
	var out []Migration
	for _, m := range migrations {
		if _, ok := applied[m.Version]; !ok {
			out = append(out, m)
		}
	}
	return out
}

// List returns the embedded migrations ordered by version. Duplicate versions
// are rejected.
func List() ([]Migration, error) {
	files, err := fs.Glob(migrationsFS, "sql/*.sql")
	if err != nil {
		return nil, err
	}

	out := make([]Migration, 0, len(files))
	seen := make(map[int]string, len(files))
	for _, f := range files {
		m, err := parseMigration(path.Base(f))
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[m.Version]; ok {
			return nil, fmt.Errorf("duplicate migration version %d: %s and %s", m.Version, prev, m.File)
		}
		seen[m.Version] = m.File
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// parseMigration splits "0001_create_time_entries.sql" into version 1 and
// name "create_time_entries".
func parseMigration(file string) (Migration, error) {
	stem, ok := strings.CutSuffix(file, ".sql")
	if !ok {
		return Migration{}, fmt.Errorf("invalid migration filename %q: not a .sql file", file)
	}
	num, name, ok := strings.Cut(stem, "_")
	if !ok || num == "" || name == "" {
		return Migration{}, fmt.Errorf("invalid migration filename %q: want <version>_<name>.sql", file)
	}
	v, err := strconv.Atoi(num)
	if err != nil || v <= 0 {
		return Migration{}, fmt.Errorf("invalid migration filename %q: version must be a positive number", file)
	}
	return Migration{Version: v, Name: name, File: file}, nil
}

// history is the schema_migrations table.
type history struct {
	db *sql.DB
}

func (h history) ensure(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    BIGINT       NOT NULL PRIMARY KEY,
	name       VARCHAR(255) NOT NULL,
	applied_at DATETIME(3)  NOT NULL
) ENGINE=InnoDB`
	if _, err := h.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

// applied maps each recorded version to the name it was applied under.
func (h history) applied(ctx context.Context) (map[int]string, error) {
	rows, err := h.db.QueryContext(ctx, "SELECT version, name FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]string)
	for rows.Next() {
		var (
			v    int
			name string
		)
		if err := rows.Scan(&v, &name); err != nil {
			return nil, fmt.Errorf("read schema_migrations: %w", err)
		}
		out[v] = name
	}
	return out, rows.Err()
}

func (h history) record(ctx context.Context, m Migration) error {
	_, err := h.db.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
		m.Version, m.Name, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record migration %d: %w", m.Version, err)
	}
	return nil
}
