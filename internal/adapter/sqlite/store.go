package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"timetracker/internal/domain"
)

// Times are stored as Unix milliseconds in UTC.
const schema = `
CREATE TABLE IF NOT EXISTS time_entries (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	project_name TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	start_time   INTEGER NOT NULL,
	end_time     INTEGER,
	duration_ms  INTEGER CHECK (duration_ms IS NULL OR duration_ms >= 0),
	is_running   INTEGER NOT NULL DEFAULT 1,
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS time_entries_one_running
	ON time_entries(user_id) WHERE is_running = 1;
CREATE INDEX IF NOT EXISTS time_entries_user_start
	ON time_entries(user_id, start_time DESC);
`

const columns = "id, user_id, project_name, description, start_time, end_time, duration_ms, is_running, created_at, updated_at"

// Config holds the parameters for opening the store.
type Config struct {
	// Path is the database file. The parent directory must exist.
	Path string
	// PoolSize defaults to 4.
	PoolSize int
	Logger   *slog.Logger
}

// Store implements ports.TimeEntryStore on a SQLite database file. The
// partial unique index on (user_id) WHERE is_running = 1 makes the
// single-running-entry rule atomic across all connections.
type Store struct {
	pool *sqlitex.Pool
	log  *slog.Logger
	path string
}

// Open creates the pool, applies connection pragmas and ensures the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite: Path is required")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening %s: %w", cfg.Path, err)
	}

	conn, err := pool.Take(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("sqlite: take: %w", err)
	}
	err = sqlitex.ExecuteScript(conn, schema, nil)
	pool.Put(conn)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("sqlite: applying schema: %w", err)
	}

	log.Info("sqlite store opened", slog.String("path", cfg.Path), slog.Int("pool_size", poolSize))
	return &Store{pool: pool, log: log, path: cfg.Path}, nil
}

func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, e *domain.TimeEntry) (string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return "", fmt.Errorf("sqlite: take: %w", err)
	}
	defer s.pool.Put(conn)

	id := uuid.NewString()
	err = sqlitex.Execute(conn,
		"INSERT INTO time_entries ("+columns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		&sqlitex.ExecOptions{Args: []any{
			id,
			e.UserID,
			e.ProjectName,
			e.Description,
			e.StartTime.UnixMilli(),
			nullableMillis(e.EndTime),
			nullableInt(e.DurationMS),
			boolInt(e.IsRunning),
			e.CreatedAt.UnixMilli(),
			e.UpdatedAt.UnixMilli(),
		}},
	)
	if err != nil {
		if sqlite.ErrCode(err) == sqlite.ResultConstraintUnique {
			return "", domain.Conflictf("a time entry is already running")
		}
		return "", fmt.Errorf("sqlite: insert time entry: %w", err)
	}
	e.ID = id
	return id, nil
}

func (s *Store) FindRunning(ctx context.Context, userID string) (*domain.TimeEntry, error) {
	return s.queryOne(ctx,
		"SELECT "+columns+" FROM time_entries WHERE user_id = ? AND is_running = 1 LIMIT 1",
		userID,
	)
}

func (s *Store) FindByID(ctx context.Context, userID, id string) (*domain.TimeEntry, error) {
	return s.queryOne(ctx,
		"SELECT "+columns+" FROM time_entries WHERE id = ? AND user_id = ?",
		id, userID,
	)
}

// Update writes the mutable fields. The CASE guards let lifecycle columns
// change only on the running -> stopped transition.
func (s *Store) Update(ctx context.Context, e domain.TimeEntry) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite: take: %w", err)
	}
	defer s.pool.Put(conn)

	const q = `
UPDATE time_entries SET
	description = ?,
	updated_at  = ?,
	end_time    = CASE WHEN is_running = 1 AND ? = 0 THEN ? ELSE end_time END,
	duration_ms = CASE WHEN is_running = 1 AND ? = 0 THEN ? ELSE duration_ms END,
	is_running  = CASE WHEN is_running = 1 AND ? = 0 THEN 0 ELSE is_running END
WHERE id = ? AND user_id = ?`
	running := boolInt(e.IsRunning)
	err = sqlitex.Execute(conn, q, &sqlitex.ExecOptions{Args: []any{
		e.Description,
		e.UpdatedAt.UnixMilli(),
		running, nullableMillis(e.EndTime),
		running, nullableInt(e.DurationMS),
		running,
		e.ID, e.UserID,
	}})
	if err != nil {
		return fmt.Errorf("sqlite: update time entry: %w", err)
	}
	if conn.Changes() == 0 {
		return domain.NotFoundf("time entry %s not found", e.ID)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, userID, id string) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("sqlite: take: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, "DELETE FROM time_entries WHERE id = ? AND user_id = ?",
		&sqlitex.ExecOptions{Args: []any{id, userID}})
	if err != nil {
		return false, fmt.Errorf("sqlite: delete time entry: %w", err)
	}
	return conn.Changes() > 0, nil
}

func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]domain.TimeEntry, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite: take: %w", err)
	}
	defer s.pool.Put(conn)

	if limit <= 0 {
		limit = -1
	}
	out := make([]domain.TimeEntry, 0)
	err = sqlitex.Execute(conn,
		"SELECT "+columns+" FROM time_entries WHERE user_id = ? ORDER BY start_time DESC, id DESC LIMIT ?",
		&sqlitex.ExecOptions{
			Args: []any{userID, int64(limit)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, scanEntry(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("sqlite: list time entries: %w", err)
	}
	return out, nil
}

// Close blocks until borrowed connections are returned.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("sqlite: closing %s: %w", s.path, err)
	}
	s.log.Info("sqlite store closed", slog.String("path", s.path))
	return nil
}

func (s *Store) queryOne(ctx context.Context, query string, args ...any) (*domain.TimeEntry, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite: take: %w", err)
	}
	defer s.pool.Put(conn)

	var found *domain.TimeEntry
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			e := scanEntry(stmt)
			found = &e
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: query time entry: %w", err)
	}
	return found, nil
}

// scanEntry reads a row selected with the columns list.
func scanEntry(stmt *sqlite.Stmt) domain.TimeEntry {
	e := domain.TimeEntry{
		ID:          stmt.ColumnText(0),
		UserID:      stmt.ColumnText(1),
		ProjectName: stmt.ColumnText(2),
		Description: stmt.ColumnText(3),
		StartTime:   time.UnixMilli(stmt.ColumnInt64(4)).UTC(),
		IsRunning:   stmt.ColumnInt64(7) != 0,
		CreatedAt:   time.UnixMilli(stmt.ColumnInt64(8)).UTC(),
		UpdatedAt:   time.UnixMilli(stmt.ColumnInt64(9)).UTC(),
	}
	if !stmt.ColumnIsNull(5) {
		end := time.UnixMilli(stmt.ColumnInt64(5)).UTC()
		e.EndTime = &end
	}
	if !stmt.ColumnIsNull(6) {
		d := stmt.ColumnInt64(6)
		e.DurationMS = &d
	}
	return e
}

func nullableMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
