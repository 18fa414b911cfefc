package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	driver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"timetracker/internal/domain"
)

// errDuplicateEntry is MySQL's ER_DUP_ENTRY.
const errDuplicateEntry = 1062

const columns = "id, user_id, project_name, description, start_time, end_time, duration_ms, is_running, created_at, updated_at"

// Client implements ports.TimeEntryStore on the time_entries table created
// by internal/migrate.
type Client struct {
	db  *sql.DB
	log *slog.Logger
}

// NewClient opens a MySQL connection using the provided DSN.
// Example DSN: user:pass@tcp(host:3306)/dbname
// The DSN is normalised with NormalizeDSN. The initial ping is retried with
// exponential backoff so the service can start alongside its database.
func NewClient(ctx context.Context, dsn string, log *slog.Logger) (*Client, error) {
	if dsn == "" {
		return nil, errors.New("mysql: DSN is required")
	}
	normalized, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", normalized)
	if err != nil {
		return nil, err
	}
	// Conservative pool defaults; can be adjusted via env later.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ping := func() error {
		c, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(c)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	notify := func(err error, wait time.Duration) {
		log.Warn("mysql not ready, retrying", slog.String("error", err.Error()), slog.Duration("wait", wait))
	}
	if err := backoff.RetryNotify(ping, policy, notify); err != nil {
		db.Close()
		return nil, err
	}
	return &Client{db: db, log: log}, nil
}

// NormalizeDSN forces the driver options the store relies on: UTC time
// parsing, and found-rows semantics so an UPDATE that matches a row without
// changing it still reports one affected row.
func NormalizeDSN(dsn string) (string, error) {
	cfg, err := driver.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("mysql: parse DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}

func (c *Client) Insert(ctx context.Context, e *domain.TimeEntry) (string, error) {
	id := uuid.NewString()
	const q = "INSERT INTO time_entries (" + columns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	_, err := c.db.ExecContext(ctx, q,
		id,
		e.UserID,
		e.ProjectName,
		e.Description,
		e.StartTime.UTC(),
		nullableTime(e.EndTime),
		nullableInt(e.DurationMS),
		e.IsRunning,
		e.CreatedAt.UTC(),
		e.UpdatedAt.UTC(),
	)
	if err != nil {
		var me *driver.MySQLError
		if errors.As(err, &me) && me.Number == errDuplicateEntry {
			return "", domain.Conflictf("a time entry is already running")
		}
		return "", fmt.Errorf("mysql: insert time entry: %w", err)
	}
	e.ID = id
	c.log.Debug("mysql inserted time entry", slog.String("id", id), slog.String("user", e.UserID))
	return id, nil
}

func (c *Client) FindRunning(ctx context.Context, userID string) (*domain.TimeEntry, error) {
	// running_user_id is only set on running rows, so this is a unique key lookup.
	row := c.db.QueryRowContext(ctx,
		"SELECT "+columns+" FROM time_entries WHERE running_user_id = ?", userID)
	return scanOne(row)
}

func (c *Client) FindByID(ctx context.Context, userID, id string) (*domain.TimeEntry, error) {
	row := c.db.QueryRowContext(ctx,
		"SELECT "+columns+" FROM time_entries WHERE id = ? AND user_id = ?", id, userID)
	return scanOne(row)
}

// Update writes the mutable fields. The CASE guards let lifecycle columns
// change only on the running -> stopped transition; is_running is assigned
// last because MySQL evaluates SET clauses left to right.
func (c *Client) Update(ctx context.Context, e domain.TimeEntry) error {
	const q = `
UPDATE time_entries SET
  description = ?,
  updated_at  = ?,
  end_time    = CASE WHEN is_running = 1 AND ? = 0 THEN ? ELSE end_time END,
  duration_ms = CASE WHEN is_running = 1 AND ? = 0 THEN ? ELSE duration_ms END,
  is_running  = CASE WHEN is_running = 1 AND ? = 0 THEN 0 ELSE is_running END
WHERE id = ? AND user_id = ?`
	res, err := c.db.ExecContext(ctx, q,
		e.Description,
		e.UpdatedAt.UTC(),
		e.IsRunning, nullableTime(e.EndTime),
		e.IsRunning, nullableInt(e.DurationMS),
		e.IsRunning,
		e.ID, e.UserID,
	)
	if err != nil {
		return fmt.Errorf("mysql: update time entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mysql: update time entry: %w", err)
	}
	if n == 0 {
		return domain.NotFoundf("time entry %s not found", e.ID)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, userID, id string) (bool, error) {
	res, err := c.db.ExecContext(ctx, "DELETE FROM time_entries WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return false, fmt.Errorf("mysql: delete time entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mysql: delete time entry: %w", err)
	}
	return n > 0, nil
}

func (c *Client) ListByUser(ctx context.Context, userID string, limit int) ([]domain.TimeEntry, error) {
	q := "SELECT " + columns + " FROM time_entries WHERE user_id = ? ORDER BY start_time DESC, id DESC"
	args := []any{userID}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("mysql: list time entries: %w", err)
	}
	defer rows.Close()

	out := make([]domain.TimeEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mysql: list time entries: %w", err)
	}
	return out, nil
}

// Close closes the underlying DB.
func (c *Client) Close() error { return c.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row *sql.Row) (*domain.TimeEntry, error) {
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanEntry(s scanner) (domain.TimeEntry, error) {
	var (
		e        domain.TimeEntry
		end      sql.NullTime
		duration sql.NullInt64
	)
	err := s.Scan(
		&e.ID,
		&e.UserID,
		&e.ProjectName,
		&e.Description,
		&e.StartTime,
		&end,
		&duration,
		&e.IsRunning,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return e, err
	}
	if err != nil {
		return e, fmt.Errorf("mysql: scan time entry: %w", err)
	}
	if end.Valid {
		t := end.Time.UTC()
		e.EndTime = &t
	}
	if duration.Valid {
		d := duration.Int64
		e.DurationMS = &d
	}
	e.StartTime = e.StartTime.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
