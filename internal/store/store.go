// Package store provides the local SQLite mirror of the remote board.
//
// The store runs in embedded mode with WAL for concurrent reads. It holds
// one row per task key plus a meta table for sync diagnostics (last board,
// last sprint, last sync epoch and method, unmapped status labels).
//
// The sync pipeline upserts remote-origin rows and prunes the ones a run
// failed to refresh; local-origin rows belong to the user and are never
// touched by either step.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kanbo-dev/kanbo/internal/schema"
	"github.com/kanbo-dev/kanbo/internal/status"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrTaskNotFound is returned when a lookup by key matches nothing.
var ErrTaskNotFound = errors.New("task not found")

// Meta keys the sync pipeline persists as diagnostics.
const (
	MetaBoardID        = "board_id"
	MetaBoardName      = "board_name"
	MetaSprintID       = "sprint_id"
	MetaSprintName     = "sprint_name"
	MetaSprintState    = "sprint_state"
	MetaLastSyncEpoch  = "last_sync_epoch"
	MetaLastSyncMethod = "last_sync_method"
	MetaUnmappedLabels = "unmapped_labels"
)

// DB wraps the SQLite connection for the board mirror.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a database connection at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// If it doesn't exist it is created; call InitSchema before first use.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	db, err := store.Open(".kanbo/board.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn: conn,
		path: path,
	}

	// WAL mode for concurrent reads during sync writes
	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
// Idempotent - safe to call multiple times.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS tasks (
		key TEXT PRIMARY KEY,
		summary TEXT NOT NULL,
		raw_status TEXT NOT NULL DEFAULT '',
		board_column TEXT NOT NULL,
		sprint_name TEXT NOT NULL DEFAULT '',
		sprint_state TEXT NOT NULL DEFAULT '',
		assignee TEXT NOT NULL DEFAULT '',
		avatar_url TEXT NOT NULL DEFAULT '',
		due_at TEXT,
		priority TEXT NOT NULL DEFAULT '',
		story_points REAL,
		remote_updated TEXT,
		sync_epoch INTEGER NOT NULL,
		origin TEXT NOT NULL DEFAULT 'remote',
		raw TEXT
	);

	-- Diagnostics and sync bookkeeping
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_column ON tasks(board_column);
	CREATE INDEX IF NOT EXISTS idx_tasks_origin ON tasks(origin);
	CREATE INDEX IF NOT EXISTS idx_tasks_epoch ON tasks(sync_epoch);

	-- Composite index driving the prune query
	CREATE INDEX IF NOT EXISTS idx_tasks_prune ON tasks(origin, sync_epoch);
	`

	if _, err := db.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// UpsertTask inserts or replaces a task by key.
func (db *DB) UpsertTask(task *schema.Task) error {
	return db.UpsertTaskContext(context.Background(), task)
}

// UpsertTaskContext inserts or replaces a task with context support.
func (db *DB) UpsertTaskContext(ctx context.Context, task *schema.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	query := `
	INSERT INTO tasks (
		key, summary, raw_status, board_column, sprint_name, sprint_state,
		assignee, avatar_url, due_at, priority, story_points,
		remote_updated, sync_epoch, origin, raw
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		summary = excluded.summary,
		raw_status = excluded.raw_status,
		board_column = excluded.board_column,
		sprint_name = excluded.sprint_name,
		sprint_state = excluded.sprint_state,
		assignee = excluded.assignee,
		avatar_url = excluded.avatar_url,
		due_at = excluded.due_at,
		priority = excluded.priority,
		story_points = excluded.story_points,
		remote_updated = excluded.remote_updated,
		sync_epoch = excluded.sync_epoch,
		origin = excluded.origin,
		raw = excluded.raw
	`

	_, err := db.conn.ExecContext(ctx, query,
		task.Key,
		task.Summary,
		task.RawStatus,
		string(task.Column),
		task.SprintName,
		task.SprintState,
		task.Assignee,
		task.AvatarURL,
		timeToNullString(task.DueAt),
		task.Priority,
		floatToNull(task.StoryPoints),
		timeToNullString(task.RemoteUpdated),
		task.SyncEpoch,
		task.Origin,
		rawToNull(task.Raw),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task %s: %w", task.Key, err)
	}

	return nil
}

// GetTask retrieves a single task by key.
// Returns ErrTaskNotFound if no row matches.
func (db *DB) GetTask(key string) (*schema.Task, error) {
	return db.GetTaskContext(context.Background(), key)
}

// GetTaskContext retrieves a single task by key with context support.
func (db *DB) GetTaskContext(ctx context.Context, key string) (*schema.Task, error) {
	query := selectColumns + ` FROM tasks WHERE key = ?`
	row := db.conn.QueryRowContext(ctx, query, key)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", key, err)
	}
	return task, nil
}

// DeleteTask removes a task by key. Idempotent.
func (db *DB) DeleteTask(key string) error {
	return db.DeleteTaskContext(context.Background(), key)
}

// DeleteTaskContext removes a task with context support.
func (db *DB) DeleteTaskContext(ctx context.Context, key string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM tasks WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", key, err)
	}
	return nil
}

// ListTasksFilter configures the ListTasks query.
type ListTasksFilter struct {
	// Column filters by board column (empty = all columns)
	Column status.Column
	// Origin filters by origin tag (empty = all origins)
	Origin string
	// SprintState filters by sprint state (empty = all)
	SprintState string
	// Limit restricts the number of results (0 = no limit)
	Limit int
	// Offset skips the first N results (for pagination)
	Offset int
}

// ListTasks retrieves tasks matching the given filters.
// Results are ordered by board column display position, then key.
func (db *DB) ListTasks(filter ListTasksFilter) ([]*schema.Task, error) {
	return db.ListTasksContext(context.Background(), filter)
}

// ListTasksContext retrieves tasks with context support.
func (db *DB) ListTasksContext(ctx context.Context, filter ListTasksFilter) ([]*schema.Task, error) {
	var conditions []string
	var args []interface{}

	if filter.Column != "" {
		conditions = append(conditions, "board_column = ?")
		args = append(args, string(filter.Column))
	}

	if filter.Origin != "" {
		conditions = append(conditions, "origin = ?")
		args = append(args, filter.Origin)
	}

	if filter.SprintState != "" {
		conditions = append(conditions, "sprint_state = ?")
		args = append(args, filter.SprintState)
	}

	query := selectColumns + " FROM tasks"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY " + columnOrderCase + ", key ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// ListByColumn retrieves all tasks currently placed in one column.
func (db *DB) ListByColumn(ctx context.Context, column status.Column) ([]*schema.Task, error) {
	return db.ListTasksContext(ctx, ListTasksFilter{Column: column})
}

// TouchTask bumps an existing row's sync epoch without changing its
// payload, so the next prune keeps it. No-op when the key is absent.
//
// Used when a run fetched an item but could not persist its new state:
// the remote still owns the item, so its previous row must outlive the
// prune rather than vanish from the mirror.
func (db *DB) TouchTask(ctx context.Context, key string, epoch int64) error {
	if _, err := db.conn.ExecContext(ctx,
		`UPDATE tasks SET sync_epoch = ? WHERE key = ?`, epoch, key,
	); err != nil {
		return fmt.Errorf("failed to touch task %s: %w", key, err)
	}
	return nil
}

// DeleteStaleRemote removes remote-origin tasks whose epoch is older than
// the given run epoch, returning the number removed.
//
// This is the prune step: it must run only after the run's upserts have
// completed, and local-origin rows are never examined.
func (db *DB) DeleteStaleRemote(ctx context.Context, epoch int64) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM tasks WHERE sync_epoch < ? AND origin = ?`,
		epoch, schema.OriginRemote,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune stale tasks: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned tasks: %w", err)
	}
	return count, nil
}

// CountTasks returns the total number of tasks in the mirror.
func (db *DB) CountTasks(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

// GetMeta reads a diagnostic value. Returns "" when the key is absent.
func (db *DB) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta %s: %w", key, err)
	}
	return value, nil
}

// SetMeta writes a diagnostic value.
func (db *DB) SetMeta(ctx context.Context, key, value string) error {
	query := `
	INSERT INTO meta (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	if _, err := db.conn.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set meta %s: %w", key, err)
	}
	return nil
}

const selectColumns = `SELECT key, summary, raw_status, board_column,
	sprint_name, sprint_state, assignee, avatar_url, due_at, priority,
	story_points, remote_updated, sync_epoch, origin, raw`

// columnOrderCase orders rows by board display position.
var columnOrderCase = buildColumnOrderCase()

func buildColumnOrderCase() string {
	var b strings.Builder
	b.WriteString("CASE board_column")
	for i, c := range status.Columns() {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", string(c), i)
	}
	b.WriteString(" ELSE 99 END")
	return b.String()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*schema.Task, error) {
	var task schema.Task
	var column string
	var dueAt, remoteUpdated, raw sql.NullString
	var storyPoints sql.NullFloat64

	err := row.Scan(
		&task.Key,
		&task.Summary,
		&task.RawStatus,
		&column,
		&task.SprintName,
		&task.SprintState,
		&task.Assignee,
		&task.AvatarURL,
		&dueAt,
		&task.Priority,
		&storyPoints,
		&remoteUpdated,
		&task.SyncEpoch,
		&task.Origin,
		&raw,
	)
	if err != nil {
		return nil, err
	}

	task.Column = status.Column(column)
	task.DueAt = nullStringToTime(dueAt)
	task.RemoteUpdated = nullStringToTime(remoteUpdated)
	if storyPoints.Valid {
		points := storyPoints.Float64
		task.StoryPoints = &points
	}
	if raw.Valid && raw.String != "" {
		task.Raw = []byte(raw.String)
	}

	return &task, nil
}

// scanTasks is a helper function to scan multiple tasks from query results.
func scanTasks(rows *sql.Rows) ([]*schema.Task, error) {
	var tasks []*schema.Task

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func floatToNull(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{Valid: false}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func rawToNull(raw []byte) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
