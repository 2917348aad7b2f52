// Package journal persists delivered notifications in SQLite so they can be
// queried after the fact.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/movewatch/movewatch/internal/errors"
	"github.com/movewatch/movewatch/internal/watcher"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const (
	// DefaultLimit is used when a query does not set one.
	DefaultLimit = 100
	// MaxLimit caps the rows a single query returns.
	MaxLimit = 1000

	// DefaultPruneInterval is how often Run deletes expired rows.
	DefaultPruneInterval = 10 * time.Minute

	queueSize = 1024
)

// Entry is a stored notification.
type Entry struct {
	watcher.Event
	ID int64 `json:"id"`
}

// Query selects entries, newest first.
type Query struct {
	// Type restricts results to one kind when set.
	Type *watcher.EventType
	// Limit caps the result size. Zero means DefaultLimit.
	Limit int
	// Since excludes entries older than this time when non-zero.
	Since time.Time
}

// Journal is a SQLite-backed notification log. Handle queues notifications
// from the watcher's goroutine; Run writes them.
type Journal struct {
	db      *sql.DB
	logger  *slog.Logger
	clock   clock.Clock
	queue   chan watcher.Event
	onError func(error)

	mu     sync.Mutex
	closed bool
}

// Open creates or opens the journal database at path.
// It configures WAL mode and applies the schema.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One connection: the writer and readers share it, and ":memory:"
	// databases are per connection.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	return &Journal{
		db:      db,
		logger:  logger,
		clock:   clock.New(),
		queue:   make(chan watcher.Event, queueSize),
		onError: func(error) {},
	}, nil
}

// SetErrorHook registers fn to be called for every notification that could
// not be stored. Call it before Run.
func (j *Journal) SetErrorHook(fn func(error)) {
	if fn != nil {
		j.onError = fn
	}
}

// Handle queues ev for writing. It never blocks: when the queue is full the
// notification is dropped and reported through the error hook.
func (j *Journal) Handle(ev watcher.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}

	select {
	case j.queue <- ev:
	default:
		j.onError(errors.ResourceExhaustedf("journal queue full, dropped %s %s", ev.Type, ev.Name))
	}
}

// Run writes queued notifications and prunes rows older than retention every
// pruneInterval until ctx is done. Queued notifications are flushed before it
// returns. A zero retention keeps everything.
func (j *Journal) Run(ctx context.Context, retention, pruneInterval time.Duration) error {
	if pruneInterval <= 0 {
		pruneInterval = DefaultPruneInterval
	}
	ticker := j.clock.Ticker(pruneInterval)
	defer ticker.Stop()

	j.prune(ctx, retention)

	for {
		select {
		case <-ctx.Done():
			j.flush()
			return nil
		case ev := <-j.queue:
			j.write(ctx, ev)
		case <-ticker.C:
			j.prune(ctx, retention)
		}
	}
}

// flush writes whatever is still queued, without waiting for more.
func (j *Journal) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case ev := <-j.queue:
			j.write(ctx, ev)
		default:
			return
		}
	}
}

func (j *Journal) write(ctx context.Context, ev watcher.Event) {
	if _, err := j.Record(ctx, ev); err != nil {
		j.logger.Warn("failed to record notification", "type", ev.Type, "name", ev.Name, "error", err)
		j.onError(err)
	}
}

func (j *Journal) prune(ctx context.Context, retention time.Duration) {
	if retention <= 0 {
		return
	}
	n, err := j.Prune(ctx, j.clock.Now().Add(-retention))
	if err != nil {
		j.logger.Warn("failed to prune journal", "error", err)
		return
	}
	if n > 0 {
		j.logger.Debug("pruned journal", "rows", n)
	}
}

// Record stores ev synchronously and returns its row id.
func (j *Journal) Record(ctx context.Context, ev watcher.Event) (int64, error) {
	res, err := j.db.ExecContext(ctx, `
		INSERT INTO notifications (time, type, name, old_name, watch_id, old_watch_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		formatTime(ev.Time),
		ev.Type.String(),
		ev.Name,
		nullString(ev.OldName),
		ev.WatchID,
		nullInt64(int64(ev.OldWatchID)),
	)
	if err != nil {
		return 0, fmt.Errorf("insert notification: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns entries matching q, newest first.
func (j *Journal) Recent(ctx context.Context, q Query) ([]Entry, error) {
	limit := q.Limit
	switch {
	case limit < 0:
		return nil, errors.Validationf("limit must not be negative, got %d", limit)
	case limit == 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	query := `SELECT id, time, type, name, old_name, watch_id, old_watch_id FROM notifications WHERE 1=1`
	var args []any
	if q.Type != nil {
		query += ` AND type = ?`
		args = append(args, q.Type.String())
	}
	if !q.Since.IsZero() {
		query += ` AND time >= ?`
		args = append(args, formatTime(q.Since))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// Count returns the number of stored entries.
func (j *Journal) Count(ctx context.Context) (int64, error) {
	var n int64
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`).Scan(&n)
	return n, err
}

// Prune deletes entries older than before and returns how many went.
func (j *Journal) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM notifications WHERE time < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("prune notifications: %w", err)
	}
	return res.RowsAffected()
}

// Ping reports whether the database is reachable.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Close stops accepting notifications and closes the database. Call it after
// Run has returned.
func (j *Journal) Close() error {
	j.mu.Lock()
	j.closed = true
	j.mu.Unlock()
	return j.db.Close()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		e          Entry
		at, kind   string
		oldName    sql.NullString
		oldWatchID sql.NullInt64
	)
	if err := scanner.Scan(&e.ID, &at, &kind, &e.Name, &oldName, &e.WatchID, &oldWatchID); err != nil {
		return nil, err
	}

	var err error
	if e.Time, err = parseTime(at); err != nil {
		return nil, fmt.Errorf("entry %d: %w", e.ID, err)
	}
	if e.Type, err = watcher.ParseEventType(kind); err != nil {
		return nil, fmt.Errorf("entry %d: %w", e.ID, err)
	}
	e.OldName = oldName.String
	e.OldWatchID = int(oldWatchID.Int64)
	return &e, nil
}

// formatTime uses a fixed-width layout so that stored times sort as text.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt64(v int64) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: true}
}
