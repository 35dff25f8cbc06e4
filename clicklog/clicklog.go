// Package clicklog records short-link resolutions in a local SQLite database
// for offline analysis. Writes are fire and forget: resolution latency never
// waits on analytics, and a failed write is a log line, not an error.
package clicklog

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/timecap/idgen"
)

const schema = `
CREATE TABLE IF NOT EXISTS click_events (
	event_id   TEXT PRIMARY KEY,
	short_id   TEXT NOT NULL,
	user_agent TEXT NOT NULL DEFAULT '',
	automated  INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_click_events_short_id ON click_events(short_id);
`

// Log is an append-mostly event log. Safe for concurrent use; the driver
// serializes writers and busy_timeout absorbs contention.
type Log struct {
	db     *sql.DB
	logger *slog.Logger
	newID  idgen.Generator
}

// Open opens (creating if needed) the click log at path. The caller must
// blank-import a database/sql driver registered as "sqlite".
func Open(path string, logger *slog.Logger) (*Log, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("clicklog: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("clicklog: schema: %w", err)
	}
	return &Log{db: db, logger: logger, newID: idgen.Prefixed("clk_", idgen.Default)}, nil
}

// Record appends one resolution event. Errors are logged and swallowed.
func (l *Log) Record(shortID, userAgent string, automated bool) {
	auto := 0
	if automated {
		auto = 1
	}
	_, err := l.db.Exec(
		`INSERT INTO click_events (event_id, short_id, user_agent, automated, created_at) VALUES (?, ?, ?, ?, ?)`,
		l.newID(), shortID, userAgent, auto, time.Now().Unix(),
	)
	if err != nil {
		l.logger.Warn("click event dropped", "short_id", shortID, "error", err)
	}
}

// CountFor returns the number of recorded events for a short id.
func (l *Log) CountFor(shortID string) (int64, error) {
	var n int64
	err := l.db.QueryRow(`SELECT COUNT(*) FROM click_events WHERE short_id = ?`, shortID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("clicklog: count %s: %w", shortID, err)
	}
	return n, nil
}

// Close releases the database handle.
func (l *Log) Close() error {
	return l.db.Close()
}
