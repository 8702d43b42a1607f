// Package eventlog journals session events so controllers can replay what
// happened while nothing was watching, and fans live events out to follow
//-mode subscribers.
package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sornas/mum/pkg/ipc"
	"github.com/sornas/mum/pkg/session"
)

// subscriberBuffer bounds a follow subscriber's backlog; slow readers drop
// events rather than stalling the appender.
const subscriberBuffer = 64

// Log is a SQLite-backed event journal.
type Log struct {
	db *sql.DB

	mu   sync.Mutex
	subs map[int]chan ipc.StoredEvent
	next int
}

// Open opens (or creates) the journal database.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open db: %w", err)
	}

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("eventlog: set WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("eventlog: set busy_timeout: %w", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS events (
		cursor  INTEGER PRIMARY KEY AUTOINCREMENT,
		at      INTEGER NOT NULL,
		payload TEXT    NOT NULL
	);`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("eventlog: migrate: %w", err)
	}

	return &Log{
		db:   db,
		subs: make(map[int]chan ipc.StoredEvent),
	}, nil
}

// Close closes the journal.
func (l *Log) Close() error {
	return l.db.Close()
}

// Append journals one event and delivers it to live subscribers.
func (l *Log) Append(ev session.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("eventlog: marshal: %w", err)
	}
	at := time.Now().UnixMilli()

	res, err := l.db.ExecContext(context.Background(),
		"INSERT INTO events (at, payload) VALUES (?, ?)", at, string(payload))
	if err != nil {
		return fmt.Errorf("eventlog: insert: %w", err)
	}
	cursor, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("eventlog: last insert id: %w", err)
	}

	stored := ipc.StoredEvent{
		Cursor: uint64(cursor), //nolint:gosec // autoincrement is non-negative
		At:     at,
		Event:  ev,
	}

	l.mu.Lock()
	for _, ch := range l.subs {
		select {
		case ch <- stored:
		default:
			// subscriber too slow, it will re-drain via Since
		}
	}
	l.mu.Unlock()
	return nil
}

// Since returns all journaled events with cursor > since, oldest first,
// and the cursor to resume from next time.
func (l *Log) Since(since uint64) ([]ipc.StoredEvent, uint64, error) {
	rows, err := l.db.QueryContext(context.Background(),
		"SELECT cursor, at, payload FROM events WHERE cursor > ? ORDER BY cursor", since)
	if err != nil {
		return nil, since, fmt.Errorf("eventlog: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ipc.StoredEvent
	next := since
	for rows.Next() {
		var (
			cursor  int64
			at      int64
			payload string
		)
		if err := rows.Scan(&cursor, &at, &payload); err != nil {
			return nil, since, fmt.Errorf("eventlog: scan: %w", err)
		}
		var ev session.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, since, fmt.Errorf("eventlog: unmarshal: %w", err)
		}
		stored := ipc.StoredEvent{
			Cursor: uint64(cursor), //nolint:gosec // autoincrement is non-negative
			At:     at,
			Event:  ev,
		}
		out = append(out, stored)
		next = stored.Cursor
	}
	return out, next, rows.Err()
}

// Subscribe registers a live event subscriber. The returned cancel func must
// be called to release it.
func (l *Log) Subscribe() (<-chan ipc.StoredEvent, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.next
	l.next++
	ch := make(chan ipc.StoredEvent, subscriberBuffer)
	l.subs[id] = ch

	cancel := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}
