// Package journal keeps a SQLite history of finished trades and collection
// outcomes, fed from the event bus.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/linanwx/ferry/bus"
	"github.com/linanwx/ferry/internal/runtimecfg"
	"github.com/linanwx/ferry/logger"
)

// Kind is the type of a journal entry.
type Kind string

const (
	KindTrade   Kind = "trade"
	KindCollect Kind = "collect"
)

// Entry is one journal row.
type Entry struct {
	ID        int64
	At        time.Time
	Kind      Kind
	SessionID string
	Actor     string
	Peer      string
	Outcome   string
	Items     []string
	Detail    string
}

// Journal appends entries on a writer goroutine so recording never blocks a
// trade.
type Journal struct {
	db *sql.DB

	ch   chan Entry
	wg   sync.WaitGroup
	once sync.Once

	// mu is held for reading while sending on ch and for writing while
	// closing it.
	mu     sync.RWMutex
	closed bool
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("empty journal path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	j := &Journal{
		db: db,
		ch: make(chan Entry, runtimecfg.BusBufferSize),
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.loop()
	}()
	return j, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transfers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			recorded_at TEXT NOT NULL,
			kind TEXT NOT NULL,
			session_id TEXT NOT NULL,
			actor TEXT NOT NULL,
			peer TEXT NOT NULL,
			outcome TEXT NOT NULL,
			items TEXT NOT NULL,
			detail TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transfers_peer ON transfers(peer, id);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes pending entries and closes the database.
func (j *Journal) Close() error {
	var err error
	j.once.Do(func() {
		j.mu.Lock()
		j.closed = true
		close(j.ch)
		j.mu.Unlock()
		j.wg.Wait()
		err = j.db.Close()
	})
	return err
}

// Record queues e. Entries are dropped when the writer falls behind or the
// journal is closed.
func (j *Journal) Record(e Entry) {
	if j == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.ch <- e:
	default:
		logger.Warn("journal behind, entry dropped", "kind", string(e.Kind), "session", e.SessionID)
	}
}

func (j *Journal) loop() {
	insert, err := j.db.Prepare(`INSERT INTO transfers(recorded_at,kind,session_id,actor,peer,outcome,items,detail) VALUES(?,?,?,?,?,?,?,?)`)
	if err != nil {
		logger.Error("journal prepare failed", "err", err)
		for range j.ch {
		}
		return
	}
	defer insert.Close()

	for e := range j.ch {
		_, err := insert.Exec(
			e.At.UTC().Format(time.RFC3339Nano),
			string(e.Kind),
			e.SessionID,
			e.Actor,
			e.Peer,
			e.Outcome,
			strings.Join(e.Items, "\n"),
			e.Detail,
		)
		if err != nil {
			logger.Warn("journal write failed", "err", err)
		}
	}
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = runtimecfg.JournalDefaultLimit
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id,recorded_at,kind,session_id,actor,peer,outcome,items,COALESCE(detail,'') FROM transfers ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e     Entry
			at    string
			kind  string
			items string
		)
		if err := rows.Scan(&e.ID, &at, &kind, &e.SessionID, &e.Actor, &e.Peer, &e.Outcome, &items, &e.Detail); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		e.Kind = Kind(kind)
		if items != "" {
			e.Items = strings.Split(items, "\n")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Attach records every finished trade and collection member from b. The
// returned func detaches.
func (j *Journal) Attach(b *bus.Bus) func() {
	tradeID := b.Subscribe(bus.EventTradeFinished, func(_ context.Context, e *bus.Event) {
		var data bus.TradeEventData
		if err := e.ParseData(&data); err != nil {
			logger.Warn("journal: bad trade event", "err", err)
			return
		}
		j.Record(Entry{
			At:        e.Timestamp,
			Kind:      KindTrade,
			SessionID: data.SessionID,
			Actor:     data.Giver,
			Peer:      data.Receiver,
			Outcome:   data.State,
			Items:     data.Offered,
			Detail:    tradeDetail(data),
		})
	})
	collectID := b.Subscribe(bus.EventCollectMember, func(_ context.Context, e *bus.Event) {
		var data bus.CollectEventData
		if err := e.ParseData(&data); err != nil {
			logger.Warn("journal: bad collect event", "err", err)
			return
		}
		detail := data.Error
		if detail == "" {
			detail = fmt.Sprintf("took %s", data.Duration.Round(time.Millisecond))
		}
		j.Record(Entry{
			At:        e.Timestamp,
			Kind:      KindCollect,
			SessionID: data.SessionID,
			Actor:     data.Collector,
			Peer:      data.Member,
			Outcome:   data.Outcome,
			Detail:    detail,
		})
	})
	return func() {
		b.Unsubscribe(tradeID)
		b.Unsubscribe(collectID)
	}
}

func tradeDetail(data bus.TradeEventData) string {
	if data.Error != "" {
		return data.Error
	}
	detail := fmt.Sprintf("%d batch(es)", data.Batches)
	if len(data.Skipped) > 0 {
		detail += "; not held: " + strings.Join(data.Skipped, ", ")
	}
	return detail
}
