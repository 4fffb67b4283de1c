// Package journal persists a write-only audit trail of handled events.
//
// The journal is observability, not state: nothing in the pipeline reads it
// back, and losing it never changes delivery behavior.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"shotrelay/internal/eventbus"
	"shotrelay/internal/relay"
	logx "shotrelay/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type Config struct {
	// Path is the sqlite file. Empty disables the journal.
	Path string
	// Retention bounds how far back Prune keeps rows. Zero keeps everything.
	Retention   time.Duration
	BusyTimeout time.Duration
}

type Journal struct {
	db        *sql.DB
	log       logx.Logger
	retention time.Duration
}

// Open returns (nil, nil) when no path is configured; a nil *Journal is safe
// to call.
func Open(cfg Config, log logx.Logger) (*Journal, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	j := &Journal{db: db, log: log, retention: cfg.Retention}
	if err := j.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx, string(b))
	return err
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Entry is one handled-event row.
type Entry struct {
	At          time.Time
	Category    string
	EntityType  string
	EntityID    int64
	Outcome     string
	Sent        int
	Skipped     int
	RateLimited int
	Failed      int
	Error       string
}

func (j *Journal) Record(ctx context.Context, e Entry) error {
	if j == nil || j.db == nil {
		return nil
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO events(at, category, entity_type, entity_id, outcome, sent, skipped, rate_limited, failed, err)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		e.At.UTC().Format(time.RFC3339Nano), e.Category, e.EntityType, e.EntityID,
		e.Outcome, e.Sent, e.Skipped, e.RateLimited, e.Failed, nullStr(e.Error),
	)
	return err
}

// Prune deletes rows older than the retention window. Returns rows removed.
func (j *Journal) Prune(ctx context.Context) (int64, error) {
	if j == nil || j.db == nil || j.retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-j.retention).UTC().Format(time.RFC3339Nano)
	res, err := j.db.ExecContext(ctx, `DELETE FROM events WHERE at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Attach consumes handled-event bus traffic until ctx is cancelled. Run it in
// its own goroutine; journal writes never sit on the event path.
func (j *Journal) Attach(ctx context.Context, bus eventbus.Bus) {
	if j == nil || bus == nil {
		return
	}
	ch, unsub := bus.Subscribe(64)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Type != eventbus.TypeEventHandled && ev.Type != eventbus.TypeEventRejected {
				continue
			}
			he, ok := ev.Data.(relay.HandledEvent)
			if !ok {
				continue
			}
			if err := j.Record(ctx, entryFrom(ev.Time, he)); err != nil && !errors.Is(err, context.Canceled) {
				j.log.Error("journal write failed", logx.Err(err))
			}
		}
	}
}

func entryFrom(at time.Time, he relay.HandledEvent) Entry {
	return Entry{
		At:          at,
		Category:    he.Category,
		EntityType:  he.EntityType,
		EntityID:    he.EntityID,
		Outcome:     he.Outcome,
		Sent:        he.Report.Sent,
		Skipped:     he.Report.Skipped,
		RateLimited: he.Report.RateLimited,
		Failed:      he.Report.Failed,
		Error:       he.Error,
	}
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
