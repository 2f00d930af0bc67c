// Package journal provides an advisory SQLite record of dispatched
// operations. It is rebuildable from the authority and never load-bearing:
// the engine runs identically with a nil journal. Its value is diagnostic:
// after a crash, unacknowledged rows show which intents may not have reached
// the authority.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Status is the delivery state of a journaled operation.
type Status string

const (
	StatusPending      Status = "pending"
	StatusAcknowledged Status = "acknowledged"
	StatusFailed       Status = "failed"
)

// Entry is one journaled operation.
type Entry struct {
	IdempotencyKey string
	EntityID       string
	Kind           string
	Payload        json.RawMessage
	Status         Status
	Reason         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Journal wraps the SQLite store. A nil *Journal is valid and turns every
// method into a no-op.
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal database and runs migrations.
func Open(dbPath string) (*Journal, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return j, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS operations (
		idempotency_key TEXT PRIMARY KEY,
		entity_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		reason TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_operations_status ON operations(status);
	CREATE INDEX IF NOT EXISTS idx_operations_entity ON operations(entity_id);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Record journals a freshly enqueued operation. Recording the same key twice
// is a no-op, matching the idempotency contract.
func (j *Journal) Record(ctx context.Context, entityID, kind, idempotencyKey string, payload []byte) error {
	if j == nil {
		return nil
	}
	now := time.Now().UTC()
	_, err := j.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO operations (idempotency_key, entity_id, kind, payload, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		idempotencyKey, entityID, kind, string(payload), StatusPending, now, now,
	)
	return err
}

// MarkAcknowledged records delivery of the operation.
func (j *Journal) MarkAcknowledged(ctx context.Context, idempotencyKey string) error {
	return j.setStatus(ctx, idempotencyKey, StatusAcknowledged, "")
}

// MarkFailed records a terminal rejection with its reason.
func (j *Journal) MarkFailed(ctx context.Context, idempotencyKey, reason string) error {
	return j.setStatus(ctx, idempotencyKey, StatusFailed, reason)
}

func (j *Journal) setStatus(ctx context.Context, idempotencyKey string, status Status, reason string) error {
	if j == nil {
		return nil
	}
	_, err := j.db.ExecContext(ctx,
		`UPDATE operations SET status = ?, reason = ?, updated_at = ? WHERE idempotency_key = ?`,
		status, reason, time.Now().UTC(), idempotencyKey,
	)
	return err
}

// Pending lists operations not yet acknowledged or terminally failed, oldest
// first.
func (j *Journal) Pending(ctx context.Context) ([]Entry, error) {
	if j == nil {
		return nil, nil
	}
	return j.list(ctx, `SELECT idempotency_key, entity_id, kind, payload, status, COALESCE(reason, ''), created_at, updated_at
		 FROM operations WHERE status = ? ORDER BY created_at`, StatusPending)
}

// ByEntity lists every journaled operation for one aggregate, oldest first.
func (j *Journal) ByEntity(ctx context.Context, entityID string) ([]Entry, error) {
	if j == nil {
		return nil, nil
	}
	return j.list(ctx, `SELECT idempotency_key, entity_id, kind, payload, status, COALESCE(reason, ''), created_at, updated_at
		 FROM operations WHERE entity_id = ? ORDER BY created_at`, entityID)
}

// All lists every journaled operation regardless of status, oldest first.
func (j *Journal) All(ctx context.Context) ([]Entry, error) {
	if j == nil {
		return nil, nil
	}
	return j.list(ctx, `SELECT idempotency_key, entity_id, kind, payload, status, COALESCE(reason, ''), created_at, updated_at
		 FROM operations ORDER BY created_at`)
}

func (j *Journal) list(ctx context.Context, query string, args ...interface{}) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var payload string
		if err := rows.Scan(&entry.IdempotencyKey, &entry.EntityID, &entry.Kind, &payload, &entry.Status, &entry.Reason, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
			return nil, err
		}
		if payload != "" {
			entry.Payload = json.RawMessage(payload)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
