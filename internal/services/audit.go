package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Lllllllleong/docsummaryflow/internal/gcp"
	"github.com/Lllllllleong/docsummaryflow/internal/models"
)

// AuditSink durably records workflow responses.
type AuditSink interface {
	Record(ctx context.Context, rec models.AuditRecord) error
}

// LogAuditSink writes records to the structured log only.
type LogAuditSink struct{}

func (LogAuditSink) Record(_ context.Context, rec models.AuditRecord) error {
	slog.Info("Workflow response recorded.",
		"sessionId", rec.SessionID,
		"type", rec.Message.Type,
		"files", len(rec.Message.Files),
		"content", rec.Message.Content,
	)
	return nil
}

const auditSchema = `CREATE TABLE IF NOT EXISTS n8n_chat_histories (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	message    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_histories_session ON n8n_chat_histories(session_id);`

// SQLiteAuditSink stores records in a local SQLite database.
type SQLiteAuditSink struct {
	db *sql.DB
}

// OpenSQLiteAuditSink opens (creating if needed) the database at path.
func OpenSQLiteAuditSink(path string) (*SQLiteAuditSink, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("audit db mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit db open: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		auditSchema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("audit db init: %w", err)
		}
	}
	return &SQLiteAuditSink{db: db}, nil
}

func (s *SQLiteAuditSink) Record(ctx context.Context, rec models.AuditRecord) error {
	msg, err := json.Marshal(rec.Message)
	if err != nil {
		return fmt.Errorf("marshal audit message: %w", err)
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO n8n_chat_histories (session_id, message, created_at) VALUES (?, ?, ?)`,
		rec.SessionID, string(msg), created.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// Records returns every stored record for a session, oldest first.
func (s *SQLiteAuditSink) Records(ctx context.Context, sessionID string) ([]models.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, message, created_at FROM n8n_chat_histories WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var out []models.AuditRecord
	for rows.Next() {
		var rec models.AuditRecord
		var msg, created string
		if err := rows.Scan(&rec.SessionID, &msg, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(msg), &rec.Message); err != nil {
			return nil, fmt.Errorf("decode audit message: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteAuditSink) Close() error {
	return s.db.Close()
}

// NewAuditSink builds the sink named by kind: firestore, sqlite or log.
func NewAuditSink(ctx context.Context, kind, projectID, collection, sqlitePath string) (AuditSink, func() error, error) {
	noop := func() error { return nil }
	switch kind {
	case "log":
		return LogAuditSink{}, noop, nil
	case "sqlite":
		sink, err := OpenSQLiteAuditSink(sqlitePath)
		if err != nil {
			return nil, noop, err
		}
		return sink, sink.Close, nil
	case "firestore", "":
		client, err := gcp.NewFirestoreClient(ctx, projectID)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create firestore client: %w", err)
		}
		sink := gcp.NewFirestoreAuditSink(client, collection)
		return sink, sink.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown audit sink %q", kind)
}
