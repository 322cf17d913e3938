package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	source     TEXT NOT NULL,
	sender     TEXT NOT NULL DEFAULT '',
	data       TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_state ON documents(state);
CREATE TABLE IF NOT EXISTS document_log (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id TEXT NOT NULL REFERENCES documents(id),
	entry       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_document_log_doc ON document_log(document_id, seq);
CREATE TABLE IF NOT EXISTS print_jobs (
	document_id TEXT PRIMARY KEY,
	job_id      TEXT NOT NULL,
	printed_at  INTEGER NOT NULL
);
`

// SQLiteStore is the default durable Store.
type SQLiteStore struct {
	db     *sql.DB
	logger logger.Logger
}

// OpenSQLite opens (or creates) the database at path. Use ":memory:" in tests.
func OpenSQLite(path string, log logger.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One connection: pragmas stick, and writers are serialized in-process.
	db.SetMaxOpenConns(1)

	for _, p := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}

	return &SQLiteStore{db: db, logger: log}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, doc *models.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, state, source, sender, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, string(doc.State), string(doc.Source), doc.Origin.Sender, string(data),
		doc.CreatedAt.UnixNano(), doc.UpdatedAt.UnixNano(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%s: %w", doc.ID, ErrExists)
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner, id string) (*models.Document, error) {
	var data string
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("select document: %w", err)
	}
	var doc models.Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	if doc.Attempts == nil {
		doc.Attempts = map[models.Stage]int{}
	}
	return &doc, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Document, error) {
	return scanDocument(s.db.QueryRowContext(ctx, `SELECT data FROM documents WHERE id = ?`, id), id)
}

func (s *SQLiteStore) Update(ctx context.Context, id string, fn UpdateFunc) (*models.Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	doc, err := scanDocument(tx.QueryRowContext(ctx, `SELECT data FROM documents WHERE id = ?`, id), id)
	if err != nil {
		return nil, err
	}
	if err := fn(doc); err != nil {
		return nil, err
	}
	doc.ID = id
	doc.UpdatedAt = time.Now()

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET state = ?, sender = ?, data = ?, updated_at = ? WHERE id = ?`,
		string(doc.State), doc.Origin.Sender, string(data), doc.UpdatedAt.UnixNano(), id,
	); err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return doc, nil
}

func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]*models.Document, error) {
	query := `SELECT id, data FROM documents`
	var (
		where []string
		args  []any
	)
	if len(filter.States) > 0 {
		marks := make([]string, len(filter.States))
		for i, st := range filter.States {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "state IN ("+strings.Join(marks, ",")+")")
	}
	if filter.Source != "" {
		where = append(where, "source = ?")
		args = append(args, string(filter.Source))
	}
	if filter.Sender != "" {
		where = append(where, "sender = ?")
		args = append(args, filter.Sender)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	type raw struct{ id, data string }
	var raws []raw
	for rows.Next() {
		var r raw
		if err := rows.Scan(&r.id, &r.data); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		raws = append(raws, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	docs := make([]*models.Document, 0, len(raws))
	for _, r := range raws {
		var doc models.Document
		if err := json.Unmarshal([]byte(r.data), &doc); err != nil {
			s.logger.Warn("skipping undecodable document", logger.DocumentID(r.id), logger.Error(err))
			continue
		}
		docs = append(docs, &doc)
	}
	return docs, nil
}

func (s *SQLiteStore) AppendLog(ctx context.Context, id string, entry models.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO document_log (document_id, entry) VALUES (?, ?)`, id, string(data)); err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Log(ctx context.Context, id string) ([]models.LogEntry, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT entry FROM document_log WHERE document_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer rows.Close()

	var entries []models.LogEntry
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		var e models.LogEntry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, fmt.Errorf("decode log entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) PrintJob(ctx context.Context, id string) (string, bool, error) {
	var job string
	err := s.db.QueryRowContext(ctx, `SELECT job_id FROM print_jobs WHERE document_id = ?`, id).Scan(&job)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read print ledger: %w", err)
	}
	return job, true, nil
}

func (s *SQLiteStore) RecordPrintJob(ctx context.Context, id, jobID string) (string, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO print_jobs (document_id, job_id, printed_at) VALUES (?, ?, ?) ON CONFLICT(document_id) DO NOTHING`,
		id, jobID, time.Now().UnixNano(),
	); err != nil {
		return "", fmt.Errorf("record print job: %w", err)
	}
	existing, _, err := s.PrintJob(ctx, id)
	return existing, err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
