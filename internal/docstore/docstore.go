// Package docstore provides a SQLite-backed metadata store for ingested
// documents and their chunks. Vector stores hold the embeddings; this
// store holds everything else the system knows about a document.
package docstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Status tracks a document through the ingestion pipeline.
type Status string

const (
	// StatusUploaded marks a document registered but not yet processed.
	StatusUploaded Status = "uploaded"
	// StatusProcessing marks a document being embedded and indexed.
	StatusProcessing Status = "processing"
	// StatusProcessed marks a fully ingested document.
	StatusProcessed Status = "processed"
	// StatusError marks a document whose ingestion failed.
	StatusError Status = "error"
)

// Chunk provenance values.
const (
	SourcePDF  = "pdf"
	SourceText = "text"

	LevelPage      = "page"
	LevelParagraph = "paragraph"
	LevelSentence  = "sentence"
)

// Document is the metadata record for one ingested document.
type Document struct {
	ID         string
	Name       string
	Size       int64
	UploadDate time.Time
	Status     Status
	Authors    string
	Abstract   string
	Path       string
	NumChunks  int
}

// Chunk is the metadata record for one chunk of a document.
type Chunk struct {
	ID     string
	DocID  string
	Name   string
	Path   string
	Source string
	Level  string
}

// Store persists document and chunk metadata in a local SQLite
// database. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a Store at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*Store, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("docstore: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *Store) migrate() error {
	const ddl = `
PRAGMA foreign_keys = ON;
CREATE TABLE IF NOT EXISTS documents (
    doc_id       TEXT    PRIMARY KEY,
    doc_name     TEXT    NOT NULL,
    doc_size     INTEGER NOT NULL,
    upload_date  INTEGER NOT NULL,  -- Unix timestamp (seconds)
    status       TEXT    NOT NULL CHECK(status IN ('uploaded','processing','processed','error')),
    doc_authors  TEXT    NOT NULL DEFAULT '',
    doc_abstract TEXT    NOT NULL DEFAULT '',
    doc_path     TEXT    NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS chunks (
    chunk_id     TEXT    PRIMARY KEY,
    doc_id       TEXT    NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
    chunk_name   TEXT    NOT NULL,
    chunk_path   TEXT    NOT NULL DEFAULT '',
    chunk_source TEXT    NOT NULL CHECK(chunk_source IN ('pdf','text')),
    chunk_level  TEXT    NOT NULL CHECK(chunk_level IN ('page','paragraph','sentence'))
);
CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks (doc_id);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("docstore: migrate: %w", err)
	}
	return nil
}

// UpsertDocument inserts or replaces a document record.
func (s *Store) UpsertDocument(ctx context.Context, doc Document) error {
	if doc.Status == "" {
		doc.Status = StatusUploaded
	}
	if doc.UploadDate.IsZero() {
		doc.UploadDate = time.Now()
	}
	const q = `
INSERT INTO documents (doc_id, doc_name, doc_size, upload_date, status, doc_authors, doc_abstract, doc_path)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(doc_id) DO UPDATE SET
    doc_name = excluded.doc_name,
    doc_size = excluded.doc_size,
    upload_date = excluded.upload_date,
    status = excluded.status,
    doc_authors = excluded.doc_authors,
    doc_abstract = excluded.doc_abstract,
    doc_path = excluded.doc_path`
	_, err := s.db.ExecContext(ctx, q,
		doc.ID, doc.Name, doc.Size, doc.UploadDate.Unix(), string(doc.Status),
		doc.Authors, doc.Abstract, doc.Path)
	if err != nil {
		return fmt.Errorf("docstore: upsert document %s: %w", doc.ID, err)
	}
	return nil
}

// UpsertChunk inserts or replaces a chunk record. Source and Level
// default to pdf/page, matching what the ingestion pipeline produces.
func (s *Store) UpsertChunk(ctx context.Context, chunk Chunk) error {
	if chunk.Source == "" {
		chunk.Source = SourcePDF
	}
	if chunk.Level == "" {
		chunk.Level = LevelPage
	}
	const q = `
INSERT INTO chunks (chunk_id, doc_id, chunk_name, chunk_path, chunk_source, chunk_level)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(chunk_id) DO UPDATE SET
    doc_id = excluded.doc_id,
    chunk_name = excluded.chunk_name,
    chunk_path = excluded.chunk_path,
    chunk_source = excluded.chunk_source,
    chunk_level = excluded.chunk_level`
	_, err := s.db.ExecContext(ctx, q,
		chunk.ID, chunk.DocID, chunk.Name, chunk.Path, chunk.Source, chunk.Level)
	if err != nil {
		return fmt.Errorf("docstore: upsert chunk %s: %w", chunk.ID, err)
	}
	return nil
}

// UpdateStatus moves a document to a new ingestion status.
func (s *Store) UpdateStatus(ctx context.Context, docID string, status Status) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET status = ? WHERE doc_id = ?`, string(status), docID)
	if err != nil {
		return fmt.Errorf("docstore: update status of %s: %w", docID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("docstore: update status: document %s not found", docID)
	}
	return nil
}

// GetDocument returns the document record, or nil if it does not exist.
func (s *Store) GetDocument(ctx context.Context, docID string) (*Document, error) {
	const q = `
SELECT d.doc_id, d.doc_name, d.doc_size, d.upload_date, d.status,
       d.doc_authors, d.doc_abstract, d.doc_path,
       (SELECT COUNT(*) FROM chunks c WHERE c.doc_id = d.doc_id)
FROM documents d WHERE d.doc_id = ?`
	doc, err := scanDocument(s.db.QueryRowContext(ctx, q, docID))
	if err != nil {
		return nil, fmt.Errorf("docstore: get document %s: %w", docID, err)
	}
	return doc, nil
}

// GetChunk returns the chunk record, or nil if it does not exist.
func (s *Store) GetChunk(ctx context.Context, chunkID string) (*Chunk, error) {
	const q = `SELECT chunk_id, doc_id, chunk_name, chunk_path, chunk_source, chunk_level FROM chunks WHERE chunk_id = ?`
	var c Chunk
	err := s.db.QueryRowContext(ctx, q, chunkID).Scan(&c.ID, &c.DocID, &c.Name, &c.Path, &c.Source, &c.Level)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: get chunk %s: %w", chunkID, err)
	}
	return &c, nil
}

// ChunksByDocument returns all chunk records for a document.
func (s *Store) ChunksByDocument(ctx context.Context, docID string) ([]Chunk, error) {
	const q = `SELECT chunk_id, doc_id, chunk_name, chunk_path, chunk_source, chunk_level FROM chunks WHERE doc_id = ? ORDER BY chunk_id`
	rows, err := s.db.QueryContext(ctx, q, docID)
	if err != nil {
		return nil, fmt.Errorf("docstore: chunks of %s: %w", docID, err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocID, &c.Name, &c.Path, &c.Source, &c.Level); err != nil {
			return nil, fmt.Errorf("docstore: chunks scan: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("docstore: chunks rows: %w", err)
	}
	return chunks, nil
}

// DocumentByChunk returns the document containing the given chunk, or
// nil if the chunk does not exist.
func (s *Store) DocumentByChunk(ctx context.Context, chunkID string) (*Document, error) {
	const q = `
SELECT d.doc_id, d.doc_name, d.doc_size, d.upload_date, d.status,
       d.doc_authors, d.doc_abstract, d.doc_path,
       (SELECT COUNT(*) FROM chunks c2 WHERE c2.doc_id = d.doc_id)
FROM documents d
JOIN chunks c ON c.doc_id = d.doc_id
WHERE c.chunk_id = ?`
	doc, err := scanDocument(s.db.QueryRowContext(ctx, q, chunkID))
	if err != nil {
		return nil, fmt.Errorf("docstore: document by chunk %s: %w", chunkID, err)
	}
	return doc, nil
}

// ListDocuments returns documents, optionally restricted to the given
// statuses.
func (s *Store) ListDocuments(ctx context.Context, statuses ...Status) ([]Document, error) {
	q := `
SELECT d.doc_id, d.doc_name, d.doc_size, d.upload_date, d.status,
       d.doc_authors, d.doc_abstract, d.doc_path,
       (SELECT COUNT(*) FROM chunks c WHERE c.doc_id = d.doc_id)
FROM documents d`
	var args []any
	if len(statuses) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
		q += " WHERE d.status IN (" + placeholders + ")"
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	q += " ORDER BY d.upload_date, d.doc_id"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("docstore: list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var ts int64
		var status string
		if err := rows.Scan(&d.ID, &d.Name, &d.Size, &ts, &status, &d.Authors, &d.Abstract, &d.Path, &d.NumChunks); err != nil {
			return nil, fmt.Errorf("docstore: list scan: %w", err)
		}
		d.UploadDate = time.Unix(ts, 0)
		d.Status = Status(status)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("docstore: list rows: %w", err)
	}
	return docs, nil
}

// DeleteDocument removes a document and, through the foreign key
// cascade, all of its chunks.
func (s *Store) DeleteDocument(ctx context.Context, docID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("docstore: delete document %s: %w", docID, err)
	}
	return nil
}

// DeleteChunk removes a single chunk record.
func (s *Store) DeleteChunk(ctx context.Context, chunkID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE chunk_id = ?`, chunkID); err != nil {
		return fmt.Errorf("docstore: delete chunk %s: %w", chunkID, err)
	}
	return nil
}

// Ping reports whether the underlying database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("docstore: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("docstore: close: %w", err)
	}
	return nil
}

func scanDocument(row *sql.Row) (*Document, error) {
	var d Document
	var ts int64
	var status string
	err := row.Scan(&d.ID, &d.Name, &d.Size, &ts, &status, &d.Authors, &d.Abstract, &d.Path, &d.NumChunks)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.UploadDate = time.Unix(ts, 0)
	d.Status = Status(status)
	return &d, nil
}
