package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// SQLiteMultiVectorStore is a MultiVectorStore backed by a local SQLite
// database. Token vectors are stored as a single packed blob per chunk:
// a (rows, dim) header followed by rows*dim little-endian float32 values.
type SQLiteMultiVectorStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// OpenSQLiteMultiVectorStore opens (or creates) the store at the given path
// and runs the schema migration. Use ":memory:" for tests.
func OpenSQLiteMultiVectorStore(path string) (*SQLiteMultiVectorStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("multivector: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteMultiVectorStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteMultiVectorStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS multivectors (
    chunk_id  TEXT PRIMARY KEY,
    rows      INTEGER NOT NULL,
    dim       INTEGER NOT NULL,
    vectors   BLOB    NOT NULL
);`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("multivector: migrate: %w", err)
	}
	return nil
}

// Add stores (or replaces) the token vectors for one chunk.
func (s *SQLiteMultiVectorStore) Add(ctx context.Context, chunkID string, vectors [][]float32) error {
	rows, dim, blob, err := packVectors(vectors)
	if err != nil {
		return fmt.Errorf("multivector: add %s: %w", chunkID, err)
	}

	const q = `INSERT OR REPLACE INTO multivectors (chunk_id, rows, dim, vectors) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, chunkID, rows, dim, blob); err != nil {
		return fmt.Errorf("multivector: add %s: %w", chunkID, err)
	}
	return nil
}

// Get returns the token vectors for one chunk, or (nil, nil) if absent.
func (s *SQLiteMultiVectorStore) Get(ctx context.Context, chunkID string) ([][]float32, error) {
	const q = `SELECT rows, dim, vectors FROM multivectors WHERE chunk_id = ?`

	var rows, dim int
	var blob []byte
	err := s.db.QueryRowContext(ctx, q, chunkID).Scan(&rows, &dim, &blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("multivector: get %s: %w", chunkID, err)
	}

	vectors, err := unpackVectors(rows, dim, blob)
	if err != nil {
		return nil, fmt.Errorf("multivector: get %s: %w", chunkID, err)
	}
	return vectors, nil
}

// BatchGet returns the token vectors for all requested chunks in one query.
// Chunks with no stored multi-vector are simply absent from the result map.
func (s *SQLiteMultiVectorStore) BatchGet(ctx context.Context, chunkIDs []string) (map[string][][]float32, error) {
	result := make(map[string][][]float32, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunkIDs)), ",")
	q := `SELECT chunk_id, rows, dim, vectors FROM multivectors WHERE chunk_id IN (` + placeholders + `)`

	args := make([]interface{}, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("multivector: batch get: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var chunkID string
		var nRows, dim int
		var blob []byte
		if err := rows.Scan(&chunkID, &nRows, &dim, &blob); err != nil {
			return nil, fmt.Errorf("multivector: batch get scan: %w", err)
		}
		vectors, err := unpackVectors(nRows, dim, blob)
		if err != nil {
			return nil, fmt.Errorf("multivector: batch get %s: %w", chunkID, err)
		}
		result[chunkID] = vectors
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("multivector: batch get rows: %w", err)
	}

	return result, nil
}

// Delete removes the token vectors for the given chunk ids.
func (s *SQLiteMultiVectorStore) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunkIDs)), ",")
	q := `DELETE FROM multivectors WHERE chunk_id IN (` + placeholders + `)`

	args := make([]interface{}, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}

	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("multivector: delete: %w", err)
	}
	return nil
}

// Ping reports whether the underlying database is reachable.
func (s *SQLiteMultiVectorStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("multivector: ping: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteMultiVectorStore) Close() error {
	return s.db.Close()
}

// packVectors serializes token vectors into a little-endian float32 blob.
// All rows must share the same dimension.
func packVectors(vectors [][]float32) (rows, dim int, blob []byte, err error) {
	rows = len(vectors)
	if rows == 0 {
		return 0, 0, []byte{}, nil
	}
	dim = len(vectors[0])

	blob = make([]byte, 0, rows*dim*4)
	buf := make([]byte, 4)
	for _, vec := range vectors {
		if len(vec) != dim {
			return 0, 0, nil, fmt.Errorf("inconsistent token vector dimension: %d != %d", len(vec), dim)
		}
		for _, x := range vec {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
			blob = append(blob, buf...)
		}
	}
	return rows, dim, blob, nil
}

// unpackVectors deserializes a blob written by packVectors.
func unpackVectors(rows, dim int, blob []byte) ([][]float32, error) {
	if rows < 0 || dim < 0 || len(blob) != rows*dim*4 {
		return nil, fmt.Errorf("corrupt multi-vector blob: rows=%d dim=%d len=%d", rows, dim, len(blob))
	}

	vectors := make([][]float32, rows)
	offset := 0
	for i := 0; i < rows; i++ {
		vec := make([]float32, dim)
		for j := 0; j < dim; j++ {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(blob[offset:]))
			offset += 4
		}
		vectors[i] = vec
	}
	return vectors, nil
}
