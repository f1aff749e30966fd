package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/driftworks/semdex/internal/models"
)

// SQLiteStore implements Store on a single SQLite database. All operations
// are scoped to one collection so several project roots can share a file.
type SQLiteStore struct {
	db         *sql.DB
	collection string
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath, collection string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, collection: collection}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		collection TEXT NOT NULL,
		rel_path TEXT NOT NULL,
		name TEXT NOT NULL,
		extension TEXT,
		indexed_at INTEGER NOT NULL,
		size_bytes INTEGER NOT NULL,
		source_modified_at INTEGER NOT NULL,
		document TEXT NOT NULL,
		embedding BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_collection ON entries(collection);
	`
	_, err := db.Exec(schema)
	return err
}

// Collection returns the collection this store is scoped to.
func (s *SQLiteStore) Collection() string {
	return s.collection
}

// Upsert inserts or replaces an entry along with its document and embedding.
func (s *SQLiteStore) Upsert(ctx context.Context, entry models.IndexEntry, document string, embedding []float32) error {
	if entry.IndexedAt.IsZero() {
		entry.IndexedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO entries
		 (id, collection, rel_path, name, extension, indexed_at, size_bytes, source_modified_at, document, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, s.collection, entry.RelPath, entry.Name, entry.Extension,
		entry.IndexedAt.UnixNano(), entry.SizeBytes, entry.SourceModifiedAt.UnixNano(),
		document, float32SliceToBytes(embedding),
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", entry.RelPath, err)
	}
	return nil
}

// AllMetadata returns every entry in the collection without documents or
// embeddings. This is the working set for sync planning.
func (s *SQLiteStore) AllMetadata(ctx context.Context) ([]models.IndexEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, rel_path, name, extension, indexed_at, size_bytes, source_modified_at
		 FROM entries WHERE collection = ?`, s.collection,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.IndexEntry
	for rows.Next() {
		var e models.IndexEntry
		var indexedAt, modifiedAt int64
		if err := rows.Scan(&e.ID, &e.RelPath, &e.Name, &e.Extension, &indexedAt, &e.SizeBytes, &modifiedAt); err != nil {
			return nil, err
		}
		e.IndexedAt = time.Unix(0, indexedAt)
		e.SourceModifiedAt = time.Unix(0, modifiedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes an entry by ID. Missing IDs are ignored.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM entries WHERE collection = ? AND id = ?`, s.collection, id)
	return err
}

// Query scans the collection and returns the k entries nearest to embedding
// by cosine distance, ascending.
func (s *SQLiteStore) Query(ctx context.Context, embedding []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, rel_path, name, extension, indexed_at, size_bytes, source_modified_at, document, embedding
		 FROM entries WHERE collection = ?`, s.collection,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var indexedAt, modifiedAt int64
		var blob []byte
		if err := rows.Scan(&h.Entry.ID, &h.Entry.RelPath, &h.Entry.Name, &h.Entry.Extension,
			&indexedAt, &h.Entry.SizeBytes, &modifiedAt, &h.Document, &blob); err != nil {
			return nil, err
		}
		h.Entry.IndexedAt = time.Unix(0, indexedAt)
		h.Entry.SourceModifiedAt = time.Unix(0, modifiedAt)

		vec, err := bytesToFloat32Slice(blob)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", h.Entry.RelPath, err)
		}
		h.Distance = cosineDistance(embedding, vec)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Count returns the number of entries in the collection.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE collection = ?`, s.collection).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// cosineDistance is 1 minus the inner product. Both vectors are expected to
// be normalized; mismatched dimensions rank the entry last.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot float64
	for i := range a {
		dot += float64(a[i] * b[i])
	}
	return 1 - dot
}
