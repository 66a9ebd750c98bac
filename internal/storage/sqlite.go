package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/vector"
)

// SQL driver names accepted by WithDriver.
const (
	DriverSQLite3 = "sqlite3" // github.com/mattn/go-sqlite3
	DriverSQLite  = "sqlite"  // modernc.org/sqlite
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// ErrOwnerMismatch is returned when saving a document whose ID is already owned by another client.
var ErrOwnerMismatch = errors.New("document belongs to another client")

// Fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	driver string
	path   string
}

// Option configures a SQLiteStorage.
type Option func(*SQLiteStorage)

// WithDriver selects the database/sql driver. Defaults to DriverSQLite3.
func WithDriver(name string) Option {
	return func(s *SQLiteStorage) {
		if name != "" {
			s.driver = name
		}
	}
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. Foreign keys are enforced on
// every connection so deleting a document removes its chunks.
func NewSQLiteStorage(dbPath string, opts ...Option) (*SQLiteStorage, error) {
	s := &SQLiteStorage{driver: DriverSQLite3, path: dbPath}
	for _, opt := range opts {
		opt(s)
	}
	if s.driver != DriverSQLite3 && s.driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported sqlite driver %q", s.driver)
	}

	if dbPath != MemoryPath {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open(s.driver, dataSourceName(s.driver, dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == MemoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.db = db
	return s, nil
}

func dataSourceName(driver, dbPath string) string {
	if driver == DriverSQLite {
		return dbPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	return "file:" + dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL DEFAULT 'general',
		content TEXT NOT NULL DEFAULT '',
		metadata TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_client_id ON documents(client_id);

	CREATE TABLE IF NOT EXISTS document_chunks (
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		chunk_text TEXT NOT NULL,
		vector BLOB NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (document_id, chunk_index),
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Driver returns the database/sql driver in use.
func (s *SQLiteStorage) Driver() string {
	return s.driver
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.path
}

// SaveDocument inserts doc or updates the existing row with the same ID.
// CreatedAt is kept from the first save. Returns ErrOwnerMismatch if the ID
// already belongs to a different client.
func (s *SQLiteStorage) SaveDocument(ctx context.Context, doc *models.Document) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if doc.Type == "" {
		doc.Type = models.DefaultDocumentType
	}

	now := time.Now().UTC()
	var createdAt string
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO documents (id, client_id, title, type, content, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			type = excluded.type,
			content = excluded.content,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
		 WHERE documents.client_id = excluded.client_id
		 RETURNING created_at`,
		doc.ID, doc.ClientID, doc.Title, doc.Type, doc.Content, string(metadataJSON),
		now.Format(timeLayout), now.Format(timeLayout),
	).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrOwnerMismatch, doc.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}

	doc.CreatedAt = parseTime(createdAt)
	doc.UpdatedAt = now
	return nil
}

// GetDocument returns a document by ID, or ErrNotFound.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, client_id, title, type, content, metadata, created_at, updated_at
		 FROM documents WHERE id = ?`, id,
	)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// DeleteDocument removes a document and, through the foreign key, its chunks.
// Returns ErrNotFound if no row was deleted.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListDocuments returns a client's documents, newest first. limit <= 0 means no limit.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, clientID string, offset, limit int) ([]*models.Document, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, client_id, title, type, content, metadata, created_at, updated_at
		 FROM documents WHERE client_id = ?
		 ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		clientID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteChunks removes every chunk of a document.
func (s *SQLiteStorage) DeleteChunks(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// InsertChunk stores a single chunk. The parent document must exist.
func (s *SQLiteStorage) InsertChunk(ctx context.Context, chunk *models.Chunk) error {
	return insertChunk(ctx, s.db, chunk, time.Now().UTC())
}

// ReplaceChunks swaps the full chunk set of a document inside one transaction.
// Readers see either the previous set or the new one. On error nothing changes.
// Returns ErrNotFound if the document does not exist.
func (s *SQLiteStorage) ReplaceChunks(ctx context.Context, documentID string, chunks []*models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Write first so the transaction takes the write lock before it reads.
	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE id = ?`, documentID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to look up document: %w", err)
	}

	now := time.Now().UTC()
	for _, chunk := range chunks {
		if chunk.DocumentID != documentID {
			return fmt.Errorf("chunk %d belongs to %q, not %q", chunk.ChunkIndex, chunk.DocumentID, documentID)
		}
		if err := insertChunk(ctx, tx, chunk, now); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertChunk(ctx context.Context, db execer, chunk *models.Chunk, now time.Time) error {
	chunk.CreatedAt = now
	_, err := db.ExecContext(ctx,
		`INSERT INTO document_chunks (document_id, chunk_index, chunk_text, vector, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		chunk.DocumentID, chunk.ChunkIndex, chunk.Text, vector.Encode(chunk.Vector), now.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunk %d of %s: %w", chunk.ChunkIndex, chunk.DocumentID, err)
	}
	return nil
}

// GetChunksByDocumentID returns all chunks for a document ordered by chunk_index.
func (s *SQLiteStorage) GetChunksByDocumentID(ctx context.Context, documentID string) ([]*models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, chunk_index, chunk_text, vector, created_at
		 FROM document_chunks WHERE document_id = ? ORDER BY chunk_index`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		var chunk models.Chunk
		var blob []byte
		var createdAt string
		if err := rows.Scan(&chunk.DocumentID, &chunk.ChunkIndex, &chunk.Text, &blob, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if chunk.Vector, err = vector.Decode(blob); err != nil {
			return nil, fmt.Errorf("chunk %d of %s: %w", chunk.ChunkIndex, chunk.DocumentID, err)
		}
		chunk.CreatedAt = parseTime(createdAt)
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}

// ListChunksByOwner returns every chunk whose document belongs to clientID,
// ordered by document then chunk index. Chunks of other clients are never returned.
func (s *SQLiteStorage) ListChunksByOwner(ctx context.Context, clientID string) ([]*models.OwnedChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.document_id, c.chunk_index, c.chunk_text, c.vector, c.created_at, d.title
		 FROM document_chunks c
		 JOIN documents d ON d.id = c.document_id
		 WHERE d.client_id = ?
		 ORDER BY c.document_id, c.chunk_index`,
		clientID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks for client: %w", err)
	}
	defer rows.Close()

	var chunks []*models.OwnedChunk
	for rows.Next() {
		var oc models.OwnedChunk
		var blob []byte
		var createdAt string
		if err := rows.Scan(&oc.DocumentID, &oc.ChunkIndex, &oc.Text, &blob, &createdAt, &oc.DocumentTitle); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if oc.Vector, err = vector.Decode(blob); err != nil {
			return nil, fmt.Errorf("chunk %d of %s: %w", oc.ChunkIndex, oc.DocumentID, err)
		}
		oc.CreatedAt = parseTime(createdAt)
		chunks = append(chunks, &oc)
	}
	return chunks, rows.Err()
}

// CountDocuments returns the number of documents of a client, or of all clients when clientID is empty.
func (s *SQLiteStorage) CountDocuments(ctx context.Context, clientID string) (int64, error) {
	var count int64
	var err error
	if clientID == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE client_id = ?`, clientID).Scan(&count)
	}
	return count, err
}

// CountChunks returns the number of chunks of a client, or of all clients when clientID is empty.
func (s *SQLiteStorage) CountChunks(ctx context.Context, clientID string) (int64, error) {
	var count int64
	var err error
	if clientID == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM document_chunks c JOIN documents d ON d.id = c.document_id
			 WHERE d.client_id = ?`, clientID).Scan(&count)
	}
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*models.Document, error) {
	var doc models.Document
	var metadataJSON sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&doc.ID, &doc.ClientID, &doc.Title, &doc.Type, &doc.Content,
		&metadataJSON, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	doc.CreatedAt = parseTime(createdAt)
	doc.UpdatedAt = parseTime(updatedAt)
	return &doc, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
