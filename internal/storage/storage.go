// Package storage defines the persistence interface for documents and their chunks.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/yomu/internal/models"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines document and chunk persistence operations.
type Storage interface {
	// Document operations
	SaveDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, clientID string, offset, limit int) ([]*models.Document, error)

	// Chunk operations
	DeleteChunks(ctx context.Context, documentID string) error
	InsertChunk(ctx context.Context, chunk *models.Chunk) error
	ReplaceChunks(ctx context.Context, documentID string, chunks []*models.Chunk) error
	GetChunksByDocumentID(ctx context.Context, documentID string) ([]*models.Chunk, error)
	ListChunksByOwner(ctx context.Context, clientID string) ([]*models.OwnedChunk, error)

	// Stats
	CountDocuments(ctx context.Context, clientID string) (int64, error)
	CountChunks(ctx context.Context, clientID string) (int64, error)

	Close() error
}
