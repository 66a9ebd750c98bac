// Package models defines core data structures for documents, chunks, queries, and search results.
package models

import (
	"errors"
	"strings"
	"time"

	"github.com/hyperjump/yomu/internal/vector"
)

// DefaultDocumentType is used when a document is stored without a type.
const DefaultDocumentType = "general"

var (
	// ErrClientRequired is returned when a request does not name the owning client.
	ErrClientRequired = errors.New("client id is required")
	// ErrTitleRequired is returned when a document input has no title.
	ErrTitleRequired = errors.New("title is required")
)

// Document is a client-owned reference document.
type Document struct {
	ID        string                 `json:"id" db:"id"`
	ClientID  string                 `json:"client_id" db:"client_id"`
	Title     string                 `json:"title" db:"title"`
	Type      string                 `json:"type" db:"type"`
	Content   string                 `json:"content" db:"content"`
	Metadata  map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt time.Time              `json:"updated_at" db:"updated_at"`
}

// Chunk is one retrievable segment of a document together with its term weights.
// ChunkIndex is zero-based and follows the position of Text in the source document.
type Chunk struct {
	DocumentID string              `json:"document_id" db:"document_id"`
	ChunkIndex int                 `json:"chunk_index" db:"chunk_index"`
	Text       string              `json:"chunk_text" db:"chunk_text"`
	Vector     vector.SparseVector `json:"-" db:"vector"`
	CreatedAt  time.Time           `json:"created_at" db:"created_at"`
}

// OwnedChunk is a chunk loaded for retrieval, joined with its parent document's title.
type OwnedChunk struct {
	Chunk
	DocumentTitle string `json:"document_title"`
}

// DocumentInput is the input for creating or updating a document.
type DocumentInput struct {
	ID       string                 `json:"id,omitempty"`
	ClientID string                 `json:"client_id,omitempty"`
	Title    string                 `json:"title"`
	Type     string                 `json:"type,omitempty"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Validate checks required fields and applies the default type.
// Empty content is valid and indexes to zero chunks.
func (in *DocumentInput) Validate() error {
	in.ClientID = strings.TrimSpace(in.ClientID)
	if in.ClientID == "" {
		return ErrClientRequired
	}
	if strings.TrimSpace(in.Title) == "" {
		return ErrTitleRequired
	}
	if in.Type == "" {
		in.Type = DefaultDocumentType
	}
	return nil
}
