package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/yomu/internal/config"
	"github.com/hyperjump/yomu/internal/extract"
	"github.com/hyperjump/yomu/internal/fileid"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/storage"
	"github.com/hyperjump/yomu/internal/vector"
)

const defaultWorkers = 4

// Indexer keeps each document's stored chunks in step with its content.
type Indexer struct {
	storage   storage.Storage
	chunker   *Chunker
	extractor *extract.Extractor
	workers   int
	locks     *keyedMutex
	logger    *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// NewIndexer creates an indexer over store. cfg may be nil for defaults.
// extractor may be nil; when nil, IndexFile reads every file as plain text.
func NewIndexer(store storage.Storage, cfg *config.IndexConfig, extractor *extract.Extractor, opts ...IndexerOption) *Indexer {
	chunkSize, workers := DefaultChunkSize, defaultWorkers
	if cfg != nil {
		if cfg.ChunkSize > 0 {
			chunkSize = cfg.ChunkSize
		}
		if cfg.Workers > 0 {
			workers = cfg.Workers
		}
	}
	idx := &Indexer{
		storage:   store,
		chunker:   NewChunker(chunkSize),
		extractor: extractor,
		workers:   workers,
		locks:     newKeyedMutex(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Reindex replaces every chunk of documentID with the chunks of content and
// returns how many were written. Calls for the same document run one at a time,
// and the replacement is atomic: on error the previous chunks stay in place.
func (idx *Indexer) Reindex(ctx context.Context, documentID, content string) (int, error) {
	unlock := idx.locks.Lock(documentID)
	defer unlock()
	return idx.reindex(ctx, documentID, content)
}

// reindex must be called with the document's lock held.
func (idx *Indexer) reindex(ctx context.Context, documentID, content string) (int, error) {
	segments := idx.chunker.Chunk(content)
	chunks := make([]*models.Chunk, len(segments))
	for i, segment := range segments {
		chunks[i] = &models.Chunk{
			DocumentID: documentID,
			ChunkIndex: i,
			Text:       segment,
			Vector:     vector.Vectorize(segment),
		}
	}
	if err := idx.storage.ReplaceChunks(ctx, documentID, chunks); err != nil {
		idx.logger.Error("reindex failed", zap.String("document_id", documentID), zap.Error(err))
		return 0, fmt.Errorf("failed to replace chunks: %w", err)
	}
	idx.logger.Debug("document reindexed",
		zap.String("document_id", documentID),
		zap.Int("chunks", len(chunks)),
	)
	return len(chunks), nil
}

// IndexDocument stores the document described by input (creating or updating it)
// and reindexes its content. A missing ID is generated.
func (idx *Indexer) IndexDocument(ctx context.Context, input *models.DocumentInput) (*models.Document, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	if input.ID == "" {
		input.ID = uuid.New().String()
	}
	doc := &models.Document{
		ID:       input.ID,
		ClientID: input.ClientID,
		Title:    strings.TrimSpace(input.Title),
		Type:     input.Type,
		Content:  Normalize(input.Content),
		Metadata: input.Metadata,
	}

	unlock := idx.locks.Lock(doc.ID)
	defer unlock()
	if err := idx.storage.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}
	if _, err := idx.reindex(ctx, doc.ID, doc.Content); err != nil {
		return nil, err
	}
	return doc, nil
}

// ReindexStored reindexes a document from its stored content.
func (idx *Indexer) ReindexStored(ctx context.Context, documentID string) (int, error) {
	unlock := idx.locks.Lock(documentID)
	defer unlock()
	doc, err := idx.storage.GetDocument(ctx, documentID)
	if err != nil {
		return 0, err
	}
	return idx.reindex(ctx, doc.ID, doc.Content)
}

// DeleteDocument removes a document; its chunks are removed with it.
func (idx *Indexer) DeleteDocument(ctx context.Context, id string) error {
	unlock := idx.locks.Lock(id)
	defer unlock()
	if err := idx.storage.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	idx.logger.Debug("document deleted", zap.String("document_id", id))
	return nil
}

const (
	metaKeySourcePath  = "source_path"
	metaKeySourceMtime = "source_mtime"
	metaKeySourceSize  = "source_size"
)

// IndexFile reads the file at path and indexes it for clientID. The document ID is
// derived from the client and absolute path, so indexing the same file again updates
// the same document. If allowedExts is non-empty the extension must be in it
// (case-insensitive). Files whose mtime and size match the stored document are skipped.
// Returns the indexed document, or nil when the file was skipped.
func (idx *Indexer) IndexFile(ctx context.Context, clientID, path string, allowedExts []string) (*models.Document, error) {
	return idx.IndexFileAs(ctx, clientID, path, "", allowedExts)
}

// IndexFileAs is IndexFile with an explicit document title. An empty title keeps
// the title already stored for the file, or the file name for a new document.
// An unchanged file is still reindexed when title differs from the stored one.
func (idx *Indexer) IndexFileAs(ctx context.Context, clientID, path, title string, allowedExts []string) (*models.Document, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, models.ErrClientRequired
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
		return nil, fmt.Errorf("extension %q not in allowed list", ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}

	docID := fileid.FileDocID(clientID, absPath)
	prev := idx.storedFile(ctx, docID, clientID)
	if title == "" {
		title = filepath.Base(absPath)
		if prev != nil && prev.Title != "" {
			title = prev.Title
		}
	}
	if prev != nil && prev.Title == title && sameSource(prev, absPath, info) {
		idx.logger.Debug("skipping unchanged file", zap.String("path", absPath))
		return nil, nil
	}

	text, err := idx.extractContent(absPath)
	if err != nil {
		return nil, fmt.Errorf("extract content: %w", err)
	}
	doc, err := idx.IndexDocument(ctx, &models.DocumentInput{
		ID:       docID,
		ClientID: clientID,
		Title:    title,
		Content:  text,
		Metadata: map[string]interface{}{
			metaKeySourcePath:  absPath,
			metaKeySourceMtime: strconv.FormatInt(info.ModTime().UnixNano(), 10),
			metaKeySourceSize:  strconv.FormatInt(info.Size(), 10),
		},
	})
	if err != nil {
		return nil, err
	}
	idx.logger.Info("file indexed",
		zap.String("client_id", clientID),
		zap.String("path", absPath),
		zap.String("document_id", docID),
	)
	return doc, nil
}

// storedFile returns the document already stored under docID for clientID, or nil.
func (idx *Indexer) storedFile(ctx context.Context, docID, clientID string) *models.Document {
	doc, err := idx.storage.GetDocument(ctx, docID)
	if err != nil || doc.ClientID != clientID {
		return nil
	}
	return doc
}

// sameSource reports whether doc was indexed from absPath with the same mtime and size.
func sameSource(doc *models.Document, absPath string, info os.FileInfo) bool {
	if doc.Metadata == nil || doc.Metadata[metaKeySourcePath] != absPath {
		return false
	}
	// Stored as strings: UnixNano exceeds the 53 bits a JSON number keeps.
	return metadataInt64(doc.Metadata, metaKeySourceMtime) == info.ModTime().UnixNano() &&
		metadataInt64(doc.Metadata, metaKeySourceSize) == info.Size()
}

func metadataInt64(m map[string]interface{}, key string) int64 {
	switch n := m[key].(type) {
	case string:
		x, _ := strconv.ParseInt(n, 10, 64)
		return x
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// IndexDirectory walks dir recursively and indexes, for clientID, each regular file
// whose extension is in allowedExts (every extractable file when empty). Files are indexed by up to
// index.workers goroutines. Returns the number of files indexed or updated, and the
// first error encountered, which stops the remaining work.
func (idx *Indexer) IndexDirectory(ctx context.Context, clientID, dir string, allowedExts []string) (int, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}

	var paths []string
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
			return nil
		}
		if len(allowedExts) == 0 && idx.extractor != nil && !extract.Supported(ext) {
			return nil
		}
		// Resolve symlinks so only regular files are indexed.
		if finfo, statErr := os.Stat(path); statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return 0, err
	}

	var n atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)
	for _, path := range paths {
		path := path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := idx.IndexFile(gctx, clientID, path, allowedExts)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if doc != nil {
				n.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()
	return int(n.Load()), err
}

func (idx *Indexer) extractContent(path string) (string, error) {
	if idx.extractor != nil {
		return idx.extractor.Extract(path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
