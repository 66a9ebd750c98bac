package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/config"
	"github.com/hyperjump/yomu/internal/extract"
	"github.com/hyperjump/yomu/internal/fileid"
	"github.com/hyperjump/yomu/internal/indexer"
	"github.com/hyperjump/yomu/internal/search"
	"github.com/hyperjump/yomu/internal/storage"
	"github.com/hyperjump/yomu/internal/watcher"
)

// Components holds initialized services.
type Components struct {
	Storage   *storage.SQLiteStorage
	Extractor *extract.Extractor
	Indexer   *indexer.Indexer
	Retriever *search.Retriever
}

// Close releases the storage handle.
func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath, storage.WithDriver(cfg.Storage.Driver))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if logger != nil {
		logger.Info("storage initialized",
			zap.String("driver", store.Driver()),
			zap.String("path", store.Path()),
		)
	}

	idxOpts := []indexer.IndexerOption{}
	searchOpts := []search.RetrieverOption{}
	if debug && logger != nil {
		idxOpts = append(idxOpts, indexer.WithLogger(logger))
		searchOpts = append(searchOpts, search.WithLogger(logger))
	}
	extractor := extract.NewExtractor()
	return &Components{
		Storage:   store,
		Extractor: extractor,
		Indexer:   indexer.NewIndexer(store, &cfg.Index, extractor, idxOpts...),
		Retriever: search.NewRetriever(store, &cfg.Search, searchOpts...),
	}, nil
}

// newIngestWatcher returns a watcher over cfg.Ingest.Root that keeps each client's
// files indexed, or nil when no ingest root is configured or watching is off.
func newIngestWatcher(cfg *config.Config, c *Components, logger *zap.Logger) *watcher.Watcher {
	if cfg.Ingest.Root == "" || !cfg.Ingest.WatchOrDefault() {
		return nil
	}
	exts := cfg.Ingest.Extensions
	idx := c.Indexer
	return watcher.NewWatcher(
		cfg.Ingest.Root,
		exts,
		func(clientID, path string) {
			if _, err := idx.IndexFile(context.Background(), clientID, path, exts); err != nil {
				logger.Warn("watch index file failed",
					zap.String("client_id", clientID),
					zap.String("path", path),
					zap.Error(err),
				)
			}
		},
		func(clientID, path string) {
			absPath, err := filepath.Abs(path)
			if err == nil {
				err = idx.DeleteDocument(context.Background(), fileid.FileDocID(clientID, absPath))
			}
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				logger.Warn("watch delete by path failed",
					zap.String("client_id", clientID),
					zap.String("path", path),
					zap.Error(err),
				)
			}
		},
		watcher.WithLogger(logger),
	)
}

// indexPath indexes a file or directory for clientID and returns a summary line.
// A non-empty title replaces the file name as the document title of a single file.
func indexPath(ctx context.Context, c *Components, clientID, title, path string, exts []string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat path: %w", err)
	}
	if info.IsDir() {
		n, err := c.Indexer.IndexDirectory(ctx, clientID, path, exts)
		if err != nil {
			return "", fmt.Errorf("indexing directory failed: %w", err)
		}
		return fmt.Sprintf("Indexed %d file(s) from %s for %s", n, path, clientID), nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	doc, err := c.Indexer.IndexFileAs(ctx, clientID, absPath, title, nil)
	if err != nil {
		return "", fmt.Errorf("indexing failed: %w", err)
	}
	if doc == nil {
		return fmt.Sprintf("Document unchanged: %s", fileid.FileDocID(clientID, absPath)), nil
	}
	return fmt.Sprintf("Document indexed successfully: %s", doc.ID), nil
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	ClientID       string                 `json:"client_id,omitempty"`
	Documents      int64                  `json:"documents"`
	Chunks         int64                  `json:"chunks"`
	DiskUsageBytes *int64                 `json:"disk_usage_bytes,omitempty"`
	Config         map[string]interface{} `json:"config,omitempty"`
}

// localStatus computes the status report straight from storage.
func localStatus(ctx context.Context, c *Components, cfg *config.Config, clientID string) (*statusResponse, error) {
	docCount, err := c.Storage.CountDocuments(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("count documents failed: %w", err)
	}
	chunkCount, err := c.Storage.CountChunks(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("count chunks failed: %w", err)
	}
	status := &statusResponse{
		ClientID:  clientID,
		Documents: docCount,
		Chunks:    chunkCount,
		Config: map[string]interface{}{
			"storage_driver": c.Storage.Driver(),
			"database_path":  c.Storage.Path(),
			"chunk_size":     cfg.Index.ChunkSize,
			"weighting":      c.Retriever.Weighting(),
		},
	}
	if diskBytes, err := storage.DiskUsageBytes(storage.DatabaseFiles(c.Storage.Path())...); err == nil {
		status.DiskUsageBytes = &diskBytes
	}
	return status, nil
}
