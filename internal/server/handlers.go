package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/storage"
)

const defaultListLimit = 100

// searchRequest is the body of a client-scoped search.
type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	var input models.DocumentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if input.ClientID != "" && input.ClientID != clientID {
		s.respondError(w, http.StatusBadRequest, "client_id does not match the request path")
		return
	}
	input.ClientID = clientID
	s.logger.Debug("index document request",
		zap.String("client_id", clientID),
		zap.String("id", input.ID),
		zap.String("title", input.Title),
	)
	doc, err := s.indexer.IndexDocument(r.Context(), &input)
	if err != nil {
		s.respondFailure(w, "indexing failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{
		"id":        doc.ID,
		"client_id": doc.ClientID,
		"status":    "indexed",
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		s.respondError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil || limit < 0 {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	docs, err := s.storage.ListDocuments(r.Context(), clientID, offset, limit)
	if err != nil {
		s.respondFailure(w, "list documents failed", err)
		return
	}
	total, err := s.storage.CountDocuments(r.Context(), clientID)
	if err != nil {
		s.respondFailure(w, "count documents failed", err)
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"total":     total,
		"offset":    offset,
		"limit":     limit,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	query := &models.SearchQuery{
		ClientID: chi.URLParam(r, "clientID"),
		Query:    req.Query,
		Limit:    req.Limit,
	}
	s.logger.Debug("search request",
		zap.String("client_id", query.ClientID),
		zap.String("query", query.Query),
		zap.Int("limit", query.Limit),
	)
	response, err := s.retriever.Run(r.Context(), query)
	if err != nil {
		s.respondFailure(w, "search failed", err)
		return
	}
	if response.Results == nil {
		response.Results = []*models.ChunkResult{}
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.storage.GetDocument(r.Context(), id)
	if err != nil {
		s.respondFailure(w, "get document failed", err)
		return
	}
	// A client may only read its own documents; answer as if the ID did not exist.
	if clientID := r.URL.Query().Get("client_id"); clientID != "" && clientID != doc.ClientID {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var input models.DocumentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if input.ID != "" && input.ID != id {
		s.respondError(w, http.StatusBadRequest, "id does not match the request path")
		return
	}
	input.ID = id
	s.logger.Debug("update document request", zap.String("id", id), zap.String("client_id", input.ClientID))
	doc, err := s.indexer.IndexDocument(r.Context(), &input)
	if err != nil {
		s.respondFailure(w, "update failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{
		"id":        doc.ID,
		"client_id": doc.ClientID,
		"status":    "indexed",
	})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	if err := s.indexer.DeleteDocument(r.Context(), id); err != nil {
		s.respondFailure(w, "deletion failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleReindexDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := s.indexer.ReindexStored(r.Context(), id)
	if err != nil {
		s.respondFailure(w, "reindex failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"id": id, "chunks": n, "status": "reindexed"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus reports document and chunk counts, for one client when client_id is set.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := strings.TrimSpace(r.URL.Query().Get("client_id"))
	docCount, err := s.storage.CountDocuments(ctx, clientID)
	if err != nil {
		s.respondFailure(w, "status: count documents failed", err)
		return
	}
	chunkCount, err := s.storage.CountChunks(ctx, clientID)
	if err != nil {
		s.respondFailure(w, "status: count chunks failed", err)
		return
	}
	resp := map[string]interface{}{
		"documents": docCount,
		"chunks":    chunkCount,
	}
	if clientID != "" {
		resp["client_id"] = clientID
	}

	cfg := s.config
	resp["config"] = map[string]interface{}{
		"storage_driver": cfg.Storage.Driver,
		"database_path":  cfg.Storage.DatabasePath,
		"chunk_size":     cfg.Index.ChunkSize,
		"weighting":      s.retriever.Weighting(),
		"default_limit":  cfg.Search.DefaultLimit,
		"max_limit":      cfg.Search.MaxLimit,
		"ingest_root":    cfg.Ingest.Root,
	}
	if diskBytes, err := storage.DiskUsageBytes(storage.DatabaseFiles(cfg.Storage.DatabasePath)...); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// respondFailure maps err to a status code. Unexpected errors are logged and
// reported with a generic message so storage details never reach the client.
func (s *Server) respondFailure(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "document not found")
	case errors.Is(err, models.ErrClientRequired), errors.Is(err, models.ErrTitleRequired):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrOwnerMismatch):
		s.respondError(w, http.StatusConflict, "document belongs to another client")
	default:
		s.logger.Error(msg, zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
