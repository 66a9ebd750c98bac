package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/config"
	"github.com/hyperjump/yomu/internal/indexer"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/internal/search"
	"github.com/hyperjump/yomu/internal/storage"
)

type testServer struct {
	srv   *Server
	store *storage.SQLiteStorage
	h     http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{}
	cfg.Storage.DatabasePath = filepath.Join(t.TempDir(), "db.sqlite")
	config.ApplyDefaults(cfg)
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	idx := indexer.NewIndexer(store, &cfg.Index, nil)
	retriever := search.NewRetriever(store, &cfg.Search)
	srv := NewServer(idx, retriever, store, cfg, zap.NewNop())
	return &testServer{srv: srv, store: store, h: srv.Handler()}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatal(err)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	ts.h.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
}

func (ts *testServer) create(t *testing.T, clientID, id, title, content string) {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/v1/clients/"+clientID+"/documents",
		models.DocumentInput{ID: id, Title: title, Content: content})
	if w.Code != http.StatusCreated {
		t.Fatalf("create %s: status %d, body %s", id, w.Code, w.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleCreateAndSearch(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t, "acme", "cats", "Cats", "Cats purr and cats sleep.")
	ts.create(t, "acme", "dogs", "Dogs", "Dogs bark loudly.")

	w := ts.do(t, http.MethodPost, "/api/v1/clients/acme/search", searchRequest{Query: "cats", Limit: 5})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var resp models.SearchResponse
	decode(t, w, &resp)
	if len(resp.Results) != 2 {
		t.Fatalf("results: got %d, want 2", len(resp.Results))
	}
	first := resp.Results[0]
	if first.DocumentID != "cats" || first.DocumentTitle != "Cats" || first.Rank != 1 {
		t.Errorf("first result: %+v", first)
	}
	if first.Similarity <= resp.Results[1].Similarity {
		t.Errorf("cats chunk should outrank dogs chunk: %v vs %v", first.Similarity, resp.Results[1].Similarity)
	}
	if resp.ClientID != "acme" || resp.Weighting != config.WeightingDocument {
		t.Errorf("response metadata: %+v", resp)
	}
}

func TestHandleSearch_otherClientSeesNothing(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t, "acme", "cats", "Cats", "Cats purr and cats sleep.")

	w := ts.do(t, http.MethodPost, "/api/v1/clients/globex/search", searchRequest{Query: "cats"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var resp models.SearchResponse
	decode(t, w, &resp)
	if len(resp.Results) != 0 || resp.Total != 0 {
		t.Errorf("expected no results for another client, got %+v", resp.Results)
	}
}

func TestHandleSearch_invalidBody(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/v1/clients/acme/search", "{not json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestHandleCreateDocument_badRequests(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		name string
		body interface{}
	}{
		{"invalid json", "{"},
		{"missing title", models.DocumentInput{Content: "x"}},
		{"client mismatch", models.DocumentInput{ClientID: "globex", Title: "t", Content: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/v1/clients/acme/documents", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400 (body %s)", w.Code, w.Body.String())
			}
		})
	}
}

func TestHandleGetDocument(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t, "acme", "doc-1", "Brand voice", "Friendly and direct.")

	w := ts.do(t, http.MethodGet, "/api/v1/documents/doc-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var doc models.Document
	decode(t, w, &doc)
	if doc.ClientID != "acme" || doc.Content != "Friendly and direct." {
		t.Errorf("document: %+v", doc)
	}

	if w := ts.do(t, http.MethodGet, "/api/v1/documents/doc-1?client_id=globex", nil); w.Code != http.StatusNotFound {
		t.Errorf("other client: got %d, want 404", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/api/v1/documents/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing: got %d, want 404", w.Code)
	}
}

func TestHandleUpdateDocument(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t, "acme", "doc-1", "Old", "old text")

	w := ts.do(t, http.MethodPut, "/api/v1/documents/doc-1",
		models.DocumentInput{ClientID: "acme", Title: "New", Content: "new text"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	chunks, err := ts.store.GetChunksByDocumentID(context.Background(), "doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || chunks[0].Text != "new text" {
		t.Errorf("chunks after update: %+v", chunks)
	}

	w = ts.do(t, http.MethodPut, "/api/v1/documents/doc-1",
		models.DocumentInput{ClientID: "globex", Title: "Hijack", Content: "x"})
	if w.Code != http.StatusConflict {
		t.Errorf("owner mismatch: got %d, want 409", w.Code)
	}
	w = ts.do(t, http.MethodPut, "/api/v1/documents/doc-1",
		models.DocumentInput{ID: "doc-2", ClientID: "acme", Title: "t"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("id mismatch: got %d, want 400", w.Code)
	}
}

func TestHandleDeleteDocument(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t, "acme", "doc-1", "Doc", "some text")

	if w := ts.do(t, http.MethodDelete, "/api/v1/documents/doc-1", nil); w.Code != http.StatusOK {
		t.Fatalf("delete: got %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/api/v1/documents/doc-1", nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete: got %d, want 404", w.Code)
	}
	if w := ts.do(t, http.MethodDelete, "/api/v1/documents/doc-1", nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete: got %d, want 404", w.Code)
	}
}

func TestHandleReindexDocument(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t, "acme", "doc-1", "Doc", "First paragraph.\n\nSecond paragraph.")

	w := ts.do(t, http.MethodPost, "/api/v1/documents/doc-1/reindex", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Chunks int `json:"chunks"`
	}
	decode(t, w, &out)
	if out.Chunks != 1 {
		t.Errorf("chunks: got %d, want 1", out.Chunks)
	}
	if w := ts.do(t, http.MethodPost, "/api/v1/documents/missing/reindex", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing: got %d, want 404", w.Code)
	}
}

func TestHandleListDocuments(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t, "acme", "a", "A", "alpha")
	ts.create(t, "acme", "b", "B", "beta")
	ts.create(t, "globex", "c", "C", "gamma")

	w := ts.do(t, http.MethodGet, "/api/v1/clients/acme/documents?limit=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Documents []*models.Document `json:"documents"`
		Total     int64              `json:"total"`
	}
	decode(t, w, &out)
	if len(out.Documents) != 1 || out.Total != 2 {
		t.Errorf("got %d documents, total %d; want 1 and 2", len(out.Documents), out.Total)
	}
	if out.Documents[0].ClientID != "acme" {
		t.Errorf("listed another client's document: %+v", out.Documents[0])
	}

	if w := ts.do(t, http.MethodGet, "/api/v1/clients/acme/documents?offset=-1", nil); w.Code != http.StatusBadRequest {
		t.Errorf("negative offset: got %d, want 400", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t, "acme", "a", "A", "alpha")
	ts.create(t, "globex", "b", "B", "beta")

	w := ts.do(t, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]interface{}
	decode(t, w, &out)
	if out["documents"] != float64(2) || out["chunks"] != float64(2) {
		t.Errorf("counts: %v", out)
	}
	if n, ok := out["disk_usage_bytes"].(float64); !ok || n <= 0 {
		t.Errorf("disk_usage_bytes: %v", out["disk_usage_bytes"])
	}

	w = ts.do(t, http.MethodGet, "/api/v1/status?client_id=acme", nil)
	out = nil
	decode(t, w, &out)
	if out["documents"] != float64(1) || out["client_id"] != "acme" {
		t.Errorf("client status: %v", out)
	}
}

func TestHandleStorageFailureIsGeneric(t *testing.T) {
	ts := newTestServer(t)
	ts.store.Close()

	w := ts.do(t, http.MethodGet, "/api/v1/clients/acme/documents", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want 500", w.Code)
	}
	var out map[string]string
	decode(t, w, &out)
	if out["error"] != "internal error" {
		t.Errorf("error message leaked details: %q", out["error"])
	}
}
