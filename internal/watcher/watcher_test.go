package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type event struct {
	clientID string
	name     string
}

// recorder collects handler calls.
type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) handle(clientID, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{clientID: clientID, name: filepath.Base(path)})
}

func (r *recorder) has(clientID, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.clientID == clientID && e.name == name {
			return true
		}
	}
	return false
}

func (r *recorder) snapshot() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func startWatcher(t *testing.T, root string, exts []string, onIndex, onRemove Handler, opts ...WatcherOption) *Watcher {
	t.Helper()
	opts = append([]WatcherOption{WithDebounce(50 * time.Millisecond)}, opts...)
	w := NewWatcher(root, exts, onIndex, onRemove, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		cancel()
		t.Fatal(err)
	}
	t.Cleanup(func() {
		cancel()
		w.Stop()
	})
	return w
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.txt", []string{".txt"}, true},
		{"/a/b.TXT", []string{"txt"}, true},
		{"/a/b.md", []string{".txt"}, false},
		{"/a/b", nil, true},
		{"/a/b", []string{".txt"}, false},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.extensions); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestWatcher_Start_createsMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "ingest", "clients")
	startWatcher(t, root, nil, nil, nil)
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		t.Errorf("root directory should exist after Start: %v", err)
	}
}

func TestWatcher_SyncExisting(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "acme", "a.txt"), "hello")
	writeFile(t, filepath.Join(root, "acme", "nested", "b.txt"), "nested")
	writeFile(t, filepath.Join(root, "acme", "ignore.xyz"), "x")
	writeFile(t, filepath.Join(root, "globex", "c.txt"), "other client")
	writeFile(t, filepath.Join(root, "loose.txt"), "no client folder")

	var rec recorder
	w := startWatcher(t, root, []string{".txt"}, rec.handle, nil)
	if n := w.SyncExisting(); n != 3 {
		t.Errorf("SyncExisting() = %d, want 3 (%v)", n, rec.snapshot())
	}
	for _, want := range []event{{"acme", "a.txt"}, {"acme", "b.txt"}, {"globex", "c.txt"}} {
		if !rec.has(want.clientID, want.name) {
			t.Errorf("missing %v in %v", want, rec.snapshot())
		}
	}
	if rec.has("acme", "ignore.xyz") {
		t.Error("ignore.xyz should be filtered by extension")
	}
}

func TestWatcher_indexesNewFileForClient(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "acme"), 0755); err != nil {
		t.Fatal(err)
	}
	var rec recorder
	startWatcher(t, root, []string{".txt"}, rec.handle, nil)

	writeFile(t, filepath.Join(root, "acme", "f.txt"), "hello")
	writeFile(t, filepath.Join(root, "acme", "skip.bin"), "nope")
	waitFor(t, "f.txt to be indexed", func() bool { return rec.has("acme", "f.txt") })
	if rec.has("acme", "skip.bin") {
		t.Error("skip.bin should not be indexed")
	}
}

func TestWatcher_debouncesRepeatedWrites(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "acme", "busy.txt")
	writeFile(t, path, "v0")
	var rec recorder
	startWatcher(t, root, nil, rec.handle, nil, WithDebounce(300*time.Millisecond))

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("version"), 0600); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, "busy.txt to be indexed", func() bool { return rec.has("acme", "busy.txt") })
	time.Sleep(400 * time.Millisecond)
	if n := len(rec.snapshot()); n != 1 {
		t.Errorf("expected one debounced callback, got %d", n)
	}
}

func TestWatcher_newClientFolder(t *testing.T) {
	root := t.TempDir()
	var rec recorder
	startWatcher(t, root, []string{".txt", ".md"}, rec.handle, nil)

	nested := filepath.Join(root, "newclient", "level1", "level2")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher a moment to add the new directories.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(nested, "deep.txt"), "deep content")
	writeFile(t, filepath.Join(root, "newclient", "top.md"), "top")

	waitFor(t, "files in a new client folder", func() bool {
		return rec.has("newclient", "deep.txt") && rec.has("newclient", "top.md")
	})
}

func TestWatcher_removeFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "acme", "gone.txt")
	writeFile(t, path, "bye")
	var removed recorder
	startWatcher(t, root, []string{".txt"}, nil, removed.handle)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "remove callback", func() bool { return removed.has("acme", "gone.txt") })
}

func TestWatcher_removeClientFolder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "acme", "notes", "a.txt"), "alpha")
	writeFile(t, filepath.Join(root, "acme", "b.txt"), "beta")
	writeFile(t, filepath.Join(root, "globex", "c.txt"), "gamma")
	var removed recorder
	w := startWatcher(t, root, []string{".txt"}, nil, removed.handle)
	if n := w.SyncExisting(); n != 3 {
		t.Fatalf("SyncExisting = %d, want 3", n)
	}

	// Renaming the folder out of the root reports no per-file events.
	if err := os.Rename(filepath.Join(root, "acme"), filepath.Join(t.TempDir(), "acme")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "remove callbacks for the client folder", func() bool {
		return removed.has("acme", "a.txt") && removed.has("acme", "b.txt")
	})
	time.Sleep(100 * time.Millisecond)
	if removed.has("globex", "c.txt") {
		t.Error("files of another client must not be removed")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w := NewWatcher(t.TempDir(), nil, nil, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}
