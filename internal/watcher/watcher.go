// Package watcher keeps the index in step with an ingest folder laid out as
// <root>/<client id>/<files>, using fsnotify with per-file debouncing.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/yomu/internal/fileid"
)

const defaultDebounce = 400 * time.Millisecond

// Handler is called with the owning client and the absolute file path.
type Handler func(clientID, path string)

// Watcher watches the ingest root recursively and reports file changes per client.
type Watcher struct {
	root       string
	extensions []string
	onIndex    Handler
	onRemove   Handler
	debounce   time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	pending map[string]*time.Timer
	known   map[string]string // reported path -> client
	done    chan struct{}
	stop    sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets how long a file must be quiet before onIndex runs.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher for root. extensions filter which files are reported
// (empty means all). onIndex runs after a file is created or written and has been quiet
// for the debounce interval; onRemove runs when a file is removed or renamed away, and
// for every reported file below a folder that is removed or renamed away.
func NewWatcher(root string, extensions []string, onIndex, onRemove Handler, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		root:       filepath.Clean(root),
		extensions: extensions,
		onIndex:    onIndex,
		onRemove:   onRemove,
		debounce:   defaultDebounce,
		logger:     zap.NewNop(),
		pending:    make(map[string]*time.Timer),
		known:      make(map[string]string),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Root returns the watched ingest root.
func (w *Watcher) Root() string {
	return w.root
}

// Start creates the root if needed, watches every directory under it and handles
// events until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil
	}
	if err := os.MkdirAll(w.root, 0755); err != nil {
		return err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := addTree(fsw, w.root); err != nil {
		_ = fsw.Close()
		return err
	}
	w.fsw = fsw
	w.logger.Info("watching ingest root", zap.String("root", w.root), zap.Strings("extensions", w.extensions))
	go w.run(ctx, fsw)
	return nil
}

func addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.handleNewDirectory(fsw, path)
			return
		}
		if w.accepts(path) {
			w.schedule(path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		removed := w.forget(path)
		if clientID, ok := fileid.ClientFromPath(w.root, path); ok && matchExtension(path, w.extensions) {
			removed[path] = clientID
		}
		for p, clientID := range removed {
			w.logger.Debug("file removed", zap.String("client_id", clientID), zap.String("path", p))
			if w.onRemove != nil {
				w.onRemove(clientID, p)
			}
		}
	}
}

// forget drops pending and reported state for path and everything below it, and
// returns the reported files that were there.
func (w *Watcher) forget(path string) map[string]string {
	prefix := path + string(filepath.Separator)
	under := func(p string) bool { return p == path || strings.HasPrefix(p, prefix) }

	w.mu.Lock()
	defer w.mu.Unlock()
	for p, t := range w.pending {
		if under(p) {
			t.Stop()
			delete(w.pending, p)
		}
	}
	removed := make(map[string]string)
	for p, clientID := range w.known {
		if under(p) {
			removed[p] = clientID
			delete(w.known, p)
		}
	}
	return removed
}

// handleNewDirectory watches a directory created or moved under the root and
// reports the files already inside it.
func (w *Watcher) handleNewDirectory(fsw *fsnotify.Watcher, dir string) {
	if err := addTree(fsw, dir); err != nil {
		w.logger.Warn("failed to watch directory", zap.String("path", dir), zap.Error(err))
	}
	w.syncDirectory(dir)
}

// accepts reports whether path is a file inside a client folder with a wanted extension.
func (w *Watcher) accepts(path string) bool {
	if _, ok := fileid.ClientFromPath(w.root, path); !ok {
		return false
	}
	return matchExtension(path, w.extensions)
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// schedule runs onIndex for path once no new event has arrived for the debounce interval.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.dispatch(path)
	})
}

func (w *Watcher) dispatch(path string) {
	clientID, ok := fileid.ClientFromPath(w.root, path)
	if !ok {
		return
	}
	w.mu.Lock()
	w.known[path] = clientID
	w.mu.Unlock()
	w.logger.Debug("file changed", zap.String("client_id", clientID), zap.String("path", path))
	if w.onIndex != nil {
		w.onIndex(clientID, path)
	}
}

func (w *Watcher) syncDirectory(dir string) int {
	n := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() || !w.accepts(path) {
			return nil
		}
		w.dispatch(path)
		n++
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		w.logger.Warn("failed to scan directory", zap.String("path", dir), zap.Error(err))
	}
	return n
}

// SyncExisting reports every matching file already under the root to onIndex and
// returns how many were reported. Call it after Start to pick up files that were
// added while the watcher was not running.
func (w *Watcher) SyncExisting() int {
	n := w.syncDirectory(w.root)
	w.logger.Info("synced existing files", zap.String("root", w.root), zap.Int("files", n))
	return n
}

// Stop stops the watcher and drops pending debounced events.
func (w *Watcher) Stop() {
	w.mu.Lock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	fsw := w.fsw
	w.mu.Unlock()
	w.stop.Do(func() {
		close(w.done)
		if fsw != nil {
			_ = fsw.Close()
		}
	})
}
