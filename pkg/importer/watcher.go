package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/catalog/pkg/observability"
)

// Watcher re-imports taxonomy files below a directory when they change
type Watcher struct {
	importer *Importer
	dir      string
	debounce time.Duration
	logger   *observability.Logger
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
	ready   chan string
	done    chan struct{}
}

// NewWatcher watches dir and every directory below it. Writes to the same
// file within debounce collapse into one import.
func NewWatcher(imp *Importer, dir string, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	w := &Watcher{
		importer: imp,
		dir:      dir,
		debounce: debounce,
		logger:   imp.logger.WithField("dir", dir),
		watcher:  fw,
		pending:  make(map[string]*time.Timer),
		ready:    make(chan string, 64),
		done:     make(chan struct{}),
	}
	if err := w.addTree(dir); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
		}
		return nil
	})
}

// Run processes file events until ctx is done, then releases the watcher
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stop()
	w.logger.Info("watching for taxonomy changes")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)

		case path := <-w.ready:
			if err := w.importFile(ctx, path); err != nil {
				w.logger.WithError(err).WithField("path", path).Error("taxonomy import failed")
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("watcher error")
		}
	}
}

// importFile imports one changed file; a panic becomes an error so the
// watch loop keeps running
func (w *Watcher) importFile(ctx context.Context, path string) (err error) {
	defer func() {
		if rerr := observability.MustRecover(recover()); rerr != nil {
			err = rerr
		}
	}()
	_, err = w.importer.Import(ctx, path)
	return err
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.WithError(err).Warn("failed to watch new directory")
			}
			return
		}
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !IsTaxonomyFile(event.Name) {
		return
	}
	w.schedule(event.Name)
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		select {
		case w.ready <- path:
		case <-w.done:
		}
	})
}

func (w *Watcher) stop() {
	w.mu.Lock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	close(w.done)
	w.watcher.Close()
}
