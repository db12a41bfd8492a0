package store

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/NashedShahRoni22/nsr-tools/packages/spreadsheet"
)

// DocumentWatcher reports external changes to one document file. writes
// made through the owning FileStore are not reported.
type DocumentWatcher struct {
	mu          sync.Mutex
	store       *FileStore
	watcher     *fsnotify.Watcher
	path        string
	onChange    func(*spreadsheet.Document)
	pending     time.Time // zero when nothing is waiting to settle
	debounceDur time.Duration
	logger      *zap.Logger
}

// NewWatcher starts watching the directory of the named document. Run must
// be called to deliver changes, it also releases the watcher.
func (fs *FileStore) NewWatcher(name string, onChange func(*spreadsheet.Document)) (*DocumentWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// the directory is watched rather than the file, renames replace the inode
	if err := watcher.Add(fs.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", fs.dir, err)
	}

	return &DocumentWatcher{
		store:       fs,
		watcher:     watcher,
		path:        fs.Path(name),
		onChange:    onChange,
		debounceDur: 200 * time.Millisecond, // editors save in bursts
		logger:      fs.logger.With(zap.String("document", name)),
	}, nil
}

// Run is the event loop. it returns nil when ctx is cancelled.
func (dw *DocumentWatcher) Run(ctx context.Context) error {
	defer dw.watcher.Close()

	debounceTicker := time.NewTicker(dw.debounceDur / 4)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-dw.watcher.Events:
			if !ok {
				return nil
			}
			dw.handleEvent(event)

		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return nil
			}
			dw.logger.Warn("watch error", zap.Error(err))

		case <-debounceTicker.C:
			dw.processDebounced()
		}
	}
}

func (dw *DocumentWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(dw.path) {
		return
	}
	// a rename onto the path shows up as Create
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	dw.mu.Lock()
	dw.pending = time.Now()
	dw.mu.Unlock()
}

func (dw *DocumentWatcher) processDebounced() {
	dw.mu.Lock()
	if dw.pending.IsZero() || time.Since(dw.pending) < dw.debounceDur {
		dw.mu.Unlock()
		return
	}
	dw.pending = time.Time{}
	dw.mu.Unlock()

	payload, err := os.ReadFile(dw.path)
	if err != nil {
		dw.logger.Warn("failed to read changed document", zap.Error(err))
		return
	}
	if dw.store.wroteLast(dw.path, payload) {
		return
	}

	doc, err := spreadsheet.DecodeDocument(bytes.NewReader(payload))
	if err != nil {
		// half-written or hand-edited garbage, wait for the next change
		dw.logger.Warn("ignoring malformed document change", zap.Error(err))
		return
	}

	dw.logger.Info("document changed on disk")
	dw.onChange(doc)
}
