package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/NashedShahRoni22/nsr-tools/packages/spreadsheet"
)

// Saver persists document snapshots. store.Store satisfies it.
type Saver interface {
	Save(ctx context.Context, doc *spreadsheet.Document) error
}

// autosaver writes snapshots in the background. only the newest pending
// snapshot is kept, so a slow store never sees an older document after a
// newer one
type autosaver struct {
	saver   Saver
	logger  *zap.Logger
	timeout time.Duration

	mu      sync.Mutex
	pending *spreadsheet.Document
	wake    chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func newAutosaver(saver Saver, logger *zap.Logger, timeout time.Duration) *autosaver {
	as := &autosaver{
		saver:   saver,
		logger:  logger,
		timeout: timeout,
		wake:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go as.run()
	return as
}

// submit queues a snapshot and returns immediately
func (as *autosaver) submit(doc *spreadsheet.Document) {
	as.mu.Lock()
	as.pending = doc
	as.mu.Unlock()

	select {
	case as.wake <- struct{}{}:
	default:
	}
}

// stop writes whatever is still pending and waits for the worker to exit
func (as *autosaver) stop() {
	close(as.stopCh)
	<-as.doneCh
}

func (as *autosaver) run() {
	defer close(as.doneCh)

	for {
		select {
		case <-as.wake:
			as.flush()
		case <-as.stopCh:
			as.flush()
			return
		}
	}
}

func (as *autosaver) flush() {
	as.mu.Lock()
	doc := as.pending
	as.pending = nil
	as.mu.Unlock()

	if doc == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), as.timeout)
	defer cancel()

	if err := as.saver.Save(ctx, doc); err != nil {
		as.logger.Warn("autosave failed",
			zap.String("document", doc.Name),
			zap.Error(err))
		return
	}
	as.logger.Debug("autosaved", zap.String("document", doc.Name), zap.Int("cells", len(doc.Cells)))
}
