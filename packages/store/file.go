package store

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/NashedShahRoni22/nsr-tools/packages/spreadsheet"
)

const documentExt = ".json"

// FileStore keeps one JSON file per document in a directory.
type FileStore struct {
	dir    string
	logger *zap.Logger

	mu      sync.Mutex
	written map[string][]byte // path -> last payload this store wrote
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		dir:     dir,
		logger:  logger,
		written: make(map[string][]byte),
	}, nil
}

// Dir returns the document directory.
func (fs *FileStore) Dir() string {
	return fs.dir
}

// Path returns the file a document name is stored in. names are escaped so
// any name maps to a single file inside the directory
func (fs *FileStore) Path(name string) string {
	return filepath.Join(fs.dir, url.PathEscape(name)+documentExt)
}

// Save writes the document atomically: a temp file in the same directory
// is renamed over the old one.
func (fs *FileStore) Save(ctx context.Context, doc *spreadsheet.Document) error {
	payload, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	path := fs.Path(doc.Name)

	fs.mu.Lock()
	defer fs.mu.Unlock()

	tmp, err := os.CreateTemp(fs.dir, ".save-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace document: %w", err)
	}

	fs.written[path] = payload
	fs.logger.Debug("saved document", zap.String("name", doc.Name), zap.String("path", path))
	return nil
}

// Load reads a document by name.
func (fs *FileStore) Load(ctx context.Context, name string) (*spreadsheet.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(fs.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer f.Close()

	doc, err := spreadsheet.DecodeDocument(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", name, err)
	}
	return doc, nil
}

// List returns the stored document names, sorted.
func (fs *FileStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if name, ok := documentName(entry.Name()); ok && !entry.IsDir() {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// Delete removes a document.
func (fs *FileStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := fs.Path(name)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("failed to delete document: %w", err)
	}

	fs.mu.Lock()
	delete(fs.written, path)
	fs.mu.Unlock()
	return nil
}

// Close is a no-op, files are not held open.
func (fs *FileStore) Close() error {
	return nil
}

// wroteLast reports whether payload is what this store last wrote to path.
func (fs *FileStore) wroteLast(path string, payload []byte) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	last, ok := fs.written[path]
	return ok && string(last) == string(payload)
}

// documentName maps a file name back to the document name
func documentName(file string) (string, bool) {
	if strings.HasPrefix(file, ".") || !strings.HasSuffix(file, documentExt) {
		return "", false
	}
	name, err := url.PathUnescape(strings.TrimSuffix(file, documentExt))
	if err != nil {
		return "", false
	}
	return name, true
}
