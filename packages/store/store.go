package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/NashedShahRoni22/nsr-tools/packages/config"
	"github.com/NashedShahRoni22/nsr-tools/packages/spreadsheet"
)

// ErrNotFound is returned when no document has the requested name.
var ErrNotFound = errors.New("document not found")

// Store persists spreadsheet documents by name.
type Store interface {
	Save(ctx context.Context, doc *spreadsheet.Document) error
	Load(ctx context.Context, name string) (*spreadsheet.Document, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) error
	Close() error
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// Open creates the store selected by the configuration.
func Open(cfg config.StorageConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Driver {
	case "file", "":
		return NewFileStore(cfg.Path, logger)
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
}

// encodeDocument renders a document the same way for every backend.
func encodeDocument(doc *spreadsheet.Document) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("cannot save a nil document")
	}
	if doc.Name == "" {
		return nil, fmt.Errorf("cannot save a document without a name")
	}

	var buf bytes.Buffer
	if err := doc.Encode(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return buf.Bytes(), nil
}
