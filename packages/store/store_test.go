package store

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/NashedShahRoni22/nsr-tools/packages/config"
	"github.com/NashedShahRoni22/nsr-tools/packages/spreadsheet"
)

func sampleDocument(t *testing.T, name string) *spreadsheet.Document {
	t.Helper()
	s := spreadsheet.NewSheet()
	require.NoError(t, s.Set("A1", "4"))
	require.NoError(t, s.Set("A2", "=A1*2"))
	require.NoError(t, s.Set("B1", "=SUM(A1:A2)/0"))
	return s.Export(name, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
}

// backends runs the same contract against every Store implementation
func backends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	fileStore, err := NewFileStore(filepath.Join(dir, "files"), zaptest.NewLogger(t))
	require.NoError(t, err)

	sqliteStore, err := NewSQLiteStore(filepath.Join(dir, "db", "sheets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]Store{
		"file":   fileStore,
		"sqlite": sqliteStore,
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()

	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("NotFound", func(t *testing.T) {
				_, err := st.Load(ctx, "missing")
				assert.ErrorIs(t, err, ErrNotFound)
				assert.ErrorIs(t, st.Delete(ctx, "missing"), ErrNotFound)
			})

			t.Run("RoundTrip", func(t *testing.T) {
				doc := sampleDocument(t, "Budget 2024/Q1")
				require.NoError(t, st.Save(ctx, doc))

				loaded, err := st.Load(ctx, "Budget 2024/Q1")
				require.NoError(t, err)
				if diff := cmp.Diff(doc, loaded); diff != "" {
					t.Errorf("loaded document mismatch (-want +got):\n%s", diff)
				}
			})

			t.Run("Overwrite", func(t *testing.T) {
				doc := sampleDocument(t, "overwrite")
				require.NoError(t, st.Save(ctx, doc))

				doc.Cells["C3"] = spreadsheet.DocumentCell{Value: "new", Formula: "new", Display: "new"}
				require.NoError(t, st.Save(ctx, doc))

				loaded, err := st.Load(ctx, "overwrite")
				require.NoError(t, err)
				// three cells, the row count entry and C3
				assert.Len(t, loaded.Cells, 5)
				assert.Equal(t, "new", loaded.Cells["C3"].Value)
			})

			t.Run("ListAndDelete", func(t *testing.T) {
				require.NoError(t, st.Save(ctx, sampleDocument(t, "zeta")))
				require.NoError(t, st.Save(ctx, sampleDocument(t, "alpha")))

				names, err := st.List(ctx)
				require.NoError(t, err)
				assert.Subset(t, names, []string{"alpha", "zeta"})
				assert.IsNonDecreasing(t, names)

				require.NoError(t, st.Delete(ctx, "zeta"))
				names, err = st.List(ctx)
				require.NoError(t, err)
				assert.NotContains(t, names, "zeta")
			})

			t.Run("RejectsNameless", func(t *testing.T) {
				assert.Error(t, st.Save(ctx, &spreadsheet.Document{Cells: map[string]spreadsheet.DocumentCell{}}))
				assert.Error(t, st.Save(ctx, nil))
			})
		})
	}
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()

	t.Run("NoTempFilesLeft", func(t *testing.T) {
		fs, err := NewFileStore(t.TempDir(), nil)
		require.NoError(t, err)
		require.NoError(t, fs.Save(ctx, sampleDocument(t, "clean")))

		entries, err := os.ReadDir(fs.Dir())
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "clean.json", entries[0].Name())
	})

	t.Run("CorruptFile", func(t *testing.T) {
		fs, err := NewFileStore(t.TempDir(), nil)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(fs.Path("broken"), []byte("{"), 0644))

		_, err = fs.Load(ctx, "broken")
		assert.True(t, spreadsheet.IsAppErrorCode(err, spreadsheet.InvalidArgument), "got %v", err)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		fs, err := NewFileStore(t.TempDir(), nil)
		require.NoError(t, err)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		assert.ErrorIs(t, fs.Save(cancelled, sampleDocument(t, "late")), context.Canceled)
	})
}

func TestSQLiteStoreIDIsStable(t *testing.T) {
	ctx := context.Background()
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sheets.db"))
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Save(ctx, sampleDocument(t, "stable")))
	first, err := st.ID(ctx, "stable")
	require.NoError(t, err)
	assert.NotEqual(t, first.String(), "00000000-0000-0000-0000-000000000000")

	require.NoError(t, st.Save(ctx, sampleDocument(t, "stable")))
	second, err := st.ID(ctx, "stable")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = st.ID(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWatch(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var changes atomic.Int32
	var lastName atomic.Value
	dw, err := fs.NewWatcher("watched", func(doc *spreadsheet.Document) {
		lastName.Store(doc.Name)
		changes.Add(1)
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- dw.Run(ctx) }()

	// our own save is not an external change
	require.NoError(t, fs.Save(ctx, sampleDocument(t, "watched")))
	time.Sleep(3 * dw.debounceDur)
	assert.Equal(t, int32(0), changes.Load())

	// an external writer is
	external := []byte(`{"name": "edited elsewhere", "cells": {"A1": {"value": "1", "formula": "1", "display": "1"}}}`)
	require.NoError(t, os.WriteFile(fs.Path("watched"), external, 0644))
	assert.Eventually(t, func() bool { return changes.Load() == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "edited elsewhere", lastName.Load())

	// other documents in the directory are ignored
	require.NoError(t, os.WriteFile(fs.Path("other"), external, 0644))
	time.Sleep(3 * dw.debounceDur)
	assert.Equal(t, int32(1), changes.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	st, err := Open(config.StorageConfig{Driver: "file", Path: filepath.Join(dir, "files")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, st)
	require.NoError(t, st.Close())

	st, err = Open(config.StorageConfig{Driver: "sqlite", Path: filepath.Join(dir, "sheets.db")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, st)
	require.NoError(t, st.Close())

	_, err = Open(config.StorageConfig{Driver: "postgres", Path: dir}, nil)
	assert.Error(t, err)
}
