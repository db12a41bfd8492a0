package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NashedShahRoni22/nsr-tools/packages/spreadsheet"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"NSRSHEET_STORAGE_DRIVER",
		"NSRSHEET_STORAGE_PATH",
		"NSRSHEET_SERVER_ADDR",
		"NSRSHEET_LOG_LEVEL",
		"NSRSHEET_COLUMNS",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 10, cfg.Sheet.Columns)
	assert.Equal(t, 20, cfg.Sheet.InitialRows)
	assert.Equal(t, "Untitled Spreadsheet", cfg.Sheet.DefaultName)
	assert.Equal(t, "file", cfg.Storage.Driver)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 5*time.Second, cfg.GetShutdownTimeout())
	require.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Run("MissingFileYieldsDefaults", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)

		cfg, err = Load("")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("PartialFileKeepsDefaults", func(t *testing.T) {
		clearEnv(t)

		path := filepath.Join(t.TempDir(), "nsrsheet.yaml")
		require.NoError(t, os.WriteFile(path, []byte("sheet:\n  columns: 26\nstorage:\n  driver: sqlite\n  path: sheets.db\n"), 0644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 26, cfg.Sheet.Columns)
		assert.Equal(t, 20, cfg.Sheet.InitialRows)
		assert.Equal(t, "sqlite", cfg.Storage.Driver)
		assert.Equal(t, "sheets.db", cfg.Storage.Path)
		assert.Equal(t, "127.0.0.1:8090", cfg.Server.Addr)
	})

	t.Run("MalformedFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("sheet: [unterminated"), 0644))

		_, err := Load(path)
		assert.ErrorContains(t, err, "failed to parse config")
	})

	t.Run("SaveLoad", func(t *testing.T) {
		clearEnv(t)

		path := filepath.Join(t.TempDir(), "nested", "nsrsheet.yaml")
		cfg := DefaultConfig()
		cfg.Sheet.InitialRows = 50
		cfg.Server.Watch = true
		cfg.Logging.Level = "debug"
		require.NoError(t, cfg.Save(path))

		loaded, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, cfg, loaded)
	})
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NSRSHEET_STORAGE_DRIVER", "sqlite")
	t.Setenv("NSRSHEET_STORAGE_PATH", "/tmp/sheets.db")
	t.Setenv("NSRSHEET_SERVER_ADDR", ":9999")
	t.Setenv("NSRSHEET_LOG_LEVEL", "debug")
	t.Setenv("NSRSHEET_COLUMNS", "5")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "/tmp/sheets.db", cfg.Storage.Path)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 5, cfg.Sheet.Columns)

	t.Run("BadNumberIgnored", func(t *testing.T) {
		t.Setenv("NSRSHEET_COLUMNS", "many")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, spreadsheet.DefaultColumns, cfg.Sheet.Columns)
	})
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"zero columns":     func(c *Config) { c.Sheet.Columns = 0 },
		"too many columns": func(c *Config) { c.Sheet.Columns = 27 },
		"no rows":          func(c *Config) { c.Sheet.InitialRows = 0 },
		"unknown driver":   func(c *Config) { c.Storage.Driver = "postgres" },
		"empty path":       func(c *Config) { c.Storage.Path = "" },
		"unknown level":    func(c *Config) { c.Logging.Level = "trace" },
		"unknown format":   func(c *Config) { c.Logging.Format = "text" },
		"bad timeout":      func(c *Config) { c.Server.ShutdownTimeout = "soon" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateLogFormats(t *testing.T) {
	for _, format := range ValidFormats {
		cfg := DefaultConfig()
		cfg.Logging.Format = format
		assert.NoError(t, cfg.Validate(), format)
	}
}

func TestSheetOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sheet.Columns = 4
	cfg.Sheet.InitialRows = 7

	s := spreadsheet.NewSheet(cfg.SheetOptions()...)
	assert.Equal(t, 4, s.Columns())
	assert.Equal(t, 7, s.Rows())
}
