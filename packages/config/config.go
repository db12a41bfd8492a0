package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NashedShahRoni22/nsr-tools/packages/spreadsheet"
)

// Config holds all nsrsheet configuration.
type Config struct {
	// Grid shape and document defaults
	Sheet SheetConfig `yaml:"sheet"`

	// Where documents are persisted
	Storage StorageConfig `yaml:"storage"`

	// Websocket and HTTP surface
	Server ServerConfig `yaml:"server"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// SheetConfig configures new and imported sheets.
type SheetConfig struct {
	Columns     int    `yaml:"columns"`      // 1..26, letters A.. onward
	InitialRows int    `yaml:"initial_rows"` // rows present before any add-row
	DefaultName string `yaml:"default_name"` // document name when none is given
}

// StorageConfig selects the document store.
type StorageConfig struct {
	Driver string `yaml:"driver"` // file, sqlite
	Path   string `yaml:"path"`   // directory for file, database file for sqlite
}

// ServerConfig configures the websocket server.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	Watch           bool   `yaml:"watch"` // reload the document when its file changes
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// ValidDrivers lists the supported storage drivers.
var ValidDrivers = []string{"file", "sqlite"}

// ValidLevels lists the supported log levels.
var ValidLevels = []string{"debug", "info", "warn", "error"}

// ValidFormats lists the supported log encodings.
var ValidFormats = []string{"json", "console"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Sheet: SheetConfig{
			Columns:     spreadsheet.DefaultColumns,
			InitialRows: spreadsheet.DefaultInitialRows,
			DefaultName: spreadsheet.DefaultDocumentName,
		},

		Storage: StorageConfig{
			Driver: "file",
			Path:   "data/sheets",
		},

		Server: ServerConfig{
			Addr:            "127.0.0.1:8090",
			Watch:           false,
			ShutdownTimeout: "5s",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. a missing file yields the
// defaults, environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if driver := os.Getenv("NSRSHEET_STORAGE_DRIVER"); driver != "" {
		c.Storage.Driver = driver
	}
	if path := os.Getenv("NSRSHEET_STORAGE_PATH"); path != "" {
		c.Storage.Path = path
	}
	if addr := os.Getenv("NSRSHEET_SERVER_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if level := os.Getenv("NSRSHEET_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if cols := os.Getenv("NSRSHEET_COLUMNS"); cols != "" {
		// invalid numbers are left for Validate to report on the yaml value
		if n, err := strconv.Atoi(cols); err == nil {
			c.Sheet.Columns = n
		}
	}
}

// GetShutdownTimeout returns the server shutdown timeout as a duration.
func (c *Config) GetShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ShutdownTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// SheetOptions returns the engine options for the configured grid shape.
func (c *Config) SheetOptions() []spreadsheet.Option {
	return []spreadsheet.Option{
		spreadsheet.WithColumns(c.Sheet.Columns),
		spreadsheet.WithInitialRows(c.Sheet.InitialRows),
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Sheet.Columns < 1 || c.Sheet.Columns > spreadsheet.MaxColumns {
		return fmt.Errorf("invalid sheet columns: %d (valid: 1..%d)", c.Sheet.Columns, spreadsheet.MaxColumns)
	}
	if c.Sheet.InitialRows < 1 || c.Sheet.InitialRows > spreadsheet.MaxRows {
		return fmt.Errorf("invalid sheet initial_rows: %d (valid: 1..%d)", c.Sheet.InitialRows, spreadsheet.MaxRows)
	}

	if !slices.Contains(ValidDrivers, c.Storage.Driver) {
		return fmt.Errorf("invalid storage driver: %s (valid: %v)", c.Storage.Driver, ValidDrivers)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage path not configured")
	}

	if !slices.Contains(ValidLevels, c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLevels)
	}
	if !slices.Contains(ValidFormats, c.Logging.Format) {
		return fmt.Errorf("invalid log format: %s (valid: %v)", c.Logging.Format, ValidFormats)
	}

	if c.Server.ShutdownTimeout != "" {
		if _, err := time.ParseDuration(c.Server.ShutdownTimeout); err != nil {
			return fmt.Errorf("invalid server shutdown_timeout: %w", err)
		}
	}

	return nil
}
