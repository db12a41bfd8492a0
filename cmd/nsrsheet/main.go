// nsrsheet edits, exports and serves spreadsheet documents.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/NashedShahRoni22/nsr-tools/packages/config"
)

// app carries what every subcommand needs once the root has run
type app struct {
	// Global flags
	configPath string
	docName    string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "nsrsheet",
		Short: "nsrsheet - a small formula spreadsheet",
		Long: `nsrsheet keeps spreadsheet documents of numbers, text and formulas.

Formulas start with "=" and may use + - * /, parentheses, cell references
like B7 and SUM, AVERAGE, MIN or MAX over a range such as A1:A10.

Documents live in the configured store and are edited one cell at a time,
or live in the browser through "nsrsheet serve".`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			a.cfg = cfg
			if a.docName == "" {
				a.docName = cfg.Sheet.DefaultName
			}

			logger, err := buildLogger(cfg.Logging, a.verbose)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (default: built-in defaults)")
	rootCmd.PersistentFlags().StringVarP(&a.docName, "doc", "d", "", "Document name (default: sheet.default_name)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(
		a.setCmd(),
		a.getCmd(),
		a.showCmd(),
		a.addRowCmd(),
		a.clearCmd(),
		a.renameCmd(),
		a.exportCmd(),
		a.importCmd(),
		a.listCmd(),
		a.deleteCmd(),
		a.serveCmd(),
		a.configCmd(),
	)
	return rootCmd
}

// buildLogger starts from zap's production config, verbose or a debug level
// in the config switch it to debug
func buildLogger(cfg config.LoggingConfig, verbose bool) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	return zapConfig.Build()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
