package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/NashedShahRoni22/nsr-tools/packages/server"
	"github.com/NashedShahRoni22/nsr-tools/packages/session"
	"github.com/NashedShahRoni22/nsr-tools/packages/spreadsheet"
	"github.com/NashedShahRoni22/nsr-tools/packages/store"
)

// workspace is an open store plus a session over the current document
type workspace struct {
	store   store.Store
	session *session.Session
	exists  bool // the document was found in the store
}

func (w *workspace) close() {
	w.session.Close()
	w.store.Close()
}

// open loads the --doc document. with autosave the session writes every
// change back by itself, without it commands call save explicitly so
// failures reach the user
func (a *app) open(ctx context.Context, autosave bool) (*workspace, error) {
	st, err := store.Open(a.cfg.Storage, a.logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	opts := []session.Option{
		session.WithName(a.docName),
		session.WithSheetOptions(a.cfg.SheetOptions()...),
		session.WithSaver(st),
		session.WithLogger(a.logger),
	}
	if !autosave {
		opts = append(opts, session.WithoutAutosave())
	}

	doc, err := st.Load(ctx, a.docName)
	exists := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		st.Close()
		return nil, err
	}

	sess := session.New(opts...)
	if exists {
		// with autosave this writes the loaded document back once
		if err := sess.Load(doc); err != nil {
			sess.Close()
			st.Close()
			return nil, fmt.Errorf("failed to load %s: %w", a.docName, err)
		}
	}

	a.logger.Debug("opened document", zap.String("document", a.docName), zap.Bool("exists", exists))
	return &workspace{store: st, session: sess, exists: exists}, nil
}

// mutate runs fn against the document and saves the result
func (a *app) mutate(cmd *cobra.Command, fn func(*session.Session) error) (*workspace, error) {
	ctx := cmd.Context()
	ws, err := a.open(ctx, false)
	if err != nil {
		return nil, err
	}
	if err := fn(ws.session); err != nil {
		ws.close()
		return nil, err
	}
	if err := ws.session.Save(ctx); err != nil {
		ws.close()
		return nil, err
	}
	return ws, nil
}

func (a *app) setCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <cell> <input>",
		Short: "Set the raw input of a cell",
		Long: `Set the raw input of a cell and save the document.

Input starting with "=" is a formula. The cell's new display is printed.`,
		Example: `  nsrsheet set A1 12
  nsrsheet set A2 "=SUM(A1:A1)*2"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.mutate(cmd, func(s *session.Session) error {
				return s.EditCell(args[0], args[1])
			})
			if err != nil {
				return err
			}
			defer ws.close()

			cell, err := ws.session.Sheet().Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", cell.Address, cell.DisplayString())
			return nil
		},
	}
}

func (a *app) getCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "get <cell>",
		Short: "Print the display of a cell",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer ws.close()

			cell, err := ws.session.Sheet().Get(args[0])
			if err != nil {
				return err
			}
			out := cell.DisplayString()
			if raw {
				out = cell.RawInput
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			if e := cell.Err(); e != nil && !raw {
				a.logger.Debug("cell holds an error", zap.String("cell", cell.Address.String()), zap.String("error", e.Message))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the raw input instead of the display")
	return cmd
}

func (a *app) showCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the grid",
		Long: `Print the grid as a table, up to the last row holding a value.
Use --all to print every row.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer ws.close()
			return writeGrid(cmd.OutOrStdout(), ws.session, all)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Print every row, including trailing empty ones")
	return cmd
}

func writeGrid(out io.Writer, s *session.Session, all bool) error {
	sheet := s.Sheet()

	rows := 0
	if all {
		rows = sheet.Rows()
	} else {
		for _, cell := range sheet.Cells() {
			rows = max(rows, int(cell.Address.Row)+1)
		}
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\n", s.Name())

	header := []string{""}
	for col := range sheet.Columns() {
		header = append(header, spreadsheet.ColumnName(uint32(col)))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for row := range rows {
		fields := []string{fmt.Sprint(row + 1)}
		for col := range sheet.Columns() {
			cell := sheet.GetCell(spreadsheet.CellAddress{Row: uint32(row), Column: uint32(col)})
			fields = append(fields, cell.DisplayString())
		}
		fmt.Fprintln(tw, strings.Join(fields, "\t"))
	}
	return tw.Flush()
}

func (a *app) addRowCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "add-row",
		Short: "Append empty rows at the bottom of the grid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}
			ws, err := a.mutate(cmd, func(s *session.Session) error {
				for range count {
					s.AddRow()
				}
				return nil
			})
			if err != nil {
				return err
			}
			defer ws.close()
			fmt.Fprintf(cmd.OutOrStdout(), "%d rows\n", ws.session.Sheet().Rows())
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of rows to append")
	return cmd
}

func (a *app) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty every cell of the document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.mutate(cmd, func(s *session.Session) error {
				s.Clear()
				return nil
			})
			if err != nil {
				return err
			}
			ws.close()
			return nil
		},
	}
}

func (a *app) renameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <new-name>",
		Short: "Rename the document",
		Long:  `Save the document under a new name and remove it under the old one.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := a.mutate(cmd, func(s *session.Session) error {
				s.Rename(args[0])
				return nil
			})
			if err != nil {
				return err
			}
			defer ws.close()

			newName := ws.session.Name()
			if ws.exists && newName != a.docName {
				if err := ws.store.Delete(ctx, a.docName); err != nil && !errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("renamed to %s but failed to remove %s: %w", newName, a.docName, err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), newName)
			return nil
		},
	}
}

func (a *app) exportCmd() *cobra.Command {
	var outPath, encoding string
	cmd := &cobra.Command{
		Use:       "export csv|json",
		Short:     "Export the document as CSV or JSON",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"csv", "json"},
		Example: `  nsrsheet export json --out budget.json
  nsrsheet export csv --encoding windows-1252 > budget.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer ws.close()

			out := cmd.OutOrStdout()
			var file *os.File
			if outPath != "" {
				file, err = os.Create(outPath)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", outPath, err)
				}
				defer file.Close()
				out = file
			}

			switch args[0] {
			case "csv":
				err = ws.session.ExportCSV(out, encoding)
			default:
				err = ws.session.ExportJSON(out)
			}
			if err != nil {
				return err
			}
			if file != nil {
				return file.Sync()
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write to a file instead of stdout")
	cmd.Flags().StringVar(&encoding, "encoding", "utf-8", "CSV output encoding: utf-8, windows-1252 or iso-8859-1")
	return cmd
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import a JSON document into the store",
		Long: `Import a JSON document and save it to the store under its own name,
or under --doc when given. "-" reads standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", args[0], err)
				}
				defer f.Close()
				in = f
			}

			doc, err := spreadsheet.DecodeDocument(in)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("doc") {
				doc.Name = a.docName
			}

			st, err := store.Open(a.cfg.Storage, a.logger.Named("store"))
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer st.Close()

			s := session.New(
				session.WithSheetOptions(a.cfg.SheetOptions()...),
				session.WithSaver(st),
				session.WithoutAutosave(),
				session.WithLogger(a.logger),
			)
			defer s.Close()
			if err := s.Load(doc); err != nil {
				return err
			}
			if err := s.Save(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s (%d cells)\n", s.Name(), len(s.Sheet().Cells()))
			return nil
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(a.cfg.Storage, a.logger.Named("store"))
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer st.Close()

			names, err := st.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a stored document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(a.cfg.Storage, a.logger.Named("store"))
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer st.Close()
			return st.Delete(cmd.Context(), args[0])
		},
	}
}

func (a *app) serveCmd() *cobra.Command {
	var addr string
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the document over websocket and HTTP",
		Long: `Serve the document for live editing. Clients connect to /ws; the
current document is available at /document and /export.csv.

Every edit is saved to the store in the background. With --watch and the
file store, edits made to the document file by other programs are loaded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("watch") {
				a.cfg.Server.Watch = watch
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ws, err := a.open(ctx, true)
			if err != nil {
				return err
			}
			defer ws.close()

			srv := server.New(a.cfg, ws.session, ws.store, a.logger.Named("server"))
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Reload the document when its file changes")
	return cmd
}

func (a *app) configCmd() *cobra.Command {
	var writePath string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if writePath != "" {
				if err := a.cfg.Save(writePath); err != nil {
					return err
				}
				a.logger.Info("wrote config", zap.String("path", writePath))
				return nil
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(a.cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringVar(&writePath, "write", "", "Write the effective configuration to a file")
	return cmd
}
