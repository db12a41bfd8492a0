package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/NashedShahRoni22/nsr-tools/packages/spreadsheet"
)

// Session is the editing state around one sheet: the document name, the
// selected cell and the formula bar. every mutation is persisted through
// the Saver without blocking or failing the edit. a Session is not safe for
// concurrent use
type Session struct {
	sheet      *spreadsheet.Sheet
	name       string
	selected   string // canonical address, "" when nothing is selected
	formulaBar string

	autosave *autosaver
	saver    Saver
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Session
type Option func(*config)

type config struct {
	name        string
	sheetOpts   []spreadsheet.Option
	saver       Saver
	logger      *zap.Logger
	now         func() time.Time
	saveTimeout time.Duration
	noAutosave  bool
}

// WithName sets the initial document name
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithSheetOptions configures the underlying sheet
func WithSheetOptions(opts ...spreadsheet.Option) Option {
	return func(c *config) { c.sheetOpts = append(c.sheetOpts, opts...) }
}

// WithSaver enables autosave
func WithSaver(saver Saver) Option {
	return func(c *config) { c.saver = saver }
}

// WithoutAutosave keeps the saver for explicit Save calls only
func WithoutAutosave() Option {
	return func(c *config) { c.noAutosave = true }
}

// WithLogger sets the logger, it is shared with the sheet
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock sets the time source used for document timestamps
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithSaveTimeout bounds each background save
func WithSaveTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.saveTimeout = d
		}
	}
}

// New creates a session over an empty sheet
func New(opts ...Option) *Session {
	cfg := &config{
		name:        spreadsheet.DefaultDocumentName,
		logger:      zap.NewNop(),
		now:         time.Now,
		saveTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	sheetOpts := append([]spreadsheet.Option{spreadsheet.WithLogger(cfg.logger)}, cfg.sheetOpts...)
	s := &Session{
		sheet:  spreadsheet.NewSheet(sheetOpts...),
		name:   normalizeName(cfg.name),
		saver:  cfg.saver,
		logger: cfg.logger,
		now:    cfg.now,
	}
	if cfg.saver != nil && !cfg.noAutosave {
		s.autosave = newAutosaver(cfg.saver, cfg.logger, cfg.saveTimeout)
	}
	return s
}

// Close flushes any pending autosave and stops the background writer
func (s *Session) Close() {
	if s.autosave != nil {
		s.autosave.stop()
		s.autosave = nil
	}
}

// Sheet exposes the engine for reads
func (s *Session) Sheet() *spreadsheet.Sheet {
	return s.sheet
}

// Name returns the document name
func (s *Session) Name() string {
	return s.name
}

// Selected returns the selected address
func (s *Session) Selected() (string, bool) {
	return s.selected, s.selected != ""
}

// FormulaBar returns the formula bar text
func (s *Session) FormulaBar() string {
	return s.formulaBar
}

// Select makes addr the selected cell and loads its raw input into the
// formula bar
func (s *Session) Select(addr string) error {
	cell, err := s.lookup(addr)
	if err != nil {
		return err
	}
	s.selected = cell.Address.String()
	s.formulaBar = cell.RawInput
	return nil
}

// Deselect clears the selection, the formula bar keeps its text
func (s *Session) Deselect() {
	s.selected = ""
}

// EditFormulaBar replaces the formula bar text. with a selection this edits
// the selected cell, without one only the bar changes
func (s *Session) EditFormulaBar(text string) error {
	if s.selected == "" {
		s.formulaBar = text
		return nil
	}
	if err := s.sheet.Set(s.selected, text); err != nil {
		return err
	}
	s.formulaBar = text
	s.persist()
	return nil
}

// EditCell edits a cell directly. the formula bar follows when the cell is
// the selected one
func (s *Session) EditCell(addr string, text string) error {
	cell, err := s.sheet.Get(addr)
	if err != nil {
		return err
	}
	canonical := cell.Address.String()
	if err := s.sheet.Set(canonical, text); err != nil {
		return err
	}
	if canonical == s.selected {
		s.formulaBar = text
	}
	s.persist()
	return nil
}

// AddRow appends one empty row
func (s *Session) AddRow() {
	s.sheet.AppendRow()
	s.persist()
}

// Clear empties every cell and resets the selection and formula bar
func (s *Session) Clear() {
	s.sheet.Clear()
	s.selected = ""
	s.formulaBar = ""
	s.persist()
}

// Rename sets the document name. a blank name falls back to the default
func (s *Session) Rename(name string) {
	s.name = normalizeName(name)
	s.persist()
}

// Load replaces the sheet contents and name with the document. on error
// nothing changes
func (s *Session) Load(doc *spreadsheet.Document) error {
	if doc == nil {
		return spreadsheet.NewApplicationError(spreadsheet.InvalidArgument, "malformed document: nil")
	}
	if err := s.sheet.Import(doc); err != nil {
		return err
	}
	s.name = normalizeName(doc.Name)

	if s.selected != "" {
		cell, err := s.lookup(s.selected)
		if err != nil {
			// selection is outside the imported grid
			s.selected = ""
			s.formulaBar = ""
		} else {
			s.formulaBar = cell.RawInput
		}
	}
	s.persist()
	return nil
}

// Import decodes a JSON document and loads it
func (s *Session) Import(r io.Reader) error {
	doc, err := spreadsheet.DecodeDocument(r)
	if err != nil {
		return err
	}
	return s.Load(doc)
}

// Snapshot exports the current document
func (s *Session) Snapshot() *spreadsheet.Document {
	return s.sheet.Export(s.name, s.now())
}

// ExportJSON writes the current document as JSON
func (s *Session) ExportJSON(w io.Writer) error {
	return s.Snapshot().Encode(w)
}

// ExportCSV writes the grid as CSV in the named output encoding
func (s *Session) ExportCSV(w io.Writer, encoding string) error {
	ew, err := spreadsheet.EncodingWriter(w, encoding)
	if err != nil {
		return err
	}
	if err := s.sheet.WriteCSV(ew); err != nil {
		ew.Close()
		return err
	}
	return ew.Close()
}

// Save persists the current document and reports the outcome
func (s *Session) Save(ctx context.Context) error {
	if s.saver == nil {
		return spreadsheet.NewApplicationError(spreadsheet.FailedPrecondition, "no storage configured")
	}
	doc := s.Snapshot()
	if err := s.saver.Save(ctx, doc); err != nil {
		return errors.Join(spreadsheet.NewApplicationError(spreadsheet.Internal, "save failed"), err)
	}
	s.logger.Info("saved document", zap.String("document", doc.Name), zap.Int("cells", len(doc.Cells)))
	return nil
}

// lookup resolves an address that must lie inside the current grid
func (s *Session) lookup(addr string) (spreadsheet.Cell, error) {
	cell, err := s.sheet.Get(addr)
	if err != nil {
		return spreadsheet.Cell{}, err
	}
	if int(cell.Address.Row) >= s.sheet.Rows() {
		return spreadsheet.Cell{}, spreadsheet.NewApplicationError(spreadsheet.OutOfRange,
			fmt.Sprintf("%s is beyond row %d", cell.Address, s.sheet.Rows()))
	}
	return cell, nil
}

// persist hands a snapshot to the autosaver
func (s *Session) persist() {
	if s.autosave == nil {
		return
	}
	s.autosave.submit(s.Snapshot())
}

func normalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return spreadsheet.DefaultDocumentName
	}
	return name
}
