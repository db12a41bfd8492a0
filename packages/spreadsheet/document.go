package spreadsheet

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

// DefaultDocumentName is used when a document has no name
const DefaultDocumentName = "Untitled Spreadsheet"

// DocumentCell is the persisted form of one cell. value and formula both
// carry the raw input, display is a number for numeric results and a
// string otherwise
type DocumentCell struct {
	Value   string `json:"value"`
	Formula string `json:"formula"`
	Display any    `json:"display"`
}

// RawInput returns the raw input, preferring value over formula
func (c DocumentCell) RawInput() string {
	if c.Value != "" {
		return c.Value
	}
	return c.Formula
}

// Document is the unit of save, load and export
type Document struct {
	Name      string                  `json:"name"`
	Cells     map[string]DocumentCell `json:"cells"`
	Timestamp time.Time               `json:"timestamp"`
}

// documentWire keeps decoding lenient about the timestamp while still
// telling a missing cells field apart from an empty one
type documentWire struct {
	Name      string                   `json:"name"`
	Cells     *map[string]DocumentCell `json:"cells"`
	Timestamp string                   `json:"timestamp"`
}

// DecodeDocument reads a document. anything that is not a JSON object with
// a cells mapping is an InvalidArgument error
func DecodeDocument(r io.Reader) (*Document, error) {
	var wire documentWire
	if err := json.NewDecoder(r).Decode(&wire); err != nil {
		return nil, NewApplicationError(InvalidArgument, fmt.Sprintf("malformed document: %v", err))
	}
	if wire.Cells == nil {
		return nil, NewApplicationError(InvalidArgument, "malformed document: missing cells")
	}

	doc := &Document{
		Name:  wire.Name,
		Cells: *wire.Cells,
	}
	if doc.Name == "" {
		doc.Name = DefaultDocumentName
	}
	if ts, err := time.Parse(time.RFC3339Nano, wire.Timestamp); err == nil {
		doc.Timestamp = ts
	}
	return doc, nil
}

// Encode writes the document as indented JSON
func (d *Document) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

// Export snapshots every non-empty cell into a document. when nothing is
// stored on the last row, an empty entry for its first cell is written so
// the row count survives a save and load
func (s *Sheet) Export(name string, timestamp time.Time) *Document {
	if name == "" {
		name = DefaultDocumentName
	}

	doc := &Document{
		Name:      name,
		Cells:     make(map[string]DocumentCell),
		Timestamp: timestamp.UTC(),
	}
	lastRow := uint32(s.grid.Rows() - 1)
	lastRowUsed := false
	for _, cell := range s.grid.SortedCells() {
		if cell.IsEmpty() {
			continue
		}
		doc.Cells[cell.Address.String()] = DocumentCell{
			Value:   cell.RawInput,
			Formula: cell.RawInput,
			Display: documentDisplay(cell.Display),
		}
		lastRowUsed = lastRowUsed || cell.Address.Row == lastRow
	}
	if !lastRowUsed {
		marker := CellAddress{Row: lastRow, Column: 0}
		doc.Cells[marker.String()] = DocumentCell{Display: ""}
	}
	return doc
}

// Import replaces the whole grid with the document's cells and re-derives
// every display. the row count is the larger of the initial rows and the
// last row named by any key, empty entries included. every address is
// validated first, and two keys naming the same cell ("a1" and "A1") are
// rejected. on error the sheet is left untouched
func (s *Sheet) Import(doc *Document) error {
	if doc == nil {
		return NewApplicationError(InvalidArgument, "malformed document: nil")
	}

	parsed := make(map[CellAddress]string, len(doc.Cells))
	rows := s.initialRows
	for key, cell := range doc.Cells {
		addr, err := s.resolveAddress(key)
		if err != nil {
			return NewApplicationError(InvalidArgument, fmt.Sprintf("malformed document: %v", err))
		}
		if _, dup := parsed[addr]; dup {
			return NewApplicationError(InvalidArgument, fmt.Sprintf("malformed document: cell %s appears more than once", addr))
		}
		parsed[addr] = cell.RawInput()
		rows = max(rows, int(addr.Row)+1)
	}

	s.Clear()
	s.grid.rows = rows
	for addr, raw := range parsed {
		s.define(addr, raw)
	}

	s.logger.Debug("imported document",
		zap.String("name", doc.Name),
		zap.Int("cells", len(parsed)),
		zap.Int("rows", rows))
	return s.Calculate()
}

func documentDisplay(display Primitive) any {
	switch v := display.(type) {
	case float64:
		return v
	case string:
		return v
	case *SpreadsheetError:
		return ErrorMarker
	default:
		return ""
	}
}
