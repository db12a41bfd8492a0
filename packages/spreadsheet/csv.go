package spreadsheet

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// csvWriter writes rows with every field quoted
type csvWriter struct {
	w              io.Writer
	delimiter      rune
	lineTerminator string
}

func (cw *csvWriter) writeRow(fields []string) error {
	var buf bytes.Buffer
	for i, field := range fields {
		if i > 0 {
			buf.WriteRune(cw.delimiter)
		}
		buf.WriteString(cw.formatField(field))
	}
	buf.WriteString(cw.lineTerminator)
	_, err := cw.w.Write(buf.Bytes())
	return err
}

func (cw *csvWriter) formatField(text string) string {
	escaped := strings.ReplaceAll(text, `"`, `""`)
	return `"` + escaped + `"`
}

// WriteCSV renders rows 1..Rows() in row-major order, one field per column.
// a field is the cell's display, falling back to its raw input
func (s *Sheet) WriteCSV(w io.Writer) error {
	cw := &csvWriter{
		w:              w,
		delimiter:      ',',
		lineTerminator: "\n",
	}

	last := s.grid.Columns() - 1
	fields := make([]string, 0, s.grid.Columns())
	for addr := range s.grid.Addresses() {
		cell := s.grid.Get(addr)
		text := cell.DisplayString()
		if text == "" {
			text = cell.RawInput
		}
		fields = append(fields, text)

		if int(addr.Column) == last {
			if err := cw.writeRow(fields); err != nil {
				return err
			}
			fields = fields[:0]
		}
	}
	return nil
}

// csvEncodings maps the accepted output encoding names to charmaps. utf-8
// needs no transformation
var csvEncodings = map[string]encoding.Encoding{
	"windows-1252": charmap.Windows1252,
	"cp1252":       charmap.Windows1252,
	"iso-8859-1":   charmap.ISO8859_1,
	"latin1":       charmap.ISO8859_1,
}

// EncodingWriter wraps w so text written to it is transcoded from UTF-8 to
// the named encoding. characters the encoding cannot represent are an error
// on write. Close flushes the transcoder, it does not close w
func EncodingWriter(w io.Writer, name string) (io.WriteCloser, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "", "utf-8", "utf8":
		return nopWriteCloser{w}, nil
	}
	enc, ok := csvEncodings[key]
	if !ok {
		return nil, NewApplicationError(InvalidArgument, fmt.Sprintf("unsupported output encoding: %s", name))
	}
	return transform.NewWriter(w, enc.NewEncoder()), nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
