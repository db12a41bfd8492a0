package spreadsheet

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestWriteCSV(t *testing.T) {
	t.Run("QuotingAndDisplays", func(t *testing.T) {
		s := NewSheet(WithColumns(3), WithInitialRows(2))
		for addr, raw := range map[string]string{
			"A1": "1",
			"B1": `say "hi"`,
			"C1": "=A1+1",
			"A2": "=1/0",
			"C2": "a,b",
		} {
			if err := s.Set(addr, raw); err != nil {
				t.Fatal(err)
			}
		}

		var buf bytes.Buffer
		if err := s.WriteCSV(&buf); err != nil {
			t.Fatal(err)
		}

		want := `"1","say ""hi""","2"` + "\n" +
			`"#ERROR","","a,b"` + "\n"
		if buf.String() != want {
			t.Errorf("WriteCSV() =\n%s\nwant\n%s", buf.String(), want)
		}
	})

	t.Run("EveryRowIsWritten", func(t *testing.T) {
		s := NewSheet()
		s.AppendRow()
		if err := s.Set("J21", "=SUM(A1:A3)"); err != nil {
			t.Fatal(err)
		}

		var buf bytes.Buffer
		if err := s.WriteCSV(&buf); err != nil {
			t.Fatal(err)
		}

		lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
		if len(lines) != DefaultInitialRows+1 {
			t.Fatalf("got %d lines, want %d", len(lines), DefaultInitialRows+1)
		}
		empty := strings.Repeat(`"",`, DefaultColumns-1) + `""`
		if lines[0] != empty {
			t.Errorf("first line = %s, want %s", lines[0], empty)
		}
		if last := lines[len(lines)-1]; !strings.HasSuffix(last, `,"0"`) {
			t.Errorf("last line = %s, want a trailing 0", last)
		}
	})
}

func TestEncodingWriter(t *testing.T) {
	encode := func(name, text string) ([]byte, error) {
		var buf bytes.Buffer
		w, err := EncodingWriter(&buf, name)
		if err != nil {
			return nil, err
		}
		if _, err := io.WriteString(w, text); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	t.Run("Charmaps", func(t *testing.T) {
		cases := []struct {
			name string
			text string
			want []byte
		}{
			{"", "café", []byte("café")},
			{"UTF-8", "café", []byte("café")},
			{"windows-1252", "café €5", []byte{'c', 'a', 'f', 0xE9, ' ', 0x80, '5'}},
			{"Latin1", "café", []byte{'c', 'a', 'f', 0xE9}},
		}
		for _, tc := range cases {
			got, err := encode(tc.name, tc.text)
			if err != nil {
				t.Errorf("%s: %v", tc.name, err)
				continue
			}
			if !bytes.Equal(got, tc.want) {
				t.Errorf("%s: got % x, want % x", tc.name, got, tc.want)
			}
		}
	})

	t.Run("Unrepresentable", func(t *testing.T) {
		if _, err := encode("iso-8859-1", "€"); err == nil {
			t.Error("expected an error for a rune outside latin1")
		}
	})

	t.Run("Unknown", func(t *testing.T) {
		_, err := EncodingWriter(io.Discard, "shift-jis")
		if !IsAppErrorCode(err, InvalidArgument) {
			t.Errorf("error = %v, want InvalidArgument", err)
		}
	})
}
