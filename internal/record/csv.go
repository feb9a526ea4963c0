package record

import (
	"bufio"
	"io"
	"strings"
)

// CSVWriter writes events as comma separated rows with a header line.
//
// Fields are quoted when they contain a comma, a double quote, a line
// break or a tab, or when they begin or end with a space. encoding/csv
// leaves embedded tabs bare, which makes the output ambiguous for tools
// that sniff the delimiter.
type CSVWriter struct {
	w           *bufio.Writer
	wroteHeader bool
	err         error
}

// NewCSVWriter returns a writer that buffers output to w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: bufio.NewWriter(w)}
}

// WriteHeader writes the schema header. Write calls it on first use.
func (cw *CSVWriter) WriteHeader() error {
	if cw.wroteHeader {
		return cw.err
	}
	cw.wroteHeader = true
	return cw.writeRow(Header)
}

// Write encodes one event.
func (cw *CSVWriter) Write(ev Event) error {
	if err := cw.WriteHeader(); err != nil {
		return err
	}
	return cw.writeRow(ev.Fields())
}

// Flush writes any buffered data to the underlying writer.
func (cw *CSVWriter) Flush() error {
	if cw.err != nil {
		return cw.err
	}
	cw.err = cw.w.Flush()
	return cw.err
}

func (cw *CSVWriter) writeRow(fields []string) error {
	if cw.err != nil {
		return cw.err
	}
	for i, f := range fields {
		if i > 0 {
			cw.w.WriteByte(',')
		}
		if needsQuotes(f) {
			cw.w.WriteByte('"')
			cw.w.WriteString(strings.ReplaceAll(f, `"`, `""`))
			cw.w.WriteByte('"')
		} else {
			cw.w.WriteString(f)
		}
	}
	// bufio.Writer latches the first error, so checking once per row is enough.
	_, cw.err = cw.w.WriteString("\n")
	return cw.err
}

func needsQuotes(f string) bool {
	if f == "" {
		return false
	}
	if strings.ContainsAny(f, ",\"\r\n\t") {
		return true
	}
	return f[0] == ' ' || f[len(f)-1] == ' '
}
