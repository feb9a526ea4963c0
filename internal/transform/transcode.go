package transform

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/BadgerOps/ptarchive/internal/record"
)

// Transcode reads the decompressed TSV at src and writes the CSV form to
// dst. It returns the number of records written. The first record that
// fails to parse stops the transcode; whatever was written to dst stays.
func Transcode(src, dst string) (int, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, &FilesystemError{Op: "open", Path: src, Err: err}
	}
	defer in.Close()

	out, err := CreateFile(dst)
	if err != nil {
		return 0, err
	}

	n, err := TranscodeStream(bufio.NewReader(in), out)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return n, err
}

// TranscodeStream converts header-less tab separated event records from r
// into CSV on w. Each line is one record. The message is the last column,
// so any tabs beyond the ninth belong to it, and quotes are never special.
func TranscodeStream(r io.Reader, w io.Writer) (int, error) {
	br := bufio.NewReaderSize(r, 64*1024)

	cw := record.NewCSVWriter(w)
	if err := cw.WriteHeader(); err != nil {
		return 0, err
	}

	count, lineNo := 0, 0
	for {
		line, readErr := br.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return count, flushAfter(cw, readErr)
		}
		if line == "" && readErr == io.EOF {
			break
		}
		lineNo++

		line = strings.TrimSuffix(line, "\n")
		line = strings.TrimSuffix(line, "\r")
		if line != "" {
			ev, err := record.Parse(strings.SplitN(line, "\t", record.NumFields))
			if err != nil {
				schemaErr := &SchemaError{Line: lineNo, Err: err}
				var fe *record.FieldError
				if errors.As(err, &fe) {
					schemaErr.Field = fe.Field
				}
				return count, flushAfter(cw, schemaErr)
			}
			if err := cw.Write(ev); err != nil {
				return count, err
			}
			count++
		}

		if readErr == io.EOF {
			break
		}
	}

	return count, cw.Flush()
}

// flushAfter pushes rows already encoded to the sink before reporting err,
// so the partial output reflects every record that parsed.
func flushAfter(cw *record.CSVWriter, err error) error {
	if flushErr := cw.Flush(); flushErr != nil {
		return errors.Join(err, flushErr)
	}
	return err
}
