// Package transform turns a downloaded archive stream into its on-disk
// forms: the raw gzip file, the decompressed TSV and the transcoded CSV.
package transform

import (
	"bufio"
	"errors"
	"os"
)

// FileSink is a buffered, truncating output file.
type FileSink struct {
	path    string
	file    *os.File
	buf     *bufio.Writer
	written int64
	closed  bool
}

// CreateFile creates path, truncating any stale content left by an
// earlier run.
func CreateFile(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, &FilesystemError{Op: "create", Path: path, Err: err}
	}
	return &FileSink{
		path: path,
		file: f,
		buf:  bufio.NewWriterSize(f, 64*1024),
	}, nil
}

// Write appends p to the file.
func (s *FileSink) Write(p []byte) (int, error) {
	n, err := s.buf.Write(p)
	s.written += int64(n)
	if err != nil {
		return n, &FilesystemError{Op: "write", Path: s.path, Err: err}
	}
	return n, nil
}

// Close flushes buffered data and closes the file. It is safe to call
// more than once; only the first call does any work.
func (s *FileSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	flushErr := s.buf.Flush()
	closeErr := s.file.Close()
	if err := errors.Join(flushErr, closeErr); err != nil {
		return &FilesystemError{Op: "close", Path: s.path, Err: err}
	}
	return nil
}

// Path returns the file path.
func (s *FileSink) Path() string { return s.path }

// Written returns the number of bytes accepted so far.
func (s *FileSink) Written() int64 { return s.written }
