package transform

import "fmt"

// DecompressionError reports a malformed or truncated gzip stream.
type DecompressionError struct {
	Err error
}

func (e *DecompressionError) Error() string {
	return fmt.Sprintf("decompression failed: %v", e.Err)
}

func (e *DecompressionError) Unwrap() error { return e.Err }

// SchemaError reports a transcoded record that does not match the event schema.
type SchemaError struct {
	Line  int
	Field string // empty when the record shape itself is wrong
	Err   error
}

func (e *SchemaError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("schema error on line %d (%s): %v", e.Line, e.Field, e.Err)
	}
	return fmt.Sprintf("schema error on line %d: %v", e.Line, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// FilesystemError reports a failure creating, writing or closing an output file.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }
