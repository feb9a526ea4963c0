package transform

import (
	"errors"
	"io"

	"github.com/klauspost/compress/gzip"
)

var errFinished = errors.New("decompressor already finished")

// Decompressor is a two-stage pipeline: gzip bytes go in through Write and
// the inflated stream comes out in the sink it owns. Finish completes the
// stream and hands the sink back.
//
// Inflation runs on its own goroutine reading from an io.Pipe, so memory use
// is bounded by the pipe handoff and the gzip window regardless of archive size.
type Decompressor[W io.Writer] struct {
	sink     W
	pw       *io.PipeWriter
	done     chan error
	finished bool
}

// NewDecompressor starts a decompressor writing into sink.
func NewDecompressor[W io.Writer](sink W) *Decompressor[W] {
	pr, pw := io.Pipe()
	d := &Decompressor[W]{
		sink: sink,
		pw:   pw,
		done: make(chan error, 1),
	}
	go d.inflate(pr)
	return d
}

// Write feeds compressed bytes. An error means the stream is unusable and
// the caller should stop writing.
func (d *Decompressor[W]) Write(p []byte) (int, error) {
	if d.finished {
		return 0, errFinished
	}
	return d.pw.Write(p)
}

// Finish signals end of input and waits for the inflater to drain. Input
// that ends before the gzip trailer is reported as a DecompressionError.
func (d *Decompressor[W]) Finish() (W, error) {
	var zero W
	if d.finished {
		return zero, errFinished
	}
	d.finished = true
	d.pw.Close()
	if err := <-d.done; err != nil {
		return zero, err
	}
	return d.sink, nil
}

// Abort stops the inflater after an upstream failure. The sink is not
// touched and remains owned by the caller.
func (d *Decompressor[W]) Abort(cause error) {
	if d.finished {
		return
	}
	d.finished = true
	if cause == nil {
		cause = io.ErrClosedPipe
	}
	d.pw.CloseWithError(cause)
	<-d.done
}

func (d *Decompressor[W]) inflate(pr *io.PipeReader) {
	err := copyInflated(pr, d.sink)
	// Unblocks a pending Write with the same error.
	pr.CloseWithError(err)
	d.done <- err
}

func copyInflated(r io.Reader, w io.Writer) error {
	zr, err := gzip.NewReader(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return &DecompressionError{Err: err}
	}
	defer zr.Close()

	sink := &trackedWriter{w: w}
	if _, err := io.Copy(sink, zr); err != nil {
		if sink.err != nil {
			return sink.err
		}
		return &DecompressionError{Err: err}
	}
	return nil
}

// trackedWriter remembers write errors so they are not mistaken for
// corrupt input.
type trackedWriter struct {
	w   io.Writer
	err error
}

func (t *trackedWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}
	return n, err
}
