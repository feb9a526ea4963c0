package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/BadgerOps/ptarchive/internal/bucket"
	"github.com/BadgerOps/ptarchive/internal/safety"
	"github.com/BadgerOps/ptarchive/internal/transform"
)

// Mode selects what a job writes for each archive.
type Mode int

const (
	// ModeRawCompressed writes <key>.tsv.gz as served.
	ModeRawCompressed Mode = iota
	// ModeRawDecompressed writes <key>.tsv.
	ModeRawDecompressed
	// ModeTranscoded writes <key>.tsv and <key>.csv.
	ModeTranscoded
)

// ModeFor derives the mode from the decompress and transcode switches.
func ModeFor(decompress, transcode bool) (Mode, error) {
	switch {
	case transcode && !decompress:
		return 0, errors.New("transcoding requires decompression")
	case transcode:
		return ModeTranscoded, nil
	case decompress:
		return ModeRawDecompressed, nil
	default:
		return ModeRawCompressed, nil
	}
}

func (m Mode) String() string {
	switch m {
	case ModeRawCompressed:
		return "raw"
	case ModeRawDecompressed:
		return "decompressed"
	case ModeTranscoded:
		return "transcoded"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Decompresses reports whether the response body is gunzipped before writing.
func (m Mode) Decompresses() bool { return m != ModeRawCompressed }

// Ext is the extension of the file the response body is written to.
func (m Mode) Ext() string {
	if m.Decompresses() {
		return "tsv"
	}
	return "tsv.gz"
}

// Job downloads and materializes one archive.
type Job struct {
	Key   bucket.Key
	Mode  Mode
	index int
	// dispatched is stamped by the pool when the job is handed to a worker.
	dispatched time.Time
}

// Outcome is the terminal result of a Job. A nil Err means success.
type Outcome struct {
	Key     bucket.Key
	Index   int // position in the enumerated key list
	Mode    Mode
	Err     error
	Files   []string
	Bytes   int64 // response body bytes read
	Records int   // CSV rows written in ModeTranscoded
	Started time.Time
	Finish  time.Time
}

// Success reports whether the job completed without error.
func (o Outcome) Success() bool { return o.Err == nil }

// Duration is the time from dispatch to outcome.
func (o Outcome) Duration() time.Duration { return o.Finish.Sub(o.Started) }

// Run executes the job and converts every failure, including a panic, into
// the returned Outcome. Response bodies and files are closed before it returns.
func (j Job) Run(ctx context.Context, client *Client, dir string) (out Outcome) {
	out = Outcome{Key: j.Key, Index: j.index, Mode: j.Mode, Started: j.dispatched}
	if out.Started.IsZero() {
		out.Started = time.Now()
	}
	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("job %s panicked: %v", j.Key, r)
		}
		out.Finish = time.Now()
	}()

	out.Err = j.run(ctx, client, dir, &out)
	return out
}

func (j Job) run(ctx context.Context, client *Client, dir string, out *Outcome) error {
	fetchPath, err := safety.OutputPath(dir, j.Key.String()+"."+j.Mode.Ext())
	if err != nil {
		return err
	}

	body, err := client.Open(ctx, j.Key)
	if err != nil {
		return err
	}
	defer body.Close()

	// Phase 1: body to <key>.tsv.gz or <key>.tsv.
	src := &countingReader{reader: body}
	sink, err := transform.CreateFile(fetchPath)
	if err != nil {
		return err
	}
	out.Files = append(out.Files, fetchPath)

	err = j.materialize(src, sink)
	out.Bytes = src.n
	if err != nil || j.Mode != ModeTranscoded {
		return err
	}

	// Phase 2: reopen the finished TSV read-only and transcode it.
	csvPath, err := safety.OutputPath(dir, j.Key.String()+".csv")
	if err != nil {
		return err
	}
	out.Files = append(out.Files, csvPath)
	out.Records, err = transform.Transcode(fetchPath, csvPath)
	return err
}

// materialize streams src into sink, through the decompressor when the mode
// asks for it. sink is closed on every path.
func (j Job) materialize(src *countingReader, sink *transform.FileSink) error {
	if !j.Mode.Decompresses() {
		_, err := io.Copy(sink, src)
		closeErr := sink.Close()
		if err != nil {
			return j.classify(src, err)
		}
		return closeErr
	}

	d := transform.NewDecompressor(sink)
	if _, err := io.Copy(d, src); err != nil {
		d.Abort(err)
		sink.Close()
		return j.classify(src, err)
	}
	w, err := d.Finish()
	if err != nil {
		sink.Close()
		return err
	}
	return w.Close()
}

// classify attributes a copy failure to the network when the body read
// failed, otherwise to the sink or decompressor that returned it.
func (j Job) classify(src *countingReader, err error) error {
	if src.err != nil {
		return &TransportError{Key: j.Key, Op: "read body", Err: src.err}
	}
	return err
}
