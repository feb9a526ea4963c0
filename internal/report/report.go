// Package report aggregates job outcomes into progress lines and a run summary.
package report

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	json "github.com/goccy/go-json"

	"github.com/BadgerOps/ptarchive/internal/download"
)

// Entry is the reportable form of one outcome.
type Entry struct {
	Key        string    `json:"key"`
	Status     string    `json:"status"` // "success" or "failed"
	Error      string    `json:"error,omitempty"`
	Files      []string  `json:"files,omitempty"`
	Bytes      int64     `json:"bytes"`
	Records    int       `json:"records,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

// Summary is the aggregate result of a run.
type Summary struct {
	RunID     string        `json:"run_id"`
	Mode      string        `json:"mode"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Bytes     int64         `json:"bytes"`
	Records   int           `json:"records"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"-"`
	Elapsed   string        `json:"elapsed"`
	Outcomes  []Entry       `json:"outcomes"` // completion order
}

// OK reports whether every job succeeded.
func (s Summary) OK() bool { return s.Failed == 0 }

// Failures returns only the failed entries.
func (s Summary) Failures() []Entry {
	var out []Entry
	for _, e := range s.Outcomes {
		if e.Status == StatusFailed {
			out = append(out, e)
		}
	}
	return out
}

// WriteText prints a human readable summary block.
func (s Summary) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "\n=== RUN SUMMARY (%s) ===\nArchives:   %d\nSucceeded:  %d\nFailed:     %d\nDownloaded: %s\nElapsed:    %s\n",
		s.RunID, s.Total, s.Succeeded, s.Failed, humanize.Bytes(uint64(s.Bytes)), s.Elapsed)
	if err != nil {
		return err
	}
	for _, f := range s.Failures() {
		if _, err := fmt.Fprintf(w, "  - %s: %s\n", f.Key, f.Error); err != nil {
			return err
		}
	}
	return nil
}

// WriteJSON writes the summary as a single indented JSON document.
func (s Summary) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// Status values used in entries.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Reporter consumes outcomes as they complete. It writes one line per
// outcome: successes to out, failures to errOut. Either writer may be nil.
// Per-job failures are only counted, never returned as errors.
type Reporter struct {
	mu      sync.Mutex
	out     io.Writer
	errOut  io.Writer
	summary Summary
	started time.Time
}

// NewReporter creates a reporter for one run.
func NewReporter(runID string, mode download.Mode, out, errOut io.Writer) *Reporter {
	now := time.Now()
	return &Reporter{
		out:     out,
		errOut:  errOut,
		started: now,
		summary: Summary{
			RunID:     runID,
			Mode:      mode.String(),
			StartedAt: now,
			Outcomes:  []Entry{},
		},
	}
}

// Record adds one outcome and prints its progress line.
func (r *Reporter) Record(o download.Outcome) {
	entry := Entry{
		Key:        o.Key.String(),
		Status:     StatusSuccess,
		Files:      o.Files,
		Bytes:      o.Bytes,
		Records:    o.Records,
		StartedAt:  o.Started,
		DurationMS: o.Duration().Milliseconds(),
	}
	if o.Err != nil {
		entry.Status = StatusFailed
		entry.Error = o.Err.Error()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.summary.Total++
	r.summary.Bytes += o.Bytes
	r.summary.Records += o.Records
	r.summary.Outcomes = append(r.summary.Outcomes, entry)

	if o.Err != nil {
		r.summary.Failed++
		if r.errOut != nil {
			fmt.Fprintf(r.errOut, "Error: %s: %v\n", o.Key, o.Err)
		}
		return
	}

	r.summary.Succeeded++
	if r.out != nil {
		fmt.Fprintf(r.out, "Downloaded %s (%s)\n", o.Key, humanize.Bytes(uint64(o.Bytes)))
	}
}

// Summary returns a snapshot of the run so far.
func (r *Reporter) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.summary
	s.Outcomes = append(make([]Entry, 0, len(r.summary.Outcomes)), r.summary.Outcomes...)
	s.Duration = time.Since(r.started)
	s.Elapsed = s.Duration.Round(time.Millisecond).String()
	return s
}
