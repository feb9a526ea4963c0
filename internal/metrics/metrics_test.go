package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/BadgerOps/ptarchive/internal/download"
)

func TestObserve(t *testing.T) {
	m := New()
	now := time.Now()

	m.Observe(download.Outcome{Key: "2024-03-01-00", Bytes: 100, Records: 3, Started: now.Add(-time.Second), Finish: now})
	m.Observe(download.Outcome{Key: "2024-03-01-01", Bytes: 50, Err: errors.New("404"), Started: now, Finish: now})

	if got := testutil.ToFloat64(m.jobs.WithLabelValues("success")); got != 1 {
		t.Errorf("success jobs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.jobs.WithLabelValues("failure")); got != 1 {
		t.Errorf("failure jobs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.bytes); got != 150 {
		t.Errorf("bytes = %v, want 150", got)
	}
	if got := testutil.ToFloat64(m.records); got != 3 {
		t.Errorf("records = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.lastSuccess); got != float64(now.Unix()) {
		t.Errorf("last success = %v, want %v", got, now.Unix())
	}
	if got := testutil.CollectAndCount(m.duration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.Observe(download.Outcome{Key: "2024-03-01-00", Bytes: 10, Finish: time.Now()})

	path := filepath.Join(t.TempDir(), "ptarchive.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	text := string(data)
	for _, want := range []string{
		`ptarchive_jobs_total{outcome="success"} 1`,
		`ptarchive_jobs_total{outcome="failure"} 0`,
		`ptarchive_bytes_downloaded_total 10`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("textfile missing %q:\n%s", want, text)
		}
	}
}
