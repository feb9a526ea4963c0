package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/BadgerOps/ptarchive/internal/bucket"
	"github.com/BadgerOps/ptarchive/internal/download"
)

func outcome(key string, err error, n int64) download.Outcome {
	now := time.Now()
	return download.Outcome{
		Key:     bucket.Key("2024-03-01-" + key),
		Err:     err,
		Bytes:   n,
		Started: now.Add(-time.Second),
		Finish:  now,
	}
}

func TestReporterLines(t *testing.T) {
	var out, errOut bytes.Buffer
	r := NewReporter("run-1", download.ModeRawCompressed, &out, &errOut)

	r.Record(outcome("00", nil, 2048))
	r.Record(outcome("01", errors.New("http error 404: 404 Not Found"), 0))
	r.Record(outcome("02", nil, 10))

	if got := strings.Count(out.String(), "\n"); got != 2 {
		t.Errorf("expected 2 success lines, got %d: %q", got, out.String())
	}
	if !strings.Contains(out.String(), "Downloaded 2024-03-01-00 (2.0 kB)") {
		t.Errorf("unexpected success output %q", out.String())
	}
	if errOut.String() != "Error: 2024-03-01-01: http error 404: 404 Not Found\n" {
		t.Errorf("unexpected failure output %q", errOut.String())
	}
}

func TestReporterSummary(t *testing.T) {
	r := NewReporter("run-2", download.ModeTranscoded, nil, nil)
	r.Record(outcome("00", nil, 100))
	r.Record(outcome("01", errors.New("boom"), 5))

	s := r.Summary()
	if s.Total != 2 || s.Succeeded != 1 || s.Failed != 1 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if s.Bytes != 105 {
		t.Errorf("Bytes = %d, want 105", s.Bytes)
	}
	if s.OK() {
		t.Error("expected OK() to be false with a failure")
	}
	if s.Mode != "transcoded" {
		t.Errorf("Mode = %q", s.Mode)
	}

	failures := s.Failures()
	if len(failures) != 1 || failures[0].Key != "2024-03-01-01" || failures[0].Error != "boom" {
		t.Errorf("unexpected failures %+v", failures)
	}
}

func TestReporterAllFailedStillSummarizes(t *testing.T) {
	r := NewReporter("run-3", download.ModeRawCompressed, nil, nil)
	for _, k := range []string{"00", "01", "02"} {
		r.Record(outcome(k, errors.New("down"), 0))
	}
	s := r.Summary()
	if s.Total != 3 || s.Failed != 3 || s.OK() {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestEmptySummary(t *testing.T) {
	s := NewReporter("run-4", download.ModeRawCompressed, nil, nil).Summary()
	if !s.OK() || s.Total != 0 {
		t.Fatalf("expected empty OK summary, got %+v", s)
	}

	var buf bytes.Buffer
	if err := s.WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"outcomes": []`) {
		t.Errorf("expected empty outcomes array, got %s", buf.String())
	}
}

func TestSummaryWriteJSON(t *testing.T) {
	r := NewReporter("run-5", download.ModeRawDecompressed, nil, nil)
	r.Record(outcome("00", nil, 42))

	var buf bytes.Buffer
	if err := r.Summary().WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var decoded struct {
		RunID     string `json:"run_id"`
		Succeeded int    `json:"succeeded"`
		Outcomes  []struct {
			Key    string `json:"key"`
			Status string `json:"status"`
			Bytes  int64  `json:"bytes"`
		} `json:"outcomes"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.RunID != "run-5" || decoded.Succeeded != 1 {
		t.Errorf("unexpected header fields %+v", decoded)
	}
	if len(decoded.Outcomes) != 1 || decoded.Outcomes[0].Status != StatusSuccess || decoded.Outcomes[0].Bytes != 42 {
		t.Errorf("unexpected outcomes %+v", decoded.Outcomes)
	}
}

func TestSummaryWriteText(t *testing.T) {
	r := NewReporter("run-6", download.ModeRawCompressed, nil, nil)
	r.Record(outcome("00", errors.New("decompression failed: unexpected EOF"), 0))

	var buf bytes.Buffer
	if err := r.Summary().WriteText(&buf); err != nil {
		t.Fatalf("WriteText failed: %v", err)
	}
	text := buf.String()
	for _, want := range []string{"run-6", "Failed:     1", "- 2024-03-01-00: decompression failed"} {
		if !strings.Contains(text, want) {
			t.Errorf("summary missing %q:\n%s", want, text)
		}
	}
}
