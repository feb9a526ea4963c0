package record

import (
	"bytes"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
)

func sampleFields() []string {
	return []string{
		"1234567890123456789012345678",
		"2024-03-01T15:00:01Z",
		"2024-03-01T15:00:02Z",
		"42",
		"web-1",
		"10.0.0.7",
		"user",
		"Info",
		"nginx",
		"GET /healthz 200",
	}
}

func TestParse(t *testing.T) {
	ev, err := Parse(sampleFields())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if ev.SourceID != 42 {
		t.Errorf("SourceID = %d, want 42", ev.SourceID)
	}
	if ev.SourceIP.String() != "10.0.0.7" {
		t.Errorf("SourceIP = %s", ev.SourceIP)
	}
	if ev.GeneratedAt != "2024-03-01T15:00:01Z" {
		t.Errorf("GeneratedAt = %q", ev.GeneratedAt)
	}

	got := ev.Fields()
	for i, want := range sampleFields() {
		if got[i] != want {
			t.Errorf("Fields()[%d] = %q, want %q", i, got[i], want)
		}
	}
}

func TestParseRejectsInvalidRecords(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func([]string) []string
		wantField string
	}{
		{"non-numeric id", func(f []string) []string { f[0] = "abc"; return f }, "id"},
		{"negative id", func(f []string) []string { f[0] = "-1"; return f }, "id"},
		{"source id overflow", func(f []string) []string { f[3] = "4294967296"; return f }, "source_id"},
		{"malformed ip", func(f []string) []string { f[5] = "10.0.0"; return f }, "source_ip"},
		{"ipv6 address", func(f []string) []string { f[5] = "::1"; return f }, "source_ip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.mutate(sampleFields()))
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FieldError, got %v", err)
			}
			if fe.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", fe.Field, tt.wantField)
			}
		})
	}

	if _, err := Parse(sampleFields()[:9]); !errors.Is(err, ErrFieldCount) {
		t.Fatalf("expected ErrFieldCount, got %v", err)
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		input   string
		want    ID
		wantErr bool
	}{
		{"0", ID{}, false},
		{"18446744073709551615", ID{Lo: ^uint64(0)}, false},
		{"18446744073709551616", ID{Hi: 1}, false},
		{"340282366920938463463374607431768211455", ID{Hi: ^uint64(0), Lo: ^uint64(0)}, false},
		{"340282366920938463463374607431768211456", ID{}, true},
		{"", ID{}, true},
		{"12a", ID{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("ParseID(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
			if !tt.wantErr && got.String() != tt.input {
				t.Errorf("String() = %q, want %q", got.String(), tt.input)
			}
		})
	}
}

func TestCSVWriterQuoting(t *testing.T) {
	var buf bytes.Buffer
	w := NewCSVWriter(&buf)

	fields := sampleFields()
	fields[9] = "tab\there, comma and \"quote\""
	ev, err := Parse(fields)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if err := w.Write(ev); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %q", buf.String())
	}
	if lines[0] != strings.Join(Header, ",") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], `,"tab`+"\t"+`here, comma and ""quote"""`) {
		t.Errorf("message not quoted as expected: %q", lines[1])
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("re-reading csv failed: %v", err)
	}
	if rows[1][9] != fields[9] {
		t.Errorf("message round trip = %q, want %q", rows[1][9], fields[9])
	}
}

func TestCSVWriterHeaderOnlyOnce(t *testing.T) {
	var buf bytes.Buffer
	w := NewCSVWriter(&buf)
	if err := w.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader failed: %v", err)
	}
	ev, _ := Parse(sampleFields())
	_ = w.Write(ev)
	_ = w.Write(ev)
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if n := strings.Count(buf.String(), "generated_at"); n != 1 {
		t.Errorf("header written %d times", n)
	}
}
