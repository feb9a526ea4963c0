package download

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient creates a client pointed at a test server.
func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(ClientOptions{
		BaseURL:   baseURL,
		Token:     "test-token",
		UserAgent: "ptarchive/test",
	}, discardLogger())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

// TestNewClient creates client with defaults
func TestNewClient(t *testing.T) {
	client, err := NewClient(ClientOptions{}, discardLogger())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.httpClient == nil {
		t.Fatal("expected httpClient to be initialized")
	}
	if client.userAgent != "ptarchive/dev" {
		t.Errorf("expected default user agent, got %s", client.userAgent)
	}
	if got := client.ArchiveURL("2024-03-01-15"); got != "https://papertrailapp.com/api/v1/archives/2024-03-01-15/download" {
		t.Errorf("unexpected archive URL %s", got)
	}
}

func TestNewClientRejectsInsecureBaseURL(t *testing.T) {
	if _, err := NewClient(ClientOptions{BaseURL: "http://papertrailapp.com"}, discardLogger()); err == nil {
		t.Fatal("expected plain http to a remote host to be rejected")
	}
}

func TestOpenSendsTokenAndPath(t *testing.T) {
	var gotPath, gotToken, gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get(TokenHeader)
		gotAgent = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("archive bytes"))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL+"/")
	body, err := client.Open(context.Background(), "2024-03-01-15")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer body.Close()

	data, _ := io.ReadAll(body)
	if string(data) != "archive bytes" {
		t.Errorf("body = %q", data)
	}
	if gotPath != "/api/v1/archives/2024-03-01-15/download" {
		t.Errorf("path = %q", gotPath)
	}
	if gotToken != "test-token" {
		t.Errorf("token header = %q", gotToken)
	}
	if gotAgent != "ptarchive/test" {
		t.Errorf("user agent = %q", gotAgent)
	}
}

func TestOpenBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("archive not found " + strings.Repeat("x", 4096)))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	body, err := client.Open(context.Background(), "2024-03-01-15")
	if body != nil {
		t.Fatal("expected no body on failure")
	}

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", httpErr.StatusCode)
	}
	if httpErr.Key != "2024-03-01-15" {
		t.Errorf("key = %q", httpErr.Key)
	}
	if len(httpErr.Body) > 512 || !strings.HasPrefix(httpErr.Body, "archive not found") {
		t.Errorf("unexpected body snippet %q", httpErr.Body)
	}
	if !IsTransport(err) {
		t.Error("expected IsTransport to be true")
	}
}

func TestOpenRejectsOtherSuccessStatuses(t *testing.T) {
	for _, status := range []int{http.StatusNoContent, http.StatusPartialContent} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))
			defer server.Close()

			client := newTestClient(t, server.URL)
			body, err := client.Open(context.Background(), "2024-03-01-15")
			if body != nil {
				body.Close()
				t.Fatal("expected no body")
			}
			var httpErr *HTTPError
			if !errors.As(err, &httpErr) || httpErr.StatusCode != status {
				t.Fatalf("expected HTTPError with status %d, got %v", status, err)
			}
		})
	}
}

func TestOpenNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := newTestClient(t, url)
	_, err := client.Open(context.Background(), "2024-03-01-15")

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if te.Op != "request" {
		t.Errorf("Op = %q", te.Op)
	}
}

func TestModeFor(t *testing.T) {
	tests := []struct {
		decompress, transcode bool
		want                  Mode
		wantExt               string
		wantErr               bool
	}{
		{false, false, ModeRawCompressed, "tsv.gz", false},
		{true, false, ModeRawDecompressed, "tsv", false},
		{true, true, ModeTranscoded, "tsv", false},
		{false, true, 0, "", true},
	}

	for _, tt := range tests {
		got, err := ModeFor(tt.decompress, tt.transcode)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ModeFor(%v, %v) error = %v", tt.decompress, tt.transcode, err)
		}
		if tt.wantErr {
			continue
		}
		if got != tt.want {
			t.Errorf("ModeFor(%v, %v) = %v, want %v", tt.decompress, tt.transcode, got, tt.want)
		}
		if got.Ext() != tt.wantExt {
			t.Errorf("%v.Ext() = %q, want %q", got, got.Ext(), tt.wantExt)
		}
	}
}
