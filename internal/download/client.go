package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BadgerOps/ptarchive/internal/bucket"
	"github.com/BadgerOps/ptarchive/internal/safety"
)

// DefaultBaseURL is the archive service endpoint.
const DefaultBaseURL = "https://papertrailapp.com"

// TokenHeader carries the API token on every request.
const TokenHeader = "X-Papertrail-Token"

// ClientOptions configures a Client.
type ClientOptions struct {
	BaseURL   string
	Token     string
	UserAgent string
	// Timeout bounds a whole request including the body; zero means none.
	Timeout time.Duration
	// MaxConnsPerHost sizes the idle pool; callers pass the concurrency cap.
	MaxConnsPerHost int
}

// Client fetches archive bodies from the archive service.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	token      string
	userAgent  string
	logger     *slog.Logger
}

// NewClient creates an archive client.
func NewClient(opts ClientOptions, logger *slog.Logger) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	base, err := safety.ValidateBaseURL(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("base url: %w", err)
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "ptarchive/dev"
	}
	return &Client{
		httpClient: safety.NewHTTPClient(opts.Timeout, opts.MaxConnsPerHost),
		baseURL:    base,
		token:      opts.Token,
		userAgent:  opts.UserAgent,
		logger:     logger,
	}, nil
}

// ArchiveURL returns the download endpoint for key.
func (c *Client) ArchiveURL(key bucket.Key) string {
	return strings.TrimRight(c.baseURL.String(), "/") + "/api/v1/archives/" + url.PathEscape(key.String()) + "/download"
}

// Open issues exactly one GET for key and returns the response body. A
// non-2xx status is returned as *HTTPError with the body already drained.
func (c *Client) Open(ctx context.Context, key bucket.Key) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ArchiveURL(key), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set(TokenHeader, c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Key: key, Op: "request", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		body := safety.DrainSnippet(resp.Body, 512)
		resp.Body.Close()
		c.logger.Debug("archive request rejected", "key", key, "status", resp.StatusCode, "body", body)
		return nil, &HTTPError{
			Key:        key,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       body,
		}
	}

	return resp.Body, nil
}

// countingReader tallies bytes read and remembers the first non-EOF error
// so body failures can be told apart from sink failures.
type countingReader struct {
	reader io.Reader
	n      int64
	err    error
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.reader.Read(p)
	cr.n += int64(n)
	if err != nil && err != io.EOF && cr.err == nil {
		cr.err = err
	}
	return n, err
}
