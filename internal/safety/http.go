package safety

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"
)

const (
	dialTimeout           = 30 * time.Second
	tlsHandshakeTimeout   = 15 * time.Second
	responseHeaderTimeout = 30 * time.Second
	idleConnTimeout       = 90 * time.Second
)

// NewHTTPClient returns a client for archive downloads. Connecting, the TLS
// handshake and waiting for response headers are always bounded; timeout
// bounds the whole request and may be zero, since archive bodies can take
// arbitrarily long to stream.
func NewHTTPClient(timeout time.Duration, maxConnsPerHost int) *http.Client {
	if maxConnsPerHost <= 0 {
		maxConnsPerHost = 10
	}
	dialer := &net.Dialer{Timeout: dialTimeout}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ResponseHeaderTimeout: responseHeaderTimeout,
		IdleConnTimeout:       idleConnTimeout,
		MaxIdleConns:          maxConnsPerHost * 2,
		MaxIdleConnsPerHost:   maxConnsPerHost,
		// Archives are gzip on the wire and must be stored that way.
		DisableCompression: true,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// DrainSnippet returns at most limit bytes of r, trimmed, and discards the
// remainder so the connection goes back to the pool.
func DrainSnippet(r io.Reader, limit int64) string {
	var sb strings.Builder
	_, _ = io.CopyN(&sb, r, limit)
	_, _ = io.Copy(io.Discard, r)
	return strings.TrimSpace(sb.String())
}

// ValidateBaseURL parses the API base URL. Only https is accepted, except for
// loopback hosts, which may use plain http.
func ValidateBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch {
	case u.Scheme != "https" && u.Scheme != "http":
		err = fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	case u.Host == "":
		err = errors.New("URL host is required")
	case u.User != nil:
		err = errors.New("URL userinfo is not allowed")
	case u.Scheme == "http" && !IsLoopbackHost(u):
		err = fmt.Errorf("plain http is only allowed for loopback hosts, got %q", u.Host)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// IsLoopbackHost reports whether u points at this machine.
func IsLoopbackHost(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	addr, err := netip.ParseAddr(host)
	return err == nil && addr.IsLoopback()
}
