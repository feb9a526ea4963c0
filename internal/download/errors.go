package download

import (
	"errors"
	"fmt"

	"github.com/BadgerOps/ptarchive/internal/bucket"
)

// ErrMissingDirectory is returned by Pool.Run when the output directory
// does not exist. No request is issued in that case.
var ErrMissingDirectory = errors.New("output directory not found")

// HTTPError represents a non-success response for one archive.
type HTTPError struct {
	Key        bucket.Key
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("failed to download %s: http error %d: %s", e.Key, e.StatusCode, e.Status)
}

// TransportError wraps a network failure while requesting or reading an archive.
type TransportError struct {
	Key bucket.Key
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err came from the network or the remote
// service rather than local processing.
func IsTransport(err error) bool {
	var httpErr *HTTPError
	var transportErr *TransportError
	return errors.As(err, &httpErr) || errors.As(err, &transportErr)
}
