package portal

import (
	"bytes"
	"fmt"
)

// HTTPError is returned when the portal answers with a status other than 200.
type HTTPError struct {
	URL        string
	Status     string
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("portal: get %q: %s (%q)", e.URL, e.Status, bytes.TrimSpace(e.Body))
}

// NetworkError wraps a request that never produced an HTTP response:
// DNS, connection, TLS, timeout or cancellation.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("portal: get %q: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
