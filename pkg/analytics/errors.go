package analytics

import "fmt"

// ConnectivityError means the request never completed (DNS, refused
// connection, timeout). The scheduler retries on its next tick.
type ConnectivityError struct {
	URL string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("analytics request to %s failed: %v", e.URL, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// ServerError means the service answered with a non-2xx status.
type ServerError struct {
	URL        string
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("analytics returned status %d for %s", e.StatusCode, e.URL)
}

// DecodeError means the response body could not be parsed.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed analytics response from %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
