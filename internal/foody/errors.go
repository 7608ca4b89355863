package foody

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying upstream failures. Callers decide per call site
// whether a failure aborts the run or only skips one unit of work.
var (
	// ErrUpstreamTransport marks network/HTTP failures calling the vendor API.
	ErrUpstreamTransport = errors.New("upstream transport failure")
	// ErrUpstreamShape marks a response that decoded but did not have the
	// expected JSON structure.
	ErrUpstreamShape = errors.New("unexpected upstream response shape")
)

// UpstreamError wraps a failed call against one of the vendor endpoints.
type UpstreamError struct {
	Endpoint string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Endpoint, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ValidationError marks one landing-zone record that could not be coerced into
// a Location or Food. Always a per-record skip, never fatal to the file.
type ValidationError struct {
	Record string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s record: %s", e.Record, e.Reason)
}
