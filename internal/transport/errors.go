package transport

import (
	"errors"
	"fmt"
)

// apiErrorBodyLimit caps how much of an upstream error body is carried in
// the error message.
const apiErrorBodyLimit = 300

// APIError is a non-2xx response from an upstream endpoint. The body
// snippet is preserved so callers can classify capacity-limit conditions
// the upstream only signals through message text.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// RetriesExhaustedError reports that a logical request used up its entire
// attempt budget. Last is the error observed on the final attempt.
type RetriesExhaustedError struct {
	Method   string
	URL      string
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("transport: %s %s failed after %d attempts: %v", e.Method, e.URL, e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Last
}

// AsAPIError extracts the upstream response error from anywhere in err's
// chain, including from inside a RetriesExhaustedError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// snippet truncates an upstream body for inclusion in error text.
func snippet(body []byte) string {
	if len(body) > apiErrorBodyLimit {
		return string(body[:apiErrorBodyLimit])
	}
	return string(body)
}
