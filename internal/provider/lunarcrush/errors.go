package lunarcrush

import (
	"fmt"
	"net/http"
)

// maxErrorBody caps how much of a failed response body is kept.
const maxErrorBody = 2 << 10

// NetworkError means no response reached the client.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "lunarcrush request failed: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// UpstreamError is a non-2xx answer from the API.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("lunarcrush responded %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("lunarcrush responded %d %s: %s", e.Status, http.StatusText(e.Status), e.Body)
}

// RateLimited reports whether the upstream throttled the request.
func (e *UpstreamError) RateLimited() bool { return e.Status == http.StatusTooManyRequests }
