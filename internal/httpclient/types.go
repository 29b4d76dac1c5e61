package httpclient

import (
	"fmt"
	"net/http"
)

// Response is a completed HTTP exchange with a 2xx status
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// HTTPError represents an HTTP error with status code and URL
type HTTPError struct {
	StatusCode int
	URL        string
	Message    string
}

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, url, message string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		URL:        url,
		Message:    message,
	}
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}
