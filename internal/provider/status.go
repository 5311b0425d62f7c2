// Package provider holds the bits shared by the external speech-to-text and
// text-generation backends.
package provider

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxBodyExcerpt = 2000

// StatusError is a non-success HTTP response from a provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Provider, e.StatusCode)
}

// Diagnostic returns the response body excerpt for logs.
func (e *StatusError) Diagnostic() string {
	return e.Body
}

// CheckResponse returns a *StatusError for any non-2xx response. The body is
// consumed in that case.
func CheckResponse(name string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyExcerpt))
	return &StatusError{
		Provider:   name,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}

// Endpoint joins a base URL and a path without doubling slashes.
func Endpoint(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
