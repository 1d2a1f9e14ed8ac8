package github

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/imroc/req/v3"
)

var (
	ErrNotFound         = errors.New("github: not found")
	ErrAlreadyExists    = errors.New("github: already exists")
	ErrStaleHash        = errors.New("github: stale content hash")
	ErrUnauthorized     = errors.New("github: bad or missing credentials")
	ErrRepoAccessDenied = errors.New("github: repository access denied")
	ErrDownloadFailed   = errors.New("github: archive download failed")
)

// APIError is an error response returned by the GitHub REST API
type APIError struct {
	Status           int    `json:"-"`
	Message          string `json:"message"`
	DocumentationURL string `json:"documentation_url"`

	kind error
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api error: %d %s", e.Status, e.Message)
}

// Unwrap exposes the sentinel the status maps to, so callers can use errors.Is
func (e *APIError) Unwrap() error {
	return e.kind
}

// statusErrors maps HTTP statuses to sentinels. Operations pass their own
// table when a status means something specific to them.
type statusErrors map[int]error

var defaultStatusErrors = statusErrors{
	http.StatusUnauthorized: ErrUnauthorized,
	http.StatusNotFound:     ErrNotFound,
}

// handleAPIError converts a transport error or an error response into a Go error.
// It returns nil for 2xx responses.
func handleAPIError(resp *req.Response, requestErr error, operation string, overrides statusErrors) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s: %w", operation, requestErr)
	}

	if !resp.IsErrorState() {
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode}
	if body := resp.Bytes(); len(body) > 0 {
		// a non-json body just leaves Message empty
		_ = jsonUnmarshal(body, apiErr)
	}

	if kind, ok := overrides[resp.StatusCode]; ok {
		apiErr.kind = kind
	} else if kind, ok := defaultStatusErrors[resp.StatusCode]; ok {
		apiErr.kind = kind
	}

	return fmt.Errorf("%s: %w", operation, apiErr)
}
