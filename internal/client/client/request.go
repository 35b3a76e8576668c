package client

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/dmitrijs2005/lecom/internal/common"
)

// Request describes one backend call. Path is resolved against the
// pipeline's base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte

	// SkipAuth sends the request without a bearer token and disables the
	// refresh-and-retry path. Used for login.
	SkipAuth bool
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// StatusError is a non-2xx response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte

	// cause is the refresh error when a 401 could not be recovered.
	cause error
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *StatusError) Unwrap() []error {
	errs := []error{statusSentinel(e.StatusCode)}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

func statusSentinel(code int) error {
	switch code {
	case http.StatusUnauthorized:
		return common.ErrUnauthenticated
	case http.StatusForbidden:
		return common.ErrForbidden
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return common.ErrUnavailable
	default:
		return common.ErrRequestFailed
	}
}
