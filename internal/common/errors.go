// Package common defines shared constants and sentinel errors used across
// the pipeline, the refresh coordinator and the realtime layer. Callers
// should use errors.Is to match these values.
package common

import "errors"

var (
	// Session errors. ErrUnauthenticated means "the user must log in again".
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")

	// Refresh errors. Every refresh failure also matches ErrUnauthenticated.
	ErrRefreshFailed   = errors.New("token refresh failed")
	ErrNoRefreshToken  = errors.New("no refresh token")
	ErrRefreshRejected = errors.New("refresh token rejected")

	// Transport errors (timeouts, refused connections, 502/503/504).
	ErrUnavailable = errors.New("server unavailable")

	// Any other non-2xx response.
	ErrRequestFailed = errors.New("request failed")

	// Realtime errors.
	ErrSubscribeRejected = errors.New("subscribe rejected")
	ErrNotConnected      = errors.New("realtime not connected")

	// Credential store errors.
	ErrPartialCredential = errors.New("access and refresh tokens must be set together")
)
