// Package client is the authenticated request pipeline.
//
// # Overview
//
// Pipeline.Send is a drop-in replacement for a raw HTTP call against the
// backend. It attaches the current access token as a bearer credential and,
// when the backend answers 401, asks the refresh coordinator for a new token
// and re-dispatches the same request exactly once. Concurrent 401s share a
// single refresh round.
//
// Pipeline.UnaryClientInterceptor applies the same contract to gRPC calls.
//
// # Error Handling
//
// Non-2xx responses are returned as *StatusError, which matches the sentinels
// in package common with errors.Is:
//
//	401            common.ErrUnauthenticated
//	403            common.ErrForbidden
//	502, 503, 504  common.ErrUnavailable
//	other          common.ErrRequestFailed
//
// Transport errors and timeouts match common.ErrUnavailable and never engage
// the refresh coordinator. When a refresh fails the returned *StatusError is
// the original 401 and additionally unwraps to the refresh error.
package client
