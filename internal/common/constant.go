// Package common contains shared constants and sentinel errors used across
// lecom client components.
package common

const (
	// AuthorizationHeaderName carries the bearer access token on outbound
	// HTTP requests and as gRPC metadata (lower-cased there).
	AuthorizationHeaderName = "Authorization"

	// BearerPrefix precedes the access token in AuthorizationHeaderName.
	BearerPrefix = "Bearer "

	// RequestIDHeaderName correlates an original dispatch with its retry.
	RequestIDHeaderName = "X-Request-ID"
)

// BearerValue formats token as an Authorization header value.
func BearerValue(token string) string {
	return BearerPrefix + token
}
