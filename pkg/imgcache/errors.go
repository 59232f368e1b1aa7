package imgcache

import (
	"github.com/LavishGent/imgcache/internal/types"
)

// CacheError carries the failing operation, key and pipeline stage.
type CacheError = types.CacheError

var (
	// ErrNotFound indicates the source image does not exist.
	ErrNotFound = types.ErrNotFound
	// ErrInvalidContent indicates the source is empty, too large or not an image.
	ErrInvalidContent = types.ErrInvalidContent
	// ErrUnsupportedFormat indicates an output format with no encoder.
	ErrUnsupportedFormat = types.ErrUnsupportedFormat
	// ErrTransformFailed indicates the source could not be decoded or re-encoded.
	ErrTransformFailed = types.ErrTransformFailed
	// ErrInvalidRequest indicates malformed or disallowed request parameters.
	ErrInvalidRequest = types.ErrInvalidRequest
	// ErrUpstreamStatus indicates a transient upstream failure (408, 429, 5xx).
	ErrUpstreamStatus = types.ErrUpstreamStatus
	// ErrUpstreamRejected indicates the upstream refused the request (401, 403, ...).
	ErrUpstreamRejected = types.ErrUpstreamRejected
	// ErrCircuitOpen indicates the upstream circuit breaker is open.
	ErrCircuitOpen = types.ErrCircuitOpen
	// ErrClosed indicates the service has been closed.
	ErrClosed = types.ErrClosed
	// ErrNegativeCacheSize indicates the size accounting invariant was broken.
	ErrNegativeCacheSize = types.ErrNegativeCacheSize
)

func IsNotFound(err error) bool {
	return types.IsNotFound(err)
}

func IsInvalidContent(err error) bool {
	return types.IsInvalidContent(err)
}

func IsInvalidRequest(err error) bool {
	return types.IsInvalidRequest(err)
}

func IsCircuitOpen(err error) bool {
	return types.IsCircuitOpen(err)
}

// IsRetryable returns true if the error can be retried.
func IsRetryable(err error) bool {
	return types.IsRetryable(err)
}
