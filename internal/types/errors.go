package types

import (
	"errors"
	"fmt"
)

var (
	ErrCacheMiss          = errors.New("imgcache: key not found")
	ErrNotFound           = errors.New("imgcache: source image not found")
	ErrInvalidContent     = errors.New("imgcache: invalid image content")
	ErrUnsupportedFormat  = errors.New("imgcache: unsupported output format")
	ErrTransformFailed    = errors.New("imgcache: transform failed")
	ErrCapacityExceeded   = errors.New("imgcache: artifact larger than cache capacity")
	ErrNegativeCacheSize  = errors.New("imgcache: cache size accounting went negative")
	ErrQueueFull          = errors.New("imgcache: task queue full")
	ErrDuplicateTask      = errors.New("imgcache: task already pending for key")
	ErrClosed             = errors.New("imgcache: closed")
	ErrCircuitOpen        = errors.New("imgcache: circuit breaker open")
	ErrBulkheadFull       = errors.New("imgcache: bulkhead at capacity")
	ErrBulkheadTimeout    = errors.New("imgcache: bulkhead timeout")
	ErrInvalidRequest     = errors.New("imgcache: invalid request")
	ErrStoreUnavailable   = errors.New("imgcache: blob store unavailable")
	ErrUpstreamStatus     = errors.New("imgcache: unexpected upstream status")
	ErrUpstreamRejected   = errors.New("imgcache: upstream rejected request")
	ErrSourceTooLarge     = errors.New("imgcache: source exceeds size limit")
	ErrNoEvictionProgress = errors.New("imgcache: no evictable entry")
)

// CacheError attaches the failing operation, the cache key and the pipeline
// stage (fetch, transform, store, evict, ...) to an underlying error.
type CacheError struct {
	Op    string
	Key   string
	Stage string
	Err   error
}

func (e *CacheError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("imgcache %s at %s [%s]: %v", e.Op, e.Stage, e.Key, e.Err)
	}
	return fmt.Sprintf("imgcache %s at %s: %v", e.Op, e.Stage, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

func NewCacheError(op, key, stage string, err error) *CacheError {
	return &CacheError{
		Op:    op,
		Key:   key,
		Stage: stage,
		Err:   err,
	}
}

func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalidContent(err error) bool {
	return errors.Is(err, ErrInvalidContent)
}

func IsInvalidRequest(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}

// IsUpstreamError reports whether the source server answered with a status
// that is neither success nor not-found.
func IsUpstreamError(err error) bool {
	return errors.Is(err, ErrUpstreamStatus) || errors.Is(err, ErrUpstreamRejected)
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// IsRetryable reports whether a source fetch failing with err may succeed on
// a later attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidContent),
		errors.Is(err, ErrSourceTooLarge),
		errors.Is(err, ErrUpstreamRejected),
		errors.Is(err, ErrInvalidRequest):
		return false
	case IsCircuitOpen(err):
		// wait for the breaker to recover instead
		return false
	case errors.Is(err, ErrClosed):
		return false
	}

	// network errors, timeouts, 408, 429 and 5xx responses
	return true
}
