package types

import (
	"context"
	"time"
)

// SourceProvider retrieves original images by URL or local path.
type SourceProvider interface {
	Fetch(ctx context.Context, url string) (*SourceImage, error)
}

// SourceStatsProvider is implemented by providers that keep a fetch cache.
type SourceStatsProvider interface {
	Stats() FetcherStats
}

// Transformer re-encodes a source image according to Settings.
type Transformer interface {
	Transform(ctx context.Context, src []byte, settings Settings) (*Transformed, error)
}

type StoreInfo interface {
	Name() string
	IsAvailable() bool
}

type StoreReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

type StoreWriter interface {
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

type StoreClearer interface {
	Clear(ctx context.Context) error
}

type StoreCloser interface {
	Close() error
}

// BlobStore holds artifact bytes. Size accounting is done by the caller;
// a BlobStore never evicts on its own.
type BlobStore interface {
	StoreInfo
	StoreReader
	StoreWriter
	StoreClearer
	StoreCloser
}

type MetricsRecorder interface {
	RecordHit(key string, latency time.Duration)
	RecordMiss(key string, latency time.Duration)
	RecordProduce(key string, size int, latency time.Duration)
	RecordRefresh(key string, changed bool)
	RecordEviction(key string, size int)
	RecordRejection(queue string, reason Admission)
	RecordError(stage string, operation string, err error)
	RecordCircuitBreakerStateChange(from, to string)
}

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
