package imgcache

import (
	"github.com/LavishGent/imgcache/internal/cache"
	"github.com/LavishGent/imgcache/internal/types"
)

type (
	// Settings describes the requested output of a transform.
	Settings = types.Settings
	// Format is an output image encoding.
	Format = types.Format
	// Dimensions is a pixel width and height.
	Dimensions = types.Dimensions
	// SourceImage is an original image as returned by a SourceProvider.
	SourceImage = types.SourceImage
	// Transformed is the output of a Transformer.
	Transformed = types.Transformed
	// DebugInfo is a diagnostic snapshot of the cache.
	DebugInfo = types.DebugInfo
	// CachedItem describes one cached artifact in DebugInfo.
	CachedItem = types.CachedItem
	// QueueDebugInfo is the observable state of a task queue.
	QueueDebugInfo = types.QueueDebugInfo

	SourceProvider  = types.SourceProvider
	Transformer     = types.Transformer
	BlobStore       = types.BlobStore
	MetricsRecorder = types.MetricsRecorder
	Logger          = types.Logger
)

const (
	FormatWebP = types.FormatWebP
	FormatAVIF = types.FormatAVIF
	FormatJPEG = types.FormatJPEG
	FormatPNG  = types.FormatPNG
)

// ParseFormat accepts webp, avif, jpeg, png and jpg.
func ParseFormat(s string) (Format, error) {
	return types.ParseFormat(s)
}

// DeriveKey returns the cache key used for url rendered with s.
func DeriveKey(url string, s Settings) string {
	return cache.DeriveKey(url, s)
}
