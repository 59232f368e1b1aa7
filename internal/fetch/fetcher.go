// Package fetch retrieves source images over HTTP or from a local directory
// and keeps them briefly so a burst of transforms reads the source once.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/opencontainers/go-digest"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/singleflight"

	"github.com/LavishGent/imgcache/internal/config"
	"github.com/LavishGent/imgcache/internal/resilience"
	"github.com/LavishGent/imgcache/internal/types"
)

const fetchCacheShards = 16

// Fetcher implements types.SourceProvider.
type Fetcher struct {
	cfg    config.FetchConfig
	client *http.Client
	policy *resilience.Policy
	root   *os.Root
	cache  *bigcache.BigCache
	group  singleflight.Group
	logger *slog.Logger
	now    func() time.Time

	hits    atomic.Int64
	misses  atomic.Int64
	fetches atomic.Int64
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default client built from FetchConfig.Timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithPolicy wraps remote fetches in p. Without it remote fetches run bare.
func WithPolicy(p *resilience.Policy) Option {
	return func(f *Fetcher) { f.policy = p }
}

// New builds a Fetcher. A LocalRoot that cannot be opened is logged and
// local paths then resolve to ErrNotFound.
func New(cfg config.FetchConfig, logger *slog.Logger, opts ...Option) (*Fetcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f := &Fetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout.Std()},
		policy: resilience.NewDisabledPolicy(),
		logger: logger.With("component", "fetcher"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}

	if cfg.LocalRoot != "" {
		root, err := os.OpenRoot(cfg.LocalRoot)
		if err != nil {
			f.logger.Warn("Local image root unavailable", "root", cfg.LocalRoot, "error", err)
		} else {
			f.root = root
		}
	}

	if ttl := cfg.CacheTTL.Std(); ttl > 0 {
		bc, err := bigcache.New(context.Background(), bigcache.Config{
			Shards:             fetchCacheShards,
			LifeWindow:         ttl,
			CleanWindow:        ttl,
			MaxEntriesInWindow: 256,
			MaxEntrySize:       256 * 1024,
			Logger:             &bigcacheLogger{logger: f.logger},
		})
		if err != nil {
			f.closeRoot()
			return nil, fmt.Errorf("fetch cache: %w", err)
		}
		f.cache = bc
	}

	return f, nil
}

// Fetch returns the image at url. Concurrent calls for the same url share
// one retrieval. The shared retrieval keeps the first caller's values but
// not its cancellation: a caller that gives up gets ctx.Err() while the
// others still receive the result.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*types.SourceImage, error) {
	if img, ok := f.cached(url); ok {
		f.hits.Add(1)
		return img, nil
	}
	f.misses.Add(1)

	loadCtx := context.WithoutCancel(ctx)
	ch := f.group.DoChan(url, func() (any, error) {
		if img, ok := f.cached(url); ok {
			return img, nil
		}
		img, err := f.load(loadCtx, url)
		if err != nil {
			return nil, err
		}
		f.store(url, img)
		return img, nil
	})

	select {
	case <-ctx.Done():
		return nil, types.NewCacheError("Fetch", url, "fetch", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*types.SourceImage), nil
	}
}

func (f *Fetcher) load(ctx context.Context, url string) (*types.SourceImage, error) {
	f.fetches.Add(1)
	start := f.now()

	var data []byte
	var err error
	if isLocal(url) {
		data, err = f.readLocal(url)
	} else {
		data, err = resilience.Run(ctx, f.policy, func(ctx context.Context) ([]byte, error) {
			return f.readRemote(ctx, url)
		})
	}
	if err != nil {
		f.logger.Debug("Source fetch failed", "url", url, "error", err)
		return nil, types.NewCacheError("Fetch", url, "fetch", err)
	}

	img, err := inspect(data, int64(f.cfg.MaxPixels))
	if err != nil {
		return nil, types.NewCacheError("Fetch", url, "fetch", err)
	}

	f.logger.Debug("Fetched source",
		"url", url,
		"bytes", len(data),
		"width", img.Size.Width,
		"height", img.Size.Height,
		"duration", time.Since(start),
	)
	return img, nil
}

func isLocal(url string) bool {
	return strings.HasPrefix(url, "/") && !strings.HasPrefix(url, "//")
}

func (f *Fetcher) readLocal(url string) ([]byte, error) {
	if f.root == nil {
		return nil, fmt.Errorf("%w: no local root configured", types.ErrNotFound)
	}

	name, _, _ := strings.Cut(url, "?")
	name = strings.TrimPrefix(path.Clean(name), "/")

	file, err := f.root.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", types.ErrNotFound, name)
		}
		// escapes from the root land here too
		return nil, fmt.Errorf("%w: %v", types.ErrNotFound, err)
	}
	defer file.Close()

	return f.readLimited(file)
}

func (f *Fetcher) readRemote(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidRequest, err)
	}
	req.Header.Set("Accept", "image/*")
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return f.readLimited(resp.Body)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return nil, statusError(resp.StatusCode)
}

// statusError classifies a non-200 upstream answer. Only 408, 429 and 5xx
// are worth retrying.
func statusError(code int) error {
	switch {
	case code == http.StatusNotFound, code == http.StatusGone:
		return fmt.Errorf("%w: upstream returned %d", types.ErrNotFound, code)
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return fmt.Errorf("%w: %d", types.ErrUpstreamStatus, code)
	default:
		return fmt.Errorf("%w: %d", types.ErrUpstreamRejected, code)
	}
}

func (f *Fetcher) readLimited(r io.Reader) ([]byte, error) {
	limit := f.cfg.MaxSourceSize.Int64()
	if limit <= 0 {
		return io.ReadAll(r)
	}

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %w", types.ErrInvalidContent, types.ErrSourceTooLarge)
	}
	return data, nil
}

// inspect checks the bytes decode as an image no larger than maxPixels and
// computes the content digest. Only the header is decoded, so an image
// declaring huge dimensions is rejected before any pixel buffer exists.
func inspect(data []byte, maxPixels int64) (*types.SourceImage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body", types.ErrInvalidContent)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidContent, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: zero dimensions", types.ErrInvalidContent)
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", types.ErrInvalidContent, cfg.Width, cfg.Height, maxPixels)
	}

	return &types.SourceImage{
		Data: data,
		Size: types.Dimensions{Width: cfg.Width, Height: cfg.Height},
		Hash: digest.FromBytes(data).String(),
	}, nil
}

func (f *Fetcher) cached(url string) (*types.SourceImage, bool) {
	if f.cache == nil {
		return nil, false
	}
	buf, err := f.cache.Get(url)
	if err != nil {
		return nil, false
	}
	img, expires, err := decodeEntry(buf)
	if err != nil || !f.now().Before(expires) {
		return nil, false
	}
	return img, true
}

func (f *Fetcher) store(url string, img *types.SourceImage) {
	if f.cache == nil {
		return
	}
	expires := f.now().Add(f.cfg.CacheTTL.Std())
	if err := f.cache.Set(url, encodeEntry(img, expires)); err != nil {
		f.logger.Debug("Fetch cache set failed", "url", url, "error", err)
	}
}

// Stats reports live fetch cache contents and counters.
func (f *Fetcher) Stats() types.FetcherStats {
	stats := types.FetcherStats{
		Hits:    f.hits.Load(),
		Misses:  f.misses.Load(),
		Fetches: f.fetches.Load(),
	}
	if f.cache == nil {
		return stats
	}

	now := f.now()
	iter := f.cache.Iterator()
	for iter.SetNext() {
		entry, err := iter.Value()
		if err != nil {
			continue
		}
		img, expires, err := decodeEntry(entry.Value())
		if err != nil || !now.Before(expires) {
			continue
		}
		stats.Items++
		stats.Bytes += int64(len(img.Data))
	}
	return stats
}

func (f *Fetcher) Close() error {
	f.closeRoot()
	if f.cache != nil {
		return f.cache.Close()
	}
	return nil
}

func (f *Fetcher) closeRoot() {
	if f.root != nil {
		_ = f.root.Close()
	}
}

type bigcacheLogger struct {
	logger *slog.Logger
}

func (l *bigcacheLogger) Printf(format string, args ...any) {
	l.logger.Debug("bigcache: "+format, args...)
}

var _ types.SourceProvider = (*Fetcher)(nil)
var _ types.SourceStatsProvider = (*Fetcher)(nil)
