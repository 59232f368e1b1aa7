package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LavishGent/imgcache/internal/config"
	"github.com/LavishGent/imgcache/internal/metrics"
	"github.com/LavishGent/imgcache/internal/types"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n rest of image")

type fakeBackend struct {
	mu       sync.Mutex
	data     []byte
	size     types.Dimensions
	err      error
	health   types.HealthStatus
	lastURL  string
	lastSpec types.Settings
}

func (b *fakeBackend) Get(ctx context.Context, url string, s types.Settings) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastURL, b.lastSpec = url, s
	return b.data, b.err
}

func (b *fakeBackend) GetSize(ctx context.Context, url string) (types.Dimensions, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastURL = url
	return b.size, b.err
}

func (b *fakeBackend) DebugInfo() types.DebugInfo {
	return types.DebugInfo{CacheSize: 42, MaxCacheSize: 100}
}

func (b *fakeBackend) Health() types.HealthStatus {
	if b.health == 0 {
		return types.HealthStatusHealthy
	}
	return b.health
}

type timingPublisher struct {
	metrics.NoOpPublisher
	mu      sync.Mutex
	timings []string
}

func (p *timingPublisher) Timing(name string, d time.Duration, tags ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timings = append(p.timings, name+"|"+strings.Join(tags, ","))
}

func newTestServer(b *fakeBackend, pub types.Publisher) http.Handler {
	return New(config.ForTesting(), b, pub, nil).Handler()
}

func do(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestImageEndpoint(t *testing.T) {
	b := &fakeBackend{data: pngHeader}
	h := newTestServer(b, nil)

	rec := do(h, "/api/image?url=https://cdn.example.com/a.png&f=jpeg&q=50&w=300")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pngHeader, rec.Body.Bytes())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=60", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "https://cdn.example.com/a.png", b.lastURL)
	assert.Equal(t, types.Settings{Format: types.FormatJPEG, Quality: 50, Width: 300, Height: 64}, b.lastSpec)
}

func TestSizeEndpoint(t *testing.T) {
	b := &fakeBackend{size: types.Dimensions{Width: 640, Height: 480}}
	h := newTestServer(b, nil)

	rec := do(h, "/api/image/size?url=/local/pic.png")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"w":640,"h":480}`, rec.Body.String())
	assert.Equal(t, "public, max-age=60", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "/local/pic.png", b.lastURL)
}

func TestDebugEndpoint(t *testing.T) {
	h := newTestServer(&fakeBackend{}, nil)

	rec := do(h, "/api/image/debug")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	var info types.DebugInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, int64(42), info.CacheSize)
}

func TestHealthEndpoint(t *testing.T) {
	b := &fakeBackend{}
	h := newTestServer(b, nil)

	rec := do(h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	b.health = types.HealthStatusUnhealthy
	rec = do(h, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		want   int
	}{
		{"missing url", "/api/image", nil, http.StatusBadRequest},
		{"bad quality", "/api/image?url=/a.png&q=0", nil, http.StatusBadRequest},
		{"bad format", "/api/image?url=/a.png&f=bmp", nil, http.StatusBadRequest},
		{"not found", "/api/image?url=/a.png", fmt.Errorf("fetch: %w", types.ErrNotFound), http.StatusNotFound},
		{"invalid content", "/api/image/size?url=/a.png", types.NewCacheError("Fetch", "/a.png", "fetch", types.ErrInvalidContent), http.StatusUnprocessableEntity},
		{"closed", "/api/image?url=/a.png", types.ErrClosed, http.StatusServiceUnavailable},
		{"upstream rejected", "/api/image?url=/a.png", types.NewCacheError("Fetch", "/a.png", "fetch", types.ErrUpstreamRejected), http.StatusBadGateway},
		{"upstream status", "/api/image/size?url=/a.png", fmt.Errorf("%w: 503", types.ErrUpstreamStatus), http.StatusBadGateway},
		{"other", "/api/image?url=/a.png", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(&fakeBackend{err: tt.err}, nil)
			rec := do(h, tt.target)
			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestServer(&fakeBackend{}, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/image?url=/a.png", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRequestTimings(t *testing.T) {
	pub := &timingPublisher{}
	h := newTestServer(&fakeBackend{data: pngHeader}, pub)

	do(h, "/api/image?url=/a.png")
	do(h, "/api/image")

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, []string{
		"http.request|route:image,code:200",
		"http.request|route:image,code:400",
	}, pub.timings)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(config.ForTesting(), &fakeBackend{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, StatusFor(fmt.Errorf("x: %w", types.ErrCircuitOpen)))
	assert.Equal(t, http.StatusBadRequest, StatusFor(fmt.Errorf("%w: nope", types.ErrInvalidRequest)))
}
