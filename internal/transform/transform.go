// Package transform decodes a source image, scales it to fit inside the
// requested bounds and re-encodes it.
package transform

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"log/slog"
	"math"

	"github.com/HugoSmits86/nativewebp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/LavishGent/imgcache/internal/types"
)

const defaultQuality = 80

// Transformer implements types.Transformer with pure-Go codecs.
type Transformer struct {
	kernel draw.Interpolator
	logger *slog.Logger
}

func New(logger *slog.Logger) *Transformer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transformer{
		kernel: draw.CatmullRom,
		logger: logger.With("component", "transformer"),
	}
}

// Transform never enlarges. WebP output is lossless VP8L, so quality only
// affects JPEG and PNG. AVIF output returns ErrUnsupportedFormat: there is
// no pure-Go AV1 encoder.
func (t *Transformer) Transform(ctx context.Context, src []byte, settings types.Settings) (*types.Transformed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch settings.Format {
	case types.FormatWebP, types.FormatJPEG, types.FormatPNG:
	default:
		return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedFormat, settings.Format)
	}

	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", types.ErrTransformFailed, err)
	}

	b := img.Bounds()
	w, h := FitInside(b.Dx(), b.Dy(), settings.Width, settings.Height)
	if w != b.Dx() || h != b.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		t.kernel.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		img = dst
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	switch settings.Format {
	case types.FormatWebP:
		err = nativewebp.Encode(&buf, img, nil)
	case types.FormatJPEG:
		err = jpeg.Encode(&buf, flatten(img), &jpeg.Options{Quality: clampQuality(settings.Quality)})
	case types.FormatPNG:
		enc := png.Encoder{CompressionLevel: pngLevel(settings.Quality)}
		err = enc.Encode(&buf, img)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s: %v", types.ErrTransformFailed, settings.Format, err)
	}

	t.logger.Debug("Transformed image",
		"format", settings.Format,
		"from", fmt.Sprintf("%dx%d", b.Dx(), b.Dy()),
		"to", fmt.Sprintf("%dx%d", w, h),
		"bytes", buf.Len(),
	)

	return &types.Transformed{Data: buf.Bytes(), Format: settings.Format}, nil
}

// FitInside scales w x h down to fit maxW x maxH, keeping the aspect ratio.
// A non-positive bound is unbounded on that axis.
func FitInside(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	scale := 1.0
	if maxW > 0 {
		scale = math.Min(scale, float64(maxW)/float64(w))
	}
	if maxH > 0 {
		scale = math.Min(scale, float64(maxH)/float64(h))
	}
	if scale >= 1 {
		return w, h
	}
	return max(1, int(math.Round(float64(w)*scale))), max(1, int(math.Round(float64(h)*scale)))
}

// flatten composites onto white; JPEG has no alpha channel.
func flatten(img image.Image) image.Image {
	if opaque, ok := img.(interface{ Opaque() bool }); ok && opaque.Opaque() {
		return img
	}
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, b, img, b.Min, draw.Over)
	return dst
}

func clampQuality(q int) int {
	if q <= 0 {
		return defaultQuality
	}
	return min(q, 100)
}

func pngLevel(q int) png.CompressionLevel {
	switch q = clampQuality(q); {
	case q <= 33:
		return png.BestSpeed
	case q <= 66:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

var _ types.Transformer = (*Transformer)(nil)
