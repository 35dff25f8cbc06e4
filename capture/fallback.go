package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/hazyhaar/timecap/platform"
)

// ThumbnailFallback fetches a platform-hosted thumbnail when live capture is
// not possible. The thumbnail shows an arbitrary frame, so the requested
// timestamp is stamped onto the image to keep the artifact honest about what
// it is.
type ThumbnailFallback struct {
	client *resty.Client
	logger *slog.Logger

	// candidates is swappable for tests; defaults to the platform table.
	candidates func(rawurl string) []string
}

// NewThumbnailFallback builds a fallback fetcher with its own HTTP client.
func NewThumbnailFallback(logger *slog.Logger) *ThumbnailFallback {
	if logger == nil {
		logger = slog.Default()
	}
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(1)
	return &ThumbnailFallback{
		client:     client,
		logger:     logger,
		candidates: platform.ThumbnailCandidates,
	}
}

// minThumbnailSize filters out the tiny placeholder images some platforms
// serve instead of a 404.
const minThumbnailSize = 1024

// Fetch tries each candidate thumbnail URL in order and returns the first
// plausible image, stamped with the requested timestamp.
func (f *ThumbnailFallback) Fetch(ctx context.Context, rawurl string, timestamp float64) ([]byte, error) {
	urls := f.candidates(rawurl)
	if len(urls) == 0 {
		return nil, ErrFallbackUnavailable
	}
	for _, u := range urls {
		resp, err := f.client.R().SetContext(ctx).Get(u)
		if err != nil {
			f.logger.Debug("thumbnail fetch failed", "url", u, "error", err)
			continue
		}
		if resp.StatusCode() != 200 || len(resp.Body()) < minThumbnailSize {
			f.logger.Debug("thumbnail rejected", "url", u,
				"status", resp.StatusCode(), "bytes", len(resp.Body()))
			continue
		}
		stamped, err := stampTimestamp(resp.Body(), timestamp)
		if err != nil {
			// An unstampable body is still a usable image.
			f.logger.Warn("timestamp stamp failed", "url", u, "error", err)
			return resp.Body(), nil
		}
		return stamped, nil
	}
	return nil, ErrFallbackUnavailable
}

// stampTimestamp draws "m:ss" on a dark plate in the bottom-right corner and
// re-encodes as JPEG.
func stampTimestamp(data []byte, timestamp float64) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode thumbnail: %w", err)
	}

	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)

	label := formatTimestamp(timestamp)
	face := basicfont.Face7x13
	textW := font.MeasureString(face, label).Ceil()
	pad := 6
	plateW := textW + 2*pad
	plateH := face.Height + 2*pad

	plate := image.Rect(
		bounds.Max.X-plateW-pad, bounds.Max.Y-plateH-pad,
		bounds.Max.X-pad, bounds.Max.Y-pad,
	)
	draw.Draw(dst, plate, &image.Uniform{color.RGBA{0, 0, 0, 200}}, image.Point{}, draw.Over)

	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot: fixed.P(
			plate.Min.X+pad,
			plate.Min.Y+pad+face.Ascent,
		),
	}
	d.DrawString(label)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode stamped thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// formatTimestamp renders seconds as m:ss.
func formatTimestamp(timestamp float64) string {
	if timestamp < 0 {
		timestamp = 0
	}
	total := int(timestamp)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
