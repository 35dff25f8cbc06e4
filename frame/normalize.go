// Package frame converts raw captured frames into the service's canonical
// artifact form: a JPEG at the requested dimensions. Normalization is lossy
// on purpose and forgiving by contract, since a slightly off artifact beats a
// failed request.
package frame

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"log/slog"

	xdraw "golang.org/x/image/draw"
)

const jpegQuality = 85

// Transcoder does the actual decode-resize-encode work. It is injectable so
// tests can exercise the failure contract without crafting corrupt images.
type Transcoder interface {
	Transcode(data []byte, width, height int) ([]byte, error)
}

// Normalizer wraps a Transcoder with the package's never-fail contract: any
// transcode error is logged and the input bytes pass through unchanged.
type Normalizer struct {
	tc     Transcoder
	logger *slog.Logger
}

// NewNormalizer builds a Normalizer. A nil transcoder gets the standard one.
func NewNormalizer(tc Transcoder, logger *slog.Logger) *Normalizer {
	if tc == nil {
		tc = StdTranscoder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{tc: tc, logger: logger}
}

// Normalize returns the canonical JPEG for data, or data itself when
// transcoding fails.
func (n *Normalizer) Normalize(data []byte, width, height int) []byte {
	out, err := n.tc.Transcode(data, width, height)
	if err != nil {
		n.logger.Warn("frame normalization failed, passing through",
			"bytes", len(data), "width", width, "height", height, "error", err)
		return data
	}
	return out
}

// StdTranscoder decodes PNG or JPEG input, resizes with Catmull-Rom when the
// dimensions differ, and encodes JPEG.
type StdTranscoder struct{}

func (StdTranscoder) Transcode(data []byte, width, height int) ([]byte, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("frame: decode: %w", err)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("frame: bad target %dx%d", width, height)
	}

	bounds := src.Bounds()
	var out image.Image = src
	if bounds.Dx() != width || bounds.Dy() != height {
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
		out = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("frame: encode %s input: %w", format, err)
	}
	return buf.Bytes(), nil
}
