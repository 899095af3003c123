// Package thumbnail generates fixed-size square preview images from source
// media. Images are decoded in-process; videos go through a single ffmpeg
// frame extraction first.
package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
)

// Engine errors. None of them are retried here; retry policy belongs to the
// caller.
var (
	// ErrDecode indicates the source bytes could not be decoded as media
	ErrDecode = errors.New("decode source media")

	// ErrFrameExtraction indicates the external frame extraction failed
	ErrFrameExtraction = errors.New("extract video frame")

	// ErrEncode indicates the thumbnail could not be encoded
	ErrEncode = errors.New("encode thumbnail")
)

// Defaults for the generator options.
const (
	DefaultEdge    = 320
	DefaultQuality = 80
	DefaultSeekSec = 1
)

// Options configures a Generator. Zero values fall back to the defaults.
type Options struct {
	// Edge is the target square edge length in pixels.
	Edge int

	// Quality is the JPEG quality (1-100). Thumbnails are generated once and
	// read many times, so smaller output wins over encode speed.
	Quality int

	// SeekSec is the fixed offset in seconds the video frame is taken at.
	SeekSec int
}

// Generator implements thumbnail generation for images and videos.
type Generator struct {
	edge    int
	quality int
	seekSec int
}

// NewGenerator creates a generator with the given options.
func NewGenerator(opts Options) *Generator {
	g := &Generator{
		edge:    opts.Edge,
		quality: opts.Quality,
		seekSec: opts.SeekSec,
	}
	if g.edge <= 0 {
		g.edge = DefaultEdge
	}
	if g.quality <= 0 {
		g.quality = DefaultQuality
	}
	if g.seekSec <= 0 {
		g.seekSec = DefaultSeekSec
	}
	return g
}

// FromImage decodes the source bytes and returns encoded JPEG bytes of a
// square thumbnail. The source is center-cropped to its smaller dimension to
// avoid distortion, then downscaled to the configured edge. It is never
// upscaled: a source smaller than the edge produces a thumbnail at the
// source's smaller dimension.
func (g *Generator) FromImage(ctx context.Context, reader io.Reader) ([]byte, error) {
	src, err := imaging.Decode(reader, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	flat := flatten(src)

	bounds := flat.Bounds()
	side := bounds.Dx()
	if bounds.Dy() < side {
		side = bounds.Dy()
	}
	if side <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrDecode)
	}

	square := imaging.CropCenter(flat, side, side)

	target := side
	if g.edge < target {
		target = g.edge
	}
	thumb := imaging.Resize(square, target, target, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(g.quality)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return buf.Bytes(), nil
}

// flatten composites the source onto an opaque white background, guaranteeing
// three-channel input for the JPEG encoder.
func flatten(src image.Image) *image.NRGBA {
	bounds := src.Bounds()
	bg := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	return imaging.Overlay(bg, src, image.Pt(0, 0), 1.0)
}
