// Package gifread adapts image/gif into a frame-at-a-time reader that exposes
// each frame's raw metadata and decodes its pixels into caller-owned RGBA
// buffers. It does not composite anything; see package composite for that.
package gifread

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"

	"github.com/pkg/errors"
)

// Disposal is the GIF disposal method of a single frame. It describes what
// happens to the frame's pixels once the next frame is drawn.
type Disposal uint8

// Disposal methods as defined by the GIF89a specification. The values match
// image/gif's constants.
const (
	Unspecified       Disposal = 0
	DoNotDispose      Disposal = gif.DisposalNone
	RestoreBackground Disposal = gif.DisposalBackground
	RestorePrevious   Disposal = gif.DisposalPrevious
)

func (d Disposal) String() string {
	switch d {
	case Unspecified:
		return "unspecified"
	case DoNotDispose:
		return "none"
	case RestoreBackground:
		return "background"
	case RestorePrevious:
		return "previous"
	default:
		return "invalid"
	}
}

// Restores returns true if the disposal method restores the canvas (to either
// the background or the previous state) after the frame is shown.
func (d Disposal) Restores() bool {
	return d == RestoreBackground || d == RestorePrevious
}

// FrameInfo is the raw metadata of a single frame.
type FrameInfo struct {
	// Rect is the dirty region of the frame in canvas coordinates. It is
	// always within the canvas bounds.
	Rect     image.Rectangle
	Disposal Disposal
	// Delay is in 100ths of a second.
	Delay int
}

// Errors returned by the reader.
var (
	ErrFrameIndex  = errors.New("frame index out of range")
	ErrShortBuffer = errors.New("pixel buffer is smaller than the canvas")
)

// Reader reads frames off of a decoded GIF.
type Reader struct {
	gif  *gif.GIF
	size image.Point
}

// NewReader decodes all of b as a GIF.
func NewReader(b []byte) (*Reader, error) {
	g, err := gif.DecodeAll(bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode GIF")
	}

	return FromGIF(g), nil
}

// FromGIF wraps an already decoded GIF.
func FromGIF(g *gif.GIF) *Reader {
	size := image.Pt(g.Config.Width, g.Config.Height)

	// Some encoders leave the logical screen empty. Fall back to whatever area
	// the frames cover.
	if size.X <= 0 || size.Y <= 0 {
		var union image.Rectangle
		for _, img := range g.Image {
			union = union.Union(img.Rect)
		}
		size = union.Max
	}

	return &Reader{gif: g, size: size}
}

// Size returns the canvas size in pixels.
func (r *Reader) Size() image.Point { return r.size }

// NumFrames returns the number of raw frames.
func (r *Reader) NumFrames() int { return len(r.gif.Image) }

// LoopCount returns the Netscape loop count: 0 loops forever, -1 plays once.
func (r *Reader) LoopCount() int { return r.gif.LoopCount }

// FrameInfo returns the metadata of frame i. It panics if i is out of range,
// the same way a slice would.
func (r *Reader) FrameInfo(i int) FrameInfo {
	info := FrameInfo{
		Rect: r.gif.Image[i].Rect.Intersect(image.Rectangle{Max: r.size}),
	}

	if i < len(r.gif.Disposal) {
		info.Disposal = Disposal(r.gif.Disposal[i])
	}
	if i < len(r.gif.Delay) {
		info.Delay = r.gif.Delay[i]
	}

	return info
}

// DecodeFrameRGBA writes the pixels of frame i into pix, which is a canvas of
// Size() pixels in RGBA order with a stride of 4 times the width. Only the
// opaque pixels inside the frame's rectangle are written; every other byte is
// left untouched.
func (r *Reader) DecodeFrameRGBA(i int, pix []byte) error {
	if i < 0 || i >= len(r.gif.Image) {
		return errors.Wrapf(ErrFrameIndex, "frame %d of %d", i, len(r.gif.Image))
	}

	stride := 4 * r.size.X
	if len(pix) < stride*r.size.Y {
		return errors.Wrapf(ErrShortBuffer, "got %d bytes, want %d", len(pix), stride*r.size.Y)
	}

	src := r.gif.Image[i]
	rect := src.Rect.Intersect(image.Rectangle{Max: r.size})

	// Resolve the palette once rather than converting per pixel.
	palette := make([]color.RGBA, len(src.Palette))
	for j, c := range src.Palette {
		palette[j] = color.RGBAModel.Convert(c).(color.RGBA)
	}

	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		srcRow := src.Pix[src.PixOffset(rect.Min.X, y):]
		dstRow := pix[y*stride+rect.Min.X*4:]

		for x := 0; x < rect.Dx(); x++ {
			ix := int(srcRow[x])
			if ix >= len(palette) {
				continue
			}

			c := palette[ix]
			if c.A == 0 {
				continue
			}

			o := x * 4
			dstRow[o+0] = c.R
			dstRow[o+1] = c.G
			dstRow[o+2] = c.B
			dstRow[o+3] = c.A
		}
	}

	return nil
}
