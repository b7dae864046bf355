package composite

import (
	"image"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// DefaultMaxPixels is the default upper bound on the number of pixels a single
// buffer may hold. Every frame is kept in memory fully composited, so the
// bound is kept fairly small.
const DefaultMaxPixels = 4096 * 4096

// ErrTooLarge is returned by RGBAAllocator if the requested buffer is empty or
// too large.
var ErrTooLarge = errors.New("buffer size out of bounds")

// Allocator allocates off-screen pixel buffers. Every buffer must start out
// fully transparent.
type Allocator interface {
	NewBuffer(size image.Point) (draw.Image, error)
}

// RGBAAllocator allocates *image.RGBA buffers.
type RGBAAllocator struct {
	// MaxPixels is the maximum width * height allowed. If 0, DefaultMaxPixels
	// is used.
	MaxPixels int
}

var _ Allocator = RGBAAllocator{}

// NewBuffer allocates a new transparent RGBA buffer.
func (a RGBAAllocator) NewBuffer(size image.Point) (draw.Image, error) {
	limit := a.MaxPixels
	if limit == 0 {
		limit = DefaultMaxPixels
	}

	if size.X <= 0 || size.Y <= 0 || size.X*size.Y > limit {
		return nil, errors.Wrapf(ErrTooLarge, "%dx%d (max %d pixels)", size.X, size.Y, limit)
	}

	return image.NewRGBA(image.Rectangle{Max: size}), nil
}

// putRegion writes the raw RGBA canvas pix into only the r region of dst.
// Pixels of dst outside r are left alone.
func putRegion(dst draw.Image, pix []byte, r image.Rectangle) {
	src := &image.RGBA{
		Pix:    pix,
		Stride: 4 * dst.Bounds().Dx(),
		Rect:   dst.Bounds(),
	}
	draw.Draw(dst, r, src, r.Min, draw.Src)
}

// drawOver alpha-composites src on top of dst.
func drawOver(dst, src draw.Image) {
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Over)
}

// readRegion copies the r region of src into a new RGBA image anchored at the
// origin.
func readRegion(src image.Image, r image.Rectangle) *image.RGBA {
	dst := image.NewRGBA(image.Rectangle{Max: r.Size()})
	draw.Draw(dst, dst.Rect, src, r.Min, draw.Src)
	return dst
}
