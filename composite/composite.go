// Package composite turns the raw frames of an animated GIF into a sequence
// of complete, independently drawable images.
//
// Each raw GIF frame is a diff: it only carries the pixels within its dirty
// rectangle, and those pixels may be transparent. Replacing the canvas with a
// frame would therefore erase whatever the earlier frames drew, so instead
// every frame is layered over an accumulator that holds everything drawn so
// far.
package composite

import (
	"image"
	"time"

	"github.com/pkg/errors"

	"github.com/diamondburned/tcell-gif/gifread"
)

// ErrExtraction is returned when a frame sequence could not be composited.
var ErrExtraction = errors.New("could not extract frames")

// Decoder is a GIF decoder that can read individual frames. *gifread.Reader
// implements it.
type Decoder interface {
	// Size returns the canvas size.
	Size() image.Point
	// NumFrames returns the number of raw frames.
	NumFrames() int
	// FrameInfo returns the metadata of frame i.
	FrameInfo(i int) gifread.FrameInfo
	// DecodeFrameRGBA decodes frame i into pix, an RGBA buffer covering the
	// whole canvas.
	DecodeFrameRGBA(i int, pix []byte) error
}

var _ Decoder = (*gifread.Reader)(nil)

// Frame is a fully composited frame. A frame must not be modified once it is
// created.
type Frame struct {
	Image *image.RGBA
	Delay time.Duration
}

// DelayUnit is the unit of a raw GIF delay.
const DelayUnit = 10 * time.Millisecond

// Frames composites every frame that dec has. Frames that restore the canvas
// after being shown (RestoreBackground and RestorePrevious) are skipped
// entirely, delays included.
//
// An empty slice is returned if the decoder has no frames. If any buffer could
// not be allocated or any frame could not be decoded, then a nil slice and an
// error wrapping ErrExtraction are returned.
func Frames(dec Decoder, alloc Allocator) ([]Frame, error) {
	if alloc == nil {
		alloc = RGBAAllocator{}
	}

	if dec.NumFrames() == 0 {
		return []Frame{}, nil
	}

	size := dec.Size()

	acc, err := alloc.NewBuffer(size)
	if err != nil {
		return nil, extractionErr(err, "failed to allocate accumulator")
	}

	// Reused across frames; it is cleared before each decode.
	pix := make([]byte, 4*size.X*size.Y)
	frames := make([]Frame, 0, dec.NumFrames())

	for i := 0; i < dec.NumFrames(); i++ {
		info := dec.FrameInfo(i)
		if info.Disposal.Restores() {
			continue
		}

		tmp, err := alloc.NewBuffer(size)
		if err != nil {
			return nil, extractionErr(err, "failed to allocate frame buffer")
		}

		for j := range pix {
			pix[j] = 0
		}

		if err := dec.DecodeFrameRGBA(i, pix); err != nil {
			return nil, extractionErr(err, "failed to decode frame")
		}

		putRegion(tmp, pix, info.Rect)
		drawOver(acc, tmp)

		frames = append(frames, Frame{
			Image: readRegion(acc, acc.Bounds()),
			Delay: time.Duration(info.Delay) * DelayUnit,
		})
	}

	return frames, nil
}

func extractionErr(err error, msg string) error {
	return &extractionError{errors.Wrap(err, msg)}
}

// extractionError marks an error as an ErrExtraction while keeping the
// original cause.
type extractionError struct {
	err error
}

func (err *extractionError) Error() string {
	return ErrExtraction.Error() + ": " + err.err.Error()
}

func (err *extractionError) Is(target error) bool { return target == ErrExtraction }

func (err *extractionError) Unwrap() error { return err.err }
