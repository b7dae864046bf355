package tsixel

import (
	"image"
	"sync"

	"github.com/disintegration/imaging"
)

// CanvasOpts represents the options of a canvas. It is meant to be constant to
// each canvas.
type CanvasOpts struct {
	// Filter is the resampling filter used when the frames have to be scaled
	// down. The zero value is nearest-neighbor.
	Filter imaging.ResampleFilter
	// MaxSize bounds the image size in units of cells. The image is never
	// scaled up, and it keeps its aspect ratio. A zero value on either axis
	// imposes no bound on that axis.
	MaxSize image.Point
	// Dither, if true, will apply dithering onto the image.
	Dither bool
	// Colors is the number of palette colors, between 2 and 255. The default
	// is 255.
	Colors int
}

// Canvas is a SIXEL surface that whole frames are painted onto. Painted images
// are assumed to never change, which allows their SIXEL to be cached: painting
// the same image again is free.
//
// A Canvas starts out hidden, and it draws nothing while hidden.
type Canvas struct {
	l    sync.Mutex
	opts CanvasOpts
	pipe *EncodePipeline

	pos    image.Point
	src    *image.RGBA
	hidden bool
	redraw bool

	shown   canvasKey // key of sixel
	sixel   []byte
	cells   image.Point
	cache   map[canvasKey][]byte
	pending map[canvasKey]struct{}
	epoch   uint64 // incremented on Hide
}

type canvasKey struct {
	src  *image.RGBA
	size image.Point // px
}

// NewCanvas creates a new canvas that encodes on the given pipeline.
func NewCanvas(pipe *EncodePipeline, opts CanvasOpts) *Canvas {
	return &Canvas{
		opts:    opts,
		pipe:    pipe,
		hidden:  true,
		cache:   map[canvasKey][]byte{},
		pending: map[canvasKey]struct{}{},
	}
}

// Paint sets the image to be drawn. It does not redraw the screen.
func (c *Canvas) Paint(img *image.RGBA) {
	c.l.Lock()
	defer c.l.Unlock()

	c.src = img
	c.redraw = true
}

// Show shows the canvas.
func (c *Canvas) Show() {
	c.l.Lock()
	defer c.l.Unlock()

	c.hidden = false
	c.redraw = true
}

// Hide hides the canvas and forgets every cached SIXEL. The next Paint is
// expected to be of a new set of images.
func (c *Canvas) Hide() {
	c.l.Lock()
	defer c.l.Unlock()

	c.hidden = true
	c.src = nil
	c.sixel = nil
	c.shown = canvasKey{}
	c.cache = map[canvasKey][]byte{}
	c.pending = map[canvasKey]struct{}{}
	c.epoch++
}

// SetPosition sets the top-left corner of the canvas in units of cells.
func (c *Canvas) SetPosition(pos image.Point) {
	c.l.Lock()
	defer c.l.Unlock()

	c.pos = pos
	c.redraw = true
}

// Bounds returns the bounds of the last drawn SIXEL in units of cells.
func (c *Canvas) Bounds() image.Rectangle {
	c.l.Lock()
	defer c.l.Unlock()

	return c.bounds()
}

func (c *Canvas) bounds() image.Rectangle {
	if c.hidden || c.sixel == nil {
		return image.Rectangle{}
	}

	return image.Rectangle{
		Min: c.pos,
		Max: c.pos.Add(c.cells),
	}
}

// Update implements Imager.
func (c *Canvas) Update(state DrawState) Frame {
	c.l.Lock()
	defer c.l.Unlock()

	if c.hidden || c.src == nil {
		return Frame{}
	}

	key := canvasKey{
		src:  c.src,
		size: c.imageSize(state),
	}

	if key.size.X > 0 && key.size.Y > 0 && key != c.shown {
		if sixel, ok := c.cache[key]; ok {
			c.show(key, sixel, state)
		} else {
			c.queue(key, state)
		}
	}

	redraw := c.redraw
	c.redraw = false

	return Frame{
		SIXEL:      c.sixel,
		Bounds:     c.bounds(),
		MustUpdate: redraw,
	}
}

func (c *Canvas) show(key canvasKey, sixel []byte, state DrawState) {
	c.shown = key
	c.sixel = sixel
	c.cells = state.PtInCells(key.size)
	c.redraw = true
}

// queue encodes the image for key. The stale SIXEL stays on the screen until
// the job is done.
func (c *Canvas) queue(key canvasKey, state DrawState) {
	if _, ok := c.pending[key]; ok {
		return
	}
	c.pending[key] = struct{}{}

	epoch := c.epoch

	c.pipe.QueueJob(EncodeJob{
		Src:    key.src,
		Size:   key.size,
		Filter: c.opts.Filter,
		Dither: c.opts.Dither,
		Colors: c.opts.Colors,

		Done: func(job EncodeJob, sixel []byte) {
			c.l.Lock()

			// The canvas was hidden in the meantime, so this image is no
			// longer wanted.
			if epoch != c.epoch {
				c.l.Unlock()
				return
			}

			delete(c.pending, key)
			if sixel == nil {
				c.l.Unlock()
				return
			}

			c.cache[key] = sixel
			current := c.src == key.src
			c.l.Unlock()

			if current && state.Delegate != nil {
				state.Delegate()
			}
		},
	})
}

// imageSize returns the image size in pixels for the current state.
func (c *Canvas) imageSize(state DrawState) image.Point {
	size := fitSize(c.src.Rect.Size(), state.PtInPixels(c.opts.MaxSize))
	return state.RoundPt(size)
}
