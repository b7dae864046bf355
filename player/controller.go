// Package player provides a controller that loads an animated GIF and plays
// it onto a surface.
package player

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/diamondburned/tcell-gif/composite"
	"github.com/diamondburned/tcell-gif/fetch"
	"github.com/diamondburned/tcell-gif/gifread"
)

// Messages of the Error state.
const (
	ExtractErrorMessage = "Could not extract frames from GIF."
	LoadErrorPrefix     = "Could not load GIF: "
)

// Surface is the on-screen surface that frames are painted onto.
type Surface interface {
	Paint(img *image.RGBA)
}

// Visibility is optionally implemented by a Surface. The controller hides the
// surface unless the source is resolved.
type Visibility interface {
	Show()
	Hide()
}

// Fetcher fetches the bytes at a URL. *fetch.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// DecodeFunc decodes raw bytes into a frame decoder.
type DecodeFunc func(b []byte) (composite.Decoder, error)

// DecodeGIF is the default DecodeFunc.
func DecodeGIF(b []byte) (composite.Decoder, error) {
	r, err := gifread.NewReader(b)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Options is the optional configuration of a Controller. The zero value is
// usable.
type Options struct {
	// Autoplay starts playing once the first frame is painted.
	Autoplay bool
	// MinDelay is the minimum time each frame is shown while playing. Many
	// GIFs have 0 delays that are meant to be clamped by the viewer.
	MinDelay time.Duration
	// LoadTimeout bounds the fetch. Decoding is not bounded. 0 means no
	// timeout.
	LoadTimeout time.Duration

	Fetcher   Fetcher             // default fetch.Default
	Decode    DecodeFunc          // default DecodeGIF
	Allocator composite.Allocator // default composite.RGBAAllocator
	Scheduler Scheduler           // default TimeScheduler
	Logger    *slog.Logger        // default discards
}

func (opts *Options) setDefaults() {
	if opts.Fetcher == nil {
		opts.Fetcher = fetch.Default
	}
	if opts.Decode == nil {
		opts.Decode = DecodeGIF
	}
	if opts.Allocator == nil {
		opts.Allocator = composite.RGBAAllocator{}
	}
	if opts.Scheduler == nil {
		opts.Scheduler = TimeScheduler{}
	}
	if opts.Logger == nil {
		opts.Logger = newNopLogger()
	}
}

// Controller loads a GIF and controls its playback. All methods are safe to
// call concurrently; each one is applied as a whole before the next.
//
// Navigation methods do nothing unless the controller is resolved and has a
// surface. Out-of-range frames and redundant calls are silently ignored.
type Controller struct {
	l    sync.Mutex
	opts Options
	log  *slog.Logger

	surface Surface
	url     string
	closed  bool

	gen    uint64 // load generation
	cancel context.CancelFunc

	kind    stateKind
	message string
	frames  []composite.Frame
	size    image.Point
	cursor  int
	playing bool

	timer    Timer
	timerSeq uint64 // invalidates fired timers

	subs map[chan struct{}]struct{}
}

// New creates a new controller and starts loading url. The surface may be nil
// and set later with SetSurface; the first frame is painted once both the
// frames and the surface are available.
func New(url string, surface Surface, opts Options) *Controller {
	opts.setDefaults()

	c := &Controller{
		opts:    opts,
		log:     opts.Logger,
		surface: surface,
		cursor:  Unpainted,
		subs:    map[chan struct{}]struct{}{},
	}

	c.Start(url)
	return c
}

// Start starts loading a new URL, discarding the current frames and any load
// still in flight. The controller goes back to Loading.
func (c *Controller) Start(url string) {
	c.l.Lock()
	defer c.l.Unlock()

	if c.closed {
		return
	}

	c.gen++
	if c.cancel != nil {
		c.cancel()
	}
	c.disarm()

	c.url = url
	c.kind = loading
	c.message = ""
	c.frames = nil
	c.size = image.Point{}
	c.cursor = Unpainted
	c.playing = false
	c.setVisible(false)

	var ctx context.Context
	if c.opts.LoadTimeout > 0 {
		ctx, c.cancel = context.WithTimeout(context.Background(), c.opts.LoadTimeout)
	} else {
		ctx, c.cancel = context.WithCancel(context.Background())
	}

	c.log.Debug("loading", slog.String("url", url), slog.Uint64("gen", c.gen))

	go c.load(ctx, c.gen, url)
	c.notify()
}

func (c *Controller) load(ctx context.Context, gen uint64, url string) {
	frames, size, err := c.extract(ctx, url)

	c.l.Lock()
	defer c.l.Unlock()

	if gen != c.gen {
		c.log.Debug("discarding stale load",
			slog.String("url", url), slog.Uint64("gen", gen), slog.Uint64("current", c.gen))
		return
	}

	c.cancel()
	c.cancel = nil

	if err != nil {
		c.kind = failed
		c.message = errorMessage(err)
		c.log.Warn("failed to load", slog.String("url", url), slog.Any("error", err))
		c.notify()
		return
	}

	c.kind = resolved
	c.frames = frames
	c.size = size
	c.log.Debug("loaded", slog.String("url", url), slog.Int("frames", len(frames)))

	c.setVisible(true)
	c.firstPaint()
	c.notify()
}

// extract runs the load pipeline. It never panics.
func (c *Controller) extract(ctx context.Context, url string) (frames []composite.Frame, size image.Point, err error) {
	defer func() {
		if r := recover(); r != nil {
			frames = nil
			err = errors.Errorf("panic while decoding: %v", r)
		}
	}()

	b, err := c.opts.Fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, size, errors.Wrap(err, "failed to fetch")
	}

	dec, err := c.opts.Decode(b)
	if err != nil {
		return nil, size, err
	}

	frames, err = composite.Frames(dec, c.opts.Allocator)
	if err != nil {
		return nil, size, err
	}

	if len(frames) == 0 {
		return nil, size, errors.Wrap(composite.ErrExtraction, "no frames")
	}

	return frames, dec.Size(), nil
}

func errorMessage(err error) string {
	if errors.Is(err, composite.ErrExtraction) {
		return ExtractErrorMessage
	}
	return LoadErrorPrefix + err.Error()
}

// SetSurface sets the surface to be painted on. The previous surface is
// hidden. If the controller is resolved but nothing was painted yet, the first
// frame is painted.
func (c *Controller) SetSurface(s Surface) {
	c.l.Lock()
	defer c.l.Unlock()

	if c.closed {
		return
	}

	if c.surface != s {
		c.setVisible(false)
	}

	c.surface = s
	c.setVisible(c.kind == resolved)
	c.firstPaint()
	c.notify()
}

// firstPaint paints the first frame if it has not been yet, and starts
// playing if Autoplay is set.
func (c *Controller) firstPaint() {
	if c.kind != resolved || c.surface == nil || c.cursor != Unpainted {
		return
	}

	c.renderFrame(0)

	if c.opts.Autoplay {
		c.play()
	}
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	c.l.Lock()
	defer c.l.Unlock()

	switch c.kind {
	case failed:
		return Error{Message: c.message}
	case resolved:
		return Resolved{
			Frames:  len(c.frames),
			Cursor:  c.cursor,
			Playing: c.playing,
			Width:   c.size.X,
			Height:  c.size.Y,
		}
	default:
		return Loading{}
	}
}

// URL returns the URL of the current generation.
func (c *Controller) URL() string {
	c.l.Lock()
	defer c.l.Unlock()

	return c.url
}

// Subscribe returns a channel that receives a value after the state changes.
// Notifications are coalesced, so a receiver should call Snapshot after each
// one. The returned function unsubscribes.
func (c *Controller) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	c.l.Lock()
	c.subs[ch] = struct{}{}
	c.l.Unlock()

	return ch, func() {
		c.l.Lock()
		delete(c.subs, ch)
		c.l.Unlock()
	}
}

func (c *Controller) notify() {
	for ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Play starts playing. It does nothing if already playing.
func (c *Controller) Play() {
	c.l.Lock()
	defer c.l.Unlock()

	if c.play() {
		c.notify()
	}
}

func (c *Controller) play() bool {
	if c.closed || c.kind != resolved || c.playing {
		return false
	}

	c.playing = true
	c.arm()
	return true
}

// Pause stops playing.
func (c *Controller) Pause() {
	c.l.Lock()
	defer c.l.Unlock()

	if c.kind != resolved || !c.playing {
		return
	}

	c.playing = false
	c.disarm()
	c.notify()
}

// Restart moves the cursor back to the first frame. It does not repaint; the
// first frame is shown on the next render.
func (c *Controller) Restart() {
	c.l.Lock()
	defer c.l.Unlock()

	if c.closed || c.kind != resolved {
		return
	}

	c.cursor = 0
	c.notify()
}

// RenderFrame paints frame n. Frames out of range are ignored.
func (c *Controller) RenderFrame(n int) {
	c.l.Lock()
	defer c.l.Unlock()

	if c.renderFrame(n) {
		c.notify()
	}
}

// RenderNextFrame paints the frame after the cursor, wrapping to the first.
func (c *Controller) RenderNextFrame() {
	c.l.Lock()
	defer c.l.Unlock()

	if c.renderNextFrame() {
		c.notify()
	}
}

// RenderPreviousFrame paints the frame before the cursor, wrapping to the
// last.
func (c *Controller) RenderPreviousFrame() {
	c.l.Lock()
	defer c.l.Unlock()

	if c.kind != resolved {
		return
	}

	n := c.cursor - 1
	if n < 0 {
		n = len(c.frames) - 1
	}

	if c.renderFrame(n) {
		c.notify()
	}
}

func (c *Controller) renderNextFrame() bool {
	if c.kind != resolved {
		return false
	}

	return c.renderFrame((c.cursor + 1) % len(c.frames))
}

func (c *Controller) renderFrame(n int) bool {
	if c.closed || c.kind != resolved || c.surface == nil {
		return false
	}

	if n < 0 || n >= len(c.frames) {
		return false
	}

	c.surface.Paint(c.frames[n].Image)
	c.cursor = n

	if c.playing {
		c.arm()
	}

	return true
}

// arm schedules the next advance after the delay of the frame on the
// surface, replacing any pending advance.
func (c *Controller) arm() {
	c.disarm()

	var delay time.Duration
	if c.cursor != Unpainted {
		delay = c.frames[c.cursor].Delay
	}
	if delay < c.opts.MinDelay {
		delay = c.opts.MinDelay
	}

	gen, seq := c.gen, c.timerSeq
	c.timer = c.opts.Scheduler.AfterFunc(delay, func() { c.advance(gen, seq) })
}

// disarm stops the pending advance. A timer that already fired is made stale
// by bumping the sequence.
func (c *Controller) disarm() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerSeq++
}

func (c *Controller) advance(gen, seq uint64) {
	c.l.Lock()
	defer c.l.Unlock()

	if c.closed || gen != c.gen || seq != c.timerSeq || !c.playing {
		return
	}

	c.timer = nil

	if c.renderNextFrame() {
		c.notify()
	}
}

func (c *Controller) setVisible(visible bool) {
	v, ok := c.surface.(Visibility)
	if !ok {
		return
	}

	if visible {
		v.Show()
	} else {
		v.Hide()
	}
}

// Close stops playback and discards any load in flight. The controller is
// unusable afterwards: playback and navigation do nothing, and the surface is
// never painted again.
func (c *Controller) Close() {
	c.l.Lock()
	defer c.l.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	c.disarm()
	c.playing = false
	c.notify()
}
