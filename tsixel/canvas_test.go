package tsixel

import (
	"context"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/disintegration/imaging"
)

func newTestState(delegate func()) DrawState {
	return DrawState{
		Delegate: delegate,
		Cells:    image.Pt(80, 24),
		Pixels:   image.Pt(800, 480), // 10x20 cells
	}
}

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func newTestCanvas(t *testing.T, opts CanvasOpts) *Canvas {
	t.Helper()

	pipe := NewEncodePipeline(context.Background(), 2)
	pipe.Start()
	t.Cleanup(pipe.Stop)

	return NewCanvas(pipe, opts)
}

// waitDelegate waits until the delegate is called.
func waitDelegate(t *testing.T, ch <-chan struct{}) {
	t.Helper()

	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the encoder")
	}
}

func TestCanvasHiddenDrawsNothing(t *testing.T) {
	canvas := newTestCanvas(t, CanvasOpts{})
	canvas.Paint(solidImage(12, 12, color.RGBA{R: 0xFF, A: 0xFF}))

	frame := canvas.Update(newTestState(nil))
	if !frame.Bounds.Empty() || frame.SIXEL != nil {
		t.Errorf("hidden canvas returned frame %v with %d bytes", frame.Bounds, len(frame.SIXEL))
	}
}

func TestCanvasEncodesAndCaches(t *testing.T) {
	delegated := make(chan struct{}, 1)
	state := newTestState(func() { delegated <- struct{}{} })

	canvas := newTestCanvas(t, CanvasOpts{Filter: imaging.Box})
	canvas.SetPosition(image.Pt(1, 2))
	canvas.Show()

	red := solidImage(12, 12, color.RGBA{R: 0xFF, A: 0xFF})
	blue := solidImage(12, 12, color.RGBA{B: 0xFF, A: 0xFF})

	canvas.Paint(red)

	// The first update only queues the encode.
	if frame := canvas.Update(state); frame.SIXEL != nil {
		t.Fatal("got SIXEL before encoding finished")
	}
	waitDelegate(t, delegated)

	frame := canvas.Update(state)
	if frame.SIXEL == nil || !frame.MustUpdate {
		t.Fatalf("expected a fresh SIXEL, got %d bytes (update %v)", len(frame.SIXEL), frame.MustUpdate)
	}
	if frame.Bounds.Min != image.Pt(1, 2) || frame.Bounds.Empty() {
		t.Errorf("unexpected bounds %v", frame.Bounds)
	}

	redSIXEL := frame.SIXEL

	if frame := canvas.Update(state); frame.MustUpdate {
		t.Error("unchanged canvas asked for a redraw")
	}

	canvas.Paint(blue)
	canvas.Update(state)
	waitDelegate(t, delegated)

	blueFrame := canvas.Update(state)
	if string(blueFrame.SIXEL) == string(redSIXEL) {
		t.Error("blue frame encoded the same as red")
	}

	// Painting red again must come straight out of the cache.
	canvas.Paint(red)
	frame = canvas.Update(state)
	if string(frame.SIXEL) != string(redSIXEL) || !frame.MustUpdate {
		t.Error("repainted frame was not served from the cache")
	}
}

func TestCanvasMaxSize(t *testing.T) {
	delegated := make(chan struct{}, 1)
	state := newTestState(func() { delegated <- struct{}{} })

	canvas := newTestCanvas(t, CanvasOpts{MaxSize: image.Pt(2, 1)})
	canvas.Show()
	canvas.Paint(solidImage(40, 40, color.RGBA{G: 0xFF, A: 0xFF}))

	canvas.Update(state)
	waitDelegate(t, delegated)

	frame := canvas.Update(state)
	if sz := frame.Bounds.Size(); sz.X > 2 || sz.Y > 1 || sz.X == 0 {
		t.Errorf("bounds %v do not fit in 2x1 cells", frame.Bounds)
	}
}

func TestCanvasHideDropsCache(t *testing.T) {
	delegated := make(chan struct{}, 1)
	state := newTestState(func() { delegated <- struct{}{} })

	canvas := newTestCanvas(t, CanvasOpts{})
	canvas.Show()

	img := solidImage(6, 6, color.RGBA{R: 0xFF, A: 0xFF})
	canvas.Paint(img)
	canvas.Update(state)
	waitDelegate(t, delegated)

	canvas.Hide()
	canvas.Show()
	canvas.Paint(img)

	if frame := canvas.Update(state); frame.SIXEL != nil {
		t.Error("cache survived Hide")
	}
}

func TestFitSize(t *testing.T) {
	tests := []struct {
		size, bound, want image.Point
	}{
		{image.Pt(40, 20), image.Pt(0, 0), image.Pt(40, 20)},
		{image.Pt(40, 20), image.Pt(20, 0), image.Pt(20, 10)},
		{image.Pt(40, 20), image.Pt(0, 10), image.Pt(20, 10)},
		{image.Pt(40, 20), image.Pt(100, 100), image.Pt(40, 20)},
		{image.Pt(40, 40), image.Pt(20, 10), image.Pt(10, 10)},
	}

	for _, test := range tests {
		if got := fitSize(test.size, test.bound); got != test.want {
			t.Errorf("fitSize(%v, %v) = %v, want %v", test.size, test.bound, got, test.want)
		}
	}
}

func TestRoundPt(t *testing.T) {
	state := newTestState(nil)

	got := state.RoundPt(image.Pt(40, 40))
	if got.Y%SIXELHeight != 0 {
		t.Errorf("height %d is not a multiple of %d", got.Y, SIXELHeight)
	}
	if got.X > 40 || got.Y > 40 {
		t.Errorf("RoundPt scaled up to %v", got)
	}
}
