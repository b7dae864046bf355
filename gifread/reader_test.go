package gifread

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

var (
	red  = color.RGBA{R: 0xFF, A: 0xFF}
	blue = color.RGBA{B: 0xFF, A: 0xFF}

	testPalette = color.Palette{color.RGBA{}, red, blue}
)

// encodeTestGIF encodes a 4x4 GIF with a full red frame followed by a 2x2 blue
// frame at (1, 1) whose top-left pixel is transparent.
func encodeTestGIF(t *testing.T) []byte {
	t.Helper()

	full := image.NewPaletted(image.Rect(0, 0, 4, 4), testPalette)
	for i := range full.Pix {
		full.Pix[i] = 1
	}

	diff := image.NewPaletted(image.Rect(1, 1, 3, 3), testPalette)
	for i := range diff.Pix {
		diff.Pix[i] = 2
	}
	diff.SetColorIndex(1, 1, 0)

	var buf bytes.Buffer
	err := gif.EncodeAll(&buf, &gif.GIF{
		Image:    []*image.Paletted{full, diff},
		Delay:    []int{5, 12},
		Disposal: []byte{gif.DisposalNone, gif.DisposalBackground},
		Config:   image.Config{Width: 4, Height: 4},
	})
	if err != nil {
		t.Fatalf("failed to encode GIF: %v", err)
	}

	return buf.Bytes()
}

func TestReaderFrameInfo(t *testing.T) {
	r, err := NewReader(encodeTestGIF(t))
	if err != nil {
		t.Fatalf("failed to read GIF: %v", err)
	}

	if got, want := r.Size(), image.Pt(4, 4); got != want {
		t.Errorf("Size() = %v, want %v", got, want)
	}
	if got := r.NumFrames(); got != 2 {
		t.Fatalf("NumFrames() = %d, want 2", got)
	}

	want := []FrameInfo{
		{Rect: image.Rect(0, 0, 4, 4), Disposal: DoNotDispose, Delay: 5},
		{Rect: image.Rect(1, 1, 3, 3), Disposal: RestoreBackground, Delay: 12},
	}

	var got []FrameInfo
	for i := 0; i < r.NumFrames(); i++ {
		got = append(got, r.FrameInfo(i))
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected frame info (-want +got):\n%s", diff)
	}
}

func TestReaderDecodeFrameRGBA(t *testing.T) {
	r, err := NewReader(encodeTestGIF(t))
	if err != nil {
		t.Fatalf("failed to read GIF: %v", err)
	}

	// Fill the buffer with a marker to check which bytes were left alone.
	pix := bytes.Repeat([]byte{0x7F}, 4*4*4)

	if err := r.DecodeFrameRGBA(1, pix); err != nil {
		t.Fatalf("failed to decode frame: %v", err)
	}

	at := func(x, y int) color.RGBA {
		o := y*4*4 + x*4
		return color.RGBA{pix[o], pix[o+1], pix[o+2], pix[o+3]}
	}

	marker := color.RGBA{0x7F, 0x7F, 0x7F, 0x7F}

	tests := []struct {
		name string
		x, y int
		want color.RGBA
	}{
		{"outside rect", 0, 0, marker},
		{"transparent pixel", 1, 1, marker},
		{"opaque pixel", 2, 1, blue},
		{"bottom right of rect", 2, 2, blue},
		{"right of rect", 3, 2, marker},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := at(test.x, test.y); got != test.want {
				t.Errorf("pixel (%d, %d) = %v, want %v", test.x, test.y, got, test.want)
			}
		})
	}
}

func TestReaderDecodeErrors(t *testing.T) {
	r, err := NewReader(encodeTestGIF(t))
	if err != nil {
		t.Fatalf("failed to read GIF: %v", err)
	}

	if err := r.DecodeFrameRGBA(0, make([]byte, 10)); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("short buffer: got %v, want %v", err, ErrShortBuffer)
	}

	if err := r.DecodeFrameRGBA(2, make([]byte, 64)); !errors.Is(err, ErrFrameIndex) {
		t.Errorf("bad index: got %v, want %v", err, ErrFrameIndex)
	}
}

func TestNewReaderInvalid(t *testing.T) {
	if _, err := NewReader([]byte("not a gif")); err == nil {
		t.Error("expected error decoding garbage")
	}
}

func TestDisposalRestores(t *testing.T) {
	tests := map[Disposal]bool{
		Unspecified:       false,
		DoNotDispose:      false,
		RestoreBackground: true,
		RestorePrevious:   true,
	}

	for d, want := range tests {
		if got := d.Restores(); got != want {
			t.Errorf("%v.Restores() = %v, want %v", d, got, want)
		}
	}
}
