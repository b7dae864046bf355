package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/diamondburned/tcell-gif/composite"
	"github.com/diamondburned/tcell-gif/fetch"
	"github.com/diamondburned/tcell-gif/gifread"
)

// dumpFrames composites the GIF at src and writes each frame as a PNG into
// dir. A line with the file name and delay of each frame is written to out.
func dumpFrames(ctx context.Context, src, dir string, timeout time.Duration, out io.Writer) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	b, err := fetch.Default.Fetch(ctx, src)
	if err != nil {
		return errors.Wrap(err, "failed to fetch")
	}

	r, err := gifread.NewReader(b)
	if err != nil {
		return err
	}

	frames, err := composite.Frames(r, composite.RGBAAllocator{})
	if err != nil {
		return err
	}

	if len(frames) == 0 {
		return errors.Wrap(composite.ErrExtraction, "no frames")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "failed to make dump directory")
	}

	for i, frame := range frames {
		name := fmt.Sprintf("frame-%04d.png", i)

		if err := imaging.Save(frame.Image, filepath.Join(dir, name)); err != nil {
			return errors.Wrapf(err, "failed to save frame %d", i)
		}

		fmt.Fprintf(out, "%s\t%v\n", name, frame.Delay)
	}

	return nil
}
