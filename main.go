package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
	"github.com/pkg/errors"

	"github.com/diamondburned/tcell-gif/fetch"
	"github.com/diamondburned/tcell-gif/player"
	"github.com/diamondburned/tcell-gif/tsixel"
)

var (
	configPath string
	dumpDir    string
	flags      flagValues
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(),
			"Usage: %s [flags] <url-or-path>\n\n", filepath.Base(os.Args[0]))
		fmt.Fprintf(flag.CommandLine.Output(), "\t"+
			"Plays the GIF in a SIXEL-capable terminal. Flags override\n"+
			"the values in the -config file.\n\n")

		fmt.Fprint(flag.CommandLine.Output(),
			"Keys: space play/pause, left/right step, r restart, g reload, q quit.\n\n")

		fmt.Fprintln(flag.CommandLine.Output(),
			"Flags:")
		flag.PrintDefaults()
	}

	flag.StringVar(&configPath, "config", configPath, "the TOML config file")
	flag.StringVar(&dumpDir, "dump", dumpDir, "write the frames as PNG into this directory and exit")
	flags.register(flag.CommandLine, defaultConfig())
}

func main() {
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	src := flag.Arg(0)

	cfg, err := readConfig(configPath)
	if err != nil {
		log.Fatalln(err)
	}

	flags.merge(flag.CommandLine, &cfg)

	if err := cfg.validate(); err != nil {
		log.Fatalln("invalid config:", err)
	}

	if dumpDir != "" {
		err := dumpFrames(context.Background(), src, dumpDir, time.Duration(cfg.LoadTimeout), os.Stdout)
		if err != nil {
			log.Fatalln("failed to dump frames:", err)
		}
		return
	}

	logger, logFile, err := newLogger(cfg)
	if err != nil {
		log.Fatalln(err)
	}

	err = start(src, cfg, logger)
	logFile.Close()

	if err != nil {
		log.Fatalln(err)
	}
}

// newLogger returns the debug logger. Logs are discarded unless verbose.
func newLogger(cfg Config) (*slog.Logger, io.Closer, error) {
	if !cfg.Verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), io.NopCloser(nil), nil
	}

	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open log file")
	}

	h := slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(h), f, nil
}

func start(src string, cfg Config, logger *slog.Logger) error {
	filter, err := parseFilter(cfg.Filter)
	if err != nil {
		return err
	}

	maxSize, err := parseSize(cfg.Size)
	if err != nil {
		return err
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return errors.Wrap(err, "failed to create screen")
	}

	if err := screen.Init(); err != nil {
		return errors.Wrap(err, "failed to init screen")
	}
	defer screen.Fini()

	sixels, err := tsixel.WrapInitScreen(screen)
	if err != nil {
		return errors.Wrap(err, "failed to wrap screen")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipe := tsixel.NewEncodePipeline(ctx, 0)
	pipe.Start()
	defer pipe.Stop()

	canvas := tsixel.NewCanvas(pipe, tsixel.CanvasOpts{
		Filter:  filter,
		MaxSize: maxSize,
		Dither:  cfg.Dither,
		Colors:  cfg.Colors,
	})
	canvas.SetPosition(image.Pt(0, 1)) // below the status line

	sixels.AddImage(canvas)
	defer sixels.RemoveImage(canvas)

	ctrl := player.New(src, canvas, player.Options{
		Autoplay:    cfg.Autoplay,
		MinDelay:    time.Duration(cfg.MinDelay),
		LoadTimeout: time.Duration(cfg.LoadTimeout),
		Logger:      logger,
	})
	defer ctrl.Close()

	changes, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	var reload <-chan struct{}

	if cfg.Watch {
		path, ok := fetch.LocalPath(src)
		if !ok {
			return errors.New("-watch only works on local files")
		}

		w, err := watchFile(ctx, path, watchDebounce, logger)
		if err != nil {
			return err
		}
		defer w.Close()

		reload = w.Changes()
	}

	events := make(chan tcell.Event)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}

			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	drawStatus(screen, statusText(ctrl.URL(), ctrl.Snapshot()))
	screen.Show()

	for {
		select {
		case ev := <-events:
			if handleEvent(screen, ctrl, ev) {
				return nil
			}

		case <-changes:
			drawStatus(screen, statusText(ctrl.URL(), ctrl.Snapshot()))
			screen.Show()

		case <-reload:
			logger.LogAttrs(ctx, slog.LevelDebug, "reloading", slog.String("src", src))
			ctrl.Start(src)
		}
	}
}

// handleEvent handles a screen event. It returns true if the player should
// exit.
func handleEvent(screen tcell.Screen, ctrl *player.Controller, ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		drawStatus(screen, statusText(ctrl.URL(), ctrl.Snapshot()))
		screen.Sync()

	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return true
		case tcell.KeyLeft:
			ctrl.RenderPreviousFrame()
		case tcell.KeyRight:
			ctrl.RenderNextFrame()
		case tcell.KeyHome:
			restart(ctrl)
		case tcell.KeyF5:
			screen.Sync()
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'q':
				return true
			case ' ':
				togglePlay(ctrl)
			case 'r':
				restart(ctrl)
			case 'g':
				ctrl.Start(ctrl.URL())
			}
		}
	}

	return false
}

func togglePlay(ctrl *player.Controller) {
	if state, ok := ctrl.Snapshot().(player.Resolved); ok && state.Playing {
		ctrl.Pause()
	} else {
		ctrl.Play()
	}
}

func restart(ctrl *player.Controller) {
	ctrl.Restart()
	ctrl.RenderFrame(0)
}

// statusText returns the status line for the state.
func statusText(src string, state player.State) string {
	switch state := state.(type) {
	case player.Loading:
		return "Loading " + src + "..."
	case player.Error:
		return state.Message
	case player.Resolved:
		playback := "paused"
		if state.Playing {
			playback = "playing"
		}

		cursor := "-"
		if state.Cursor != player.Unpainted {
			cursor = fmt.Sprint(state.Cursor + 1)
		}

		return fmt.Sprintf("%s/%d %dx%d %s",
			cursor, state.Frames, state.Width, state.Height, playback)
	default:
		return ""
	}
}

// drawStatus replaces the first line of the screen with text. It does not
// show the screen.
func drawStatus(screen tcell.Screen, text string) {
	w, _ := screen.Size()
	text = runewidth.Truncate(text, w, "…")

	x := 0
	for _, r := range text {
		screen.SetContent(x, 0, r, nil, tcell.StyleDefault)
		x += runewidth.RuneWidth(r)
	}

	for ; x < w; x++ {
		screen.SetContent(x, 0, ' ', nil, tcell.StyleDefault)
	}
}
