package main

import (
	"flag"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Config is the player configuration. It is read from a TOML file, and flags
// that are explicitly set override it.
type Config struct {
	Autoplay bool `toml:"autoplay"`
	Watch    bool `toml:"watch"`

	// Size bounds the image in cells, formatted as WxH. Either side may be 0
	// to leave it unbounded.
	Size   string `toml:"size"`
	Filter string `toml:"filter"`
	Dither bool   `toml:"dither"`
	Colors int    `toml:"colors"`

	MinDelay    duration `toml:"min_delay"`
	LoadTimeout duration `toml:"load_timeout"`

	// Verbose enables debug logs. They are written to LogFile, since the
	// terminal is taken up by the player.
	Verbose bool   `toml:"verbose"`
	LogFile string `toml:"log_file"`
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		Filter:   "box",
		Colors:   255,
		MinDelay: duration(20 * time.Millisecond),
		LogFile:  filepath.Join(os.TempDir(), "tcell-gif.log"),
	}
}

// duration is a time.Duration that is written as a Go duration string in
// TOML, such as "20ms".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// readConfig reads the configuration file at path on top of the default
// configuration. An empty path returns the default configuration.
func readConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "failed to read config")
	}

	return parseConfig(b)
}

// parseConfig parses a TOML configuration on top of the default one.
func parseConfig(b []byte) (Config, error) {
	cfg := defaultConfig()

	md, err := toml.Decode(string(b), &cfg)
	if err != nil {
		return cfg, errors.Wrap(err, "failed to parse config")
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, errors.Errorf("unknown config keys: %v", undecoded)
	}

	return cfg, cfg.validate()
}

func (cfg Config) validate() error {
	if _, err := parseSize(cfg.Size); err != nil {
		return err
	}
	if _, err := parseFilter(cfg.Filter); err != nil {
		return err
	}
	if cfg.Colors < 2 || cfg.Colors > 255 {
		return errors.Errorf("colors %d out of bounds (2-255)", cfg.Colors)
	}
	if cfg.MinDelay < 0 || cfg.LoadTimeout < 0 {
		return errors.New("negative duration")
	}
	return nil
}

// flagValues holds the values of the command line flags.
type flagValues struct {
	autoplay bool
	watch    bool
	size     string
	filter   string
	dither   bool
	colors   int
	minDelay time.Duration
	timeout  time.Duration
	verbose  bool
	logFile  string
}

func (v *flagValues) register(fs *flag.FlagSet, defaults Config) {
	fs.BoolVar(&v.autoplay, "autoplay", defaults.Autoplay, "start playing once loaded")
	fs.BoolVar(&v.watch, "watch", defaults.Watch, "reload the GIF when the file changes")
	fs.StringVar(&v.size, "size", defaults.Size, "maximum image size in cells, as WxH")
	fs.StringVar(&v.filter, "filter", defaults.Filter, "resampling filter when scaling down")
	fs.BoolVar(&v.dither, "dither", defaults.Dither, "enable dithering")
	fs.IntVar(&v.colors, "colors", defaults.Colors, "number of colors to quantize to (2-255)")
	fs.DurationVar(&v.minDelay, "min-delay", time.Duration(defaults.MinDelay), "minimum frame delay")
	fs.DurationVar(&v.timeout, "timeout", time.Duration(defaults.LoadTimeout), "load timeout, 0 to disable")
	fs.BoolVar(&v.verbose, "v", defaults.Verbose, "write debug logs to the log file")
	fs.StringVar(&v.logFile, "log", defaults.LogFile, "the log file")
}

// merge overrides cfg with the flags that were explicitly set.
func (v *flagValues) merge(fs *flag.FlagSet, cfg *Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "autoplay":
			cfg.Autoplay = v.autoplay
		case "watch":
			cfg.Watch = v.watch
		case "size":
			cfg.Size = v.size
		case "filter":
			cfg.Filter = v.filter
		case "dither":
			cfg.Dither = v.dither
		case "colors":
			cfg.Colors = v.colors
		case "min-delay":
			cfg.MinDelay = duration(v.minDelay)
		case "timeout":
			cfg.LoadTimeout = duration(v.timeout)
		case "v":
			cfg.Verbose = v.verbose
		case "log":
			cfg.LogFile = v.logFile
		}
	})
}

// parseSize parses a WxH size. An empty string is a zero size.
func parseSize(s string) (image.Point, error) {
	if s == "" {
		return image.Point{}, nil
	}

	var pt image.Point
	if _, err := fmt.Sscanf(s, "%dx%d", &pt.X, &pt.Y); err != nil {
		return pt, errors.Errorf("invalid size %q, want WxH", s)
	}

	if pt.X < 0 || pt.Y < 0 {
		return pt, errors.Errorf("invalid size %q: negative side", s)
	}

	return pt, nil
}

var filters = map[string]imaging.ResampleFilter{
	"nearest":    imaging.NearestNeighbor,
	"box":        imaging.Box,
	"linear":     imaging.Linear,
	"catmullrom": imaging.CatmullRom,
	"lanczos":    imaging.Lanczos,
}

func parseFilter(name string) (imaging.ResampleFilter, error) {
	f, ok := filters[strings.ToLower(name)]
	if !ok {
		return f, errors.Errorf("unknown filter %q", name)
	}
	return f, nil
}
