package main

import (
	"flag"
	"image"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseConfig(t *testing.T) {
	const input = `
autoplay = true
size = "40x20"
filter = "lanczos"
colors = 64
min_delay = "50ms"
load_timeout = "10s"
`

	got, err := parseConfig([]byte(input))
	if err != nil {
		t.Fatal("unexpected error:", err)
	}

	want := defaultConfig()
	want.Autoplay = true
	want.Size = "40x20"
	want.Filter = "lanczos"
	want.Colors = 64
	want.MinDelay = duration(50 * time.Millisecond)
	want.LoadTimeout = duration(10 * time.Second)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected config (-want +got):\n%s", diff)
	}
}

func TestParseConfigInvalid(t *testing.T) {
	tests := map[string]string{
		"unknown key": `volume = 11`,
		"bad size":    `size = "big"`,
		"bad filter":  `filter = "sinc"`,
		"bad colors":  `colors = 300`,
		"bad delay":   `min_delay = "soon"`,
		"syntax":      `autoplay = `,
	}

	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := parseConfig([]byte(input)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestReadConfig(t *testing.T) {
	cfg, err := readConfig("")
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	if diff := cmp.Diff(defaultConfig(), cfg); diff != "" {
		t.Errorf("empty path is not the default config (-want +got):\n%s", diff)
	}

	path := filepath.Join(t.TempDir(), "tcell-gif.toml")
	if err := os.WriteFile(path, []byte(`dither = true`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err = readConfig(path)
	if err != nil {
		t.Fatal("unexpected error:", err)
	}
	if !cfg.Dither {
		t.Error("dither was not read from the file")
	}

	if _, err := readConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected an error reading a missing file")
	}
}

func TestMergeFlags(t *testing.T) {
	cfg, err := parseConfig([]byte(`
autoplay = true
colors = 64
size = "40x20"
`))
	if err != nil {
		t.Fatal("unexpected error:", err)
	}

	var v flagValues
	fs := flag.NewFlagSet("tcell-gif", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	v.register(fs, defaultConfig())

	if err := fs.Parse([]string{"-colors", "16", "-min-delay", "0", "-v"}); err != nil {
		t.Fatal("failed to parse flags:", err)
	}

	v.merge(fs, &cfg)

	want := defaultConfig()
	want.Autoplay = true // not overridden since -autoplay is unset
	want.Size = "40x20"
	want.Colors = 16
	want.MinDelay = 0
	want.Verbose = true

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("unexpected merged config (-want +got):\n%s", diff)
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want image.Point
		err  bool
	}{
		{"", image.Pt(0, 0), false},
		{"40x20", image.Pt(40, 20), false},
		{"0x10", image.Pt(0, 10), false},
		{"40", image.Point{}, true},
		{"-1x2", image.Point{}, true},
	}

	for _, test := range tests {
		got, err := parseSize(test.in)
		if (err != nil) != test.err {
			t.Errorf("parseSize(%q) error = %v, want error %v", test.in, err, test.err)
			continue
		}
		if !test.err && got != test.want {
			t.Errorf("parseSize(%q) = %v, want %v", test.in, got, test.want)
		}
	}
}

func TestParseFilter(t *testing.T) {
	for name := range filters {
		if _, err := parseFilter(name); err != nil {
			t.Errorf("filter %q: %v", name, err)
		}
	}

	if _, err := parseFilter("Lanczos"); err != nil {
		t.Error("filter names should be case insensitive:", err)
	}
}
