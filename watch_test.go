package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watched.gif")
	other := filepath.Join(dir, "other.gif")

	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	w, err := watchFile(ctx, path, 50*time.Millisecond, log)
	if err != nil {
		t.Fatal("failed to watch:", err)
	}
	defer w.Close()

	// Other files in the directory are ignored.
	if err := os.WriteFile(other, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-w.Changes():
		t.Fatal("unexpected change from another file")
	case <-time.After(100 * time.Millisecond):
	}

	// Several quick writes are coalesced into one change.
	for _, v := range []string{"v2", "v3", "v4"} {
		if err := os.WriteFile(path, []byte(v), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-w.Changes():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a change")
	}

	select {
	case <-w.Changes():
		t.Error("writes were not coalesced")
	case <-time.After(100 * time.Millisecond):
	}
}
