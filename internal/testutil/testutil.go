// Package testutil provides shared test helpers for notes directories,
// sidecars, codecs and stores.
package testutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/vellum/internal/notefile"
	"github.com/starford/vellum/internal/notestore"
	"github.com/starford/vellum/internal/sidecar"
	"github.com/starford/vellum/internal/trash"
)

// Logger returns a logger that only reports errors, on stderr.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// NotesDir creates a temporary notes directory.
func NotesDir(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}

// WriteNote writes a raw note file and returns its path.
func WriteNote(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

// SetMtime sets the modification time of path.
func SetMtime(t *testing.T, path string, mt time.Time) {
	t.Helper()
	if err := os.Chtimes(path, mt, mt); err != nil {
		t.Fatal(err)
	}
}

// Index opens a SQLite sidecar outside any notes directory. It is closed
// when the test ends.
func Index(t *testing.T) *sidecar.Index {
	t.Helper()
	idx, err := sidecar.OpenIndex(filepath.Join(t.TempDir(), "attrs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

// Codec returns a codec over an index sidecar with a private trash.
func Codec(t *testing.T, opts ...notefile.Option) *notefile.Codec {
	t.Helper()
	opts = append([]notefile.Option{notefile.WithLogger(Logger())}, opts...)
	return notefile.New(Index(t), notefile.DefaultFormats(),
		trash.New(filepath.Join(t.TempDir(), "Trash")), opts...)
}

// XattrCodec returns a codec keeping metadata in the extended attributes
// of files under dir. The test is skipped when dir has no user xattrs.
func XattrCodec(t *testing.T, dir string, opts ...notefile.Option) *notefile.Codec {
	t.Helper()
	if !sidecar.XattrSupported(dir) {
		t.Skip("user extended attributes not supported here")
	}
	opts = append([]notefile.Option{notefile.WithLogger(Logger())}, opts...)
	return notefile.New(sidecar.NewXattr(), notefile.DefaultFormats(),
		trash.New(filepath.Join(t.TempDir(), "Trash")), opts...)
}

// Store returns a store over Codec(t) with short watcher delays. It is
// closed when the test ends.
func Store(t *testing.T, opts ...notestore.Option) *notestore.Store {
	t.Helper()
	return StoreWith(t, Codec(t), opts...)
}

// StoreWith is Store over the given codec.
func StoreWith(t *testing.T, c *notefile.Codec, opts ...notestore.Option) *notestore.Store {
	t.Helper()
	opts = append([]notestore.Option{
		notestore.WithLogger(Logger()),
		notestore.WithDebounce(50 * time.Millisecond),
		notestore.WithSettleDelay(10 * time.Millisecond),
	}, opts...)
	s := notestore.New(c, opts...)
	t.Cleanup(func() { s.Close() })
	return s
}

// Eventually polls fn every tick until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}
