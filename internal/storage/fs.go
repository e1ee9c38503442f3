package storage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
)

const filePerms = 0o644

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the notes directory
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute notes directory.
func (f *FS) Root() string { return f.root }

// safePath resolves a base name against the root and rejects anything that
// would leave it (separators, traversal, empty names).
func (f *FS) safePath(name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("storage: invalid name %q", name)
	}
	if strings.ContainsRune(name, '/') || strings.ContainsRune(name, os.PathSeparator) {
		return "", fmt.Errorf("storage: name must not contain a path separator: %s", name)
	}
	return filepath.Join(f.root, name), nil
}

// List returns the regular files directly under root accepted by match.
func (f *FS) List(match func(name string) bool) ([]Entry, error) {
	dirents, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	out := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		if !d.Type().IsRegular() {
			continue
		}
		if match != nil && !match(d.Name()) {
			continue
		}
		out = append(out, Entry{Name: d.Name(), Path: filepath.Join(f.root, d.Name())})
	}
	return out, nil
}

// Read returns the raw bytes of a note file.
func (f *FS) Read(name string) ([]byte, error) {
	abs, err := f.safePath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", name, err)
	}
	return data, nil
}

// Write atomically replaces content: temp file in the same directory, then
// rename over the target. The replacement is a new inode, so anything kept
// in the old inode's extended attributes is gone afterwards.
func (f *FS) Write(name string, content []byte) error {
	abs, err := f.safePath(name)
	if err != nil {
		return err
	}
	_, statErr := os.Stat(abs)
	isNew := os.IsNotExist(statErr)

	if err := atomic.WriteFile(abs, bytes.NewReader(content)); err != nil {
		return fmt.Errorf("storage: write %s: %w", name, err)
	}
	// atomic.WriteFile leaves new files with temp-file permissions.
	if isNew {
		if err := os.Chmod(abs, filePerms); err != nil {
			return fmt.Errorf("storage: chmod %s: %w", name, err)
		}
	}
	return nil
}

// Create writes content to a new file. The name is claimed with O_EXCL,
// so an existing file is never replaced and the error matches os.ErrExist.
func (f *FS) Create(name string, content []byte) error {
	abs, err := f.safePath(name)
	if err != nil {
		return err
	}
	file, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerms)
	if err != nil {
		return fmt.Errorf("storage: create %s: %w", name, err)
	}
	_, werr := file.Write(content)
	if werr == nil {
		werr = file.Sync()
	}
	if cerr := file.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(abs)
		return fmt.Errorf("storage: create %s: %w", name, werr)
	}
	return nil
}

// Exists reports whether name is present in root.
func (f *FS) Exists(name string) (bool, error) {
	abs, err := f.safePath(name)
	if err != nil {
		return false, err
	}
	_, err = os.Lstat(abs)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("storage: stat %s: %w", name, err)
}

// Move renames a file within root. It refuses to clobber an existing target.
func (f *FS) Move(oldName, newName string) error {
	absOld, err := f.safePath(oldName)
	if err != nil {
		return err
	}
	absNew, err := f.safePath(newName)
	if err != nil {
		return err
	}
	if absOld == absNew {
		return nil
	}
	if _, err := os.Lstat(absNew); err == nil && !sameFile(absOld, absNew) {
		return fmt.Errorf("storage: move: %s: %w", newName, os.ErrExist)
	}
	if err := os.Rename(absOld, absNew); err != nil {
		return fmt.Errorf("storage: move: %w", err)
	}
	return nil
}

// Times returns creation and modification times of name.
func (f *FS) Times(name string) (time.Time, time.Time, error) {
	abs, err := f.safePath(name)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("storage: stat %s: %w", name, err)
	}
	created, ok := birthTime(abs)
	if !ok {
		created = info.ModTime()
	}
	return created, info.ModTime(), nil
}

// Touch sets both access and modification time of name to t.
func (f *FS) Touch(name string, t time.Time) error {
	abs, err := f.safePath(name)
	if err != nil {
		return err
	}
	if err := os.Chtimes(abs, t, t); err != nil {
		return fmt.Errorf("storage: touch %s: %w", name, err)
	}
	return nil
}

// Stat returns file info for name.
func (f *FS) Stat(name string) (os.FileInfo, error) {
	abs, err := f.safePath(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat %s: %w", name, err)
	}
	return info, nil
}

// sameFile covers case-only renames on case-insensitive filesystems.
func sameFile(a, b string) bool {
	ia, errA := os.Stat(a)
	ib, errB := os.Stat(b)
	return errA == nil && errB == nil && os.SameFile(ia, ib)
}
