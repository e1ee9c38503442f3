// Package trash moves deleted notes into a recoverable freedesktop-style
// trash directory (files/ + info/*.trashinfo) instead of unlinking them.
package trash

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"
)

const (
	infoSuffix   = ".trashinfo"
	dateLayout   = "2006-01-02T15:04:05"
	localDirName = ".trash"
	maxAttempts  = 1000
)

// Item is one trashed file.
type Item struct {
	Name         string    // name inside files/
	Path         string    // current absolute path of the trashed file
	OriginalPath string    // where it lived before deletion
	DeletedAt    time.Time // local time, second precision
	root         string
}

// Trash is a trash root. When the root sits on another device than the
// file being deleted, a ".trash" root next to the file is used instead.
type Trash struct {
	dir string
	now func() time.Time
}

// New returns a trash rooted at dir, or at DefaultDir when dir is empty.
func New(dir string) *Trash {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Trash{dir: dir, now: time.Now}
}

// DefaultDir returns $XDG_DATA_HOME/Trash, falling back to
// ~/.local/share/Trash.
func DefaultDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" && filepath.IsAbs(xdg) {
		return filepath.Join(xdg, "Trash")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "vellum-trash")
	}
	return filepath.Join(home, ".local", "share", "Trash")
}

// Dir returns the primary trash root.
func (t *Trash) Dir() string { return t.dir }

// LocalDir returns the fallback root used for files in notesDir.
func LocalDir(notesDir string) string { return filepath.Join(notesDir, localDirName) }

// Move trashes path and returns where it went.
func (t *Trash) Move(path string) (Item, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Item{}, fmt.Errorf("trash: resolve %s: %w", path, err)
	}
	item, err := t.moveInto(t.dir, abs)
	if errors.Is(err, syscall.EXDEV) {
		item, err = t.moveInto(LocalDir(filepath.Dir(abs)), abs)
	}
	return item, err
}

func (t *Trash) moveInto(root, abs string) (Item, error) {
	filesDir := filepath.Join(root, "files")
	infoDir := filepath.Join(root, "info")
	for _, d := range []string{filesDir, infoDir} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return Item{}, fmt.Errorf("trash: mkdir: %w", err)
		}
	}

	now := t.now()
	base := filepath.Base(abs)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for i := 1; i <= maxAttempts; i++ {
		name := base
		if i > 1 {
			name = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		infoPath := filepath.Join(infoDir, name+infoSuffix)

		// The info file is the reservation: created exclusively first.
		f, err := os.OpenFile(infoPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return Item{}, fmt.Errorf("trash: reserve %s: %w", name, err)
		}
		_, werr := fmt.Fprintf(f, "[Trash Info]\nPath=%s\nDeletionDate=%s\n",
			(&url.URL{Path: abs}).EscapedPath(), now.Format(dateLayout))
		cerr := f.Close()
		if werr != nil || cerr != nil {
			_ = os.Remove(infoPath)
			return Item{}, fmt.Errorf("trash: write info: %w", errors.Join(werr, cerr))
		}

		dst := filepath.Join(filesDir, name)
		if err := os.Rename(abs, dst); err != nil {
			_ = os.Remove(infoPath)
			return Item{}, fmt.Errorf("trash: move %s: %w", abs, err)
		}
		return Item{
			Name:         name,
			Path:         dst,
			OriginalPath: abs,
			DeletedAt:    now.Truncate(time.Second),
			root:         root,
		}, nil
	}
	return Item{}, fmt.Errorf("trash: no free name for %s", base)
}

// List returns trashed items from the primary root and from the fallback
// root of notesDir (if given), newest first.
func (t *Trash) List(notesDir string) ([]Item, error) {
	roots := []string{t.dir}
	if notesDir != "" {
		roots = append(roots, LocalDir(notesDir))
	}
	var out []Item
	for _, root := range roots {
		items, err := listRoot(root)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	slices.SortStableFunc(out, func(a, b Item) int {
		return b.DeletedAt.Compare(a.DeletedAt)
	})
	return out, nil
}

func listRoot(root string) ([]Item, error) {
	infoDir := filepath.Join(root, "info")
	entries, err := os.ReadDir(infoDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("trash: list: %w", err)
	}
	var out []Item
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), infoSuffix) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), infoSuffix)
		item, err := readInfo(filepath.Join(infoDir, e.Name()))
		if err != nil {
			continue
		}
		item.Name = name
		item.Path = filepath.Join(root, "files", name)
		item.root = root
		out = append(out, item)
	}
	return out, nil
}

func readInfo(path string) (Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return Item{}, err
	}
	defer f.Close()

	var item Item
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		k, v, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		switch k {
		case "Path":
			if p, err := url.PathUnescape(v); err == nil {
				item.OriginalPath = p
			}
		case "DeletionDate":
			if d, err := time.ParseInLocation(dateLayout, v, time.Local); err == nil {
				item.DeletedAt = d
			}
		}
	}
	if err := sc.Err(); err != nil {
		return Item{}, err
	}
	if item.OriginalPath == "" {
		return Item{}, fmt.Errorf("trash: %s has no Path", path)
	}
	return item, nil
}

// Restore moves item back to its original path. It refuses to overwrite a
// file that has since taken that name.
func (t *Trash) Restore(item Item) error {
	if _, err := os.Lstat(item.OriginalPath); err == nil {
		return fmt.Errorf("trash: restore %s: %w", item.OriginalPath, os.ErrExist)
	}
	if err := os.Rename(item.Path, item.OriginalPath); err != nil {
		return fmt.Errorf("trash: restore %s: %w", item.Name, err)
	}
	if item.root != "" {
		_ = os.Remove(filepath.Join(item.root, "info", item.Name+infoSuffix))
	}
	return nil
}
