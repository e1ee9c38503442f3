// Package notefile maps between note files on disk and models.Note values.
// Content lives in the file; tags, the pinned flag, the stable id and the
// creation time live in the sidecar.
package notefile

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/starford/vellum/internal/apperr"
	"github.com/starford/vellum/internal/models"
	"github.com/starford/vellum/internal/sidecar"
	"github.com/starford/vellum/internal/storage"
	"github.com/starford/vellum/internal/trash"
)

// Codec reads, writes, creates, renames and deletes note files.
type Codec struct {
	sidecar sidecar.Sidecar
	formats *Formats
	trash   *trash.Trash
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	entropy io.Reader
}

// Option configures a Codec.
type Option func(*Codec)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Codec) { c.logger = l }
}

// WithClock overrides the time source used for stamps and name suffixes.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// New returns a codec. A nil formats uses DefaultFormats; a nil trash uses
// the default trash root.
func New(sc sidecar.Sidecar, formats *Formats, tr *trash.Trash, opts ...Option) *Codec {
	if formats == nil {
		formats = DefaultFormats()
	}
	if tr == nil {
		tr = trash.New("")
	}
	c := &Codec{
		sidecar: sc,
		formats: formats,
		trash:   tr,
		logger:  slog.Default(),
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Formats returns the configured format whitelist.
func (c *Codec) Formats() *Formats { return c.formats }

// Trash returns the trash used by DeleteNote.
func (c *Codec) Trash() *trash.Trash { return c.trash }

// Now returns the codec clock.
func (c *Codec) Now() time.Time { return c.now() }

func (c *Codec) newID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(c.now()), c.entropy).String()
}

func open(path string) (*storage.FS, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", err
	}
	fs, err := storage.NewFS(filepath.Dir(abs))
	if err != nil {
		return nil, "", err
	}
	return fs, filepath.Base(abs), nil
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// ReadNote builds a note from the file at path. A file seen for the first
// time gets a fresh id and creation stamp, persisted best-effort.
func (c *Codec) ReadNote(path string) (models.Note, error) {
	fs, name, err := open(path)
	if err != nil {
		return models.Note{}, apperr.ReadFailure(path, err)
	}
	data, err := fs.Read(name)
	if err != nil {
		return models.Note{}, apperr.ReadFailure(path, err)
	}
	created, modified, err := fs.Times(name)
	if err != nil {
		return models.Note{}, apperr.ReadFailure(path, err)
	}
	loc := filepath.Join(fs.Root(), name)

	attrs, err := sidecar.Load(c.sidecar, loc)
	if err != nil {
		c.logger.Warn("codec: read metadata failed", slog.String("path", loc), slog.String("error", err.Error()))
	}
	if attrs.ID == "" {
		attrs.ID = c.newID()
		if attrs.CreatedAt.IsZero() {
			attrs.CreatedAt = created
		}
		if err := c.persistIdentity(loc, attrs); err != nil {
			c.logger.Debug("codec: persist id failed", slog.String("path", loc), slog.String("error", err.Error()))
		}
	}
	if !attrs.CreatedAt.IsZero() {
		created = attrs.CreatedAt
	}

	return models.Note{
		ID:         attrs.ID,
		Title:      stem(name),
		Content:    string(data),
		Location:   loc,
		CreatedAt:  created,
		ModifiedAt: modified,
		Tags:       attrs.Tags,
		Pinned:     attrs.Pinned,
	}, nil
}

func (c *Codec) persistIdentity(path string, a sidecar.Attrs) error {
	if err := c.sidecar.Set(path, sidecar.KeyID, []byte(a.ID)); err != nil {
		return err
	}
	return c.sidecar.Set(path, sidecar.KeyCreated, []byte(a.CreatedAt.UTC().Format(time.RFC3339Nano)))
}

func attrsOf(n *models.Note) sidecar.Attrs {
	return sidecar.Attrs{ID: n.ID, Tags: n.Tags, Pinned: n.Pinned, CreatedAt: n.CreatedAt}
}

// WriteNote atomically replaces the note file with n.Content, stamps the
// modification time, and re-applies the sidecar attributes the replacement
// dropped. n.Content becomes the bytes written and n.ModifiedAt the new
// stamp.
func (c *Codec) WriteNote(n *models.Note) error {
	fs, name, err := open(n.Location)
	if err != nil {
		return apperr.WriteFailure(n.Location, err)
	}
	data := c.formats.Encode(name, n.Content)
	if err := fs.Write(name, data); err != nil {
		return apperr.WriteFailure(n.Location, err)
	}
	n.Content = string(data)
	now := c.now()
	if err := fs.Touch(name, now); err != nil {
		return apperr.WriteFailure(n.Location, err)
	}
	n.ModifiedAt = now
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.Tags = models.NormalizeTags(n.Tags)
	if err := sidecar.Apply(c.sidecar, n.Location, attrsOf(n)); err != nil {
		return apperr.WriteFailure(n.Location, fmt.Errorf("reapply metadata: %w", err))
	}
	return nil
}

// CreateNote writes a new note named after title into dir. Taken names
// get a timestamp suffix, then a counter.
func (c *Codec) CreateNote(dir, title, content string) (models.Note, error) {
	fs, err := storage.NewFS(dir)
	if err != nil {
		return models.Note{}, fmt.Errorf("codec: create: %w: %w", apperr.ErrDirectoryNotAccessible, err)
	}
	base, ext := Sanitize(title), c.formats.PrimaryExt()
	name, data, err := c.createFree(fs, base, ext, content)
	if err != nil {
		return models.Note{}, apperr.WriteFailure(filepath.Join(fs.Root(), base+ext), err)
	}
	loc := filepath.Join(fs.Root(), name)
	now := c.now()
	if err := fs.Touch(name, now); err != nil {
		c.logger.Debug("codec: stamp new note failed", slog.String("path", loc), slog.String("error", err.Error()))
	}

	n := models.Note{
		ID:         c.newID(),
		Title:      stem(name),
		Content:    string(data),
		Location:   loc,
		CreatedAt:  now,
		ModifiedAt: now,
		Tags:       []string{},
	}
	if err := sidecar.Apply(c.sidecar, loc, attrsOf(&n)); err != nil {
		c.logger.Warn("codec: write metadata failed", slog.String("path", loc), slog.String("error", err.Error()))
	}
	c.logger.Debug("codec: created", slog.String("path", loc), slog.String("id", n.ID))
	return n, nil
}

// createFree writes content under the first candidate name nobody holds.
// Each name is claimed exclusively, so a file that appears after the scan
// started is skipped rather than replaced.
func (c *Codec) createFree(fs storage.Provider, base, ext, content string) (string, []byte, error) {
	stamp := c.now().Format(suffixLayout)
	for attempt := range maxNameAttempts {
		name := candidateName(base, ext, stamp, attempt)
		data := c.formats.Encode(name, content)
		err := fs.Create(name, data)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", nil, err
		}
		return name, data, nil
	}
	return "", nil, apperr.ErrTooManyDuplicates
}

// freeName finds the first unused candidate name. self is the caller's own
// current name and counts as free, including a case-only change.
func (c *Codec) freeName(fs storage.Provider, base, ext, self string) (string, error) {
	stamp := c.now().Format(suffixLayout)
	for attempt := range maxNameAttempts {
		name := candidateName(base, ext, stamp, attempt)
		if self != "" && strings.EqualFold(name, self) {
			return name, nil
		}
		ok, err := fs.Exists(name)
		if err != nil {
			return "", err
		}
		if !ok {
			return name, nil
		}
	}
	return "", apperr.ErrTooManyDuplicates
}

// RenameNote moves the note file to a name derived from newTitle, keeping
// its extension, and returns the new location. Non-primary formats carry
// the title as the first paragraph of the body, which is rewritten. The
// sidecar attributes are read first and restored on the new file. Once the
// file has moved, the new location is returned even alongside an error.
func (c *Codec) RenameNote(n *models.Note, newTitle string) (string, error) {
	fs, oldName, err := open(n.Location)
	if err != nil {
		return "", apperr.RenameFailure(n.Location, err)
	}
	oldLoc := filepath.Join(fs.Root(), oldName)

	attrs, err := sidecar.Load(c.sidecar, oldLoc)
	if err != nil {
		c.logger.Warn("codec: read metadata before rename failed", slog.String("path", oldLoc), slog.String("error", err.Error()))
		attrs = attrsOf(n)
	}
	if attrs.ID == "" {
		attrs.ID = n.ID
	}
	if attrs.CreatedAt.IsZero() {
		attrs.CreatedAt = n.CreatedAt
	}

	ext := filepath.Ext(oldName)
	newName, err := c.freeName(fs, Sanitize(newTitle), ext, oldName)
	if err != nil {
		return "", apperr.RenameFailure(oldLoc, err)
	}
	if newName != oldName {
		if err := fs.Move(oldName, newName); err != nil {
			return "", apperr.RenameFailure(oldLoc, err)
		}
	}
	newLoc := filepath.Join(fs.Root(), newName)

	if !c.formats.IsPrimary(newName) {
		data, err := fs.Read(newName)
		if err != nil {
			return newLoc, apperr.RenameFailure(newLoc, err)
		}
		body := retitle(string(data), stem(oldName), stem(newName))
		if err := fs.Write(newName, []byte(body)); err != nil {
			return newLoc, apperr.RenameFailure(newLoc, err)
		}
	}
	if err := fs.Touch(newName, c.now()); err != nil {
		c.logger.Debug("codec: stamp renamed note failed", slog.String("path", newLoc), slog.String("error", err.Error()))
	}

	if f, ok := c.sidecar.(sidecar.Forgetter); ok && newLoc != oldLoc {
		if err := f.Forget(oldLoc); err != nil {
			c.logger.Warn("codec: forget old metadata failed", slog.String("path", oldLoc), slog.String("error", err.Error()))
		}
	}
	if err := sidecar.Apply(c.sidecar, newLoc, attrs); err != nil {
		return newLoc, apperr.RenameFailure(newLoc, fmt.Errorf("reapply metadata: %w", err))
	}
	c.logger.Debug("codec: renamed", slog.String("from", oldLoc), slog.String("to", newLoc))
	return newLoc, nil
}

// retitle replaces a leading "old\n\n" paragraph, or prepends one.
func retitle(body, oldTitle, newTitle string) string {
	body = strings.TrimPrefix(body, oldTitle+"\n\n")
	return newTitle + "\n\n" + body
}

// DeleteNote moves the note file to the trash. Attributes held outside the
// file follow it to its trashed path so a restore can bring them back.
func (c *Codec) DeleteNote(path string) (trash.Item, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return trash.Item{}, apperr.DeleteFailure(path, err)
	}
	f, detached := c.sidecar.(sidecar.Forgetter)
	var attrs sidecar.Attrs
	if detached {
		if attrs, err = sidecar.Load(c.sidecar, abs); err != nil {
			c.logger.Warn("codec: read metadata before delete failed", slog.String("path", abs), slog.String("error", err.Error()))
		}
	}

	item, err := c.trash.Move(abs)
	if err != nil {
		return trash.Item{}, apperr.DeleteFailure(abs, err)
	}
	if detached {
		if err := sidecar.Apply(c.sidecar, item.Path, attrs); err != nil {
			c.logger.Warn("codec: keep metadata of trashed note failed", slog.String("path", item.Path), slog.String("error", err.Error()))
		}
		if err := f.Forget(abs); err != nil {
			c.logger.Warn("codec: forget metadata failed", slog.String("path", abs), slog.String("error", err.Error()))
		}
	}
	c.logger.Debug("codec: trashed", slog.String("path", abs), slog.String("to", item.Path))
	return item, nil
}

// RestoreNote moves a trashed note back to where it was deleted from.
func (c *Codec) RestoreNote(item trash.Item) error {
	f, detached := c.sidecar.(sidecar.Forgetter)
	var attrs sidecar.Attrs
	if detached {
		var err error
		if attrs, err = sidecar.Load(c.sidecar, item.Path); err != nil {
			c.logger.Warn("codec: read metadata of trashed note failed", slog.String("path", item.Path), slog.String("error", err.Error()))
		}
	}
	if err := c.trash.Restore(item); err != nil {
		return apperr.WriteFailure(item.OriginalPath, err)
	}
	if detached {
		if err := sidecar.Apply(c.sidecar, item.OriginalPath, attrs); err != nil {
			c.logger.Warn("codec: restore metadata failed", slog.String("path", item.OriginalPath), slog.String("error", err.Error()))
		}
		_ = f.Forget(item.Path)
	}
	return nil
}

// SaveMetadata writes the id, creation time, tags and pinned flag of n to
// the sidecar of its file.
func (c *Codec) SaveMetadata(n *models.Note) error {
	err := sidecar.Apply(c.sidecar, n.Location, attrsOf(n))
	if err == nil && !n.Pinned {
		err = sidecar.WritePinned(c.sidecar, n.Location, false)
	}
	if err != nil {
		return apperr.WriteFailure(n.Location, err)
	}
	return nil
}

// SaveTags persists n.Tags (normalized in place).
func (c *Codec) SaveTags(n *models.Note) error {
	n.Tags = models.NormalizeTags(n.Tags)
	if err := sidecar.WriteTags(c.sidecar, n.Location, n.Tags); err != nil {
		return apperr.WriteFailure(n.Location, err)
	}
	return nil
}

// SavePinned persists n.Pinned.
func (c *Codec) SavePinned(n *models.Note) error {
	if err := sidecar.WritePinned(c.sidecar, n.Location, n.Pinned); err != nil {
		return apperr.WriteFailure(n.Location, err)
	}
	return nil
}

// Touch stamps the note file and n.ModifiedAt with the current time. The
// in-memory stamp is set even when the file could not be touched.
func (c *Codec) Touch(n *models.Note) error {
	now := c.now()
	n.ModifiedAt = now
	fs, name, err := open(n.Location)
	if err != nil {
		return apperr.WriteFailure(n.Location, err)
	}
	if err := fs.Touch(name, now); err != nil {
		return apperr.WriteFailure(n.Location, err)
	}
	return nil
}

// LoadAll reads every note file in dir, most recently modified first.
// Files that cannot be read are skipped.
func (c *Codec) LoadAll(dir string) ([]models.Note, error) {
	fs, err := storage.NewFS(dir)
	if err != nil {
		return nil, fmt.Errorf("codec: load: %w: %w", apperr.ErrDirectoryNotAccessible, err)
	}
	entries, err := fs.List(c.formats.Match)
	if err != nil {
		return nil, fmt.Errorf("codec: load: %w: %w", apperr.ErrDirectoryNotAccessible, err)
	}
	notes := make([]models.Note, 0, len(entries))
	for _, e := range entries {
		n, err := c.ReadNote(e.Path)
		if err != nil {
			c.logger.Warn("codec: skipping unreadable note", slog.String("path", e.Path), slog.String("error", err.Error()))
			continue
		}
		notes = append(notes, n)
	}
	slices.SortStableFunc(notes, func(a, b models.Note) int {
		return b.ModifiedAt.Compare(a.ModifiedAt)
	})
	return notes, nil
}

// IsNotFound reports whether err means the note file no longer exists.
func IsNotFound(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
