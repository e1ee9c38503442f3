// Package notestore owns the in-memory note list for one directory and
// keeps it in step with the files on disk.
package notestore

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/vellum/internal/apperr"
	"github.com/starford/vellum/internal/events"
	"github.com/starford/vellum/internal/models"
	"github.com/starford/vellum/internal/notefile"
	"github.com/starford/vellum/internal/trash"
	"github.com/starford/vellum/internal/watcher"
)

// DefaultSettleDelay is how long a reload waits after the watcher fires,
// so writers that touch a file several times finish first.
const DefaultSettleDelay = 250 * time.Millisecond

// Store is the note list of the active directory.
type Store struct {
	codec    *notefile.Codec
	bus      *events.Bus
	logger   *slog.Logger
	debounce time.Duration
	settle   time.Duration

	mu        sync.Mutex
	notes     []models.Note
	dir       string
	editingID string
	watcher   *watcher.Watcher
	gen       uint64

	reloadInFlight atomic.Bool
	reloads        sync.WaitGroup
	closing        chan struct{}
	closeOnce      sync.Once
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithDebounce sets the watcher quiet period.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) { s.debounce = d }
}

// WithSettleDelay sets the wait between a watcher signal and the rescan.
func WithSettleDelay(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.settle = d
		}
	}
}

// New returns a store with no directory.
func New(codec *notefile.Codec, opts ...Option) *Store {
	s := &Store{
		codec:    codec,
		bus:      events.NewBus(),
		logger:   slog.Default(),
		debounce: watcher.DefaultDebounce,
		settle:   DefaultSettleDelay,
		closing:  make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Close stops watching, waits for in-flight reloads and closes every
// subscription.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		s.mu.Lock()
		w := s.watcher
		s.watcher = nil
		s.gen++
		s.mu.Unlock()
		if w != nil {
			w.Stop()
		}
		s.reloads.Wait()
		s.bus.Close()
	})
	return nil
}

// Subscribe returns a channel of store events.
func (s *Store) Subscribe() <-chan events.Event { return s.bus.Subscribe() }

// Unsubscribe ends a subscription.
func (s *Store) Unsubscribe(ch <-chan events.Event) { s.bus.Unsubscribe(ch) }

func (s *Store) publish(kind events.Kind, n *models.Note) {
	ev := events.Event{Kind: kind, Directory: s.Directory()}
	if n != nil {
		c := n.Clone()
		ev.Note = &c
	}
	s.bus.Publish(ev)
}

// Directory returns the active directory, or "" before SetDirectory.
func (s *Store) Directory() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir
}

// SetDirectory loads dir and starts watching it. On a load failure the
// previous directory stays active.
func (s *Store) SetDirectory(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("store: %w: %w", apperr.ErrDirectoryNotAccessible, err)
	}
	notes, err := s.codec.LoadAll(abs)
	if err != nil {
		return err
	}
	sortNotes(notes)

	s.mu.Lock()
	select {
	case <-s.closing:
		s.mu.Unlock()
		return fmt.Errorf("store: closed")
	default:
	}
	if s.watcher != nil {
		s.watcher.Stop()
	}
	s.gen++
	gen := s.gen
	w := watcher.New(abs, s.codec.Formats().Match, func() { s.scheduleReload(gen) },
		watcher.WithDebounce(s.debounce), watcher.WithLogger(s.logger))
	s.watcher = w
	s.notes = notes
	s.dir = abs
	werr := w.Start()
	s.mu.Unlock()

	s.logger.Info("store: directory loaded", slog.String("dir", abs), slog.Int("notes", len(notes)))
	s.publish(events.DirectoryChanged, nil)
	if werr != nil {
		return fmt.Errorf("store: watch %s: %w", abs, werr)
	}
	return nil
}

// scheduleReload runs on the watcher goroutine and only hands off.
func (s *Store) scheduleReload(gen uint64) {
	select {
	case <-s.closing:
		return
	default:
	}
	if !s.reloadInFlight.CompareAndSwap(false, true) {
		s.logger.Debug("store: reload in flight, dropping signal")
		return
	}
	s.reloads.Add(1)
	go func() {
		defer s.reloads.Done()
		defer s.reloadInFlight.Store(false)

		t := time.NewTimer(s.settle)
		defer t.Stop()
		select {
		case <-t.C:
		case <-s.closing:
			return
		}
		s.reconcile(gen)
	}()
}

// reconcile rescans the directory of generation gen and merges the result.
// The note being edited keeps its in-memory version.
func (s *Store) reconcile(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.dir == "" {
		s.mu.Unlock()
		s.logger.Debug("store: discarding reload for previous directory")
		return
	}
	loaded, err := s.codec.LoadAll(s.dir)
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn("store: rescan failed", slog.String("dir", s.dir), slog.String("error", err.Error()))
		return
	}
	s.adoptIdentities(loaded)
	if s.editingID != "" {
		if i := s.indexOf(s.editingID); i >= 0 {
			editing := s.notes[i]
			j := slices.IndexFunc(loaded, func(n models.Note) bool { return n.ID == editing.ID })
			if j < 0 {
				j = slices.IndexFunc(loaded, func(n models.Note) bool { return n.Location == editing.Location })
			}
			if j >= 0 {
				loaded[j] = editing
			} else {
				loaded = append(loaded, editing)
			}
		}
	}
	sortNotes(loaded)
	s.notes = loaded
	count := len(loaded)
	s.mu.Unlock()

	s.logger.Debug("store: reconciled", slog.Int("notes", count))
	s.publish(events.DirectoryChanged, nil)
}

// adoptIdentities gives a rescanned file the identity of the note that
// lived at the same location when the file came back under a fresh id and
// the old id is gone. That happens when an editor replaces a file and the
// sidecar attributes go with the old inode. The old id, creation time,
// tags and pinned flag are written back onto the file. Callers hold s.mu.
func (s *Store) adoptIdentities(loaded []models.Note) {
	prev := make(map[string]*models.Note, len(s.notes))
	known := make(map[string]bool, len(s.notes))
	for i := range s.notes {
		prev[s.notes[i].Location] = &s.notes[i]
		known[s.notes[i].ID] = true
	}
	ids := make(map[string]bool, len(loaded))
	for _, n := range loaded {
		ids[n.ID] = true
	}
	for i := range loaded {
		n := &loaded[i]
		old, ok := prev[n.Location]
		// A known id moved here from another file; that note keeps it.
		if !ok || known[n.ID] || ids[old.ID] {
			continue
		}
		s.logger.Info("store: file replaced, keeping note identity",
			slog.String("path", n.Location), slog.String("id", old.ID))
		delete(ids, n.ID)
		ids[old.ID] = true
		n.ID = old.ID
		n.CreatedAt = old.CreatedAt
		n.Tags = slices.Clone(old.Tags)
		n.Pinned = old.Pinned
		if err := s.codec.SaveMetadata(n); err != nil {
			s.logger.Warn("store: restore metadata failed", slog.String("path", n.Location), slog.String("error", err.Error()))
		}
	}
}

// Reload rescans the active directory now.
func (s *Store) Reload() {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	s.reconcile(gen)
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.notes, func(n models.Note) bool { return n.ID == id })
}

// sortNotes orders pinned notes first, then by ModifiedAt descending.
// Equal keys keep their relative order.
func sortNotes(notes []models.Note) {
	slices.SortStableFunc(notes, func(a, b models.Note) int {
		if a.Pinned != b.Pinned {
			if a.Pinned {
				return -1
			}
			return 1
		}
		return b.ModifiedAt.Compare(a.ModifiedAt)
	})
}

// CreateNote writes a new note into the active directory.
func (s *Store) CreateNote(title, content string) (models.Note, error) {
	s.mu.Lock()
	if s.dir == "" {
		s.mu.Unlock()
		return models.Note{}, fmt.Errorf("store: create: no directory: %w", apperr.ErrDirectoryNotAccessible)
	}
	n, err := s.codec.CreateNote(s.dir, title, content)
	if err != nil {
		s.mu.Unlock()
		return models.Note{}, err
	}
	s.notes = slices.Insert(s.notes, 0, n)
	sortNotes(s.notes)
	s.mu.Unlock()

	s.publish(events.NoteCreated, &n)
	s.publish(events.DirectoryChanged, nil)
	return n.Clone(), nil
}

// mutate applies fn to the note id under the lock, re-sorts, and publishes
// NoteUpdated with the result.
func (s *Store) mutate(id string, fn func(n *models.Note) error) (models.Note, error) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return models.Note{}, fmt.Errorf("store: note %s: %w", id, apperr.ErrNotFound)
	}
	if err := fn(&s.notes[i]); err != nil {
		s.mu.Unlock()
		return models.Note{}, err
	}
	sortNotes(s.notes)
	n := s.notes[s.indexOf(id)].Clone()
	s.mu.Unlock()

	s.publish(events.NoteUpdated, &n)
	s.publish(events.DirectoryChanged, nil)
	return n, nil
}

// UpdateContent replaces the content of note id. A failed write is logged
// and the in-memory edit is kept.
func (s *Store) UpdateContent(id, content string) (models.Note, error) {
	return s.mutate(id, func(n *models.Note) error {
		n.Content = content
		if err := s.codec.WriteNote(n); err != nil {
			msg := "store: write failed"
			if notefile.IsNotFound(err) {
				msg = "store: write failed, directory is gone"
			}
			s.logger.Error(msg, slog.String("id", id), slog.String("error", err.Error()))
		}
		return nil
	})
}

// UpdateTags replaces the tag set of note id.
func (s *Store) UpdateTags(id string, tags []string) (models.Note, error) {
	return s.mutate(id, func(n *models.Note) error {
		n.Tags = models.NormalizeTags(tags)
		if err := s.codec.SaveTags(n); err != nil {
			s.logger.Error("store: save tags failed", slog.String("id", id), slog.String("error", err.Error()))
		}
		s.touch(n)
		return nil
	})
}

// TogglePinned flips the pinned flag of note id.
func (s *Store) TogglePinned(id string) (models.Note, error) {
	return s.mutate(id, func(n *models.Note) error {
		n.Pinned = !n.Pinned
		if err := s.codec.SavePinned(n); err != nil {
			s.logger.Error("store: save pinned failed", slog.String("id", id), slog.String("error", err.Error()))
		}
		s.touch(n)
		return nil
	})
}

func (s *Store) touch(n *models.Note) {
	if err := s.codec.Touch(n); err != nil {
		s.logger.Warn("store: touch failed", slog.String("id", n.ID), slog.String("error", err.Error()))
	}
}

// RenameNote renames the file of note id and re-reads its content.
func (s *Store) RenameNote(id, newTitle string) (models.Note, error) {
	return s.mutate(id, func(n *models.Note) error {
		loc, err := s.codec.RenameNote(n, newTitle)
		if loc != "" {
			n.Location = loc
			n.Title = strings.TrimSuffix(filepath.Base(loc), filepath.Ext(loc))
		}
		if err != nil {
			return err
		}
		fresh, err := s.codec.ReadNote(loc)
		if err != nil {
			s.logger.Warn("store: re-read after rename failed", slog.String("path", loc), slog.String("error", err.Error()))
			n.ModifiedAt = s.codec.Now()
			return nil
		}
		n.Content = fresh.Content
		n.ModifiedAt = fresh.ModifiedAt
		return nil
	})
}

// DeleteNote moves the file of note id to the trash and drops the note.
func (s *Store) DeleteNote(id string) (trash.Item, error) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return trash.Item{}, fmt.Errorf("store: note %s: %w", id, apperr.ErrNotFound)
	}
	n := s.notes[i]
	item, err := s.codec.DeleteNote(n.Location)
	if err != nil {
		s.mu.Unlock()
		return trash.Item{}, err
	}
	s.notes = slices.Delete(s.notes, i, i+1)
	if s.editingID == id {
		s.editingID = ""
	}
	s.mu.Unlock()

	s.publish(events.NoteDeleted, &n)
	s.publish(events.DirectoryChanged, nil)
	return item, nil
}

// Trashed lists trashed notes, newest first.
func (s *Store) Trashed() ([]trash.Item, error) {
	return s.codec.Trash().List(s.Directory())
}

// RestoreNote moves a trashed note back. When it lands in the active
// directory it rejoins the list.
func (s *Store) RestoreNote(item trash.Item) (models.Note, error) {
	if err := s.codec.RestoreNote(item); err != nil {
		return models.Note{}, err
	}
	n, err := s.codec.ReadNote(item.OriginalPath)
	if err != nil {
		return models.Note{}, err
	}

	s.mu.Lock()
	inDir := filepath.Dir(n.Location) == s.dir && s.indexOf(n.ID) < 0
	if inDir {
		s.notes = append(s.notes, n)
		sortNotes(s.notes)
	}
	s.mu.Unlock()

	if inDir {
		s.publish(events.NoteCreated, &n)
		s.publish(events.DirectoryChanged, nil)
	}
	return n.Clone(), nil
}

// SetEditingNote marks id as open in an editor; "" clears it.
func (s *Store) SetEditingNote(id string) {
	s.mu.Lock()
	s.editingID = id
	s.mu.Unlock()
}

// EditingID returns the id of the note open for editing.
func (s *Store) EditingID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editingID
}
