package notestore_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/vellum/internal/apperr"
	"github.com/starford/vellum/internal/events"
	"github.com/starford/vellum/internal/models"
	"github.com/starford/vellum/internal/notefile"
	"github.com/starford/vellum/internal/notestore"
	"github.com/starford/vellum/internal/sidecar"
	"github.com/starford/vellum/internal/testutil"
	"github.com/starford/vellum/internal/trash"
)

func titles(notes []models.Note) []string {
	out := make([]string, 0, len(notes))
	for _, n := range notes {
		out = append(out, n.Title)
	}
	return out
}

// seed writes notes whose mtimes increase in argument order.
func seed(t *testing.T, dir string, names ...string) {
	t.Helper()
	base := time.Now().Add(-time.Hour)
	for i, name := range names {
		p := testutil.WriteNote(t, dir, name, "body of "+name)
		testutil.SetMtime(t, p, base.Add(time.Duration(i)*time.Minute))
	}
}

func loadedStore(t *testing.T, names ...string) (*notestore.Store, string) {
	t.Helper()
	dir := testutil.NotesDir(t)
	seed(t, dir, names...)
	s := testutil.Store(t)
	require.NoError(t, s.SetDirectory(dir))
	return s, dir
}

func byTitle(t *testing.T, s *notestore.Store, title string) models.Note {
	t.Helper()
	for _, n := range s.Notes() {
		if n.Title == title {
			return n
		}
	}
	t.Fatalf("no note titled %q", title)
	return models.Note{}
}

// drain collects events until none arrives for quiet.
func drain(ch <-chan events.Event, quiet time.Duration) []events.Kind {
	var kinds []events.Kind
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return kinds
			}
			kinds = append(kinds, ev.Kind)
		case <-time.After(quiet):
			return kinds
		}
	}
}

func TestSortNotes(t *testing.T) {
	now := time.Now()
	notes := []models.Note{
		{Title: "old", ModifiedAt: now.Add(-2 * time.Hour)},
		{Title: "pinned-old", Pinned: true, ModifiedAt: now.Add(-3 * time.Hour)},
		{Title: "new", ModifiedAt: now},
		{Title: "tie-1", ModifiedAt: now.Add(-time.Hour)},
		{Title: "tie-2", ModifiedAt: now.Add(-time.Hour)},
		{Title: "pinned-new", Pinned: true, ModifiedAt: now},
	}
	notestore.SortNotes(notes)

	want := []string{"pinned-new", "pinned-old", "new", "tie-1", "tie-2", "old"}
	if diff := cmp.Diff(want, titles(notes)); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}
}

func TestSetDirectory(t *testing.T) {
	s, dir := loadedStore(t, "A.md", "B.txt", ".hidden.md", "skip.png")
	assert.Equal(t, []string{"B", "A"}, titles(s.Notes()))

	abs, _ := filepath.Abs(dir)
	assert.Equal(t, abs, s.Directory())
}

func TestSetDirectory_Missing(t *testing.T) {
	s := testutil.Store(t)
	err := s.SetDirectory(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, apperr.ErrDirectoryNotAccessible)
	assert.Empty(t, s.Directory())
}

func TestTogglePinned_Reorders(t *testing.T) {
	s, _ := loadedStore(t, "A.md", "B.md")
	require.Equal(t, []string{"B", "A"}, titles(s.Notes()))

	a := byTitle(t, s, "A")
	got, err := s.TogglePinned(a.ID)
	require.NoError(t, err)
	assert.True(t, got.Pinned)
	assert.Equal(t, []string{"A", "B"}, titles(s.Notes()))

	got, err = s.TogglePinned(a.ID)
	require.NoError(t, err)
	assert.False(t, got.Pinned)
}

func TestCreateNote(t *testing.T) {
	s, _ := loadedStore(t, "A.md")
	ch := s.Subscribe()
	drain(ch, 50*time.Millisecond)

	n, err := s.CreateNote("Fresh: idea", "")
	require.NoError(t, err)
	assert.Equal(t, "Fresh- idea", n.Title)
	assert.FileExists(t, n.Location)
	assert.Equal(t, "Fresh- idea", s.Notes()[0].Title)

	kinds := drain(ch, 30*time.Millisecond)
	require.GreaterOrEqual(t, len(kinds), 2)
	assert.Equal(t, []events.Kind{events.NoteCreated, events.DirectoryChanged}, kinds[:2])
}

func TestCreateNote_NoDirectory(t *testing.T) {
	s := testutil.Store(t)
	_, err := s.CreateNote("x", "")
	assert.ErrorIs(t, err, apperr.ErrDirectoryNotAccessible)
}

func TestUpdateContent(t *testing.T) {
	s, _ := loadedStore(t, "A.md", "B.md")
	a := byTitle(t, s, "A")

	got, err := s.UpdateContent(a.ID, "rewritten")
	require.NoError(t, err)
	assert.Equal(t, "rewritten", got.Content)
	assert.Equal(t, []string{"A", "B"}, titles(s.Notes()))

	data, err := os.ReadFile(a.Location)
	require.NoError(t, err)
	assert.Equal(t, "rewritten", string(data))
}

func TestUpdateContent_RTFMatchesDiskAfterRescan(t *testing.T) {
	s, _ := loadedStore(t)
	n, err := s.CreateNote("Letter", "")
	require.NoError(t, err)

	updated, err := s.UpdateContent(n.ID, "hello")
	require.NoError(t, err)
	data, err := os.ReadFile(updated.Location)
	require.NoError(t, err)
	assert.Equal(t, string(data), updated.Content)

	s.Reload()
	got, ok := s.Note(n.ID)
	require.True(t, ok)
	assert.Equal(t, updated.Checksum(), got.Checksum())
}

func TestUpdateContent_WriteFailureKeepsEdit(t *testing.T) {
	s, dir := loadedStore(t, "A.md")
	a := byTitle(t, s, "A")
	require.NoError(t, os.RemoveAll(dir))

	got, err := s.UpdateContent(a.ID, "unsaved")
	require.NoError(t, err)
	assert.Equal(t, "unsaved", got.Content)
	n, ok := s.Note(a.ID)
	require.True(t, ok)
	assert.Equal(t, "unsaved", n.Content)
}

func TestUpdateTags(t *testing.T) {
	s, _ := loadedStore(t, "A.md", "B.md")
	a := byTitle(t, s, "A")
	b := byTitle(t, s, "B")

	got, err := s.UpdateTags(a.ID, []string{" Work ", "idea", "work"})
	require.NoError(t, err)
	assert.Equal(t, []string{"idea", "work"}, got.Tags)
	_, err = s.UpdateTags(b.ID, []string{"home"})
	require.NoError(t, err)

	assert.Equal(t, []string{"home", "idea", "work"}, s.AllTags())
	assert.Equal(t, []string{"A"}, titles(s.FilterByTag("WORK")))

	s.Reload()
	reread := byTitle(t, s, "A")
	assert.Equal(t, []string{"idea", "work"}, reread.Tags)
}

func TestUnknownID(t *testing.T) {
	s, _ := loadedStore(t, "A.md")
	_, err := s.UpdateContent("nope", "x")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.TogglePinned("nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.DeleteNote("nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.RenameNote("nope", "x")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRenameNote(t *testing.T) {
	s, dir := loadedStore(t, "Old.md")
	old := byTitle(t, s, "Old")
	_, err := s.UpdateTags(old.ID, []string{"keep"})
	require.NoError(t, err)

	got, err := s.RenameNote(old.ID, "New")
	require.NoError(t, err)
	assert.Equal(t, old.ID, got.ID)
	assert.Equal(t, "New", got.Title)
	assert.Equal(t, filepath.Join(dir, "New.md"), got.Location)
	assert.Equal(t, "New\n\nbody of Old.md", got.Content)
	assert.Equal(t, []string{"keep"}, got.Tags)
	assert.NoFileExists(t, old.Location)

	_, ok := s.NoteAtPath(filepath.Join(dir, "New.md"))
	assert.True(t, ok)
}

func TestDeleteAndRestore(t *testing.T) {
	s, _ := loadedStore(t, "A.md", "B.md")
	a := byTitle(t, s, "A")
	s.SetEditingNote(a.ID)

	item, err := s.DeleteNote(a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, titles(s.Notes()))
	assert.Empty(t, s.EditingID())
	assert.NoFileExists(t, a.Location)

	trashed, err := s.Trashed()
	require.NoError(t, err)
	require.Len(t, trashed, 1)
	assert.Equal(t, a.Location, trashed[0].OriginalPath)

	restored, err := s.RestoreNote(item)
	require.NoError(t, err)
	assert.Equal(t, a.ID, restored.ID)
	assert.ElementsMatch(t, []string{"A", "B"}, titles(s.Notes()))
}

func TestQueries(t *testing.T) {
	s, _ := loadedStore(t, "Groceries.md", "grocery list.txt", "Work plan.md")

	assert.ElementsMatch(t, []string{"Groceries", "grocery list"}, titles(s.FilterByTitlePrefix("GROC")))
	assert.ElementsMatch(t, []string{"Work plan"}, titles(s.FilterByTitle("PLAN")))
	assert.Empty(t, s.FilterByTitle("zzz"))

	n := byTitle(t, s, "Groceries")
	n.Tags = append(n.Tags, "mutated")
	fresh, ok := s.Note(n.ID)
	require.True(t, ok)
	assert.Empty(t, fresh.Tags, "returned notes must be copies")

	_, ok = s.Note("missing")
	assert.False(t, ok)
}

func TestReconcile_ProtectsEditingNote(t *testing.T) {
	s, _ := loadedStore(t, "Mine.md", "Theirs.md")
	mine := byTitle(t, s, "Mine")
	theirs := byTitle(t, s, "Theirs")

	s.SetEditingNote(mine.ID)
	_, err := s.UpdateContent(mine.ID, "in progress")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(mine.Location, []byte("external"), 0o644))
	require.NoError(t, os.WriteFile(theirs.Location, []byte("external"), 0o644))
	s.Reload()

	got, _ := s.Note(mine.ID)
	assert.Equal(t, "in progress", got.Content)
	got, _ = s.Note(theirs.ID)
	assert.Equal(t, "external", got.Content)

	s.SetEditingNote("")
	s.Reload()
	got, _ = s.Note(mine.ID)
	assert.Equal(t, "external", got.Content)
}

func TestWatcher_BurstTriggersOneReconciliation(t *testing.T) {
	s, dir := loadedStore(t, "A.md")
	ch := s.Subscribe()
	drain(ch, 100*time.Millisecond)

	for _, name := range []string{"n1.md", "n2.md", "n3.md", "n4.md", "n5.md"} {
		testutil.WriteNote(t, dir, name, "x")
		time.Sleep(5 * time.Millisecond)
	}

	testutil.Eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return len(s.Notes()) == 6
	}, "external files never reconciled")

	kinds := drain(ch, 300*time.Millisecond)
	assert.Equal(t, []events.Kind{events.DirectoryChanged}, kinds)
}

func TestWatcher_ExternalDeleteReconciled(t *testing.T) {
	s, dir := loadedStore(t, "A.md", "B.md")
	require.NoError(t, os.Remove(filepath.Join(dir, "A.md")))

	testutil.Eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return len(s.Notes()) == 1
	}, "external delete never reconciled")
}

func TestSetDirectory_SwitchIgnoresOldDirectory(t *testing.T) {
	s, first := loadedStore(t, "A.md")
	second := testutil.NotesDir(t)
	seed(t, second, "Z.md")
	require.NoError(t, s.SetDirectory(second))

	testutil.WriteNote(t, first, "late.md", "x")
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, []string{"Z"}, titles(s.Notes()))
}

func TestClose(t *testing.T) {
	s, _ := loadedStore(t, "A.md")
	ch := s.Subscribe()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	// Events queued before Close may still arrive; the channel must end.
	closed := make(chan struct{})
	go func() {
		for range ch {
		}
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed by Close")
	}
	assert.Error(t, s.SetDirectory(t.TempDir()))
}

// atomicSave replaces path the way editors do: write a temp file, then
// rename it over the original. Attributes on the old inode are lost.
func atomicSave(t *testing.T, path, content string) {
	t.Helper()
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o644))
	require.NoError(t, os.Rename(tmp, path))
}

func atLocation(s *notestore.Store, loc string) []models.Note {
	var out []models.Note
	for _, n := range s.Notes() {
		if n.Location == loc {
			out = append(out, n)
		}
	}
	return out
}

func TestReconcile_ExternalAtomicSaveKeepsIdentity(t *testing.T) {
	dir := testutil.NotesDir(t)
	seed(t, dir, "A.md", "B.md")
	s := testutil.StoreWith(t, testutil.XattrCodec(t, dir))
	require.NoError(t, s.SetDirectory(dir))

	a := byTitle(t, s, "A")
	_, err := s.UpdateTags(a.ID, []string{"work"})
	require.NoError(t, err)
	_, err = s.TogglePinned(a.ID)
	require.NoError(t, err)

	s.SetEditingNote(a.ID)
	_, err = s.UpdateContent(a.ID, "draft")
	require.NoError(t, err)

	atomicSave(t, a.Location, "external")
	s.Reload()

	same := atLocation(s, a.Location)
	require.Len(t, same, 1, "one note per file")
	assert.Equal(t, a.ID, same[0].ID)
	assert.Equal(t, "draft", same[0].Content)

	s.SetEditingNote("")
	s.Reload()
	got, ok := s.Note(a.ID)
	require.True(t, ok)
	assert.Equal(t, "external", got.Content)
	assert.Equal(t, []string{"work"}, got.Tags)
	assert.True(t, got.Pinned)
	assert.Len(t, s.Notes(), 2)
}

func TestReconcile_ReplacedFileNotBeingEditedKeepsIdentity(t *testing.T) {
	dir := testutil.NotesDir(t)
	seed(t, dir, "A.md")
	s := testutil.StoreWith(t, testutil.XattrCodec(t, dir))
	require.NoError(t, s.SetDirectory(dir))
	a := byTitle(t, s, "A")
	_, err := s.UpdateTags(a.ID, []string{"keep"})
	require.NoError(t, err)

	atomicSave(t, a.Location, "external")
	s.Reload()

	got, ok := s.Note(a.ID)
	require.True(t, ok, "id changed after external save")
	assert.Equal(t, "external", got.Content)
	assert.Equal(t, []string{"keep"}, got.Tags)
	assert.Len(t, s.Notes(), 1)
}

func TestReconcile_MovedFileKeepsItsOwnIdentity(t *testing.T) {
	dir := testutil.NotesDir(t)
	seed(t, dir, "A.md", "B.md")
	s := testutil.StoreWith(t, testutil.XattrCodec(t, dir))
	require.NoError(t, s.SetDirectory(dir))
	a := byTitle(t, s, "A")
	b := byTitle(t, s, "B")

	require.NoError(t, os.Rename(b.Location, filepath.Join(dir, "A.md")))
	s.Reload()

	require.Len(t, s.Notes(), 1)
	got := s.Notes()[0]
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, a.Location, got.Location)
}

// failingSidecar refuses writes for files with the given base name.
type failingSidecar struct {
	sidecar.Sidecar
	base string
}

func (f failingSidecar) Set(path, key string, value []byte) error {
	if filepath.Base(path) == f.base {
		return errors.New("sidecar unavailable")
	}
	return f.Sidecar.Set(path, key, value)
}

func TestRenameNote_MetadataFailureStillTracksFile(t *testing.T) {
	dir := testutil.NotesDir(t)
	seed(t, dir, "Before.md")
	c := notefile.New(failingSidecar{Sidecar: testutil.Index(t), base: "After.md"},
		notefile.DefaultFormats(), trash.New(filepath.Join(t.TempDir(), "Trash")),
		notefile.WithLogger(testutil.Logger()))
	s := testutil.StoreWith(t, c)
	require.NoError(t, s.SetDirectory(dir))
	n := byTitle(t, s, "Before")

	_, err := s.RenameNote(n.ID, "After")
	require.ErrorIs(t, err, apperr.ErrRename)

	got, ok := s.Note(n.ID)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "After.md"), got.Location)
	assert.Equal(t, "After", got.Title)

	_, err = s.UpdateContent(n.ID, "more")
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "Before.md"))
}
