package sidecar

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeTags(t *testing.T) {
	enc := EncodeTags([]string{" Zeta", "alpha", "", "ALPHA"})
	assert.Equal(t, "alpha,zeta", string(enc))
	assert.Equal(t, []string{"alpha", "zeta"}, DecodeTags(enc))
	assert.Empty(t, DecodeTags([]byte("")))
}

func TestLoad_Defaults(t *testing.T) {
	idx := testIndex(t)
	a, err := Load(idx, "/notes/none.rtf")
	require.NoError(t, err)
	assert.Empty(t, a.ID)
	assert.Empty(t, a.Tags)
	assert.False(t, a.Pinned)
	assert.True(t, a.CreatedAt.IsZero())
}

func TestApplyLoadRoundTrip(t *testing.T) {
	idx := testIndex(t)
	created := time.Date(2024, 3, 1, 12, 0, 0, 42, time.UTC)
	in := Attrs{ID: "01HX", Tags: []string{"b", "a"}, Pinned: true, CreatedAt: created}

	require.NoError(t, Apply(idx, "/notes/n.md", in))

	out, err := Load(idx, "/notes/n.md")
	require.NoError(t, err)
	assert.Equal(t, "01HX", out.ID)
	assert.Equal(t, []string{"a", "b"}, out.Tags)
	assert.True(t, out.Pinned)
	assert.True(t, created.Equal(out.CreatedAt))
}

func TestApply_UnpinnedLeavesFlagAlone(t *testing.T) {
	idx := testIndex(t)
	_, ok, _ := idx.Get("/notes/n.md", KeyPinned)
	require.False(t, ok)

	require.NoError(t, Apply(idx, "/notes/n.md", Attrs{Tags: []string{"x"}}))

	_, ok, err := idx.Get("/notes/n.md", KeyPinned)
	require.NoError(t, err)
	assert.False(t, ok, "unpinned apply should not write the pinned key")
}

func TestOpen_IndexBackend(t *testing.T) {
	dir := t.TempDir()
	s, kind, err := Open(KindIndex, dir, filepath.Join(dir, ".vellum.db"))
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, KindIndex, kind)
	_, isIndex := s.(*Index)
	assert.True(t, isIndex)
}

func TestOpen_AutoPicksAWorkingBackend(t *testing.T) {
	dir := t.TempDir()
	s, kind, err := Open(KindAuto, dir, filepath.Join(dir, ".vellum.db"))
	require.NoError(t, err)
	defer s.Close()

	if kind == KindXattr {
		assert.True(t, XattrSupported(dir))
	} else {
		assert.Equal(t, KindIndex, kind)
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, _, err := Open("floppy", t.TempDir(), "")
	assert.Error(t, err)
}
