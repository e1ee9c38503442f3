// Package sidecar stores small out-of-band attributes (tags, pinned flag,
// stable id) next to a note file without touching its content stream.
package sidecar

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/starford/vellum/internal/models"
)

// Attribute keys. Backends may namespace them (xattrs use "user.").
const (
	KeyID      = "vellum.id"
	KeyTags    = "vellum.tags"
	KeyPinned  = "vellum.pinned"
	KeyCreated = "vellum.created"
)

// Sidecar reads and writes per-file attributes. Absence is not an error:
// Get reports found=false and callers use the default value.
type Sidecar interface {
	Get(path, key string) (value []byte, found bool, err error)
	Set(path, key string, value []byte) error
}

// Forgetter is implemented by backends that keep attributes apart from the
// file itself and need to drop them when the file goes away.
type Forgetter interface {
	Forget(path string) error
}

// Closer is a Sidecar holding resources.
type Closer interface {
	Sidecar
	io.Closer
}

// Kind selects a backend.
type Kind string

const (
	KindAuto  Kind = "auto"
	KindXattr Kind = "xattr"
	KindIndex Kind = "index"
)

// Open returns the backend for kind. KindAuto probes dir for extended
// attribute support and falls back to the SQLite index at indexPath.
func Open(kind Kind, dir, indexPath string) (Closer, Kind, error) {
	switch kind {
	case KindXattr:
		if !XattrSupported(dir) {
			return nil, kind, fmt.Errorf("sidecar: extended attributes unsupported in %s: %w", dir, errors.ErrUnsupported)
		}
		return NewXattr(), KindXattr, nil
	case KindIndex:
		idx, err := OpenIndex(indexPath)
		return idx, KindIndex, err
	case KindAuto, "":
		if XattrSupported(dir) {
			return NewXattr(), KindXattr, nil
		}
		idx, err := OpenIndex(indexPath)
		return idx, KindIndex, err
	default:
		return nil, kind, fmt.Errorf("sidecar: unknown backend %q", kind)
	}
}

// Attrs is the full attribute set of one note file.
type Attrs struct {
	ID        string
	Tags      []string
	Pinned    bool
	CreatedAt time.Time
}

// Load reads every attribute of path, using defaults for absent keys.
func Load(s Sidecar, path string) (Attrs, error) {
	var a Attrs

	if v, ok, err := s.Get(path, KeyID); err != nil {
		return a, err
	} else if ok {
		a.ID = strings.TrimSpace(string(v))
	}

	tags, err := ReadTags(s, path)
	if err != nil {
		return a, err
	}
	a.Tags = tags

	if a.Pinned, err = ReadPinned(s, path); err != nil {
		return a, err
	}

	if v, ok, err := s.Get(path, KeyCreated); err != nil {
		return a, err
	} else if ok {
		if t, perr := time.Parse(time.RFC3339Nano, string(v)); perr == nil {
			a.CreatedAt = t
		}
	}
	return a, nil
}

// Apply writes a onto path. The pinned flag is only written when set: a
// freshly replaced file has no attribute and reads back as unpinned.
func Apply(s Sidecar, path string, a Attrs) error {
	if a.ID != "" {
		if err := s.Set(path, KeyID, []byte(a.ID)); err != nil {
			return err
		}
	}
	if !a.CreatedAt.IsZero() {
		if err := s.Set(path, KeyCreated, []byte(a.CreatedAt.UTC().Format(time.RFC3339Nano))); err != nil {
			return err
		}
	}
	if err := WriteTags(s, path, a.Tags); err != nil {
		return err
	}
	if a.Pinned {
		return WritePinned(s, path, true)
	}
	return nil
}

// ReadTags returns the normalized tag set of path.
func ReadTags(s Sidecar, path string) ([]string, error) {
	v, ok, err := s.Get(path, KeyTags)
	if err != nil || !ok {
		return []string{}, err
	}
	return DecodeTags(v), nil
}

// WriteTags stores tags (normalized) on path.
func WriteTags(s Sidecar, path string, tags []string) error {
	return s.Set(path, KeyTags, EncodeTags(tags))
}

// ReadPinned returns the pinned flag of path.
func ReadPinned(s Sidecar, path string) (bool, error) {
	v, ok, err := s.Get(path, KeyPinned)
	if err != nil || !ok {
		return false, err
	}
	return string(v) == "1", nil
}

// WritePinned stores the pinned flag of path.
func WritePinned(s Sidecar, path string, pinned bool) error {
	flag := []byte("0")
	if pinned {
		flag = []byte("1")
	}
	return s.Set(path, KeyPinned, flag)
}

// EncodeTags joins normalized tags with commas.
func EncodeTags(tags []string) []byte {
	return []byte(strings.Join(models.NormalizeTags(tags), ","))
}

// DecodeTags splits and normalizes a stored tag list.
func DecodeTags(v []byte) []string {
	return models.NormalizeTags(strings.Split(string(v), ","))
}
