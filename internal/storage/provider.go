// Package storage is the file layer under the note codec: a flat notes
// directory with atomic writes.
package storage

import (
	"os"
	"time"
)

// Entry is one candidate note file found by List.
type Entry struct {
	Name string // base name, e.g. "Groceries.rtf"
	Path string // absolute path
}

// Provider is the interface for note directory file operations. Every name
// is a base name inside the provider's root.
type Provider interface {
	// Root returns the absolute directory path.
	Root() string
	// List returns the regular files in root accepted by match.
	List(match func(name string) bool) ([]Entry, error)
	// Read returns the raw bytes of name.
	Read(name string) ([]byte, error)
	// Write atomically replaces name with content (write-new, then swap).
	Write(name string, content []byte) error
	// Create writes a new file and fails with os.ErrExist when name is taken.
	Create(name string, content []byte) error
	// Exists reports whether name is present.
	Exists(name string) (bool, error)
	// Move renames oldName to newName inside root.
	Move(oldName, newName string) error
	// Times returns the creation (birth, when available) and modification times.
	Times(name string) (created, modified time.Time, err error)
	// Touch sets the modification time of name.
	Touch(name string, t time.Time) error
	// Stat returns file info for name.
	Stat(name string) (os.FileInfo, error)
}

var _ Provider = (*FS)(nil)
