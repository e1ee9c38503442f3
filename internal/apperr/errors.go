// Package apperr defines the error kinds surfaced by the note store.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrDirectoryNotAccessible = errors.New("directory not accessible")
	ErrTooManyDuplicates      = errors.New("too many duplicate names")
)

// Op names the file operation that failed.
type Op string

const (
	OpRead   Op = "read"
	OpWrite  Op = "write"
	OpDelete Op = "delete"
	OpRename Op = "rename"
)

// Kind sentinels for use with errors.Is against an *Error.
var (
	ErrRead   = &Error{Op: OpRead}
	ErrWrite  = &Error{Op: OpWrite}
	ErrDelete = &Error{Op: OpDelete}
	ErrRename = &Error{Op: OpRename}
)

// Error is a failed file operation on a single note path.
type Error struct {
	Op   Op
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s failed", e.Op, e.Path)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a kind sentinel with the same Op.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Path == "" && t.Err == nil && t.Op == e.Op
}

func ReadFailure(path string, err error) error {
	return &Error{Op: OpRead, Path: path, Err: err}
}

func WriteFailure(path string, err error) error {
	return &Error{Op: OpWrite, Path: path, Err: err}
}

func DeleteFailure(path string, err error) error {
	return &Error{Op: OpDelete, Path: path, Err: err}
}

func RenameFailure(path string, err error) error {
	return &Error{Op: OpRename, Path: path, Err: err}
}
