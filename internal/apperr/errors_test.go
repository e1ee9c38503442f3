package apperr

import (
	"errors"
	"io/fs"
	"testing"
)

func TestErrorKindMatching(t *testing.T) {
	err := WriteFailure("/notes/a.rtf", fs.ErrPermission)

	if !errors.Is(err, ErrWrite) {
		t.Error("write failure should match ErrWrite")
	}
	if errors.Is(err, ErrRead) {
		t.Error("write failure should not match ErrRead")
	}
	if !errors.Is(err, fs.ErrPermission) {
		t.Error("cause should be reachable via errors.Is")
	}

	var e *Error
	if !errors.As(err, &e) || e.Path != "/notes/a.rtf" {
		t.Errorf("errors.As = %+v", e)
	}
}

func TestErrorMessage(t *testing.T) {
	err := RenameFailure("x.md", errors.New("boom"))
	if got := err.Error(); got != "rename x.md: boom" {
		t.Errorf("Error() = %q", got)
	}
}
