package notefile

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/starford/vellum/internal/rtf"
)

// Formats is the whitelist of note file extensions plus ignore globs.
// The primary format keeps the title out of the body; RTF as primary is
// the rich format whose plain-text writes get wrapped into a document.
type Formats struct {
	exts    []string // lower case, no dot
	primary string
	ignore  []string
}

// DefaultFormats is rtf (primary), md and txt, ignoring dotfiles and
// editor backups.
func DefaultFormats() *Formats {
	f, _ := NewFormats([]string{"rtf", "md", "txt"}, "rtf", []string{".*", "*~"})
	return f
}

// NewFormats validates and normalizes the whitelist.
func NewFormats(exts []string, primary string, ignore []string) (*Formats, error) {
	f := &Formats{primary: normExt(primary)}
	for _, e := range exts {
		if e = normExt(e); e != "" && !slices.Contains(f.exts, e) {
			f.exts = append(f.exts, e)
		}
	}
	if len(f.exts) == 0 {
		return nil, fmt.Errorf("notefile: no extensions configured")
	}
	if f.primary == "" {
		f.primary = f.exts[0]
	}
	if !slices.Contains(f.exts, f.primary) {
		return nil, fmt.Errorf("notefile: primary extension %q is not whitelisted", f.primary)
	}
	for _, p := range ignore {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("notefile: invalid ignore pattern %q", p)
		}
		f.ignore = append(f.ignore, p)
	}
	return f, nil
}

func normExt(e string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
}

// Extensions returns the whitelisted extensions without dots.
func (f *Formats) Extensions() []string { return slices.Clone(f.exts) }

// PrimaryExt returns the primary extension with its leading dot.
func (f *Formats) PrimaryExt() string { return "." + f.primary }

// Match reports whether the base name is a note file: whitelisted
// extension and no ignore pattern matches.
func (f *Formats) Match(name string) bool {
	name = filepath.Base(name)
	if !slices.Contains(f.exts, normExt(filepath.Ext(name))) {
		return false
	}
	return !f.Ignored(name)
}

// Ignored reports whether an ignore pattern matches the base name.
func (f *Formats) Ignored(name string) bool {
	name = filepath.Base(name)
	for _, p := range f.ignore {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

// IsPrimary reports whether name uses the primary format.
func (f *Formats) IsPrimary(name string) bool {
	return normExt(filepath.Ext(name)) == f.primary
}

// Encode returns the on-disk bytes of content for the file name.
func (f *Formats) Encode(name, content string) []byte {
	if normExt(filepath.Ext(name)) == "rtf" {
		return rtf.EncodeIfPlain(content)
	}
	return []byte(content)
}
