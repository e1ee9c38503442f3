package notefile

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultTitle replaces titles that sanitize to nothing.
	DefaultTitle = "Untitled"
	// maxStemBytes keeps stem + suffix + extension under the usual 255-byte
	// filename limit.
	maxStemBytes = 200
	// maxNameAttempts bounds the search for a free file name.
	maxNameAttempts = 1000

	suffixLayout = "2006-01-02 150405"
	unsafeChars  = `/\:*?"<>|`
	placeholder  = '-'
)

// Sanitize turns a title into a filesystem-safe file stem.
func Sanitize(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range title {
		if strings.ContainsRune(unsafeChars, r) || unicode.IsControl(r) || r == utf8.RuneError {
			b.WriteRune(placeholder)
			continue
		}
		b.WriteRune(r)
	}
	s := trimStem(b.String())
	if len(s) > maxStemBytes {
		cut := maxStemBytes
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = trimStem(s[:cut])
	}
	if s == "" {
		return DefaultTitle
	}
	return s
}

func trimStem(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '.'
	})
}

// candidateName returns the attempt-th file name tried for stem: the plain
// name first, then a timestamp suffix, then the suffix plus a counter.
func candidateName(stem, ext, stamp string, attempt int) string {
	switch attempt {
	case 0:
		return stem + ext
	case 1:
		return fmt.Sprintf("%s %s%s", stem, stamp, ext)
	default:
		return fmt.Sprintf("%s %s-%d%s", stem, stamp, attempt, ext)
	}
}
