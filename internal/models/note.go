// Package models defines the domain types for Vellum.
package models

import (
	"slices"
	"strings"
	"time"

	"github.com/starford/vellum/internal/checksum"
)

// Note is one file in the notes directory.
type Note struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Location   string    `json:"location"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
	Tags       []string  `json:"tags"`
	Pinned     bool      `json:"pinned"`
}

// Clone returns a deep copy safe to hand out of the store.
func (n *Note) Clone() Note {
	c := *n
	c.Tags = slices.Clone(n.Tags)
	return c
}

// Checksum returns the hex SHA-256 of the note content.
func (n *Note) Checksum() string {
	return checksum.Sum([]byte(n.Content))
}

// HasTag reports whether the note carries tag (compared normalized).
func (n *Note) HasTag(tag string) bool {
	tag = normalizeTag(tag)
	return tag != "" && slices.Contains(n.Tags, tag)
}

// NormalizeTags trims, lower-cases, drops empties, dedupes and sorts.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = normalizeTag(t); t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func normalizeTag(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}
