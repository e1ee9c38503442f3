package notestore

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/starford/vellum/internal/models"
)

// Note returns a copy of note id.
func (s *Store) Note(id string) (models.Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.notes[i].Clone(), true
	}
	return models.Note{}, false
}

// NoteAtPath returns a copy of the note stored at path.
func (s *Store) NoteAtPath(path string) (models.Note, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return models.Note{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notes {
		if s.notes[i].Location == abs {
			return s.notes[i].Clone(), true
		}
	}
	return models.Note{}, false
}

// Notes returns a copy of the list in display order.
func (s *Store) Notes() []models.Note {
	return s.filter(nil)
}

func (s *Store) filter(keep func(n *models.Note) bool) []models.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Note, 0, len(s.notes))
	for i := range s.notes {
		if keep == nil || keep(&s.notes[i]) {
			out = append(out, s.notes[i].Clone())
		}
	}
	return out
}

// FilterByTitlePrefix returns notes whose title starts with prefix,
// ignoring case.
func (s *Store) FilterByTitlePrefix(prefix string) []models.Note {
	prefix = strings.ToLower(prefix)
	return s.filter(func(n *models.Note) bool {
		return strings.HasPrefix(strings.ToLower(n.Title), prefix)
	})
}

// FilterByTitle returns notes whose title contains substr, ignoring case.
func (s *Store) FilterByTitle(substr string) []models.Note {
	substr = strings.ToLower(substr)
	return s.filter(func(n *models.Note) bool {
		return strings.Contains(strings.ToLower(n.Title), substr)
	})
}

// FilterByTag returns notes carrying tag.
func (s *Store) FilterByTag(tag string) []models.Note {
	return s.filter(func(n *models.Note) bool { return n.HasTag(tag) })
}

// AllTags returns the sorted union of every note's tags.
func (s *Store) AllTags() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	tags := []string{}
	for i := range s.notes {
		tags = append(tags, s.notes[i].Tags...)
	}
	slices.Sort(tags)
	return slices.Compact(tags)
}
