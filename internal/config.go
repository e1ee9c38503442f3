package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/vellum/internal/notefile"
	"github.com/starford/vellum/internal/notestore"
	"github.com/starford/vellum/internal/sidecar"
	"github.com/starford/vellum/internal/watcher"
)

// Log formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// indexFileName is the SQLite sidecar created inside the notes directory
// when no index path is configured. The leading dot keeps it out of scans.
const indexFileName = ".vellum.db"

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Notes   NotesConfig       `yaml:"notes"`
	Watcher WatcherConfig     `yaml:"watcher"`
	Sidecar SidecarConfig     `yaml:"sidecar"`
	Trash   TrashConfig       `yaml:"trash"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Notes.Validate(); err != nil {
		return err
	}
	if err := c.Watcher.Validate(); err != nil {
		return err
	}
	return c.Sidecar.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel  slog.Level `yaml:"log_level"`
	LogFormat string     `yaml:"log_format"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.LogFormat == "" {
		c.LogFormat = LogFormatJSON
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.LogFormat, validation.In(LogFormatJSON, LogFormatText)),
	)
}

// NotesConfig describes the notes directory and which files are notes.
type NotesConfig struct {
	Dir        string   `yaml:"dir"`
	Extensions []string `yaml:"extensions"`
	Primary    string   `yaml:"primary"`
	Ignore     []string `yaml:"ignore"`
}

// Validate validates the notes configuration.
func (c *NotesConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.Extensions, validation.Required),
		validation.Field(&c.Primary, validation.Required, validation.By(func(any) error {
			if !c.HasExtension(c.Primary) {
				return fmt.Errorf("%q is not whitelisted", c.Primary)
			}
			return nil
		})),
	); err != nil {
		return err
	}
	if _, err := c.Formats(); err != nil {
		return fmt.Errorf("notes: %w", err)
	}
	return nil
}

// Formats builds the note format whitelist.
func (c *NotesConfig) Formats() (*notefile.Formats, error) {
	return notefile.NewFormats(c.Extensions, c.Primary, c.Ignore)
}

// HasExtension reports whether ext (with or without dot) is whitelisted.
func (c *NotesConfig) HasExtension(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	return slices.ContainsFunc(c.Extensions, func(e string) bool {
		return strings.ToLower(strings.TrimPrefix(e, ".")) == ext
	})
}

// WatcherConfig holds debounce timings.
type WatcherConfig struct {
	Debounce time.Duration `yaml:"debounce"`
	Settle   time.Duration `yaml:"settle"`
}

// Validate validates the watcher configuration.
func (c *WatcherConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(10*time.Millisecond)),
		validation.Field(&c.Settle, validation.Min(time.Duration(0))),
	)
}

// SidecarConfig selects where tags, pins and ids are stored.
type SidecarConfig struct {
	Backend   sidecar.Kind `yaml:"backend"`
	IndexPath string       `yaml:"index_path"`
}

// Validate validates the sidecar configuration.
func (c *SidecarConfig) Validate() error {
	if c.Backend == "" {
		c.Backend = sidecar.KindAuto
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.In(sidecar.KindAuto, sidecar.KindXattr, sidecar.KindIndex)),
	)
}

// ResolveIndexPath returns the index path, defaulting to a dotfile inside
// the notes directory.
func (c *SidecarConfig) ResolveIndexPath(notesDir string) string {
	if c.IndexPath != "" {
		return c.IndexPath
	}
	return filepath.Join(notesDir, indexFileName)
}

// TrashConfig holds the trash root. Empty means the desktop trash.
type TrashConfig struct {
	Dir string `yaml:"dir"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel:  slog.LevelInfo,
			LogFormat: LogFormatJSON,
		},
		Notes: NotesConfig{
			Dir:        "./notes",
			Extensions: []string{"rtf", "md", "txt"},
			Primary:    "rtf",
			Ignore:     []string{".*", "*~"},
		},
		Watcher: WatcherConfig{
			Debounce: watcher.DefaultDebounce,
			Settle:   notestore.DefaultSettleDelay,
		},
		Sidecar: SidecarConfig{
			Backend: sidecar.KindAuto,
		},
	}
}
