package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/vellum/pkg/config"
)

func TestDefaultConfigValid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestNotesConfig_PrimaryMustBeWhitelisted(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Notes.Primary = "docx"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("primary outside the whitelist should fail")
	}
	if !strings.Contains(err.Error(), "not whitelisted") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNotesConfig_DirRequired(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Notes.Dir = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty notes dir should fail")
	}
}

func TestNotesConfig_HasExtension(t *testing.T) {
	cfg := NewDefaultConfig()
	if !cfg.Notes.HasExtension(".MD") || cfg.Notes.HasExtension("png") {
		t.Error("HasExtension mismatch")
	}
}

func TestWatcherConfig_DebounceFloor(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Watcher.Debounce = time.Millisecond
	if err := cfg.Validate(); err == nil {
		t.Fatal("debounce below 10ms should fail")
	}
}

func TestSidecarConfig(t *testing.T) {
	cfg := SidecarConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty backend should default: %v", err)
	}
	if cfg.Backend != "auto" {
		t.Errorf("backend = %q, want auto", cfg.Backend)
	}
	if got := cfg.ResolveIndexPath("/notes"); got != filepath.Join("/notes", ".vellum.db") {
		t.Errorf("index path = %q", got)
	}

	bad := SidecarConfig{Backend: "cloud"}
	if err := bad.Validate(); err == nil {
		t.Fatal("unknown backend should fail")
	}
}

func TestAppConfig_LogFormat(t *testing.T) {
	cfg := ApplicationConfig{}
	if err := cfg.Validate(); err != nil || cfg.LogFormat != LogFormatJSON {
		t.Fatalf("empty format should default to json: %v %q", err, cfg.LogFormat)
	}
	cfg.LogFormat = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("xml format should fail")
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("VELLUM_TEST_NOTES", "/srv/notes")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
app:
  log_level: debug
  log_format: text
notes:
  dir: ${VELLUM_TEST_NOTES}
  extensions: [md, txt]
  primary: ${VELLUM_TEST_PRIMARY:-md}
watcher:
  debounce: 200ms
sidecar:
  backend: index
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Notes.Dir != "/srv/notes" || cfg.Notes.Primary != "md" {
		t.Errorf("notes = %+v", cfg.Notes)
	}
	if cfg.Watcher.Debounce != 200*time.Millisecond {
		t.Errorf("debounce = %v", cfg.Watcher.Debounce)
	}
	if cfg.Watcher.Settle != 250*time.Millisecond {
		t.Errorf("settle default lost: %v", cfg.Watcher.Settle)
	}
	if cfg.App.LogLevel.String() != "DEBUG" {
		t.Errorf("log level = %v", cfg.App.LogLevel)
	}
}
