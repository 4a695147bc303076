package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pagedrive.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	if c.Root != "/" || c.CacheSize != 10 || c.StylesheetTimeout != 2*time.Second {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.Forms.Mode != FormModeOn || c.History.Store != StoreMemory {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
root: /app
cache_size: 3
stylesheet_timeout: 500ms
fetch:
  timeout: 5s
  user_agent: test-agent
forms:
  mode: optin
  allow_no_redirect: true
history:
  store: sqlite
  path: /tmp/history.db
`)
	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if c.Root != "/app" || c.CacheSize != 3 {
		t.Fatalf("root/cache: %+v", c)
	}
	if c.StylesheetTimeout != 500*time.Millisecond || c.Fetch.Timeout != 5*time.Second {
		t.Fatalf("durations: %v %v", c.StylesheetTimeout, c.Fetch.Timeout)
	}
	if c.Fetch.UserAgent != "test-agent" || c.Fetch.MaxBody != 10<<20 {
		t.Fatalf("fetch: %+v", c.Fetch)
	}
	if c.Forms.Mode != FormModeOptIn || !c.Forms.AllowNoRedirect {
		t.Fatalf("forms: %+v", c.Forms)
	}
	if c.History.Store != StoreSQLite || c.History.Path != "/tmp/history.db" {
		t.Fatalf("history: %+v", c.History)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"form mode", "forms:\n  mode: sometimes\n", "forms.mode"},
		{"store", "history:\n  store: redis\n", "history.store"},
		{"sqlite path", "history:\n  store: sqlite\n", "history.path"},
		{"yaml", "root: [\n", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
