package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/chatline/internal/chat"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.DefaultProfile = "work"
	cfg.User = chat.User{ID: "u1", Username: "me", DisplayName: "Me", Presence: chat.Online}
	cfg.Typing.Window = Duration{5 * time.Second}
	cfg.Source.Kind = SourceSQLite
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultProfile != "work" {
		t.Errorf("DefaultProfile = %q, want %q", loaded.DefaultProfile, "work")
	}
	if loaded.User != cfg.User {
		t.Errorf("User = %+v, want %+v", loaded.User, cfg.User)
	}
	if loaded.Typing.Window.Duration != 5*time.Second {
		t.Errorf("Typing.Window = %v, want 5s", loaded.Typing.Window)
	}
	if loaded.Source.Kind != SourceSQLite {
		t.Errorf("Source.Kind = %q, want sqlite", loaded.Source.Kind)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "default_profile = \"x\"\n\n[auto_reply]\nenabled = false\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AutoReply.Enabled {
		t.Error("AutoReply.Enabled = true, want false from file")
	}
	if cfg.Typing.Window.Duration != 3*time.Second {
		t.Errorf("Typing.Window = %v, want default 3s", cfg.Typing.Window)
	}
	if cfg.Source.Kind != SourceFixtures {
		t.Errorf("Source.Kind = %q, want default fixtures", cfg.Source.Kind)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad source", "[source]\nkind = \"redis\"\n", "source.kind"},
		{"bad realtime scheme", "[realtime]\nurl = \"http://x\"\n", "realtime.url"},
		{"bad duration", "[typing]\nwindow = \"soon\"\n", "duration"},
		{"zero window", "[typing]\nwindow = \"0s\"\n", "typing.window"},
		{"inverted delays", "[auto_reply]\nmin_delay = \"2s\"\nmax_delay = \"1s\"\n", "auto_reply"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load() expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}

	cfg, err := LoadOrDefault("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.DefaultProfile != "main" {
		t.Errorf("DefaultProfile = %q, want main", cfg.DefaultProfile)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestRealtimeKind(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"", RealtimeLoopback},
		{"ws://localhost:8080/socket", RealtimeWebSocket},
		{"wss://chat.example.com/socket", RealtimeWebSocket},
		{"redis://localhost:6379/0", RealtimeRedis},
		{"rediss://user:pw@cache:6380", RealtimeRedis},
		{"http://localhost", ""},
	}
	for _, tt := range tests {
		if got := (Realtime{URL: tt.url}).Kind(); got != tt.want {
			t.Errorf("Kind(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
