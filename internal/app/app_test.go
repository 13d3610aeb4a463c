package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"movetrack/internal/attachments"
	"movetrack/internal/config"
	"movetrack/internal/engine/auth"
	"movetrack/internal/repo"
)

func TestOpenWithDefaults(t *testing.T) {
	auth.BcryptCost = bcrypt.MinCost
	dir := t.TempDir()
	a, err := Open(context.Background(), Options{Workspace: dir})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()
	if len(a.Registry.Teams()) != 4 {
		t.Fatalf("expected default teams")
	}
	if _, ok := a.Attachments.(*attachments.LocalStore); !ok {
		t.Fatalf("expected local attachment store, got %T", a.Attachments)
	}
	if len(a.Dispatcher.Sinks) != 1 || a.Dispatcher.Sinks[0].Name() != "log" {
		t.Fatalf("expected only the log sink")
	}
	if err := a.SeedAdmin(context.Background(), "Root", "root@example.com", "root-password"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	n, err := repo.Repo{DB: a.DB}.CountUsers(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("expected seeded admin, got %d %v", n, err)
	}
}

func TestOpenWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yml")
	raw := "teams:\n  - {id: legal, name: Legal}\nnotifications:\n  log: false\n  webhooks:\n    - url: http://127.0.0.1:1/hook\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	a, err := Open(context.Background(), Options{Workspace: dir, ConfigPath: path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()
	if a.Registry.TeamName("legal") != "Legal" {
		t.Fatalf("custom catalog not loaded")
	}
	if len(a.Dispatcher.Sinks) != 1 || a.Dispatcher.Sinks[0].Name() != "webhook" {
		t.Fatalf("expected webhook sink only")
	}
	if a.Dispatcher.Timeout != config.DefaultNotifyTimeout {
		t.Fatalf("unexpected notify timeout %s", a.Dispatcher.Timeout)
	}
}
