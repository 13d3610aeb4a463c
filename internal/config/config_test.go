package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	if len(cfg.Teams) != 4 {
		t.Fatalf("expected 4 default teams, got %d", len(cfg.Teams))
	}
	if got := cfg.Checklists["dismissal"]["it"]; len(got) != 2 || got[0] != "System access revoked" {
		t.Fatalf("unexpected it dismissal checklist %v", got)
	}
	if _, ok := cfg.Checklists["dismissal"]["development"]; ok {
		t.Fatalf("development should have no dismissal checklist")
	}
	if cfg.MaxAttachmentBytes() != 10<<20 {
		t.Fatalf("max bytes = %d", cfg.MaxAttachmentBytes())
	}
	if cfg.Timeouts.Store() != 10*time.Second || cfg.Timeouts.Notify() != 5*time.Second {
		t.Fatalf("unexpected timeouts %+v", cfg.Timeouts)
	}
}

func TestValidateRejectsBrokenCatalogs(t *testing.T) {
	cases := map[string]string{
		"no teams":     "teams: []\n",
		"dup team":     "teams:\n  - {id: a, name: A}\n  - {id: a, name: B}\n",
		"unknown type": "teams:\n  - {id: a, name: A}\nchecklists:\n  hire:\n    a: [x]\n",
		"unknown team": "teams:\n  - {id: a, name: A}\nchecklists:\n  dismissal:\n    b: [x]\n",
		"dup item":     "teams:\n  - {id: a, name: A}\nchecklists:\n  dismissal:\n    a: [x, x]\n",
		"bad backend":  "teams:\n  - {id: a, name: A}\nattachments:\n  backend: ftp\n",
		"s3 no bucket": "teams:\n  - {id: a, name: A}\nattachments:\n  backend: s3\n",
		"bad event":    "teams:\n  - {id: a, name: A}\nnotifications:\n  webhooks:\n    - url: http://x\n      events: [task.done]\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := FromYAML([]byte(raw)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadOptionalFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if len(cfg.Teams) != 4 {
		t.Fatalf("expected default config")
	}
	custom := "teams:\n  - {id: legal, name: Legal}\n"
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(custom), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err = Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Teams) != 1 || cfg.Teams[0].ID != "legal" {
		t.Fatalf("unexpected teams %+v", cfg.Teams)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "config init") {
		t.Fatalf("expected hint error, got %v", err)
	}
}
