package main

import (
	"path/filepath"
	"testing"

	"github.com/banshee-data/arlabel/internal/config"
)

// TestFlagDefaults verifies the flags the deployment scripts rely on keep
// their defaults.
func TestFlagDefaults(t *testing.T) {
	if *listen != ":8080" {
		t.Errorf("expected listen default :8080, got %q", *listen)
	}
	if *configPath != config.DefaultConfigPath {
		t.Errorf("expected config default %q, got %q", config.DefaultConfigPath, *configPath)
	}
	if *replayPath != "" || *scenePath != "" || *dbPath != "" {
		t.Error("replay, scene and db flags should default to empty")
	}
	if *verbose {
		t.Error("verbose should default to false")
	}
}

func TestJournalPath(t *testing.T) {
	cfg := config.EmptyPipelineConfig()
	defer func() { *dbPath = "" }()

	tests := []struct {
		flag string
		want string
	}{
		{"", "arlabel.db"},
		{"none", ""},
		{"/var/lib/arlabel/journal.db", "/var/lib/arlabel/journal.db"},
	}
	for _, tt := range tests {
		*dbPath = tt.flag
		if got := journalPath(cfg); got != tt.want {
			t.Errorf("journalPath with -db=%q = %q, want %q", tt.flag, got, tt.want)
		}
	}
}

func TestJournalPath_DisabledFromEnv(t *testing.T) {
	defer func() { *dbPath = "" }()

	cfg := config.EmptyPipelineConfig()
	lookup := func(k string) (string, bool) {
		if k == config.EnvPrefix+"JOURNAL_PATH" {
			return "none", true
		}
		return "", false
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatal(err)
	}

	if got := journalPath(cfg); got != "" {
		t.Errorf("journalPath with ARLABEL_JOURNAL_PATH=none = %q, want empty", got)
	}

	*dbPath = "/tmp/override.db"
	if got := journalPath(cfg); got != "/tmp/override.db" {
		t.Errorf("-db should override the disabled journal, got %q", got)
	}
}

func TestSampleFilesLoad(t *testing.T) {
	defer func() { *scenePath, *replayPath = "", "" }()

	*scenePath = filepath.Join("..", "..", "config", "scene.json")
	if _, err := loadScene(); err != nil {
		t.Fatalf("failed to load sample scene: %v", err)
	}

	*replayPath = filepath.Join("..", "..", "config", "replay.jsonl")
	d, closeFn, err := newDetector(config.EmptyPipelineConfig())
	if err != nil {
		t.Fatalf("failed to load sample replay: %v", err)
	}
	defer closeFn()
	if d == nil {
		t.Fatal("expected a replay detector")
	}
}

func TestNewDetector_NoneConfigured(t *testing.T) {
	d, closeFn, err := newDetector(config.EmptyPipelineConfig())
	if err != nil {
		t.Fatal(err)
	}
	closeFn()
	if d != nil {
		t.Errorf("expected no detector, got %T", d)
	}
}
