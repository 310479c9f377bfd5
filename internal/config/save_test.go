package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveCreatesFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	cfg := &GrantwriterConfig{
		Providers: map[string]ProviderConfig{
			"test": {Type: "command", Command: "test-cmd"},
		},
		Agents: map[string]AgentConfig{
			"rfp-analysis": {Provider: "test", Model: "test-model"},
		},
		Breaker: BreakerConfig{Timeout: Duration{90 * time.Second}},
	}

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Config file contains invalid JSON: %v", err)
	}
	breaker := raw["breaker"].(map[string]any)
	if breaker["timeout"] != "1m30s" {
		t.Errorf("timeout written as %v, want \"1m30s\"", breaker["timeout"])
	}
}

func TestSaveCreatesParentDir(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "deep", "config.json")

	if err := Save(DefaultConfig(), path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Config file was not created: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	original := DefaultConfig()
	original.Pipeline.Process = "hierarchical"
	original.Pipeline.Deadline = Duration{15 * time.Minute}
	original.Agents["quality-review"] = AgentConfig{Provider: "anthropic", Persona: "A strict reviewer."}

	if err := Save(original, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load("", path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Pipeline.Process != "hierarchical" || loaded.Pipeline.Deadline.Duration != 15*time.Minute {
		t.Errorf("pipeline = %+v", loaded.Pipeline)
	}
	if got := loaded.Agents["quality-review"]; got.Provider != "anthropic" || got.Persona != "A strict reviewer." {
		t.Errorf("quality-review agent = %+v", got)
	}
	if len(loaded.Pipeline.Tasks) != len(original.Pipeline.Tasks) {
		t.Errorf("tasks = %d, want %d", len(loaded.Pipeline.Tasks), len(original.Pipeline.Tasks))
	}
	if loaded.Retry != original.Retry {
		t.Errorf("retry = %+v, want %+v", loaded.Retry, original.Retry)
	}
}
