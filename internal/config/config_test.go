package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.toml")
	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if exists {
		t.Error("missing file should report exists=false")
	}
	if resolved != path {
		t.Errorf("resolved path %q != %q", resolved, path)
	}
	if cfg.Engine.Device != "cpu" {
		t.Errorf("expected default device, got %q", cfg.Engine.Device)
	}
	if cfg.Progress.StdoutThrottleMillis != 500 {
		t.Errorf("expected default stdout throttle, got %d", cfg.Progress.StdoutThrottleMillis)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
session_dir = "` + filepath.ToSlash(filepath.Join(dir, "sessions")) + `"
output_dir = "` + filepath.ToSlash(filepath.Join(dir, "out")) + `"

[engine]
device = "cuda"
max_concurrent_jobs = 4

[metadata]
tool = "tone"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !exists {
		t.Error("config file should be detected")
	}
	if cfg.Engine.Device != "cuda" {
		t.Errorf("device override lost: %q", cfg.Engine.Device)
	}
	if cfg.Engine.MaxConcurrentJobs != 4 {
		t.Errorf("max jobs override lost: %d", cfg.Engine.MaxConcurrentJobs)
	}
	if cfg.Metadata.Tool != "tone" {
		t.Errorf("metadata tool override lost: %q", cfg.Metadata.Tool)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantSub string
	}{
		{"bad device", "[engine]\ndevice = \"tpu\"\n", "engine.device"},
		{"bad tool", "[metadata]\ntool = \"id3fix\"\n", "metadata.tool"},
		{"bad level", "[logging]\nlevel = \"trace\"\n", "logging.level"},
		{"bad format", "[logging]\nformat = \"xml\"\n", "logging.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, _, _, err := Load(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Errorf("error %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := WriteSample(path); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteSample(path); err == nil {
		t.Fatal("second write should fail")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[engine]") {
		t.Error("sample config missing engine section")
	}
}

func TestExpandPathTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}
	got, err := expandPath("~/books")
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if got != filepath.Join(home, "books") {
		t.Errorf("expandPath(~/books) = %q", got)
	}
}
