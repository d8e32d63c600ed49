// servers/simulator/main_test.go
package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mwiater/sweepwatch/internal/simulator"
)

func TestLoadConfigDefaultsWhenMissing(t *testing.T) {
	oldCwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldCwd) })

	cfg, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatalf("loadConfig error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
}

func TestLoadConfigExplicitMissingFails(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Fatal("expected error for an explicit missing file")
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.yml")
	if err := os.WriteFile(path, []byte("port: 9999\nlevel_duration_ms: 100\ntick_ms: 10\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig error: %v", err)
	}
	if cfg.Port != 9999 || cfg.LevelDurationMillis != 100 || cfg.TickMillis != 10 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.BasePath != "/api/v1/benchmark" {
		t.Fatalf("expected default base path, got %q", cfg.BasePath)
	}
}

func TestApplyFlagsOnlyChanged(t *testing.T) {
	cmd := newRootCmd()
	if err := cmd.ParseFlags([]string{"--port", "9100", "--fail-at-level", "8"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cfg := simulator.Config{Port: 8080, APIKey: "from-file"}
	applyFlags(cmd, &cfg)
	if cfg.Port != 9100 || cfg.FailAtLevel != 8 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.APIKey != "from-file" {
		t.Fatalf("unset flag replaced the config value: %q", cfg.APIKey)
	}
}
