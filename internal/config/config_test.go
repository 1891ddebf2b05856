package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
theme: latte
trunk_branch: develop
worktrees_dir: wt
context_dir: .ctx
strict_backup: false
push: true
agent_command: my-agent
mcp:
  dir: .servers
log:
  level: debug
servers:
  - name: context7
    description: Context7 (Documentation)
  - name: zen
    description: Zen Multi-Model
`)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	if cfg.Theme != "latte" {
		t.Errorf("Theme: got %q, want %q", cfg.Theme, "latte")
	}
	if cfg.TrunkBranch != "develop" {
		t.Errorf("TrunkBranch: got %q, want %q", cfg.TrunkBranch, "develop")
	}
	if cfg.WorktreesDir != "wt" {
		t.Errorf("WorktreesDir: got %q, want %q", cfg.WorktreesDir, "wt")
	}
	if cfg.ContextDir != ".ctx" {
		t.Errorf("ContextDir: got %q, want %q", cfg.ContextDir, ".ctx")
	}
	if cfg.StrictBackupEnabled() {
		t.Error("StrictBackupEnabled: got true, want false")
	}
	if !cfg.PushEnabled() {
		t.Error("PushEnabled: got false, want true")
	}
	if cfg.AgentCommand != "my-agent" {
		t.Errorf("AgentCommand: got %q, want %q", cfg.AgentCommand, "my-agent")
	}
	if cfg.MCP.Dir != ".servers" {
		t.Errorf("MCP.Dir: got %q, want %q", cfg.MCP.Dir, ".servers")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level: got %q, want %q", cfg.Log.Level, "debug")
	}
	if len(cfg.Servers) != 2 || cfg.Servers[0].Name != "context7" || cfg.Servers[1].Name != "zen" {
		t.Errorf("Servers: got %+v, want context7 and zen", cfg.Servers)
	}
}

func TestLoadFrom_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	def := DefaultConfig()
	if cfg.Theme != def.Theme {
		t.Errorf("Theme: got %q, want default %q", cfg.Theme, def.Theme)
	}
	if cfg.WorktreesDir != def.WorktreesDir {
		t.Errorf("WorktreesDir: got %q, want default %q", cfg.WorktreesDir, def.WorktreesDir)
	}
}

func TestLoadFrom_InvalidYAMLReturnsError(t *testing.T) {
	path := writeConfig(t, "theme: [unclosed\n")

	if _, err := LoadFrom(path); err == nil {
		t.Error("LoadFrom() = nil error for invalid yaml")
	}
}

func TestLoadFrom_EmptyFieldsFallBackToDefaults(t *testing.T) {
	path := writeConfig(t, "push: true\n")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Theme != "mocha" {
		t.Errorf("Theme: got %q, want %q (default)", cfg.Theme, "mocha")
	}
	if cfg.ContextDir != ".context" {
		t.Errorf("ContextDir: got %q, want %q (default)", cfg.ContextDir, ".context")
	}
	if cfg.MCP.Dir != ".mcp" {
		t.Errorf("MCP.Dir: got %q, want %q (default)", cfg.MCP.Dir, ".mcp")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level: got %q, want %q (default)", cfg.Log.Level, "info")
	}
}

func TestPush_DefaultsToOn(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.PushEnabled() {
		t.Error("PushEnabled: got false by default, want true")
	}
}

func TestPush_ExplicitFalseHonored(t *testing.T) {
	path := writeConfig(t, "push: false\n")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.PushEnabled() {
		t.Error("PushEnabled: got true with push: false, want false")
	}
}

func TestStrictBackup_DefaultsToStrict(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.StrictBackupEnabled() {
		t.Error("StrictBackupEnabled: got false by default, want true")
	}
}

func TestStrictBackup_ExplicitTrue(t *testing.T) {
	path := writeConfig(t, "strict_backup: true\n")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if !cfg.StrictBackupEnabled() {
		t.Error("StrictBackupEnabled: got false, want true")
	}
}

func TestDefaultConfig_LogLevel(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Log.Level != "info" {
		t.Errorf("DefaultConfig().Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
}
