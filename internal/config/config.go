package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Theme        string         `yaml:"theme"`
	TrunkBranch  string         `yaml:"trunk_branch"`
	WorktreesDir string         `yaml:"worktrees_dir"`
	ContextDir   string         `yaml:"context_dir"`
	StrictBackup *bool          `yaml:"strict_backup"`
	Push         *bool          `yaml:"push"`
	AgentCommand string         `yaml:"agent_command"`
	MCP          MCPConfig      `yaml:"mcp"`
	Log          LogConfig      `yaml:"log"`
	Servers      []ServerConfig `yaml:"servers"`
}

type MCPConfig struct {
	Dir string `yaml:"dir"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type ServerConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Command     string `yaml:"command"`
}

func DefaultConfig() Config {
	return Config{
		Theme:        "mocha",
		WorktreesDir: "worktrees",
		ContextDir:   ".context",
		MCP:          MCPConfig{Dir: ".mcp"},
		Log:          LogConfig{Level: "info"},
	}
}

func Load() (Config, error) {
	return LoadFrom(getConfigPath())
}

func LoadFrom(configPath string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), err
	}

	if cfg.Theme == "" {
		cfg.Theme = "mocha"
	}
	if cfg.WorktreesDir == "" {
		cfg.WorktreesDir = "worktrees"
	}
	if cfg.ContextDir == "" {
		cfg.ContextDir = ".context"
	}
	if cfg.MCP.Dir == "" {
		cfg.MCP.Dir = ".mcp"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	return cfg, nil
}

// StrictBackupEnabled reports whether a failed pre-merge backup aborts
// the merge. Defaults to strict when the config does not say.
func (c *Config) StrictBackupEnabled() bool {
	if c.StrictBackup == nil {
		return true
	}
	return *c.StrictBackup
}

// PushEnabled reports whether merges push after completing. Defaults to
// on; `push: false` opts out, `--no-push` opts out per invocation.
func (c *Config) PushEnabled() bool {
	if c.Push == nil {
		return true
	}
	return *c.Push
}

func getConfigPath() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "devflow", "config.yaml")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "devflow", "config.yaml")
	}

	return filepath.Join(home, ".config", "devflow", "config.yaml")
}
