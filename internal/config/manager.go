package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// ProjectDir is the per-project directory under the sandbox root.
	ProjectDir = ".hearth"
	// ConfigFile is the file name used at both levels.
	ConfigFile = "config.json"
	// JournalFile is the default journal database inside ProjectDir.
	JournalFile = "journal.db"
)

// Manager loads and saves the layered configuration: the user file, then the
// project overlay, then HEARTH_* environment variables.
type Manager struct {
	configDir string
	getenv    func(string) string
}

// NewManager creates a manager rooted at the user config directory.
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}
	return NewManagerAt(filepath.Join(configDir, "hearth")), nil
}

// NewManagerAt uses dir instead of the user config directory.
func NewManagerAt(dir string) *Manager {
	return &Manager{configDir: dir, getenv: os.Getenv}
}

// GetConfigPath returns the absolute path to the user config.json.
func (m *Manager) GetConfigPath() string {
	return filepath.Join(m.configDir, ConfigFile)
}

// ProjectConfigPath returns the overlay path for a project root.
func ProjectConfigPath(root string) string {
	return filepath.Join(root, ProjectDir, ConfigFile)
}

// Load merges defaults, the user file, the project overlay for root (skipped
// when root is empty) and the environment, then validates the result.
// Missing files are not errors. Keys absent from a file keep the value from
// the layer below.
func (m *Manager) Load(root string) (*Config, error) {
	cfg := Default()

	if err := overlayFile(cfg, m.GetConfigPath()); err != nil {
		return nil, err
	}
	if root != "" {
		if err := overlayFile(cfg, ProjectConfigPath(root)); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg, m.getenv); err != nil {
		return nil, err
	}
	if cfg.Journal.Path == "" && root != "" {
		cfg.Journal.Path = filepath.Join(root, ProjectDir, JournalFile)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config json %s: %w", path, err)
	}
	return nil
}

// Save writes the user configuration with restricted permissions (0600); it
// may carry an API key.
func (m *Manager) Save(cfg *Config) error {
	return writeConfig(m.configDir, m.GetConfigPath(), cfg, 0600)
}

// SaveProject writes the project overlay under root.
func SaveProject(root string, cfg *Config) error {
	return writeConfig(filepath.Join(root, ProjectDir), ProjectConfigPath(root), cfg, 0644)
}

func writeConfig(dir, path string, cfg *Config, perm os.FileMode) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Exists checks if the user configuration file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.GetConfigPath())
	return !os.IsNotExist(err)
}
