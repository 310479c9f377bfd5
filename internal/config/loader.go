package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Conventional locations, relative to the home directory and the working
// directory respectively.
const (
	dirName  = ".grantwriter"
	fileName = "config.json"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*GrantwriterConfig, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Merge global config if exists
	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	// Merge project config if exists (highest precedence)
	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.grantwriter/config.json
// Project: .grantwriter/config.json (relative to cwd)
func LoadDefault() (*GrantwriterConfig, error) {
	globalPath, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	return Load(globalPath, ProjectPath())
}

// GlobalPath returns the per-user config path.
func GlobalPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, dirName, fileName), nil
}

// ProjectPath returns the config path relative to the working directory.
func ProjectPath() string {
	return filepath.Join(dirName, fileName)
}

// MergeFile merges one more config file over cfg, as done for an explicit
// --config flag. Unlike the conventional paths, the file must exist.
func MergeFile(cfg *GrantwriterConfig, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return mergeConfigFile(cfg, path)
}

// mergeConfigFile reads a JSON config file and merges it into the base config.
// Missing files are silently skipped. Malformed JSON returns an error.
//
// Map entries (providers, agents) are replaced per key. Sections and fields
// the file omits keep their current value; a tasks list, when present,
// replaces the whole list.
func mergeConfigFile(base *GrantwriterConfig, path string) error {
	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Missing file is not an error
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	// Decode the maps separately so an entry replaces, rather than merges
	// into, the existing one. The tasks list is swapped out for the same
	// reason: decoding into a populated slice reuses its elements.
	var maps struct {
		Providers map[string]ProviderConfig `json:"providers"`
		Agents    map[string]AgentConfig    `json:"agents"`
	}
	if err := json.Unmarshal(data, &maps); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	providers, agents, tasks := base.Providers, base.Agents, base.Pipeline.Tasks
	base.Providers, base.Agents, base.Pipeline.Tasks = nil, nil, nil

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	err = dec.Decode(base)

	base.Providers, base.Agents = providers, agents
	if base.Pipeline.Tasks == nil {
		base.Pipeline.Tasks = tasks
	}
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	if base.Providers == nil {
		base.Providers = make(map[string]ProviderConfig)
	}
	if base.Agents == nil {
		base.Agents = make(map[string]AgentConfig)
	}

	// Merge providers
	for key, provider := range maps.Providers {
		base.Providers[key] = provider
	}

	// Merge agents
	for key, agent := range maps.Agents {
		base.Agents[key] = agent
	}

	return nil
}
