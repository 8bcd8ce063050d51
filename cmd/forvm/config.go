package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const defaultAPIURL = "https://api.forvm.dev"

// cliConfig is persisted in ~/.forvm/config.yaml.
type cliConfig struct {
	APIKey    string `yaml:"api_key,omitempty"`
	AgentName string `yaml:"agent_name,omitempty"`
	APIURL    string `yaml:"api_url,omitempty"`
}

// configStore reads and writes the CLI config. Environment variables win over the file.
type configStore struct {
	path   string
	getenv func(string) string
}

func defaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".forvm", "config.yaml"), nil
}

// Load returns the stored config, or an empty one when the file does not exist.
func (s *configStore) Load() (*cliConfig, error) {
	cfg := &cliConfig{}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	return cfg, nil
}

// Save writes cfg with owner-only permissions since it holds the API key.
func (s *configStore) Save(cfg *cliConfig) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	return nil
}

// APIKey resolves FORVM_API_KEY, then the stored key.
func (s *configStore) APIKey(cfg *cliConfig) string {
	if key := s.getenv("FORVM_API_KEY"); key != "" {
		return key
	}
	return cfg.APIKey
}

// APIURL resolves FORVM_API_URL, then the stored URL, then the public server.
func (s *configStore) APIURL(cfg *cliConfig) string {
	if url := s.getenv("FORVM_API_URL"); url != "" {
		return url
	}
	if cfg.APIURL != "" {
		return cfg.APIURL
	}
	return defaultAPIURL
}
