package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	LogLevel string `yaml:"log_level"`
	Server   struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Completion struct {
		Provider    string   `yaml:"provider"`
		BaseURL     string   `yaml:"base_url"`
		Model       string   `yaml:"model"`
		Temperature *float64 `yaml:"temperature"`
		APIKey      string   `yaml:"api_key"`
		Commit      string   `yaml:"commit"`
	} `yaml:"completion"`
	Ark struct {
		APIKey  string `yaml:"api_key"`
		Model   string `yaml:"model"`
		BaseURL string `yaml:"base_url"`
		Region  string `yaml:"region"`
	} `yaml:"ark"`
	Session struct {
		Timezone      string `yaml:"timezone"`
		SeedWelcome   bool   `yaml:"seed_welcome"`
		RelativeDates bool   `yaml:"relative_dates"`
	} `yaml:"session"`
}

// DefaultConfigPath is ~/.ester/config.yaml.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".ester", "config.yaml")
}

// loadFile returns nil, nil when the file does not exist.
func loadFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}
