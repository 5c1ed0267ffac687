// Package config loads the application's YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the application configuration. Missing fields fall back to
// per-user defaults.
type Config struct {
	DBPath        string `yaml:"db_path"`
	RecordingsDir string `yaml:"recordings_dir"`
	ListenAddr    string `yaml:"listen_addr"`
	LanguageTag   string `yaml:"language_tag"`

	Backup struct {
		Bucket     string `yaml:"bucket"`
		AWSProfile string `yaml:"aws_profile"`
		AWSRegion  string `yaml:"aws_region"`
	} `yaml:"backup"`
}

// Path returns the config file location. AUDIONOTES_CONFIG overrides the
// per-user config directory.
func Path() (string, error) {
	if custom := os.Getenv("AUDIONOTES_CONFIG"); custom != "" {
		return custom, nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return "", fmt.Errorf("determine config location: %w", homeErr)
		}
		return filepath.Join(home, ".audionotes", "config.yaml"), nil
	}
	return filepath.Join(configDir, "audionotes", "config.yaml"), nil
}

// Load reads the config file, applying defaults for anything unset. A missing
// file yields pure defaults rather than an error.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyDefaults(cfg)
	cfg.DBPath = expandHome(cfg.DBPath)
	cfg.RecordingsDir = expandHome(cfg.RecordingsDir)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.DBPath == "" {
		cfg.DBPath = "~/.audionotes/notes.db"
	}
	if cfg.RecordingsDir == "" {
		cfg.RecordingsDir = "~/.audionotes/recordings"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8787"
	}
	if cfg.LanguageTag == "" {
		cfg.LanguageTag = "en-US"
	}
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
