package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds user-level configuration loaded from ~/.config/nota/config.yaml.
type Config struct {
	DBPath           string `yaml:"db_path"`
	Listen           string `yaml:"listen"`
	LongDocThreshold int    `yaml:"long_doc_threshold"`
	LogLevel         string `yaml:"log_level"`
}

func defaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, ".config", "nota", "config.yaml"), nil
}

// stateDir returns ~/.local/state/nota, creating it if needed.
func stateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	dir := filepath.Join(home, ".local", "state", "nota")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create state dir: %w", err)
	}
	return dir, nil
}

// loadConfig reads the config file at path and returns the parsed config
// with defaults applied. If the file does not exist, defaults are returned
// with no error. An empty path means the default location.
func loadConfig(path string) (*Config, error) {
	cfg := &Config{
		Listen:           "127.0.0.1:4455",
		LongDocThreshold: 2000,
		LogLevel:         "info",
	}

	if path == "" {
		var err error
		path, err = defaultConfigPath()
		if err != nil {
			return nil, err
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return applyDefaults(cfg)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return applyDefaults(cfg)
}

// applyDefaults re-applies defaults for fields left empty in the file.
func applyDefaults(cfg *Config) (*Config, error) {
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:4455"
	}
	if cfg.LongDocThreshold == 0 {
		cfg.LongDocThreshold = 2000
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.DBPath == "" {
		dir, err := stateDir()
		if err != nil {
			return nil, err
		}
		cfg.DBPath = filepath.Join(dir, "nota.db")
	}
	return cfg, nil
}
