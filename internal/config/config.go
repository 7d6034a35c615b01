package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/alicommit-malp/rtun/internal/reversessh"
)

// Config holds the on-disk settings for the rtun CLI.
type Config struct {
	LogLevel string          `yaml:"log_level"`
	Tunnel   reversessh.Config `yaml:"tunnel"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Tunnel: reversessh.Config{
			ServerPort: 22,
			Username:   "tunnel",
			LocalAddr:  "127.0.0.1",
			LocalPort:  8080,
		},
	}
}

// Dir returns the platform-specific config directory.
//
//	Linux:   /etc/rtun
//	Windows: C:\ProgramData\rtun
//
// Override with the RTUN_CONFIG_DIR environment variable.
func Dir() string {
	if d := os.Getenv("RTUN_CONFIG_DIR"); d != "" {
		return d
	}
	if runtime.GOOS == "windows" {
		return `C:\ProgramData\rtun`
	}
	return "/etc/rtun"
}

// FilePath returns the full path to the config file.
func FilePath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Load reads the YAML config file from the platform-specific path. If the
// file does not exist, it returns the default configuration.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(FilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the platform-specific YAML file.
func Save(cfg *Config) error {
	if err := os.MkdirAll(Dir(), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(FilePath(), data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}
