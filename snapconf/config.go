// Package snapconf holds the snapshot subsystem's configuration: cookie
// version, verification toggles, diagnostic checking, and the
// compression algorithm used for extent-list and root pages.
package snapconf

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the flat configuration struct for a block object.
type Config struct {
	Version           uint8  `yaml:"version"`
	VerifyOnLoad      bool   `yaml:"verify_on_load"`
	VerifyOnUnload    bool   `yaml:"verify_on_unload"`
	CheckExtentLists  bool   `yaml:"check_extent_lists"`
	ExtentCompression string `yaml:"extent_compression"`
	MaxAddrCookie     int    `yaml:"max_addr_cookie"`
}

// Default returns the configuration used when none is supplied.
func Default() *Config {
	return &Config{
		Version:           1,
		VerifyOnLoad:      false,
		VerifyOnUnload:    false,
		CheckExtentLists:  false,
		ExtentCompression: "none",
		MaxAddrCookie:     256,
	}
}

// Validate checks the configuration is self-consistent.
func (c *Config) Validate() error {
	if c.Version == 0 {
		return fmt.Errorf("snapconf: version must be >= 1")
	}
	if c.MaxAddrCookie <= 0 {
		return fmt.Errorf("snapconf: max_addr_cookie must be positive")
	}
	switch c.ExtentCompression {
	case "none", "lz4", "snappy", "zstd":
	default:
		return fmt.Errorf("snapconf: unknown extent_compression %q", c.ExtentCompression)
	}
	return nil
}

// Load reads a YAML configuration file from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("snapconf: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("snapconf: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("snapconf: marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("snapconf: write %s: %w", path, err)
	}
	return nil
}
