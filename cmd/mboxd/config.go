package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// Config is the on-disk daemon/tool configuration, loaded as JSON with
// comments (JSONC) so operators can annotate a deployed config in place.
type Config struct {
	Partition  string `json:"partition"`
	SidecarDB  string `json:"sidecar_db"`
	PoolSize   int    `json:"pool_size,omitempty"`
	LogLevel   string `json:"log_level,omitempty"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Partition: "./data",
		SidecarDB: "./mboxd.sidecar.db",
		PoolSize:  4,
		LogLevel:  "info",
	}
}

// LoadConfig reads and parses a JSONC config file at path, falling back to
// DefaultConfig when path is empty.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("mboxd: reading config %s: %w", path, err)
	}
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("mboxd: config %s is not valid JSONC: %w", path, err)
	}
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("mboxd: config %s: %w", path, err)
	}
	return cfg, nil
}
