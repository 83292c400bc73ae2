// Package config loads the TOML configuration file and merges it with
// CLI flag overrides into the resolved settings the supervisor runs
// with.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// HTTPSection is the [http] table.
type HTTPSection struct {
	BehindProxies  int    `toml:"behind-proxies"`
	Bind           string `toml:"bind"`
	HealthEndpoint *bool  `toml:"health-endpoint"`
	RateLimit      string `toml:"rate-limit"`
}

// ScriptsSection is the [scripts] table.
type ScriptsSection struct {
	Path      string `toml:"path"`
	Recursive bool   `toml:"recursive"`
}

// JobsSection is the [jobs] table.
type JobsSection struct {
	Threads int `toml:"threads"`
}

// File is the on-disk TOML configuration.
type File struct {
	HTTP    HTTPSection       `toml:"http"`
	Scripts ScriptsSection    `toml:"scripts"`
	Jobs    JobsSection       `toml:"jobs"`
	Env     map[string]string `toml:"env"`
}

// LoadFile reads and parses a TOML configuration file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from an operator-supplied CLI flag
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return &f, nil
}
