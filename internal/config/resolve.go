package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	defaultBind      = "127.0.0.1:8000"
	defaultThreads   = 1
	defaultRateLimit = "10/1m"
)

// Flags mirrors the daemon's CLI surface. ScriptsDir is the required
// positional argument; everything else is an optional flag.
type Flags struct {
	ScriptsDir    string
	BehindProxies int
	Bind          string
	Jobs          int
	NoHealth      bool
	Recursive     bool
	RateLimit     string
	Env           []string // "KEY=VALUE" entries, repeatable
	ConfigPath    string
}

// Resolved is the fully merged configuration the supervisor runs with.
type Resolved struct {
	ScriptsDir    string
	Recursive     bool
	BehindProxies int
	Bind          string
	HealthEnabled bool
	RateLimit     string
	Threads       int
	Env           map[string]string
}

// Changed reports whether a named flag was explicitly set on the command
// line, matching cobra's pflag.Changed semantics. Passing a func instead
// of a set lets callers wire this directly to *cobra.Command's
// Flags().Changed.
type Changed func(flagName string) bool

// Resolve merges defaults, an optional TOML config file, and CLI flag
// overrides, with CLI flags winning whenever the operator explicitly set
// them. Precedence: defaults < config file < explicit CLI flags.
func Resolve(flags Flags, changed Changed) (*Resolved, error) {
	r := &Resolved{
		Bind:          defaultBind,
		Threads:       defaultThreads,
		RateLimit:     defaultRateLimit,
		HealthEnabled: true,
		Env:           map[string]string{},
	}

	if flags.ConfigPath != "" {
		file, err := LoadFile(flags.ConfigPath)
		if err != nil {
			return nil, err
		}
		applyFile(r, file)
	}

	applyFlags(r, flags, changed)

	if r.ScriptsDir == "" {
		return nil, errors.New("a scripts directory is required")
	}
	abs, err := filepath.Abs(r.ScriptsDir)
	if err != nil {
		return nil, fmt.Errorf("resolving scripts directory: %w", err)
	}
	r.ScriptsDir = abs

	for _, kv := range flags.Env {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid -e value %q: expected KEY=VALUE", kv)
		}
		r.Env[key] = value
	}

	return r, nil
}

func applyFile(r *Resolved, file *File) {
	if file.Scripts.Path != "" {
		r.ScriptsDir = file.Scripts.Path
	}
	if file.Scripts.Recursive {
		r.Recursive = true
	}
	if file.HTTP.Bind != "" {
		r.Bind = file.HTTP.Bind
	}
	if file.HTTP.BehindProxies != 0 {
		r.BehindProxies = file.HTTP.BehindProxies
	}
	if file.HTTP.RateLimit != "" {
		r.RateLimit = file.HTTP.RateLimit
	}
	if file.HTTP.HealthEndpoint != nil {
		r.HealthEnabled = *file.HTTP.HealthEndpoint
	}
	if file.Jobs.Threads != 0 {
		r.Threads = file.Jobs.Threads
	}
	for k, v := range file.Env {
		r.Env[k] = v
	}
}

func applyFlags(r *Resolved, flags Flags, changed Changed) {
	if flags.ScriptsDir != "" {
		r.ScriptsDir = flags.ScriptsDir
	}
	if changed == nil {
		return
	}
	if changed("behind-proxies") {
		r.BehindProxies = flags.BehindProxies
	}
	if changed("bind") {
		r.Bind = flags.Bind
	}
	if changed("jobs") {
		r.Threads = flags.Jobs
	}
	if changed("no-health") {
		r.HealthEnabled = !flags.NoHealth
	}
	if changed("recursive") {
		r.Recursive = flags.Recursive
	}
	if changed("rate-limit") {
		r.RateLimit = flags.RateLimit
	}
}
