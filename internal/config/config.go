// Package config loads the relay core's small runtime configuration
// (session TTL and capacity bound) from YAML or environment variables,
// trimmed down from this codebase's much larger config loader to the
// handful of fields this module actually has.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of the relay config file.
type File struct {
	SessionTTL        string `yaml:"session_ttl"`
	MaxActiveSessions int    `yaml:"max_active_sessions"`
	SweepInterval     string `yaml:"sweep_interval"`
}

// Resolved is File parsed into usable Go types.
type Resolved struct {
	SessionTTL        time.Duration
	MaxActiveSessions int
	SweepInterval     time.Duration
}

// Load reads path (if non-empty) and overlays RELAY_SESSION_TTL,
// RELAY_MAX_ACTIVE_SESSIONS, and RELAY_SWEEP_INTERVAL environment
// variables on top of it, env taking precedence, matching this
// codebase's file-then-env-override convention.
func Load(path string) (Resolved, error) {
	var f File
	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304
		if err != nil {
			return Resolved{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &f); err != nil {
			return Resolved{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(&f)
	return resolve(f)
}

func applyEnvOverrides(f *File) {
	if v := os.Getenv("RELAY_SESSION_TTL"); v != "" {
		f.SessionTTL = v
	}
	if v := os.Getenv("RELAY_SWEEP_INTERVAL"); v != "" {
		f.SweepInterval = v
	}
	if v := os.Getenv("RELAY_MAX_ACTIVE_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.MaxActiveSessions = n
		}
	}
}

func resolve(f File) (Resolved, error) {
	var r Resolved
	var err error

	if f.SessionTTL != "" {
		if r.SessionTTL, err = time.ParseDuration(f.SessionTTL); err != nil {
			return Resolved{}, fmt.Errorf("config: session_ttl: %w", err)
		}
	}
	if f.SweepInterval != "" {
		if r.SweepInterval, err = time.ParseDuration(f.SweepInterval); err != nil {
			return Resolved{}, fmt.Errorf("config: sweep_interval: %w", err)
		}
	}
	r.MaxActiveSessions = f.MaxActiveSessions
	return r, nil
}
