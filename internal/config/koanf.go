// Voicelink - Resilient realtime clients for slide narration add-ins
// Copyright 2026 SlideVoice contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/slidevoice/voicelink

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/voicelink/config.yaml",
	"/etc/voicelink/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load builds the configuration from layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if present)
//  3. Environment variables: override any setting
//
// The result is validated before being returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// BRIDGE_ENDPOINT -> bridge.endpoint, TRACKER_HISTORY_CAP -> tracker.history_cap
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile locates the config file: CONFIG_PATH first, then the
// default search paths.
func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		return ""
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sections lists the env var prefixes that map to config sections.
var sections = map[string]bool{
	"backend": true,
	"bridge":  true,
	"tracker": true,
	"metrics": true,
	"logging": true,
}

// envTransformFunc maps environment variable names to koanf paths by
// splitting on the first underscore: BRIDGE_REQUEST_TIMEOUT becomes
// bridge.request_timeout. Variables outside the known sections are
// ignored so unrelated process environment never leaks into the config.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	section, rest, found := strings.Cut(key, "_")
	if !found || rest == "" || !sections[section] {
		return ""
	}
	return section + "." + rest
}
