// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var (
	// ErrServerPathNotSet is returned when no server command is known for a language.
	ErrServerPathNotSet = errors.New("language server path not set")

	// ErrInvalidConfig is returned when the configuration fails validation.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// envPrefix prefixes every environment override.
const envPrefix = "LSPGRAPH_"

var validate = validator.New(validator.WithRequiredStructEnabled())

// DefaultPath returns the configuration file location.
//
// LSPGRAPH_CONFIG wins; otherwise the file lives in the user config
// directory, e.g. ~/.config/lspgraph/config.yaml on Linux.
func DefaultPath() (string, error) {
	if p := os.Getenv(envPrefix + "CONFIG"); p != "" {
		return expandPath(p), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user config directory: %w", err)
	}
	return filepath.Join(dir, "lspgraph", "config.yaml"), nil
}

// Load reads the configuration at path, creating it with defaults on first
// use.
//
// Description:
//
//	Values absent from the file keep their defaults. Environment
//	overrides are applied after the file and before validation.
//
// Outputs:
//
//	Config - The validated configuration
//	error - Read or parse failures, or ErrInvalidConfig
func Load(path string) (Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := createDefault(path); err != nil {
			return Config{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read the config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if cfg.Servers == nil {
		cfg.Servers = map[string]string{}
	}
	cfg.Log.Dir = expandPath(cfg.Log.Dir)

	applyEnv(&cfg, os.Environ())

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save validates cfg and writes it to path.
func Save(path string, cfg Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks the struct constraints of cfg.
func Validate(cfg Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.ActualTag(), fe.Value()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// applyEnv overlays LSPGRAPH_* variables and OTEL_EXPORTER_OTLP_ENDPOINT.
// LSPGRAPH_SERVER_<LANG> sets the server for a lowercased language.
// Unparseable numbers are ignored.
func applyEnv(cfg *Config, environ []string) {
	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if key == "OTEL_EXPORTER_OTLP_ENDPOINT" && val != "" {
			cfg.Telemetry.OTLPEndpoint = val
			continue
		}
		name, ok := strings.CutPrefix(key, envPrefix)
		if !ok {
			continue
		}

		if language, ok := strings.CutPrefix(name, "SERVER_"); ok && language != "" {
			cfg.Servers[strings.ToLower(language)] = val
			continue
		}

		switch name {
		case "WORKERS":
			if n, err := strconv.Atoi(val); err == nil {
				cfg.Analysis.Workers = n
			}
		case "REQUESTS_PER_SECOND":
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				cfg.Analysis.RequestsPerSecond = f
			}
		case "INCOMING_CALLS":
			if b, err := strconv.ParseBool(val); err == nil {
				cfg.Analysis.IncomingCalls = b
			}
		case "LOG_LEVEL":
			cfg.Log.Level = strings.ToLower(val)
		case "LOG_FORMAT":
			cfg.Log.Format = strings.ToLower(val)
		case "LOG_DIR":
			cfg.Log.Dir = expandPath(val)
		case "TRACE_EXPORTER":
			cfg.Telemetry.TraceExporter = val
		case "METRIC_EXPORTER":
			cfg.Telemetry.MetricExporter = val
		case "METRICS_ADDR":
			cfg.Telemetry.MetricsAddr = val
		}
	}
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
