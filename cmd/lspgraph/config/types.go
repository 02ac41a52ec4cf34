// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and persists the lspgraph configuration file.
package config

import (
	"runtime"
	"time"
)

// Config is the on-disk configuration.
type Config struct {
	// Servers maps a language to the server command line that replaces the
	// built-in default, e.g. go: "gopls serve".
	Servers map[string]string `yaml:"servers" validate:"dive,keys,required,endkeys,required"`

	Analysis  AnalysisConfig  `yaml:"analysis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

type AnalysisConfig struct {
	Workers           int           `yaml:"workers" validate:"min=1,max=256"`
	QueueSize         int           `yaml:"queue_size" validate:"min=1"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"min=0"`
	IncomingCalls     bool          `yaml:"incoming_calls"`
	SettleDelay       time.Duration `yaml:"settle_delay" validate:"min=0"`
	Include           []string      `yaml:"include"`
	Exclude           []string      `yaml:"exclude"`
}

type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	MetricsAddr    string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"oneof=auto text json"`
	Dir    string `yaml:"dir"`
}

// DefaultConfig returns the configuration written on first use.
func DefaultConfig() Config {
	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}
	return Config{
		Servers: map[string]string{},
		Analysis: AnalysisConfig{
			Workers:   workers,
			QueueSize: 64,
			Include:   []string{},
			Exclude:   []string{},
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "none",
			OTLPEndpoint:   "localhost:4317",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// ServerFor returns the configured command line for language.
func (c Config) ServerFor(language string) (string, bool) {
	cmd, ok := c.Servers[language]
	return cmd, ok && cmd != ""
}
