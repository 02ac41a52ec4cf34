// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/lspgraph/cmd/lspgraph/config"
	"github.com/AleutianAI/lspgraph/pkg/logging"
)

// withConfigPath points the --config flag at a temporary file.
func withConfigPath(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	old := configPath
	configPath = path
	t.Cleanup(func() { configPath = old })
	return path
}

func TestConfigCommands(t *testing.T) {
	path := withConfigPath(t)
	var out bytes.Buffer

	configPathCmd.SetOut(&out)
	require.NoError(t, runConfigPath(configPathCmd, nil))
	assert.Equal(t, path+"\n", out.String())

	out.Reset()
	configSetServerCmd.SetOut(&out)
	require.NoError(t, runConfigSetServer(configSetServerCmd, []string{"Go", "/opt/gopls serve"}))
	assert.Equal(t, "go: /opt/gopls serve\n", out.String())

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/gopls serve", cfg.Servers["go"])

	out.Reset()
	configShowCmd.SetOut(&out)
	require.NoError(t, runConfigShow(configShowCmd, nil))
	assert.Contains(t, out.String(), "go: /opt/gopls serve")

	err = runConfigSetServer(configSetServerCmd, []string{"rust", "  "})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestLoadConfig_GlobalFlags(t *testing.T) {
	withConfigPath(t)
	oldLevel, oldFormat := logLevel, logFormat
	t.Cleanup(func() { logLevel, logFormat = oldLevel, oldFormat })

	logLevel, logFormat = "DEBUG", "json"
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	logFormat = "yaml"
	_, err = loadConfig()
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestNewLogger(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Log.Level = "warn"
	cfg.Log.Format = string(logging.FormatText)

	logger, err := newLogger(cfg)
	require.NoError(t, err)
	defer logger.Close()
	assert.NotNil(t, logger.Slog())

	cfg.Log.Level = "chatty"
	_, err = newLogger(cfg)
	assert.ErrorIs(t, err, logging.ErrUnknownLevel)
}
