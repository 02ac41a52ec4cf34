// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/lspgraph/services/lspgraph/lsp"
)

func TestResponseLogLevel(t *testing.T) {
	tests := []struct {
		name string
		err  *lsp.LSPError
		want slog.Level
	}{
		{"no error object", nil, slog.LevelWarn},
		{"method not found", &lsp.LSPError{Code: -32601}, slog.LevelWarn},
		{"internal error", &lsp.LSPError{Code: -32603}, slog.LevelWarn},
		{"request cancelled", &lsp.LSPError{Code: -32800}, slog.LevelDebug},
		{"content modified", &lsp.LSPError{Code: -32801}, slog.LevelDebug},
		{"server not initialized", &lsp.LSPError{Code: -32802}, slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, responseLogLevel(tt.err))
		})
	}
}
