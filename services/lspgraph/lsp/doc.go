// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lsp drives an external language server over its stdio channel.
//
// The package owns everything below the analysis layer: the base-protocol
// framing, the JSON-RPC message kinds, the asynchronous client that issues
// requests without waiting on their answers, and the subprocess lifecycle.
//
// # Architecture
//
//	┌──────────────┐  Call()   ┌──────────────┐  writer goroutine  ┌────────────┐
//	│ orchestrator │ ────────► │ outbound chan │ ─────────────────► │  stdin     │
//	│              │           └──────────────┘                    │            │
//	│              │ Responses()┌──────────────┐  reader goroutine  │  language  │
//	│              │ ◄───────── │ response chan │ ◄───────────────── │  server    │
//	└──────────────┘            └──────────────┘                    └────────────┘
//
// # Components
//
//   - Transport: Content-Length framing and message decoding
//   - Client: correlation ids, pending table, handshake, typed requests
//   - Server: process launch and graceful shutdown
//   - Registry: language → server command defaults
//
// # Thread Safety
//
// Transport writes and Client calls are safe for concurrent use. Transport
// reads and the response channel each have exactly one consumer.
//
// # Example
//
//	srv := lsp.NewServer(cfg, root, nil)
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//	defer srv.Shutdown(context.Background())
//
//	id, err := srv.Client().RequestSymbols(ctx, "/repo/main.go", tag)
package lsp
