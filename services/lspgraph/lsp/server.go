// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

// shutdownGrace is how long the process may take to exit on its own.
const shutdownGrace = 5 * time.Second

// =============================================================================
// SERVER STATE
// =============================================================================

// ServerState represents the lifecycle state of an LSP server.
type ServerState int

const (
	// ServerStateUninitialized is the initial state before Start is called.
	ServerStateUninitialized ServerState = iota

	// ServerStateStarting means the server process is starting.
	ServerStateStarting

	// ServerStateReady means the server is initialized and ready for requests.
	ServerStateReady

	// ServerStateStopping means the server is shutting down.
	ServerStateStopping

	// ServerStateStopped means the server has terminated.
	ServerStateStopped
)

// String returns a human-readable state name.
func (s ServerState) String() string {
	names := []string{"uninitialized", "starting", "ready", "stopping", "stopped"}
	if int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// =============================================================================
// SERVER
// =============================================================================

// ServerOptions tunes the spawned client.
type ServerOptions struct {
	// QueueSize bounds the client's outbound queue.
	QueueSize int

	// Logger receives server and client diagnostics.
	Logger *slog.Logger
}

// Server represents a running LSP server process.
//
// Description:
//
//	Launches the server as a child process, connects a Client to its
//	stdio pipes, and performs the initialize handshake. Server stderr is
//	forwarded to the logger at debug level.
//
// Thread Safety:
//
//	Safe for concurrent use after Start() returns successfully.
type Server struct {
	config   LanguageConfig
	rootPath string
	opts     ServerOptions
	logger   *slog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	client       *Client
	capabilities ServerCapabilities

	state   ServerState
	stateMu sync.RWMutex

	cancel context.CancelFunc
}

// NewServer creates a new server instance (not started).
//
// Inputs:
//
//	config - Language configuration for the server
//	rootPath - Absolute path to the workspace root
//	opts - Client tuning; zero value selects defaults
//
// Outputs:
//
//	*Server - The configured (but not started) server
func NewServer(config LanguageConfig, rootPath string, opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:   config,
		rootPath: rootPath,
		opts:     opts,
		logger:   logger.With(slog.String("language", config.Language)),
		state:    ServerStateUninitialized,
	}
}

// Start starts the LSP server process and initializes it.
//
// Description:
//
//	Starts the server process, connects the client, and performs the
//	initialize handshake. On success, the client is ready for requests.
//
// Inputs:
//
//	ctx - Context for the handshake. The process itself outlives ctx.
//
// Outputs:
//
//	error - Non-nil if the server failed to start or initialize
//
// Errors:
//
//	ErrServerNotInstalled - Server binary not found
//	ErrServerAlreadyStarted - Start called on a non-uninitialized server
//	ErrInitializeFailed - LSP initialize handshake failed
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}

	s.stateMu.Lock()
	if s.state != ServerStateUninitialized {
		s.stateMu.Unlock()
		return ErrServerAlreadyStarted
	}
	s.state = ServerStateStarting
	s.stateMu.Unlock()

	path, err := exec.LookPath(s.config.Command)
	if err != nil {
		s.setState(ServerStateStopped)
		recordServerSpawn(ctx, s.config.Language, false)
		s.logger.Warn("LSP server not installed", slog.String("command", s.config.Command))
		return fmt.Errorf("%w: %s", ErrServerNotInstalled, s.config.Command)
	}

	s.logger.Info("Starting LSP server",
		slog.String("command", path),
		slog.String("root_path", s.rootPath),
	)

	// Process context is independent of the caller's context.
	procCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.cmd = exec.CommandContext(procCtx, path, s.config.Args...)
	s.cmd.Dir = s.rootPath

	s.stdin, err = s.cmd.StdinPipe()
	if err != nil {
		s.cleanup()
		return fmt.Errorf("stdin pipe: %w", err)
	}
	s.stdout, err = s.cmd.StdoutPipe()
	if err != nil {
		s.cleanup()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := s.cmd.StderrPipe()
	if err != nil {
		s.cleanup()
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := s.cmd.Start(); err != nil {
		s.cleanup()
		recordServerSpawn(ctx, s.config.Language, false)
		return fmt.Errorf("start process: %w", err)
	}
	recordServerSpawn(ctx, s.config.Language, true)
	go s.forwardStderr(stderr)

	s.client = NewClient(NewTransport(s.stdout, s.stdin), ClientConfig{
		QueueSize: s.opts.QueueSize,
		Logger:    s.logger,
	})

	result, err := s.client.Initialize(ctx, s.rootPath, s.config.InitializationOptions)
	if err != nil {
		_ = s.Shutdown(context.Background())
		return err
	}
	s.capabilities = result.Capabilities

	s.setState(ServerStateReady)
	s.logger.Info("LSP server ready",
		slog.Bool("document_symbol", s.capabilities.HasDocumentSymbolProvider()),
		slog.Bool("call_hierarchy", s.capabilities.HasCallHierarchyProvider()),
		slog.Bool("implementation", s.capabilities.HasImplementationProvider()),
	)
	return nil
}

// forwardStderr logs server stderr line by line until the pipe closes.
func (s *Server) forwardStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.logger.Debug("LSP server stderr", slog.String("line", scanner.Text()))
	}
}

// Shutdown gracefully shuts down the server.
//
// Description:
//
//	Sends shutdown and exit messages to the server, then waits for the
//	process to terminate. If the server doesn't exit in time, it is killed.
//
// Thread Safety:
//
//	Safe for concurrent use. Multiple calls are idempotent.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stateMu.Lock()
	if s.state == ServerStateStopped || s.state == ServerStateStopping {
		s.stateMu.Unlock()
		return nil
	}
	s.state = ServerStateStopping
	s.stateMu.Unlock()

	s.logger.Info("Shutting down LSP server")
	defer s.cleanup()

	var shutdownErr error
	if s.client != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownGrace)
		shutdownErr = s.client.Shutdown(shutdownCtx)
		cancel()
		if shutdownErr != nil {
			s.logger.Warn("LSP shutdown handshake failed", slog.String("error", shutdownErr.Error()))
		}
	}

	// Close stdin to signal EOF to server
	if s.stdin != nil {
		_ = s.stdin.Close()
	}

	if s.cmd != nil && s.cmd.Process != nil {
		done := make(chan error, 1)
		go func() { done <- s.cmd.Wait() }()

		select {
		case <-time.After(shutdownGrace):
			s.logger.Warn("LSP server did not exit, killing it")
			_ = s.cmd.Process.Kill()
			<-done
		case <-done:
		}
	}
	return shutdownErr
}

// cleanup releases resources and sets state to stopped.
func (s *Server) cleanup() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	s.setState(ServerStateStopped)
}

// =============================================================================
// ACCESSORS
// =============================================================================

// State returns the current server state.
func (s *Server) State() ServerState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Client returns the connected client. Nil before Start.
func (s *Server) Client() *Client {
	return s.client
}

// Capabilities returns what the server advertised during initialize.
func (s *Server) Capabilities() ServerCapabilities {
	return s.capabilities
}

// Language returns the language this server handles.
func (s *Server) Language() string {
	return s.config.Language
}

func (s *Server) setState(state ServerState) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}
