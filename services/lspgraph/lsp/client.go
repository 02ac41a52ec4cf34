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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// LSP method names issued by the client.
const (
	MethodInitialize     = "initialize"
	MethodInitialized    = "initialized"
	MethodShutdown       = "shutdown"
	MethodDocumentSymbol = "textDocument/documentSymbol"
	MethodOutgoingCalls  = "callHierarchy/outgoingCalls"
	MethodIncomingCalls  = "callHierarchy/incomingCalls"
	MethodImplementation = "textDocument/implementation"

	methodLogMessage  = "window/logMessage"
	methodShowMessage = "window/showMessage"
)

const (
	defaultQueueSize      = 64
	defaultResponseBuffer = 64

	// closeGrace bounds how long Close waits for the writer to flush.
	closeGrace = 2 * time.Second
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// QueueSize bounds the outbound queue. Callers block once it is full.
	// Default: 64
	QueueSize int

	// Logger receives client diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

// =============================================================================
// CLIENT
// =============================================================================

// Client issues LSP requests without waiting for their answers.
//
// Description:
//
//	A Client owns one reader goroutine, which is the only consumer of the
//	inbound stream, and one writer goroutine, which is the only producer
//	of the outbound stream. Calls assign ascending correlation ids, record
//	the caller's tag in the PendingTable and enqueue the framed request.
//	Responses are delivered in arrival order on Responses(); the consumer
//	maps them back to their tags with Resolve.
//
//	Requests sent by the server (capability registration, progress
//	tokens) are answered with a null result. Notifications are logged.
//
// Thread Safety:
//
//	Call, Notify and the typed Request* helpers are safe for concurrent
//	use. Responses() must have a single consumer.
type Client struct {
	transport *Transport
	logger    *slog.Logger
	pending   *PendingTable
	nextID    atomic.Int64

	outbound  chan Message
	responses chan *Response

	closing   chan struct{}
	closeOnce sync.Once

	done     chan struct{}
	failOnce sync.Once
	err      error

	writerDone chan struct{}
	readerDone chan struct{}
}

// NewClient creates a client over t and starts its reader and writer.
//
// Inputs:
//
//	t - The framed transport connected to the server
//	cfg - Queue size and logger; zero values select defaults
//
// Outputs:
//
//	*Client - A running client. Call Close (or Shutdown) to stop it.
func NewClient(t *Transport, cfg ClientConfig) *Client {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		transport:  t,
		logger:     logger,
		pending:    NewPendingTable(),
		outbound:   make(chan Message, cfg.QueueSize),
		responses:  make(chan *Response, defaultResponseBuffer),
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	go c.writeLoop()
	go c.readLoop()
	return c
}

// Responses returns the inbound response stream.
//
// The channel is closed when the inbound stream ends; Err then reports why.
func (c *Client) Responses() <-chan *Response {
	return c.responses
}

// Done is closed once the client failed or its inbound stream ended.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the client stopped, or nil while it is healthy.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Resolve removes and returns the tag recorded for a response id.
func (c *Client) Resolve(id ID) (any, bool) {
	if id.IsString() {
		return nil, false
	}
	return c.pending.Take(id.Num)
}

// Outstanding returns the number of requests still awaiting an answer.
func (c *Client) Outstanding() int {
	return c.pending.Len()
}

// =============================================================================
// ISSUING
// =============================================================================

// Call issues a request and returns its correlation id immediately.
//
// Description:
//
//	Allocates the next id, records tag under it, then enqueues the request.
//	The entry exists before the request can reach the server, so the
//	response can never arrive ahead of its tag. Blocks only while the
//	outbound queue is full.
//
// Inputs:
//
//	ctx - Bounds the wait for queue space
//	method - The LSP method
//	params - Parameters, JSON-encoded before enqueueing; nil is omitted
//	tag - Opaque context returned by Resolve
//
// Outputs:
//
//	int64 - The correlation id
//	error - ErrClientClosed, the client failure, or ctx.Err()
func (c *Client) Call(ctx context.Context, method string, params any, tag any) (int64, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return 0, err
	}

	id := c.nextID.Add(1)
	if !c.pending.Insert(id, tag) {
		return 0, fmt.Errorf("%w: %d", ErrDuplicateID, id)
	}

	req := &Request{
		JSONRPC: JSONRPCVersion,
		ID:      NumberID(id),
		Method:  method,
		Params:  raw,
	}
	if err := c.enqueue(ctx, req); err != nil {
		c.pending.Take(id)
		return 0, err
	}
	recordRequest(ctx, method)
	return id, nil
}

// Notify enqueues a notification.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	raw, err := marshalParams(params)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, &Notification{
		JSONRPC: JSONRPCVersion,
		Method:  method,
		Params:  raw,
	})
}

// RequestSymbols asks for the outline of the file at path.
func (c *Client) RequestSymbols(ctx context.Context, path string, tag any) (int64, error) {
	return c.Call(ctx, MethodDocumentSymbol, DocumentSymbolParams{
		TextDocument: TextDocumentIdentifier{URI: PathToURI(path)},
	}, tag)
}

// RequestOutgoingCalls asks which symbols sym, declared in uri, calls.
func (c *Client) RequestOutgoingCalls(ctx context.Context, uri string, sym DocumentSymbol, tag any) (int64, error) {
	return c.Call(ctx, MethodOutgoingCalls, CallHierarchyCallsParams{
		Item: NewCallHierarchyItem(uri, sym),
	}, tag)
}

// RequestIncomingCalls asks which symbols call sym, declared in uri.
func (c *Client) RequestIncomingCalls(ctx context.Context, uri string, sym DocumentSymbol, tag any) (int64, error) {
	return c.Call(ctx, MethodIncomingCalls, CallHierarchyCallsParams{
		Item: NewCallHierarchyItem(uri, sym),
	}, tag)
}

// RequestImplementations asks for the implementations of sym, declared in uri.
func (c *Client) RequestImplementations(ctx context.Context, uri string, sym DocumentSymbol, tag any) (int64, error) {
	return c.Call(ctx, MethodImplementation, TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
		Position:     sym.SelectionRange.Start,
	}, tag)
}

// enqueue hands msg to the writer goroutine.
func (c *Client) enqueue(ctx context.Context, msg Message) error {
	select {
	case <-c.closing:
		return ErrClientClosed
	default:
	}
	select {
	case <-c.done:
		return c.err
	default:
	}

	select {
	case c.outbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closing:
		return ErrClientClosed
	case <-c.done:
		return c.err
	}
}

// =============================================================================
// HANDSHAKE AND SHUTDOWN
// =============================================================================

// Initialize performs the blocking initialize handshake.
//
// Description:
//
//	Sends initialize, waits for its matching response, then sends the
//	initialized notification. No other call may be issued before this
//	returns.
//
// Inputs:
//
//	ctx - Bounds the whole handshake
//	rootPath - Absolute workspace root
//	initOptions - Server-specific initializationOptions, may be nil
//
// Outputs:
//
//	*InitializeResult - The server capabilities
//	error - ErrInitializeFailed wrapping the cause
func (c *Client) Initialize(ctx context.Context, rootPath string, initOptions any) (*InitializeResult, error) {
	ctx, span := tracer.Start(ctx, "Client.Initialize")
	defer span.End()
	start := time.Now()

	rootURI := PathToURI(rootPath)
	params := InitializeParams{
		ProcessID: os.Getpid(),
		RootURI:   rootURI,
		RootPath:  rootPath,
		Capabilities: ClientCapabilities{
			TextDocument: TextDocumentClientCapabilities{
				DocumentSymbol: &DocumentSymbolClientCapabilities{
					HierarchicalDocumentSymbolSupport: true,
				},
				CallHierarchy: &DynamicRegistrationCapabilities{},
				Implementation: &ImplementationClientCapabilities{
					LinkSupport: true,
				},
			},
		},
		InitializationOptions: initOptions,
		WorkspaceFolders: []WorkspaceFolder{
			{URI: rootURI, Name: filepath.Base(rootPath)},
		},
	}

	id, err := c.Call(ctx, MethodInitialize, params, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: initialize request: %v", ErrInitializeFailed, err)
	}
	resp, err := c.await(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitializeFailed, err)
	}
	if err := resp.AsError(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitializeFailed, err)
	}

	var result InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("%w: parse initialize result: %v", ErrInitializeFailed, err)
	}

	if err := c.Notify(ctx, MethodInitialized, struct{}{}); err != nil {
		return nil, fmt.Errorf("%w: initialized notification: %v", ErrInitializeFailed, err)
	}
	recordHandshake(ctx, time.Since(start))
	return &result, nil
}

// Shutdown sends shutdown, waits for its answer, sends exit and closes
// the client. The exit notification is sent even if shutdown failed.
func (c *Client) Shutdown(ctx context.Context) error {
	var errs []error

	id, err := c.Call(ctx, MethodShutdown, nil, nil)
	if err != nil {
		errs = append(errs, fmt.Errorf("shutdown request: %w", err))
	} else {
		resp, err := c.await(ctx, id)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("shutdown response: %w", err))
		case resp.AsError() != nil:
			errs = append(errs, resp.AsError())
		}
	}

	if err := c.Notify(ctx, MethodExit, nil); err != nil {
		errs = append(errs, fmt.Errorf("exit notification: %w", err))
	}
	c.Close()
	return errors.Join(errs...)
}

// Close stops the writer after flushing queued messages. It returns once
// the writer exits, the stream fails, or closeGrace elapses, whichever
// comes first. It does not wait for the reader, which keeps discarding
// responses until the server closes its output.
//
// Thread Safety:
//
//	Safe for concurrent use. Multiple calls are idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closing)
	})
	timer := time.NewTimer(closeGrace)
	defer timer.Stop()
	select {
	case <-c.writerDone:
	case <-c.done:
	case <-timer.C:
		c.logger.Warn("LSP writer did not stop in time", slog.Duration("grace", closeGrace))
	}
}

// await consumes responses until the one for id arrives.
// Used only while no concurrent consumer is running.
func (c *Client) await(ctx context.Context, id int64) (*Response, error) {
	defer c.pending.Take(id)
	for {
		select {
		case resp, ok := <-c.responses:
			if !ok {
				if err := c.Err(); err != nil {
					return nil, err
				}
				return nil, ErrStreamClosed
			}
			if !resp.ID.IsString() && resp.ID.Num == id {
				return resp, nil
			}
			c.logger.Warn("Dropping unexpected response during synchronous wait",
				slog.String("id", resp.ID.String()),
				slog.Int64("awaiting", id),
			)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// =============================================================================
// GOROUTINES
// =============================================================================

// fail records the first terminal error and releases waiters.
func (c *Client) fail(err error) {
	c.failOnce.Do(func() {
		c.err = err
		close(c.done)
	})
}

// writeLoop is the only writer of the outbound stream.
func (c *Client) writeLoop() {
	defer close(c.writerDone)
	for {
		select {
		case msg := <-c.outbound:
			if err := c.transport.Write(msg); err != nil {
				c.fail(err)
				return
			}
		case <-c.closing:
			c.flush()
			return
		case <-c.done:
			return
		}
	}
}

// flush writes whatever is still queued, best effort.
func (c *Client) flush() {
	for {
		select {
		case msg := <-c.outbound:
			if err := c.transport.Write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

// readLoop is the only reader of the inbound stream.
func (c *Client) readLoop() {
	defer close(c.readerDone)
	defer close(c.responses)

	for {
		msg, err := c.transport.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.fail(ErrStreamClosed)
			} else {
				recordMalformedFrame()
				c.logger.Error("LSP transport failed", slog.String("error", err.Error()))
				c.fail(err)
			}
			return
		}

		switch m := msg.(type) {
		case *Response:
			select {
			case c.responses <- m:
			case <-c.closing:
				// Nobody consumes after Close. Keep reading so the server
				// never blocks on its output while the writer flushes.
				c.logger.Debug("Dropping response after close", slog.String("id", m.ID.String()))
			}
		case *Notification:
			c.handleNotification(m)
		case *Request:
			c.replyToServer(m)
		}
	}
}

// handleNotification logs server notifications.
func (c *Client) handleNotification(n *Notification) {
	switch n.Method {
	case methodLogMessage, methodShowMessage:
		var params LogMessageParams
		if err := json.Unmarshal(n.Params, &params); err == nil {
			c.logger.Debug("LSP server message",
				slog.Int("type", params.Type),
				slog.String("message", params.Message),
			)
		}
	default:
		c.logger.Debug("Ignoring LSP notification", slog.String("method", n.Method))
	}
}

// replyToServer answers a server-initiated request with a null result.
func (c *Client) replyToServer(req *Request) {
	c.logger.Debug("Answering server request",
		slog.String("method", req.Method),
		slog.String("id", req.ID.String()),
	)
	resp := &Response{
		JSONRPC: JSONRPCVersion,
		ID:      req.ID,
		Result:  json.RawMessage("null"),
	}
	// The writer may be blocked behind a full queue; never stall the reader.
	go func() {
		_ = c.enqueue(context.Background(), resp)
	}()
}
