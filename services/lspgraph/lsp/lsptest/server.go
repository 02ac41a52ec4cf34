// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lsptest provides an in-memory language server for tests.
//
// The server speaks the real framing over io.Pipe, so clients under test
// exercise the same Transport they use against a subprocess.
package lsptest

import (
	"encoding/json"
	"errors"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/AleutianAI/lspgraph/services/lspgraph/lsp"
)

// Handler answers one request. A nil *lsp.ResponseError means success.
type Handler func(params json.RawMessage) (any, *lsp.ResponseError)

// Server is a scripted language server.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Server struct {
	mu            sync.Mutex
	handlers      map[string]Handler
	requests      []*lsp.Request
	notifications []*lsp.Notification
	replies       []*lsp.Response
	silent        map[string]bool

	// Jitter, when positive, answers every request from its own goroutine
	// after a random delay up to Jitter, so responses arrive out of order.
	Jitter time.Duration

	transport *lsp.Transport
	clientTr  *lsp.Transport

	toServerR, fromServerR *io.PipeReader
	toServerW, fromServerW *io.PipeWriter

	wg   sync.WaitGroup
	done chan struct{}
}

// New creates a server with default initialize and shutdown handlers.
// Call Start before connecting a client.
func New() *Server {
	toServerR, toServerW := io.Pipe()
	fromServerR, fromServerW := io.Pipe()

	s := &Server{
		handlers:    make(map[string]Handler),
		silent:      make(map[string]bool),
		transport:   lsp.NewTransport(toServerR, fromServerW),
		clientTr:    lsp.NewTransport(fromServerR, toServerW),
		toServerR:   toServerR,
		toServerW:   toServerW,
		fromServerR: fromServerR,
		fromServerW: fromServerW,
		done:        make(chan struct{}),
	}

	s.Handle(lsp.MethodInitialize, func(json.RawMessage) (any, *lsp.ResponseError) {
		return lsp.InitializeResult{
			Capabilities: lsp.ServerCapabilities{
				DocumentSymbolProvider: true,
				CallHierarchyProvider:  true,
				ImplementationProvider: true,
			},
			ServerInfo: &lsp.ServerInfo{Name: "lsptest"},
		}, nil
	})
	s.Handle(lsp.MethodShutdown, func(json.RawMessage) (any, *lsp.ResponseError) {
		return nil, nil
	})
	return s
}

// Handle registers h for method, replacing any previous handler.
func (s *Server) Handle(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Ignore makes the server never answer method.
func (s *Server) Ignore(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silent[method] = true
}

// ClientTransport returns the client end of the connection.
func (s *Server) ClientTransport() *lsp.Transport {
	return s.clientTr
}

// Start begins serving in the background.
func (s *Server) Start() {
	go s.serve()
}

// Done is closed once the serve loop returned.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Close tears down both pipes.
func (s *Server) Close() {
	_ = s.toServerW.Close()
	_ = s.toServerR.Close()
	_ = s.fromServerW.Close()
	_ = s.fromServerR.Close()
}

// Notify sends a server notification to the client.
func (s *Server) Notify(method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return s.transport.Write(&lsp.Notification{JSONRPC: lsp.JSONRPCVersion, Method: method, Params: raw})
}

// SendRequest sends a server-initiated request to the client.
func (s *Server) SendRequest(id lsp.ID, method string) error {
	return s.transport.Write(&lsp.Request{JSONRPC: lsp.JSONRPCVersion, ID: id, Method: method})
}

// SendResponse writes an arbitrary response, such as one for an id the
// client never issued.
func (s *Server) SendResponse(resp *lsp.Response) error {
	resp.JSONRPC = lsp.JSONRPCVersion
	return s.transport.Write(resp)
}

// Hangup closes the server's output, which the client observes as a clean
// end of stream.
func (s *Server) Hangup() {
	_ = s.fromServerW.Close()
}

// Requests returns a copy of the requests received so far.
func (s *Server) Requests() []*lsp.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*lsp.Request(nil), s.requests...)
}

// Notifications returns a copy of the notifications received so far.
func (s *Server) Notifications() []*lsp.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*lsp.Notification(nil), s.notifications...)
}

// Replies returns the responses the client sent to server requests.
func (s *Server) Replies() []*lsp.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*lsp.Response(nil), s.replies...)
}

// serve reads client messages until the stream ends or exit arrives.
func (s *Server) serve() {
	defer close(s.done)
	defer func() {
		s.wg.Wait()
		_ = s.fromServerW.Close()
		// Keep late client writes from blocking on the unbuffered pipe.
		go func() { _, _ = io.Copy(io.Discard, s.toServerR) }()
	}()

	for {
		msg, err := s.transport.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.mu.Lock()
				s.notifications = append(s.notifications, &lsp.Notification{Method: lsp.MethodExit})
				s.mu.Unlock()
			}
			return
		}

		switch m := msg.(type) {
		case *lsp.Request:
			s.mu.Lock()
			s.requests = append(s.requests, m)
			h, ok := s.handlers[m.Method]
			silent := s.silent[m.Method]
			s.mu.Unlock()
			if silent {
				continue
			}
			if s.Jitter > 0 {
				s.wg.Add(1)
				delay := time.Duration(rand.Int63n(int64(s.Jitter)))
				go func() {
					defer s.wg.Done()
					time.Sleep(delay)
					s.answer(m, h, ok)
				}()
				continue
			}
			s.answer(m, h, ok)
		case *lsp.Notification:
			s.mu.Lock()
			s.notifications = append(s.notifications, m)
			s.mu.Unlock()
		case *lsp.Response:
			s.mu.Lock()
			s.replies = append(s.replies, m)
			s.mu.Unlock()
		}
	}
}

// answer writes the response for req.
func (s *Server) answer(req *lsp.Request, h Handler, ok bool) {
	resp := &lsp.Response{JSONRPC: lsp.JSONRPCVersion, ID: req.ID}
	if !ok {
		resp.Error = &lsp.ResponseError{Code: -32601, Message: "method not found: " + req.Method}
		_ = s.transport.Write(resp)
		return
	}

	result, rerr := h(req.Params)
	if rerr != nil {
		resp.Error = rerr
		_ = s.transport.Write(resp)
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		resp.Error = &lsp.ResponseError{Code: -32603, Message: err.Error()}
	} else {
		resp.Result = raw
	}
	_ = s.transport.Write(resp)
}
