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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// JSONRPCVersion is the JSON-RPC version used by LSP.
const JSONRPCVersion = "2.0"

// MethodExit is the notification that ends a session.
const MethodExit = "exit"

// =============================================================================
// JSON-RPC MESSAGE TYPES
// =============================================================================

// ID is a JSON-RPC request identifier.
//
// Requests issued by this client always carry numeric ids. Servers may
// use strings for their own requests; those are echoed back verbatim.
type ID struct {
	Num int64
	Str string
}

// NumberID returns a numeric identifier.
func NumberID(n int64) ID {
	return ID{Num: n}
}

// IsString reports whether the identifier was sent as a JSON string.
func (id ID) IsString() bool {
	return id.Str != ""
}

// String renders the identifier for logs.
func (id ID) String() string {
	if id.IsString() {
		return strconv.Quote(id.Str)
	}
	return strconv.FormatInt(id.Num, 10)
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.IsString() {
		return json.Marshal(id.Str)
	}
	return strconv.AppendInt(nil, id.Num, 10), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &id.Str)
	}
	return json.Unmarshal(data, &id.Num)
}

// Message is one of *Request, *Response or *Notification.
type Message interface {
	isMessage()
}

// Request represents a JSON-RPC request.
type Request struct {
	// JSONRPC is the protocol version, always "2.0".
	JSONRPC string `json:"jsonrpc"`

	// ID is the request identifier.
	ID ID `json:"id"`

	// Method is the method to invoke.
	Method string `json:"method"`

	// Params contains the encoded method parameters.
	Params json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC response.
type Response struct {
	// JSONRPC is the protocol version, always "2.0".
	JSONRPC string `json:"jsonrpc"`

	// ID is the request identifier this response corresponds to.
	ID ID `json:"id"`

	// Result contains the method result (mutually exclusive with Error).
	Result json.RawMessage `json:"result,omitempty"`

	// Error contains error information (mutually exclusive with Result).
	Error *ResponseError `json:"error,omitempty"`
}

// ResponseError represents a JSON-RPC error.
type ResponseError struct {
	// Code is the error code.
	Code int `json:"code"`

	// Message is a short description of the error.
	Message string `json:"message"`

	// Data contains additional error information.
	Data interface{} `json:"data,omitempty"`
}

// Notification represents a JSON-RPC notification (no ID, no response).
type Notification struct {
	// JSONRPC is the protocol version, always "2.0".
	JSONRPC string `json:"jsonrpc"`

	// Method is the method to invoke.
	Method string `json:"method"`

	// Params contains the encoded method parameters.
	Params json.RawMessage `json:"params,omitempty"`
}

func (*Request) isMessage()      {}
func (*Response) isMessage()     {}
func (*Notification) isMessage() {}

// wireMessage is the superset of all message fields, used for decoding.
type wireMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   *ResponseError  `json:"error"`
}

// DecodeMessage classifies a payload into one of the three message kinds.
//
// A method plus an id is a Request, a method alone is a Notification, and
// an id, result or error without a method is a Response.
func DecodeMessage(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	switch {
	case w.Method != "" && w.ID != nil:
		return &Request{JSONRPC: w.JSONRPC, ID: *w.ID, Method: w.Method, Params: w.Params}, nil
	case w.Method != "":
		return &Notification{JSONRPC: w.JSONRPC, Method: w.Method, Params: w.Params}, nil
	case w.ID != nil || w.Result != nil || w.Error != nil:
		resp := &Response{JSONRPC: w.JSONRPC, Result: w.Result, Error: w.Error}
		if w.ID != nil {
			resp.ID = *w.ID
		}
		return resp, nil
	default:
		return nil, fmt.Errorf("%w: payload is neither request, response nor notification", ErrMalformedFrame)
	}
}

// marshalParams encodes params, leaving nil params absent on the wire.
func marshalParams(params interface{}) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return data, nil
}

// =============================================================================
// TRANSPORT
// =============================================================================

// Transport frames messages over a byte stream pair.
//
// Description:
//
//	Implements the LSP base protocol: every record is a header block
//	terminated by a blank line, carrying at least Content-Length, followed
//	by exactly that many bytes of JSON payload.
//
// Thread Safety:
//
//	Write is safe for concurrent use. Read must be called from a single
//	goroutine.
type Transport struct {
	reader  *bufio.Reader
	writer  io.Writer
	writeMu sync.Mutex
	exited  atomic.Bool
}

// NewTransport creates a transport reading from r (server stdout) and
// writing to w (server stdin).
func NewTransport(r io.Reader, w io.Writer) *Transport {
	var reader *bufio.Reader
	if r != nil {
		reader = bufio.NewReader(r)
	}
	return &Transport{
		reader: reader,
		writer: w,
	}
}

// Read returns the next decoded message.
//
// Description:
//
//	Returns io.EOF when the stream closes cleanly between records or when
//	an exit notification is observed; every later call returns io.EOF too.
//	Malformed headers or truncated payloads return an error wrapping
//	ErrMalformedFrame and the transport must not be read again.
//
// Outputs:
//
//	Message - *Request, *Response or *Notification
//	error - io.EOF at end of stream, otherwise a fatal framing error
func (t *Transport) Read() (Message, error) {
	if t.reader == nil {
		return nil, errors.New("no reader configured")
	}
	if t.exited.Load() {
		return nil, io.EOF
	}

	body, err := t.readFrame()
	if err != nil {
		return nil, err
	}
	recordFrameRead(len(body))

	msg, err := DecodeMessage(body)
	if err != nil {
		return nil, err
	}
	if n, ok := msg.(*Notification); ok && n.Method == MethodExit {
		t.exited.Store(true)
		return nil, io.EOF
	}
	return msg, nil
}

// readFrame reads one header block and its payload.
func (t *Transport) readFrame() ([]byte, error) {
	contentLength := -1
	sawHeader := false

	for {
		line, err := t.reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && !sawHeader && line == "" {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("%w: read header: %v", ErrMalformedFrame, io.ErrUnexpectedEOF)
		}
		line = strings.TrimSpace(line)

		// Empty line marks end of headers
		if line == "" {
			if !sawHeader {
				continue
			}
			break
		}
		sawHeader = true

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: header line %q", ErrMalformedFrame, line)
		}
		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			value = strings.TrimSpace(value)
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid Content-Length value %q", ErrMalformedFrame, value)
			}
			if n < 0 {
				return nil, fmt.Errorf("%w: negative Content-Length: %d", ErrMalformedFrame, n)
			}
			contentLength = n
		}
		// Ignore other headers (Content-Type, etc.)
	}

	if contentLength <= 0 {
		return nil, fmt.Errorf("%w: missing or zero Content-Length header", ErrMalformedFrame)
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(t.reader, body); err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrMalformedFrame, err)
	}
	return body, nil
}

// Write frames and writes one message.
//
// Thread Safety:
//
//	Safe for concurrent use; frames are never interleaved.
func (t *Transport) Write(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	var frame bytes.Buffer
	frame.Grow(len(data) + 32)
	fmt.Fprintf(&frame, "Content-Length: %d\r\n\r\n", len(data))
	frame.Write(data)

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.writer.Write(frame.Bytes()); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
