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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
)

func frame(body string) string {
	return fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)
}

func TestTransport_Write(t *testing.T) {
	t.Run("writes Content-Length header", func(t *testing.T) {
		var buf bytes.Buffer
		tr := NewTransport(nil, &buf)

		if err := tr.Write(&Request{JSONRPC: "2.0", ID: NumberID(1), Method: "test"}); err != nil {
			t.Fatalf("Write: %v", err)
		}

		body := `{"jsonrpc":"2.0","id":1,"method":"test"}`
		if got, want := buf.String(), frame(body); got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("omits id on notifications", func(t *testing.T) {
		var buf bytes.Buffer
		tr := NewTransport(nil, &buf)

		if err := tr.Write(&Notification{JSONRPC: "2.0", Method: "initialized", Params: json.RawMessage(`{}`)}); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if strings.Contains(buf.String(), `"id"`) {
			t.Errorf("notification carries an id: %s", buf.String())
		}
	})

	t.Run("string ids are echoed as strings", func(t *testing.T) {
		var buf bytes.Buffer
		tr := NewTransport(nil, &buf)

		if err := tr.Write(&Response{JSONRPC: "2.0", ID: ID{Str: "abc"}, Result: json.RawMessage("null")}); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if !strings.Contains(buf.String(), `"id":"abc"`) {
			t.Errorf("missing string id in: %s", buf.String())
		}
	})

	t.Run("concurrent writes never interleave", func(t *testing.T) {
		var buf bytes.Buffer
		tr := NewTransport(nil, &buf)

		var wg sync.WaitGroup
		for i := 1; i <= 50; i++ {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				_ = tr.Write(&Request{JSONRPC: "2.0", ID: NumberID(id), Method: "m"})
			}(int64(i))
		}
		wg.Wait()

		rd := NewTransport(&buf, nil)
		seen := 0
		for {
			msg, err := rd.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if _, ok := msg.(*Request); !ok {
				t.Fatalf("got %T, want *Request", msg)
			}
			seen++
		}
		if seen != 50 {
			t.Errorf("read %d frames, want 50", seen)
		}
	})
}

func TestTransport_Read(t *testing.T) {
	t.Run("decodes the three message kinds", func(t *testing.T) {
		input := frame(`{"jsonrpc":"2.0","id":7,"method":"client/registerCapability","params":{}}`) +
			frame(`{"jsonrpc":"2.0","id":3,"result":[]}`) +
			frame(`{"jsonrpc":"2.0","method":"window/logMessage","params":{"type":3,"message":"hi"}}`)
		tr := NewTransport(strings.NewReader(input), nil)

		msg, err := tr.Read()
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if req, ok := msg.(*Request); !ok || req.ID.Num != 7 || req.Method != "client/registerCapability" {
			t.Errorf("first message = %#v", msg)
		}

		msg, err = tr.Read()
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if resp, ok := msg.(*Response); !ok || resp.ID.Num != 3 || string(resp.Result) != "[]" {
			t.Errorf("second message = %#v", msg)
		}

		msg, err = tr.Read()
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if n, ok := msg.(*Notification); !ok || n.Method != "window/logMessage" {
			t.Errorf("third message = %#v", msg)
		}

		if _, err := tr.Read(); !errors.Is(err, io.EOF) {
			t.Errorf("expected io.EOF at end of stream, got %v", err)
		}
	})

	t.Run("handles multiple headers", func(t *testing.T) {
		msg := `{"jsonrpc":"2.0","id":1,"result":null}`
		input := fmt.Sprintf("Content-Length: %d\r\nContent-Type: application/vscode-jsonrpc; charset=utf-8\r\n\r\n%s", len(msg), msg)
		tr := NewTransport(strings.NewReader(input), nil)

		got, err := tr.Read()
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if resp, ok := got.(*Response); !ok || resp.ID.Num != 1 {
			t.Errorf("got %#v", got)
		}
	})

	t.Run("error responses decode with their error object", func(t *testing.T) {
		input := frame(`{"jsonrpc":"2.0","id":4,"error":{"code":-32601,"message":"no such method"}}`)
		tr := NewTransport(strings.NewReader(input), nil)

		got, err := tr.Read()
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		resp := got.(*Response)
		var lspErr *LSPError
		if !errors.As(resp.AsError(), &lspErr) || !lspErr.IsMethodNotFound() {
			t.Errorf("AsError() = %v, want method-not-found", resp.AsError())
		}
	})

	t.Run("exit notification ends the stream", func(t *testing.T) {
		input := frame(`{"jsonrpc":"2.0","method":"exit"}`) + frame(`{"jsonrpc":"2.0","id":1,"result":null}`)
		tr := NewTransport(strings.NewReader(input), nil)

		if _, err := tr.Read(); !errors.Is(err, io.EOF) {
			t.Fatalf("expected io.EOF on exit, got %v", err)
		}
		if _, err := tr.Read(); !errors.Is(err, io.EOF) {
			t.Errorf("expected sticky io.EOF after exit, got %v", err)
		}
	})

	malformed := []struct {
		name  string
		input string
	}{
		{"missing Content-Length", "Content-Type: x\r\n\r\n{}"},
		{"zero Content-Length", "Content-Length: 0\r\n\r\n"},
		{"negative Content-Length", "Content-Length: -5\r\n\r\n"},
		{"non-numeric Content-Length", "Content-Length: abc\r\n\r\n"},
		{"header without colon", "garbage\r\n\r\n"},
		{"truncated header block", "Content-Length: 10\r\n"},
		{"truncated payload", "Content-Length: 100\r\n\r\n{\"jsonrpc\":\"2.0\"}"},
		{"invalid JSON payload", frame(`{not json}`)},
		{"payload of no known kind", frame(`{"jsonrpc":"2.0"}`)},
	}
	for _, tt := range malformed {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTransport(strings.NewReader(tt.input), nil)
			_, err := tr.Read()
			if !errors.Is(err, ErrMalformedFrame) {
				t.Errorf("expected ErrMalformedFrame, got %v", err)
			}
		})
	}
}

func TestID_JSON(t *testing.T) {
	var id ID
	if err := json.Unmarshal([]byte(`"tok-1"`), &id); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !id.IsString() || id.Str != "tok-1" {
		t.Errorf("string id decoded as %#v", id)
	}

	id = ID{}
	if err := json.Unmarshal([]byte(`42`), &id); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if id.IsString() || id.Num != 42 || id.String() != "42" {
		t.Errorf("numeric id decoded as %#v", id)
	}
}

func TestPendingTable(t *testing.T) {
	t.Run("insert and take exactly once", func(t *testing.T) {
		p := NewPendingTable()
		if !p.Insert(1, "a.go") {
			t.Fatal("first insert refused")
		}
		if p.Insert(1, "b.go") {
			t.Error("duplicate id accepted")
		}
		tag, ok := p.Take(1)
		if !ok || tag != "a.go" {
			t.Errorf("Take(1) = %v, %v", tag, ok)
		}
		if _, ok := p.Take(1); ok {
			t.Error("entry removed twice")
		}
		if p.Len() != 0 {
			t.Errorf("Len() = %d, want 0", p.Len())
		}
	})

	t.Run("concurrent insert and take drain to empty", func(t *testing.T) {
		p := NewPendingTable()
		const n = 1000

		var wg sync.WaitGroup
		for i := int64(1); i <= n; i++ {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				p.Insert(id, id)
			}(i)
		}
		wg.Wait()
		if p.Len() != n {
			t.Fatalf("Len() = %d, want %d", p.Len(), n)
		}

		for i := int64(1); i <= n; i++ {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				if tag, ok := p.Take(id); !ok || tag.(int64) != id {
					t.Errorf("Take(%d) = %v, %v", id, tag, ok)
				}
			}(i)
		}
		wg.Wait()
		if p.Len() != 0 {
			t.Errorf("Len() = %d after drain, want 0", p.Len())
		}
	})
}
