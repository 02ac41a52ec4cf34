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
	"encoding/json"
	"fmt"
)

// =============================================================================
// POSITION TYPES
// =============================================================================

// Position represents a position in a text document.
// Line and character are 0-indexed per LSP specification.
type Position struct {
	// Line is the 0-indexed line number.
	Line int `json:"line"`

	// Character is the 0-indexed character offset within the line.
	Character int `json:"character"`
}

// Before reports whether p sorts strictly before other.
func (p Position) Before(other Position) bool {
	if p.Line != other.Line {
		return p.Line < other.Line
	}
	return p.Character < other.Character
}

// Compare returns -1, 0 or +1 depending on the order of p and other.
func (p Position) Compare(other Position) int {
	switch {
	case p.Before(other):
		return -1
	case other.Before(p):
		return 1
	default:
		return 0
	}
}

// String renders the position as "line:character".
func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Character)
}

// Range represents a range in a text document.
type Range struct {
	// Start is the inclusive start position.
	Start Position `json:"start"`

	// End is the exclusive end position.
	End Position `json:"end"`
}

// Contains reports whether other lies within r, bounds included.
func (r Range) Contains(other Range) bool {
	return !other.Start.Before(r.Start) && !r.End.Before(other.End)
}

// StrictlyContains reports whether other lies within r and differs from it.
func (r Range) StrictlyContains(other Range) bool {
	return r.Contains(other) && r != other
}

// Location represents a location in a document.
type Location struct {
	// URI is the document URI (file:// scheme).
	URI string `json:"uri"`

	// Range is the range within the document.
	Range Range `json:"range"`
}

// LocationLink represents a link between a source and target location.
type LocationLink struct {
	// OriginSelectionRange is the span in the source that was used.
	OriginSelectionRange *Range `json:"originSelectionRange,omitempty"`

	// TargetURI is the target document URI.
	TargetURI string `json:"targetUri"`

	// TargetRange is the full range of the target (for highlighting).
	TargetRange Range `json:"targetRange"`

	// TargetSelectionRange is the precise range to reveal.
	TargetSelectionRange Range `json:"targetSelectionRange"`
}

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// TextDocumentIdentifier identifies a text document.
type TextDocumentIdentifier struct {
	// URI is the document URI.
	URI string `json:"uri"`
}

// TextDocumentPositionParams identifies a position in a document.
type TextDocumentPositionParams struct {
	// TextDocument identifies the document.
	TextDocument TextDocumentIdentifier `json:"textDocument"`

	// Position is the position within the document.
	Position Position `json:"position"`
}

// DocumentSymbolParams are the parameters of textDocument/documentSymbol.
type DocumentSymbolParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// =============================================================================
// SYMBOL TYPES
// =============================================================================

// SymbolKind represents the kind of a symbol.
type SymbolKind int

// Symbol kinds per LSP specification.
const (
	SymbolKindFile          SymbolKind = 1
	SymbolKindModule        SymbolKind = 2
	SymbolKindNamespace     SymbolKind = 3
	SymbolKindPackage       SymbolKind = 4
	SymbolKindClass         SymbolKind = 5
	SymbolKindMethod        SymbolKind = 6
	SymbolKindProperty      SymbolKind = 7
	SymbolKindField         SymbolKind = 8
	SymbolKindConstructor   SymbolKind = 9
	SymbolKindEnum          SymbolKind = 10
	SymbolKindInterface     SymbolKind = 11
	SymbolKindFunction      SymbolKind = 12
	SymbolKindVariable      SymbolKind = 13
	SymbolKindConstant      SymbolKind = 14
	SymbolKindString        SymbolKind = 15
	SymbolKindNumber        SymbolKind = 16
	SymbolKindBoolean       SymbolKind = 17
	SymbolKindArray         SymbolKind = 18
	SymbolKindObject        SymbolKind = 19
	SymbolKindKey           SymbolKind = 20
	SymbolKindNull          SymbolKind = 21
	SymbolKindEnumMember    SymbolKind = 22
	SymbolKindStruct        SymbolKind = 23
	SymbolKindEvent         SymbolKind = 24
	SymbolKindOperator      SymbolKind = 25
	SymbolKindTypeParameter SymbolKind = 26
)

var symbolKindNames = [...]string{
	"", "file", "module", "namespace", "package", "class", "method", "property",
	"field", "constructor", "enum", "interface", "function", "variable", "constant",
	"string", "number", "boolean", "array", "object", "key", "null", "enum_member",
	"struct", "event", "operator", "type_parameter",
}

// String returns the lower-case kind name.
func (k SymbolKind) String() string {
	if k > 0 && int(k) < len(symbolKindNames) {
		return symbolKindNames[k]
	}
	return "unknown"
}

// IsCallable reports whether the kind is a function or a method.
func (k SymbolKind) IsCallable() bool {
	return k == SymbolKindFunction || k == SymbolKindMethod
}

// SymbolTag represents extra annotations for a symbol.
type SymbolTag int

// SymbolTagDeprecated marks a symbol as deprecated.
const SymbolTagDeprecated SymbolTag = 1

// DocumentSymbol is one node of a hierarchical document outline.
type DocumentSymbol struct {
	// Name is the symbol name as displayed.
	Name string `json:"name"`

	// Detail carries extra information such as a signature.
	Detail string `json:"detail,omitempty"`

	// Kind is the symbol kind.
	Kind SymbolKind `json:"kind"`

	// Tags are optional annotations.
	Tags []SymbolTag `json:"tags,omitempty"`

	// Range encloses the whole symbol including its body.
	Range Range `json:"range"`

	// SelectionRange is the identifier span; contained in Range.
	SelectionRange Range `json:"selectionRange"`

	// Children are the nested symbols.
	Children []DocumentSymbol `json:"children,omitempty"`
}

// SymbolInformation is the flat outline shape some servers still return.
type SymbolInformation struct {
	Name          string      `json:"name"`
	Kind          SymbolKind  `json:"kind"`
	Tags          []SymbolTag `json:"tags,omitempty"`
	Location      Location    `json:"location"`
	ContainerName string      `json:"containerName,omitempty"`
}

// =============================================================================
// CALL HIERARCHY TYPES
// =============================================================================

// CallHierarchyItem identifies a symbol in call-hierarchy requests.
type CallHierarchyItem struct {
	Name           string          `json:"name"`
	Kind           SymbolKind      `json:"kind"`
	Tags           []SymbolTag     `json:"tags,omitempty"`
	Detail         string          `json:"detail,omitempty"`
	URI            string          `json:"uri"`
	Range          Range           `json:"range"`
	SelectionRange Range           `json:"selectionRange"`
	Data           json.RawMessage `json:"data,omitempty"`
}

// NewCallHierarchyItem builds an item for sym declared in the document uri.
func NewCallHierarchyItem(uri string, sym DocumentSymbol) CallHierarchyItem {
	return CallHierarchyItem{
		Name:           sym.Name,
		Kind:           sym.Kind,
		Tags:           sym.Tags,
		Detail:         sym.Detail,
		URI:            uri,
		Range:          sym.Range,
		SelectionRange: sym.SelectionRange,
	}
}

// Symbol converts the item into an outline node without children.
func (i CallHierarchyItem) Symbol() DocumentSymbol {
	return DocumentSymbol{
		Name:           i.Name,
		Detail:         i.Detail,
		Kind:           i.Kind,
		Tags:           i.Tags,
		Range:          i.Range,
		SelectionRange: i.SelectionRange,
	}
}

// CallHierarchyCallsParams are the parameters of both call-hierarchy directions.
type CallHierarchyCallsParams struct {
	Item CallHierarchyItem `json:"item"`
}

// CallHierarchyOutgoingCall is one callee of an item.
type CallHierarchyOutgoingCall struct {
	// To is the called item.
	To CallHierarchyItem `json:"to"`

	// FromRanges are the call sites, relative to the caller.
	FromRanges []Range `json:"fromRanges"`
}

// CallHierarchyIncomingCall is one caller of an item.
type CallHierarchyIncomingCall struct {
	// From is the calling item.
	From CallHierarchyItem `json:"from"`

	// FromRanges are the call sites, relative to the caller.
	FromRanges []Range `json:"fromRanges"`
}

// =============================================================================
// INITIALIZE TYPES
// =============================================================================

// InitializeParams contains initialization parameters.
type InitializeParams struct {
	// ProcessID is the process ID of the parent process.
	ProcessID int `json:"processId"`

	// RootURI is the root URI of the workspace (preferred over rootPath).
	RootURI string `json:"rootUri"`

	// RootPath is the root path of the workspace (deprecated).
	RootPath string `json:"rootPath,omitempty"`

	// Capabilities describes what the client supports.
	Capabilities ClientCapabilities `json:"capabilities"`

	// InitializationOptions are custom initialization options.
	InitializationOptions interface{} `json:"initializationOptions,omitempty"`

	// WorkspaceFolders are the workspace folders if supported.
	WorkspaceFolders []WorkspaceFolder `json:"workspaceFolders,omitempty"`
}

// WorkspaceFolder represents a workspace folder.
type WorkspaceFolder struct {
	// URI is the folder URI.
	URI string `json:"uri"`

	// Name is the name of the folder.
	Name string `json:"name"`
}

// ClientCapabilities describes what the client supports.
type ClientCapabilities struct {
	// TextDocument describes text document capabilities.
	TextDocument TextDocumentClientCapabilities `json:"textDocument,omitempty"`

	// Window describes window capabilities.
	Window WindowClientCapabilities `json:"window,omitempty"`
}

// TextDocumentClientCapabilities describes text document capabilities.
type TextDocumentClientCapabilities struct {
	// DocumentSymbol describes outline support.
	DocumentSymbol *DocumentSymbolClientCapabilities `json:"documentSymbol,omitempty"`

	// CallHierarchy describes call-hierarchy support.
	CallHierarchy *DynamicRegistrationCapabilities `json:"callHierarchy,omitempty"`

	// Implementation describes go-to-implementation support.
	Implementation *ImplementationClientCapabilities `json:"implementation,omitempty"`
}

// DocumentSymbolClientCapabilities describes outline support.
type DocumentSymbolClientCapabilities struct {
	// HierarchicalDocumentSymbolSupport requests nested DocumentSymbol results.
	HierarchicalDocumentSymbolSupport bool `json:"hierarchicalDocumentSymbolSupport,omitempty"`
}

// DynamicRegistrationCapabilities is the capability shape shared by several features.
type DynamicRegistrationCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration,omitempty"`
}

// ImplementationClientCapabilities describes go-to-implementation support.
type ImplementationClientCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration,omitempty"`

	// LinkSupport indicates LocationLink support.
	LinkSupport bool `json:"linkSupport,omitempty"`
}

// WindowClientCapabilities describes window capabilities.
type WindowClientCapabilities struct {
	WorkDoneProgress bool `json:"workDoneProgress,omitempty"`
}

// InitializeResult contains the server's response to initialize.
type InitializeResult struct {
	// Capabilities describes what the server supports.
	Capabilities ServerCapabilities `json:"capabilities"`

	// ServerInfo contains optional server information.
	ServerInfo *ServerInfo `json:"serverInfo,omitempty"`
}

// ServerInfo contains information about the server.
type ServerInfo struct {
	// Name is the server's name.
	Name string `json:"name"`

	// Version is the server's version.
	Version string `json:"version,omitempty"`
}

// ServerCapabilities describes what the server supports.
type ServerCapabilities struct {
	// DocumentSymbolProvider indicates textDocument/documentSymbol is supported.
	DocumentSymbolProvider interface{} `json:"documentSymbolProvider,omitempty"`

	// CallHierarchyProvider indicates callHierarchy/* is supported.
	CallHierarchyProvider interface{} `json:"callHierarchyProvider,omitempty"`

	// ImplementationProvider indicates textDocument/implementation is supported.
	ImplementationProvider interface{} `json:"implementationProvider,omitempty"`
}

// HasDocumentSymbolProvider returns true if outlines are supported.
func (c *ServerCapabilities) HasDocumentSymbolProvider() bool {
	return c.DocumentSymbolProvider != nil && c.DocumentSymbolProvider != false
}

// HasCallHierarchyProvider returns true if call hierarchy is supported.
func (c *ServerCapabilities) HasCallHierarchyProvider() bool {
	return c.CallHierarchyProvider != nil && c.CallHierarchyProvider != false
}

// HasImplementationProvider returns true if implementation lookup is supported.
func (c *ServerCapabilities) HasImplementationProvider() bool {
	return c.ImplementationProvider != nil && c.ImplementationProvider != false
}

// LogMessageParams is the payload of window/logMessage and window/showMessage.
type LogMessageParams struct {
	Type    int    `json:"type"`
	Message string `json:"message"`
}
