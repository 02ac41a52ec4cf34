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
	"github.com/AleutianAI/lspgraph/services/lspgraph/lsp"
	"github.com/AleutianAI/lspgraph/services/lspgraph/model"
)

// requestTag is the pending-table context of one orchestrator request.
type requestTag interface {
	method() string
	target() string
	apply(store *model.Store, resp *lsp.Response) error
}

// outlineTag correlates a documentSymbol answer with its file.
type outlineTag struct {
	path string
}

func (t outlineTag) method() string { return lsp.MethodDocumentSymbol }
func (t outlineTag) target() string { return t.path }

func (t outlineTag) apply(store *model.Store, resp *lsp.Response) error {
	symbols, err := lsp.ParseDocumentSymbols(resp.Result)
	if err != nil {
		return err
	}
	store.InsertOrReplace(t.path, symbols)
	return nil
}

// callsTag correlates a call-hierarchy answer with the queried symbol.
type callsTag struct {
	symbol   model.SymbolLocation
	incoming bool
}

func (t callsTag) method() string {
	if t.incoming {
		return lsp.MethodIncomingCalls
	}
	return lsp.MethodOutgoingCalls
}

func (t callsTag) target() string { return t.symbol.String() }

func (t callsTag) apply(store *model.Store, resp *lsp.Response) error {
	if t.incoming {
		calls, err := lsp.ParseIncomingCalls(resp.Result)
		if err != nil {
			return err
		}
		store.SetIncoming(t.symbol, calls)
		return nil
	}

	calls, err := lsp.ParseOutgoingCalls(resp.Result)
	if err != nil {
		return err
	}
	store.SetOutgoing(t.symbol, calls)
	return nil
}

// implementationsTag correlates an implementation answer with its interface.
type implementationsTag struct {
	iface model.SymbolLocation
}

func (t implementationsTag) method() string { return lsp.MethodImplementation }
func (t implementationsTag) target() string { return t.iface.String() }

func (t implementationsTag) apply(store *model.Store, resp *lsp.Response) error {
	locations, err := lsp.ParseLocations(resp.Result)
	if err != nil {
		return err
	}

	impls := make([]model.SymbolLocation, 0, len(locations))
	for _, l := range locations {
		loc := model.LocationOf(lsp.URIToPath(l.URI), l.Range.Start)
		if loc == t.iface {
			continue
		}
		impls = append(impls, loc)
	}
	store.SetImplementations(t.iface, impls)
	return nil
}
