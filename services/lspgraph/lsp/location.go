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
	"net/url"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// uriCacheSize bounds the URI → path conversion cache. Call-hierarchy
// answers repeat the same handful of document URIs many times.
const uriCacheSize = 4096

var uriCache = mustURICache()

func mustURICache() *lru.Cache[string, string] {
	cache, err := lru.New[string, string](uriCacheSize)
	if err != nil {
		panic(fmt.Sprintf("lsp: uri cache: %v", err))
	}
	return cache
}

// =============================================================================
// URI CONVERSION
// =============================================================================

// PathToURI converts a file path to a file:// URI.
//
// Description:
//
//	Relative paths are made absolute first. url.URL takes care of
//	percent-encoding characters such as spaces.
func PathToURI(path string) string {
	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err == nil {
			path = abs
		}
	}

	u := &url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(path),
	}
	return u.String()
}

// URIToPath converts a file:// URI to a cleaned absolute file path.
//
// Thread Safety:
//
//	Safe for concurrent use.
func URIToPath(uri string) string {
	if path, ok := uriCache.Get(uri); ok {
		return path
	}

	var path string
	if u, err := url.Parse(uri); err == nil && u.Scheme == "file" {
		path = u.Path
	} else {
		path = strings.TrimPrefix(uri, "file://")
	}
	path = filepath.Clean(filepath.FromSlash(path))

	uriCache.Add(uri, path)
	return path
}

// =============================================================================
// RESULT DECODING
// =============================================================================

// ParseLocations normalizes an implementation or definition result.
//
// Description:
//
//	Servers may answer with null, a single Location, a Location array or a
//	LocationLink array. All shapes become a []Location; for links the
//	target selection range is used.
//
// Outputs:
//
//	[]Location - Possibly empty
//	error - ErrInvalidResponse if the payload matches none of the shapes
func ParseLocations(data json.RawMessage) ([]Location, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	if data[0] == '[' {
		// Try array of LocationLinks first (has targetUri field)
		var links []LocationLink
		if err := json.Unmarshal(data, &links); err == nil && len(links) > 0 && links[0].TargetURI != "" {
			locations := make([]Location, len(links))
			for i, link := range links {
				locations[i] = Location{
					URI:   link.TargetURI,
					Range: link.TargetSelectionRange,
				}
			}
			return locations, nil
		}

		var locations []Location
		if err := json.Unmarshal(data, &locations); err == nil {
			return locations, nil
		}
		return nil, ErrInvalidResponse
	}

	var single Location
	if err := json.Unmarshal(data, &single); err == nil && single.URI != "" {
		return []Location{single}, nil
	}

	var link LocationLink
	if err := json.Unmarshal(data, &link); err == nil && link.TargetURI != "" {
		return []Location{{URI: link.TargetURI, Range: link.TargetSelectionRange}}, nil
	}

	return nil, ErrInvalidResponse
}

// ParseDocumentSymbols decodes a textDocument/documentSymbol result.
//
// Description:
//
//	Hierarchical DocumentSymbol arrays are returned as is. Flat
//	SymbolInformation arrays are converted into root-level symbols whose
//	range and selection range are both the reported location.
func ParseDocumentSymbols(data json.RawMessage) ([]DocumentSymbol, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var probe []map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(probe) == 0 {
		return nil, nil
	}

	if _, flat := probe[0]["location"]; flat {
		var infos []SymbolInformation
		if err := json.Unmarshal(data, &infos); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		symbols := make([]DocumentSymbol, len(infos))
		for i, info := range infos {
			symbols[i] = DocumentSymbol{
				Name:           info.Name,
				Kind:           info.Kind,
				Tags:           info.Tags,
				Range:          info.Location.Range,
				SelectionRange: info.Location.Range,
			}
		}
		return symbols, nil
	}

	var symbols []DocumentSymbol
	if err := json.Unmarshal(data, &symbols); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return symbols, nil
}

// ParseOutgoingCalls decodes a callHierarchy/outgoingCalls result.
func ParseOutgoingCalls(data json.RawMessage) ([]CallHierarchyOutgoingCall, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var calls []CallHierarchyOutgoingCall
	if err := json.Unmarshal(data, &calls); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return calls, nil
}

// ParseIncomingCalls decodes a callHierarchy/incomingCalls result.
func ParseIncomingCalls(data json.RawMessage) ([]CallHierarchyIncomingCall, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var calls []CallHierarchyIncomingCall
	if err := json.Unmarshal(data, &calls); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return calls, nil
}
