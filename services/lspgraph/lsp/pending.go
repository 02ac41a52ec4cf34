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
	"sync"
	"sync/atomic"
)

// PendingTable maps correlation ids to the context needed to interpret
// their eventual responses.
//
// Description:
//
//	An entry is inserted right before its request is written and removed
//	exactly once when the matching response is consumed. Ids are never
//	reused, so Insert refuses a key that is already present.
//
// Thread Safety:
//
//	Safe for concurrent use without a table-wide lock.
type PendingTable struct {
	entries sync.Map
	size    atomic.Int64
}

// NewPendingTable creates an empty table.
func NewPendingTable() *PendingTable {
	return &PendingTable{}
}

// Insert records tag under id. Returns false if id is already present.
func (p *PendingTable) Insert(id int64, tag any) bool {
	if _, loaded := p.entries.LoadOrStore(id, tag); loaded {
		return false
	}
	p.size.Add(1)
	return true
}

// Take removes and returns the tag recorded for id.
func (p *PendingTable) Take(id int64) (any, bool) {
	tag, ok := p.entries.LoadAndDelete(id)
	if ok {
		p.size.Add(-1)
	}
	return tag, ok
}

// Len returns the number of in-flight entries.
func (p *PendingTable) Len() int {
	return int(p.size.Load())
}
