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

import "errors"

var (
	// ErrInvalidRoot is returned when the analysis root is not a directory.
	ErrInvalidRoot = errors.New("analysis root is not a directory")

	// ErrIncomplete is returned when the response stream ends while
	// requests are still unanswered.
	ErrIncomplete = errors.New("response stream ended with requests outstanding")

	// ErrNoFiles is returned when the walk finds nothing to analyze.
	ErrNoFiles = errors.New("no eligible source files")
)
