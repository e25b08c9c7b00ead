// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package completion

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoBackendAvailable is returned when no backend is healthy, keyed and under budget.
	ErrNoBackendAvailable = errors.New("completion: no backend available")

	// ErrEmptyPrompt is returned for blank prompts.
	ErrEmptyPrompt = errors.New("completion: prompt is empty")
)

// ExhaustedError reports that every backend in the chain failed.
type ExhaustedError struct {
	Attempted []string
	Last      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("completion: all backends failed (%s): %v", strings.Join(e.Attempted, ", "), e.Last)
}

// Unwrap exposes the last underlying backend error.
func (e *ExhaustedError) Unwrap() error { return e.Last }
