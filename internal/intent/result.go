// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package intent

import "math"

// Source tags which cascade stage produced a result.
type Source string

const (
	SourceCache           Source = "cache"
	SourceNearestNeighbor Source = "nearest-neighbor"
	SourceCompletion      Source = "completion"
	SourceRule            Source = "rule"
)

// DefaultConfirmThreshold is the confidence below which a result asks for confirmation.
const DefaultConfirmThreshold = 0.65

// Slots maps slot names to structured values: strings, numbers, string
// slices or nested maps.
type Slots map[string]any

// Has reports whether name holds a non-empty value.
func (s Slots) Has(name string) bool {
	v, ok := s[name]
	if !ok || v == nil {
		return false
	}
	switch val := v.(type) {
	case string:
		return val != ""
	case []string:
		return len(val) > 0
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	}
	return true
}

// Clone returns a shallow copy with copied slices and maps one level deep.
func (s Slots) Clone() Slots {
	if s == nil {
		return Slots{}
	}
	out := make(Slots, len(s))
	for k, v := range s {
		switch val := v.(type) {
		case []string:
			out[k] = append([]string(nil), val...)
		case []any:
			out[k] = append([]any(nil), val...)
		case map[string]any:
			m := make(map[string]any, len(val))
			for mk, mv := range val {
				m[mk] = mv
			}
			out[k] = m
		default:
			out[k] = v
		}
	}
	return out
}

// MergeMissing copies entries from src whose names are not yet set in s.
// It returns the names it filled.
func (s Slots) MergeMissing(src map[string]any) []string {
	var filled []string
	for k, v := range src {
		if s.Has(k) {
			continue
		}
		candidate := Slots{k: v}
		if !candidate.Has(k) {
			continue
		}
		s[k] = v
		filled = append(filled, k)
	}
	return filled
}

// Result is the structured outcome of classifying one utterance.
type Result struct {
	Intent            Intent         `json:"intent"`
	Confidence        float64        `json:"confidence"`
	Slots             Slots          `json:"slots"`
	Source            Source         `json:"source"`
	NeedsConfirmation bool           `json:"needsConfirmation"`
	LLMFallback       bool           `json:"llmFallback"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// Clone deep-copies slots and metadata so cached results are never shared.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	out.Slots = r.Slots.Clone()
	if r.Metadata != nil {
		out.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// Finalize clamps confidence into [0,1] and sets NeedsConfirmation against threshold.
func (r *Result) Finalize(threshold float64) {
	r.Confidence = ClampConfidence(r.Confidence)
	r.NeedsConfirmation = r.Confidence < threshold
	if r.Slots == nil {
		r.Slots = Slots{}
	}
}

// ClampConfidence forces c into [0,1]; NaN becomes 0.
func ClampConfidence(c float64) float64 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
