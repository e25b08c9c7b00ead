// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package intent

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/traylinx/switchAIAssist/internal/completion"
)

// ErrNoPayload is returned when no JSON object can be recovered from a reply.
var ErrNoPayload = errors.New("intent: no JSON object in reply")

// Payload is the classification answer expected from a language model.
type Payload struct {
	Intent     Intent
	Confidence float64
	Slots      Slots

	// KnownIntent is false when the model answered with a label outside the taxonomy.
	KnownIntent bool
}

type rawPayload struct {
	Intent     string         `json:"intent"`
	Confidence any            `json:"confidence"`
	Slots      map[string]any `json:"slots"`
}

// ParsePayload reads a model reply tolerantly: reasoning markup and code
// fences are dropped, strict decoding is tried first, and failing that the
// first balanced {...} span is decoded.
func ParsePayload(content string) (*Payload, error) {
	cleaned := stripFences(completion.StripReasoning(content))

	var raw rawPayload
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		span, ok := FirstObject(cleaned)
		if !ok {
			return nil, ErrNoPayload
		}
		raw = rawPayload{}
		if err := json.Unmarshal([]byte(span), &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoPayload, err)
		}
	}
	if strings.TrimSpace(raw.Intent) == "" {
		return nil, fmt.Errorf("%w: missing intent", ErrNoPayload)
	}

	in, known := Parse(raw.Intent)
	p := &Payload{
		Intent:      in,
		Confidence:  ClampConfidence(confidenceValue(raw.Confidence)),
		Slots:       Slots{},
		KnownIntent: known,
	}
	for k, v := range raw.Slots {
		if v != nil {
			p.Slots[k] = v
		}
	}
	return p, nil
}

// ParseObject decodes the first JSON object in content into a generic map.
func ParseObject(content string) (map[string]any, error) {
	cleaned := stripFences(completion.StripReasoning(content))
	out := make(map[string]any)
	if err := json.Unmarshal([]byte(cleaned), &out); err == nil {
		return out, nil
	}
	span, ok := FirstObject(cleaned)
	if !ok {
		return nil, ErrNoPayload
	}
	out = make(map[string]any)
	if err := json.Unmarshal([]byte(span), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPayload, err)
	}
	return out, nil
}

// confidenceValue accepts numbers, numeric strings and percentages.
func confidenceValue(v any) float64 {
	switch c := v.(type) {
	case float64:
		if c > 1 && c <= 100 {
			return c / 100
		}
		return c
	case string:
		s := strings.TrimSpace(c)
		pct := strings.HasSuffix(s, "%")
		s = strings.TrimSuffix(s, "%")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		if pct || (f > 1 && f <= 100) {
			return f / 100
		}
		return f
	}
	return 0
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// FirstObject locates the first balanced {...} span in s, ignoring braces
// inside JSON strings. An opening brace that never balances is skipped and
// the search resumes after it.
func FirstObject(s string) (string, bool) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end, ok := matchBrace(s, start); ok {
			return s[start : end+1], true
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
