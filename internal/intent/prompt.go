// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package intent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

// ClassificationSystemPrompt instructs a model to answer with one JSON object.
func ClassificationSystemPrompt() string {
	labels := make([]string, 0, len(All))
	for _, in := range All {
		labels = append(labels, string(in))
	}
	return "You classify personal-assistant requests. " +
		"Answer with a single JSON object and nothing else: " +
		`{"intent": <one of ` + strings.Join(labels, ", ") + `>, "confidence": <0..1>, "slots": {<name>: <value>}}. ` +
		`Use "none" when no intent fits. Useful slot names: title, datetime_point, location, attendees, task, body, to, from, subject, tags.`
}

// ClassificationPrompt wraps the user's utterance and, when present, the
// caller-supplied context rendered as JSON.
func ClassificationPrompt(text string, context map[string]any) string {
	prompt := fmt.Sprintf("Request: %q", text)
	if len(context) == 0 {
		return prompt
	}
	data, err := json.Marshal(context)
	if err != nil {
		return prompt
	}
	return prompt + "\nContext: " + string(data)
}

// RefinementSystemPrompt instructs a model to fill in missing slots only.
func RefinementSystemPrompt() string {
	return "You complete slot extraction for a personal assistant. " +
		"Return a single JSON object containing only the missing or corrected slots. " +
		"Use ISO 8601 for dates and times. Return {} when nothing can be added."
}

// RefinementPrompt describes the utterance, the intent, the slots already
// extracted and the ones still missing.
func RefinementPrompt(text string, in Intent, current Slots, missing []string, now string) string {
	names := make([]string, 0, len(current))
	for k := range current {
		names = append(names, k)
	}
	sort.Strings(names)
	ordered := make(map[string]any, len(names))
	for _, k := range names {
		ordered[k] = current[k]
	}
	currentJSON, err := json.Marshal(ordered)
	if err != nil {
		currentJSON = []byte("{}")
	}
	return fmt.Sprintf("Current time: %s\nIntent: %s\nRequest: %q\nExtracted slots: %s\nMissing slots: %s",
		now, in, text, currentJSON, strings.Join(missing, ", "))
}
