// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rules

import (
	"regexp"

	"github.com/traylinx/switchAIAssist/internal/intent"
)

const (
	// RuleConfidence is the fixed confidence of any matching rule.
	RuleConfidence = 0.7

	// FallbackConfidence is returned when no rule matches.
	FallbackConfidence = 0.5
)

type builtinRule struct {
	name   string
	intent intent.Intent
	re     *regexp.Regexp
}

// builtins are evaluated in order; the first match wins.
var builtins = []builtinRule{
	{
		name:   "reminder",
		intent: intent.AddReminder,
		re:     regexp.MustCompile(`(?i)\b(remind|reminder|remember to|don'?t let me forget|nudge me)\b`),
	},
	{
		name:   "read-email",
		intent: intent.ReadEmail,
		re:     regexp.MustCompile(`(?i)\b(check|read|show|open|any|unread|new|latest)\b.*\b(e-?mails?|inbox|mail|messages)\b|\binbox\b`),
	},
	{
		name:   "send-email",
		intent: intent.SendEmail,
		re:     regexp.MustCompile(`(?i)\b(send|compose|write|draft|reply|forward)\b.*\b(e-?mail|mail|message)\b|^\s*e-?mail\s+\w+`),
	},
	{
		name:   "note",
		intent: intent.CreateNote,
		re:     regexp.MustCompile(`(?i)\b(take|make|create|add|new)\s+(a\s+)?note\b|\bnote\s*(that|:)|\b(jot|write)\s+(this\s+|that\s+|it\s+)?down\b|\bmemo\b`),
	},
	{
		name:   "list-events",
		intent: intent.ListEvents,
		re:     regexp.MustCompile(`(?i)\b(what'?s|what is|what are|show|list|do i have|am i)\b.*\b(calendar|agenda|schedule|events?|meetings?|plans|busy|free)\b|\bagenda\b`),
	},
	{
		name:   "create-event",
		intent: intent.CreateEvent,
		re:     regexp.MustCompile(`(?i)\b(schedule|book|set up|arrange|organi[sz]e|plan)\b|\b(meeting|appointment|event|lunch|dinner|standup|interview)\b`),
	},
}

func matchBuiltin(text string) (intent.Intent, string, bool) {
	for _, r := range builtins {
		if r.re.MatchString(text) {
			return r.intent, r.name, true
		}
	}
	return intent.None, "", false
}
