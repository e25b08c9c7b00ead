// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package slots

import (
	"regexp"
	"strings"

	"github.com/traylinx/switchAIAssist/internal/intent"
)

// DefaultEventMinutes applies when an event names no duration and no
// keyword in defaultDurations matches.
const DefaultEventMinutes = 60

// defaultDurations is checked in order; the first keyword found wins.
var defaultDurations = []struct {
	keyword string
	minutes int
}{
	{"standup", 15},
	{"stand-up", 15},
	{"coffee", 30},
	{"call", 30},
	{"check-in", 30},
	{"breakfast", 45},
	{"lunch", 60},
	{"interview", 60},
	{"dinner", 90},
	{"workshop", 120},
}

// DefaultDuration returns the typical length in minutes of the event text describes.
func DefaultDuration(text string) int {
	lower := strings.ToLower(text)
	for _, d := range defaultDurations {
		if strings.Contains(lower, d.keyword) {
			return d.minutes
		}
	}
	return DefaultEventMinutes
}

var (
	eventLeadRe = regexp.MustCompile(`(?i)^(?:(?:please|can you|could you|would you)\s+)*(?:schedule|book|add|create|set\s+up|setup|arrange|organi[sz]e|plan|put|make)\s+(?:(?:a|an|the|my|new)\s+)?`)
	calendarRe  = regexp.MustCompile(`(?i)\s*\b(?:to|on|in|into)\s+my\s+(?:calendar|agenda|schedule)\b`)
	locationRe  = regexp.MustCompile(`\b(?:at|in)\s+((?:the\s+)?[A-Z][\w'&\-]*(?:\s+(?:[A-Z][\w'&\-]*|of|de|la))*)`)
	trailingRe  = regexp.MustCompile(`(?i)(?:[\s,;:.!?\-]+|\s+(?:at|on|in|for|from|by|and|with|starting))+$`)

	reminderLeadRe = regexp.MustCompile(`(?i)^(?:(?:please|hey|can you|could you)\s+)*(?:remind\s+me\s+(?:to|that|about|of)|remind\s+me|set\s+(?:a|an)\s+(?:reminder|alert)\s+(?:to|for|about)|(?:a\s+)?reminder\s+(?:to|for|about)|don'?t\s+let\s+me\s+forget\s+(?:to|about)?|remember\s+to)\s*`)

	noteLeadRe = regexp.MustCompile(`(?i)^(?:(?:please|can you|could you)\s+)*(?:(?:take|make|create|add|start|new)\s+(?:a\s+|an?\s+new\s+)?note(?:\s+(?:that|saying|about|called|titled|named))?|note(?:\s+that)?|(?:jot|write)\s+(?:this\s+|that\s+|it\s+)?down(?:\s+that)?)\s*:?\s*`)

	subjectRe   = regexp.MustCompile(`(?is)\bsubject\s*:\s*(.+?)\s*(?:\bbody\s*:|\n|$)`)
	bodyRe      = regexp.MustCompile(`(?is)\bbody\s*:\s*(.+)$`)
	sayingRe    = regexp.MustCompile(`(?is)\b(?:saying|that\s+says|to\s+say|telling\s+(?:him|her|them)|that)\s+(.+)$`)
	aboutRe     = regexp.MustCompile(`(?i)\babout\s+(.+?)(?:\s+\b(?:saying|that)\b|$)`)
	unreadRe    = regexp.MustCompile(`(?i)\b(?:unread|new)\b`)
	importantRe = regexp.MustCompile(`(?i)\b(?:important|urgent|flagged|starred)\b`)
)

const maxTitleRunes = 60

// intentStage applies the per-intent heuristics.
func (e *Extractor) intentStage(r *run) {
	switch r.in {
	case intent.CreateEvent:
		e.eventSlots(r)
	case intent.AddReminder:
		e.reminderSlots(r)
	case intent.CreateNote:
		e.noteSlots(r)
	case intent.SendEmail:
		e.sendEmailSlots(r)
	case intent.ReadEmail:
		e.readEmailSlots(r)
	}
}

func (e *Extractor) eventSlots(r *run) {
	for _, m := range locationRe.FindAllStringSubmatchIndex(r.text, -1) {
		if r.consumed(m[0], m[1]) {
			continue
		}
		place := r.text[m[2]:m[3]]
		if notNames[strings.ToLower(strings.Fields(place)[0])] {
			continue
		}
		r.set("location", strings.TrimPrefix(place, "the "))
		r.consume(m[0], m[1])
		break
	}

	if !r.slots.Has("title") {
		title := r.remainder()
		title = calendarRe.ReplaceAllString(title, "")
		title = eventLeadRe.ReplaceAllString(title, "")
		title = cleanTail(title)
		r.set("title", truncateRunes(title, maxTitleRunes))
	}

	if !r.slots.Has("duration_minutes") {
		r.set("duration_minutes", DefaultDuration(r.text))
	}
}

func (e *Extractor) reminderSlots(r *run) {
	if r.slots.Has("task") {
		return
	}
	task := reminderLeadRe.ReplaceAllString(r.remainder(), "")
	r.set("task", cleanTail(task))
}

func (e *Extractor) noteSlots(r *run) {
	content := strings.TrimSpace(noteLeadRe.ReplaceAllString(compactLines(tagRe.ReplaceAllString(r.text, "")), ""))
	if content == "" {
		return
	}
	title, body := content, content
	if first, rest, ok := strings.Cut(content, "\n"); ok && strings.TrimSpace(rest) != "" {
		title, body = strings.TrimSpace(first), strings.TrimSpace(rest)
	} else if idx := strings.IndexAny(content, ".!?"); idx > 0 && idx < len(content)-1 {
		title = content[:idx]
	}
	r.set("title", truncateRunes(cleanTail(title), maxTitleRunes))
	r.set("body", body)
}

func (e *Extractor) sendEmailSlots(r *run) {
	text := r.text
	if m := subjectRe.FindStringSubmatch(text); m != nil {
		r.set("subject", strings.TrimSpace(m[1]))
	}
	if m := bodyRe.FindStringSubmatch(text); m != nil {
		r.set("body", strings.TrimSpace(m[1]))
		return
	}

	rest := r.remainder()
	if m := sayingRe.FindStringSubmatch(rest); m != nil {
		r.set("body", cleanTail(m[1]))
	}
	if m := aboutRe.FindStringSubmatch(rest); m != nil {
		r.set("subject", cleanTail(m[1]))
	}
}

func (e *Extractor) readEmailSlots(r *run) {
	switch {
	case unreadRe.MatchString(r.text):
		r.set("filter", "unread")
	case importantRe.MatchString(r.text):
		r.set("filter", "important")
	}
}

// compactLines collapses whitespace within lines and drops empty ones.
func compactLines(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

func cleanTail(s string) string {
	s = strings.TrimSpace(s)
	for {
		trimmed := trailingRe.ReplaceAllString(s, "")
		trimmed = strings.TrimSpace(trimmed)
		if trimmed == s {
			return s
		}
		s = trimmed
	}
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n]))
}
