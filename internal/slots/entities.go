// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package slots

import (
	"regexp"
	"strings"

	"github.com/traylinx/switchAIAssist/internal/intent"
)

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	tagRe   = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}_\-]+)`)
	nameRe  = regexp.MustCompile(`\b[A-Z][a-z'\-]+(?:\s+[A-Z][a-z'\-]+)*`)
)

// notNames are capitalized words that never start a person name.
var notNames = map[string]bool{
	"i": true, "i'm": true, "i'll": true, "i'd": true,
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
	"january": true, "february": true, "march": true, "april": true, "may": true,
	"june": true, "july": true, "august": true, "september": true,
	"october": true, "november": true, "december": true,
	"today": true, "tomorrow": true, "tonight": true, "noon": true, "midnight": true,
	"please": true, "subject": true, "body": true,
}

// placePrepositions precede locations rather than people.
var placePrepositions = map[string]bool{"at": true, "in": true, "on": true, "near": true}

// travelPrepositions precede destinations and origins in event requests.
var travelPrepositions = map[string]bool{"to": true, "from": true}

// entityStage pulls email addresses, hashtags and candidate person names and
// routes them to the slot each intent expects.
func (e *Extractor) entityStage(r *run) {
	var emails []string
	for _, loc := range emailRe.FindAllStringIndex(r.text, -1) {
		if r.consumed(loc[0], loc[1]) {
			continue
		}
		emails = append(emails, r.text[loc[0]:loc[1]])
		r.consume(loc[0], loc[1])
	}

	var tags []string
	for _, m := range tagRe.FindAllStringSubmatchIndex(r.text, -1) {
		tags = append(tags, strings.ToLower(r.text[m[2]:m[3]]))
		r.consume(m[2]-1, m[3])
	}

	names := e.names(r)

	switch r.in {
	case intent.SendEmail:
		if len(emails) > 0 {
			r.set("to", emails)
		} else if len(names) > 0 {
			r.set("to", names)
		}
	case intent.ReadEmail:
		if len(emails) > 0 {
			r.set("from", emails)
		} else if len(names) > 0 {
			r.set("from", names)
		}
	case intent.CreateEvent:
		if people := append(emails, names...); len(people) > 0 {
			r.set("attendees", people)
		}
	case intent.CreateNote:
		if len(tags) > 0 {
			r.set("tags", tags)
		}
	}
}

// names returns capitalized sequences that look like people. Sentence-initial
// words, calendar words and places introduced by a preposition are skipped,
// as are event destinations after "to" or "from".
func (e *Extractor) names(r *run) []string {
	var out []string
	seen := make(map[string]bool)
	for _, loc := range nameRe.FindAllStringIndex(r.text, -1) {
		start, end := loc[0], loc[1]
		if r.consumed(start, end) {
			continue
		}
		prev := strings.ToLower(previousWord(r.text, start))
		if placePrepositions[prev] || (r.in == intent.CreateEvent && travelPrepositions[prev]) {
			continue
		}

		words := strings.Fields(r.text[start:end])
		if sentenceInitial(r.text, start) {
			words = words[1:]
		}
		for len(words) > 0 && notNames[strings.ToLower(words[0])] {
			words = words[1:]
		}
		for len(words) > 0 && notNames[strings.ToLower(words[len(words)-1])] {
			words = words[:len(words)-1]
		}
		if len(words) == 0 {
			continue
		}
		name := strings.Join(words, " ")
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

func sentenceInitial(text string, idx int) bool {
	before := strings.TrimRight(text[:idx], " \t\"'(")
	if before == "" {
		return true
	}
	switch before[len(before)-1] {
	case '.', '!', '?', ':', '\n':
		return true
	}
	return false
}

func previousWord(text string, idx int) string {
	fields := strings.Fields(text[:idx])
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[len(fields)-1], ",;")
}
