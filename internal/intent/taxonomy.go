// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package intent defines the closed intent taxonomy, the classification
// result shape and helpers for reading language-model payloads.
package intent

import "strings"

// Intent is a label from the closed taxonomy.
type Intent string

const (
	CreateEvent Intent = "create_event"
	ListEvents  Intent = "list_events"
	AddReminder Intent = "add_reminder"
	CreateNote  Intent = "create_note"
	ReadEmail   Intent = "read_email"
	SendEmail   Intent = "send_email"
	None        Intent = "none"
)

// All lists every intent, catch-all last.
var All = []Intent{CreateEvent, ListEvents, AddReminder, CreateNote, ReadEmail, SendEmail, None}

// Parse maps a raw label onto the taxonomy. Unknown labels become None.
func Parse(raw string) (Intent, bool) {
	label := Intent(strings.ToLower(strings.TrimSpace(raw)))
	label = Intent(strings.ReplaceAll(string(label), "-", "_"))
	for _, in := range All {
		if in == label {
			return in, true
		}
	}
	return None, false
}

// Valid reports whether raw names an intent in the taxonomy.
func Valid(raw string) bool {
	_, ok := Parse(raw)
	return ok
}

// Keywords are the canonical single-token cues per intent.
var Keywords = map[Intent][]string{
	CreateEvent: {"schedule", "meeting", "appointment", "book", "event", "lunch", "dinner", "standup", "interview", "sync", "arrange", "invite"},
	ListEvents:  {"agenda", "calendar", "upcoming", "events", "busy", "free", "plans"},
	AddReminder: {"remind", "reminder", "remember", "forget", "alert", "nudge"},
	CreateNote:  {"note", "notes", "jot", "memo", "write", "journal"},
	ReadEmail:   {"inbox", "unread", "emails", "mail", "messages", "read", "check"},
	SendEmail:   {"send", "email", "compose", "reply", "forward", "draft"},
}

// keywordIndex maps keyword to the intents that list it.
var keywordIndex = func() map[string][]Intent {
	idx := make(map[string][]Intent)
	for in, words := range Keywords {
		for _, w := range words {
			idx[w] = append(idx[w], in)
		}
	}
	return idx
}()

// KeywordIntents returns the intents whose canonical list contains token.
func KeywordIntents(token string) []Intent {
	return keywordIndex[token]
}

// RequiredSlots lists, per intent, the slot groups that must be filled. A group
// is satisfied when any one of its names is present.
var RequiredSlots = map[Intent][][]string{
	CreateEvent: {{"title"}, {"datetime_point", "datetime_range"}},
	AddReminder: {{"task"}, {"datetime_point", "datetime_range"}},
	CreateNote:  {{"body"}},
	SendEmail:   {{"to"}},
}

// MissingSlots returns the first name of each unsatisfied required group.
func MissingSlots(in Intent, slots Slots) []string {
	var missing []string
	for _, group := range RequiredSlots[in] {
		found := false
		for _, name := range group {
			if slots.Has(name) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, group[0])
		}
	}
	return missing
}

// BaselineExemplars seed the nearest-neighbor index when no dataset is loaded.
var BaselineExemplars = map[Intent][]string{
	CreateEvent: {
		"schedule a meeting tomorrow at 10am",
		"book a dentist appointment on friday",
		"set up a call with the design team next week",
		"add lunch with sarah to my calendar",
		"create an event for the team standup",
	},
	ListEvents: {
		"what is on my calendar today",
		"show my agenda for tomorrow",
		"do i have any meetings this afternoon",
		"what are my upcoming events",
	},
	AddReminder: {
		"remind me to call mom tonight",
		"set a reminder to pay rent on the first",
		"don't let me forget to buy milk",
		"remind me about the dentist tomorrow morning",
	},
	CreateNote: {
		"take a note that the wifi password changed",
		"write down these ideas for the project",
		"create a note called groceries",
		"jot this down",
	},
	ReadEmail: {
		"check my inbox",
		"read my unread emails",
		"do i have new mail from john",
		"show me my latest messages",
	},
	SendEmail: {
		"send an email to alex about the report",
		"email my boss that i will be late",
		"compose a message to the team",
		"reply to sarah's email",
	},
	None: {
		"hello there",
		"what is the meaning of life",
		"tell me a joke",
	},
}
