// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package slots

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/traylinx/switchAIAssist/internal/completion"
	"github.com/traylinx/switchAIAssist/internal/intent"
)

var monday = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

type stubCompleter struct {
	calls   atomic.Int32
	content string
	err     error
}

func (s *stubCompleter) Complete(ctx context.Context, req completion.Request) (*completion.Response, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &completion.Response{Content: s.content, Backend: "stub"}, nil
}

func newTestExtractor(c Completer) *Extractor {
	return New(c, Config{Location: time.UTC}, WithClock(func() time.Time { return monday }))
}

func TestExtract_ScheduleMeetingTomorrow(t *testing.T) {
	e := newTestExtractor(nil)

	slots := e.Extract(context.Background(), Input{
		Text:       "Schedule a team meeting tomorrow at 3pm",
		Intent:     intent.CreateEvent,
		Confidence: 0.9,
	})

	assert.Equal(t, "2026-10-20T15:00:00Z", slots["datetime_point"])
	assert.Contains(t, slots["title"], "team meeting")
	assert.Equal(t, 60, slots["duration_minutes"])
	assert.Empty(t, intent.MissingSlots(intent.CreateEvent, slots))
}

func TestExtract_BareHour(t *testing.T) {
	e := newTestExtractor(nil)

	slots := e.Extract(context.Background(), Input{
		Text:   "Schedule a call at 9 for 30 minutes",
		Intent: intent.CreateEvent,
	})
	assert.Equal(t, "2026-10-19T09:00:00Z", slots["datetime_point"])
	assert.Equal(t, 30, slots["duration_minutes"])
	assert.Equal(t, "call", slots["title"])

	slots = e.Extract(context.Background(), Input{
		Text:   "Dentist tomorrow at 4:15",
		Intent: intent.CreateEvent,
	})
	assert.Equal(t, "2026-10-20T16:15:00Z", slots["datetime_point"])
	assert.NotContains(t, slots["title"], "4:15")

	slots = e.Extract(context.Background(), Input{
		Text:   "Lunch at 12:30pm",
		Intent: intent.CreateEvent,
	})
	assert.Equal(t, "2026-10-19T12:30:00Z", slots["datetime_point"])
}

func TestExtract_EventDestinationIsNotAnAttendee(t *testing.T) {
	e := newTestExtractor(nil)

	slots := e.Extract(context.Background(), Input{
		Text:   "Book flight to Paris",
		Intent: intent.CreateEvent,
	})
	assert.NotContains(t, slots, "attendees")
	assert.Equal(t, "flight to Paris", slots["title"])

	slots = e.Extract(context.Background(), Input{
		Text:   "Book a train from Lyon with Marie",
		Intent: intent.CreateEvent,
	})
	assert.Equal(t, []string{"Marie"}, slots["attendees"])

	slots = e.Extract(context.Background(), Input{
		Text:   "Send an email to Sam",
		Intent: intent.SendEmail,
	})
	assert.Equal(t, []string{"Sam"}, slots["to"])
}

func TestExtract_TimeRange(t *testing.T) {
	e := newTestExtractor(nil)

	slots := e.Extract(context.Background(), Input{
		Text:   "Team sync from 2 to 4pm",
		Intent: intent.CreateEvent,
	})

	rng, ok := slots["datetime_range"].(map[string]any)
	require.True(t, ok, "expected datetime_range, got %v", slots)
	start, err := time.Parse(time.RFC3339, rng["start"].(string))
	require.NoError(t, err)
	end, err := time.Parse(time.RFC3339, rng["end"].(string))
	require.NoError(t, err)

	assert.Equal(t, 14, start.Hour())
	assert.Equal(t, 16, end.Hour())
	assert.Equal(t, 120, slots["duration_minutes"])
	assert.NotContains(t, slots, "datetime_point")
	assert.Equal(t, "Team sync", slots["title"])
}

func TestExtract_ExplicitDurationOverridesRange(t *testing.T) {
	e := newTestExtractor(nil)

	slots := e.Extract(context.Background(), Input{
		Text:   "Workshop from 1pm to 3pm for 90 minutes",
		Intent: intent.CreateEvent,
	})

	assert.Contains(t, slots, "datetime_range")
	assert.Equal(t, 90, slots["duration_minutes"])
}

func TestExtract_ExplicitHours(t *testing.T) {
	e := newTestExtractor(nil)

	slots := e.Extract(context.Background(), Input{
		Text:   "Book a planning session tomorrow at 10am for 2 hours",
		Intent: intent.CreateEvent,
	})

	assert.Equal(t, 120, slots["duration_minutes"])
	assert.Equal(t, "planning session", slots["title"])
}

func TestExtract_Recurrence(t *testing.T) {
	e := newTestExtractor(nil)

	tests := []struct {
		text     string
		want     string
		duration int
	}{
		{"Standup every weekday at 9am", "weekdays", 15},
		{"Gym every Monday at 7am", "weekly:monday", 60},
		{"Coffee with the team weekly", "weekly", 30},
		{"Review budget monthly", "monthly", 60},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			slots := e.Extract(context.Background(), Input{Text: tt.text, Intent: intent.CreateEvent})
			assert.Equal(t, tt.want, slots["recurrence"])
			assert.Equal(t, tt.duration, slots["duration_minutes"])
		})
	}
}

func TestExtract_EventLocationAndAttendees(t *testing.T) {
	e := newTestExtractor(nil)

	slots := e.Extract(context.Background(), Input{
		Text:   "Lunch with Sarah at Cafe Roma tomorrow at 1pm",
		Intent: intent.CreateEvent,
	})

	assert.Equal(t, "Cafe Roma", slots["location"])
	assert.Equal(t, []string{"Sarah"}, slots["attendees"])
	assert.Equal(t, "Lunch with Sarah", slots["title"])
	assert.Equal(t, 60, slots["duration_minutes"])
	assert.Equal(t, "2026-10-20T13:00:00Z", slots["datetime_point"])
}

func TestExtract_EventEmailAttendees(t *testing.T) {
	e := newTestExtractor(nil)

	slots := e.Extract(context.Background(), Input{
		Text:   "Set up an interview with ana@example.com tomorrow at 11am",
		Intent: intent.CreateEvent,
	})

	assert.Equal(t, []string{"ana@example.com"}, slots["attendees"])
	assert.Equal(t, 60, slots["duration_minutes"])
	assert.NotContains(t, slots["title"], "@")
}

func TestExtract_SendEmailLabels(t *testing.T) {
	e := newTestExtractor(nil)

	slots := e.Extract(context.Background(), Input{
		Text:   "Send an email to bob@example.com subject: Launch body: We ship next week.",
		Intent: intent.SendEmail,
	})

	assert.Equal(t, []string{"bob@example.com"}, slots["to"])
	assert.Equal(t, "Launch", slots["subject"])
	assert.Equal(t, "We ship next week.", slots["body"])
}

func TestExtract_SendEmailByName(t *testing.T) {
	e := newTestExtractor(nil)

	slots := e.Extract(context.Background(), Input{
		Text:   "email Bob that the report is ready",
		Intent: intent.SendEmail,
	})

	assert.Equal(t, []string{"Bob"}, slots["to"])
	assert.Equal(t, "the report is ready", slots["body"])
}

func TestExtract_ReadEmail(t *testing.T) {
	e := newTestExtractor(nil)

	slots := e.Extract(context.Background(), Input{
		Text:   "any unread emails from Dana",
		Intent: intent.ReadEmail,
	})

	assert.Equal(t, "unread", slots["filter"])
	assert.Equal(t, []string{"Dana"}, slots["from"])
}

func TestExtract_NoteWithTags(t *testing.T) {
	e := newTestExtractor(nil)

	slots := e.Extract(context.Background(), Input{
		Text:   "take a note: buy oat milk #groceries #home",
		Intent: intent.CreateNote,
	})

	assert.Equal(t, []string{"groceries", "home"}, slots["tags"])
	assert.Equal(t, "buy oat milk", slots["body"])
	assert.Equal(t, "buy oat milk", slots["title"])
}

func TestExtract_MultilineNote(t *testing.T) {
	e := newTestExtractor(nil)

	slots := e.Extract(context.Background(), Input{
		Text:   "Note: Trip ideas\nLisbon in spring\nPorto for the food",
		Intent: intent.CreateNote,
	})

	assert.Equal(t, "Trip ideas", slots["title"])
	assert.Equal(t, "Lisbon in spring\nPorto for the food", slots["body"])
}

func TestExtract_ReminderTask(t *testing.T) {
	e := newTestExtractor(nil)

	slots := e.Extract(context.Background(), Input{
		Text:   "remind me to call mom tomorrow at 6pm",
		Intent: intent.AddReminder,
	})

	assert.Equal(t, "call mom", slots["task"])
	assert.Equal(t, "2026-10-20T18:00:00Z", slots["datetime_point"])
}

func TestExtract_ExistingSlotsWin(t *testing.T) {
	e := newTestExtractor(nil)
	existing := intent.Slots{"title": "Board review"}

	slots := e.Extract(context.Background(), Input{
		Text:     "Schedule a team meeting tomorrow at 3pm",
		Intent:   intent.CreateEvent,
		Existing: existing,
	})

	assert.Equal(t, "Board review", slots["title"])
	assert.Len(t, existing, 1, "input map must not be mutated")
}

func TestExtract_Idempotent(t *testing.T) {
	e := newTestExtractor(nil)
	texts := map[intent.Intent]string{
		intent.CreateEvent: "Lunch with Sarah at Cafe Roma from 12 to 1pm every Friday",
		intent.AddReminder: "remind me to pay rent on friday",
		intent.CreateNote:  "jot this down: renew passport #admin",
		intent.SendEmail:   "email kim@example.com about the offsite saying see you there",
		intent.ReadEmail:   "show my new mail",
		intent.ListEvents:  "what is on my calendar tomorrow",
	}

	for in, text := range texts {
		t.Run(string(in), func(t *testing.T) {
			first := e.Extract(context.Background(), Input{Text: text, Intent: in})
			second := e.Extract(context.Background(), Input{Text: text, Intent: in, Existing: first})
			assert.Equal(t, first, second)
		})
	}
}

func TestExtract_HintsFillGaps(t *testing.T) {
	e := newTestExtractor(nil)

	slots := e.Extract(context.Background(), Input{
		Text:   "Schedule a team meeting tomorrow at 3pm",
		Intent: intent.CreateEvent,
		Hints:  intent.Slots{"title": "ignored", "location": "Room 4"},
	})

	assert.Contains(t, slots["title"], "team meeting")
	assert.Equal(t, "Room 4", slots["location"])
}

func TestRefinement_FillsMissingOnly(t *testing.T) {
	stub := &stubCompleter{content: "```json\n{\"task\": \"water the plants\", \"datetime_point\": \"2026-10-19T18:00:00Z\", \"title\": \"nope\"}\n```"}
	e := newTestExtractor(stub)

	slots := e.Extract(context.Background(), Input{
		Text:       "remind me",
		Intent:     intent.AddReminder,
		Confidence: 0.9,
	})

	assert.EqualValues(t, 1, stub.calls.Load())
	assert.Equal(t, "water the plants", slots["task"])
	assert.Equal(t, "2026-10-19T18:00:00Z", slots["datetime_point"])
}

func TestRefinement_NeverOverridesDeterministicSlots(t *testing.T) {
	stub := &stubCompleter{content: `{"title": "something else", "location": "HQ"}`}
	e := newTestExtractor(stub)

	slots := e.Extract(context.Background(), Input{
		Text:       "Schedule a team meeting tomorrow at 3pm",
		Intent:     intent.CreateEvent,
		Confidence: 0.5,
	})

	assert.EqualValues(t, 1, stub.calls.Load())
	assert.Contains(t, slots["title"], "team meeting")
	assert.Equal(t, "HQ", slots["location"])
}

func TestRefinement_SkippedWhenComplete(t *testing.T) {
	stub := &stubCompleter{content: `{}`}
	e := newTestExtractor(stub)

	e.Extract(context.Background(), Input{
		Text:       "Schedule a team meeting tomorrow at 3pm",
		Intent:     intent.CreateEvent,
		Confidence: 0.9,
	})
	e.Extract(context.Background(), Input{Text: "hello there", Intent: intent.None, Confidence: 0.1})

	assert.Zero(t, stub.calls.Load())
}

func TestRefinement_ErrorsAreIgnored(t *testing.T) {
	stub := &stubCompleter{err: errors.New("boom")}
	e := newTestExtractor(stub)

	slots := e.Extract(context.Background(), Input{
		Text:       "remind me to stretch",
		Intent:     intent.AddReminder,
		Confidence: 0.9,
	})

	assert.EqualValues(t, 1, stub.calls.Load())
	assert.Equal(t, "stretch", slots["task"])
}

func TestDefaultDuration(t *testing.T) {
	tests := map[string]int{
		"daily standup":      15,
		"coffee with Ana":    30,
		"quick call":         30,
		"breakfast meeting":  45,
		"lunch":              60,
		"interview with Sam": 60,
		"dinner with family": 90,
		"design workshop":    120,
		"quarterly planning": DefaultEventMinutes,
	}
	for text, want := range tests {
		assert.Equal(t, want, DefaultDuration(text), text)
	}
}

func TestRefinement_NoRefine(t *testing.T) {
	stub := &stubCompleter{content: `{"task": "stretch"}`}
	e := newTestExtractor(stub)

	slots := e.Extract(context.Background(), Input{
		Text:     "remind me",
		Intent:   intent.AddReminder,
		NoRefine: true,
	})

	assert.Zero(t, stub.calls.Load())
	assert.NotContains(t, slots, "task")
}

func TestExtract_IdempotenceProperty(t *testing.T) {
	e := newTestExtractor(nil)
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	fragments := []string{
		"schedule a meeting", "remind me to", "email", "note that", "lunch with Sarah",
		"tomorrow at 3pm", "from 12 to 1pm", "every Friday", "for 2 hours", "at Cafe Roma",
		"pay rent", "kim@example.com", "about the offsite", "saying see you there", "#admin",
		"next monday", "with Alex and Priya", "unread", "in the boardroom", "call mom",
	}
	intents := make([]interface{}, 0, len(intent.All))
	for _, in := range intent.All {
		intents = append(intents, in)
	}

	properties.Property("extracting again from the first result changes nothing", prop.ForAll(
		func(picks []int, in intent.Intent) bool {
			parts := make([]string, 0, len(picks))
			for _, p := range picks {
				parts = append(parts, fragments[p])
			}
			text := strings.Join(parts, " ")
			first := e.Extract(context.Background(), Input{Text: text, Intent: in})
			second := e.Extract(context.Background(), Input{Text: text, Intent: in, Existing: first})
			return reflect.DeepEqual(first, second)
		},
		gen.SliceOfN(4, gen.IntRange(0, len(fragments)-1)),
		gen.OneConstOf(intents...).Map(func(v intent.Intent) intent.Intent { return v }),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
