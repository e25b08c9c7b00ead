// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rules

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/traylinx/switchAIAssist/internal/intent"
)

func TestClassify_Builtins(t *testing.T) {
	c := New("")
	tests := []struct {
		text string
		want intent.Intent
	}{
		{"Remind me to water the plants", intent.AddReminder},
		{"remind me to email john", intent.AddReminder},
		{"check my inbox", intent.ReadEmail},
		{"any new emails from Dana?", intent.ReadEmail},
		{"send an email to the team", intent.SendEmail},
		{"email Bob that the report is ready", intent.SendEmail},
		{"take a note: buy milk", intent.CreateNote},
		{"jot this down", intent.CreateNote},
		{"what's on my calendar tomorrow", intent.ListEvents},
		{"Schedule a team meeting tomorrow at 3pm", intent.CreateEvent},
		{"lunch with Sarah on Friday", intent.CreateEvent},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			m := c.Classify(tt.text)
			assert.Equal(t, tt.want, m.Intent)
			assert.Equal(t, RuleConfidence, m.Confidence)
			assert.NotEmpty(t, m.Rule)
		})
	}
}

func TestClassify_Fallback(t *testing.T) {
	c := New("")
	for _, text := range []string{"xyzzy plugh", "", "   "} {
		m := c.Classify(text)
		assert.Equal(t, intent.None, m.Intent)
		assert.Equal(t, FallbackConfidence, m.Confidence)
		assert.Empty(t, m.Rule)
	}
}

func writeRule(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
}

func TestLoadRules_CustomRulesTakePrecedence(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "travel.yaml", `
name: travel-booking
intent: create_event
pattern: '\b(flight|hotel|train)\b'
priority: 10
`)
	writeRule(t, dir, "many.yml", `
- name: short-ping
  intent: none
  condition: 'length < 6'
  priority: 1
- name: pizza
  intent: order_pizza
  pattern: pizza
- name: broken-regex
  intent: create_note
  pattern: '(['
`)
	writeRule(t, dir, "ignored.txt", "not yaml")

	c := New(dir)
	require.NoError(t, c.LoadRules())

	loaded := c.Rules()
	require.Len(t, loaded, 2, "unknown intents and bad patterns are skipped")
	assert.Equal(t, "travel-booking", loaded[0].Name, "sorted by priority")

	m := c.Classify("book a flight to Lisbon")
	assert.Equal(t, intent.CreateEvent, m.Intent)
	assert.Equal(t, "travel-booking", m.Rule)
	assert.Equal(t, RuleConfidence, m.Confidence)

	m = c.Classify("hey")
	assert.Equal(t, intent.None, m.Intent)
	assert.Equal(t, "short-ping", m.Rule)
	assert.Equal(t, RuleConfidence, m.Confidence)
}

func TestLoadRules_ConditionUsesContext(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "weekday.yaml", `
name: monday-standup
intent: create_event
pattern: sync
condition: 'weekday == "Mon" && "sync" in words'
`)
	c := New(dir)
	c.now = func() time.Time { return time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC) } // a Monday
	require.NoError(t, c.LoadRules())

	assert.Equal(t, "monday-standup", c.Classify("quick sync").Rule)

	c.now = func() time.Time { return time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC) }
	m := c.Classify("quick sync")
	assert.NotEqual(t, "monday-standup", m.Rule)
}

func TestLoadRules_MissingDirIsCreated(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "rules")
	c := New(dir)
	require.NoError(t, c.LoadRules())
	_, err := os.Stat(dir)
	assert.NoError(t, err)
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)
	require.NoError(t, c.LoadRules())
	require.NoError(t, c.StartWatcher())
	defer c.StopWatcher()

	writeRule(t, dir, "late.yaml", "name: late\nintent: create_note\npattern: scribble\n")

	assert.Eventually(t, func() bool {
		return c.Classify("scribble something").Rule == "late"
	}, 3*time.Second, 50*time.Millisecond)
}

func TestConditionEvaluator(t *testing.T) {
	e := NewConditionEvaluator()
	ctx := &MatchContext{Text: "Hi", Lower: "hi", Words: []string{"hi"}, Length: 2}

	ok, err := e.Evaluate("", ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Evaluate("length > 1 && lower == 'hi'", ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = e.Evaluate("length +", ctx)
	assert.Error(t, err)

	assert.Error(t, e.Compile("length + 1"), "non-boolean conditions are rejected")
}
