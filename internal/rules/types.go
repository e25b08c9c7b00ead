// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rules

import (
	"regexp"
	"time"

	"github.com/traylinx/switchAIAssist/internal/intent"
)

// CustomRule is an operator-defined rule loaded from a YAML file.
type CustomRule struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Intent      string `yaml:"intent" json:"intent"`
	Pattern     string `yaml:"pattern" json:"pattern"`
	Condition   string `yaml:"condition" json:"condition"` // Expression: "length < 40 && weekday == 'Mon'"
	Priority    int    `yaml:"priority" json:"priority"`   // Higher = evaluated first

	// FilePath is the source file of the rule (not in YAML)
	FilePath string `yaml:"-" json:"-"`

	re *regexp.Regexp
}

// MatchContext is the environment custom rule conditions are evaluated against.
type MatchContext struct {
	Text    string   `expr:"text"`
	Lower   string   `expr:"lower"`
	Words   []string `expr:"words"`
	Length  int      `expr:"length"`
	Hour    int      `expr:"hour"`
	Weekday string   `expr:"weekday"`
}

// Match is the outcome of rule classification.
type Match struct {
	Intent     intent.Intent
	Confidence float64
	// Rule names the rule that fired; empty for the fallback.
	Rule string
}

func newMatchContext(text, lower string, words []string, now time.Time) *MatchContext {
	return &MatchContext{
		Text:    text,
		Lower:   lower,
		Words:   words,
		Length:  len(text),
		Hour:    now.Hour(),
		Weekday: now.Weekday().String()[:3],
	}
}
