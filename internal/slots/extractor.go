// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package slots extracts structured slots from an utterance once its intent
// is known. Stages run in a fixed order and each only fills slots that are
// still empty, so deterministic stages win over the language-model
// refinement pass that runs last.
package slots

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	log "github.com/sirupsen/logrus"
	"github.com/traylinx/switchAIAssist/internal/completion"
	"github.com/traylinx/switchAIAssist/internal/intent"
)

// Completer is the subset of the completion router used for refinement.
type Completer interface {
	Complete(ctx context.Context, req completion.Request) (*completion.Response, error)
}

// Config tunes the extractor.
type Config struct {
	// Location anchors relative dates; nil means time.Local.
	Location *time.Location

	// RefineTimeout bounds the refinement call.
	RefineTimeout time.Duration

	// ConfirmThreshold is the confidence below which refinement runs even
	// when every required slot is present.
	ConfirmThreshold float64
}

// Extractor runs the slot pipeline.
type Extractor struct {
	cfg       Config
	parser    *when.Parser
	completer Completer
	now       func() time.Time
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithClock fixes the reference time used to resolve relative dates.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// New creates an extractor. completer may be nil, which disables refinement.
func New(completer Completer, cfg Config, opts ...Option) *Extractor {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.RefineTimeout <= 0 {
		cfg.RefineTimeout = 2 * time.Second
	}
	if cfg.ConfirmThreshold <= 0 {
		cfg.ConfirmThreshold = intent.DefaultConfirmThreshold
	}

	parser := when.New(nil)
	parser.Add(en.All...)
	parser.Add(common.All...)

	e := &Extractor{cfg: cfg, parser: parser, completer: completer, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Input is one extraction request.
type Input struct {
	Text       string
	Intent     intent.Intent
	Confidence float64

	// Existing slots are kept as-is; they usually come from a corrected exemplar
	// or an earlier run. The map is not mutated.
	Existing intent.Slots

	// Hints are slots proposed by the classifying model. They fill gaps left by
	// the deterministic stages.
	Hints intent.Slots

	// NoRefine skips the refinement call, e.g. right after the router failed.
	NoRefine bool
}

// run carries per-extraction state between stages.
type run struct {
	text  string
	in    intent.Intent
	slots intent.Slots
	base  time.Time

	// spans are byte ranges of text already consumed by a stage
	spans [][2]int

	explicitMinutes int
	impliedMinutes  int
}

func (r *run) set(name string, value any) bool {
	if r.slots.Has(name) {
		return false
	}
	candidate := intent.Slots{name: value}
	if !candidate.Has(name) {
		return false
	}
	r.slots[name] = value
	return true
}

func (r *run) consume(start, end int) {
	if start < 0 || end > len(r.text) || start >= end {
		return
	}
	r.spans = append(r.spans, [2]int{start, end})
}

func (r *run) consumed(start, end int) bool {
	for _, s := range r.spans {
		if start < s[1] && end > s[0] {
			return true
		}
	}
	return false
}

// blanked returns text with consumed spans replaced by spaces, keeping offsets.
func (r *run) blanked() string {
	b := []byte(r.text)
	for _, s := range r.spans {
		for i := s[0]; i < s[1] && i < len(b); i++ {
			b[i] = ' '
		}
	}
	return string(b)
}

// remainder returns text with consumed spans removed and whitespace collapsed.
func (r *run) remainder() string {
	spans := append([][2]int(nil), r.spans...)
	sort.Slice(spans, func(i, j int) bool { return spans[i][0] < spans[j][0] })
	var sb strings.Builder
	pos := 0
	for _, s := range spans {
		if s[0] > pos {
			sb.WriteString(r.text[pos:s[0]])
			sb.WriteByte(' ')
		}
		if s[1] > pos {
			pos = s[1]
		}
	}
	if pos < len(r.text) {
		sb.WriteString(r.text[pos:])
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// Extract runs every stage and returns a new slot map.
func (e *Extractor) Extract(ctx context.Context, in Input) intent.Slots {
	r := &run{
		text:  in.Text,
		in:    in.Intent,
		slots: in.Existing.Clone(),
		base:  e.now().In(e.cfg.Location),
	}

	e.temporalStage(r)
	e.entityStage(r)
	e.intentStage(r)
	if len(in.Hints) > 0 {
		r.slots.MergeMissing(in.Hints)
	}
	if !in.NoRefine {
		e.refineStage(ctx, r, in.Confidence)
	}

	return r.slots
}

// refineStage asks the completion router for missing slots when required
// ones are absent or confidence is low. Results are merged additively.
func (e *Extractor) refineStage(ctx context.Context, r *run, confidence float64) {
	if e.completer == nil || r.in == intent.None {
		return
	}
	missing := intent.MissingSlots(r.in, r.slots)
	if len(missing) == 0 && confidence >= e.cfg.ConfirmThreshold {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.RefineTimeout)
	defer cancel()

	resp, err := e.completer.Complete(ctx, completion.Request{
		SystemPrompt: intent.RefinementSystemPrompt(),
		Prompt:       intent.RefinementPrompt(r.text, r.in, r.slots, missing, r.base.Format(time.RFC3339)),
		JSON:         true,
		Complexity:   completion.ComplexityLow,
	})
	if err != nil {
		log.Debugf("slots: refinement skipped: %v", err)
		return
	}
	extra, err := intent.ParseObject(resp.Content)
	if err != nil {
		log.Debugf("slots: refinement reply unusable: %v", err)
		return
	}
	if filled := r.slots.MergeMissing(extra); len(filled) > 0 {
		log.Debugf("slots: refinement filled %v via %s", filled, resp.Backend)
	}
}
