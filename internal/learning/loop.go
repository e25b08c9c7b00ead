// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package learning applies user corrections. A correction is visible to the
// very next classification through the nearest-neighbor index, and is queued
// with a priority for offline retraining.
package learning

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/switchAIAssist/internal/events"
	"github.com/traylinx/switchAIAssist/internal/intent"
	"github.com/traylinx/switchAIAssist/internal/store"
)

// ErrInvalidCorrection is returned for corrections with blank text or an
// unknown intent.
var ErrInvalidCorrection = errors.New("learning: invalid correction")

// LowConfidence is the original confidence below which a correction gets the
// largest priority boost.
const LowConfidence = 0.4

// Indexer receives corrected exemplars.
type Indexer interface {
	Append(in intent.Intent, text string, slots intent.Slots) bool
}

// Publisher queues events for asynchronous delivery.
type Publisher interface {
	PublishAsync(topic events.Topic, payload any) bool
}

// CorrectionRecorder durably stores an applied correction.
type CorrectionRecorder interface {
	RecordCorrection(ctx context.Context, c events.Correction) error
}

// Correction is a user's fix for one prediction.
type Correction struct {
	Text               string
	PredictedIntent    string
	PredictedSlots     intent.Slots
	OriginalConfidence float64
	CorrectedIntent    string
	CorrectedSlots     intent.Slots
	UserID             string
	CorrectionType     string
}

// Outcome describes what ApplyCorrection did.
type Outcome struct {
	ID       string
	Intent   intent.Intent
	Priority int
	Queued   bool
}

// Stats is a snapshot of loop activity.
type Stats struct {
	Applied  int64                   `json:"applied"`
	Pending  int                     `json:"pending"`
	Evicted  int64                   `json:"evicted"`
	Exported int64                   `json:"exported"`
	ByIntent map[intent.Intent]int64 `json:"by_intent"`
}

// Loop is the correction pipeline.
type Loop struct {
	index      Indexer
	invalidate func(text string)
	publisher  Publisher
	recorder   CorrectionRecorder
	now        func() time.Time

	mu       sync.Mutex
	queue    *Queue
	applied  int64
	exported int64
	byIntent map[intent.Intent]int64
}

// Option customizes a Loop.
type Option func(*Loop)

// WithInvalidator registers a hook called with the corrected text so callers
// can drop cached classifications for it.
func WithInvalidator(fn func(text string)) Option {
	return func(l *Loop) { l.invalidate = fn }
}

// WithPublisher sends correction and training events to p.
func WithPublisher(p Publisher) Option {
	return func(l *Loop) { l.publisher = p }
}

// WithRecorder stores every applied correction through r before
// ApplyCorrection returns.
func WithRecorder(r CorrectionRecorder) Option {
	return func(l *Loop) { l.recorder = r }
}

// WithCapacity bounds the retraining queue.
func WithCapacity(n int) Option {
	return func(l *Loop) { l.queue = NewQueue(n) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// New creates a loop that writes exemplars to index.
func New(index Indexer, opts ...Option) *Loop {
	l := &Loop{
		index:    index,
		now:      time.Now,
		queue:    NewQueue(DefaultQueueCapacity),
		byIntent: make(map[intent.Intent]int64),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Priority scores a correction for the retraining queue.
func Priority(predicted, corrected intent.Intent, originalConfidence float64, predictedSlots, correctedSlots intent.Slots) int {
	p := 1
	if predicted != corrected {
		p++
	}
	if originalConfidence < LowConfidence {
		p += 2
	}
	if len(correctedSlots) > 0 && !reflect.DeepEqual(map[string]any(predictedSlots), map[string]any(correctedSlots)) {
		p++
	}
	return p
}

// ApplyCorrection validates c, appends it to the index, invalidates cached
// results for its text, queues it for retraining and publishes it for
// persistence. Only validation errors are returned.
func (l *Loop) ApplyCorrection(ctx context.Context, c Correction) (*Outcome, error) {
	text := strings.TrimSpace(c.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalidCorrection)
	}
	corrected, ok := intent.Parse(c.CorrectedIntent)
	if !ok {
		return nil, fmt.Errorf("%w: unknown intent %q", ErrInvalidCorrection, c.CorrectedIntent)
	}
	predicted, _ := intent.Parse(c.PredictedIntent)

	priority := Priority(predicted, corrected, c.OriginalConfidence, c.PredictedSlots, c.CorrectedSlots)

	if l.index != nil {
		l.index.Append(corrected, text, c.CorrectedSlots)
	}
	if l.invalidate != nil {
		l.invalidate(text)
	}

	l.mu.Lock()
	queued := l.queue.Push(&Item{
		Text:     text,
		Intent:   corrected,
		Slots:    c.CorrectedSlots.Clone(),
		Priority: priority,
		Queued:   l.now(),
	})
	l.applied++
	l.byIntent[corrected]++
	l.mu.Unlock()

	out := &Outcome{ID: uuid.NewString(), Intent: corrected, Priority: priority, Queued: queued}
	ev := events.Correction{
		ID:                 out.ID,
		Time:               l.now(),
		Text:               text,
		PredictedIntent:    predicted,
		PredictedSlots:     c.PredictedSlots.Clone(),
		OriginalConfidence: intent.ClampConfidence(c.OriginalConfidence),
		CorrectedIntent:    corrected,
		CorrectedSlots:     c.CorrectedSlots.Clone(),
		UserID:             c.UserID,
		CorrectionType:     c.CorrectionType,
		Priority:           priority,
	}

	// the index already holds the correction; a failed write only loses it
	// across restarts and is logged by the recorder
	if l.recorder != nil {
		_ = l.recorder.RecordCorrection(ctx, ev)
	}
	if l.publisher != nil {
		l.publisher.PublishAsync(events.TopicCorrection, ev)
	}

	log.WithFields(log.Fields{
		"intent":   corrected,
		"priority": priority,
		"queued":   queued,
	}).Debug("correction applied")
	return out, nil
}

// Restore replays stored corrections into the index without queueing or
// publishing them. Records are applied oldest first so newer ones win exact
// matches. It returns the number applied.
func (l *Loop) Restore(records []*store.CorrectionRecord) int {
	if l.index == nil {
		return 0
	}
	n := 0
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		in, ok := intent.Parse(rec.CorrectedIntent)
		if !ok {
			continue
		}
		if l.index.Append(in, rec.Text, rec.CorrectedSlots) {
			n++
		}
	}
	return n
}

// Drain removes up to n queued items in priority order.
func (l *Loop) Drain(n int) []*Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.Pop(n)
}

// Export moves up to batch queued items into st as training examples.
// Items that fail to persist are requeued.
func (l *Loop) Export(ctx context.Context, st store.Store, batch int) (int, error) {
	items := l.Drain(batch)
	if len(items) == 0 {
		return 0, nil
	}

	exported := 0
	var firstErr error
	for i, it := range items {
		ex := &store.TrainingExample{
			CreatedAt: it.Queued,
			Text:      it.Text,
			Intent:    string(it.Intent),
			Slots:     it.Slots,
			Priority:  it.Priority,
			Source:    "correction",
		}
		if err := st.EnqueueTraining(ctx, ex); err != nil {
			firstErr = err
			l.requeue(items[i:])
			break
		}
		exported++
		if l.publisher != nil {
			l.publisher.PublishAsync(events.TopicTraining, events.Training{
				Text:     it.Text,
				Intent:   it.Intent,
				Slots:    it.Slots,
				Priority: it.Priority,
				Source:   ex.Source,
			})
		}
	}

	l.mu.Lock()
	l.exported += int64(exported)
	l.mu.Unlock()

	if firstErr != nil {
		return exported, fmt.Errorf("learning: export stopped after %d items: %w", exported, firstErr)
	}
	return exported, nil
}

func (l *Loop) requeue(items []*Item) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, it := range items {
		l.queue.Push(it)
	}
}

// Pending returns the queue length.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.Len()
}

// Stats returns a snapshot of loop counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	by := make(map[intent.Intent]int64, len(l.byIntent))
	for k, v := range l.byIntent {
		by[k] = v
	}
	return Stats{
		Applied:  l.applied,
		Pending:  l.queue.Len(),
		Evicted:  l.queue.Evicted(),
		Exported: l.exported,
		ByIntent: by,
	}
}
