// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package learning

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/traylinx/switchAIAssist/internal/events"
	"github.com/traylinx/switchAIAssist/internal/intent"
	"github.com/traylinx/switchAIAssist/internal/neighbors"
	"github.com/traylinx/switchAIAssist/internal/store"
)

type recordingPublisher struct {
	mu     sync.Mutex
	topics []events.Topic
	last   map[events.Topic]any
}

func (p *recordingPublisher) PublishAsync(topic events.Topic, payload any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		p.last = make(map[events.Topic]any)
	}
	p.topics = append(p.topics, topic)
	p.last[topic] = payload
	return true
}

func TestPriority(t *testing.T) {
	tests := []struct {
		name      string
		predicted intent.Intent
		corrected intent.Intent
		conf      float64
		before    intent.Slots
		after     intent.Slots
		want      int
	}{
		{"confirmed as-is", intent.CreateNote, intent.CreateNote, 0.9, nil, nil, 1},
		{"intent changed", intent.None, intent.CreateNote, 0.9, nil, nil, 2},
		{"low confidence", intent.CreateNote, intent.CreateNote, 0.2, nil, nil, 3},
		{"slots changed", intent.CreateNote, intent.CreateNote, 0.9, intent.Slots{"body": "a"}, intent.Slots{"body": "b"}, 2},
		{"same slots", intent.CreateNote, intent.CreateNote, 0.9, intent.Slots{"body": "a"}, intent.Slots{"body": "a"}, 1},
		{"everything", intent.None, intent.CreateEvent, 0.1, nil, intent.Slots{"title": "flight"}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Priority(tt.predicted, tt.corrected, tt.conf, tt.before, tt.after))
		})
	}
}

func TestApplyCorrection_Validation(t *testing.T) {
	l := New(neighbors.New(0))

	_, err := l.ApplyCorrection(context.Background(), Correction{Text: "  ", CorrectedIntent: "create_note"})
	assert.ErrorIs(t, err, ErrInvalidCorrection)

	_, err = l.ApplyCorrection(context.Background(), Correction{Text: "book flight", CorrectedIntent: "teleport"})
	assert.ErrorIs(t, err, ErrInvalidCorrection)

	assert.Zero(t, l.Pending())
}

func TestApplyCorrection_ReadYourWrite(t *testing.T) {
	idx := neighbors.New(0)
	var invalidated []string
	pub := &recordingPublisher{}
	l := New(idx, WithInvalidator(func(text string) { invalidated = append(invalidated, text) }), WithPublisher(pub))

	before := idx.Classify("book flight")
	if before != nil {
		assert.NotEqual(t, intent.CreateEvent, before.Intent)
	}

	out, err := l.ApplyCorrection(context.Background(), Correction{
		Text:               "book flight",
		PredictedIntent:    "none",
		OriginalConfidence: 0.5,
		CorrectedIntent:    "create_event",
		CorrectedSlots:     intent.Slots{"title": "flight"},
		UserID:             "u-1",
	})
	require.NoError(t, err)
	assert.Equal(t, intent.CreateEvent, out.Intent)
	assert.Equal(t, 3, out.Priority)
	assert.True(t, out.Queued)
	assert.NotEmpty(t, out.ID)

	m := idx.Classify("book flight")
	require.NotNil(t, m)
	assert.Equal(t, intent.CreateEvent, m.Intent)
	assert.Equal(t, 1.0, m.Confidence)
	assert.Equal(t, "flight", m.Slots["title"])

	assert.Equal(t, []string{"book flight"}, invalidated)
	assert.Equal(t, 1, l.Pending())

	require.Contains(t, pub.last, events.TopicCorrection)
	c := pub.last[events.TopicCorrection].(events.Correction)
	assert.Equal(t, out.ID, c.ID)
	assert.Equal(t, intent.None, c.PredictedIntent)
	assert.Equal(t, "u-1", c.UserID)
}

func TestLoop_DrainOrder(t *testing.T) {
	l := New(nil)
	ctx := context.Background()

	_, _ = l.ApplyCorrection(ctx, Correction{Text: "a", PredictedIntent: "create_note", CorrectedIntent: "create_note", OriginalConfidence: 0.9})
	_, _ = l.ApplyCorrection(ctx, Correction{Text: "b", PredictedIntent: "none", CorrectedIntent: "create_note", OriginalConfidence: 0.1})
	_, _ = l.ApplyCorrection(ctx, Correction{Text: "c", PredictedIntent: "none", CorrectedIntent: "create_note", OriginalConfidence: 0.9})

	items := l.Drain(0)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"b", "c", "a"}, []string{items[0].Text, items[1].Text, items[2].Text})
	assert.Zero(t, l.Pending())

	st := l.Stats()
	assert.EqualValues(t, 3, st.Applied)
	assert.EqualValues(t, 3, st.ByIntent[intent.CreateNote])
}

func TestLoop_CapacityEvictsLowest(t *testing.T) {
	l := New(nil, WithCapacity(2))
	ctx := context.Background()

	_, _ = l.ApplyCorrection(ctx, Correction{Text: "low", PredictedIntent: "create_note", CorrectedIntent: "create_note", OriginalConfidence: 0.9})
	_, _ = l.ApplyCorrection(ctx, Correction{Text: "mid", PredictedIntent: "none", CorrectedIntent: "create_note", OriginalConfidence: 0.9})
	out, err := l.ApplyCorrection(ctx, Correction{Text: "high", PredictedIntent: "none", CorrectedIntent: "create_note", OriginalConfidence: 0.1})
	require.NoError(t, err)
	assert.True(t, out.Queued)

	out, err = l.ApplyCorrection(ctx, Correction{Text: "another low", PredictedIntent: "create_note", CorrectedIntent: "create_note", OriginalConfidence: 0.9})
	require.NoError(t, err)
	assert.False(t, out.Queued)

	items := l.Drain(0)
	require.Len(t, items, 2)
	assert.Equal(t, "high", items[0].Text)
	assert.Equal(t, "mid", items[1].Text)
	assert.EqualValues(t, 2, l.Stats().Evicted)
}

func TestLoop_Export(t *testing.T) {
	pub := &recordingPublisher{}
	l := New(nil, WithPublisher(pub))
	ctx := context.Background()
	_, _ = l.ApplyCorrection(ctx, Correction{Text: "one", CorrectedIntent: "create_note"})
	_, _ = l.ApplyCorrection(ctx, Correction{Text: "two", CorrectedIntent: "list_events"})

	st := new(MockStore)
	st.On("EnqueueTraining", mock.MatchedBy(func(ex *store.TrainingExample) bool {
		return ex.Source == "correction" && ex.Text != ""
	})).Return(nil).Twice()

	n, err := l.Export(ctx, st, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, l.Pending())
	assert.EqualValues(t, 2, l.Stats().Exported)
	assert.Contains(t, pub.topics, events.TopicTraining)
	st.AssertExpectations(t)

	n, err = l.Export(ctx, st, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLoop_ExportRequeuesOnFailure(t *testing.T) {
	l := New(nil)
	ctx := context.Background()
	_, _ = l.ApplyCorrection(ctx, Correction{Text: "first", PredictedIntent: "none", CorrectedIntent: "create_note", OriginalConfidence: 0.1})
	_, _ = l.ApplyCorrection(ctx, Correction{Text: "second", PredictedIntent: "create_note", CorrectedIntent: "create_note", OriginalConfidence: 0.9})

	boom := errors.New("disk full")
	st := new(MockStore)
	st.On("EnqueueTraining", mock.MatchedBy(func(ex *store.TrainingExample) bool { return ex.Text == "first" })).Return(nil).Once()
	st.On("EnqueueTraining", mock.MatchedBy(func(ex *store.TrainingExample) bool { return ex.Text == "second" })).Return(boom).Once()

	n, err := l.Export(ctx, st, 0)
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, l.Pending())
	st.AssertExpectations(t)
}

func TestLoop_Restore(t *testing.T) {
	idx := neighbors.New(0)
	l := New(idx, WithClock(func() time.Time { return time.Unix(0, 0) }))

	n := l.Restore([]*store.CorrectionRecord{
		{Text: "plan my week", CorrectedIntent: "list_events"},
		{Text: "plan my week", CorrectedIntent: "create_note"},
		{Text: "bogus", CorrectedIntent: "teleport"},
	})
	assert.Equal(t, 2, n)
	assert.Zero(t, l.Pending(), "restored corrections are not requeued")

	m := idx.Classify("plan my week")
	require.NotNil(t, m)
	assert.Equal(t, intent.ListEvents, m.Intent, "newest record wins the exact match")
}
