// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package learning

import (
	"context"
	"errors"
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

func TestPersister_WritesPredictionsAndCorrections(t *testing.T) {
	bus := events.New(16)
	st := new(MockStore)
	p := NewPersister(st, time.Second)
	p.Attach(bus)

	st.On("RecordPrediction", mock.MatchedBy(func(rec *store.PredictionRecord) bool {
		return rec.ID == "p-1" && rec.Intent == "read_email" && rec.Source == "rule" &&
			rec.LatencyMs == 12 && rec.Expected == "read_email"
	})).Return(nil).Once()
	st.On("RecordCorrection", mock.MatchedBy(func(rec *store.CorrectionRecord) bool {
		return rec.Text == "book flight" && rec.CorrectedIntent == "create_event" && rec.Applied && rec.Priority == 3
	})).Return(nil).Once()

	bus.PublishAsync(events.TopicPrediction, events.Prediction{
		ID:   "p-1",
		Text: "check my inbox",
		Result: &intent.Result{
			Intent:     intent.ReadEmail,
			Confidence: 0.7,
			Source:     intent.SourceRule,
		},
		Latency:    12 * time.Millisecond,
		Expected:   intent.ReadEmail,
		Evaluation: true,
	})

	loop := New(neighbors.New(0), WithPublisher(bus), WithRecorder(p))
	_, err := loop.ApplyCorrection(context.Background(), Correction{
		Text:               "book flight",
		PredictedIntent:    "none",
		OriginalConfidence: 0.5,
		CorrectedIntent:    "create_event",
		CorrectedSlots:     intent.Slots{"title": "flight"},
	})
	require.NoError(t, err)
	st.AssertCalled(t, "RecordCorrection", mock.Anything)

	require.True(t, bus.Shutdown(time.Second))
	st.AssertExpectations(t)
	assert.EqualValues(t, 2, p.Written())
	assert.Zero(t, p.Failed())
}

func TestPersister_FailuresAreCounted(t *testing.T) {
	bus := events.New(4)
	st := new(MockStore)
	p := NewPersister(st, 0)
	p.Attach(bus)

	st.On("RecordPrediction", mock.Anything).Return(errors.New("database is locked"))

	bus.PublishAsync(events.TopicPrediction, events.Prediction{Result: &intent.Result{Intent: intent.None}})
	bus.PublishAsync(events.TopicPrediction, "not a prediction")
	require.True(t, bus.Shutdown(time.Second))

	assert.EqualValues(t, 1, p.Failed())
	assert.Zero(t, p.Written())
}

func TestPersister_Detach(t *testing.T) {
	bus := events.New(4)
	st := new(MockStore)
	p := NewPersister(st, time.Second)
	p.Attach(bus)
	p.Detach(bus)

	bus.Publish(&events.Event{Topic: events.TopicPrediction, Payload: events.Prediction{Result: &intent.Result{Intent: intent.None}}})
	bus.Publish(&events.Event{Topic: events.TopicCorrection, Payload: events.Correction{Text: "x"}})
	st.AssertNotCalled(t, "RecordPrediction", mock.Anything)
	st.AssertNotCalled(t, "RecordCorrection", mock.Anything)
}

// droppingPublisher behaves like a bus whose queue is always full.
type droppingPublisher struct{ dropped int }

func (d *droppingPublisher) PublishAsync(events.Topic, any) bool {
	d.dropped++
	return false
}

func TestLoop_CorrectionRecordedWhenBusDrops(t *testing.T) {
	st := new(MockStore)
	p := NewPersister(st, time.Second)
	pub := &droppingPublisher{}
	loop := New(neighbors.New(0), WithPublisher(pub), WithRecorder(p))

	st.On("RecordCorrection", mock.MatchedBy(func(rec *store.CorrectionRecord) bool {
		return rec.Text == "ping sam" && rec.CorrectedIntent == "send_email"
	})).Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := loop.ApplyCorrection(ctx, Correction{
		Text:            "ping sam",
		PredictedIntent: "read_email",
		CorrectedIntent: "send_email",
	})
	require.NoError(t, err)

	st.AssertExpectations(t)
	assert.Equal(t, 1, pub.dropped)
	assert.EqualValues(t, 1, p.Written())
}

func TestLoop_RecorderFailureDoesNotFailCorrection(t *testing.T) {
	st := new(MockStore)
	p := NewPersister(st, time.Second)
	idx := neighbors.New(0)
	loop := New(idx, WithRecorder(p))

	st.On("RecordCorrection", mock.Anything).Return(errors.New("disk full")).Once()

	out, err := loop.ApplyCorrection(context.Background(), Correction{Text: "jot this", CorrectedIntent: "create_note"})
	require.NoError(t, err)
	assert.Equal(t, intent.CreateNote, out.Intent)
	assert.Equal(t, 1, idx.Size())
	assert.EqualValues(t, 1, p.Failed())
}
