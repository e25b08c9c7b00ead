// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/traylinx/switchAIAssist/internal/intent"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "nested", "assist.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mongo", "x")
	assert.True(t, errors.Is(err, ErrUnsupportedDriver))
}

func TestOpen_EmptySQLitePath(t *testing.T) {
	_, err := Open(context.Background(), "sqlite", "")
	assert.Error(t, err)
}

func TestSQLite_RecordAndStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	preds := []*PredictionRecord{
		{Text: "schedule standup", Intent: "create_event", Confidence: 0.9, Source: "nearest-neighbor", LatencyMs: 4},
		{Text: "schedule lunch", Intent: "create_event", Confidence: 0.7, Source: "completion", Backend: "local", LatencyMs: 400},
		{Text: "check inbox", Intent: "read_email", Confidence: 0.95, Source: "cache", CacheHit: true, LatencyMs: 1},
		{Text: "book flight", Intent: "create_event", Confidence: 0.5, Source: "rule", LLMFallback: true, Expected: "none", LatencyMs: 10},
		{Text: "old one", Intent: "create_note", Confidence: 0.9, Source: "rule", Timestamp: now.Add(-48 * time.Hour)},
	}
	for _, p := range preds {
		require.NoError(t, s.RecordPrediction(ctx, p))
		assert.NotEmpty(t, p.ID)
	}

	require.NoError(t, s.RecordCorrection(ctx, &CorrectionRecord{
		Text:               "book flight",
		OriginalIntent:     "create_event",
		OriginalConfidence: 0.5,
		CorrectedIntent:    "none",
		CorrectedSlots:     intent.Slots{"destination": "Lisbon"},
		Priority:           3,
	}))

	st, err := s.Stats(ctx, now.Add(-time.Hour))
	require.NoError(t, err)

	assert.EqualValues(t, 4, st.Predictions)
	assert.EqualValues(t, 1, st.Corrections)
	assert.EqualValues(t, 1, st.CacheHits)
	assert.EqualValues(t, 1, st.Fallbacks)
	assert.InDelta(t, 0.75, st.Accuracy, 1e-9)
	assert.EqualValues(t, 1, st.Evaluations)
	assert.InDelta(t, 0.0, st.EvaluationAccuracy, 1e-9)
	assert.EqualValues(t, 1, st.BySource["cache"])

	ev := st.ByIntent["create_event"]
	require.NotNil(t, ev)
	assert.EqualValues(t, 3, ev.Predictions)
	assert.EqualValues(t, 1, ev.Corrections)
	assert.InDelta(t, 2.0/3.0, ev.Accuracy, 1e-9)
	assert.InDelta(t, 0.7, ev.AvgConfidence, 1e-9)
	assert.NotContains(t, st.ByIntent, "create_note")
}

func TestSQLite_Corrections(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Minute)

	for i, text := range []string{"first", "second", "third"} {
		require.NoError(t, s.RecordCorrection(ctx, &CorrectionRecord{
			Timestamp:       base.Add(time.Duration(i) * time.Second),
			Text:            text,
			OriginalIntent:  "none",
			CorrectedIntent: "create_note",
			CorrectedSlots:  intent.Slots{"body": text},
			Priority:        1,
		}))
	}

	all, err := s.LoadCorrections(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "third", all[0].Text)
	assert.Equal(t, "third", all[0].CorrectedSlots["body"])

	limited, err := s.LoadCorrections(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSQLite_TrainingQueue(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	low := &TrainingExample{Text: "a", Intent: "create_note", Priority: 1, Source: "correction"}
	high := &TrainingExample{Text: "b", Intent: "none", Priority: 4, Source: "correction", Slots: intent.Slots{"x": "y"}}
	require.NoError(t, s.EnqueueTraining(ctx, low))
	require.NoError(t, s.EnqueueTraining(ctx, high))
	assert.NotZero(t, low.ID)
	assert.NotEqual(t, low.ID, high.ID)

	pending, err := s.LoadExamples(ctx, true, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "b", pending[0].Text)
	assert.Equal(t, "y", pending[0].Slots["x"])

	require.NoError(t, s.MarkExported(ctx, []int64{high.ID}))
	require.NoError(t, s.MarkExported(ctx, nil))

	pending, err = s.LoadExamples(ctx, true, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a", pending[0].Text)

	all, err := s.LoadExamples(ctx, false, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	st, err := s.Stats(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.PendingTraining)
}

func TestSQLite_Prune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	old := time.Now().Add(-40 * 24 * time.Hour)

	require.NoError(t, s.RecordPrediction(ctx, &PredictionRecord{Text: "old", Intent: "none", Source: "rule", Timestamp: old}))
	require.NoError(t, s.RecordPrediction(ctx, &PredictionRecord{Text: "new", Intent: "none", Source: "rule"}))
	require.NoError(t, s.RecordCorrection(ctx, &CorrectionRecord{Text: "old", OriginalIntent: "none", CorrectedIntent: "create_note", Timestamp: old}))
	require.NoError(t, s.EnqueueTraining(ctx, &TrainingExample{Text: "old exported", Intent: "none", CreatedAt: old, Exported: true}))
	require.NoError(t, s.EnqueueTraining(ctx, &TrainingExample{Text: "old pending", Intent: "none", CreatedAt: old}))

	n, err := s.Prune(ctx, time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	corrections, err := s.LoadCorrections(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, corrections, 1, "corrections survive pruning")

	examples, err := s.LoadExamples(ctx, false, 0)
	require.NoError(t, err)
	require.Len(t, examples, 1)
	assert.Equal(t, "old pending", examples[0].Text)
}

func TestSQLite_Closed(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	err := s.RecordPrediction(context.Background(), &PredictionRecord{Text: "x", Intent: "none"})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Stats(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSQLite_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assist.db")
	ctx := context.Background()

	s, err := Open(ctx, "sqlite3", path)
	require.NoError(t, err)
	require.NoError(t, s.RecordCorrection(ctx, &CorrectionRecord{Text: "keep me", OriginalIntent: "none", CorrectedIntent: "create_note"}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, "sqlite3", path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.LoadCorrections(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "keep me", got[0].Text)
}
