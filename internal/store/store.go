// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package store persists predictions, corrections and training examples.
// SQLite is the default backend; PostgreSQL is supported through pgx.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/traylinx/switchAIAssist/internal/intent"
)

var (
	// ErrUnsupportedDriver is returned by Open for unknown driver names.
	ErrUnsupportedDriver = errors.New("store: unsupported driver")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store: closed")
)

// PredictionRecord is one served classification.
type PredictionRecord struct {
	ID                string       `json:"id"`
	Timestamp         time.Time    `json:"timestamp"`
	Text              string       `json:"text"`
	Intent            string       `json:"intent"`
	Confidence        float64      `json:"confidence"`
	Source            string       `json:"source"`
	NeedsConfirmation bool         `json:"needs_confirmation"`
	LLMFallback       bool         `json:"llm_fallback"`
	Backend           string       `json:"backend,omitempty"`
	LatencyMs         int64        `json:"latency_ms"`
	CacheHit          bool         `json:"cache_hit"`
	Slots             intent.Slots `json:"slots,omitempty"`

	// Expected is set for evaluation requests that carried a label.
	Expected string `json:"expected,omitempty"`
}

// CorrectionRecord is one user correction.
type CorrectionRecord struct {
	ID                 string       `json:"id"`
	Timestamp          time.Time    `json:"timestamp"`
	Text               string       `json:"text"`
	OriginalIntent     string       `json:"original_intent"`
	OriginalConfidence float64      `json:"original_confidence"`
	CorrectedIntent    string       `json:"corrected_intent"`
	CorrectedSlots     intent.Slots `json:"corrected_slots,omitempty"`
	PredictedSlots     intent.Slots `json:"predicted_slots,omitempty"`
	UserID             string       `json:"user_id,omitempty"`
	CorrectionType     string       `json:"correction_type,omitempty"`
	Applied            bool         `json:"applied"`
	Priority           int          `json:"priority"`
}

// TrainingExample is a labeled utterance queued for offline training.
type TrainingExample struct {
	ID        int64        `json:"id"`
	CreatedAt time.Time    `json:"created_at"`
	Text      string       `json:"text"`
	Intent    string       `json:"intent"`
	Slots     intent.Slots `json:"slots,omitempty"`
	Priority  int          `json:"priority"`
	Source    string       `json:"source"`
	Exported  bool         `json:"exported"`
}

// IntentStats aggregates one intent over a window.
type IntentStats struct {
	Intent        string  `json:"intent"`
	Predictions   int64   `json:"predictions"`
	Corrections   int64   `json:"corrections"`
	Accuracy      float64 `json:"accuracy"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// Stats summarizes activity since a point in time. Accuracy is estimated as
// the share of predictions that were not corrected.
type Stats struct {
	Since              time.Time               `json:"since"`
	Predictions        int64                   `json:"predictions"`
	Corrections        int64                   `json:"corrections"`
	CacheHits          int64                   `json:"cache_hits"`
	Fallbacks          int64                   `json:"fallbacks"`
	AvgLatencyMs       float64                 `json:"avg_latency_ms"`
	AvgConfidence      float64                 `json:"avg_confidence"`
	Accuracy           float64                 `json:"accuracy"`
	Evaluations        int64                   `json:"evaluations"`
	EvaluationAccuracy float64                 `json:"evaluation_accuracy"`
	PendingTraining    int64                   `json:"pending_training"`
	BySource           map[string]int64        `json:"by_source"`
	ByIntent           map[string]*IntentStats `json:"by_intent"`
}

// Store is the persistence contract used by the classifier and learning loop.
type Store interface {
	RecordPrediction(ctx context.Context, rec *PredictionRecord) error
	RecordCorrection(ctx context.Context, rec *CorrectionRecord) error
	EnqueueTraining(ctx context.Context, ex *TrainingExample) error

	// LoadCorrections returns corrections newest first; limit <= 0 means all.
	LoadCorrections(ctx context.Context, limit int) ([]*CorrectionRecord, error)

	// LoadExamples returns training examples ordered by priority then age.
	LoadExamples(ctx context.Context, onlyPending bool, limit int) ([]*TrainingExample, error)
	MarkExported(ctx context.Context, ids []int64) error

	Stats(ctx context.Context, since time.Time) (*Stats, error)

	// Prune deletes predictions and exported examples older than before.
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close() error
}
