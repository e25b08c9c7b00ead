// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package events

import (
	"time"

	"github.com/traylinx/switchAIAssist/internal/intent"
)

// Prediction is published for every classification served.
type Prediction struct {
	ID         string
	Text       string
	Result     *intent.Result
	Latency    time.Duration
	Backend    string
	CacheHit   bool
	Expected   intent.Intent
	Evaluation bool
}

// Correction is published when a user fixes a prediction.
type Correction struct {
	ID                 string
	Time               time.Time
	Text               string
	PredictedIntent    intent.Intent
	PredictedSlots     intent.Slots
	OriginalConfidence float64
	CorrectedIntent    intent.Intent
	CorrectedSlots     intent.Slots
	UserID             string
	CorrectionType     string
	Priority           int
}

// Training is published when a correction is promoted into a training example.
type Training struct {
	Text     string
	Intent   intent.Intent
	Slots    intent.Slots
	Priority int
	Source   string
}

// BackendStatus is published when a completion backend changes health.
type BackendStatus struct {
	Backend string
	Healthy bool
	Reason  string
}
