// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package learning

import (
	"context"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/traylinx/switchAIAssist/internal/events"
	"github.com/traylinx/switchAIAssist/internal/store"
)

// DefaultWriteTimeout bounds each asynchronous store write.
const DefaultWriteTimeout = 5 * time.Second

// Persister writes prediction events from the bus to a store and records
// corrections synchronously for the loop. Failures are logged and counted.
type Persister struct {
	store   store.Store
	timeout time.Duration

	written atomic.Int64
	failed  atomic.Int64
	subs    []*events.Subscription
}

// NewPersister creates a persister for st.
func NewPersister(st store.Store, timeout time.Duration) *Persister {
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	return &Persister{store: st, timeout: timeout}
}

// Attach subscribes p to the prediction topic of bus. Predictions may be
// dropped when the bus is full; corrections never go through it.
func (p *Persister) Attach(bus *events.Bus) {
	p.subs = append(p.subs, bus.Subscribe(events.TopicPrediction, p.handlePrediction))
}

// Detach removes the subscriptions made by Attach.
func (p *Persister) Detach(bus *events.Bus) {
	for _, sub := range p.subs {
		bus.Unsubscribe(sub)
	}
	p.subs = nil
}

// Written reports successful writes.
func (p *Persister) Written() int64 { return p.written.Load() }

// Failed reports failed writes.
func (p *Persister) Failed() int64 { return p.failed.Load() }

func (p *Persister) handlePrediction(ev *events.Event) {
	pred, ok := ev.Payload.(events.Prediction)
	if !ok || pred.Result == nil {
		return
	}
	res := pred.Result
	rec := &store.PredictionRecord{
		ID:                pred.ID,
		Timestamp:         ev.Time,
		Text:              pred.Text,
		Intent:            string(res.Intent),
		Confidence:        res.Confidence,
		Source:            string(res.Source),
		NeedsConfirmation: res.NeedsConfirmation,
		LLMFallback:       res.LLMFallback,
		Backend:           pred.Backend,
		LatencyMs:         pred.Latency.Milliseconds(),
		CacheHit:          pred.CacheHit,
		Slots:             res.Slots,
	}
	if pred.Evaluation {
		rec.Expected = string(pred.Expected)
	}
	_ = p.write(context.Background(), "prediction", func(ctx context.Context) error {
		return p.store.RecordPrediction(ctx, rec)
	})
}

// RecordCorrection stores c before returning. The write is bounded by the
// persister timeout but survives cancellation of ctx.
func (p *Persister) RecordCorrection(ctx context.Context, c events.Correction) error {
	rec := &store.CorrectionRecord{
		ID:                 c.ID,
		Timestamp:          c.Time,
		Text:               c.Text,
		OriginalIntent:     string(c.PredictedIntent),
		OriginalConfidence: c.OriginalConfidence,
		CorrectedIntent:    string(c.CorrectedIntent),
		CorrectedSlots:     c.CorrectedSlots,
		PredictedSlots:     c.PredictedSlots,
		UserID:             c.UserID,
		CorrectionType:     c.CorrectionType,
		Applied:            true,
		Priority:           c.Priority,
	}
	return p.write(context.WithoutCancel(ctx), "correction", func(ctx context.Context) error {
		return p.store.RecordCorrection(ctx, rec)
	})
}

func (p *Persister) write(parent context.Context, kind string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, p.timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		p.failed.Add(1)
		log.Warnf("learning: failed to persist %s: %v", kind, err)
		return err
	}
	p.written.Add(1)
	return nil
}
