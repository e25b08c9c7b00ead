// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package classifier runs the intent cascade: cache, nearest-neighbor index,
// completion router and finally the rule floor. Slots are extracted for the
// winning intent and the result is cached and published.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/switchAIAssist/internal/cache"
	"github.com/traylinx/switchAIAssist/internal/completion"
	"github.com/traylinx/switchAIAssist/internal/events"
	"github.com/traylinx/switchAIAssist/internal/intent"
	"github.com/traylinx/switchAIAssist/internal/neighbors"
	"github.com/traylinx/switchAIAssist/internal/rules"
	"github.com/traylinx/switchAIAssist/internal/slots"
)

var (
	// ErrEmptyText rejects blank utterances before the cascade runs.
	ErrEmptyText = errors.New("classifier: text is required")

	// ErrInvalidLabel rejects evaluation labels outside the taxonomy.
	ErrInvalidLabel = errors.New("classifier: unknown evaluation label")
)

// Index is the nearest-neighbor stage.
type Index interface {
	Classify(text string) *neighbors.Match
}

// RuleFloor is the last-resort stage. It never fails.
type RuleFloor interface {
	Classify(text string) rules.Match
}

// Extractor fills slots for a chosen intent.
type Extractor interface {
	Extract(ctx context.Context, in slots.Input) intent.Slots
}

// Completer is the completion router.
type Completer interface {
	Complete(ctx context.Context, req completion.Request) (*completion.Response, error)
}

// Publisher queues events for asynchronous delivery.
type Publisher interface {
	PublishAsync(topic events.Topic, payload any) bool
}

// CacheObserver is told about every classification cache lookup.
type CacheObserver interface {
	CacheLookup(hit bool)
}

// Config tunes the cascade.
type Config struct {
	// AcceptThreshold is the nearest-neighbor confidence that must be exceeded
	// to skip the completion stage.
	AcceptThreshold float64

	// ConfirmThreshold is the confidence below which a result needs confirmation.
	ConfirmThreshold float64

	// RaceTimeout bounds the completion stage.
	RaceTimeout time.Duration

	CacheTTL      time.Duration
	CacheCapacity int

	// LongText is the length above which completion calls use medium complexity.
	LongText int
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		AcceptThreshold:  0.85,
		ConfirmThreshold: intent.DefaultConfirmThreshold,
		RaceTimeout:      time.Second,
		CacheTTL:         time.Hour,
		CacheCapacity:    1000,
		LongText:         120,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.AcceptThreshold <= 0 || c.AcceptThreshold > 1 {
		c.AcceptThreshold = d.AcceptThreshold
	}
	if c.ConfirmThreshold <= 0 || c.ConfirmThreshold > 1 {
		c.ConfirmThreshold = d.ConfirmThreshold
	}
	if c.RaceTimeout <= 0 {
		c.RaceTimeout = d.RaceTimeout
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = d.CacheCapacity
	}
	if c.LongText <= 0 {
		c.LongText = d.LongText
	}
	return c
}

// Request is one classification call.
type Request struct {
	Text string

	// Context is passed to the completion stage. Requests that carry it are
	// neither served from nor written to the cache.
	Context map[string]any

	// Label puts the call in evaluation mode: the cache is bypassed and the
	// result records whether it matched.
	Label string
}

// Classifier is the cascade orchestrator. It is safe for concurrent use.
type Classifier struct {
	cfg       Config
	cache     *cache.Cache[string, *intent.Result]
	index     Index
	rules     RuleFloor
	extractor Extractor
	completer Completer
	publisher Publisher
	observer  CacheObserver
	now       func() time.Time

	// generation advances on every invalidation. A cascade that started
	// under an older generation does not write its result to the cache.
	generation atomic.Uint64
}

// Option customizes a Classifier.
type Option func(*Classifier)

// WithCompleter enables the completion stage.
func WithCompleter(c Completer) Option {
	return func(cl *Classifier) { cl.completer = c }
}

// WithPublisher publishes a prediction event per classification.
func WithPublisher(p Publisher) Option {
	return func(cl *Classifier) { cl.publisher = p }
}

// WithCacheObserver reports cache hits and misses.
func WithCacheObserver(o CacheObserver) Option {
	return func(cl *Classifier) { cl.observer = o }
}

// WithClock overrides the time source used for latency and cache expiry.
func WithClock(now func() time.Time) Option {
	return func(cl *Classifier) { cl.now = now }
}

// New wires a classifier. The index, rule floor and extractor are required.
func New(cfg Config, index Index, floor RuleFloor, extractor Extractor, opts ...Option) (*Classifier, error) {
	if index == nil || floor == nil || extractor == nil {
		return nil, fmt.Errorf("classifier: index, rule floor and slot extractor are required")
	}
	cl := &Classifier{
		cfg:       cfg.withDefaults(),
		index:     index,
		rules:     floor,
		extractor: extractor,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(cl)
	}
	cl.cache = cache.New[string, *intent.Result](cl.cfg.CacheTTL, cl.cfg.CacheCapacity, cache.WithClock(cl.now))
	return cl, nil
}

// Classify runs the cascade for req. Only validation errors are returned;
// every other failure degrades to a lower stage.
func (c *Classifier) Classify(ctx context.Context, req Request) (res *intent.Result, err error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyText
	}
	var expected intent.Intent
	evaluation := strings.TrimSpace(req.Label) != ""
	if evaluation {
		var ok bool
		if expected, ok = intent.Parse(req.Label); !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidLabel, req.Label)
		}
	}

	start := c.now()
	key := neighbors.Normalize(text)
	var backendName string
	cacheHit := false

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("classifier: panic during cascade, using rule floor: %v", r)
			res = c.ruleResult(text, false)
			res.Finalize(c.cfg.ConfirmThreshold)
			err = nil
		}
		c.annotate(res, start, backendName, cacheHit, evaluation, expected)
		c.publish(text, res, start, backendName, cacheHit, evaluation, expected)
	}()

	cacheable := len(req.Context) == 0
	if !evaluation && cacheable {
		if cached, ok := c.cache.Get(key); ok {
			cacheHit = true
			c.observe(true)
			res = cached.Clone()
			res.Source = intent.SourceCache
			return res, nil
		}
		c.observe(false)
	}

	gen := c.generation.Load()
	res, backendName = c.cascade(ctx, text, req.Context)
	res.Finalize(c.cfg.ConfirmThreshold)
	if cacheable && !res.LLMFallback {
		c.store(key, res, gen)
	}
	return res, nil
}

func (c *Classifier) cascade(ctx context.Context, text string, reqCtx map[string]any) (*intent.Result, string) {
	nn := c.index.Classify(text)
	if nn != nil && nn.Confidence > c.cfg.AcceptThreshold {
		return c.withSlots(ctx, text, &intent.Result{
			Intent:     nn.Intent,
			Confidence: nn.Confidence,
			Source:     intent.SourceNearestNeighbor,
		}, nn.Slots, nil, false), ""
	}

	attempted := false
	if c.completer != nil {
		attempted = true
		payload, backendName, err := c.complete(ctx, text, reqCtx)
		if err == nil {
			return c.withSlots(ctx, text, &intent.Result{
				Intent:     payload.Intent,
				Confidence: payload.Confidence,
				Source:     intent.SourceCompletion,
			}, nil, payload.Slots, false), backendName
		}
		log.Debugf("classifier: completion stage failed, degrading: %v", err)
	}

	if nn != nil {
		conf := nn.Confidence
		if ceiling := c.cfg.ConfirmThreshold - 0.01; conf > ceiling {
			conf = ceiling
		}
		return c.withSlots(ctx, text, &intent.Result{
			Intent:      nn.Intent,
			Confidence:  conf,
			Source:      intent.SourceNearestNeighbor,
			LLMFallback: attempted,
		}, nn.Slots, nil, attempted), ""
	}

	return c.withSlots(ctx, text, c.ruleResult(text, attempted), nil, nil, attempted), ""
}

func (c *Classifier) ruleResult(text string, attempted bool) *intent.Result {
	m := c.rules.Classify(text)
	res := &intent.Result{
		Intent:      m.Intent,
		Confidence:  m.Confidence,
		Source:      intent.SourceRule,
		LLMFallback: attempted,
	}
	if m.Rule != "" {
		res.Metadata = map[string]any{"rule": m.Rule}
	}
	return res
}

func (c *Classifier) withSlots(ctx context.Context, text string, res *intent.Result, existing, hints intent.Slots, degraded bool) *intent.Result {
	res.Slots = c.extractor.Extract(ctx, slots.Input{
		Text:       text,
		Intent:     res.Intent,
		Confidence: res.Confidence,
		Existing:   existing,
		Hints:      hints,
		NoRefine:   degraded,
	})
	return res
}

// complete asks the router to classify text within the race timeout.
func (c *Classifier) complete(ctx context.Context, text string, reqCtx map[string]any) (*intent.Payload, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RaceTimeout)
	defer cancel()

	temperature := 0.0
	resp, err := c.completer.Complete(ctx, completion.Request{
		SystemPrompt: intent.ClassificationSystemPrompt(),
		Prompt:       intent.ClassificationPrompt(text, reqCtx),
		Temperature:  &temperature,
		JSON:         true,
		Complexity:   c.complexity(text),
	})
	if err != nil {
		return nil, "", err
	}
	payload, err := intent.ParsePayload(resp.Content)
	if err != nil {
		return nil, resp.Backend, fmt.Errorf("classifier: unusable reply from %s: %w", resp.Backend, err)
	}
	if !payload.KnownIntent {
		log.Debugf("classifier: %s answered outside the taxonomy, using %s", resp.Backend, intent.None)
	}
	return payload, resp.Backend, nil
}

func (c *Classifier) complexity(text string) completion.Complexity {
	if len(text) > c.cfg.LongText {
		return completion.ComplexityMedium
	}
	return completion.ComplexityLow
}

func (c *Classifier) annotate(res *intent.Result, start time.Time, backendName string, cacheHit, evaluation bool, expected intent.Intent) {
	if res == nil {
		return
	}
	if res.Metadata == nil {
		res.Metadata = make(map[string]any)
	}
	res.Metadata["latency_ms"] = c.now().Sub(start).Milliseconds()
	res.Metadata["cache_hit"] = cacheHit
	if backendName != "" {
		res.Metadata["backend"] = backendName
	}
	if evaluation {
		res.Metadata["expected"] = string(expected)
		res.Metadata["correct"] = res.Intent == expected
	}
}

func (c *Classifier) publish(text string, res *intent.Result, start time.Time, backendName string, cacheHit, evaluation bool, expected intent.Intent) {
	if c.publisher == nil || res == nil {
		return
	}
	c.publisher.PublishAsync(events.TopicPrediction, events.Prediction{
		ID:         uuid.NewString(),
		Text:       text,
		Result:     res.Clone(),
		Latency:    c.now().Sub(start),
		Backend:    backendName,
		CacheHit:   cacheHit,
		Expected:   expected,
		Evaluation: evaluation,
	})
}

func (c *Classifier) observe(hit bool) {
	if c.observer != nil {
		c.observer.CacheLookup(hit)
	}
}

// store caches res unless an invalidation happened after gen was read.
func (c *Classifier) store(key string, res *intent.Result, gen uint64) {
	if c.generation.Load() != gen {
		log.Debugf("classifier: cache invalidated during classification, not caching %q", key)
		return
	}
	c.cache.Set(key, res.Clone())
	if c.generation.Load() != gen {
		c.cache.Delete(key)
	}
}

// Invalidate drops the cached result for text and discards results of
// classifications still in flight.
func (c *Classifier) Invalidate(text string) {
	c.generation.Add(1)
	c.cache.Delete(neighbors.Normalize(text))
}

// CacheStats reports classification cache counters.
func (c *Classifier) CacheStats() cache.Stats {
	return c.cache.Stats()
}

// ClearCache empties the classification cache.
func (c *Classifier) ClearCache() {
	c.generation.Add(1)
	c.cache.Clear()
}
