// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package completion routes text-completion requests across interchangeable
// backends. It picks a primary and an ordered fallback chain per request,
// retries transient failures with jittered exponential backoff, and excludes
// failing backends for a cool-down window.
package completion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/switchAIAssist/internal/backend"
	"github.com/traylinx/switchAIAssist/internal/cache"
	"golang.org/x/sync/singleflight"
)

// Complexity is a coarse hint used to pick the primary backend.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Config holds the router's tunables.
type Config struct {
	// InferenceTimeout bounds a single backend call.
	InferenceTimeout time.Duration

	// RetryCount is the number of attempts per backend, including the first.
	RetryCount int

	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// MaxRetryAfter is the longest server-advised delay honored locally.
	MaxRetryAfter time.Duration

	// CoolDown is how long a failed backend stays excluded.
	CoolDown time.Duration

	CacheTTL      time.Duration
	CacheCapacity int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		InferenceTimeout: 30 * time.Second,
		RetryCount:       3,
		RetryBaseDelay:   500 * time.Millisecond,
		RetryMaxDelay:    8 * time.Second,
		MaxRetryAfter:    30 * time.Second,
		CoolDown:         60 * time.Second,
		CacheTTL:         10 * time.Minute,
		CacheCapacity:    500,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.InferenceTimeout <= 0 {
		c.InferenceTimeout = d.InferenceTimeout
	}
	if c.RetryCount <= 0 {
		c.RetryCount = d.RetryCount
	}
	if c.RetryBaseDelay < 0 {
		c.RetryBaseDelay = d.RetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = d.RetryMaxDelay
	}
	if c.MaxRetryAfter <= 0 {
		c.MaxRetryAfter = d.MaxRetryAfter
	}
	if c.CoolDown <= 0 {
		c.CoolDown = d.CoolDown
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = d.CacheCapacity
	}
	return c
}

// Request is a routed completion request.
type Request struct {
	Prompt       string
	SystemPrompt string
	Temperature  *float64
	MaxTokens    int
	JSON         bool
	Complexity   Complexity
}

func (r Request) backendRequest() *backend.Request {
	return &backend.Request{
		Prompt:       r.Prompt,
		SystemPrompt: r.SystemPrompt,
		Temperature:  r.Temperature,
		MaxTokens:    r.MaxTokens,
		JSON:         r.JSON,
	}
}

// Response is the routed completion outcome.
type Response struct {
	Content      string        `json:"content"`
	Backend      string        `json:"backend"`
	Model        string        `json:"model"`
	TokensUsed   int           `json:"tokens_used"`
	ResponseTime time.Duration `json:"response_time"`
	Cached       bool          `json:"cached"`
}

// Observer receives call outcomes and health transitions, e.g. for metrics.
type Observer interface {
	BackendCall(backend, outcome string, latency time.Duration)
	BackendHealth(backend string, healthy bool)
}

type nopObserver struct{}

func (nopObserver) BackendCall(string, string, time.Duration) {}
func (nopObserver) BackendHealth(string, bool)                {}

// Router holds the backend registry and routes requests across it.
type Router struct {
	cfg Config

	mu       sync.RWMutex
	backends []*backendState

	responses *cache.Cache[string, Response]
	group     singleflight.Group
	observer  Observer

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// Option customizes a Router.
type Option func(*Router)

// WithObserver installs a call/health observer.
func WithObserver(o Observer) Option {
	return func(r *Router) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithClock overrides the time source used for usage windows.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// WithSleep overrides the backoff sleeper, mostly for tests.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(r *Router) { r.sleep = sleep }
}

// NewRouter creates a router with no backends registered.
func NewRouter(cfg Config, opts ...Option) *Router {
	cfg = cfg.withDefaults()
	r := &Router{
		cfg:      cfg,
		observer: nopObserver{},
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.responses = cache.New[string, Response](cfg.CacheTTL, cfg.CacheCapacity, cache.WithClock(r.now))
	return r
}

// Register adds backends to the registry, keeping it sorted by priority.
func (r *Router) Register(backends ...*backend.Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, b := range backends {
		if b == nil {
			continue
		}
		for _, existing := range r.backends {
			if existing.name() == b.Spec.Name {
				return fmt.Errorf("completion: backend %q already registered", b.Spec.Name)
			}
		}
		r.backends = append(r.backends, newBackendState(b, r.now()))
		log.Infof("completion: registered backend %s (%s, model=%s, priority=%d)", b.Spec.Name, b.Spec.Kind, b.Spec.Model, b.Spec.Priority)
	}
	sort.SliceStable(r.backends, func(i, j int) bool {
		return r.backends[i].Spec.Priority < r.backends[j].Spec.Priority
	})
	return nil
}

// Len returns the number of registered backends.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.backends)
}

func (r *Router) snapshotStates() []*backendState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*backendState, len(r.backends))
	copy(out, r.backends)
	return out
}

// CacheKey derives the response cache key from complexity and prompt prefixes.
func CacheKey(req Request) string {
	prompt := req.Prompt
	if len(prompt) > 512 {
		prompt = prompt[:512]
	}
	system := req.SystemPrompt
	if len(system) > 256 {
		system = system[:256]
	}
	sum := sha256.Sum256([]byte(string(req.Complexity) + "\x00" + system + "\x00" + prompt))
	return hex.EncodeToString(sum[:])[:16]
}

// Complete routes req to the best available backend, falling back through the
// remaining eligible backends on failure. Identical concurrent requests share
// one upstream call. The upstream work is detached from ctx cancellation and
// bounded by the inference timeout, so a caller that stops waiting still
// leaves a warm cache entry behind.
func (r *Router) Complete(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	if req.Complexity == "" {
		req.Complexity = ComplexityMedium
	}

	key := CacheKey(req)
	if cached, ok := r.responses.Get(key); ok {
		cached.Cached = true
		return &cached, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		return r.execute(detached, req, key)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		resp := *res.Val.(*Response)
		return &resp, nil
	}
}

func (r *Router) execute(ctx context.Context, req Request, key string) (*Response, error) {
	chain := r.selectChain(req.Complexity)
	if len(chain) == 0 {
		return nil, ErrNoBackendAvailable
	}

	attempted := make([]string, 0, len(chain))
	var lastErr error
	for _, st := range chain {
		attempted = append(attempted, st.name())

		res, err := r.callWithRetry(ctx, st, req)
		if err == nil {
			content := StripReasoning(res.Content)
			if content == "" {
				err = fmt.Errorf("%w: empty content from %s", backend.ErrMalformedReply, st.name())
			} else {
				st.recordSuccess(r.now(), res.TokensUsed)
				resp := &Response{
					Content:      content,
					Backend:      st.name(),
					Model:        res.Model,
					TokensUsed:   res.TokensUsed,
					ResponseTime: res.ResponseTime,
				}
				r.responses.Set(key, *resp)
				return resp, nil
			}
		}

		lastErr = err
		log.Warnf("completion: backend %s failed, trying next: %v", st.name(), err)
		r.markUnhealthy(st, err)
	}

	return nil, &ExhaustedError{Attempted: attempted, Last: lastErr}
}

// selectChain returns the eligible backends with the complexity-preferred one
// first and the rest in priority order.
func (r *Router) selectChain(complexity Complexity) []*backendState {
	now := r.now()
	eligible := make([]*backendState, 0)
	for _, st := range r.snapshotStates() {
		if st.eligible(now) {
			eligible = append(eligible, st)
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	var want backend.Role
	switch complexity {
	case ComplexityHigh:
		want = backend.RoleCapable
	case ComplexityLow:
		want = backend.RoleFast
	}

	primary := 0
	if want != backend.RoleNone {
		for i, st := range eligible {
			if st.Spec.Role == want {
				primary = i
				break
			}
		}
	}

	chain := make([]*backendState, 0, len(eligible))
	chain = append(chain, eligible[primary])
	for i, st := range eligible {
		if i != primary {
			chain = append(chain, st)
		}
	}
	return chain
}

// markUnhealthy excludes st for the cool-down, or for the upstream
// retry-after hint when that is longer.
func (r *Router) markUnhealthy(st *backendState, cause error) {
	name := st.name()
	coolDown := r.cfg.CoolDown
	if hint, ok := backend.RetryAfterOf(cause); ok && hint > coolDown {
		coolDown = hint
	}
	st.markUnhealthy(r.now(), coolDown, cause, func() {
		log.Infof("completion: backend %s cool-down elapsed, eligible again", name)
		r.observer.BackendHealth(name, true)
	})
	r.observer.BackendHealth(name, false)
}

// MarkHealthy clears a backend's cool-down early.
func (r *Router) MarkHealthy(name string) bool {
	for _, st := range r.snapshotStates() {
		if st.name() == name {
			if st.heal(0) {
				r.observer.BackendHealth(name, true)
			}
			return true
		}
	}
	return false
}

// Snapshot returns the status of every registered backend in priority order.
func (r *Router) Snapshot() []BackendStatus {
	now := r.now()
	states := r.snapshotStates()
	out := make([]BackendStatus, 0, len(states))
	for _, st := range states {
		out = append(out, st.status(now))
	}
	return out
}

// Available reports whether at least one backend is currently selectable.
func (r *Router) Available() bool {
	now := r.now()
	for _, st := range r.snapshotStates() {
		if st.eligible(now) {
			return true
		}
	}
	return false
}

// CacheStats returns response cache counters.
func (r *Router) CacheStats() cache.Stats {
	return r.responses.Stats()
}

// Close stops pending heal timers.
func (r *Router) Close() {
	for _, st := range r.snapshotStates() {
		st.stop()
	}
}
