// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package heartbeat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/traylinx/switchAIAssist/internal/backend"
	"github.com/traylinx/switchAIAssist/internal/completion"
	"github.com/traylinx/switchAIAssist/internal/events"
)

// fakeSource implements Source for testing.
type fakeSource struct {
	mu       sync.Mutex
	backends map[string]*completion.BackendStatus
	order    []string
	probeErr map[string]error
	probed   []string
}

func newFakeSource(names ...string) *fakeSource {
	s := &fakeSource{backends: make(map[string]*completion.BackendStatus), probeErr: make(map[string]error)}
	for _, n := range names {
		s.backends[n] = &completion.BackendStatus{Name: n, Healthy: true, HasCredentials: true}
		s.order = append(s.order, n)
	}
	return s
}

func (s *fakeSource) setHealthy(name string, healthy bool, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backends[name].Healthy = healthy
	s.backends[name].LastError = reason
}

func (s *fakeSource) Snapshot() []completion.BackendStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]completion.BackendStatus, 0, len(s.order))
	for _, n := range s.order {
		out = append(out, *s.backends[n])
	}
	return out
}

func (s *fakeSource) WarmUp(ctx context.Context, names []string, timeout time.Duration) map[string]error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]error)
	for _, n := range names {
		s.probed = append(s.probed, n)
		out[n] = s.probeErr[n]
	}
	return out
}

func (s *fakeSource) MarkHealthy(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.backends[name]
	if st.Healthy {
		return false
	}
	st.Healthy = true
	st.LastError = ""
	return true
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.BackendStatus
}

func (p *recordingPublisher) PublishAsync(topic events.Topic, payload any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := payload.(events.BackendStatus); ok && topic == events.TopicBackendStatus {
		p.events = append(p.events, st)
	}
	return true
}

func (p *recordingPublisher) snapshot() []events.BackendStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.BackendStatus(nil), p.events...)
}

func TestMonitorTransitions(t *testing.T) {
	src := newFakeSource("ollama", "openai")
	pub := &recordingPublisher{}
	m := New(src, Config{Enabled: true, Interval: time.Hour}, pub)
	ctx := context.Background()

	m.CheckAll(ctx)
	if got := len(pub.snapshot()); got != 0 {
		t.Fatalf("expected no events for healthy first sighting, got %d", got)
	}

	src.setHealthy("openai", false, "rate limited")
	m.CheckAll(ctx)
	m.CheckAll(ctx)

	evs := pub.snapshot()
	if len(evs) != 1 {
		t.Fatalf("expected exactly one transition, got %d", len(evs))
	}
	if evs[0].Backend != "openai" || evs[0].Healthy || evs[0].Reason != "rate limited" {
		t.Errorf("unexpected event %+v", evs[0])
	}

	src.setHealthy("openai", true, "")
	m.CheckAll(ctx)
	evs = pub.snapshot()
	if len(evs) != 2 || !evs[1].Healthy {
		t.Fatalf("expected recovery event, got %+v", evs)
	}

	if st := m.Stats(); st.TotalCycles != 4 || st.Transitions != 2 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestMonitorProbesUnavailable(t *testing.T) {
	src := newFakeSource("ollama", "openai")
	src.setHealthy("ollama", false, "connection refused")
	src.setHealthy("openai", false, "timeout")
	src.probeErr["openai"] = errors.New("still down")

	m := New(src, Config{Enabled: true, Interval: time.Hour, ProbeUnavailable: true}, nil)
	m.CheckAll(context.Background())

	if len(src.probed) != 2 {
		t.Fatalf("expected both backends probed, got %v", src.probed)
	}
	st, ok := m.Status("ollama")
	if !ok || st.State != StateHealthy {
		t.Errorf("ollama should be back in rotation, got %+v", st)
	}
	st, ok = m.Status("openai")
	if !ok || st.State != StateUnavailable {
		t.Errorf("openai should stay unavailable, got %+v", st)
	}
	if got := m.Stats().Recoveries; got != 1 {
		t.Errorf("expected 1 recovery, got %d", got)
	}
}

func TestMonitorSkipsUnconfigured(t *testing.T) {
	src := newFakeSource("ollama", "anthropic")
	src.backends["anthropic"].HasCredentials = false
	src.backends["anthropic"].Healthy = false
	pub := &recordingPublisher{}

	m := New(src, Config{Enabled: true, Interval: time.Hour, ProbeUnavailable: true}, pub)
	m.CheckAll(context.Background())

	if len(src.probed) != 0 {
		t.Errorf("unconfigured backends must not be probed, got %v", src.probed)
	}
	if len(pub.snapshot()) != 0 {
		t.Errorf("unconfigured backends must not emit transitions")
	}
	sum := m.Summary()
	if sum.Status != OverallOK || sum.Total != 1 || len(sum.Backends) != 2 {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestSummaryStatus(t *testing.T) {
	src := newFakeSource("a", "b")
	m := New(src, Config{Enabled: true, Interval: time.Hour}, nil)

	if got := m.Summary().Status; got != OverallOK {
		t.Errorf("expected ok before first cycle, got %s", got)
	}

	src.setHealthy("a", false, "down")
	m.CheckAll(context.Background())
	if sum := m.Summary(); sum.Status != OverallOK || sum.Healthy != 1 || sum.Total != 2 {
		t.Errorf("expected ok with one healthy backend, got %+v", sum)
	}

	src.setHealthy("b", false, "down")
	m.CheckAll(context.Background())
	if got := m.Summary().Status; got != OverallDegraded {
		t.Errorf("expected degraded, got %s", got)
	}

	empty := New(newFakeSource(), Config{Enabled: true}, nil)
	if got := empty.Summary().Status; got != OverallRulesOnly {
		t.Errorf("expected rules-only without backends, got %s", got)
	}
}

func TestMonitorStartStop(t *testing.T) {
	src := newFakeSource("ollama")
	m := New(src, Config{Enabled: true, Interval: 20 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Failed to start monitor: %v", err)
	}
	if err := m.Start(ctx); err == nil {
		t.Error("second start should fail")
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.Stats().TotalCycles < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if m.Stats().TotalCycles < 2 {
		t.Fatalf("expected at least 2 cycles, got %d", m.Stats().TotalCycles)
	}

	m.Stop()
	m.Stop()
}

func TestMonitorDisabled(t *testing.T) {
	m := New(newFakeSource(), Config{Enabled: false}, nil)
	if err := m.Start(context.Background()); err == nil {
		t.Error("disabled monitor should refuse to start")
	}
}

// switchableAdapter fails with err until it is cleared.
type switchableAdapter struct {
	mu    sync.Mutex
	err   error
	calls atomic.Int32
}

func (a *switchableAdapter) Call(context.Context, *backend.Request) (backend.Reply, error) {
	a.calls.Add(1)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return backend.Reply{}, a.err
	}
	return backend.Reply{Kind: backend.KindOpenAI, OpenAI: &backend.OpenAIReply{Model: "m", Content: "ready"}}, nil
}

func (a *switchableAdapter) succeed() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = nil
}

func TestMonitorWaitsForCoolDownBeforeProbing(t *testing.T) {
	hint := 120 * time.Second
	adapter := &switchableAdapter{err: backend.StatusError{Code: 429, RetryAfter: &hint}}

	cfg := completion.DefaultConfig()
	cfg.RetryCount = 1
	router := completion.NewRouter(cfg)
	defer router.Close()
	spec := backend.Spec{Name: "openai", Kind: backend.KindOpenAI, APIKey: "k", Model: "gpt"}
	if err := router.Register(backend.NewWithAdapter(spec, adapter)); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if _, err := router.Complete(context.Background(), completion.Request{Prompt: "hello"}); err == nil {
		t.Fatal("expected rate-limited completion to fail")
	}
	adapter.succeed()

	var healsAt time.Time
	for _, st := range router.Snapshot() {
		if st.Name == "openai" && st.HealsAt != nil {
			healsAt = *st.HealsAt
		}
	}
	if healsAt.Before(start.Add(hint)) {
		t.Fatalf("cool-down should honor the retry-after hint, heals at %v", healsAt)
	}

	m := New(router, Config{Enabled: true, Interval: time.Hour, ProbeUnavailable: true}, nil)
	m.now = func() time.Time { return start.Add(20 * time.Millisecond) }
	m.CheckAll(context.Background())

	if st, _ := m.Status("openai"); st.State != StateUnavailable {
		t.Errorf("backend restored before its cool-down, got %+v", st)
	}
	if got := adapter.calls.Load(); got != 1 {
		t.Errorf("expected no probe during cool-down, got %d upstream calls", got)
	}

	m.now = func() time.Time { return healsAt.Add(time.Second) }
	m.CheckAll(context.Background())

	if st, _ := m.Status("openai"); st.State != StateHealthy {
		t.Errorf("backend should be back after its cool-down, got %+v", st)
	}
	if got := m.Stats().Recoveries; got != 1 {
		t.Errorf("expected 1 recovery, got %d", got)
	}
}
