// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package heartbeat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/traylinx/switchAIAssist/internal/completion"
	"github.com/traylinx/switchAIAssist/internal/events"
)

// Source is the completion router as seen by the monitor.
type Source interface {
	Snapshot() []completion.BackendStatus
	WarmUp(ctx context.Context, names []string, timeout time.Duration) map[string]error
	MarkHealthy(name string) bool
}

// Publisher queues events for asynchronous delivery.
type Publisher interface {
	PublishAsync(topic events.Topic, payload any) bool
}

// Monitor polls a Source and reports health transitions.
type Monitor struct {
	config    Config
	source    Source
	publisher Publisher

	statuses map[string]*BackendHealth
	stats    Stats

	mu sync.RWMutex

	cancel  context.CancelFunc
	ticker  *time.Ticker
	done    chan struct{}
	running bool
	now     func() time.Time
}

// New creates a monitor. A nil publisher disables transition events.
func New(source Source, config Config, publisher Publisher) *Monitor {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = DefaultConfig().ProbeTimeout
	}
	return &Monitor{
		config:    config,
		source:    source,
		publisher: publisher,
		statuses:  make(map[string]*BackendHealth),
		now:       time.Now,
	}
}

// Start begins the monitoring loop. The first cycle runs immediately.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if !m.config.Enabled {
		m.mu.Unlock()
		return fmt.Errorf("heartbeat monitoring is disabled")
	}
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("heartbeat monitor is already running")
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.ticker = time.NewTicker(m.config.Interval)
	m.done = make(chan struct{})
	m.stats.StartTime = m.now()
	m.running = true
	ticker, done := m.ticker, m.done
	m.mu.Unlock()

	log.Infof("heartbeat: monitoring backends every %v", m.config.Interval)

	go func() {
		defer close(done)
		m.CheckAll(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CheckAll(ctx)
			}
		}
	}()
	return nil
}

// Stop shuts down the loop and waits for the running cycle to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.cancel()
	m.ticker.Stop()
	done := m.done
	m.mu.Unlock()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Warn("heartbeat: stop timed out waiting for loop")
	}

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
}

// CheckAll runs one cycle: probe unavailable backends past their cool-down
// if configured, then record the router snapshot.
func (m *Monitor) CheckAll(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("heartbeat: panic during cycle: %v", r)
		}
	}()

	if m.config.ProbeUnavailable {
		m.probe(ctx)
	}
	m.record(m.source.Snapshot())

	m.mu.Lock()
	m.stats.TotalCycles++
	m.stats.LastCycleTime = m.now()
	m.mu.Unlock()
}

// probe warms up unavailable backends whose cool-down has elapsed and puts
// the ones that answer back in rotation.
func (m *Monitor) probe(ctx context.Context) {
	now := m.now()
	var names []string
	for _, st := range m.source.Snapshot() {
		if !st.HasCredentials || st.Healthy {
			continue
		}
		if st.HealsAt != nil && now.Before(*st.HealsAt) {
			continue
		}
		names = append(names, st.Name)
	}
	if len(names) == 0 {
		return
	}

	results := m.source.WarmUp(ctx, names, m.config.ProbeTimeout)

	m.mu.Lock()
	m.stats.Probes += int64(len(names))
	m.mu.Unlock()

	for _, name := range names {
		err, attempted := results[name]
		if !attempted || err != nil {
			continue
		}
		if m.source.MarkHealthy(name) {
			log.Infof("heartbeat: backend %s answered a probe and is back in rotation", name)
			m.mu.Lock()
			m.stats.Recoveries++
			m.mu.Unlock()
		}
	}
}

func stateOf(st completion.BackendStatus) BackendState {
	switch {
	case !st.HasCredentials:
		return StateUnconfigured
	case st.Healthy:
		return StateHealthy
	default:
		return StateUnavailable
	}
}

// record stores the snapshot and publishes one event per state change.
func (m *Monitor) record(snapshot []completion.BackendStatus) {
	now := m.now()
	var changes []events.BackendStatus

	m.mu.Lock()
	for _, st := range snapshot {
		next := &BackendHealth{
			Name:           st.Name,
			State:          stateOf(st),
			LastCheck:      now,
			LastError:      st.LastError,
			UnhealthySince: st.UnhealthySince,
			Successes:      st.Successes,
			Failures:       st.Failures,
		}
		prev := m.statuses[st.Name]
		m.statuses[st.Name] = next

		if next.State == StateUnconfigured {
			continue
		}
		// a first sighting only counts when the backend starts out of rotation
		if (prev == nil && next.State != StateHealthy) || (prev != nil && prev.State != next.State) {
			m.stats.Transitions++
			changes = append(changes, events.BackendStatus{
				Backend: st.Name,
				Healthy: next.State == StateHealthy,
				Reason:  st.LastError,
			})
		}
	}
	m.mu.Unlock()

	for _, ch := range changes {
		if ch.Healthy {
			log.Infof("heartbeat: backend %s is healthy", ch.Backend)
		} else {
			log.Warnf("heartbeat: backend %s is unavailable: %s", ch.Backend, ch.Reason)
		}
		if m.publisher != nil {
			m.publisher.PublishAsync(events.TopicBackendStatus, ch)
		}
	}
}

// Status returns the last observed health of one backend.
func (m *Monitor) Status(name string) (BackendHealth, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.statuses[name]
	if !ok {
		return BackendHealth{}, false
	}
	return *st, true
}

// Summary aggregates the last cycle into a service-level status. Before the
// first cycle it reads the source directly.
func (m *Monitor) Summary() Summary {
	m.mu.RLock()
	cycles := m.stats.TotalCycles
	m.mu.RUnlock()
	if cycles == 0 {
		m.record(m.source.Snapshot())
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	sum := Summary{
		Backends:  make([]BackendHealth, 0, len(m.statuses)),
		Cycles:    m.stats.TotalCycles,
		LastCycle: m.stats.LastCycleTime,
	}
	for _, st := range m.statuses {
		sum.Backends = append(sum.Backends, *st)
		if st.State == StateUnconfigured {
			continue
		}
		sum.Total++
		if st.State == StateHealthy {
			sum.Healthy++
		}
	}
	sort.Slice(sum.Backends, func(i, j int) bool { return sum.Backends[i].Name < sum.Backends[j].Name })

	switch {
	case sum.Total == 0:
		sum.Status = OverallRulesOnly
	case sum.Healthy == 0:
		sum.Status = OverallDegraded
	default:
		sum.Status = OverallOK
	}
	return sum
}

// Stats returns a copy of the monitor counters.
func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}
