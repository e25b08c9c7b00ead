// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package completion

import (
	"sync"
	"time"

	"github.com/traylinx/switchAIAssist/internal/backend"
)

// usageWindow is the length of the rolling rate-budget window.
const usageWindow = 60 * time.Second

// BackendStatus is a point-in-time view of one registered backend.
type BackendStatus struct {
	Name              string       `json:"name"`
	Kind              backend.Kind `json:"kind"`
	Model             string       `json:"model"`
	Priority          int          `json:"priority"`
	Role              backend.Role `json:"role,omitempty"`
	Healthy           bool         `json:"healthy"`
	HasCredentials    bool         `json:"has_credentials"`
	RequestsUsed      int          `json:"requests_used"`
	TokensUsed        int          `json:"tokens_used"`
	RequestsPerMinute int          `json:"requests_per_minute"`
	TokensPerMinute   int          `json:"tokens_per_minute"`
	Successes         int64        `json:"successes"`
	Failures          int64        `json:"failures"`
	LastError         string       `json:"last_error,omitempty"`
	UnhealthySince    *time.Time   `json:"unhealthy_since,omitempty"`
	HealsAt           *time.Time   `json:"heals_at,omitempty"`
}

// backendState wraps a backend with its mutable health and usage counters.
type backendState struct {
	*backend.Backend

	mu             sync.Mutex
	healthy        bool
	unhealthySince time.Time
	healAt         time.Time
	healTimer      *time.Timer
	healGen        uint64
	requests       int
	tokens         int
	windowStart    time.Time
	successes      int64
	failures       int64
	lastErr        string
}

func newBackendState(b *backend.Backend, now time.Time) *backendState {
	return &backendState{Backend: b, healthy: true, windowStart: now}
}

func (s *backendState) name() string { return s.Spec.Name }

// resetWindowLocked zeroes usage once the window has elapsed.
// Must be called with lock held.
func (s *backendState) resetWindowLocked(now time.Time) {
	if now.Sub(s.windowStart) > usageWindow {
		s.requests = 0
		s.tokens = 0
		s.windowStart = now
	}
}

// eligible reports whether the backend may be selected right now.
func (s *backendState) eligible(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetWindowLocked(now)
	if !s.healthy || !s.Spec.HasCredentials() {
		return false
	}
	if rpm := s.Spec.RequestsPerMinute; rpm > 0 && s.requests >= rpm {
		return false
	}
	if tpm := s.Spec.TokensPerMinute; tpm > 0 && s.tokens >= tpm {
		return false
	}
	return true
}

func (s *backendState) isHealthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.healthy
}

func (s *backendState) recordSuccess(now time.Time, tokens int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetWindowLocked(now)
	s.requests++
	s.tokens += tokens
	s.successes++
}

// markUnhealthy flips the health flag and arms a timer that restores it after
// coolDown. A backend that fails again while unhealthy restarts its cool-down.
func (s *backendState) markUnhealthy(now time.Time, coolDown time.Duration, cause error, onHeal func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures++
	if cause != nil {
		s.lastErr = cause.Error()
	}
	if s.healthy {
		s.unhealthySince = now
	}
	s.healthy = false
	s.healAt = now.Add(coolDown)

	if s.healTimer != nil {
		s.healTimer.Stop()
	}
	s.healGen++
	gen := s.healGen
	s.healTimer = time.AfterFunc(coolDown, func() {
		if s.heal(gen) && onHeal != nil {
			onHeal()
		}
	})
}

// heal restores health if gen still identifies the latest cool-down.
// A zero gen heals unconditionally.
func (s *backendState) heal(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != 0 && gen != s.healGen {
		return false
	}
	if s.healTimer != nil {
		s.healTimer.Stop()
		s.healTimer = nil
	}
	wasHealthy := s.healthy
	s.healthy = true
	s.unhealthySince = time.Time{}
	s.healAt = time.Time{}
	return !wasHealthy
}

func (s *backendState) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.healTimer != nil {
		s.healTimer.Stop()
		s.healTimer = nil
	}
}

func (s *backendState) status(now time.Time) BackendStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetWindowLocked(now)
	st := BackendStatus{
		Name:              s.Spec.Name,
		Kind:              s.Spec.Kind,
		Model:             s.Spec.Model,
		Priority:          s.Spec.Priority,
		Role:              s.Spec.Role,
		Healthy:           s.healthy,
		HasCredentials:    s.Spec.HasCredentials(),
		RequestsUsed:      s.requests,
		TokensUsed:        s.tokens,
		RequestsPerMinute: s.Spec.RequestsPerMinute,
		TokensPerMinute:   s.Spec.TokensPerMinute,
		Successes:         s.successes,
		Failures:          s.failures,
		LastError:         s.lastErr,
	}
	if !s.healthy {
		since := s.unhealthySince
		st.UnhealthySince = &since
		healAt := s.healAt
		st.HealsAt = &healAt
	}
	return st
}
