// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package heartbeat watches completion backend health in the background and
// reports transitions to the event bus. It also probes backends that were
// taken out of rotation so they come back as soon as they answer again.
package heartbeat

import (
	"time"
)

// BackendState is the health of one completion backend as seen by the monitor.
type BackendState string

const (
	// StateHealthy indicates the backend is selectable
	StateHealthy BackendState = "healthy"

	// StateUnavailable indicates the router took the backend out of rotation
	StateUnavailable BackendState = "unavailable"

	// StateUnconfigured indicates the backend has no credentials
	StateUnconfigured BackendState = "unconfigured"
)

// Overall is the service-level status reported on the health endpoint.
type Overall string

const (
	// OverallOK means at least one configured backend is selectable.
	OverallOK Overall = "ok"

	// OverallDegraded means backends are configured but none is selectable,
	// so classification falls back to the index and the rule floor.
	OverallDegraded Overall = "degraded"

	// OverallRulesOnly means no backend is configured at all.
	OverallRulesOnly Overall = "rules-only"
)

// BackendHealth is the last observed state of a backend.
type BackendHealth struct {
	Name           string       `json:"name"`
	State          BackendState `json:"state"`
	LastCheck      time.Time    `json:"last_check"`
	LastError      string       `json:"last_error,omitempty"`
	UnhealthySince *time.Time   `json:"unhealthy_since,omitempty"`
	Successes      int64        `json:"successes"`
	Failures       int64        `json:"failures"`
}

// Summary is the snapshot served by the health endpoint.
type Summary struct {
	Status    Overall         `json:"status"`
	Healthy   int             `json:"healthy"`
	Total     int             `json:"total"`
	Backends  []BackendHealth `json:"backends"`
	Cycles    int64           `json:"cycles"`
	LastCycle time.Time       `json:"last_cycle,omitempty"`
}

// Config contains configuration for the monitor.
type Config struct {
	// Enabled controls whether background monitoring runs
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Interval is the time between cycles
	Interval time.Duration `yaml:"interval" json:"interval"`

	// ProbeUnavailable sends a tiny completion to unavailable backends each
	// cycle and returns them to rotation when it succeeds
	ProbeUnavailable bool `yaml:"probe-unavailable" json:"probe-unavailable"`

	// ProbeTimeout bounds a single probe cycle
	ProbeTimeout time.Duration `yaml:"probe-timeout" json:"probe-timeout"`
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		Interval:         30 * time.Second,
		ProbeUnavailable: true,
		ProbeTimeout:     10 * time.Second,
	}
}

// Stats contains counters about the monitor itself.
type Stats struct {
	StartTime     time.Time `json:"start_time"`
	LastCycleTime time.Time `json:"last_cycle_time"`
	TotalCycles   int64     `json:"total_cycles"`
	Probes        int64     `json:"probes"`
	Recoveries    int64     `json:"recoveries"`
	Transitions   int64     `json:"transitions"`
}
