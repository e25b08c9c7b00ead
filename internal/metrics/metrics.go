// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics exposes Prometheus collectors for the assistant.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/traylinx/switchAIAssist/internal/events"
)

const namespace = "assist"

// Metrics owns a registry and the collectors registered on it.
type Metrics struct {
	registry *prometheus.Registry

	classifications   *prometheus.CounterVec
	classifyLatency   *prometheus.HistogramVec
	confirmations     prometheus.Counter
	fallbacks         prometheus.Counter
	backendCalls      *prometheus.CounterVec
	backendLatency    *prometheus.HistogramVec
	backendHealthy    *prometheus.GaugeVec
	corrections       *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
	backendTransition *prometheus.CounterVec
}

// New creates a registry with process and Go collectors plus the assistant's own.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		classifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Classifications served by cascade source and intent",
		}, []string{"source", "intent"}),

		classifyLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classification_latency_seconds",
			Help:      "End-to-end classification latency",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"source"}),

		confirmations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirmations_requested_total",
			Help:      "Classifications returned with needsConfirmation set",
		}),

		fallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_fallbacks_total",
			Help:      "Classifications where the completion stage failed and a lower stage answered",
		}),

		backendCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "calls_total",
			Help:      "Completion backend calls by outcome",
		}, []string{"backend", "outcome"}),

		backendLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "call_latency_seconds",
			Help:      "Latency of individual completion backend calls",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"backend"}),

		backendHealthy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_healthy",
			Help:      "1 when the completion backend is eligible for selection",
		}, []string{"backend"}),

		backendTransition: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "health_transitions_total",
			Help:      "Health transitions reported by the heartbeat monitor",
		}, []string{"backend", "state"}),

		corrections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrections_total",
			Help:      "Corrections applied by corrected intent",
		}, []string{"intent"}),

		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Classification cache lookups by result",
		}, []string{"result"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// BackendCall records one backend attempt.
func (m *Metrics) BackendCall(backend, outcome string, latency time.Duration) {
	m.backendCalls.WithLabelValues(backend, outcome).Inc()
	m.backendLatency.WithLabelValues(backend).Observe(latency.Seconds())
}

// BackendHealth sets the health gauge for backend.
func (m *Metrics) BackendHealth(backend string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	m.backendHealthy.WithLabelValues(backend).Set(v)
}

// CacheLookup counts a classification cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// GaugeFunc registers a gauge whose value is read from fn at scrape time.
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) {
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn)
}

// Attach subscribes m to bus so classification, correction and health events
// are counted off the request path. It also exports the bus drop counter.
func (m *Metrics) Attach(bus *events.Bus) {
	bus.Subscribe(events.TopicPrediction, func(ev *events.Event) {
		p, ok := ev.Payload.(events.Prediction)
		if !ok || p.Result == nil {
			return
		}
		source := string(p.Result.Source)
		m.classifications.WithLabelValues(source, string(p.Result.Intent)).Inc()
		m.classifyLatency.WithLabelValues(source).Observe(p.Latency.Seconds())
		if p.Result.NeedsConfirmation {
			m.confirmations.Inc()
		}
		if p.Result.LLMFallback {
			m.fallbacks.Inc()
		}
	})
	bus.Subscribe(events.TopicCorrection, func(ev *events.Event) {
		if c, ok := ev.Payload.(events.Correction); ok {
			m.corrections.WithLabelValues(string(c.CorrectedIntent)).Inc()
		}
	})
	bus.Subscribe(events.TopicBackendStatus, func(ev *events.Event) {
		if st, ok := ev.Payload.(events.BackendStatus); ok {
			state := "unavailable"
			if st.Healthy {
				state = "healthy"
			}
			m.backendTransition.WithLabelValues(st.Backend, state).Inc()
			m.BackendHealth(st.Backend, st.Healthy)
		}
	})
	promauto.With(m.registry).NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "Events discarded because the bus queue was full",
	}, func() float64 {
		return float64(bus.Dropped())
	})
}
