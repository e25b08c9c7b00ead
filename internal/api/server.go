// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api exposes the assistant over HTTP with gin.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/switchAIAssist/internal/cache"
	"github.com/traylinx/switchAIAssist/internal/classifier"
	"github.com/traylinx/switchAIAssist/internal/completion"
	"github.com/traylinx/switchAIAssist/internal/config"
	"github.com/traylinx/switchAIAssist/internal/heartbeat"
	"github.com/traylinx/switchAIAssist/internal/intent"
	"github.com/traylinx/switchAIAssist/internal/learning"
	"github.com/traylinx/switchAIAssist/internal/logging"
	"github.com/traylinx/switchAIAssist/internal/store"
)

// Classifier runs the intent cascade.
type Classifier interface {
	Classify(ctx context.Context, req classifier.Request) (*intent.Result, error)
	CacheStats() cache.Stats
}

// Corrector applies user corrections.
type Corrector interface {
	ApplyCorrection(ctx context.Context, c learning.Correction) (*learning.Outcome, error)
	Stats() learning.Stats
}

// StatsReader reads aggregated statistics from the store.
type StatsReader interface {
	Stats(ctx context.Context, since time.Time) (*store.Stats, error)
}

// HealthReporter summarizes backend availability.
type HealthReporter interface {
	Summary() heartbeat.Summary
}

// IndexReporter describes the nearest-neighbor index.
type IndexReporter interface {
	Size() int
	Counts() map[intent.Intent]int
}

// RouterReporter describes the completion router.
type RouterReporter interface {
	Snapshot() []completion.BackendStatus
	CacheStats() cache.Stats
}

// Services are the components the handlers call. Nil members disable the
// endpoints that need them.
type Services struct {
	Classifier Classifier
	Learning   Corrector
	Store      StatsReader
	Health     HealthReporter
	Index      IndexReporter
	Router     RouterReporter
	Metrics    http.Handler
}

// Server is the HTTP front end.
type Server struct {
	cfg      *config.Config
	engine   *gin.Engine
	services Services
	server   *http.Server
	now      func() time.Time
}

// NewServer builds the gin engine and registers every route.
func NewServer(cfg *config.Config, services Services) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(logging.GinLogrusLogger(), logging.GinLogrusRecovery())

	s := &Server{cfg: cfg, engine: engine, services: services, now: time.Now}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.engine.Group("/v1")
	{
		v1.POST("/classify", s.handleClassify)
		v1.POST("/corrections", s.handleCorrection)
		v1.GET("/stats", s.managementAuth(), s.handleStats)
	}
	s.engine.GET("/healthz", s.handleHealth)
	if s.services.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.services.Metrics))
	}
	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "not found"})
	})
}

// Handler exposes the engine for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on the configured address and blocks until the server stops.
// It returns nil after a graceful Stop, including one that ran first.
func (s *Server) Start() error {
	addr := s.server.Addr

	var err error
	if s.cfg.TLS.Enable {
		log.Infof("API server listening on https://%s", addr)
		err = s.server.ListenAndServeTLS(s.cfg.TLS.Cert, s.cfg.TLS.Key)
	} else {
		log.Infof("API server listening on http://%s", addr)
		err = s.server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: server failed: %w", err)
	}
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	log.Info("Shutting down API server...")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	return nil
}
