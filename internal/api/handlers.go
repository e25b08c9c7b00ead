// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"github.com/traylinx/switchAIAssist/internal/cache"
	"github.com/traylinx/switchAIAssist/internal/classifier"
	"github.com/traylinx/switchAIAssist/internal/completion"
	"github.com/traylinx/switchAIAssist/internal/intent"
	"github.com/traylinx/switchAIAssist/internal/learning"
	"github.com/traylinx/switchAIAssist/internal/logging"
	"github.com/traylinx/switchAIAssist/internal/store"
)

const (
	// maxBodyBytes bounds request bodies.
	maxBodyBytes = 64 << 10

	defaultStatsWindow = 24 * time.Hour
	maxStatsWindow     = 90 * 24 * time.Hour

	errUnavailable = "classification service unavailable"
)

// ClassifyRequest is the body of POST /v1/classify.
type ClassifyRequest struct {
	Text    string         `json:"text"`
	Context map[string]any `json:"context,omitempty"`
	// Label runs the request in evaluation mode.
	Label string `json:"label,omitempty"`
}

// ClassifyResponse is the success body of POST /v1/classify.
type ClassifyResponse struct {
	Success           bool           `json:"success"`
	Intent            intent.Intent  `json:"intent"`
	Confidence        float64        `json:"confidence"`
	Slots             intent.Slots   `json:"slots"`
	Source            intent.Source  `json:"source"`
	LLMFallback       bool           `json:"llmFallback"`
	NeedsConfirmation bool           `json:"needsConfirmation"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// CorrectionRequest is the body of POST /v1/corrections.
type CorrectionRequest struct {
	OriginalText       string       `json:"originalText"`
	PredictedIntent    string       `json:"predictedIntent"`
	CorrectedIntent    string       `json:"correctedIntent"`
	PredictedSlots     intent.Slots `json:"predictedSlots,omitempty"`
	CorrectedSlots     intent.Slots `json:"correctedSlots,omitempty"`
	UserID             string       `json:"userId,omitempty"`
	OriginalConfidence *float64     `json:"originalConfidence,omitempty"`
	CorrectionType     string       `json:"correctionType,omitempty"`
}

// StatsResponse is the body of GET /v1/stats.
type StatsResponse struct {
	Success         bool                       `json:"success"`
	Window          string                     `json:"window"`
	Store           *store.Stats               `json:"store,omitempty"`
	IndexSize       int                        `json:"index_size"`
	IndexByIntent   map[intent.Intent]int      `json:"index_by_intent,omitempty"`
	Learning        *learning.Stats            `json:"learning,omitempty"`
	Cache           *cache.Stats               `json:"cache,omitempty"`
	CompletionCache *cache.Stats               `json:"completion_cache,omitempty"`
	Backends        []completion.BackendStatus `json:"backends,omitempty"`
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}

// bindJSON decodes a bounded request body.
func bindJSON(c *gin.Context, dst any) error {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	data, err := c.GetRawData()
	if err != nil {
		return errors.New("request body too large or unreadable")
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return errors.New("request body is empty")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

// handleClassify handles POST /v1/classify
//
// Response:
//   - 200: classification result
//   - 400: malformed body, empty text or unknown label
//   - 503: classifier not wired or failed
func (s *Server) handleClassify(c *gin.Context) {
	if s.services.Classifier == nil {
		fail(c, http.StatusServiceUnavailable, errUnavailable)
		return
	}

	var req ClassifyRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		fail(c, http.StatusBadRequest, "text is required")
		return
	}

	res, err := s.services.Classifier.Classify(c.Request.Context(), classifier.Request{
		Text:    req.Text,
		Context: req.Context,
		Label:   req.Label,
	})
	switch {
	case errors.Is(err, classifier.ErrEmptyText), errors.Is(err, classifier.ErrInvalidLabel):
		fail(c, http.StatusBadRequest, err.Error())
		return
	case err != nil || res == nil:
		logging.Entry(c).Errorf("classification failed: %v", err)
		fail(c, http.StatusServiceUnavailable, errUnavailable)
		return
	}

	meta := res.Metadata
	if meta == nil {
		meta = make(map[string]any, 1)
	}
	meta["request_id"] = logging.RequestID(c)

	c.JSON(http.StatusOK, ClassifyResponse{
		Success:           true,
		Intent:            res.Intent,
		Confidence:        res.Confidence,
		Slots:             res.Slots,
		Source:            res.Source,
		LLMFallback:       res.LLMFallback,
		NeedsConfirmation: res.NeedsConfirmation,
		Metadata:          meta,
	})
}

// handleCorrection handles POST /v1/corrections
//
// Response:
//   - 200: correction applied; persistence happens asynchronously
//   - 400: validation error
//   - 503: learning loop not wired
func (s *Server) handleCorrection(c *gin.Context) {
	if s.services.Learning == nil {
		fail(c, http.StatusServiceUnavailable, "correction service unavailable")
		return
	}

	var req CorrectionRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.OriginalText) == "" {
		fail(c, http.StatusBadRequest, "originalText is required")
		return
	}
	if strings.TrimSpace(req.CorrectedIntent) == "" {
		fail(c, http.StatusBadRequest, "correctedIntent is required")
		return
	}

	conf := 0.0
	if req.OriginalConfidence != nil {
		conf = *req.OriginalConfidence
	}
	out, err := s.services.Learning.ApplyCorrection(c.Request.Context(), learning.Correction{
		Text:               req.OriginalText,
		PredictedIntent:    req.PredictedIntent,
		PredictedSlots:     req.PredictedSlots,
		OriginalConfidence: conf,
		CorrectedIntent:    req.CorrectedIntent,
		CorrectedSlots:     req.CorrectedSlots,
		UserID:             req.UserID,
		CorrectionType:     req.CorrectionType,
	})
	if err != nil {
		if errors.Is(err, learning.ErrInvalidCorrection) {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		logging.Entry(c).Errorf("correction failed: %v", err)
		fail(c, http.StatusInternalServerError, "failed to apply correction")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "correction recorded",
		"id":       out.ID,
		"intent":   out.Intent,
		"priority": out.Priority,
	})
}

// handleStats handles GET /v1/stats?window=24h
func (s *Server) handleStats(c *gin.Context) {
	window := defaultStatsWindow
	if raw := strings.TrimSpace(c.Query("window")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 || d > maxStatsWindow {
			fail(c, http.StatusBadRequest, "window must be a positive duration up to 2160h")
			return
		}
		window = d
	}

	resp := StatsResponse{Success: true, Window: window.String()}
	if s.services.Store != nil {
		st, err := s.services.Store.Stats(c.Request.Context(), s.now().Add(-window))
		if err != nil {
			logging.Entry(c).Errorf("stats query failed: %v", err)
			fail(c, http.StatusInternalServerError, "failed to read statistics")
			return
		}
		resp.Store = st
	}
	if s.services.Index != nil {
		resp.IndexSize = s.services.Index.Size()
		resp.IndexByIntent = s.services.Index.Counts()
	}
	if s.services.Learning != nil {
		ls := s.services.Learning.Stats()
		resp.Learning = &ls
	}
	if s.services.Classifier != nil {
		cs := s.services.Classifier.CacheStats()
		resp.Cache = &cs
	}
	if s.services.Router != nil {
		rs := s.services.Router.CacheStats()
		resp.CompletionCache = &rs
		resp.Backends = s.services.Router.Snapshot()
	}
	c.JSON(http.StatusOK, resp)
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(c *gin.Context) {
	if s.services.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "rules-only", "backends": []any{}})
		return
	}
	c.JSON(http.StatusOK, s.services.Health.Summary())
}

// managementAuth guards endpoints with the configured management key.
func (s *Server) managementAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.ManagementKey == "" {
			c.Next()
			return
		}
		key := strings.TrimSpace(c.GetHeader("X-Management-Key"))
		if key == "" {
			if auth := c.GetHeader("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
				key = strings.TrimSpace(auth[7:])
			}
		}
		if key == "" {
			fail(c, http.StatusUnauthorized, "missing management key")
			return
		}
		if !s.cfg.CheckManagementKey(key) {
			logging.Entry(c).Warnf("rejected management request from %s", c.ClientIP())
			fail(c, http.StatusUnauthorized, "invalid management key")
			return
		}
		c.Next()
	}
}
