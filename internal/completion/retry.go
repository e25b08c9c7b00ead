// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package completion

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/switchAIAssist/internal/backend"
)

// backoff returns the delay before retry number attempt (0-based):
// base * 2^attempt capped at max, plus up to base of jitter.
func (c Config) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(c.RetryBaseDelay) * math.Pow(2, float64(attempt)))
	if delay > c.RetryMaxDelay || delay <= 0 {
		delay = c.RetryMaxDelay
	}
	if c.RetryBaseDelay > 0 {
		delay += time.Duration(rand.Int64N(int64(c.RetryBaseDelay)))
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// callWithRetry runs up to RetryCount attempts against one backend. It stops
// early on non-retryable errors, on a retry-after hint longer than
// MaxRetryAfter, and when another request has already marked the backend
// unhealthy.
func (r *Router) callWithRetry(ctx context.Context, st *backendState, req Request) (*backend.Result, error) {
	attempts := r.cfg.RetryCount
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if !st.isHealthy() {
				log.Debugf("completion: %s marked unhealthy mid-attempt, not retrying", st.name())
				break
			}
			delay := r.cfg.backoff(attempt - 1)
			if hint, ok := backend.RetryAfterOf(lastErr); ok {
				delay = hint
			}
			log.Debugf("completion: %s retry attempt %d/%d after %v", st.name(), attempt+1, attempts, delay)
			if err := r.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, r.cfg.InferenceTimeout)
		start := time.Now()
		res, err := st.Complete(callCtx, req.backendRequest())
		cancel()
		if err == nil {
			r.observer.BackendCall(st.name(), "success", time.Since(start))
			return res, nil
		}

		lastErr = err
		r.observer.BackendCall(st.name(), "error", time.Since(start))
		log.Debugf("completion: %s attempt %d/%d failed: %v", st.name(), attempt+1, attempts, err)

		if !backend.IsRetryable(err) {
			break
		}
		if hint, ok := backend.RetryAfterOf(err); ok && hint > r.cfg.MaxRetryAfter {
			log.Infof("completion: %s asked to retry after %v, deferring to next backend", st.name(), hint)
			break
		}
	}
	return nil, lastErr
}
