// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package completion

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/traylinx/switchAIAssist/internal/backend"
	"golang.org/x/sync/errgroup"
)

const warmUpPrompt = "Reply with the single word: ready"

// WarmUp sends a tiny completion to each named backend (all keyed backends
// when names is empty) so that cold models are loaded before traffic arrives.
// Backends that fail are put into cool-down. The returned map holds one entry
// per backend tried; a nil value means success. WarmUp never fails startup.
func (r *Router) WarmUp(ctx context.Context, names []string, timeout time.Duration) map[string]error {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[string]error)
	)
	g := new(errgroup.Group)
	g.SetLimit(4)

	for _, st := range r.snapshotStates() {
		if len(wanted) > 0 && !wanted[st.name()] {
			continue
		}
		if !st.Spec.HasCredentials() {
			continue
		}
		g.Go(func() error {
			start := time.Now()
			_, err := st.Complete(ctx, &backend.Request{Prompt: warmUpPrompt, MaxTokens: 8})
			if err != nil {
				log.Warnf("warm-up: backend %s failed after %v: %v", st.name(), time.Since(start), err)
				r.markUnhealthy(st, err)
			} else {
				log.Infof("warm-up: backend %s ready in %v", st.name(), time.Since(start))
			}
			mu.Lock()
			results[st.name()] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
