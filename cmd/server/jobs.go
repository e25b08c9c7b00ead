// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"github.com/traylinx/switchAIAssist/internal/config"
	"github.com/traylinx/switchAIAssist/internal/learning"
	"github.com/traylinx/switchAIAssist/internal/store"
)

const (
	// exportBatch is how many queued corrections one export run moves.
	exportBatch = 100

	jobTimeout = time.Minute
)

// Pruner deletes retained records older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// scheduleJobs registers the retention and export jobs. The returned
// scheduler is not started.
func scheduleJobs(cfg *config.Config, st store.Store, loop *learning.Loop) (*cron.Cron, error) {
	c := cron.New(
		cron.WithLocation(cfg.Location()),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)

	if cfg.Store.RetentionDays > 0 {
		_, err := c.AddFunc(cfg.Jobs.PruneSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			if _, err := pruneRetained(ctx, st, cfg.Store.RetentionDays, time.Now()); err != nil {
				log.Errorf("prune job: %v", err)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("invalid prune schedule %q: %w", cfg.Jobs.PruneSchedule, err)
		}
		log.Infof("prune job scheduled (%s, retention %d days)", cfg.Jobs.PruneSchedule, cfg.Store.RetentionDays)
	}

	_, err := c.AddFunc(cfg.Jobs.ExportSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if _, err := exportQueued(ctx, loop, st); err != nil {
			log.Errorf("export job: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid export schedule %q: %w", cfg.Jobs.ExportSchedule, err)
	}
	return c, nil
}

// pruneRetained removes predictions and exported training examples older than
// retentionDays before now. A non-positive retention keeps everything.
func pruneRetained(ctx context.Context, p Pruner, retentionDays int, now time.Time) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	return p.Prune(ctx, now.AddDate(0, 0, -retentionDays))
}

// exportQueued drains the training queue into the store in batches until it
// is empty or a write fails.
func exportQueued(ctx context.Context, loop *learning.Loop, st store.Store) (int, error) {
	total := 0
	for loop.Pending() > 0 {
		n, err := loop.Export(ctx, st, exportBatch)
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	if total > 0 {
		log.Debugf("exported %d training examples", total)
	}
	return total, nil
}
