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
	"github.com/traylinx/switchAIAssist/internal/api"
	"github.com/traylinx/switchAIAssist/internal/backend"
	"github.com/traylinx/switchAIAssist/internal/classifier"
	"github.com/traylinx/switchAIAssist/internal/completion"
	"github.com/traylinx/switchAIAssist/internal/config"
	"github.com/traylinx/switchAIAssist/internal/events"
	"github.com/traylinx/switchAIAssist/internal/heartbeat"
	"github.com/traylinx/switchAIAssist/internal/intent"
	"github.com/traylinx/switchAIAssist/internal/learning"
	"github.com/traylinx/switchAIAssist/internal/metrics"
	"github.com/traylinx/switchAIAssist/internal/neighbors"
	"github.com/traylinx/switchAIAssist/internal/rules"
	"github.com/traylinx/switchAIAssist/internal/slots"
	"github.com/traylinx/switchAIAssist/internal/store"
)

// busDrainTimeout bounds how long shutdown waits for queued events.
const busDrainTimeout = 5 * time.Second

// app holds every long-lived component of a running server.
type app struct {
	cfg        *config.Config
	store      *store.SQLStore
	bus        *events.Bus
	metrics    *metrics.Metrics
	router     *completion.Router
	index      *neighbors.Index
	rules      *rules.Classifier
	classifier *classifier.Classifier
	loop       *learning.Loop
	persister  *learning.Persister
	monitor    *heartbeat.Monitor
	jobs       *cron.Cron
	server     *api.Server
}

// newApp builds the component graph in dependency order. On error every
// component opened so far is released.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	if err := a.build(ctx); err != nil {
		a.release()
		return nil, err
	}
	return a, nil
}

func (a *app) build(ctx context.Context) error {
	cfg := a.cfg
	var err error

	a.store, err = store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	a.bus = events.New(events.DefaultQueueSize)
	a.metrics = metrics.New()

	a.router = completion.NewRouter(cfg.RouterConfig(), completion.WithObserver(a.metrics))
	for _, spec := range cfg.BackendSpecs() {
		b, errB := backend.New(ctx, spec, nil)
		if errB != nil {
			log.Warnf("skipping backend %s: %v", spec.Name, errB)
			continue
		}
		if errR := a.router.Register(b); errR != nil {
			log.Warnf("skipping backend %s: %v", spec.Name, errR)
		}
	}

	a.rules = rules.New(cfg.Rules.Dir)
	if err = a.rules.LoadRules(); err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	if cfg.Rules.Watch {
		if errW := a.rules.StartWatcher(); errW != nil {
			log.Warnf("rules hot-reload disabled: %v", errW)
		}
	}

	a.index = neighbors.New(cfg.Classifier.SimilarityFloor)

	var completer slots.Completer
	opts := []classifier.Option{
		classifier.WithPublisher(a.bus),
		classifier.WithCacheObserver(a.metrics),
	}
	if a.router.Len() > 0 {
		completer = a.router
		opts = append(opts, classifier.WithCompleter(a.router))
	}
	extractor := slots.New(completer, slots.Config{
		Location:         cfg.Location(),
		RefineTimeout:    cfg.Completion.RaceTimeout,
		ConfirmThreshold: cfg.Classifier.ConfirmThreshold,
	})

	a.classifier, err = classifier.New(classifierConfig(cfg), a.index, a.rules, extractor, opts...)
	if err != nil {
		return fmt.Errorf("build classifier: %w", err)
	}

	a.persister = learning.NewPersister(a.store, 0)
	a.loop = learning.New(a.index,
		learning.WithInvalidator(a.classifier.Invalidate),
		learning.WithPublisher(a.bus),
		learning.WithRecorder(a.persister),
	)

	seeded, err := seedIndex(ctx, a.index, a.loop, a.store, cfg.Store.SeedFile)
	if err != nil {
		return err
	}
	log.Infof("nearest-neighbor index seeded with %d exemplars", seeded)

	a.persister.Attach(a.bus)
	a.metrics.Attach(a.bus)
	a.metrics.GaugeFunc("index_exemplars", "Exemplars held by the nearest-neighbor index.", func() float64 {
		return float64(a.index.Size())
	})
	a.metrics.GaugeFunc("training_queue_length", "Corrections waiting for export.", func() float64 {
		return float64(a.loop.Pending())
	})

	if cfg.WarmUp.Enabled && a.router.Len() > 0 {
		for name, errW := range a.router.WarmUp(ctx, cfg.WarmUp.Backends, cfg.WarmUp.Timeout) {
			if errW != nil {
				log.Warnf("warm-up of %s failed: %v", name, errW)
			} else {
				log.Infof("backend %s warmed up", name)
			}
		}
	}

	a.monitor = heartbeat.New(a.router, heartbeat.Config{
		Enabled:          cfg.Heartbeat.Enabled,
		Interval:         cfg.Heartbeat.Interval,
		ProbeUnavailable: true,
	}, a.bus)
	if cfg.Heartbeat.Enabled {
		if errM := a.monitor.Start(ctx); errM != nil {
			log.Warnf("heartbeat monitor not started: %v", errM)
		}
	}

	a.jobs, err = scheduleJobs(cfg, a.store, a.loop)
	if err != nil {
		return err
	}
	a.jobs.Start()

	a.server = api.NewServer(cfg, api.Services{
		Classifier: a.classifier,
		Learning:   a.loop,
		Store:      a.store,
		Health:     a.monitor,
		Index:      a.index,
		Router:     a.router,
		Metrics:    a.metrics.Handler(),
	})
	return nil
}

func classifierConfig(cfg *config.Config) classifier.Config {
	return classifier.Config{
		AcceptThreshold:  cfg.Classifier.AcceptThreshold,
		ConfirmThreshold: cfg.Classifier.ConfirmThreshold,
		RaceTimeout:      cfg.Completion.RaceTimeout,
		CacheTTL:         cfg.Cache.TTL,
		CacheCapacity:    cfg.Cache.Capacity,
	}
}

// seedIndex fills idx from the seed file, or from the built-in baseline when
// the file is unset or empty, then replays stored corrections so they win
// exact matches.
func seedIndex(ctx context.Context, idx *neighbors.Index, loop *learning.Loop, st store.Store, seedFile string) (int, error) {
	n := 0
	if seedFile != "" {
		examples, err := store.LoadSeed(seedFile)
		if err != nil {
			return 0, err
		}
		for _, ex := range examples {
			in, _ := intent.Parse(ex.Intent)
			if idx.Append(in, ex.Text, intent.Slots(ex.Slots)) {
				n++
			}
		}
	}
	if n == 0 {
		for _, in := range intent.All {
			for _, text := range intent.BaselineExemplars[in] {
				if idx.Append(in, text, nil) {
					n++
				}
			}
		}
	}

	records, err := st.LoadCorrections(ctx, 0)
	if err != nil {
		return n, fmt.Errorf("load corrections: %w", err)
	}
	restored := loop.Restore(records)
	if restored > 0 {
		log.Infof("restored %d corrections into the index", restored)
	}
	return n + restored, nil
}

func (a *app) mode() string {
	if a.router == nil || a.router.Len() == 0 {
		return string(heartbeat.OverallRulesOnly)
	}
	return fmt.Sprintf("%d backends", a.router.Len())
}

// Close stops serving, flushes the training queue and releases resources.
func (a *app) Close(ctx context.Context) {
	if a.server != nil {
		if err := a.server.Stop(ctx); err != nil {
			log.Errorf("server shutdown: %v", err)
		}
	}
	if a.jobs != nil {
		<-a.jobs.Stop().Done()
	}
	if a.loop != nil && a.store != nil {
		if n, err := exportQueued(ctx, a.loop, a.store); err != nil {
			log.Errorf("final export: %v", err)
		} else if n > 0 {
			log.Infof("exported %d queued corrections before exit", n)
		}
	}
	a.release()
}

func (a *app) release() {
	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.rules != nil {
		a.rules.StopWatcher()
	}
	if a.bus != nil && !a.bus.Shutdown(busDrainTimeout) {
		log.Warn("event bus did not drain before shutdown")
	}
	if a.router != nil {
		a.router.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Errorf("store close: %v", err)
		}
	}
}
