// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package main provides the entry point for the switchAIAssist server.
// The server classifies short utterances into assistant intents, extracts
// their slots, and learns from user corrections.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/traylinx/switchAIAssist/internal/buildinfo"
	"github.com/traylinx/switchAIAssist/internal/config"
	"github.com/traylinx/switchAIAssist/internal/logging"
)

var (
	Version           = "dev"
	Commit            = "none"
	BuildDate         = "unknown"
	DefaultConfigPath = "config.yaml"
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

// shutdownTimeout bounds graceful shutdown after a signal.
const shutdownTimeout = 15 * time.Second

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", DefaultConfigPath, "Configure File Path")

	flag.CommandLine.Usage = func() {
		out := flag.CommandLine.Output()
		_, _ = fmt.Fprintf(out, "Usage of %s [flags] [stats|prune|export]\n", os.Args[0])
		flag.CommandLine.VisitAll(func(f *flag.Flag) {
			s := fmt.Sprintf("  -%s", f.Name)
			name, usage := flag.UnquoteUsage(f)
			if name != "" {
				s += " " + name
			}
			s += "\n    " + usage
			if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" {
				s += fmt.Sprintf(" (default %s)", f.DefValue)
			}
			_, _ = fmt.Fprint(out, s+"\n")
		})
		printMaintenanceUsage(out)
	}

	flag.Parse()

	// Load environment variables from .env if present.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.WithError(err).Warn("failed to load .env file")
	}

	cfg, err := config.LoadConfigOptional(configPath, configPath == DefaultConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := logging.ConfigureLogOutput(cfg.LoggingToFile, cfg.LogDir, cfg.Debug); err != nil {
		log.Fatalf("failed to configure log output: %v", err)
	}
	defer logging.CloseLogOutputs()

	if args := flag.Args(); len(args) > 0 {
		// stdout carries command output
		if !cfg.LoggingToFile {
			log.SetOutput(os.Stderr)
		}
		if err := runMaintenance(context.Background(), cfg, args, os.Stdout); err != nil {
			log.Errorf("%s failed: %v", args[0], err)
			logging.CloseLogOutputs()
			os.Exit(1)
		}
		return
	}

	fmt.Println(buildinfo.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		log.Errorf("failed to start: %v", err)
		logging.CloseLogOutputs()
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.server.Start()
	}()
	log.Infof("switchAIAssist listening on %s:%d (%s)", cfg.Host, cfg.Port, app.mode())

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Errorf("server stopped: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	app.Close(shutdownCtx)
	log.Info("switchAIAssist stopped")
}
