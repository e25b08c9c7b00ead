// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	"github.com/traylinx/switchAIAssist/internal/config"
	"github.com/traylinx/switchAIAssist/internal/store"
)

// MaintenanceCommand names a one-shot subcommand.
type MaintenanceCommand string

const (
	MaintenanceStats  MaintenanceCommand = "stats"
	MaintenancePrune  MaintenanceCommand = "prune"
	MaintenanceExport MaintenanceCommand = "export"
)

// MaintenanceOptions holds parsed subcommand flags.
type MaintenanceOptions struct {
	Command MaintenanceCommand
	Window  time.Duration
	Limit   int
}

func printMaintenanceUsage(out io.Writer) {
	fmt.Fprintln(out, "\nCommands:")
	fmt.Fprintln(out, "  stats [--window 24h]   Show prediction and correction statistics")
	fmt.Fprintln(out, "  prune                  Delete records older than store.retention-days")
	fmt.Fprintln(out, "  export [--limit 1000]  Print pending training examples as JSON lines and mark them exported")
}

// parseMaintenanceArgs parses "<command> [flags]".
func parseMaintenanceArgs(args []string) (*MaintenanceOptions, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("missing command")
	}
	opts := &MaintenanceOptions{Command: MaintenanceCommand(args[0])}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	switch opts.Command {
	case MaintenanceStats:
		fs.DurationVar(&opts.Window, "window", 24*time.Hour, "Statistics window")
	case MaintenanceExport:
		fs.IntVar(&opts.Limit, "limit", 1000, "Maximum examples to export")
	case MaintenancePrune:
	default:
		return nil, fmt.Errorf("unknown command %q", args[0])
	}
	if err := fs.Parse(args[1:]); err != nil {
		return nil, err
	}
	if opts.Window < 0 {
		return nil, fmt.Errorf("window must not be negative")
	}
	return opts, nil
}

// runMaintenance opens the configured store, runs one subcommand and closes it.
func runMaintenance(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	opts, err := parseMaintenanceArgs(args)
	if err != nil {
		printMaintenanceUsage(out)
		return err
	}

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return err
	}
	defer st.Close()

	switch opts.Command {
	case MaintenanceStats:
		return doStats(ctx, st, opts.Window, time.Now(), out)
	case MaintenancePrune:
		if cfg.Store.RetentionDays <= 0 {
			fmt.Fprintln(out, "Retention is disabled (store.retention-days is 0); nothing to prune.")
			return nil
		}
		n, err := pruneRetained(ctx, st, cfg.Store.RetentionDays, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Pruned %d records older than %d days.\n", n, cfg.Store.RetentionDays)
		return nil
	default:
		n, err := doExport(ctx, st, opts.Limit, out)
		if err != nil {
			return err
		}
		log.Infof("exported %d training examples", n)
		return nil
	}
}

func doStats(ctx context.Context, st store.Store, window time.Duration, now time.Time, out io.Writer) error {
	stats, err := st.Stats(ctx, now.Add(-window))
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Statistics since %s\n\n", stats.Since.Format(time.RFC3339))
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "Predictions:\t%d\n", stats.Predictions)
	fmt.Fprintf(w, "Corrections:\t%d\n", stats.Corrections)
	fmt.Fprintf(w, "Accuracy:\t%.1f%%\n", stats.Accuracy*100)
	fmt.Fprintf(w, "Cache hits:\t%d\n", stats.CacheHits)
	fmt.Fprintf(w, "Fallbacks:\t%d\n", stats.Fallbacks)
	fmt.Fprintf(w, "Avg latency:\t%.1fms\n", stats.AvgLatencyMs)
	fmt.Fprintf(w, "Avg confidence:\t%.2f\n", stats.AvgConfidence)
	if stats.Evaluations > 0 {
		fmt.Fprintf(w, "Evaluations:\t%d (%.1f%% correct)\n", stats.Evaluations, stats.EvaluationAccuracy*100)
	}
	fmt.Fprintf(w, "Pending training:\t%d\n", stats.PendingTraining)
	w.Flush()

	if len(stats.ByIntent) == 0 {
		return nil
	}
	names := make([]string, 0, len(stats.ByIntent))
	for name := range stats.ByIntent {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "INTENT\tPREDICTIONS\tCORRECTIONS\tACCURACY\tAVG CONF")
	fmt.Fprintln(w, "------\t-----------\t-----------\t--------\t--------")
	for _, name := range names {
		s := stats.ByIntent[name]
		fmt.Fprintf(w, "%s\t%d\t%d\t%.1f%%\t%.2f\n", name, s.Predictions, s.Corrections, s.Accuracy*100, s.AvgConfidence)
	}
	return w.Flush()
}

// doExport writes up to limit pending training examples to out, one JSON
// object per line, then marks them exported.
func doExport(ctx context.Context, st store.Store, limit int, out io.Writer) (int, error) {
	examples, err := st.LoadExamples(ctx, true, limit)
	if err != nil {
		return 0, err
	}
	if len(examples) == 0 {
		return 0, nil
	}

	enc := json.NewEncoder(out)
	ids := make([]int64, 0, len(examples))
	for _, ex := range examples {
		if err := enc.Encode(ex); err != nil {
			return 0, fmt.Errorf("write example %d: %w", ex.ID, err)
		}
		ids = append(ids, ex.ID)
	}
	if err := st.MarkExported(ctx, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}
