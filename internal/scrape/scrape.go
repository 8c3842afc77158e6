// Package scrape wires one full scan: registry in, adapters under the
// breaker through the worker pool, aggregation, export, exit status.
package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"vitemadose-backend/internal/aggregator"
	"vitemadose-backend/internal/breaker"
	"vitemadose-backend/internal/export"
	"vitemadose-backend/internal/model"
	"vitemadose-backend/internal/platforms"
	"vitemadose-backend/internal/platforms/avecmondoc"
	"vitemadose-backend/internal/platforms/doctolib"
	"vitemadose-backend/internal/platforms/keldoc"
	"vitemadose-backend/internal/platforms/maiia"
	"vitemadose-backend/internal/platforms/mapharma"
	"vitemadose-backend/internal/platforms/ordoclic"
	"vitemadose-backend/internal/registry"
	"vitemadose-backend/internal/scheduler"
	"vitemadose-backend/lib/timezone"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("scrape")

// process exit statuses
const (
	ExitOK = 0
	// zero available venues anywhere, probable total outage
	ExitNoAvailability = 1
	// a platform's 403 tally exceeded its threshold
	ExitBlocked = 2
)

const defaultBlockThreshold = 10

const eventBuffer = 256

// Run executes one scan and returns the process exit code.
func Run(ctx context.Context, cfg Config) (int, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	start := timezone.Now()

	reg, err := buildRegistry(cfg)
	if err != nil {
		return ExitNoAvailability, err
	}

	set, err := buildAdapters(cfg)
	if err != nil {
		return ExitNoAvailability, err
	}

	sched, closeStore, err := buildScheduler(cfg, set)
	if err != nil {
		return ExitNoAvailability, err
	}
	defer closeStore()

	agg := aggregator.New(start, aggregator.Options{
		BoosterVaccines: cfg.boosterVaccines(),
		MaxDose:         cfg.MaxDoseInClassicJsons,
	})

	events := make(chan model.Event, eventBuffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range events {
			agg.Consume(e)
		}
	}()

	stats, runErr := sched.Run(ctx, reg, start, events)
	<-done

	// a cancelled scan still finalizes and exports what it drained
	result := agg.Finalize(stats.BlockedDeps)
	if err := export.NewWriter(cfg.OutDir).WriteAll(ctx, result); err != nil {
		return ExitNoAvailability, fmt.Errorf("export: %w", err)
	}

	printStats(stats, agg.AvailableCount(), time.Since(start))

	if runErr != nil && ctx.Err() != nil {
		return ExitNoAvailability, runErr
	}
	return exitCode(cfg, stats, agg.AvailableCount()), nil
}

func buildRegistry(cfg Config) (*registry.Registry, error) {
	var sources []registry.Source
	if cfg.Inputs.VenuesCSV != "" {
		src, err := registry.LoadCSV(cfg.Inputs.VenuesCSV)
		if err != nil {
			return nil, fmt.Errorf("venues csv: %w", err)
		}
		sources = append(sources, src)
	}
	for _, path := range cfg.Inputs.Snapshots {
		src, err := registry.LoadSnapshot(path)
		if err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no venue sources configured")
	}

	opts := registry.Options{}
	if cfg.Inputs.Blocklist != "" {
		blocklist, err := registry.LoadBlocklist(cfg.Inputs.Blocklist)
		if err != nil {
			return nil, fmt.Errorf("blocklist: %w", err)
		}
		opts.Blocklist = blocklist
	}
	if cfg.Inputs.PostcodeToInsee != "" {
		cpToInsee, err := registry.LoadPostcodeToInsee(cfg.Inputs.PostcodeToInsee)
		if err != nil {
			return nil, fmt.Errorf("postcode table: %w", err)
		}
		opts.PostcodeToInsee = cpToInsee
	}
	return registry.New(sources, opts), nil
}

// buildAdapters constructs one adapter per enabled platform. A
// disabled platform is simply absent from the set: its venues degrade
// to the no-op adapter and stay visible as unavailable.
func buildAdapters(cfg Config) (*platforms.Set, error) {
	var adapters []platforms.Adapter
	horizon := cfg.ScrapeOnNDays

	if pc := cfg.platform(model.Doctolib); pc.enabled() {
		a, err := doctolib.New(doctolib.Options{
			BaseURL:         pc.baseURL(),
			Timeout:         pc.timeout(),
			ExcludedMotives: pc.Filters["excluded_motives"],
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	if pc := cfg.platform(model.Keldoc); pc.enabled() {
		a, err := keldoc.New(keldoc.Options{
			BaseURL:     pc.baseURL(),
			APIURL:      pc.API["booking"],
			Timeout:     pc.timeout(),
			HorizonDays: horizon,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	if pc := cfg.platform(model.Maiia); pc.enabled() {
		a, err := maiia.New(maiia.Options{
			BaseURL:     pc.baseURL(),
			Timeout:     pc.timeout(),
			HorizonDays: horizon,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	if pc := cfg.platform(model.Mapharma); pc.enabled() {
		a, err := mapharma.New(mapharma.Options{
			BaseURL:     pc.baseURL(),
			Timeout:     pc.timeout(),
			HorizonDays: horizon,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	if pc := cfg.platform(model.Ordoclic); pc.enabled() {
		a, err := ordoclic.New(ordoclic.Options{
			BaseURL:     pc.baseURL(),
			Timeout:     pc.timeout(),
			HorizonDays: horizon,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	if pc := cfg.platform(model.Avecmondoc); pc.enabled() {
		a, err := avecmondoc.New(avecmondoc.Options{
			BaseURL:     pc.baseURL(),
			Timeout:     pc.timeout(),
			HorizonDays: horizon,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	return platforms.NewSet(adapters...), nil
}

func buildScheduler(cfg Config, set *platforms.Set) (*scheduler.Scheduler, func(), error) {
	opts := scheduler.Options{
		Workers:    cfg.Workers,
		SampleRate: cfg.PartialScrape,
		Breaker: breaker.Options{
			Trigger:   cfg.Breaker.Trigger,
			Release:   cfg.Breaker.Release,
			TimeLimit: time.Duration(cfg.Breaker.TimeLimit) * time.Second,
		},
	}

	closeStore := func() {}
	if cfg.Breaker.StatePath != "" {
		store, err := breaker.OpenSqlite(cfg.Breaker.StatePath)
		if err != nil {
			return nil, nil, fmt.Errorf("breaker store: %w", err)
		}
		closeStore = func() { store.Close() }
		opts.Queues = func(platform string) (breaker.Queue, error) {
			return store.Queue(platform), nil
		}
	}

	sched, err := scheduler.New(set, opts)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return sched, closeStore, nil
}

// exitCode derives the process status from the scan outcome.
func exitCode(cfg Config, stats *scheduler.Stats, available int) int {
	for _, p := range model.Platforms() {
		threshold := cfg.platform(p).BlockThreshold
		if threshold <= 0 {
			threshold = defaultBlockThreshold
		}
		if stats.Blocked[p] > threshold {
			slog.Error("platform block threshold exceeded",
				"platform", p, "blocked", stats.Blocked[p], "threshold", threshold)
			return ExitBlocked
		}
	}
	if available == 0 {
		slog.Error("no available venue anywhere, probable outage")
		return ExitNoAvailability
	}
	return ExitOK
}

func printStats(stats *scheduler.Stats, available int, elapsed time.Duration) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("scan %s", stats.ScanID)
	t.AppendHeader(table.Row{"platform", "probed", "blocked"})
	for _, p := range model.Platforms() {
		t.AppendRow(table.Row{p, stats.Probed[p], stats.Blocked[p]})
	}
	t.AppendFooter(table.Row{"available venues", available, ""})
	t.Render()

	slog.Info("scan complete",
		"scan_id", stats.ScanID,
		"available", available,
		"skipped", stats.Skipped,
		"elapsed", elapsed.Round(time.Second),
		"counters", stats.Counters)
}
