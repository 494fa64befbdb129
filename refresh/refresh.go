// Package refresh keeps the persisted help index in step with the executables on disk.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/outervoid/god/config"
	"github.com/outervoid/god/discovery"
	"github.com/outervoid/god/harvest"
	"github.com/outervoid/god/logger"
	"github.com/outervoid/god/query"
	"github.com/outervoid/god/store"
	"github.com/outervoid/god/watcher"
)

// reasonMissing is recorded for names requested explicitly but not found
const reasonMissing = "not found in search path"

// Summary describes one refresh
type Summary struct {
	Executables int               `json:"executables"`
	Entries     int               `json:"entries"`
	Removed     []string          `json:"removed,omitempty"`
	Failures    map[string]string `json:"failures,omitempty"`
	SnapshotID  string            `json:"snapshot_id"`
	Duration    time.Duration     `json:"duration"`
}

// Refresher harvests executables and saves the result
type Refresher struct {
	cfg       *config.Config
	store     *store.Store
	harvester *harvest.Harvester
	svc       *query.QueryService
	log       *slog.Logger
	dirs      []string
}

// New creates a Refresher. svc may be nil; when set it is updated after every save.
func New(cfg *config.Config, st *store.Store, h *harvest.Harvester, svc *query.QueryService, log *slog.Logger) *Refresher {
	return &Refresher{
		cfg:       cfg,
		store:     st,
		harvester: h,
		svc:       svc,
		log:       logger.OrDefault(log),
		dirs:      cfg.SearchDirs(),
	}
}

// Dirs returns the directories searched for executables
func (r *Refresher) Dirs() []string {
	return r.dirs
}

// Discover scans the configured directories
func (r *Refresher) Discover(ctx context.Context) (*discovery.Result, error) {
	res, err := discovery.Scan(ctx, discovery.Options{
		Dirs:    r.dirs,
		Include: r.cfg.Include,
		Exclude: r.cfg.Exclude,
		Logger:  r.log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan executables: %w", err)
	}
	return res, nil
}

// Run harvests the named executables, or every executable when names is empty.
// A full run replaces the snapshot; a named run merges into it.
func (r *Refresher) Run(ctx context.Context, names []string, progress harvest.Progress) (*Summary, error) {
	start := time.Now()

	res, err := r.Discover(ctx)
	if err != nil {
		return nil, err
	}

	exes := res.Executables
	var missing []string
	if len(names) > 0 {
		exes, missing = discovery.Lookup(res, names)
	}

	r.log.Info("harvesting", "executables", len(exes), "dirs", len(r.dirs))
	report, err := r.harvester.HarvestAll(ctx, exes, progress)
	if err != nil {
		return nil, err
	}
	for _, name := range missing {
		report.Failures[name] = reasonMissing
	}

	snap, err := r.store.LoadOrEmpty()
	if err != nil {
		return nil, err
	}

	summary := &Summary{Executables: len(exes), Entries: len(report.Entries), Failures: report.Failures}
	if len(names) == 0 {
		snap.Entries = report.Entries
		snap.Failures = report.Failures
	} else {
		summary.Removed = missingRoots(snap, missing)
		store.RemoveRoots(snap, summary.Removed...)
		// a failed re-harvest keeps the previous entries
		store.Merge(snap, report.Entries, report.Failures, false)
	}

	if err := r.save(ctx, snap); err != nil {
		return nil, err
	}
	summary.SnapshotID = snap.ID
	summary.Duration = time.Since(start)
	return summary, nil
}

// Apply re-harvests executables touched by watcher events and drops the ones
// that no longer resolve. Names are re-resolved so PATH shadowing is honoured.
func (r *Refresher) Apply(ctx context.Context, events []watcher.FileEvent) (*Summary, error) {
	start := time.Now()

	touched := make(map[string]bool)
	for _, ev := range events {
		touched[ev.Name] = true
		if ev.OldPath != "" {
			touched[filepath.Base(ev.OldPath)] = true
		}
	}
	if len(touched) == 0 {
		return &Summary{}, nil
	}
	names := make([]string, 0, len(touched))
	for n := range touched {
		names = append(names, n)
	}
	sort.Strings(names)

	res, err := r.Discover(ctx)
	if err != nil {
		return nil, err
	}
	found, gone := discovery.Lookup(res, names)

	report, err := r.harvester.HarvestAll(ctx, found, nil)
	if err != nil {
		return nil, err
	}

	snap, err := r.store.LoadOrEmpty()
	if err != nil {
		return nil, err
	}
	store.RemoveRoots(snap, gone...)
	store.Merge(snap, report.Entries, report.Failures, true)

	if err := r.save(ctx, snap); err != nil {
		return nil, err
	}

	r.log.Info("index updated", "harvested", len(found), "removed", len(gone),
		"entries", len(report.Entries), "failures", len(report.Failures))
	return &Summary{
		Executables: len(found),
		Entries:     len(report.Entries),
		Removed:     gone,
		Failures:    report.Failures,
		SnapshotID:  snap.ID,
		Duration:    time.Since(start),
	}, nil
}

func (r *Refresher) save(ctx context.Context, snap *store.Snapshot) error {
	if err := r.store.Save(snap); err != nil {
		return err
	}
	if r.svc != nil {
		if err := r.svc.Apply(ctx, snap); err != nil {
			return fmt.Errorf("failed to update loaded index: %w", err)
		}
	}
	return nil
}

// missingRoots returns the names that are indexed but could not be resolved
func missingRoots(snap *store.Snapshot, missing []string) []string {
	indexed := make(map[string]bool)
	for _, e := range snap.Entries {
		indexed[e.Root] = true
	}
	var out []string
	for _, m := range missing {
		if indexed[m] {
			out = append(out, m)
		}
	}
	return out
}
