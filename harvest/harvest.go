package harvest

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/outervoid/god/config"
	"github.com/outervoid/god/discovery"
	"github.com/outervoid/god/helpparse"
	"github.com/outervoid/god/logger"
	"github.com/outervoid/god/types"
)

// ErrNoHelp is returned when no strategy produced something that looks like help
var ErrNoHelp = errors.New("no help text found")

// skipSubcommands never carry their own help worth indexing
var skipSubcommands = map[string]bool{
	"help":       true,
	"completion": true,
	"version":    true,
}

// Options configures a Harvester
type Options struct {
	Strategies     []string
	MaxDepth       int
	MaxSubcommands int
	MinHelpBytes   int
	Workers        int
}

// OptionsFromConfig maps the harvest section of the configuration
func OptionsFromConfig(cfg config.HarvestConfig) Options {
	return Options{
		Strategies:     cfg.Strategies,
		MaxDepth:       cfg.MaxDepth,
		MaxSubcommands: cfg.MaxSubcommands,
		MinHelpBytes:   cfg.MinHelpBytes,
		Workers:        cfg.Workers,
	}
}

// Harvester collects and parses help text for executables
type Harvester struct {
	runner Runner
	opts   Options
	log    *slog.Logger
	now    func() time.Time
}

// Report is the outcome of a batch harvest
type Report struct {
	Entries  []types.HelpEntry
	Failures map[string]string // root command -> reason
}

// Progress is called after each executable finishes
type Progress func(done, total int, name string, err error)

// NewHarvester creates a Harvester
func NewHarvester(runner Runner, opts Options, log *slog.Logger) *Harvester {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if len(opts.Strategies) == 0 {
		opts.Strategies = []string{"--help"}
	}
	return &Harvester{
		runner: runner,
		opts:   opts,
		log:    logger.OrDefault(log),
		now:    time.Now,
	}
}

// Harvest collects the help of one executable and, recursively, its subcommands.
// The first entry is always the root command.
func (h *Harvester) Harvest(ctx context.Context, exe discovery.Executable) ([]types.HelpEntry, error) {
	root, err := h.harvestOne(ctx, exe, nil, 0)
	if err != nil {
		return nil, err
	}

	entries := []types.HelpEntry{root}
	seen := map[string]bool{root.Command: true}

	type pending struct {
		args  []string
		subs  []types.Subcommand
		depth int
	}
	queue := []pending{{args: nil, subs: root.Subcommands, depth: 1}}

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		if p.depth > h.opts.MaxDepth {
			continue
		}

		count := 0
		for _, sub := range p.subs {
			if err := ctx.Err(); err != nil {
				return entries, err
			}
			if skipSubcommands[sub.Name] {
				continue
			}
			if h.opts.MaxSubcommands > 0 && count >= h.opts.MaxSubcommands {
				h.log.Debug("subcommand limit reached", "command", exe.Name, "limit", h.opts.MaxSubcommands)
				break
			}

			args := append(append([]string{}, p.args...), sub.Name)
			command := exe.Name + " " + strings.Join(args, " ")
			if seen[command] {
				continue
			}
			seen[command] = true
			count++

			entry, err := h.harvestOne(ctx, exe, args, p.depth)
			if err != nil {
				h.log.Debug("no help for subcommand", "command", command, "error", err)
				continue
			}
			if entry.Summary == "" {
				entry.Summary = sub.Description
			}
			// some tools print the parent's help for every subcommand
			if entry.Hash == root.Hash {
				continue
			}
			entries = append(entries, entry)
			queue = append(queue, pending{args: args, subs: entry.Subcommands, depth: p.depth + 1})
		}
	}

	return entries, nil
}

// harvestOne tries each strategy for exe with the given subcommand path
func (h *Harvester) harvestOne(ctx context.Context, exe discovery.Executable, sub []string, depth int) (types.HelpEntry, error) {
	command := strings.TrimSpace(exe.Name + " " + strings.Join(sub, " "))

	var lastErr error
	for _, strategy := range h.opts.Strategies {
		args := strategyArgs(strategy, sub)
		out, code, err := h.runner.Run(ctx, exe.Path, args)
		if err != nil {
			if ctx.Err() != nil {
				return types.HelpEntry{}, ctx.Err()
			}
			lastErr = err
			continue
		}

		text := Clean(string(out))
		if !LooksLikeHelp(text, h.opts.MinHelpBytes) {
			lastErr = fmt.Errorf("%s %s: output does not look like help (exit %d)", command, strategy, code)
			continue
		}
		return h.buildEntry(exe, command, strategy, text, depth), nil
	}

	if lastErr != nil {
		return types.HelpEntry{}, fmt.Errorf("%s: %w: %v", command, ErrNoHelp, lastErr)
	}
	return types.HelpEntry{}, fmt.Errorf("%s: %w", command, ErrNoHelp)
}

// strategyArgs places flag strategies after the subcommand path ("git commit --help")
// and word strategies before it ("git help commit")
func strategyArgs(strategy string, sub []string) []string {
	words := strings.Fields(strategy)
	if len(words) > 0 && !strings.HasPrefix(words[0], "-") {
		return append(words, sub...)
	}
	return append(append([]string{}, sub...), words...)
}

func (h *Harvester) buildEntry(exe discovery.Executable, command, strategy, text string, depth int) types.HelpEntry {
	doc := helpparse.Parse(text)
	hash := fmt.Sprintf("%x", sha256.Sum256([]byte(text)))

	return types.HelpEntry{
		ID:          EntryID(command),
		Command:     command,
		Root:        exe.Name,
		Path:        exe.Path,
		Strategy:    strategy,
		Usage:       doc.Usage,
		Summary:     doc.Summary,
		Description: doc.Description,
		Sections:    doc.Sections,
		Flags:       doc.Flags,
		Subcommands: doc.Subcommands,
		Raw:         text,
		Hash:        hash,
		Depth:       depth,
		IndexedAt:   h.now(),
	}
}

// EntryID derives a stable identifier from a command path
func EntryID(command string) string {
	sum := sha256.Sum256([]byte(command))
	return fmt.Sprintf("%x", sum[:8])
}

// HarvestAll harvests executables with a bounded worker pool.
// Per-executable failures are collected in the report; only cancellation aborts.
func (h *Harvester) HarvestAll(ctx context.Context, exes []discovery.Executable, progress Progress) (*Report, error) {
	report := &Report{Failures: make(map[string]string)}

	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.opts.Workers)

	for _, exe := range exes {
		if gctx.Err() != nil {
			break
		}
		exe := exe
		g.Go(func() error {
			entries, err := h.Harvest(gctx, exe)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}

			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil {
				report.Failures[exe.Name] = err.Error()
			} else {
				report.Entries = append(report.Entries, entries...)
			}
			if progress != nil {
				progress(done, len(exes), exe.Name, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	sort.Slice(report.Entries, func(i, j int) bool {
		return report.Entries[i].Command < report.Entries[j].Command
	})

	h.log.Info("harvest complete", "executables", len(exes),
		"entries", len(report.Entries), "failures", len(report.Failures))
	return report, nil
}
