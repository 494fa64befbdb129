package harvest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outervoid/god/discovery"
	"github.com/outervoid/god/logger"
)

// fakeRunner answers invocations from a table keyed by "path arg1 arg2"
type fakeRunner struct {
	mu      sync.Mutex
	outputs map[string]string
	codes   map[string]int
	delay   time.Duration
	calls   []string
}

func (f *fakeRunner) Run(ctx context.Context, path string, args []string) ([]byte, int, error) {
	key := strings.TrimSpace(path + " " + strings.Join(args, " "))
	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, -1, ctx.Err()
		}
	}

	out, ok := f.outputs[key]
	if !ok {
		return []byte(fmt.Sprintf("%s: unrecognized option '%s'", path, strings.Join(args, " "))), 2, nil
	}
	return []byte(out), f.codes[key], nil
}

const toolHelp = `tool manages widgets.

Usage:
  tool [command]

Available Commands:
  build       Build a widget
  help        Help about any command
  ship        Ship a widget

Flags:
  -h, --help   help for tool
`

const buildHelp = `Build a widget from source.

Usage:
  tool build [flags]

Flags:
  -o, --output string   output path
`

func newTestHarvester(r Runner, opts Options) *Harvester {
	h := NewHarvester(r, opts, logger.Discard())
	h.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return h
}

func TestHarvestWithSubcommands(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"/bin/tool --help":       toolHelp,
		"/bin/tool build --help": buildHelp,
		// ship prints the parent help again and must be dropped
		"/bin/tool ship --help": toolHelp,
	}}
	h := newTestHarvester(runner, Options{Strategies: []string{"--help", "-h"}, MaxDepth: 1, MinHelpBytes: 10})

	entries, err := h.Harvest(context.Background(), discovery.Executable{Name: "tool", Path: "/bin/tool"})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	root := entries[0]
	assert.Equal(t, "tool", root.Command)
	assert.Equal(t, "tool", root.Root)
	assert.Equal(t, "--help", root.Strategy)
	assert.Equal(t, "tool manages widgets.", root.Summary)
	assert.Equal(t, "tool [command]", root.Usage)
	assert.Len(t, root.Subcommands, 3)
	assert.Equal(t, 0, root.Depth)
	assert.Len(t, root.Hash, 64)
	assert.Equal(t, EntryID("tool"), root.ID)

	build := entries[1]
	assert.Equal(t, "tool build", build.Command)
	assert.Equal(t, 1, build.Depth)
	require.Len(t, build.Flags, 1)
	assert.Equal(t, "--output", build.Flags[0].Long)

	// help subcommand is never run
	for _, call := range runner.calls {
		assert.NotContains(t, call, "/bin/tool help")
	}
}

func TestHarvestDepthZero(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{"/bin/tool --help": toolHelp}}
	h := newTestHarvester(runner, Options{Strategies: []string{"--help"}, MaxDepth: 0, MinHelpBytes: 10})

	entries, err := h.Harvest(context.Background(), discovery.Executable{Name: "tool", Path: "/bin/tool"})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, []string{"/bin/tool --help"}, runner.calls)
}

func TestHarvestFallsBackToNextStrategy(t *testing.T) {
	runner := &fakeRunner{
		outputs: map[string]string{"/bin/old -h": "usage: old [-v] file\n  -v  verbose output\n"},
		codes:   map[string]int{"/bin/old -h": 1},
	}
	h := newTestHarvester(runner, Options{Strategies: []string{"--help", "-h"}, MinHelpBytes: 10})

	entries, err := h.Harvest(context.Background(), discovery.Executable{Name: "old", Path: "/bin/old"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "-h", entries[0].Strategy)
	assert.Equal(t, "old [-v] file", entries[0].Usage)
}

func TestHarvestNoHelp(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{}}
	h := newTestHarvester(runner, Options{Strategies: []string{"--help"}, MinHelpBytes: 10})

	_, err := h.Harvest(context.Background(), discovery.Executable{Name: "mute", Path: "/bin/mute"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoHelp))
	assert.Contains(t, err.Error(), "mute")
}

func TestHarvestMaxSubcommands(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"/bin/tool --help":       toolHelp,
		"/bin/tool build --help": buildHelp,
		"/bin/tool ship --help":  strings.Replace(buildHelp, "build", "ship", -1),
	}}
	h := newTestHarvester(runner, Options{Strategies: []string{"--help"}, MaxDepth: 2, MaxSubcommands: 1, MinHelpBytes: 10})

	entries, err := h.Harvest(context.Background(), discovery.Executable{Name: "tool", Path: "/bin/tool"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "tool build", entries[1].Command)
}

func TestStrategyArgs(t *testing.T) {
	assert.Equal(t, []string{"commit", "--help"}, strategyArgs("--help", []string{"commit"}))
	assert.Equal(t, []string{"help", "commit"}, strategyArgs("help", []string{"commit"}))
	assert.Equal(t, []string{"-h"}, strategyArgs("-h", nil))
}

func TestHarvestAll(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"/bin/a --help": "usage: a [opts]\n  -x  do x things\n",
		"/bin/c --help": "usage: c [opts]\n  -y  do y things\n",
	}}
	h := newTestHarvester(runner, Options{Strategies: []string{"--help"}, Workers: 2, MinHelpBytes: 10})

	exes := []discovery.Executable{
		{Name: "c", Path: "/bin/c"},
		{Name: "b", Path: "/bin/b"},
		{Name: "a", Path: "/bin/a"},
	}

	var mu sync.Mutex
	var progressed []string
	report, err := h.HarvestAll(context.Background(), exes, func(done, total int, name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 3, total)
		progressed = append(progressed, name)
	})
	require.NoError(t, err)

	require.Len(t, report.Entries, 2)
	assert.Equal(t, "a", report.Entries[0].Command)
	assert.Equal(t, "c", report.Entries[1].Command)
	assert.Contains(t, report.Failures, "b")
	assert.ElementsMatch(t, []string{"a", "b", "c"}, progressed)
}

func TestHarvestAllCancelled(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{}, delay: time.Second}
	h := newTestHarvester(runner, Options{Strategies: []string{"--help"}, Workers: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	exes := []discovery.Executable{{Name: "a", Path: "/bin/a"}, {Name: "b", Path: "/bin/b"}}
	_, err := h.HarvestAll(ctx, exes, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
