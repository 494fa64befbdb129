package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outervoid/god/blux"
	"github.com/outervoid/god/query"
	"github.com/outervoid/god/store"
	"github.com/outervoid/god/types"
)

const widgetScript = `#!/bin/sh
if [ "$1" = "build" ]; then
  cat <<'HELP'
Build a widget from source.

Usage:
  widget build [flags]

Flags:
  -o, --output string   output path
HELP
  exit 0
fi
if [ "$1" = "--help" ] || [ "$1" = "-h" ]; then
  cat <<'HELP'
widget manages widgets.

Usage:
  widget [command]

Available Commands:
  build       Build a widget
  help        Help about any command
  ship        Ship a widget

Flags:
  -h, --help      help for widget
  -v, --verbose   print more output
HELP
  exit 0
fi
echo "widget: unknown command \"$1\"" >&2
exit 1
`

const muteScript = "#!/bin/sh\nexit 1\n"

// resetFlags restores every flag to its default between runs of the shared rootCmd
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// setupWorkspace writes fake executables and a config that only searches them
func setupWorkspace(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script executables")
	}

	dir := t.TempDir()
	bin := filepath.Join(dir, "bin")
	require.NoError(t, os.MkdirAll(bin, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "widget"), []byte(widgetScript), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "mute"), []byte(muteScript), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "README"), []byte("not executable"), 0644))

	cfgPath := filepath.Join(dir, "god.yaml")
	cfgData := "index_root: " + filepath.Join(dir, "index") + "\n" +
		"use_path_env: false\n" +
		"paths:\n  - " + bin + "\n" +
		"harvest:\n  timeout_ms: 5000\n  workers: 2\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgData), 0644))
	return cfgPath
}

func TestIndexAndQuery(t *testing.T) {
	cfgPath := setupWorkspace(t)

	out, err := execute(t, "index", "--all", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 2 commands from 2 executables")
	assert.Contains(t, out, "No help from 1 executables")

	t.Run("search", func(t *testing.T) {
		out, err := execute(t, "search", "--json", "--config", cfgPath, "verbose", "output")
		require.NoError(t, err)

		var resp types.SearchResponse
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		require.NotEmpty(t, resp.Hits)
		assert.Equal(t, "widget", resp.Hits[0].Command)
	})

	t.Run("search scoped to subcommand", func(t *testing.T) {
		out, err := execute(t, "search", "--json", "--command", "widget build", "--kind", "flag", "--config", cfgPath, "output")
		require.NoError(t, err)

		var resp types.SearchResponse
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		require.NotEmpty(t, resp.Hits)
		for _, hit := range resp.Hits {
			assert.Equal(t, "widget build", hit.Command)
			assert.Equal(t, types.KindFlag, hit.Kind)
		}
	})

	t.Run("search rejects unknown kind", func(t *testing.T) {
		_, err := execute(t, "search", "--kind", "file", "--config", cfgPath, "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown kind")
	})

	t.Run("show", func(t *testing.T) {
		out, err := execute(t, "show", "--config", cfgPath, "widget", "build")
		require.NoError(t, err)
		assert.Contains(t, out, "widget build")
		assert.Contains(t, out, "--output")

		out, err = execute(t, "show", "--raw", "--config", cfgPath, "widget")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "widget manages widgets."))
	})

	t.Run("show unknown", func(t *testing.T) {
		_, err := execute(t, "show", "--config", cfgPath, "widgt")
		require.Error(t, err)
		assert.True(t, errors.Is(err, query.ErrNotFound))
		assert.Contains(t, err.Error(), "did you mean widget")
	})

	t.Run("list", func(t *testing.T) {
		out, err := execute(t, "list", "--config", cfgPath)
		require.NoError(t, err)
		assert.Contains(t, out, "widget build")
		assert.Contains(t, out, "Build a widget from source.")

		out, err = execute(t, "list", "--roots", "--config", cfgPath)
		require.NoError(t, err)
		assert.Equal(t, "widget\n", out)
	})

	t.Run("suggest", func(t *testing.T) {
		out, err := execute(t, "suggest", "--config", cfgPath, "widgte")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "widget\n"))
	})

	t.Run("status", func(t *testing.T) {
		out, err := execute(t, "status", "--json", "--config", cfgPath)
		require.NoError(t, err)

		var status types.IndexStatus
		require.NoError(t, json.Unmarshal([]byte(out), &status))
		assert.Equal(t, 2, status.Commands)
		assert.Equal(t, 1, status.Roots)
		assert.Contains(t, status.Failures, "mute")
		assert.NotEmpty(t, status.SnapshotID)
	})

	t.Run("export", func(t *testing.T) {
		out, err := execute(t, "export", "--config", cfgPath)
		require.NoError(t, err)

		cat, err := blux.Decode(strings.NewReader(out))
		require.NoError(t, err)
		require.Len(t, cat.Commands, 2)
		assert.Equal(t, []string{"build", "help", "ship"}, cat.Commands[0].Subcommands)

		file := filepath.Join(t.TempDir(), "catalog.json")
		_, err = execute(t, "export", "-o", file, "--config", cfgPath)
		require.NoError(t, err)
		assert.FileExists(t, file)
	})

	t.Run("stdio", func(t *testing.T) {
		resetFlags(rootCmd)
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetErr(&bytes.Buffer{})
		rootCmd.SetIn(strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"help_show","arguments":{"command":"widget build"}}}` + "\n"))
		rootCmd.SetArgs([]string{"stdio", "--config", cfgPath})

		require.NoError(t, rootCmd.ExecuteContext(context.Background()))
		assert.Contains(t, out.String(), `# widget build`)
	})

	t.Run("reindex one executable", func(t *testing.T) {
		out, err := execute(t, "index", "--config", cfgPath, "widget", "nosuch")
		require.NoError(t, err)
		assert.Contains(t, out, "Indexed 2 commands from 1 executables")

		out, err = execute(t, "status", "--json", "--config", cfgPath)
		require.NoError(t, err)
		var status types.IndexStatus
		require.NoError(t, json.Unmarshal([]byte(out), &status))
		assert.Equal(t, 2, status.Commands)
		assert.Contains(t, status.Failures, "nosuch")
	})
}

func TestIndexRequiresNamesOrAll(t *testing.T) {
	cfgPath := setupWorkspace(t)

	_, err := execute(t, "index", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--all")

	_, err = execute(t, "index", "--all", "--config", cfgPath, "widget")
	require.Error(t, err)
}

func TestIndexDepthZero(t *testing.T) {
	cfgPath := setupWorkspace(t)

	out, err := execute(t, "index", "--all", "--depth", "0", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 1 commands from 2 executables")
}

func TestSearchWithoutIndex(t *testing.T) {
	cfgPath := setupWorkspace(t)

	_, err := execute(t, "search", "--config", cfgPath, "anything")
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNoIndex))

	// status works on an empty index
	out, err := execute(t, "status", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "never")
}

func TestConfigCommands(t *testing.T) {
	cfgPath := setupWorkspace(t)
	target := filepath.Join(t.TempDir(), "nested", "config.yaml")

	out, err := execute(t, "config", "init", "--config", cfgPath, target)
	require.NoError(t, err)
	assert.Contains(t, out, target)
	assert.FileExists(t, target)

	_, err = execute(t, "config", "init", "--config", cfgPath, target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, "config", "init", "--force", "--config", cfgPath, target)
	require.NoError(t, err)

	out, err = execute(t, "config", "show", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "use_path_env: false")
	assert.Contains(t, out, "workers: 2")
}

func TestInvalidConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("harvest:\n  workers: 0\n"), 0644))

	_, err := execute(t, "status", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "harvest.workers must be positive")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "god "+Version+"\n", out)
}
