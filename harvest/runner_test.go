package harvest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func TestExecRunnerNonZeroExit(t *testing.T) {
	path := writeScript(t, `echo "usage: tool [-v]"; exit 3`)

	out, code, err := NewExecRunner(5*time.Second, 0).Run(context.Background(), path, []string{"--help"})
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Equal(t, "usage: tool [-v]\n", string(out))
}

func TestExecRunnerTimeout(t *testing.T) {
	path := writeScript(t, `echo started; exec sleep 10`)

	start := time.Now()
	out, code, err := NewExecRunner(200*time.Millisecond, 0).Run(context.Background(), path, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, -1, code)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, "started\n", string(out))
}

func TestExecRunnerOutputCap(t *testing.T) {
	path := writeScript(t, `i=0
while [ $i -lt 200 ]; do
  echo 0123456789
  i=$((i+1))
done`)

	out, code, err := NewExecRunner(5*time.Second, 1000).Run(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Len(t, out, 1000)
	assert.True(t, strings.HasPrefix(string(out), "0123456789\n"))
}

func TestExecRunnerEnvironment(t *testing.T) {
	t.Setenv("LANG", "de_DE.UTF-8")
	t.Setenv("PAGER", "less")
	path := writeScript(t, `echo "$LANG $LC_ALL $PAGER $TERM $NO_COLOR"`)

	out, _, err := NewExecRunner(5*time.Second, 0).Run(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, "C C cat dumb 1\n", string(out))
}

func TestExecRunnerStdinIsEmpty(t *testing.T) {
	path := writeScript(t, `cat; echo done`)

	out, code, err := NewExecRunner(5*time.Second, 0).Run(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "done\n", string(out))
}

func TestExecRunnerMissingBinary(t *testing.T) {
	_, code, err := NewExecRunner(time.Second, 0).Run(context.Background(), filepath.Join(t.TempDir(), "nope"), nil)
	require.Error(t, err)
	assert.Equal(t, -1, code)
}
