package blux

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outervoid/god/types"
)

func TestBuild(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	entries := []types.HelpEntry{
		{
			Command: "git commit", Root: "git", Summary: "Record changes",
			Flags: []types.Flag{
				{Short: "-m", Long: "--message", Arg: "MSG", Description: "commit message"},
				{Short: "-a", Description: "stage all"},
			},
		},
		{
			Command: "git", Root: "git", Usage: "git [--version] <command>",
			Subcommands: []types.Subcommand{{Name: "commit"}, {Name: "push", Aliases: []string{"p"}}},
		},
	}

	got := Build(entries, at)

	want := &Catalog{
		Schema:      Schema,
		Generator:   "god",
		GeneratedAt: at.UTC(),
		Commands: []Command{
			{
				Command: "git", Root: "git", Usage: "git [--version] <command>",
				Flags:       []Flag{},
				Subcommands: []string{"commit", "push"},
			},
			{
				Command: "git commit", Root: "git", Summary: "Record changes",
				Flags: []Flag{
					{Name: "--message", Short: "-m", Arg: "MSG", Description: "commit message"},
					{Name: "-a", Description: "stage all"},
				},
				Subcommands: []string{},
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Build() mismatch (-want +got):\n%s", diff)
	}
}

func TestExportDecode(t *testing.T) {
	var buf bytes.Buffer
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, Export(&buf, []types.HelpEntry{{Command: "ls", Root: "ls"}}, at))

	out := buf.String()
	assert.Contains(t, out, `"schema": "blux.help-catalog/v1"`)
	assert.Contains(t, out, `"flags": []`, "empty lists are written, not null")

	cat, err := Decode(&buf)
	require.NoError(t, err)
	require.Len(t, cat.Commands, 1)
	assert.Equal(t, "ls", cat.Commands[0].Command)
	assert.True(t, cat.GeneratedAt.Equal(at))
}

func TestDecodeRejectsUnknownSchema(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"schema":"other/v9","commands":[]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "other/v9")

	_, err = Decode(strings.NewReader(`{`))
	require.Error(t, err)
}
