// Package blux exports the help index as a BLUX help catalog, the document
// BLUX agents load to learn which local commands exist and how to call them.
package blux

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/outervoid/god/types"
)

// Schema identifies the catalog format
const Schema = "blux.help-catalog/v1"

// Generator is written into every catalog
const Generator = "god"

// Catalog is the exported document
type Catalog struct {
	Schema      string    `json:"schema"`
	Generator   string    `json:"generator"`
	GeneratedAt time.Time `json:"generated_at"`
	Commands    []Command `json:"commands"`
}

// Command is one command path in the catalog
type Command struct {
	Command     string   `json:"command"`
	Root        string   `json:"root"`
	Summary     string   `json:"summary,omitempty"`
	Usage       string   `json:"usage,omitempty"`
	Flags       []Flag   `json:"flags"`
	Subcommands []string `json:"subcommands"`
}

// Flag is the catalog form of an option
type Flag struct {
	Name        string `json:"name"`
	Short       string `json:"short,omitempty"`
	Arg         string `json:"arg,omitempty"`
	Description string `json:"description,omitempty"`
}

// Build converts entries into a catalog sorted by command path
func Build(entries []types.HelpEntry, generatedAt time.Time) *Catalog {
	cat := &Catalog{
		Schema:      Schema,
		Generator:   Generator,
		GeneratedAt: generatedAt.UTC(),
		Commands:    make([]Command, 0, len(entries)),
	}

	for _, e := range entries {
		c := Command{
			Command:     e.Command,
			Root:        e.Root,
			Summary:     e.Summary,
			Usage:       e.Usage,
			Flags:       make([]Flag, 0, len(e.Flags)),
			Subcommands: make([]string, 0, len(e.Subcommands)),
		}
		for _, f := range e.Flags {
			flag := Flag{Name: f.Name(), Arg: f.Arg, Description: f.Description}
			if f.Long != "" {
				flag.Short = f.Short
			}
			c.Flags = append(c.Flags, flag)
		}
		for _, s := range e.Subcommands {
			c.Subcommands = append(c.Subcommands, s.Name)
		}
		cat.Commands = append(cat.Commands, c)
	}

	sort.Slice(cat.Commands, func(i, j int) bool {
		return cat.Commands[i].Command < cat.Commands[j].Command
	})
	return cat
}

// Export writes the catalog for entries to w as indented JSON
func Export(w io.Writer, entries []types.HelpEntry, generatedAt time.Time) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(Build(entries, generatedAt)); err != nil {
		return fmt.Errorf("failed to write catalog: %w", err)
	}
	return nil
}

// Decode reads a catalog and checks its schema
func Decode(r io.Reader) (*Catalog, error) {
	var cat Catalog
	if err := json.NewDecoder(r).Decode(&cat); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if cat.Schema != Schema {
		return nil, fmt.Errorf("unsupported catalog schema %q", cat.Schema)
	}
	return &cat, nil
}
