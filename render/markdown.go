package render

import (
	"fmt"
	"strings"

	"github.com/outervoid/god/types"
)

// Markdown converts an entry to a Markdown document
func Markdown(entry types.HelpEntry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", entry.Command)
	if entry.Summary != "" {
		fmt.Fprintf(&b, "%s\n\n", entry.Summary)
	}

	if entry.Usage != "" {
		b.WriteString("## Usage\n\n")
		fmt.Fprintf(&b, "```\n%s\n```\n\n", entry.Usage)
	}

	if entry.Description != "" && entry.Description != entry.Summary {
		b.WriteString("## Description\n\n")
		fmt.Fprintf(&b, "%s\n\n", entry.Description)
	}

	if len(entry.Subcommands) > 0 {
		b.WriteString("## Commands\n\n")
		for _, sub := range entry.Subcommands {
			name := "`" + sub.Name + "`"
			if len(sub.Aliases) > 0 {
				name += " (" + strings.Join(sub.Aliases, ", ") + ")"
			}
			writeItem(&b, name, sub.Description)
		}
		b.WriteString("\n")
	}

	if len(entry.Flags) > 0 {
		b.WriteString("## Options\n\n")
		for _, f := range entry.Flags {
			writeItem(&b, "`"+flagSpelling(f)+"`", f.Description)
		}
		b.WriteString("\n")
	}

	for _, s := range entry.Sections {
		if coveredSection(s.Title, entry) {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n```\n%s\n```\n\n", s.Title, s.Body)
	}

	fmt.Fprintf(&b, "---\n\n_%s %s_\n", entry.Path, entry.Strategy)
	return b.String()
}

func writeItem(b *strings.Builder, name, desc string) {
	desc = strings.Join(strings.Fields(desc), " ")
	if desc == "" {
		fmt.Fprintf(b, "- %s\n", name)
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", name, desc)
}

// flagSpelling renders "-o, --out FILE"
func flagSpelling(f types.Flag) string {
	var names []string
	if f.Short != "" {
		names = append(names, f.Short)
	}
	if f.Long != "" {
		names = append(names, f.Long)
	}
	s := strings.Join(names, ", ")
	if f.Arg != "" {
		s += " " + f.Arg
	}
	return s
}

// coveredSection reports whether a section is already shown as the Options or Commands list
func coveredSection(title string, entry types.HelpEntry) bool {
	t := strings.ToLower(title)
	if strings.HasPrefix(t, "usage") {
		return entry.Usage != ""
	}
	if len(entry.Flags) > 0 && (strings.Contains(t, "option") || strings.Contains(t, "flag")) {
		return true
	}
	if len(entry.Subcommands) > 0 && strings.Contains(t, "command") {
		return true
	}
	return false
}
