// Package render formats index data for terminals.
package render

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/outervoid/god/types"
)

const (
	defaultWidth = 100
	minWidth     = 40
	maxFailures  = 10
)

// Printer writes styled output to one writer
type Printer struct {
	w     io.Writer
	tty   bool
	width int

	command lipgloss.Style
	kind    lipgloss.Style
	dim     lipgloss.Style
	label   lipgloss.Style
	warn    lipgloss.Style
}

// New creates a Printer for w. Colour is disabled when w is not a terminal or noColor is set.
func New(w io.Writer, noColor bool) *Printer {
	tty := IsTerminal(w)
	r := lipgloss.NewRenderer(w)
	if noColor || !tty {
		r.SetColorProfile(termenv.Ascii)
	}

	return &Printer{
		w:       w,
		tty:     tty && !noColor,
		width:   Width(w),
		command: r.NewStyle().Foreground(lipgloss.Color("6")).Bold(true),
		kind:    r.NewStyle().Foreground(lipgloss.Color("5")),
		dim:     r.NewStyle().Foreground(lipgloss.Color("8")).Faint(true),
		label:   r.NewStyle().Bold(true),
		warn:    r.NewStyle().Foreground(lipgloss.Color("3")),
	}
}

// IsTerminal reports whether w is an interactive terminal
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Width returns the terminal width of w, falling back to $COLUMNS and then 100
func Width(w io.Writer) int {
	if f, ok := w.(*os.File); ok && IsTerminal(w) {
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols >= minWidth {
			return cols
		}
	}
	if cols, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && cols >= minWidth {
		return cols
	}
	return defaultWidth
}

// SetWidth overrides the detected width
func (p *Printer) SetWidth(width int) {
	if width >= minWidth {
		p.width = width
	}
}

// SearchResults prints ranked hits followed by a one-line summary
func (p *Printer) SearchResults(resp *types.SearchResponse) error {
	if len(resp.Hits) == 0 {
		fmt.Fprintln(p.w, "No results.")
		p.Suggestions(resp.Suggestions)
		return nil
	}

	for _, hit := range resp.Hits {
		fmt.Fprintf(p.w, "%s %s %s\n",
			p.command.Render(hit.Command),
			p.kind.Render("["+hitLabel(hit)+"]"),
			p.dim.Render(strconv.FormatFloat(hit.Score, 'f', 2, 64)))
		if hit.Text != "" && hit.Text != hit.Command {
			body := wordwrap.String(hit.Text, p.width-4)
			fmt.Fprintln(p.w, indent.String(body, 4))
		}
	}

	_, err := fmt.Fprintln(p.w, p.dim.Render(fmt.Sprintf("%d of %d hits in %s",
		len(resp.Hits), resp.TotalHits, resp.QueryTime.Round(time.Microsecond))))
	return err
}

func hitLabel(hit types.SearchHit) string {
	switch hit.Kind {
	case types.KindLine:
		return "line " + strconv.Itoa(hit.LineNumber)
	case types.KindFlag, types.KindSubcommand:
		if hit.Field != "" {
			return hit.Kind + " " + hit.Field
		}
	}
	return hit.Kind
}

// CommandList prints one command per line with its summary
func (p *Printer) CommandList(entries []types.HelpEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(p.w, "No commands indexed.")
		return err
	}

	nameWidth := 0
	for _, e := range entries {
		if n := len(e.Command); n > nameWidth {
			nameWidth = n
		}
	}
	if nameWidth > p.width/2 {
		nameWidth = p.width / 2
	}

	for _, e := range entries {
		name := truncate.StringWithTail(e.Command, uint(nameWidth), "…")
		pad := strings.Repeat(" ", nameWidth-lipgloss.Width(name))
		avail := p.width - nameWidth - 2
		summary := ""
		if avail > 0 {
			summary = truncate.StringWithTail(e.Summary, uint(avail), "…")
		}
		fmt.Fprintf(p.w, "%s%s  %s\n", p.command.Render(name), pad, summary)
	}
	return nil
}

// Suggestions prints "did you mean" candidates
func (p *Printer) Suggestions(suggestions []string) {
	if len(suggestions) == 0 {
		return
	}
	fmt.Fprintf(p.w, "Did you mean: %s?\n", strings.Join(suggestions, ", "))
}

// Status prints an index summary
func (p *Printer) Status(status *types.IndexStatus) error {
	updated := "never"
	if !status.LastUpdated.IsZero() {
		updated = status.LastUpdated.Local().Format(time.RFC3339)
	}
	snapshot := status.SnapshotID
	if snapshot == "" {
		snapshot = "-"
	}

	rows := [][2]string{
		{"Index", status.IndexPath},
		{"Snapshot", snapshot},
		{"Updated", updated},
		{"Executables", strconv.Itoa(status.Roots)},
		{"Commands", strconv.Itoa(status.Commands)},
		{"Failures", strconv.Itoa(len(status.Failures))},
	}
	for _, row := range rows {
		fmt.Fprintf(p.w, "%s %s\n", p.label.Render(fmt.Sprintf("%-12s", row[0]+":")), row[1])
	}

	if len(status.Failures) == 0 {
		return nil
	}
	names := make([]string, 0, len(status.Failures))
	for name := range status.Failures {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		if i == maxFailures {
			fmt.Fprintln(p.w, p.dim.Render(fmt.Sprintf("  ... and %d more", len(names)-maxFailures)))
			break
		}
		reason := truncate.StringWithTail(firstLine(status.Failures[name]), uint(max(p.width-len(name)-6, 10)), "…")
		fmt.Fprintf(p.w, "  %s %s\n", p.warn.Render(name+":"), p.dim.Render(reason))
	}
	return nil
}

// Show renders an entry as Markdown through glamour, falling back to plain Markdown
func (p *Printer) Show(entry types.HelpEntry) error {
	md := Markdown(entry)

	style := "notty"
	if p.tty {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(p.width),
	)
	if err != nil {
		_, err = io.WriteString(p.w, md)
		return err
	}

	out, err := r.Render(md)
	if err != nil {
		out = md
	}
	_, err = io.WriteString(p.w, out)
	return err
}

// Raw prints the cleaned help text exactly as harvested
func (p *Printer) Raw(entry types.HelpEntry) error {
	_, err := fmt.Fprintln(p.w, entry.Raw)
	return err
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
