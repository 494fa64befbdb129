// Package helpparse turns free-form --help output into a structured document.
//
// The parser is deliberately forgiving. Help text has no grammar, so every rule
// here is a heuristic tuned against the common shapes produced by GNU getopt,
// cobra, click/argparse, Go's flag package and man-style uppercase headers.
package helpparse

import (
	"regexp"
	"strings"

	"github.com/outervoid/god/types"
)

// Document is the structured form of a help text
type Document struct {
	Usage       string
	Summary     string
	Description string
	Sections    []types.Section
	Flags       []types.Flag
	Subcommands []types.Subcommand
}

const (
	maxHeaderLen   = 40
	maxHeaderWords = 5
)

var (
	usagePrefix = regexp.MustCompile(`(?i)^usage:\s*(.*)$`)
	gapRe       = regexp.MustCompile(`\s{2,}|\t`)
	subNameRe   = `[A-Za-z0-9][A-Za-z0-9_.:-]*`
	subLineRe   = regexp.MustCompile(`^(` + subNameRe + `)((?:\s*[,|]\s*` + subNameRe + `)*)(?:\s{2,}|\t+)(\S.*)$`)
	subBareRe   = regexp.MustCompile(`^(` + subNameRe + `)$`)
	flagTokRe   = regexp.MustCompile(`^--?[A-Za-z0-9?#@\[]`)
)

// goFlagTypes are the argument placeholders printed by Go's flag package
var goFlagTypes = map[string]bool{
	"string": true, "int": true, "uint": true, "int64": true, "uint64": true,
	"float": true, "float64": true, "duration": true, "value": true,
	"strings": true, "stringArray": true, "stringSlice": true, "bool": true,
}

type line struct {
	text   string // with indentation, trailing space trimmed
	trim   string
	indent int
	usage  bool
}

type block struct {
	title string
	lines []line
}

// Parse parses help text into a Document
func Parse(text string) Document {
	lines := splitLines(text)
	blocks, usage := splitBlocks(lines)

	doc := Document{Usage: usage}
	doc.Description, doc.Summary = description(blocks)

	for _, b := range blocks {
		if b.title == "" {
			continue
		}
		doc.Sections = append(doc.Sections, types.Section{
			Title: b.title,
			Body:  joinBody(b.lines),
		})
	}

	for _, s := range doc.Sections {
		switch strings.ToLower(s.Title) {
		case "description", "name":
			if doc.Description == "" {
				doc.Description = strings.TrimSpace(dedent(s.Body))
				doc.Summary = firstLine(doc.Description)
			}
		case "synopsis":
			if doc.Usage == "" {
				doc.Usage = strings.TrimSpace(dedent(s.Body))
			}
		}
	}

	doc.Flags = parseFlags(blocks)
	doc.Subcommands = parseSubcommands(blocks)
	return doc
}

func splitLines(text string) []line {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	raw := strings.Split(text, "\n")
	out := make([]line, 0, len(raw))
	for _, r := range raw {
		r = strings.ReplaceAll(r, "\t", "    ")
		r = strings.TrimRight(r, " ")
		trim := strings.TrimLeft(r, " ")
		out = append(out, line{text: r, trim: trim, indent: len(r) - len(trim)})
	}
	return out
}

// splitBlocks groups lines under section headers and extracts the usage string
func splitBlocks(lines []line) ([]block, string) {
	blocks := []block{{title: ""}}
	cur := &blocks[0]

	var usageParts []string
	inUsage := false
	usageInline := false

	for _, l := range lines {
		if l.trim == "" {
			inUsage = inUsage && !usageInline && len(usageParts) == 0
			cur.lines = append(cur.lines, l)
			continue
		}

		if m := usagePrefix.FindStringSubmatch(l.trim); m != nil && l.indent <= 2 {
			blocks = append(blocks, block{title: "Usage"})
			cur = &blocks[len(blocks)-1]
			inUsage = true
			usageInline = m[1] != ""
			if usageInline {
				usageParts = append(usageParts, collapse(m[1]))
				cur.lines = append(cur.lines, line{text: m[1], trim: strings.TrimSpace(m[1]), usage: true})
			}
			continue
		}

		if l.indent == 0 && isHeader(l.trim) {
			title := strings.TrimSuffix(l.trim, ":")
			blocks = append(blocks, block{title: title})
			cur = &blocks[len(blocks)-1]
			inUsage = false
			continue
		}

		if inUsage {
			if l.indent > 0 && !strings.HasPrefix(l.trim, "-") {
				if usageInline {
					usageParts[len(usageParts)-1] += " " + collapse(l.trim)
				} else {
					usageParts = append(usageParts, collapse(l.trim))
				}
				cur.lines = append(cur.lines, l)
				continue
			}
			// flush-left prose (GNU tools) or an option list ends the usage
			inUsage = false
		}

		cur.lines = append(cur.lines, l)
	}

	return blocks, strings.Join(usageParts, "\n")
}

func isHeader(trim string) bool {
	if len(trim) > maxHeaderLen || strings.HasPrefix(trim, "-") {
		return false
	}
	words := len(strings.Fields(trim))
	if strings.HasSuffix(trim, ":") {
		return words <= maxHeaderWords && !strings.Contains(strings.TrimSuffix(trim, ":"), ":")
	}
	// man-style uppercase header
	if words > 4 || strings.ToUpper(trim) != trim {
		return false
	}
	return strings.IndexFunc(trim, func(r rune) bool { return r >= 'A' && r <= 'Z' }) >= 0 &&
		!strings.ContainsAny(trim, ".,;()[]<>=")
}

// description collects flush-left prose from the preamble and usage blocks.
// The summary is the first prose line.
func description(blocks []block) (string, string) {
	var paragraphs []string
	var cur []string
	summary := ""
	flush := func() {
		if len(cur) > 0 {
			paragraphs = append(paragraphs, strings.Join(cur, " "))
			cur = nil
		}
	}

	for _, b := range blocks {
		if b.title != "" && b.title != "Usage" {
			break
		}
		for _, l := range b.lines {
			switch {
			case l.trim == "":
				flush()
			case l.indent == 0 && !l.usage:
				if summary == "" {
					summary = l.trim
				}
				cur = append(cur, l.trim)
			default:
				flush()
			}
		}
		flush()
	}

	if len(paragraphs) == 0 && len(blocks) > 0 {
		// some tools indent everything; take the first prose line of the preamble
		for _, l := range blocks[0].lines {
			if l.trim != "" && !strings.HasPrefix(l.trim, "-") {
				return l.trim, l.trim
			}
		}
	}
	return strings.Join(paragraphs, "\n\n"), summary
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func joinBody(lines []line) string {
	var parts []string
	for _, l := range lines {
		parts = append(parts, l.text)
	}
	return strings.Trim(strings.Join(parts, "\n"), "\n")
}

func dedent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.Join(lines, "\n")
}

func sectionHas(title string, words ...string) bool {
	title = strings.ToLower(title)
	for _, w := range words {
		if strings.Contains(title, w) {
			return true
		}
	}
	return false
}

func parseFlags(blocks []block) []types.Flag {
	var flags []types.Flag
	seen := make(map[string]bool)

	for _, b := range blocks {
		optionSection := sectionHas(b.title, "option", "flag", "argument")
		for i := 0; i < len(b.lines); i++ {
			l := b.lines[i]
			if !flagTokRe.MatchString(l.trim) || strings.HasPrefix(l.trim, "---") {
				continue
			}
			if l.indent == 0 && !optionSection {
				continue
			}

			flag, ok := parseFlagLine(l.trim)
			if !ok {
				continue
			}

			// continuation lines are indented deeper and are not flags themselves
			for i+1 < len(b.lines) {
				next := b.lines[i+1]
				if next.trim == "" || next.indent <= l.indent || strings.HasPrefix(next.trim, "-") {
					break
				}
				if flag.Description == "" {
					flag.Description = collapse(next.trim)
				} else {
					flag.Description += " " + collapse(next.trim)
				}
				i++
			}

			key := flag.Long + "|" + flag.Short
			if seen[key] {
				continue
			}
			seen[key] = true
			flags = append(flags, flag)
		}
	}
	return flags
}

// parseFlagLine parses a trimmed line such as "-o, --output=FILE  write to FILE"
func parseFlagLine(trim string) (types.Flag, bool) {
	var flag types.Flag

	spec, desc := trim, ""
	if loc := gapRe.FindStringIndex(trim); loc != nil {
		spec, desc = trim[:loc[0]], strings.TrimSpace(trim[loc[1]:])
	}

	fields := strings.Fields(strings.ReplaceAll(spec, ",", " "))
	var rest []string
	for i, f := range fields {
		if strings.HasPrefix(f, "-") && flagTokRe.MatchString(f) {
			name, arg := splitFlagArg(f)
			if strings.HasPrefix(name, "--") {
				if flag.Long == "" {
					flag.Long = name
				}
			} else if flag.Short == "" {
				flag.Short = name
			}
			if arg != "" && flag.Arg == "" {
				flag.Arg = arg
			}
			continue
		}
		if f == "|" {
			continue
		}
		if looksLikeArg(f) {
			if flag.Arg == "" {
				flag.Arg = f
			}
			continue
		}
		rest = fields[i:]
		break
	}

	if flag.Long == "" && flag.Short == "" {
		return flag, false
	}

	if len(rest) > 0 {
		// a single-space separated description leaked into the spec
		prefix := strings.Join(rest, " ")
		if desc != "" {
			desc = prefix + " " + desc
		} else {
			desc = prefix
		}
	}
	flag.Description = collapse(desc)
	return flag, true
}

func splitFlagArg(tok string) (name, arg string) {
	if strings.HasPrefix(tok, "--[no-]") {
		return tok, ""
	}
	if i := strings.IndexAny(tok, "=["); i > 0 {
		name, arg = tok[:i], tok[i:]
		arg = strings.TrimPrefix(arg, "=")
		return name, arg
	}
	return tok, ""
}

func looksLikeArg(tok string) bool {
	if goFlagTypes[tok] {
		return true
	}
	if strings.ContainsAny(tok[:1], "<[{") {
		return true
	}
	letters := strings.IndexFunc(tok, func(r rune) bool { return r >= 'a' && r <= 'z' })
	return letters < 0 && strings.IndexFunc(tok, func(r rune) bool { return r >= 'A' && r <= 'Z' }) >= 0
}

func parseSubcommands(blocks []block) []types.Subcommand {
	var subs []types.Subcommand
	seen := make(map[string]bool)

	for _, b := range blocks {
		if !sectionHas(b.title, "command") || sectionHas(b.title, "usage") {
			continue
		}
		subIndent := -1
		for i := 0; i < len(b.lines); i++ {
			l := b.lines[i]
			if l.indent == 0 || l.trim == "" || strings.HasPrefix(l.trim, "-") {
				continue
			}
			// description continuation of the previous entry
			if subIndent >= 0 && l.indent > subIndent+2 {
				last := &subs[len(subs)-1]
				last.Description = strings.TrimSpace(last.Description + " " + collapse(l.trim))
				continue
			}

			var sub types.Subcommand
			if m := subLineRe.FindStringSubmatch(l.trim); m != nil {
				sub.Name = m[1]
				sub.Description = collapse(m[3])
				for _, alias := range strings.FieldsFunc(m[2], func(r rune) bool { return r == ',' || r == '|' || r == ' ' }) {
					sub.Aliases = append(sub.Aliases, alias)
				}
			} else if m := subBareRe.FindStringSubmatch(l.trim); m != nil {
				sub.Name = m[1]
			} else {
				continue
			}

			if seen[sub.Name] {
				continue
			}
			seen[sub.Name] = true
			subIndent = l.indent
			subs = append(subs, sub)
		}
	}
	return subs
}
