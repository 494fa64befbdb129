package harvest

import (
	"regexp"
	"strings"
)

var (
	ansiRe      = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)|\x1b[@-Z\\-_]`)
	blankRunsRe = regexp.MustCompile(`\n{3,}`)
	errorLineRe = regexp.MustCompile(`(?i)(unknown|invalid|unrecognized|illegal|bad)\s+(option|flag|argument|command)|not found|no such`)
	usageRe     = regexp.MustCompile(`(?im)^\s*usage\b`)
	flagLineRe  = regexp.MustCompile(`(?m)^\s+--?[A-Za-z0-9]`)
	headerRe    = regexp.MustCompile(`(?m)^[A-Z][A-Za-z ]{1,38}:\s*$|^[A-Z][A-Z ]{2,30}$`)
)

// Clean strips terminal control sequences and normalizes whitespace
func Clean(text string) string {
	text = ansiRe.ReplaceAllString(text, "")
	text = stripOverstrike(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	text = strings.Join(lines, "\n")
	text = blankRunsRe.ReplaceAllString(text, "\n\n")
	return strings.Trim(text, "\n")
}

// stripOverstrike removes nroff bold/underline sequences like "N\bN" and "_\bN"
func stripOverstrike(text string) string {
	if !strings.Contains(text, "\b") {
		return text
	}
	out := make([]rune, 0, len(text))
	for _, r := range text {
		if r == '\b' {
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// LooksLikeHelp reports whether cleaned output is plausibly a help text
func LooksLikeHelp(text string, minBytes int) bool {
	if len(text) < minBytes {
		return false
	}
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) <= 2 && errorLineRe.MatchString(text) && !usageRe.MatchString(text) {
		return false
	}
	return usageRe.MatchString(text) || flagLineRe.MatchString(text) || headerRe.MatchString(text)
}
