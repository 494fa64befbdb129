package discovery

import (
	"path/filepath"
	"strings"
)

// Filter decides which executable names are indexed
type Filter struct {
	include []string
	exclude []string
}

// defaultExcludes are names that never produce useful help or are unsafe to run
var defaultExcludes = []string{
	".*",
	"*~",
	"*.so",
	"*.so.*",
	"*.dll",
	"*.a",
	"reboot",
	"shutdown",
	"halt",
	"poweroff",
	"init",
	"telinit",
	"mkfs*",
	"fdisk",
	"dd",
	"rm",
	"kill*",
	"yes",
}

// NewFilter creates a Filter. Include globs, when given, must match; exclude globs must not.
func NewFilter(include, exclude []string) *Filter {
	f := &Filter{include: include}
	f.exclude = append(f.exclude, defaultExcludes...)
	for _, pattern := range exclude {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" || strings.HasPrefix(pattern, "#") {
			continue
		}
		f.exclude = append(f.exclude, pattern)
	}
	return f
}

// Allow reports whether name passes the filter
func (f *Filter) Allow(name string) bool {
	for _, pattern := range f.exclude {
		if matchName(pattern, name) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, pattern := range f.include {
		if matchName(pattern, name) {
			return true
		}
	}
	return false
}

func matchName(pattern, name string) bool {
	matched, err := filepath.Match(pattern, name)
	return err == nil && matched
}
