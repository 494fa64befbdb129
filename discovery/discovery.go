package discovery

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/outervoid/god/logger"
)

// Executable is a command found on one of the scanned directories
type Executable struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Dir     string    `json:"dir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Options configures a scan
type Options struct {
	Dirs    []string
	Include []string
	Exclude []string
	Logger  *slog.Logger
}

// Result is the outcome of a scan
type Result struct {
	Executables []Executable
	// Shadowed lists executables hidden by an earlier directory with the same name
	Shadowed []Executable
	// Skipped maps directories that could not be read to the reason
	Skipped map[string]string
}

// PathDirs splits a PATH-style list and appends extra directories
func PathDirs(env string, extra []string) []string {
	dirs := filepath.SplitList(env)
	return append(dirs, extra...)
}

// Scan lists executables in opts.Dirs. The first directory providing a name wins.
func Scan(ctx context.Context, opts Options) (*Result, error) {
	log := logger.OrDefault(opts.Logger)
	filter := NewFilter(opts.Include, opts.Exclude)

	res := &Result{Skipped: make(map[string]string)}
	seenDirs := make(map[string]bool)
	byName := make(map[string]bool)

	for _, dir := range opts.Dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if dir == "" {
			continue
		}
		clean := filepath.Clean(dir)
		if seenDirs[clean] {
			continue
		}
		seenDirs[clean] = true

		entries, err := os.ReadDir(clean)
		if err != nil {
			res.Skipped[clean] = err.Error()
			log.Debug("skipping directory", "dir", clean, "error", err)
			continue
		}

		for _, entry := range entries {
			name := entry.Name()
			if !filter.Allow(name) {
				continue
			}

			full := filepath.Join(clean, name)
			// Stat follows symlinks so linked binaries are found too
			info, err := os.Stat(full)
			if err != nil || !info.Mode().IsRegular() || info.Mode().Perm()&0111 == 0 {
				continue
			}

			exe := Executable{
				Name:    name,
				Path:    full,
				Dir:     clean,
				Size:    info.Size(),
				ModTime: info.ModTime(),
			}
			if byName[name] {
				res.Shadowed = append(res.Shadowed, exe)
				continue
			}
			byName[name] = true
			res.Executables = append(res.Executables, exe)
		}
	}

	sort.Slice(res.Executables, func(i, j int) bool {
		return res.Executables[i].Name < res.Executables[j].Name
	})

	log.Debug("scan complete", "executables", len(res.Executables),
		"shadowed", len(res.Shadowed), "skipped_dirs", len(res.Skipped))
	return res, nil
}

// Lookup resolves names against a scan result, preserving the order given
func Lookup(res *Result, names []string) (found []Executable, missing []string) {
	index := make(map[string]Executable, len(res.Executables))
	for _, exe := range res.Executables {
		index[exe.Name] = exe
	}
	for _, name := range names {
		if exe, ok := index[name]; ok {
			found = append(found, exe)
			continue
		}
		missing = append(missing, name)
	}
	return found, missing
}
