package watcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/outervoid/god/logger"
)

// FileOperation represents the type of file operation
type FileOperation int

const (
	OpCreate FileOperation = iota
	OpModify
	OpDelete
	OpRename
)

func (op FileOperation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is a change to an executable in a watched directory
type FileEvent struct {
	Path      string        `json:"path"`
	Name      string        `json:"name"`
	OldPath   string        `json:"old_path,omitempty"` // For rename operations
	Operation FileOperation `json:"operation"`
	Timestamp time.Time     `json:"timestamp"`
	Hash      string        `json:"hash,omitempty"`
	Size      int64         `json:"size,omitempty"`
}

// Options configures a Watcher
type Options struct {
	DebounceMs int
	// Allow filters executable names; nil allows everything
	Allow func(name string) bool
	Log   *slog.Logger
}

// largeFile is the size above which files are fingerprinted by size and mtime
const largeFile = 1 << 20

// Watcher monitors executable directories
type Watcher struct {
	fsWatcher      *fsnotify.Watcher
	eventQueue     chan FileEvent
	debounceTime   time.Duration
	allow          func(string) bool
	log            *slog.Logger
	mu             sync.RWMutex
	watchedDirs    map[string]bool
	fileHashes     map[string]string    // Track file content hashes
	pendingRenames map[string]time.Time // Track potential rename operations
	renameWindow   time.Duration        // CREATE within this of a REMOVE is a rename
	deleteAfter    time.Duration        // unmatched REMOVE becomes DELETE after this
	batchSize      int
	batchTimeout   time.Duration

	qmu    sync.Mutex
	closed bool
}

// NewWatcher creates a new file system watcher
func NewWatcher(opts Options) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fs watcher: %w", err)
	}

	allow := opts.Allow
	if allow == nil {
		allow = func(string) bool { return true }
	}

	return &Watcher{
		fsWatcher:      fsWatcher,
		eventQueue:     make(chan FileEvent, 1000),
		debounceTime:   time.Duration(opts.DebounceMs) * time.Millisecond,
		allow:          allow,
		log:            logger.OrDefault(opts.Log),
		watchedDirs:    make(map[string]bool),
		fileHashes:     make(map[string]string),
		pendingRenames: make(map[string]time.Time),
		renameWindow:   100 * time.Millisecond,
		deleteAfter:    2 * time.Second,
		batchSize:      32,
		batchTimeout:   100 * time.Millisecond,
	}, nil
}

// AddPath watches one directory. Subdirectories are not followed.
func (w *Watcher) AddPath(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("failed to stat path %s: %w", dir, err)
	}
	if !info.IsDir() {
		dir = filepath.Dir(dir)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watchedDirs[dir] {
		return nil
	}
	if err := w.fsWatcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.watchedDirs[dir] = true
	return nil
}

// AddPaths watches every directory that exists and returns how many were added
func (w *Watcher) AddPaths(dirs []string) int {
	added := 0
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := w.AddPath(dir); err != nil {
			w.log.Debug("not watching directory", "dir", dir, "error", err)
			continue
		}
		added++
	}
	return added
}

// WatchedDirs returns the directories currently watched
func (w *Watcher) WatchedDirs() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	dirs := make([]string, 0, len(w.watchedDirs))
	for d := range w.watchedDirs {
		dirs = append(dirs, d)
	}
	return dirs
}

// shouldIgnore checks if a path should be ignored
func (w *Watcher) shouldIgnore(path string) bool {
	base := filepath.Base(path)

	// editor and installer temporaries
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".tmp") || strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".dpkg-new") || strings.HasSuffix(base, ".dpkg-tmp") {
		return true
	}
	return !w.allow(base)
}

// Start begins watching for file changes
func (w *Watcher) Start(ctx context.Context) error {
	// Debouncer to batch rapid file changes; ops seen in the window are merged
	debouncer := make(map[string]*time.Timer)
	merged := make(map[string]fsnotify.Op)
	var debounceSync sync.Mutex

	go func() {
		for {
			select {
			case <-ctx.Done():
				debounceSync.Lock()
				for _, t := range debouncer {
					t.Stop()
				}
				debounceSync.Unlock()
				return
			case event, ok := <-w.fsWatcher.Events:
				if !ok {
					return
				}

				if w.shouldIgnore(event.Name) {
					continue
				}

				name := event.Name
				debounceSync.Lock()
				if timer, exists := debouncer[name]; exists {
					timer.Stop()
				}
				merged[name] |= event.Op

				debouncer[name] = time.AfterFunc(w.debounceTime, func() {
					debounceSync.Lock()
					op := merged[name]
					delete(merged, name)
					delete(debouncer, name)
					debounceSync.Unlock()

					if fileEvent := w.processFileSystemEvent(fsnotify.Event{Name: name, Op: op}); fileEvent != nil {
						w.emit(*fileEvent)
					}
				})
				debounceSync.Unlock()

			case err, ok := <-w.fsWatcher.Errors:
				if !ok {
					return
				}
				w.log.Warn("watcher error", "error", err)
			}
		}
	}()

	go w.cleanupPendingRenames(ctx)

	return nil
}

// emit queues an event unless the watcher is closed or the queue is full
func (w *Watcher) emit(ev FileEvent) {
	w.qmu.Lock()
	defer w.qmu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.eventQueue <- ev:
	default:
		w.log.Warn("event queue full, dropping event", "path", ev.Path, "op", ev.Operation.String())
	}
}

// Events returns the event channel
func (w *Watcher) Events() <-chan FileEvent {
	return w.eventQueue
}

// Close stops the watcher
func (w *Watcher) Close() error {
	w.qmu.Lock()
	if !w.closed {
		w.closed = true
		close(w.eventQueue)
	}
	w.qmu.Unlock()
	return w.fsWatcher.Close()
}

// processFileSystemEvent converts a debounced fsnotify.Event to a FileEvent.
// event.Op may carry several operations merged during the debounce window.
func (w *Watcher) processFileSystemEvent(event fsnotify.Event) *FileEvent {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	stat, statErr := os.Stat(event.Name)

	if statErr != nil {
		if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			// wait to see if it reappears under another name
			w.pendingRenames[event.Name] = now
			delete(w.fileHashes, event.Name)
		}
		return nil
	}

	var operation FileOperation
	var oldPath string

	switch {
	case event.Op&fsnotify.Create != 0:
		operation = OpCreate
		// CREATE shortly after a REMOVE in the same directory is a rename
		for path, removed := range w.pendingRenames {
			if path != event.Name && filepath.Dir(path) == filepath.Dir(event.Name) && now.Sub(removed) < w.renameWindow {
				operation = OpRename
				oldPath = path
				delete(w.pendingRenames, path)
				break
			}
		}
		delete(w.pendingRenames, event.Name)
	case event.Op&(fsnotify.Write|fsnotify.Chmod|fsnotify.Rename|fsnotify.Remove) != 0:
		// replaced in place
		operation = OpModify
		delete(w.pendingRenames, event.Name)
	default:
		return nil
	}

	if !isExecutable(stat) {
		if _, tracked := w.fileHashes[event.Name]; !tracked {
			return nil
		}
		// lost its execute bit, so discovery no longer lists it
		delete(w.fileHashes, event.Name)
		return &FileEvent{
			Path:      event.Name,
			Name:      filepath.Base(event.Name),
			Operation: OpDelete,
			Timestamp: now,
			Size:      stat.Size(),
		}
	}

	hash := w.calculateFileHash(event.Name)
	if hash != "" {
		previous, existed := w.fileHashes[event.Name]
		if operation == OpModify && existed && hash == previous {
			return nil
		}
		w.fileHashes[event.Name] = hash
	}

	return &FileEvent{
		Path:      event.Name,
		Name:      filepath.Base(event.Name),
		OldPath:   oldPath,
		Operation: operation,
		Timestamp: now,
		Hash:      hash,
		Size:      stat.Size(),
	}
}

func isExecutable(info os.FileInfo) bool {
	return info.Mode().IsRegular() && info.Mode().Perm()&0111 != 0
}

// calculateFileHash computes SHA-256 hash of file content
func (w *Watcher) calculateFileHash(path string) string {
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()

	if stat, err := file.Stat(); err == nil && stat.Size() > largeFile {
		return fmt.Sprintf("large-file-%d-%d", stat.Size(), stat.ModTime().UnixNano())
	}

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return ""
	}

	return fmt.Sprintf("%x", hash.Sum(nil))
}

// cleanupPendingRenames turns unmatched removals into deletes
func (w *Watcher) cleanupPendingRenames(ctx context.Context) {
	tick := w.deleteAfter / 4
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			now := time.Now()
			var expired []FileEvent
			for path, timestamp := range w.pendingRenames {
				if now.Sub(timestamp) > w.deleteAfter {
					expired = append(expired, FileEvent{
						Path:      path,
						Name:      filepath.Base(path),
						Operation: OpDelete,
						Timestamp: timestamp,
					})
					delete(w.pendingRenames, path)
				}
			}
			w.mu.Unlock()

			for _, ev := range expired {
				w.emit(ev)
			}
		}
	}
}

// GetBatchedEvents returns multiple events for efficient processing.
// The second result is false once the watcher is closed.
func (w *Watcher) GetBatchedEvents(ctx context.Context, timeout time.Duration) ([]FileEvent, bool) {
	var events []FileEvent
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case event, ok := <-w.eventQueue:
		if !ok {
			return nil, false
		}
		events = append(events, event)
	case <-timer.C:
		return events, true
	case <-ctx.Done():
		return events, true
	}

	wait := time.NewTimer(w.batchTimeout)
	defer wait.Stop()
	for len(events) < w.batchSize {
		select {
		case event, ok := <-w.eventQueue:
			if !ok {
				return events, false
			}
			events = append(events, event)
		case <-wait.C:
			return events, true
		}
	}

	return events, true
}

// InitializeFileHashes populates the hash cache for executables in dirs
func (w *Watcher) InitializeFileHashes(dirs ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, de := range entries {
			path := filepath.Join(dir, de.Name())
			if w.shouldIgnore(path) {
				continue
			}
			info, err := os.Stat(path)
			if err != nil || !isExecutable(info) {
				continue
			}
			if hash := w.calculateFileHash(path); hash != "" {
				w.fileHashes[path] = hash
			}
		}
	}
	return nil
}
