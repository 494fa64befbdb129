package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/outervoid/god/types"
)

// Version is the snapshot format written by this build
const Version = 1

var (
	// ErrNoIndex is returned by Load when nothing has been indexed yet
	ErrNoIndex = errors.New("no index found; run `god index` first")
	// ErrVersion is returned for snapshots written by an incompatible build
	ErrVersion = errors.New("unsupported index version")
)

// Snapshot is the persisted form of the help index
type Snapshot struct {
	Version   int               `json:"version"`
	ID        string            `json:"id"`
	UpdatedAt time.Time         `json:"updated_at"`
	Entries   []types.HelpEntry `json:"entries"`
	Failures  map[string]string `json:"failures,omitempty"`
}

// Store reads and writes snapshots at a fixed path
type Store struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// New creates a Store for the given snapshot file
func New(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Path returns the snapshot location
func (s *Store) Path() string {
	return s.path
}

// Load reads the snapshot from disk
func (s *Store) Load() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoIndex
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse index %s: %w", s.path, err)
	}
	if snap.Version != Version {
		return nil, fmt.Errorf("%w: %d (want %d)", ErrVersion, snap.Version, Version)
	}
	if snap.Failures == nil {
		snap.Failures = make(map[string]string)
	}
	return &snap, nil
}

// LoadOrEmpty is Load, returning an empty snapshot when no index exists yet
func (s *Store) LoadOrEmpty() (*Snapshot, error) {
	snap, err := s.Load()
	if errors.Is(err, ErrNoIndex) {
		return &Snapshot{Version: Version, Failures: make(map[string]string)}, nil
	}
	return snap, err
}

// Save writes the snapshot atomically, assigning a new ID and timestamp
func (s *Store) Save(snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap.Version = Version
	snap.ID = uuid.NewString()
	snap.UpdatedAt = s.now().UTC()
	sort.Slice(snap.Entries, func(i, j int) bool {
		return snap.Entries[i].Command < snap.Entries[j].Command
	})

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".index-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp index: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close index: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace index: %w", err)
	}
	return nil
}

// Merge replaces every entry whose root was re-harvested and keeps the rest.
// Roots present in failures lose their old entries only when drop is true.
func Merge(snap *Snapshot, entries []types.HelpEntry, failures map[string]string, drop bool) {
	replaced := make(map[string]bool)
	for _, e := range entries {
		replaced[e.Root] = true
	}
	if drop {
		for root := range failures {
			replaced[root] = true
		}
	}

	kept := snap.Entries[:0:0]
	for _, e := range snap.Entries {
		if !replaced[e.Root] {
			kept = append(kept, e)
		}
	}
	snap.Entries = append(kept, entries...)

	if snap.Failures == nil {
		snap.Failures = make(map[string]string)
	}
	for root := range replaced {
		delete(snap.Failures, root)
	}
	for root, reason := range failures {
		snap.Failures[root] = reason
	}
}

// RemoveRoots drops all entries belonging to the given executables
func RemoveRoots(snap *Snapshot, roots ...string) int {
	drop := make(map[string]bool, len(roots))
	for _, r := range roots {
		drop[r] = true
	}
	kept := snap.Entries[:0:0]
	removed := 0
	for _, e := range snap.Entries {
		if drop[e.Root] {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	snap.Entries = kept
	for _, r := range roots {
		delete(snap.Failures, r)
	}
	return removed
}
