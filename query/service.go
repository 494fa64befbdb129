package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/outervoid/god/config"
	"github.com/outervoid/god/indexer"
	"github.com/outervoid/god/logger"
	"github.com/outervoid/god/store"
	"github.com/outervoid/god/suggest"
	"github.com/outervoid/god/types"
)

// MaxTopK caps the number of hits returned by one search
const MaxTopK = 100

const maxSuggestions = 5

// ErrNotFound is returned when a command path is not in the index
var ErrNotFound = errors.New("command not found")

// NotFoundError carries "did you mean" candidates for an unknown command
type NotFoundError struct {
	Command     string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("%s: %q", ErrNotFound, e.Command)
	}
	return fmt.Sprintf("%s: %q (did you mean %s?)", ErrNotFound, e.Command, strings.Join(e.Suggestions, ", "))
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// QueryService answers searches and lookups over the help index
type QueryService struct {
	mu       sync.RWMutex
	index    indexer.Index
	store    *store.Store
	config   *config.Config
	log      *slog.Logger
	snapID   string
	loaded   bool
	updated  time.Time
	failures map[string]string
}

// NewQueryService creates a new query service instance
func NewQueryService(index indexer.Index, st *store.Store, cfg *config.Config, log *slog.Logger) *QueryService {
	return &QueryService{
		index:    index,
		store:    st,
		config:   cfg,
		log:      logger.OrDefault(log),
		failures: make(map[string]string),
	}
}

// Reload replaces the in-memory index with the persisted snapshot
func (qs *QueryService) Reload(ctx context.Context) error {
	snap, err := qs.store.Load()
	if err != nil {
		return err
	}
	return qs.Apply(ctx, snap)
}

// Apply replaces the in-memory index with snap
func (qs *QueryService) Apply(ctx context.Context, snap *store.Snapshot) error {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	if err := qs.index.Delete(ctx, qs.index.List()); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}
	if err := qs.index.Add(ctx, snap.Entries); err != nil {
		return fmt.Errorf("failed to load entries: %w", err)
	}

	qs.snapID = snap.ID
	// an empty snapshot from LoadOrEmpty has never been saved
	qs.loaded = snap.ID != ""
	qs.updated = snap.UpdatedAt
	qs.failures = make(map[string]string, len(snap.Failures))
	for k, v := range snap.Failures {
		qs.failures[k] = v
	}

	qs.log.Debug("index loaded", "snapshot", snap.ID, "entries", len(snap.Entries))
	return nil
}

// Search performs a ranked search over all indexed help
func (qs *QueryService) Search(ctx context.Context, request *types.SearchRequest) (*types.SearchResponse, error) {
	start := time.Now()

	if strings.TrimSpace(request.Query) == "" {
		return nil, indexer.ErrEmptyQuery
	}

	if request.TopK <= 0 {
		request.TopK = qs.config.Search.TopK
	}
	if request.TopK > MaxTopK {
		request.TopK = MaxTopK
	}
	command := strings.Join(strings.Fields(request.Command), " ")

	qs.mu.RLock()
	if !qs.loaded {
		qs.mu.RUnlock()
		return nil, store.ErrNoIndex
	}
	hits, err := qs.index.Search(ctx, request.Query, indexer.SearchOptions{
		Command: command,
		Kinds:   request.Kinds,
	})
	qs.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	response := &types.SearchResponse{
		Hits:      hits,
		TotalHits: len(hits),
	}
	if len(hits) > request.TopK {
		response.Hits = hits[:request.TopK]
	}

	if len(hits) == 0 {
		target := request.Query
		if command != "" {
			if _, ok := qs.index.Get(command); !ok {
				target = command
			}
		}
		response.Suggestions = qs.Suggest(target)
	}

	response.QueryTime = time.Since(start)
	qs.log.Debug("search complete", "query", request.Query, "hits", response.TotalHits,
		"returned", len(response.Hits), "took", response.QueryTime)
	return response, nil
}

// Show returns the entry for a command path such as "git commit"
func (qs *QueryService) Show(command string) (types.HelpEntry, error) {
	command = strings.Join(strings.Fields(command), " ")

	qs.mu.RLock()
	loaded := qs.loaded
	entry, ok := qs.index.Get(command)
	qs.mu.RUnlock()
	if !loaded {
		return types.HelpEntry{}, store.ErrNoIndex
	}
	if ok {
		return entry, nil
	}
	return types.HelpEntry{}, &NotFoundError{Command: command, Suggestions: qs.Suggest(command)}
}

// List returns entries whose command path starts with prefix
func (qs *QueryService) List(prefix string) ([]types.HelpEntry, error) {
	qs.mu.RLock()
	defer qs.mu.RUnlock()

	if !qs.loaded {
		return nil, store.ErrNoIndex
	}

	prefix = strings.TrimLeft(prefix, " ")
	var out []types.HelpEntry
	for _, e := range qs.index.Entries() {
		if strings.HasPrefix(e.Command, prefix) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Suggest returns command paths similar to partial
func (qs *QueryService) Suggest(partial string) []string {
	qs.mu.RLock()
	commands := qs.index.List()
	qs.mu.RUnlock()

	return suggest.FindSimilar(partial, commands, maxSuggestions)
}

// Status summarizes the loaded index
func (qs *QueryService) Status() *types.IndexStatus {
	qs.mu.RLock()
	defer qs.mu.RUnlock()

	stats := qs.index.Stats()
	failures := make(map[string]string, len(qs.failures))
	for k, v := range qs.failures {
		failures[k] = v
	}
	return &types.IndexStatus{
		Commands:    stats.Commands,
		Roots:       stats.Roots,
		Failures:    failures,
		LastUpdated: qs.updated,
		IndexPath:   qs.store.Path(),
		SnapshotID:  qs.snapID,
	}
}

// Roots returns the distinct executables in the index, sorted
func (qs *QueryService) Roots() []string {
	qs.mu.RLock()
	defer qs.mu.RUnlock()

	seen := make(map[string]bool)
	for _, e := range qs.index.Entries() {
		seen[e.Root] = true
	}
	roots := make([]string, 0, len(seen))
	for r := range seen {
		roots = append(roots, r)
	}
	sort.Strings(roots)
	return roots
}
