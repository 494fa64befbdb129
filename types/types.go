package types

import (
	"encoding/json"
	"math"
	"time"
)

// Hit kinds
const (
	KindCommand    = "command"
	KindFlag       = "flag"
	KindSubcommand = "subcommand"
	KindLine       = "line"
)

// Flag is a single option parsed from help text
type Flag struct {
	Short       string `json:"short,omitempty"`
	Long        string `json:"long,omitempty"`
	Arg         string `json:"arg,omitempty"`
	Description string `json:"description,omitempty"`
}

// Name returns the most descriptive spelling of the flag
func (f Flag) Name() string {
	if f.Long != "" {
		return f.Long
	}
	return f.Short
}

// Subcommand is a nested command listed in help text
type Subcommand struct {
	Name        string   `json:"name"`
	Aliases     []string `json:"aliases,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Section is a titled block of help text
type Section struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// HelpEntry is the indexed help of one command path, e.g. "git commit"
type HelpEntry struct {
	ID          string       `json:"id"`
	Command     string       `json:"command"`
	Root        string       `json:"root"`
	Path        string       `json:"path"`
	Strategy    string       `json:"strategy"`
	Usage       string       `json:"usage,omitempty"`
	Summary     string       `json:"summary,omitempty"`
	Description string       `json:"description,omitempty"`
	Sections    []Section    `json:"sections,omitempty"`
	Flags       []Flag       `json:"flags,omitempty"`
	Subcommands []Subcommand `json:"subcommands,omitempty"`
	Raw         string       `json:"raw"`
	Hash        string       `json:"hash"` // SHA-256 of Raw
	Depth       int          `json:"depth"`
	IndexedAt   time.Time    `json:"indexed_at"`
}

// SearchHit represents a single search result
type SearchHit struct {
	Command    string  `json:"command"`
	Kind       string  `json:"kind"`
	Field      string  `json:"field,omitempty"`
	Text       string  `json:"text"`
	LineNumber int     `json:"lno,omitempty"`
	Score      float64 `json:"score"`
}

// SearchRequest represents a search query
type SearchRequest struct {
	Query   string   `json:"query"`
	TopK    int      `json:"top_k,omitempty"`
	Command string   `json:"command,omitempty"`
	Kinds   []string `json:"kinds,omitempty"`
}

// SearchResponse contains search results
type SearchResponse struct {
	Hits        []SearchHit   `json:"hits"`
	TotalHits   int           `json:"total_hits"`
	QueryTime   time.Duration `json:"query_time_ms"`
	Suggestions []string      `json:"suggestions,omitempty"`
}

type searchResponseJSON struct {
	Hits        []SearchHit `json:"hits"`
	TotalHits   int         `json:"total_hits"`
	QueryTimeMs float64     `json:"query_time_ms"`
	Suggestions []string    `json:"suggestions,omitempty"`
}

// MarshalJSON writes QueryTime as fractional milliseconds
func (r SearchResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(searchResponseJSON{
		Hits:        r.Hits,
		TotalHits:   r.TotalHits,
		QueryTimeMs: float64(r.QueryTime) / float64(time.Millisecond),
		Suggestions: r.Suggestions,
	})
}

// UnmarshalJSON reads query_time_ms back into QueryTime
func (r *SearchResponse) UnmarshalJSON(data []byte) error {
	var v searchResponseJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = SearchResponse{
		Hits:        v.Hits,
		TotalHits:   v.TotalHits,
		QueryTime:   time.Duration(math.Round(v.QueryTimeMs * float64(time.Millisecond))),
		Suggestions: v.Suggestions,
	}
	return nil
}

// IndexStatus summarizes the persisted index
type IndexStatus struct {
	Commands    int               `json:"commands"`
	Roots       int               `json:"roots"`
	Failures    map[string]string `json:"failures,omitempty"`
	LastUpdated time.Time         `json:"last_updated"`
	IndexPath   string            `json:"index_path"`
	SnapshotID  string            `json:"snapshot_id,omitempty"`
}

// Error types
type ErrorCode string

const (
	ErrNotFound     ErrorCode = "NOT_FOUND"
	ErrInvalidQuery ErrorCode = "INVALID_QUERY"
	ErrIndexing     ErrorCode = "INDEXING_ERROR"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
)

// APIError represents an API error response
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}
