package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/outervoid/god/logger"
	"github.com/outervoid/god/types"
)

var (
	// ErrEmptyQuery is returned when a query has no searchable terms
	ErrEmptyQuery = errors.New("empty query")
	// ErrInvalidQuery is returned for a malformed regex query
	ErrInvalidQuery = errors.New("invalid query")
)

// RegexPrefix switches a query to a raw-line regex scan
const RegexPrefix = "re:"

// maxSubHits bounds the flag, subcommand and line hits taken per command
const maxSubHits = 3

// Index is a searchable collection of help entries
type Index interface {
	// Add inserts entries, replacing any with the same command path
	Add(ctx context.Context, entries []types.HelpEntry) error

	// Delete removes entries by command path
	Delete(ctx context.Context, commands []string) error

	// DeleteRoot removes every entry of one executable and returns how many were removed
	DeleteRoot(ctx context.Context, root string) (int, error)

	// Get returns the entry for an exact command path
	Get(command string) (types.HelpEntry, bool)

	// List returns all command paths in order
	List() []string

	// Search performs a BM25 ranked search
	Search(ctx context.Context, query string, options SearchOptions) ([]types.SearchHit, error)

	// Stats returns index statistics
	Stats() IndexStats

	// Entries returns all entries ordered by command path
	Entries() []types.HelpEntry
}

// SearchOptions configures search behavior
type SearchOptions struct {
	MaxResults int
	Command    string   // restrict to this command and its subcommands
	Kinds      []string // restrict hit kinds
}

// Params tunes ranking
type Params struct {
	K1        float64
	B         float64
	NameBoost float64
	FlagBoost float64
}

// DefaultParams matches the configuration defaults
func DefaultParams() Params {
	return Params{K1: 1.2, B: 0.75, NameBoost: 3.0, FlagBoost: 1.5}
}

// IndexStats provides information about the index
type IndexStats struct {
	Commands      int
	Roots         int
	UniqueTerms   int
	AvgDocLength  float64
	LastIndexTime time.Time
}

// BM25Index keeps every entry in memory and scores with BM25
type BM25Index struct {
	mu          sync.RWMutex
	docs        map[string]*document
	params      Params
	log         *slog.Logger
	lastIndex   time.Time
	corpusStats corpusStats
}

type document struct {
	entry     types.HelpEntry
	lines     []string
	termFreqs map[string]int
	length    int
	segments  []string // lower-cased command path words
}

// corpusStats maintains corpus-wide statistics for BM25
type corpusStats struct {
	totalDocs    int
	avgDocLength float64
	docFreqs     map[string]int // term -> number of docs containing term
}

// NewBM25Index creates an empty index
func NewBM25Index(params Params, log *slog.Logger) *BM25Index {
	return &BM25Index{
		docs:        make(map[string]*document),
		params:      params,
		log:         logger.OrDefault(log),
		corpusStats: corpusStats{docFreqs: make(map[string]int)},
	}
}

// Add implements Index
func (x *BM25Index) Add(ctx context.Context, entries []types.HelpEntry) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, e := range entries {
		if e.Command == "" {
			return fmt.Errorf("entry without command path (root %q)", e.Root)
		}
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			x.updateCorpusStats()
			return err
		}
		x.docs[e.Command] = newDocument(e)
	}

	x.updateCorpusStats()
	x.lastIndex = time.Now()
	x.log.Debug("indexed entries", "added", len(entries), "total", len(x.docs))
	return nil
}

// Delete implements Index
func (x *BM25Index) Delete(ctx context.Context, commands []string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, c := range commands {
		delete(x.docs, c)
	}
	x.updateCorpusStats()
	return nil
}

// DeleteRoot implements Index
func (x *BM25Index) DeleteRoot(ctx context.Context, root string) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	removed := 0
	for c, d := range x.docs {
		if d.entry.Root == root {
			delete(x.docs, c)
			removed++
		}
	}
	if removed > 0 {
		x.updateCorpusStats()
	}
	return removed, nil
}

// Get implements Index
func (x *BM25Index) Get(command string) (types.HelpEntry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	d, ok := x.docs[command]
	if !ok {
		return types.HelpEntry{}, false
	}
	return d.entry, true
}

// List implements Index
func (x *BM25Index) List() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]string, 0, len(x.docs))
	for c := range x.docs {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Entries implements Index
func (x *BM25Index) Entries() []types.HelpEntry {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]types.HelpEntry, 0, len(x.docs))
	for _, d := range x.docs {
		out = append(out, d.entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}

// Stats implements Index
func (x *BM25Index) Stats() IndexStats {
	x.mu.RLock()
	defer x.mu.RUnlock()

	roots := make(map[string]bool)
	for _, d := range x.docs {
		roots[d.entry.Root] = true
	}
	return IndexStats{
		Commands:      len(x.docs),
		Roots:         len(roots),
		UniqueTerms:   len(x.corpusStats.docFreqs),
		AvgDocLength:  x.corpusStats.avgDocLength,
		LastIndexTime: x.lastIndex,
	}
}

// Search implements Index
func (x *BM25Index) Search(ctx context.Context, query string, options SearchOptions) ([]types.SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if strings.HasPrefix(query, RegexPrefix) {
		return x.searchRegex(ctx, strings.TrimPrefix(query, RegexPrefix), options)
	}

	terms := deduplicateTerms(tokenize(query))
	if len(terms) == 0 {
		return nil, ErrEmptyQuery
	}

	results := []types.SearchHit{}
	for _, d := range x.docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !matchesCommand(d.entry.Command, options.Command) {
			continue
		}

		score := x.calculateBM25(terms, d) + x.nameBoost(terms, d)
		if score <= 0 {
			continue
		}

		for _, hit := range x.expand(d, terms, score) {
			if matchesKinds(hit.Kind, options.Kinds) {
				results = append(results, hit)
			}
		}
	}

	sortHits(results)
	if options.MaxResults > 0 && len(results) > options.MaxResults {
		results = results[:options.MaxResults]
	}
	return results, nil
}

func newDocument(e types.HelpEntry) *document {
	d := &document{
		entry:     e,
		lines:     strings.Split(e.Raw, "\n"),
		termFreqs: make(map[string]int),
		segments:  strings.Fields(strings.ToLower(e.Command)),
	}

	var parts []string
	parts = append(parts, e.Command, e.Summary, e.Description, e.Usage)
	for _, f := range e.Flags {
		parts = append(parts, f.Short, f.Long, f.Arg, f.Description)
	}
	for _, s := range e.Subcommands {
		parts = append(parts, s.Name, s.Description)
		parts = append(parts, s.Aliases...)
	}
	parts = append(parts, e.Raw)

	for _, tok := range tokenize(strings.Join(parts, "\n")) {
		d.termFreqs[tok]++
		d.length++
	}
	return d
}

var splitRe = regexp.MustCompile(`[^\w-]+`)

// tokenize lower-cases text and splits it into words. Dashed words are kept
// whole and also split, so "--dry-run" yields dry-run, dry and run.
func tokenize(text string) []string {
	var result []string
	for _, tok := range splitRe.Split(strings.ToLower(text), -1) {
		tok = strings.Trim(tok, "-")
		if tok == "" {
			continue
		}
		result = append(result, tok)
		if strings.Contains(tok, "-") {
			for _, part := range strings.Split(tok, "-") {
				if part != "" {
					result = append(result, part)
				}
			}
		}
	}
	return result
}

// deduplicateTerms removes duplicate terms while preserving order
func deduplicateTerms(terms []string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, term := range terms {
		if !seen[term] {
			seen[term] = true
			result = append(result, term)
		}
	}
	return result
}

func (x *BM25Index) updateCorpusStats() {
	x.corpusStats.totalDocs = len(x.docs)
	x.corpusStats.docFreqs = make(map[string]int)
	x.corpusStats.avgDocLength = 0

	total := 0
	for _, d := range x.docs {
		total += d.length
		for term := range d.termFreqs {
			x.corpusStats.docFreqs[term]++
		}
	}
	if x.corpusStats.totalDocs > 0 {
		x.corpusStats.avgDocLength = float64(total) / float64(x.corpusStats.totalDocs)
	}
}

func (x *BM25Index) idf(term string) float64 {
	df := float64(x.corpusStats.docFreqs[term])
	if df == 0 {
		return 0
	}
	n := float64(x.corpusStats.totalDocs)
	return math.Log((n-df+0.5)/(df+0.5) + 1.0)
}

func (x *BM25Index) calculateBM25(terms []string, d *document) float64 {
	if x.corpusStats.totalDocs == 0 || x.corpusStats.avgDocLength == 0 {
		return 0
	}

	k1, b := x.params.K1, x.params.B
	docLength := float64(d.length)
	score := 0.0

	for _, term := range terms {
		tf := float64(d.termFreqs[term])
		if tf == 0 {
			continue
		}
		tfComponent := (tf * (k1 + 1)) / (tf + k1*(1-b+b*(docLength/x.corpusStats.avgDocLength)))
		score += x.idf(term) * tfComponent
	}
	return score
}

// nameBoost rewards query terms naming a segment of the command path.
// A prefix of at least two characters earns half the boost.
func (x *BM25Index) nameBoost(terms []string, d *document) float64 {
	boost := 0.0
	for _, term := range terms {
		best := 0.0
		for _, seg := range d.segments {
			switch {
			case seg == term:
				best = x.params.NameBoost
			case len(term) >= 2 && strings.HasPrefix(seg, term) && best == 0:
				best = x.params.NameBoost / 2
			}
		}
		boost += best
	}
	return boost
}

// expand turns a scored document into its command hit plus the best
// flag, subcommand and line matches
func (x *BM25Index) expand(d *document, terms []string, score float64) []types.SearchHit {
	e := d.entry
	text := e.Summary
	field := "summary"
	if text == "" {
		text, field = e.Usage, "usage"
	}
	if text == "" {
		text, field = e.Command, "command"
	}

	hits := []types.SearchHit{{
		Command: e.Command,
		Kind:    types.KindCommand,
		Field:   field,
		Text:    text,
		Score:   score,
	}}

	var flagHits []types.SearchHit
	for _, f := range e.Flags {
		c := coverage(terms, f.Short, f.Long, f.Arg, f.Description)
		if c == 0 {
			continue
		}
		flagHits = append(flagHits, types.SearchHit{
			Command: e.Command,
			Kind:    types.KindFlag,
			Field:   f.Name(),
			Text:    flagText(f),
			Score:   score * c * x.params.FlagBoost,
		})
	}

	var subHits []types.SearchHit
	for _, s := range e.Subcommands {
		fields := append([]string{s.Name, s.Description}, s.Aliases...)
		c := coverage(terms, fields...)
		if c == 0 {
			continue
		}
		subHits = append(subHits, types.SearchHit{
			Command: e.Command,
			Kind:    types.KindSubcommand,
			Field:   s.Name,
			Text:    strings.TrimSpace(s.Name + "  " + s.Description),
			Score:   score * c,
		})
	}

	hits = append(hits, best(flagHits)...)
	hits = append(hits, best(subHits)...)

	// raw lines only when nothing structured matched
	if len(flagHits) == 0 && len(subHits) == 0 {
		var lineHits []types.SearchHit
		for i, l := range d.lines {
			c := coverage(terms, l)
			if c == 0 {
				continue
			}
			lineHits = append(lineHits, types.SearchHit{
				Command:    e.Command,
				Kind:       types.KindLine,
				Text:       strings.TrimSpace(l),
				LineNumber: i + 1,
				Score:      score * c * 0.5,
			})
		}
		hits = append(hits, best(lineHits)...)
	}
	return hits
}

// coverage is the fraction of query terms found in the given fields
func coverage(terms []string, fields ...string) float64 {
	have := make(map[string]bool)
	for _, tok := range tokenize(strings.Join(fields, " ")) {
		have[tok] = true
	}
	matched := 0
	for _, t := range terms {
		if have[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}

func best(hits []types.SearchHit) []types.SearchHit {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > maxSubHits {
		hits = hits[:maxSubHits]
	}
	return hits
}

func flagText(f types.Flag) string {
	var names []string
	if f.Short != "" {
		names = append(names, f.Short)
	}
	if f.Long != "" {
		names = append(names, f.Long)
	}
	spec := strings.Join(names, ", ")
	if f.Arg != "" {
		spec += " " + f.Arg
	}
	if f.Description == "" {
		return spec
	}
	return spec + "  " + f.Description
}

var kindOrder = map[string]int{
	types.KindCommand:    0,
	types.KindFlag:       1,
	types.KindSubcommand: 2,
	types.KindLine:       3,
}

func sortHits(hits []types.SearchHit) {
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Command != b.Command {
			return a.Command < b.Command
		}
		if a.LineNumber != b.LineNumber {
			return a.LineNumber < b.LineNumber
		}
		if kindOrder[a.Kind] != kindOrder[b.Kind] {
			return kindOrder[a.Kind] < kindOrder[b.Kind]
		}
		return a.Text < b.Text
	})
}

// matchesCommand reports whether command is prefix itself or one of its subcommands
func matchesCommand(command, prefix string) bool {
	if prefix == "" {
		return true
	}
	return command == prefix || strings.HasPrefix(command, prefix+" ")
}

func matchesKinds(kind string, kinds []string) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if strings.EqualFold(kind, k) {
			return true
		}
	}
	return false
}

func (x *BM25Index) searchRegex(ctx context.Context, pattern string, options SearchOptions) ([]types.SearchHit, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, ErrEmptyQuery
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}

	results := []types.SearchHit{}
	if !matchesKinds(types.KindLine, options.Kinds) {
		return results, nil
	}

	for _, d := range x.docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !matchesCommand(d.entry.Command, options.Command) {
			continue
		}
		for i, l := range d.lines {
			if re.MatchString(l) {
				results = append(results, types.SearchHit{
					Command:    d.entry.Command,
					Kind:       types.KindLine,
					Text:       strings.TrimSpace(l),
					LineNumber: i + 1,
					Score:      1.0,
				})
			}
		}
	}

	sortHits(results)
	if options.MaxResults > 0 && len(results) > options.MaxResults {
		results = results[:options.MaxResults]
	}
	return results, nil
}
