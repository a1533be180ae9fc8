package search

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/dhruv0206/opensource-issues-finder/internal/models"
)

// ---- Collaborator contracts ------------------------------------------------

// QueryParser turns free text into a structured filter. It never fails: any
// parse problem degrades to a filter-free query whose semantic text is the
// raw input.
type QueryParser interface {
	Parse(ctx context.Context, query string) models.ParsedQuery
}

// Embedder produces query-mode embeddings in the same space as the stored
// document vectors.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Match is one raw candidate from the vector index: its native similarity
// score plus full metadata. Match order is not trusted downstream.
type Match struct {
	ID       string
	Score    float64
	Metadata models.IssueMetadata
}

// Index is the vector store the engine reads candidates from.
type Index interface {
	Query(ctx context.Context, vector []float32, topK int, filter Predicate) ([]Match, error)
}

// ---- Engine ----------------------------------------------------------------

// Candidate windows are over-fetched well beyond the page size so that topic
// and label post-filtering still leaves enough rows to re-rank and slice.
const (
	searchWindow = 100
	recentWindow = 200
)

const defaultLimit = 20

// recentSeedQuery seeds the homepage feed's similarity search; there is no
// user text to embed for it.
const recentSeedQuery = "beginner friendly open source contributions help wanted"

// Engine runs the search pipeline: parse, normalize overrides, compile the
// index predicate, retrieve an over-fetched candidate window, re-score,
// sort, paginate. It only ever reads the index.
type Engine struct {
	parser   QueryParser
	embedder Embedder
	index    Index

	now func() time.Time // swappable for tests
}

// NewEngine wires the collaborators.
func NewEngine(parser QueryParser, embedder Embedder, index Index) *Engine {
	return &Engine{
		parser:   parser,
		embedder: embedder,
		index:    index,
		now:      time.Now,
	}
}

// Search executes a ranked search and returns the requested page plus the
// resolved filter for transparency. Failures of the embedder or the index
// abort the whole request; there are no partial results.
func (e *Engine) Search(ctx context.Context, q models.SearchQuery) (Page, models.ParsedQuery, error) {
	if q.Limit < 1 {
		q.Limit = defaultLimit
	}

	parsed := e.parser.Parse(ctx, q.Query)
	parsed = applyOverrides(parsed, q)
	log.Printf("search: query=%q language=%q sort=%s labels=%v", q.Query, parsed.Language, parsed.SortBy, parsed.Labels)

	vec, err := e.embedder.EmbedQuery(ctx, parsed.SemanticQuery)
	if err != nil {
		return Page{}, parsed, fmt.Errorf("embed query: %w", err)
	}

	now := e.now()
	matches, err := e.index.Query(ctx, vec, searchWindow, Compile(parsed, now))
	if err != nil {
		return Page{}, parsed, fmt.Errorf("vector search: %w", err)
	}

	results := scoreAndFilter(matches, parsed.Topics, UncompiledLabels(parsed.Labels), now)
	sortResults(results, parsed.SortBy)

	return Paginate(results, q.Page, q.Limit), parsed, nil
}

// applyOverrides lets explicit request fields win over whatever the parser
// inferred from the text. Each rule applies independently.
func applyOverrides(parsed models.ParsedQuery, q models.SearchQuery) models.ParsedQuery {
	if q.Language != "" {
		// "all" is the no-restriction sentinel.
		if strings.EqualFold(q.Language, "all") {
			parsed.Language = ""
		} else {
			parsed.Language = q.Language
		}
	}
	if len(q.Labels) > 0 {
		parsed.Labels = q.Labels // full replacement, not a merge
	}
	if q.SortBy != "" {
		parsed.SortBy = q.SortBy
	}
	if q.DaysAgo > 0 {
		parsed.DaysAgo = q.DaysAgo
	}
	if q.UnassignedOnly {
		// One-directional: a false override never clears an inferred true.
		parsed.UnassignedOnly = true
	}

	if parsed.SemanticQuery == "" {
		parsed.SemanticQuery = q.Query
	}
	if parsed.SortBy == "" {
		parsed.SortBy = models.SortRelevance
	}
	return parsed
}

// RecentOptions configures the homepage feed.
type RecentOptions struct {
	Limit          int
	SortBy         string
	Languages      []string
	Labels         []string
	DaysAgo        float64
	UnassignedOnly bool
}

// RecentIssues returns the homepage feed. A generic phrase seeds the
// similarity search, and the time window depends on the sort mode: issues
// created in the last 24 hours for "newest", otherwise issues updated in the
// last 30 days. An explicit DaysAgo overrides both defaults.
func (e *Engine) RecentIssues(ctx context.Context, opts RecentOptions) ([]models.SearchResult, error) {
	if opts.Limit < 1 {
		opts.Limit = defaultLimit
	}

	vec, err := e.embedder.EmbedQuery(ctx, recentSeedQuery)
	if err != nil {
		return nil, fmt.Errorf("embed seed query: %w", err)
	}

	now := e.now()
	conds := []Predicate{Ne("type", "stats")}
	switch {
	case opts.DaysAgo > 0:
		conds = append(conds, Gte("updated_at_ts", daysAgoCutoff(now, opts.DaysAgo)))
	case opts.SortBy == models.SortNewest:
		conds = append(conds, Gte("created_at_ts", now.Add(-24*time.Hour).Unix()))
	default:
		conds = append(conds, Gte("updated_at_ts", now.AddDate(0, 0, -30).Unix()))
	}

	switch len(opts.Languages) {
	case 0:
	case 1:
		conds = append(conds, Eq("language", opts.Languages[0]))
	default:
		conds = append(conds, In("language", opts.Languages))
	}

	if opts.UnassignedOnly {
		conds = append(conds, Eq("is_assigned", false))
	}

	matches, err := e.index.Query(ctx, vec, recentWindow, And(conds...))
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	results := scoreAndFilter(matches, nil, opts.Labels, now)
	sortResults(results, opts.SortBy)

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// scoreAndFilter applies the in-process post-filters (topics, free-form
// labels) and attaches the combined score to each surviving candidate.
func scoreAndFilter(matches []Match, topics, labels []string, now time.Time) []models.SearchResult {
	results := make([]models.SearchResult, 0, len(matches))
	for _, m := range matches {
		if len(topics) > 0 && !anyFold(topics, m.Metadata.RepoTopics) {
			continue
		}
		if len(labels) > 0 && !anyFold(labels, m.Metadata.Labels) {
			continue
		}
		results = append(results, models.SearchResult{
			IssueMetadata: m.Metadata,
			Score:         CombinedScore(m.Score, m.Metadata.RepoStars, m.Metadata.UpdatedAt, now),
		})
	}
	return results
}

// anyFold reports whether any element of want case-insensitively equals an
// element of have.
func anyFold(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(w, h) {
				return true
			}
		}
	}
	return false
}

// sortResults orders results for the requested mode, all descending. The
// stable sort keeps equal keys in retrieval order so pages stay consistent
// within a single candidate window.
func sortResults(results []models.SearchResult, sortBy string) {
	switch sortBy {
	case models.SortNewest:
		// ISO-8601 strings compare correctly lexicographically.
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].CreatedAt > results[j].CreatedAt
		})
	case models.SortRecentlyDiscussed, models.SortRecency:
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].UpdatedAt > results[j].UpdatedAt
		})
	case models.SortStars:
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].RepoStars > results[j].RepoStars
		})
	default:
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Score > results[j].Score
		})
	}
}
