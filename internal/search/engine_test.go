package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/dhruv0206/opensource-issues-finder/internal/models"
)

// ---- Test doubles ----------------------------------------------------------

type stubParser struct {
	parsed models.ParsedQuery
	echo   bool // fall back to the raw query, like the real parser's degraded path
}

func (s *stubParser) Parse(_ context.Context, query string) models.ParsedQuery {
	if s.echo {
		return models.ParsedQuery{SemanticQuery: query, SortBy: models.SortRelevance}
	}
	return s.parsed
}

type stubEmbedder struct {
	err      error
	lastText string
}

func (s *stubEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	s.lastText = text
	if s.err != nil {
		return nil, s.err
	}
	return make([]float32, 768), nil
}

type stubIndex struct {
	matches []Match
	err     error

	lastTopK   int
	lastFilter Predicate
}

func (s *stubIndex) Query(_ context.Context, _ []float32, topK int, filter Predicate) ([]Match, error) {
	s.lastTopK = topK
	s.lastFilter = filter
	if s.err != nil {
		return nil, s.err
	}
	return s.matches, nil
}

func testEngine(parser QueryParser, index *stubIndex) (*Engine, *stubEmbedder) {
	emb := &stubEmbedder{}
	e := NewEngine(parser, emb, index)
	e.now = func() time.Time { return time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC) }
	return e, emb
}

func match(id string, score float64, stars int, created, updated string, labels, topics []string) Match {
	return Match{
		ID:    id,
		Score: score,
		Metadata: models.IssueMetadata{
			RepoFullName: "octo/" + id,
			IssueNumber:  1,
			Title:        id,
			CreatedAt:    created,
			UpdatedAt:    updated,
			RepoStars:    stars,
			Labels:       labels,
			RepoTopics:   topics,
		},
	}
}

// ---- Ranked search ---------------------------------------------------------

func TestSearchEndToEnd(t *testing.T) {
	parser := &stubParser{parsed: models.ParsedQuery{
		SemanticQuery: "beginner friendly contributions",
		Language:      "Python",
		Labels:        []string{"good first issue"},
		Difficulty:    models.DifficultyBeginner,
		SortBy:        models.SortRelevance,
	}}

	index := &stubIndex{}
	for i := 0; i < 45; i++ {
		index.matches = append(index.matches, match(
			"repo", 0.9-float64(i)*0.01, 1000,
			"2026-01-10T00:00:00Z", "2026-01-14T00:00:00Z", nil, nil))
	}

	e, emb := testEngine(parser, index)

	page, parsed, err := e.Search(context.Background(), models.SearchQuery{
		Query: "beginner friendly issues in popular Python repos",
		Limit: 20,
		Page:  1,
	})
	require.NoError(t, err)

	assert.Equal(t, "beginner friendly contributions", emb.lastText,
		"the parser's semantic rewrite is what gets embedded, not the raw query")
	assert.Equal(t, searchWindow, index.lastTopK)
	assert.True(t, hasClause(clauses(t, index.lastFilter), "language", "$eq", "Python"))
	assert.True(t, hasClause(clauses(t, index.lastFilter), "is_good_first_issue", "$eq", true))

	assert.Equal(t, "Python", parsed.Language)
	assert.Equal(t, 45, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.Len(t, page.Results, 20)
	assert.True(t, page.HasNext)
	assert.False(t, page.HasPrev)

	// Relevance ordering is descending by combined score.
	for i := 1; i < len(page.Results); i++ {
		assert.GreaterOrEqual(t, page.Results[i-1].Score, page.Results[i].Score)
	}
}

func TestSearchDefaultsLimit(t *testing.T) {
	index := &stubIndex{}
	e, _ := testEngine(&stubParser{echo: true}, index)

	page, _, err := e.Search(context.Background(), models.SearchQuery{Query: "cli tools"})
	require.NoError(t, err)
	assert.Equal(t, defaultLimit, page.Limit)
}

func TestSearchEmbedderFailureAborts(t *testing.T) {
	index := &stubIndex{}
	e, emb := testEngine(&stubParser{echo: true}, index)
	emb.err = errors.New("quota exhausted")

	_, _, err := e.Search(context.Background(), models.SearchQuery{Query: "anything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed query")
	assert.Zero(t, index.lastTopK, "index must not be queried after an embed failure")
}

func TestSearchIndexFailureAborts(t *testing.T) {
	index := &stubIndex{err: errors.New("connection reset")}
	e, _ := testEngine(&stubParser{echo: true}, index)

	_, _, err := e.Search(context.Background(), models.SearchQuery{Query: "anything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector search")
}

func TestSearchOverridePrecedence(t *testing.T) {
	inferred := models.ParsedQuery{
		SemanticQuery:  "web frameworks",
		Language:       "Python",
		Labels:         []string{"good first issue"},
		SortBy:         models.SortRelevance,
		UnassignedOnly: true,
	}

	tests := []struct {
		name  string
		query models.SearchQuery
		check func(t *testing.T, parsed models.ParsedQuery)
	}{
		{
			name:  "explicit language replaces inferred",
			query: models.SearchQuery{Query: "q", Language: "Rust"},
			check: func(t *testing.T, p models.ParsedQuery) {
				assert.Equal(t, "Rust", p.Language)
			},
		},
		{
			name:  "language all clears any restriction",
			query: models.SearchQuery{Query: "q", Language: "All"},
			check: func(t *testing.T, p models.ParsedQuery) {
				assert.Empty(t, p.Language)
			},
		},
		{
			name:  "labels replace wholesale",
			query: models.SearchQuery{Query: "q", Labels: []string{"bug", "help wanted"}},
			check: func(t *testing.T, p models.ParsedQuery) {
				assert.Equal(t, []string{"bug", "help wanted"}, p.Labels)
			},
		},
		{
			name:  "sort override wins",
			query: models.SearchQuery{Query: "q", SortBy: models.SortStars},
			check: func(t *testing.T, p models.ParsedQuery) {
				assert.Equal(t, models.SortStars, p.SortBy)
			},
		},
		{
			name:  "days ago override wins",
			query: models.SearchQuery{Query: "q", DaysAgo: 14},
			check: func(t *testing.T, p models.ParsedQuery) {
				assert.Equal(t, 14.0, p.DaysAgo)
			},
		},
		{
			name:  "false unassigned override cannot clear inferred true",
			query: models.SearchQuery{Query: "q", UnassignedOnly: false},
			check: func(t *testing.T, p models.ParsedQuery) {
				assert.True(t, p.UnassignedOnly)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := applyOverrides(inferred, tt.query)
			tt.check(t, got)
		})
	}
}

func TestApplyOverridesFallbacks(t *testing.T) {
	// A parser that produced nothing usable still yields an embeddable query
	// and a defined sort mode.
	got := applyOverrides(models.ParsedQuery{}, models.SearchQuery{Query: "rust async runtimes"})
	assert.Equal(t, "rust async runtimes", got.SemanticQuery)
	assert.Equal(t, models.SortRelevance, got.SortBy)
}

func TestSearchSortModesDiverge(t *testing.T) {
	// Similarity order and star order deliberately disagree.
	matches := []Match{
		match("closest", 0.95, 10, "2026-01-01T00:00:00Z", "2026-01-14T00:00:00Z", nil, nil),
		match("starred", 0.40, 90000, "2025-12-01T00:00:00Z", "2026-01-13T00:00:00Z", nil, nil),
		match("middling", 0.70, 5000, "2026-01-05T00:00:00Z", "2026-01-10T00:00:00Z", nil, nil),
	}

	run := func(sortBy string) []string {
		index := &stubIndex{matches: matches}
		e, _ := testEngine(&stubParser{parsed: models.ParsedQuery{
			SemanticQuery: "q", SortBy: sortBy,
		}}, index)
		page, _, err := e.Search(context.Background(), models.SearchQuery{Query: "q", Limit: 10})
		require.NoError(t, err)
		var ids []string
		for _, r := range page.Results {
			ids = append(ids, r.Title)
		}
		return ids
	}

	assert.Equal(t, []string{"closest", "middling", "starred"}, run(models.SortRelevance))
	assert.Equal(t, []string{"starred", "middling", "closest"}, run(models.SortStars))
	assert.Equal(t, []string{"middling", "closest", "starred"}, run(models.SortNewest))
	assert.Equal(t, []string{"closest", "starred", "middling"}, run(models.SortRecentlyDiscussed))
	// The parser's alias orders the same way as recently_discussed.
	assert.Equal(t, run(models.SortRecentlyDiscussed), run(models.SortRecency))
}

func TestSearchTopicPostFilter(t *testing.T) {
	index := &stubIndex{matches: []Match{
		match("ml", 0.9, 100, "2026-01-01T00:00:00Z", "2026-01-14T00:00:00Z",
			nil, []string{"machine-learning", "python"}),
		match("web", 0.8, 100, "2026-01-01T00:00:00Z", "2026-01-14T00:00:00Z",
			nil, []string{"django", "web"}),
	}}
	e, _ := testEngine(&stubParser{parsed: models.ParsedQuery{
		SemanticQuery: "q",
		Topics:        []string{"Machine-Learning"},
		SortBy:        models.SortRelevance,
	}}, index)

	page, _, err := e.Search(context.Background(), models.SearchQuery{Query: "q", Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "ml", page.Results[0].Title)
}

func TestSearchFreeFormLabelPostFilter(t *testing.T) {
	index := &stubIndex{matches: []Match{
		match("doc", 0.9, 100, "2026-01-01T00:00:00Z", "2026-01-14T00:00:00Z",
			[]string{"Documentation", "good first issue"}, nil),
		match("bug", 0.8, 100, "2026-01-01T00:00:00Z", "2026-01-14T00:00:00Z",
			[]string{"bug"}, nil),
	}}
	e, _ := testEngine(&stubParser{parsed: models.ParsedQuery{
		SemanticQuery: "q",
		Labels:        []string{"documentation"}, // no boolean field in the index
		SortBy:        models.SortRelevance,
	}}, index)

	page, _, err := e.Search(context.Background(), models.SearchQuery{Query: "q", Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "doc", page.Results[0].Title)
}

// ---- Homepage feed ---------------------------------------------------------

func TestRecentIssuesTimeWindows(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		opts      RecentOptions
		wantField string
		wantGte   int64
	}{
		{
			name:      "newest looks at creations in the last 24 hours",
			opts:      RecentOptions{SortBy: models.SortNewest},
			wantField: "created_at_ts",
			wantGte:   now.Add(-24 * time.Hour).Unix(),
		},
		{
			name:      "default looks at updates in the last 30 days",
			opts:      RecentOptions{SortBy: models.SortRecentlyDiscussed},
			wantField: "updated_at_ts",
			wantGte:   now.AddDate(0, 0, -30).Unix(),
		},
		{
			name:      "explicit days window overrides both",
			opts:      RecentOptions{SortBy: models.SortNewest, DaysAgo: 7},
			wantField: "updated_at_ts",
			wantGte:   now.Add(-7 * 24 * time.Hour).Unix(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index := &stubIndex{}
			e, emb := testEngine(&stubParser{echo: true}, index)

			_, err := e.RecentIssues(context.Background(), tt.opts)
			require.NoError(t, err)

			assert.Equal(t, recentSeedQuery, emb.lastText)
			assert.Equal(t, recentWindow, index.lastTopK)
			assert.True(t, hasClause(clauses(t, index.lastFilter), tt.wantField, "$gte", tt.wantGte))
			assert.True(t, hasClause(clauses(t, index.lastFilter), "type", "$ne", "stats"))
		})
	}
}

func TestRecentIssuesLanguageClauses(t *testing.T) {
	single := &stubIndex{}
	e, _ := testEngine(&stubParser{echo: true}, single)
	_, err := e.RecentIssues(context.Background(), RecentOptions{Languages: []string{"Go"}})
	require.NoError(t, err)
	assert.True(t, hasClause(clauses(t, single.lastFilter), "language", "$eq", "Go"))

	multi := &stubIndex{}
	e, _ = testEngine(&stubParser{echo: true}, multi)
	_, err = e.RecentIssues(context.Background(), RecentOptions{Languages: []string{"Go", "Rust"}})
	require.NoError(t, err)

	var found bool
	for _, c := range clauses(t, multi.lastFilter) {
		inner, ok := c["language"].(bson.M)
		if !ok {
			continue
		}
		if in, ok := inner["$in"].([]string); ok {
			assert.Equal(t, []string{"Go", "Rust"}, in)
			found = true
		}
	}
	assert.True(t, found, "multiple languages must compile to an $in clause")
}

func TestRecentIssuesTruncatesToLimit(t *testing.T) {
	index := &stubIndex{}
	for i := 0; i < 50; i++ {
		index.matches = append(index.matches, match(
			"repo", 0.5, 100, "2026-01-14T00:00:00Z", "2026-01-14T06:00:00Z", nil, nil))
	}
	e, _ := testEngine(&stubParser{echo: true}, index)

	results, err := e.RecentIssues(context.Background(), RecentOptions{Limit: 12})
	require.NoError(t, err)
	assert.Len(t, results, 12)
}

func TestRecentIssuesLabelPostFilter(t *testing.T) {
	index := &stubIndex{matches: []Match{
		match("keep", 0.5, 100, "2026-01-14T00:00:00Z", "2026-01-14T06:00:00Z",
			[]string{"good first issue"}, nil),
		match("drop", 0.5, 100, "2026-01-14T00:00:00Z", "2026-01-14T06:00:00Z",
			[]string{"enhancement"}, nil),
	}}
	e, _ := testEngine(&stubParser{echo: true}, index)

	results, err := e.RecentIssues(context.Background(), RecentOptions{
		Labels: []string{"Good First Issue"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "keep", results[0].Title)
}
