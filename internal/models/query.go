package models

// Sort modes accepted across search and the homepage feed.
const (
	SortRelevance         = "relevance"
	SortNewest            = "newest"
	SortRecentlyDiscussed = "recently_discussed"
	SortRecency           = "recency" // parser alias, orders by updated_at
	SortStars             = "stars"
)

// Difficulty levels the query parser may emit. Only "beginner" currently
// maps to index clauses.
const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

// SearchQuery is the payload for POST /api/v1/search. The optional fields
// are manual filters that override whatever the parser infers from the text.
type SearchQuery struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
	Page  int    `json:"page"` // 1-indexed

	Language       string   `json:"language,omitempty"`
	Labels         []string `json:"labels,omitempty"`
	SortBy         string   `json:"sort_by,omitempty"`
	DaysAgo        float64  `json:"days_ago,omitempty"`
	UnassignedOnly bool     `json:"unassigned_only,omitempty"`
}

// ParsedQuery is the canonical structured filter produced from natural
// language, after manual overrides are applied.
type ParsedQuery struct {
	SemanticQuery  string   `json:"semantic_query"` // text actually embedded
	Language       string   `json:"language,omitempty"`
	MinStars       int      `json:"min_stars,omitempty"`
	MaxStars       int      `json:"max_stars,omitempty"`
	Labels         []string `json:"labels,omitempty"`
	Difficulty     string   `json:"difficulty,omitempty"`
	SortBy         string   `json:"sort_by"`
	DaysAgo        float64  `json:"days_ago,omitempty"`
	UnassignedOnly bool     `json:"unassigned_only"`
	Topics         []string `json:"topics,omitempty"`
}

// SearchResult is an issue projection plus the combined score. Score is
// recomputed by the engine and overwrites the index's raw similarity.
type SearchResult struct {
	IssueMetadata
	Score float64 `json:"score"`
}

// PaginatedResponse is the ranked-search response envelope.
type PaginatedResponse struct {
	Results     []SearchResult `json:"results"`
	ParsedQuery ParsedQuery    `json:"parsed_query"`
	Total       int            `json:"total"`
	Page        int            `json:"page"`
	Limit       int            `json:"limit"`
	TotalPages  int            `json:"total_pages"`
	HasNext     bool           `json:"has_next"`
	HasPrev     bool           `json:"has_prev"`
}

// RecentResponse is the homepage feed envelope: a limit-bounded list with no
// page metadata.
type RecentResponse struct {
	Results []SearchResult `json:"results"`
	Total   int            `json:"total"`
}
