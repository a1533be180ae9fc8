package search

import "github.com/dhruv0206/opensource-issues-finder/internal/models"

// Page is one slice of a fully ordered result set plus its bookkeeping.
type Page struct {
	Results    []models.SearchResult
	Total      int
	Page       int // clamped value, not the raw request
	Limit      int
	TotalPages int
	HasNext    bool
	HasPrev    bool
}

// Paginate slices ordered results into the requested 1-indexed page.
// Out-of-range pages are clamped, never rejected; an empty set produces a
// single empty page 1.
func Paginate(ordered []models.SearchResult, page, limit int) Page {
	if limit < 1 {
		limit = 1
	}

	total := len(ordered)
	totalPages := 1
	if total > 0 {
		totalPages = (total + limit - 1) / limit
	}

	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	start := (page - 1) * limit
	end := start + limit
	if end > total {
		end = total
	}

	return Page{
		Results:    ordered[start:end],
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}
