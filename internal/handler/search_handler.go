package handler

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dhruv0206/opensource-issues-finder/internal/models"
	"github.com/dhruv0206/opensource-issues-finder/internal/search"
)

// IndexInfo exposes the provenance queries the search routes report on.
type IndexInfo interface {
	LastIngested(ctx context.Context) (time.Time, bool, error)
}

// SearchHandler wires HTTP → search.Engine.
type SearchHandler struct {
	engine *search.Engine
	index  IndexInfo
}

// NewSearchHandler returns a handler instance.
func NewSearchHandler(engine *search.Engine, index IndexInfo) *SearchHandler {
	return &SearchHandler{engine: engine, index: index}
}

// Register mounts the search routes on the given router group.
func (h *SearchHandler) Register(r fiber.Router) {
	r.Post("/search", h.search)
	r.Get("/search/recent", h.recent)
	r.Get("/search/last-updated", h.lastUpdated)
}

// search handles POST /search with a SearchQuery body.
func (h *SearchHandler) search(c *fiber.Ctx) error {
	var query models.SearchQuery
	if err := c.BodyParser(&query); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(query.Query) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "query is required")
	}

	page, parsed, err := h.engine.Search(c.UserContext(), query)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(models.PaginatedResponse{
		Results:     page.Results,
		ParsedQuery: parsed,
		Total:       page.Total,
		Page:        page.Page,
		Limit:       page.Limit,
		TotalPages:  page.TotalPages,
		HasNext:     page.HasNext,
		HasPrev:     page.HasPrev,
	})
}

// recent handles GET /search/recent for the homepage feed.
//
// Query parameters: limit, sort_by, languages (comma-separated), labels
// (comma-separated), days_ago, unassigned_only.
func (h *SearchHandler) recent(c *fiber.Ctx) error {
	opts := search.RecentOptions{
		Limit:          c.QueryInt("limit", 20),
		SortBy:         c.Query("sort_by", models.SortNewest),
		Languages:      splitCSV(c.Query("languages")),
		Labels:         splitCSV(c.Query("labels")),
		DaysAgo:        c.QueryFloat("days_ago", 0),
		UnassignedOnly: c.QueryBool("unassigned_only", false),
	}

	results, err := h.engine.RecentIssues(c.UserContext(), opts)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(models.RecentResponse{
		Results: results,
		Total:   len(results),
	})
}

// lastUpdated handles GET /search/last-updated, reporting when the index
// was last written.
func (h *SearchHandler) lastUpdated(c *fiber.Ctx) error {
	ts, ok, err := h.index.LastIngested(c.UserContext())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	if !ok {
		return c.JSON(fiber.Map{"last_updated": nil, "timestamp": nil})
	}
	return c.JSON(fiber.Map{
		"last_updated": ts.Format(time.RFC3339),
		"timestamp":    ts.Unix(),
	})
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
