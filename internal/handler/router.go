package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dhruv0206/opensource-issues-finder/internal/search"
	"github.com/dhruv0206/opensource-issues-finder/internal/service"
)

// RegisterRoutes mounts every API handler on /api/v1.
func RegisterRoutes(app *fiber.App,
	engine *search.Engine,
	index IndexInfo,
	ingestSvc *service.IngestService,
	trackingSvc *service.TrackingService,
) {
	v1 := app.Group("/api/v1")
	NewSearchHandler(engine, index).Register(v1)
	NewIngestHandler(ingestSvc).Register(v1)
	NewIssuesHandler(trackingSvc).Register(v1)
}
