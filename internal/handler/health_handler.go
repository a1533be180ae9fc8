package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dhruv0206/opensource-issues-finder/internal/github"
	"github.com/dhruv0206/opensource-issues-finder/internal/repository"
)

// HealthHandler reports liveness of the datastore and the vector index, plus
// the remaining GitHub API quota.
type HealthHandler struct {
	db    *mongo.Client
	index *repository.IssueMongo
	gh    *github.Client
}

// NewHealthHandler returns a handler instance.
func NewHealthHandler(db *mongo.Client, index *repository.IssueMongo, gh *github.Client) *HealthHandler {
	return &HealthHandler{db: db, index: index, gh: gh}
}

// Register mounts GET /health at the app root.
func (h *HealthHandler) Register(r fiber.Router) {
	r.Get("/health", h.health)
}

func (h *HealthHandler) health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx, nil); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}

	stats, err := h.index.Stats(ctx)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}

	resp := fiber.Map{
		"status":      "healthy",
		"index_stats": stats,
	}

	// GitHub quota is advisory; a lookup failure does not flip health.
	if rl, err := h.gh.GetRateLimit(ctx); err == nil {
		resp["github_rate"] = fiber.Map{
			"core_remaining":   rl.Resources.Core.Remaining,
			"search_remaining": rl.Resources.Search.Remaining,
		}
	}

	return c.JSON(resp)
}
