package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/dhruv0206/opensource-issues-finder/internal/service"
)

// IngestHandler wires HTTP → IngestService.
type IngestHandler struct {
	svc *service.IngestService
}

// NewIngestHandler returns a handler instance.
func NewIngestHandler(svc *service.IngestService) *IngestHandler {
	return &IngestHandler{svc: svc}
}

// Register mounts the ingestion routes on the given router group.
func (h *IngestHandler) Register(r fiber.Router) {
	r.Post("/ingest/start", h.start)
	r.Get("/ingest/status/:id", h.status)
}

// start handles POST /ingest/start. The run continues in the background;
// poll /ingest/status/:id for progress.
func (h *IngestHandler) start(c *fiber.Ctx) error {
	var opts service.IngestOptions
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&opts); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	job, err := h.svc.Start(opts)
	if errors.Is(err, service.ErrIngestRunning) {
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.Status(fiber.StatusAccepted).JSON(job)
}

// status handles GET /ingest/status/:id.
func (h *IngestHandler) status(c *fiber.Ctx) error {
	job, ok := h.svc.Status(c.Params("id"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "unknown ingestion job")
	}
	return c.JSON(job)
}
