package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/dhruv0206/opensource-issues-finder/internal/repository"
	"github.com/dhruv0206/opensource-issues-finder/internal/service"
)

// IssuesHandler wires HTTP → TrackingService.
type IssuesHandler struct {
	svc *service.TrackingService
}

// NewIssuesHandler returns a handler instance.
func NewIssuesHandler(svc *service.TrackingService) *IssuesHandler {
	return &IssuesHandler{svc: svc}
}

// Register mounts the issue-tracking routes on the given router group.
func (h *IssuesHandler) Register(r fiber.Router) {
	r.Post("/issues/track", h.track)
	r.Get("/issues/user/:userID", h.listForUser)
	r.Get("/issues/user/:userID/contributions", h.contributions)
	r.Post("/issues/:id/submit-pr", h.submitPR)
	r.Delete("/issues/:id", h.abandon)
	r.Post("/issues/verify", h.verify)
}

type trackRequest struct {
	UserID     string `json:"user_id"`
	IssueURL   string `json:"issue_url"`
	IssueTitle string `json:"issue_title,omitempty"`
}

func (h *IssuesHandler) track(c *fiber.Ctx) error {
	var req trackRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.UserID == "" || req.IssueURL == "" {
		return fiber.NewError(fiber.StatusBadRequest, "user_id and issue_url are required")
	}

	issue, err := h.svc.StartTracking(c.UserContext(), req.UserID, req.IssueURL, req.IssueTitle)
	switch {
	case errors.Is(err, service.ErrInvalidIssueURL):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrAlreadyTracked):
		return fiber.NewError(fiber.StatusConflict, "you are already tracking this issue")
	case err != nil:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.Status(fiber.StatusCreated).JSON(issue)
}

func (h *IssuesHandler) listForUser(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 10)

	issues, total, err := h.svc.ListUserIssues(c.UserContext(), c.Params("userID"), page, limit)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	totalPages := 1
	if total > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return c.JSON(fiber.Map{
		"issues":      issues,
		"count":       len(issues),
		"total":       total,
		"page":        page,
		"total_pages": totalPages,
	})
}

func (h *IssuesHandler) contributions(c *fiber.Ctx) error {
	contribs, err := h.svc.Contributions(c.UserContext(), c.Params("userID"))
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{
		"contributions": contribs,
		"total":         len(contribs),
	})
}

type submitPRRequest struct {
	PRURL string `json:"pr_url"`
}

func (h *IssuesHandler) submitPR(c *fiber.Ctx) error {
	var req submitPRRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	issue, err := h.svc.SubmitPR(c.UserContext(), c.Params("id"), req.PRURL)
	switch {
	case errors.Is(err, service.ErrInvalidPRURL):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "tracked issue not found")
	case err != nil:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(issue)
}

func (h *IssuesHandler) abandon(c *fiber.Ctx) error {
	err := h.svc.Abandon(c.UserContext(), c.Params("id"))
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "tracked issue not found")
	case err != nil:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"success": true})
}

// verify triggers a verification sweep over all pending PRs. Deployments
// call this from a scheduler every few hours.
func (h *IssuesHandler) verify(c *fiber.Ctx) error {
	report, err := h.svc.VerifyPending(c.UserContext())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(report)
}
