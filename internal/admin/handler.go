package admin

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/homenest/homenest/internal/apperr"
	"github.com/homenest/homenest/internal/auth"
	"github.com/homenest/homenest/internal/httpx"
)

// Handler exposes the /admin endpoints. Routes must sit behind bearer
// authentication and an admin role check.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// ListApprovals handles GET /admin/approvals?status=pending.
func (h *Handler) ListApprovals(c *fiber.Ctx) error {
	approvals, err := h.svc.ListApprovals(c.UserContext(), c.Query("status", "pending"))
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, "", fiber.Map{"approvals": approvals})
}

type decisionRequest struct {
	Decision string `json:"decision"`
}

// Decide handles POST /admin/approvals/:id/decision.
func (h *Handler) Decide(c *fiber.Ctx) error {
	actor, err := httpx.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req decisionRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadBody(err)
	}
	approval, ident, err := h.svc.Decide(c.UserContext(), actor, id, req.Decision)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, "Decision recorded", fiber.Map{
		"approval": approval,
		"user":     auth.NewUserView(ident),
	})
}

// ForceLogout handles POST /admin/users/:id/force-logout.
func (h *Handler) ForceLogout(c *fiber.Ctx) error {
	actor, err := httpx.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	version, err := h.svc.ForceLogout(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, "All sessions revoked", fiber.Map{"token_version": version})
}

// Suspend handles POST /admin/users/:id/suspend.
func (h *Handler) Suspend(c *fiber.Ctx) error {
	actor, err := httpx.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ident, err := h.svc.Suspend(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, "User suspended", fiber.Map{"user": auth.NewUserView(ident)})
}

// Delete handles DELETE /admin/users/:id.
func (h *Handler) Delete(c *fiber.Ctx) error {
	actor, err := httpx.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.UserContext(), actor, id); err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, "User deleted", nil)
}

func pathID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid id", map[string]string{"id": "must be a positive integer"})
	}
	return id, nil
}
