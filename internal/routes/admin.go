package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/homenest/homenest/internal/admin"
	"github.com/homenest/homenest/internal/auth"
	"github.com/homenest/homenest/internal/httpx"
	"github.com/homenest/homenest/internal/identity"
	"github.com/homenest/homenest/internal/middleware"
)

// RegisterAdminRoutes wires the approval handoff and account controls.
func RegisterAdminRoutes(r fiber.Router, h *admin.Handler, bearer fiber.Handler) {
	group := r.Group("/admin", bearer, middleware.RequireRole(identity.RoleAdmin))
	group.Get("/approvals", h.ListApprovals)
	group.Post("/approvals/:id/decision", h.Decide)
	group.Post("/users/:id/force-logout", h.ForceLogout)
	group.Post("/users/:id/suspend", h.Suspend)
	group.Delete("/users/:id", h.Delete)
}

// RegisterAgentRoutes wires endpoints reserved for approved, active agents.
func RegisterAgentRoutes(r fiber.Router, bearer fiber.Handler) {
	group := r.Group("/agents", bearer, middleware.RequireRole(identity.RoleAgent))
	group.Get("/me", func(c *fiber.Ctx) error {
		ident, err := httpx.MustPrincipal(c)
		if err != nil {
			return err
		}
		return httpx.OK(c, fiber.StatusOK, "", fiber.Map{"agent": auth.NewUserView(ident)})
	})
}
