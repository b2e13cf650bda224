package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/homenest/homenest/internal/auth"
	"github.com/homenest/homenest/internal/middleware"
	"github.com/homenest/homenest/internal/ratelimit"
)

// RegisterAuthRoutes wires authentication endpoints. Public routes are
// limited per client IP; bearer routes are limited per IP and principal.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, limiter *ratelimit.Limiter, bearer fiber.Handler) {
	authLimit := middleware.RateLimit(limiter, ratelimit.ClassAuth)
	verifyLimit := middleware.RateLimit(limiter, ratelimit.ClassVerify)

	group := r.Group("/auth")
	group.Post("/register", authLimit, h.Register)
	group.Post("/login", authLimit, h.Login)
	group.Post("/refresh", authLimit, h.Refresh)
	group.Post("/forgot-password", authLimit, h.ForgotPassword)
	group.Post("/reset-password", authLimit, h.ResetPassword)
	group.Post("/check-email", authLimit, h.CheckEmail)

	group.Post("/verify-email", verifyLimit, h.VerifyEmail)
	group.Post("/verify-phone", verifyLimit, h.VerifyPhone)
	group.Post("/resend-email-verification", verifyLimit, h.ResendEmailVerification)
	group.Post("/resend-phone-verification", verifyLimit, h.ResendPhoneVerification)

	group.Post("/logout", bearer, h.Logout)
	group.Get("/me", bearer, h.Me)
	group.Post("/change-password", bearer, middleware.RateLimit(limiter, ratelimit.ClassPasswordChange), h.ChangePassword)
	group.Put("/profile", bearer, middleware.RateLimit(limiter, ratelimit.ClassProfileUpdate), h.UpdateProfile)
}
