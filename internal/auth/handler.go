package auth

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/homenest/homenest/internal/httpx"
	"github.com/homenest/homenest/internal/identity"
	"github.com/homenest/homenest/internal/notification"
	"github.com/homenest/homenest/internal/security"
)

// resetRequestedMessage is identical for registered and unknown addresses.
const resetRequestedMessage = "If the address is registered, a reset link has been sent"

// Handler exposes the /auth endpoints.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// UserView is the public projection of an identity.
type UserView struct {
	ID            int64                  `json:"id"`
	Name          string                 `json:"name"`
	Email         string                 `json:"email"`
	Phone         string                 `json:"phone"`
	Role          identity.Role          `json:"role"`
	Status        identity.Status        `json:"status"`
	EmailVerified bool                   `json:"email_verified"`
	PhoneVerified bool                   `json:"phone_verified"`
	Agent         *identity.AgentProfile `json:"agent_profile,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	LastLoginAt   *time.Time             `json:"last_login_at,omitempty"`
}

// NewUserView projects ident for responses.
func NewUserView(ident identity.Identity) UserView {
	return UserView{
		ID:            ident.ID,
		Name:          ident.Name,
		Email:         ident.Email,
		Phone:         ident.Phone,
		Role:          ident.Role,
		Status:        ident.Status,
		EmailVerified: ident.EmailVerified(),
		PhoneVerified: ident.PhoneVerified(),
		Agent:         ident.Agent,
		CreatedAt:     ident.CreatedAt,
		LastLoginAt:   ident.LastLoginAt,
	}
}

type registerRequest struct {
	Name            string   `json:"name"`
	Email           string   `json:"email"`
	Phone           string   `json:"phone"`
	Password        string   `json:"password"`
	Role            string   `json:"role"`
	LicenseNumber   string   `json:"license_number"`
	AgencyName      string   `json:"agency_name"`
	ExperienceYears int      `json:"experience_years"`
	CommissionRate  *float64 `json:"commission_rate"`
	Specialization  string   `json:"specialization"`
	Bio             string   `json:"bio"`

	AgentProfile *identity.AgentProfile `json:"agent_profile"`
}

type registerResponse struct {
	User          UserView          `json:"user"`
	Notifications notificationsView `json:"notifications"`
	NextSteps     []string          `json:"nextSteps"`
}

type notificationsView struct {
	Email notification.Result `json:"email"`
	SMS   notification.Result `json:"sms"`
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadBody(err)
	}
	in := RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		Role:     req.Role,
	}
	switch {
	case req.AgentProfile != nil:
		in.Agent = req.AgentProfile
	case req.LicenseNumber != "" || req.AgencyName != "":
		in.Agent = &identity.AgentProfile{
			LicenseNumber:   req.LicenseNumber,
			AgencyName:      req.AgencyName,
			ExperienceYears: req.ExperienceYears,
			CommissionRate:  req.CommissionRate,
			Specialization:  req.Specialization,
			Bio:             req.Bio,
		}
	}
	res, err := h.svc.Register(c.UserContext(), in)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusCreated, "registration successful", registerResponse{
		User: NewUserView(res.Identity),
		Notifications: notificationsView{
			Email: res.Notifications[notification.ChannelEmail],
			SMS:   res.Notifications[notification.ChannelSMS],
		},
		NextSteps: res.NextSteps,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User       UserView           `json:"user"`
	Tokens     security.TokenPair `json:"tokens"`
	Advisories []string           `json:"advisories,omitempty"`
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadBody(err)
	}
	res, err := h.svc.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	httpx.NoStore(c)
	return httpx.OK(c, http.StatusOK, "login successful", loginResponse{
		User:       NewUserView(res.Identity),
		Tokens:     res.Tokens,
		Advisories: res.Advisories,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	Refresh      string `json:"refresh"`
}

type tokensResponse struct {
	Tokens security.TokenPair `json:"tokens"`
}

// Refresh handles POST /auth/refresh.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadBody(err)
	}
	raw := req.RefreshToken
	if raw == "" {
		raw = req.Refresh
	}
	pair, err := h.svc.Refresh(c.UserContext(), raw)
	if err != nil {
		return err
	}
	httpx.NoStore(c)
	return httpx.OK(c, http.StatusOK, "", tokensResponse{Tokens: pair})
}

// Logout handles POST /auth/logout.
func (h *Handler) Logout(c *fiber.Ctx) error {
	ident, err := httpx.MustPrincipal(c)
	if err != nil {
		return err
	}
	if err := h.svc.Logout(c.UserContext(), ident); err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, "logged out", nil)
}

type tokenRequest struct {
	Token string `json:"token"`
}

// VerifyEmail handles POST /auth/verify-email.
func (h *Handler) VerifyEmail(c *fiber.Ctx) error {
	var req tokenRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadBody(err)
	}
	ident, err := h.svc.VerifyEmail(c.UserContext(), req.Token)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, "email verified", fiber.Map{"user": NewUserView(ident)})
}

type phoneCodeRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

// VerifyPhone handles POST /auth/verify-phone.
func (h *Handler) VerifyPhone(c *fiber.Ctx) error {
	var req phoneCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadBody(err)
	}
	ident, err := h.svc.VerifyPhone(c.UserContext(), req.Phone, req.Code)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, "phone verified", fiber.Map{"user": NewUserView(ident)})
}

type emailRequest struct {
	Email string `json:"email"`
}

// ResendEmailVerification handles POST /auth/resend-email-verification.
func (h *Handler) ResendEmailVerification(c *fiber.Ctx) error {
	var req emailRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadBody(err)
	}
	res, err := h.svc.ResendEmailVerification(c.UserContext(), req.Email)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, "verification email sent", fiber.Map{"notification": res})
}

type phoneRequest struct {
	Phone string `json:"phone"`
}

// ResendPhoneVerification handles POST /auth/resend-phone-verification.
func (h *Handler) ResendPhoneVerification(c *fiber.Ctx) error {
	var req phoneRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadBody(err)
	}
	res, err := h.svc.ResendPhoneVerification(c.UserContext(), req.Phone)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, "verification code sent", fiber.Map{"notification": res})
}

// ForgotPassword handles POST /auth/forgot-password.
func (h *Handler) ForgotPassword(c *fiber.Ctx) error {
	var req emailRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadBody(err)
	}
	if err := h.svc.RequestReset(c.UserContext(), req.Email); err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, resetRequestedMessage, nil)
}

type resetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ResetPassword handles POST /auth/reset-password.
func (h *Handler) ResetPassword(c *fiber.Ctx) error {
	var req resetRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadBody(err)
	}
	if err := h.svc.ConfirmReset(c.UserContext(), req.Token, req.Password); err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, "password has been reset", nil)
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *fiber.Ctx) error {
	ident, err := httpx.MustPrincipal(c)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, "", fiber.Map{"user": NewUserView(ident)})
}

// CheckEmail handles POST /auth/check-email.
func (h *Handler) CheckEmail(c *fiber.Ctx) error {
	var req emailRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadBody(err)
	}
	available, err := h.svc.EmailAvailable(c.UserContext(), req.Email)
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, "", fiber.Map{"available": available})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword handles POST /auth/change-password.
func (h *Handler) ChangePassword(c *fiber.Ctx) error {
	ident, err := httpx.MustPrincipal(c)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadBody(err)
	}
	pair, err := h.svc.ChangePassword(c.UserContext(), ident, req.CurrentPassword, req.NewPassword)
	if err != nil {
		return err
	}
	httpx.NoStore(c)
	return httpx.OK(c, http.StatusOK, "password changed", tokensResponse{Tokens: pair})
}

type profileRequest struct {
	Name  *string                `json:"name"`
	Agent *identity.AgentProfile `json:"agent_profile"`
}

// UpdateProfile handles PUT /auth/profile.
func (h *Handler) UpdateProfile(c *fiber.Ctx) error {
	ident, err := httpx.MustPrincipal(c)
	if err != nil {
		return err
	}
	var req profileRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadBody(err)
	}
	updated, err := h.svc.UpdateProfile(c.UserContext(), ident, ProfileInput{Name: req.Name, Agent: req.Agent})
	if err != nil {
		return err
	}
	return httpx.OK(c, http.StatusOK, "profile updated", fiber.Map{"user": NewUserView(updated)})
}
