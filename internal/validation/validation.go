package validation

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/homenest/homenest/internal/apperr"
	"github.com/homenest/homenest/internal/identity"
)

var phonePattern = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)

// Errors accumulates per-field messages.
type Errors map[string]string

// Add records msg for field unless one is already present.
func (e Errors) Add(field, msg string) {
	if _, exists := e[field]; !exists {
		e[field] = msg
	}
}

// Merge copies other into e.
func (e Errors) Merge(other Errors) {
	for k, v := range other {
		e.Add(k, v)
	}
}

// Err returns an apperr validation error or nil when empty.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return apperr.Validation("validation failed", map[string]string(e))
}

// Name trims and checks the 2..255 character bound.
func Name(raw string) (string, string) {
	name := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(name)
	if n < 2 || n > 255 {
		return name, "name must be between 2 and 255 characters"
	}
	return name, ""
}

// Email trims, validates and normalizes an address (host lowercased).
// The local part is lowercased as well so uniqueness is case-insensitive.
func Email(raw string) (string, string) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", "email is required"
	}
	if len(trimmed) > 254 {
		return "", "email is too long"
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed || addr.Name != "" {
		return "", "email is invalid"
	}
	local, host, ok := strings.Cut(addr.Address, "@")
	if !ok || local == "" || host == "" || !strings.Contains(host, ".") {
		return "", "email is invalid"
	}
	return strings.ToLower(local) + "@" + strings.ToLower(host), ""
}

// Phone validates E.164 shape and returns the canonical "+digits" form.
func Phone(raw string) (string, string) {
	phone := strings.TrimSpace(raw)
	if !phonePattern.MatchString(phone) {
		return "", "phone must be in E.164 format"
	}
	if !strings.HasPrefix(phone, "+") {
		phone = "+" + phone
	}
	return phone, ""
}

// Role accepts the self-service roles only.
func Role(raw string) (identity.Role, string) {
	switch identity.Role(strings.ToLower(strings.TrimSpace(raw))) {
	case identity.RoleUser:
		return identity.RoleUser, ""
	case identity.RoleAgent:
		return identity.RoleAgent, ""
	default:
		return "", "role must be one of user, agent"
	}
}

// AgentProfile checks the agent-only fields.
func AgentProfile(p *identity.AgentProfile) Errors {
	errs := Errors{}
	if p == nil {
		errs.Add("license_number", "agent profile is required for role agent")
		return errs
	}
	p.LicenseNumber = strings.TrimSpace(p.LicenseNumber)
	p.AgencyName = strings.TrimSpace(p.AgencyName)
	p.Specialization = strings.TrimSpace(p.Specialization)
	p.Bio = strings.TrimSpace(p.Bio)

	if n := utf8.RuneCountInString(p.LicenseNumber); n < 5 || n > 100 {
		errs.Add("license_number", "license number must be between 5 and 100 characters")
	}
	if n := utf8.RuneCountInString(p.AgencyName); n < 2 || n > 255 {
		errs.Add("agency_name", "agency name must be between 2 and 255 characters")
	}
	if p.ExperienceYears < 0 || p.ExperienceYears > 50 {
		errs.Add("experience_years", "experience years must be between 0 and 50")
	}
	if p.CommissionRate != nil {
		if r := *p.CommissionRate; r < 0 || r > 99.99 {
			errs.Add("commission_rate", "commission rate must be between 0.00 and 99.99")
		}
	}
	if utf8.RuneCountInString(p.Specialization) > 1000 {
		errs.Add("specialization", "specialization must be at most 1000 characters")
	}
	if utf8.RuneCountInString(p.Bio) > 2000 {
		errs.Add("bio", "bio must be at most 2000 characters")
	}
	return errs
}
