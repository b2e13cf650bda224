package validation

import (
	"strings"
	"unicode"
	"unicode/utf8"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/homenest/homenest/internal/apperr"
)

// PasswordSymbols is the punctuation set a password must draw from.
const PasswordSymbols = "@$!%*?&"

const (
	minPasswordLength = 8
	maxPasswordLength = 128
)

// PasswordPolicy enforces length and character classes, plus an optional
// zxcvbn strength floor that rejects common and guessable passwords.
type PasswordPolicy struct {
	MinScore int
}

// Validate checks password against the policy. userInputs (email, name,
// phone) are penalized by the strength estimator.
func (p PasswordPolicy) Validate(password string, userInputs ...string) error {
	var problems []string

	n := utf8.RuneCountInString(password)
	if n < minPasswordLength || n > maxPasswordLength {
		problems = append(problems, "must be between 8 and 128 characters")
	}

	var lower, upper, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(PasswordSymbols, r):
			symbol = true
		}
	}
	if !lower {
		problems = append(problems, "must contain a lowercase letter")
	}
	if !upper {
		problems = append(problems, "must contain an uppercase letter")
	}
	if !digit {
		problems = append(problems, "must contain a digit")
	}
	if !symbol {
		problems = append(problems, "must contain one of "+PasswordSymbols)
	}

	if len(problems) == 0 && p.MinScore > 0 {
		min := p.MinScore
		if min > 4 {
			min = 4
		}
		if zxcvbn.PasswordStrength(password, userInputs).Score < min {
			problems = append(problems, "is too common or easy to guess")
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return &apperr.Error{
		Kind:    apperr.KindValidation,
		Code:    apperr.CodeWeakPassword,
		Message: "password does not meet policy",
		Fields:  map[string]string{"password": "password " + strings.Join(problems, "; ")},
	}
}
