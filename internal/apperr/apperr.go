package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind categorizes an error for propagation and HTTP mapping.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindDuplicate      Kind = "duplicate"
	KindRateLimited    Kind = "rate_limited"
	KindInternal       Kind = "internal"
)

// Stable machine-readable codes carried by Error.
const (
	CodeValidation        = "validation_failed"
	CodeWeakPassword      = "weak_password"
	CodeInvalidCreds      = "invalid_credentials"
	CodeAccountLocked     = "account_locked"
	CodeAccountInactive   = "account_inactive"
	CodeTokenExpired      = "token_expired"
	CodeTokenBadSignature = "token_bad_signature"
	CodeTokenWrongType    = "token_wrong_type"
	CodeTokenMalformed    = "token_malformed"
	CodeTokenRevoked      = "token_revoked"
	CodeTokenInvalid      = "token_invalid"
	CodeAlreadyVerified   = "already_verified"
	CodeResetExpired      = "reset_token_expired"
	CodeNotFound          = "not_found"
	CodeDuplicateEmail    = "duplicate_email"
	CodeDuplicatePhone    = "duplicate_phone"
	CodeDuplicateLicense  = "duplicate_license"
	CodeForbidden         = "forbidden"
	CodeRateLimited       = "rate_limited"
	CodeInternal          = "internal"
)

// Error is the application error carried from services to the HTTP layer.
type Error struct {
	Kind        Kind
	Code        string
	Message     string
	Fields      map[string]string
	RetryAfter  time.Duration
	LockedUntil *time.Time
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code, so sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// WithField attaches a per-field validation message.
func (e *Error) WithField(field, msg string) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
	return e
}

// New builds an error of the given kind and code.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap attaches a cause to a new error.
func Wrap(err error, kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// Internal wraps an unexpected failure.
func Internal(err error, message string) *Error {
	return Wrap(err, KindInternal, CodeInternal, message)
}

// Validation builds a validation error, optionally with field messages.
func Validation(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: message, Fields: fields}
}

// RateLimited builds an error carrying the retry hint.
func RateLimited(retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Code: CodeRateLimited, Message: "too many attempts, try again later", RetryAfter: retryAfter}
}

// Locked builds the lockout error.
func Locked(until time.Time) *Error {
	u := until.UTC()
	return &Error{Kind: KindAuthentication, Code: CodeAccountLocked, Message: "account temporarily locked", LockedUntil: &u}
}

// Sentinels for errors.Is comparisons. Never return these directly when
// extra context (fields, retry hints) is available.
var (
	ErrInvalidCredentials = New(KindAuthentication, CodeInvalidCreds, "invalid email or password")
	ErrAccountInactive    = New(KindAuthentication, CodeAccountInactive, "account is not active")
	ErrTokenExpired       = New(KindAuthentication, CodeTokenExpired, "token expired")
	ErrTokenBadSignature  = New(KindAuthentication, CodeTokenBadSignature, "token signature invalid")
	ErrTokenWrongType     = New(KindAuthentication, CodeTokenWrongType, "token type not accepted here")
	ErrTokenMalformed     = New(KindAuthentication, CodeTokenMalformed, "token malformed")
	ErrTokenRevoked       = New(KindAuthentication, CodeTokenRevoked, "token revoked")
	ErrTokenInvalid       = New(KindValidation, CodeTokenInvalid, "invalid or already used token")
	ErrAlreadyVerified    = New(KindValidation, CodeAlreadyVerified, "already verified")
	ErrResetExpired       = New(KindValidation, CodeResetExpired, "reset token expired")
	ErrNotFound           = New(KindNotFound, CodeNotFound, "not found")
	ErrDuplicateEmail     = New(KindDuplicate, CodeDuplicateEmail, "email already registered")
	ErrDuplicatePhone     = New(KindDuplicate, CodeDuplicatePhone, "phone already registered")
	ErrDuplicateLicense   = New(KindDuplicate, CodeDuplicateLicense, "license number already registered")
	ErrForbidden          = New(KindAuthorization, CodeForbidden, "insufficient permissions")
	ErrRateLimited        = New(KindRateLimited, CodeRateLimited, "too many attempts, try again later")
	ErrWeakPassword       = New(KindValidation, CodeWeakPassword, "password does not meet policy")
)

// KindOf returns the kind of err, defaulting to internal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// HTTPStatus maps an error to its response status code.
func HTTPStatus(err error) int {
	e, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	if e.Code == CodeAccountLocked {
		return http.StatusLocked
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindDuplicate:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
