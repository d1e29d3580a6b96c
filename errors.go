package accounts

import (
	"net/http"
	"strings"

	"github.com/goliatone/go-errors"
)

// Stable text codes surfaced to clients so they can branch without parsing prose.
const (
	TextCodeInvalidCreds        = "INVALID_CREDENTIALS"
	TextCodeEmailTaken          = "EMAIL_ALREADY_REGISTERED"
	TextCodeEmailNotVerified    = "EMAIL_NOT_VERIFIED"
	TextCodeAlreadyVerified     = "EMAIL_ALREADY_VERIFIED"
	TextCodePremiumRequired     = "PREMIUM_REQUIRED"
	TextCodeForbidden           = "FORBIDDEN"
	TextCodeUnauthenticated     = "UNAUTHENTICATED"
	TextCodeTokenExpired        = "TOKEN_EXPIRED"
	TextCodeTokenMalformed      = "TOKEN_MALFORMED"
	TextCodeInvalidToken        = "INVALID_OR_EXPIRED_TOKEN"
	TextCodeInvalidRefresh      = "INVALID_REFRESH_TOKEN"
	TextCodeTooManyAttempts     = "TOO_MANY_ATTEMPTS"
	TextCodeAccountLocked       = "ACCOUNT_LOCKED"
	TextCodeUserNotFound        = "USER_NOT_FOUND"
	TextCodeWeakPassword        = "WEAK_PASSWORD"
	TextCodeDataParseError      = "DATA_PARSE_ERROR"
	TextCodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	TextCodeInconsistentAccount = "INCONSISTENT_ACCOUNT_STATE"
)

// ErrUnauthenticated is returned when a protected operation has no verified identity.
var ErrUnauthenticated = errors.New("authentication required", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is returned for bearer tokens past their expiry.
var ErrTokenExpired = errors.New("authentication token has expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned for bearer tokens that fail to parse or verify.
var ErrTokenMalformed = errors.New("authentication token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrUserNotFound is returned when a verified identity has no local profile.
// The identity exists upstream but local state is inconsistent; we treat it
// as an authentication failure instead of healing it silently.
var ErrUserNotFound = errors.New("user profile not found", errors.CategoryAuth).
	WithTextCode(TextCodeUserNotFound).
	WithCode(errors.CodeUnauthorized)

// ErrAccountNotFound is returned when a lookup by email or id has no match
// and enumeration resistance does not apply.
var ErrAccountNotFound = errors.New("no account found", errors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(errors.CodeNotFound)

// ErrEmailNotVerified is returned by the email-verification gate.
var ErrEmailNotVerified = errors.New("email address has not been verified", errors.CategoryAuthz).
	WithTextCode(TextCodeEmailNotVerified).
	WithCode(errors.CodeForbidden)

// ErrForbidden is returned when the actor's role is not in the allowed set.
var ErrForbidden = errors.New("you do not have permission to perform this action", errors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(errors.CodeForbidden)

// ErrPremiumRequired is returned when the actor has no active premium or
// enterprise subscription.
var ErrPremiumRequired = errors.New("an active premium subscription is required", errors.CategoryAuthz).
	WithTextCode(TextCodePremiumRequired).
	WithCode(errors.CodeForbidden)

// ErrInvalidCredentials is the generic login failure. It never distinguishes
// an unknown email from a wrong password.
var ErrInvalidCredentials = errors.New("the credentials provided are invalid", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(errors.CodeUnauthorized)

// ErrEmailTaken is returned when a registration targets an existing email.
var ErrEmailTaken = errors.New("an account with this email already exists", errors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(errors.CodeConflict)

// ErrAlreadyVerified is returned on resend-verification for verified accounts.
var ErrAlreadyVerified = errors.New("email address is already verified", errors.CategoryConflict).
	WithTextCode(TextCodeAlreadyVerified).
	WithCode(errors.CodeConflict)

// ErrInvalidOrExpiredToken covers verification and reset tokens that are
// unknown, consumed, revoked, or past expiry. One message for all four so
// callers learn nothing about which it was.
var ErrInvalidOrExpiredToken = errors.New("invalid or expired token", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidToken).
	WithCode(errors.CodeBadRequest)

// ErrInvalidRefreshToken is returned when a refresh exchange fails upstream.
var ErrInvalidRefreshToken = errors.New("invalid refresh token", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidRefresh).
	WithCode(errors.CodeUnauthorized)

// ErrTooManyAttempts is the rate limiter rejection. The message stays generic
// so the remaining budget is not revealed.
var ErrTooManyAttempts = errors.New("too many attempts, please try again later", errors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts)

// ErrAccountLocked is the persisted lockout rejection, independent of the
// in-process rate limiter.
var ErrAccountLocked = errors.New("account temporarily locked due to repeated failed logins", errors.CategoryAuth).
	WithTextCode(TextCodeAccountLocked).
	WithCode(errors.CodeUnauthorized)

// ErrWeakPassword is returned before any reset token is consumed.
var ErrWeakPassword = errors.New("Password must be at least 8 characters long", errors.CategoryValidation).
	WithTextCode(TextCodeWeakPassword).
	WithCode(errors.CodeBadRequest)

// ErrUnableToParsePayload is returned when a request body cannot be decoded.
var ErrUnableToParsePayload = errors.New("unable to parse payload", errors.CategoryBadInput).
	WithTextCode(TextCodeDataParseError).
	WithCode(errors.CodeBadRequest)

// ErrServiceUnavailable wraps upstream provider, store, and mail failures.
var ErrServiceUnavailable = errors.New("a backing service is temporarily unavailable", errors.CategoryOperation).
	WithTextCode(TextCodeServiceUnavailable)

// ErrInconsistentAccount flags a partial multi-step failure, e.g. an identity
// that exists upstream without a profile and whose compensation also failed.
var ErrInconsistentAccount = errors.New("account is in an inconsistent state", errors.CategoryInternal).
	WithTextCode(TextCodeInconsistentAccount)

// IsTokenExpiredError will check for expired tokens, including legacy
// string-matched errors from JWT libraries.
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for malformed-token errors.
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// MapUpstreamError folds a provider/store/mail failure into the
// ServiceUnavailable envelope, keeping the cause for logs but never leaking
// it to callers. Rich errors that already carry a caller-facing category are
// passed through untouched.
func MapUpstreamError(err error, msg string) error {
	if err == nil {
		return nil
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) {
		switch richErr.Category {
		case errors.CategoryAuth, errors.CategoryAuthz, errors.CategoryValidation,
			errors.CategoryBadInput, errors.CategoryConflict, errors.CategoryNotFound,
			errors.CategoryRateLimit:
			return err
		}
	}

	clone := ErrServiceUnavailable.Clone()
	if clone == nil {
		return ErrServiceUnavailable
	}
	clone.Source = err
	return clone.WithMetadata(map[string]any{
		"operation": msg,
		"cause":     err.Error(),
	})
}

// StatusForError resolves the HTTP status for a rich error, falling back to
// category-based mapping when no explicit code was set.
func StatusForError(err error) int {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return http.StatusInternalServerError
	}

	if richErr.Code > 0 {
		return richErr.Code
	}

	switch richErr.Category {
	case errors.CategoryAuth:
		return http.StatusUnauthorized
	case errors.CategoryAuthz:
		return http.StatusForbidden
	case errors.CategoryValidation, errors.CategoryBadInput:
		return http.StatusBadRequest
	case errors.CategoryConflict:
		return http.StatusConflict
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case errors.CategoryOperation:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
