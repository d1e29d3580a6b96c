package accounts

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// APIResponse is the envelope every endpoint answers with.
type APIResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Data    any      `json:"data,omitempty"`
	Errors  []string `json:"errors,omitempty"`
	Code    string   `json:"code,omitempty"`
}

// RespondOK writes a success envelope.
func RespondOK(c router.Context, status int, message string, data any) error {
	return c.JSON(status, APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// RespondError maps a failure into the envelope. Rich errors keep their
// status, text code, and validation details; anything else collapses into a
// generic 500 so internals never leak.
func RespondError(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return c.JSON(http.StatusInternalServerError, APIResponse{
			Success: false,
			Message: "An unexpected server error occurred",
		})
	}

	return c.JSON(StatusForError(richErr), APIResponse{
		Success: false,
		Message: richErr.Message,
		Code:    richErr.TextCode,
	})
}

// RespondValidationError turns an ozzo validation result into a 400 envelope
// with one entry per failing field.
func RespondValidationError(c router.Context, err error) error {
	return c.JSON(http.StatusBadRequest, APIResponse{
		Success: false,
		Message: "Error validating payload",
		Code:    "VALIDATION_FAILED",
		Errors:  FormatValidationErrors(err),
	})
}

// FormatValidationErrors flattens a validation error into field messages,
// sorted so the output is stable.
func FormatValidationErrors(err error) []string {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}

	fields := make([]string, 0, len(verrs))
	for field := range verrs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	out := make([]string, 0, len(fields))
	for _, field := range fields {
		out = append(out, field+": "+verrs[field].Error())
	}
	return out
}

// HTTPMiddleware wires the verifier, gate, and limiter into router
// middleware.
type HTTPMiddleware struct {
	verifier *TokenVerifier
	limiter  *RateLimiter
	config   Config
	logger   Logger
}

func NewHTTPMiddleware(verifier *TokenVerifier, limiter *RateLimiter, config Config) *HTTPMiddleware {
	return &HTTPMiddleware{
		verifier: verifier,
		limiter:  limiter,
		config:   config,
		logger:   defLogger{},
	}
}

func (m *HTTPMiddleware) WithLogger(logger Logger) *HTTPMiddleware {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// Protected authenticates the request and stashes the principal in locals
// and the request context. Gate predicates run after authentication.
func (m *HTTPMiddleware) Protected(predicates ...GatePredicate) router.MiddlewareFunc {
	gate := NewGate().Require(predicates...)

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			raw := BearerFromHeader(c.Header("Authorization"), m.config.GetAuthScheme())

			user, err := m.verifier.Verify(c.Context(), raw)
			if err != nil {
				m.logger.Debug("protected route rejected: %v", err)
				return RespondError(c, normalizeGateError(err))
			}

			if err := gate.Check(user); err != nil {
				m.logger.Debug(
					"gate rejected request path=%s details=%s",
					c.OriginalURL(),
					print.MaybePrettyJSON(map[string]any{"subject": user.Identifier()}),
				)
				return RespondError(c, normalizeGateError(err))
			}

			c.Locals(m.config.GetContextKey(), user)
			c.SetContext(WithContext(c.Context(), user))

			return hf(c)
		}
	}
}

// OptionalAuth attaches the principal when a valid token is present and lets
// everything else through as anonymous, invalid tokens included.
func (m *HTTPMiddleware) OptionalAuth() router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			raw := BearerFromHeader(c.Header("Authorization"), m.config.GetAuthScheme())

			user, _ := m.verifier.VerifyOptional(c.Context(), raw)
			if user != nil {
				c.Locals(m.config.GetContextKey(), user)
				c.SetContext(WithContext(c.Context(), user))
			}

			return hf(c)
		}
	}
}

// RateLimit guards a sensitive operation with its budget. The key combines
// the client address with the identity hint extracted from the request so
// authenticated and anonymous attempts are tracked separately.
func (m *HTTPMiddleware) RateLimit(operation string, budget RateBudget) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			key := RateKey(operation, ClientAddr(c), identityHint(c, m.config.GetContextKey()))

			if err := m.limiter.Allow(key, budget); err != nil {
				return RespondError(c, err)
			}

			return hf(c)
		}
	}
}

// ClientAddr resolves the caller's address from proxy headers.
func ClientAddr(c router.Context) string {
	if fwd := c.Header("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}

	if real := c.Header("X-Real-IP"); real != "" {
		return strings.TrimSpace(real)
	}

	return "unknown"
}

func identityHint(c router.Context, contextKey string) string {
	if user, ok := GetRouterUser(c, contextKey); ok {
		return user.Identifier()
	}
	return ""
}
