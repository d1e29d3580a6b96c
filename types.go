package accounts

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity holds the attributes of an externally managed account record. The
// core only reads these; it never mutates provider state directly.
type Identity interface {
	ID() string
	Email() string
	DisplayName() string
	EmailVerified() bool
}

// TokenPair is an issued session: a short-lived access credential plus a
// long-lived refresh credential. The core never persists either.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// DecodedIdentity is the claim set extracted from a verified bearer token.
type DecodedIdentity struct {
	Subject   string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Metadata  map[string]any
}

// IdentityProvider is the upstream service that owns credentials and signed
// tokens. Every method must respect the caller's context deadline; the core
// always calls with a bounded timeout.
type IdentityProvider interface {
	CreateIdentity(ctx context.Context, email, password, displayName string) (Identity, error)
	VerifyCredential(ctx context.Context, email, password string) (Identity, error)
	VerifyToken(ctx context.Context, bearer string) (*DecodedIdentity, error)
	IssueSession(ctx context.Context, identity Identity) (*TokenPair, error)
	RefreshSession(ctx context.Context, refreshToken string) (*TokenPair, error)
	UpdatePassword(ctx context.Context, id, newPassword string) error
	DeleteIdentity(ctx context.Context, id string) error
}

// Mailer delivers outbound mail. Implementations should not retry; the
// calling policy decides whether a failure is surfaced or swallowed.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody, textBody string) (string, error)
}

// Clock lets tests control time-sensitive behavior.
type Clock func() time.Time

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] ACCOUNTS "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
