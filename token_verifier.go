package accounts

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// TokenVerifier resolves bearer tokens into an AuthenticatedUser: the
// provider validates the token, the local profile store supplies the
// profile. A valid token whose subject has no profile fails authentication.
type TokenVerifier struct {
	provider IdentityProvider
	repo     RepositoryManager
	logger   Logger
}

type TokenVerifierOption func(*TokenVerifier)

func WithTokenVerifierLogger(logger Logger) TokenVerifierOption {
	return func(t *TokenVerifier) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func NewTokenVerifier(provider IdentityProvider, repo RepositoryManager, opts ...TokenVerifierOption) *TokenVerifier {
	t := &TokenVerifier{
		provider: provider,
		repo:     repo,
		logger:   defLogger{},
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Verify validates the raw bearer token and loads the matching profile.
func (t *TokenVerifier) Verify(ctx context.Context, raw string) (*AuthenticatedUser, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrUnauthenticated
	}

	claims, err := t.provider.VerifyToken(ctx, raw)
	if err != nil {
		if IsTokenExpiredError(err) {
			return nil, ErrTokenExpired
		}
		if IsMalformedError(err) {
			return nil, ErrTokenMalformed
		}

		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryAuth {
			return nil, err
		}

		t.logger.Error("token verification upstream error: %v", err)
		return nil, MapUpstreamError(err, "token verification failed")
	}

	profile, err := t.repo.Profiles().GetByIdentityID(ctx, claims.Subject)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			t.logger.Error("token subject has no profile subject=%s", claims.Subject)
			return nil, ErrUserNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load profile for token subject")
	}

	profile.EnsureStatus()

	return &AuthenticatedUser{
		Claims:  claims,
		Profile: profile,
	}, nil
}

// VerifyOptional behaves like Verify but never fails the request: missing
// and unverifiable tokens both resolve to an anonymous principal.
func (t *TokenVerifier) VerifyOptional(ctx context.Context, raw string) (*AuthenticatedUser, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	user, err := t.Verify(ctx, raw)
	if err != nil {
		t.logger.Debug("optional token ignored: %v", err)
		return nil, nil
	}

	return user, nil
}

// BearerFromHeader pulls the token out of an Authorization header value.
// Returns an empty string when the header is missing or uses another scheme.
func BearerFromHeader(header, scheme string) string {
	if scheme == "" {
		scheme = "Bearer"
	}

	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}

	if !strings.EqualFold(parts[0], scheme) {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
