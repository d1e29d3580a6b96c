package accounts

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const rawTokenBytes = 32

// GenerateToken returns a URL-safe random secret suitable for email links.
func GenerateToken() (string, error) {
	buf := make([]byte, rawTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate verification token")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken returns the hex SHA-256 digest stored in place of the raw token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// TokenIssuer mints and redeems single-use verification tokens. Issuing a
// new token revokes any active token of the same kind for the profile.
type TokenIssuer struct {
	repo  RepositoryManager
	clock Clock
}

type TokenIssuerOption func(*TokenIssuer)

func WithTokenIssuerClock(clock Clock) TokenIssuerOption {
	return func(t *TokenIssuer) {
		if clock != nil {
			t.clock = clock
		}
	}
}

func NewTokenIssuer(repo RepositoryManager, opts ...TokenIssuerOption) *TokenIssuer {
	t := &TokenIssuer{
		repo:  repo,
		clock: time.Now,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Issue creates a fresh token for the profile, revoking prior active tokens
// of the same kind in the same transaction. The raw secret is returned to
// the caller and never stored.
func (t *TokenIssuer) Issue(ctx context.Context, profile *Profile, kind TokenKind, ttl time.Duration) (string, error) {
	if profile == nil || profile.ID == uuid.Nil {
		return "", goerrors.New("cannot issue token without a profile", goerrors.CategoryBadInput)
	}

	raw, err := GenerateToken()
	if err != nil {
		return "", err
	}

	now := t.clock()
	record := &VerificationToken{
		ProfileID: profile.ID,
		Email:     profile.Email,
		TokenHash: HashToken(raw),
		Kind:      kind,
		ExpiresAt: now.Add(ttl),
	}

	err = t.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := t.repo.VerificationTokens().RevokeActiveTx(ctx, tx, profile.ID, kind, now); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke previous tokens")
		}

		if _, err := t.repo.VerificationTokens().CreateTx(ctx, tx, record); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store verification token")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return "", richErr
		}
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "token issue transaction failed")
	}

	return raw, nil
}

// Peek resolves a raw token to its stored record without consuming it.
// Unknown, revoked, consumed and expired tokens all collapse into
// ErrInvalidOrExpiredToken.
func (t *TokenIssuer) Peek(ctx context.Context, raw string, kind TokenKind) (*VerificationToken, error) {
	if raw == "" {
		return nil, ErrInvalidOrExpiredToken
	}

	record, err := t.repo.VerificationTokens().GetActiveByHash(ctx, HashToken(raw), kind)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up verification token")
	}

	if !record.IsUsableAt(t.clock()) {
		return nil, ErrInvalidOrExpiredToken
	}

	return record, nil
}

// ConsumeTx marks the token spent inside the caller's transaction.
func (t *TokenIssuer) ConsumeTx(ctx context.Context, tx bun.IDB, record *VerificationToken) error {
	if record == nil {
		return ErrInvalidOrExpiredToken
	}

	if _, err := t.repo.VerificationTokens().ConsumeTx(ctx, tx, record.ID, t.clock()); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume verification token")
	}

	return nil
}
