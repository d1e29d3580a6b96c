package local

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/goliatone/go-accounts"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

type sessionClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email,omitempty"`
	TokenType string `json:"typ"`
}

// IssueSession implements accounts.IdentityProvider.
func (p *Provider) IssueSession(ctx context.Context, identity accounts.Identity) (*accounts.TokenPair, error) {
	if identity == nil {
		return nil, goerrors.New("identity must not be nil", goerrors.CategoryInternal)
	}
	return p.mintPair(identity.ID(), identity.Email())
}

// RefreshSession implements accounts.IdentityProvider. The refresh token is
// checked for type and the identity must still exist.
func (p *Provider) RefreshSession(ctx context.Context, refreshToken string) (*accounts.TokenPair, error) {
	claims, err := p.parse(refreshToken)
	if err != nil {
		return nil, err
	}

	if claims.TokenType != tokenTypeRefresh {
		return nil, accounts.ErrTokenMalformed.Clone().WithMetadata(map[string]any{
			"typ": claims.TokenType,
		})
	}

	record, err := p.getByID(ctx, claims.Subject)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, accounts.ErrInvalidRefreshToken
		}
		return nil, err
	}

	return p.mintPair(record.ID.String(), record.Email)
}

// VerifyToken implements accounts.IdentityProvider. Only access tokens pass.
func (p *Provider) VerifyToken(ctx context.Context, bearer string) (*accounts.DecodedIdentity, error) {
	claims, err := p.parse(bearer)
	if err != nil {
		return nil, err
	}

	if claims.TokenType != tokenTypeAccess {
		return nil, accounts.ErrTokenMalformed.Clone().WithMetadata(map[string]any{
			"typ": claims.TokenType,
		})
	}

	decoded := &accounts.DecodedIdentity{
		Subject: claims.Subject,
		Email:   claims.Email,
	}

	if claims.IssuedAt != nil {
		decoded.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		decoded.ExpiresAt = claims.ExpiresAt.Time
	}

	return decoded, nil
}

func (p *Provider) mintPair(subject, email string) (*accounts.TokenPair, error) {
	now := p.clock()
	accessExpiry := now.Add(p.config.accessTTL())

	access, err := p.sign(subject, email, tokenTypeAccess, now, accessExpiry)
	if err != nil {
		return nil, err
	}

	refresh, err := p.sign(subject, email, tokenTypeRefresh, now, now.Add(p.config.refreshTTL()))
	if err != nil {
		return nil, err
	}

	return &accounts.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    accessExpiry,
	}, nil
}

func (p *Provider) sign(subject, email, tokenType string, now, expiry time.Time) (string, error) {
	claims := &sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    p.config.Issuer,
			Subject:   subject,
			Audience:  p.config.Audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
		Email:     email,
		TokenType: tokenType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(p.config.SigningKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signed, nil
}

func (p *Provider) parse(tokenString string) (*sessionClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if p.config.Issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(p.config.Issuer))
	}
	if len(p.config.Audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(p.config.Audience...))
	}
	parserOptions = append(parserOptions, jwt.WithTimeFunc(func() time.Time {
		return p.clock()
	}))

	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.config.SigningKey, nil
	}, parserOptions...)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, accounts.ErrTokenExpired
		}
		return nil, goerrors.Wrap(
			err,
			accounts.ErrTokenMalformed.Category,
			accounts.ErrTokenMalformed.Message,
		).WithTextCode(accounts.ErrTokenMalformed.TextCode)
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return nil, accounts.ErrTokenMalformed
	}

	return claims, nil
}
