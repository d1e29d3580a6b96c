package hosted

import (
	"context"
	"log"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-accounts"
)

// tokenVerifier checks hosted service tokens against the published JWK Set.
type tokenVerifier struct {
	jwks   *keyfunc.JWKS
	config Config
}

func newTokenVerifier(ctx context.Context, cfg Config) (*tokenVerifier, error) {
	jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
		Ctx: ctx,
		RefreshErrorHandler: func(err error) {
			log.Printf("failed to do a background refresh of JWK Set: %s", err)
		},
		RefreshInterval:   cfg.refreshInterval(),
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to load JWK Set")
	}

	return &tokenVerifier{jwks: jwks, config: cfg}, nil
}

type hostedClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

func (v *tokenVerifier) verify(bearer string) (*accounts.DecodedIdentity, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if v.config.Issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(v.config.Issuer))
	}
	if v.config.Audience != "" {
		parserOptions = append(parserOptions, jwt.WithAudience(v.config.Audience))
	}

	token, err := jwt.ParseWithClaims(bearer, &hostedClaims{}, v.jwks.Keyfunc, parserOptions...)
	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, accounts.ErrTokenExpired
		}
		return nil, goerrors.Wrap(
			err,
			accounts.ErrTokenMalformed.Category,
			accounts.ErrTokenMalformed.Message,
		).WithTextCode(accounts.ErrTokenMalformed.TextCode).
			WithMetadata(map[string]any{"provider": "hosted"})
	}

	claims, ok := token.Claims.(*hostedClaims)
	if !ok || !token.Valid {
		return nil, accounts.ErrTokenMalformed
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
