package local

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config configures the local identity provider.
type Config struct {
	// SigningKey is the HMAC secret used for session tokens.
	SigningKey []byte

	// Issuer stamped on every minted token.
	Issuer string

	// Audience stamped on every minted token.
	Audience jwt.ClaimStrings

	// AccessTTL is how long an access token lives. Defaults to 15 minutes.
	AccessTTL time.Duration

	// RefreshTTL is how long a refresh token lives. Defaults to 30 days.
	RefreshTTL time.Duration

	// BcryptCost defaults to 14.
	BcryptCost int
}

func (c Config) accessTTL() time.Duration {
	if c.AccessTTL <= 0 {
		return 15 * time.Minute
	}
	return c.AccessTTL
}

func (c Config) refreshTTL() time.Duration {
	if c.RefreshTTL <= 0 {
		return 30 * 24 * time.Hour
	}
	return c.RefreshTTL
}

func (c Config) bcryptCost() int {
	if c.BcryptCost <= 0 {
		return 14
	}
	return c.BcryptCost
}
