package hosted

import (
	"net/http"
	"time"
)

// Config configures the hosted identity provider.
type Config struct {
	// BaseURL is the root of the admin REST API, e.g. https://id.example.com.
	BaseURL string

	// APIKey authenticates admin API calls.
	APIKey string

	// JWKSURL is where the service publishes its JWK Set.
	JWKSURL string

	// Issuer to enforce on verified tokens. Optional.
	Issuer string

	// Audience to enforce on verified tokens. Optional.
	Audience string

	// HTTPClient defaults to a client with a 10 second timeout.
	HTTPClient *http.Client

	// JWKSRefreshInterval defaults to one hour.
	JWKSRefreshInterval time.Duration
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (c Config) refreshInterval() time.Duration {
	if c.JWKSRefreshInterval <= 0 {
		return time.Hour
	}
	return c.JWKSRefreshInterval
}
