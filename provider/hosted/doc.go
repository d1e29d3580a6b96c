// Package hosted implements accounts.IdentityProvider against a remote
// identity service. Account management goes through its admin REST API and
// bearer tokens are verified locally against the service's JWK Set.
package hosted
