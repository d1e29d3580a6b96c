// Package local implements accounts.IdentityProvider on top of a bun managed
// identities table, with bcrypt credentials and HS256 signed sessions.
package local
