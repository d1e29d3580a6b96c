// Package accounts provides the authentication and authorization core for a
// user-account backend: bearer-token verification, composable access-control
// gates, attempt rate limiting, and the credential lifecycle (registration,
// email verification, password reset, session refresh).
//
// Session model:
//   - Access and refresh credentials are owned by an IdentityProvider. The
//     core never signs or stores tokens itself; it verifies inbound bearer
//     tokens through the provider and re-issues sessions through it. The
//     provider/local package offers a self-hosted implementation and
//     provider/hosted delegates to a managed service via JWKS.
//
// Profiles:
//   - Every identity maps to exactly one Profile persisted via Bun. Profiles
//     carry role, subscription, preferences, the email-verified flag, and the
//     login lockout counters. The AccountStateMachine centralizes status
//     transitions (pending, verified, locked, deactivated) so verification
//     and lockout follow the same invariants everywhere.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the Auther, the
//     lifecycle commands, and the state machine. Sinks run best-effort
//     (errors are logged) so you can forward events to a database or queue
//     without blocking authentication.
package accounts
