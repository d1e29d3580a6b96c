package accounts

import (
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// GatePredicate inspects an authenticated user and returns nil to let the
// request through or a caller-facing error to stop it.
type GatePredicate func(user *AuthenticatedUser) error

// Gate chains predicates over the request principal. Predicates run in
// order and the first failure wins.
type Gate struct {
	predicates []GatePredicate
	clock      Clock
}

type GateOption func(*Gate)

// WithGateClock overrides the time source used by time-sensitive predicates.
func WithGateClock(clock Clock) GateOption {
	return func(g *Gate) {
		if clock != nil {
			g.clock = clock
		}
	}
}

func NewGate(opts ...GateOption) *Gate {
	g := &Gate{clock: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Require appends predicates to the chain.
func (g *Gate) Require(predicates ...GatePredicate) *Gate {
	g.predicates = append(g.predicates, predicates...)
	return g
}

// Check runs the chain. A nil user fails immediately with ErrUnauthenticated.
func (g *Gate) Check(user *AuthenticatedUser) error {
	if user == nil || user.Claims == nil {
		return ErrUnauthenticated
	}

	for _, predicate := range g.predicates {
		if predicate == nil {
			continue
		}
		if err := predicate(user); err != nil {
			return err
		}
	}

	return nil
}

// RequireRole passes when the user's role is one of the given roles. There
// is no role hierarchy, admins do not implicitly satisfy other roles.
func RequireRole(roles ...Role) GatePredicate {
	return func(user *AuthenticatedUser) error {
		if user.HasRole(roles...) {
			return nil
		}

		clone := ErrForbidden.Clone()
		clone.Source = ErrForbidden
		return clone.WithMetadata(map[string]any{
			"required_roles": roles,
			"role":           user.Role(),
		})
	}
}

// RequireVerifiedEmail blocks accounts that have not completed email
// verification.
func RequireVerifiedEmail() GatePredicate {
	return func(user *AuthenticatedUser) error {
		if user.Profile != nil && user.Profile.EmailValidated {
			return nil
		}
		return ErrEmailNotVerified
	}
}

// RequirePremium passes only for an active paid subscription.
func (g *Gate) RequirePremium() GatePredicate {
	return func(user *AuthenticatedUser) error {
		if user.IsPremiumAt(g.clock()) {
			return nil
		}
		return ErrPremiumRequired
	}
}

// RequireActiveAccount blocks locked and deactivated profiles.
func RequireActiveAccount() GatePredicate {
	return func(user *AuthenticatedUser) error {
		if user.Profile == nil {
			return ErrUnauthenticated
		}

		user.Profile.EnsureStatus()

		switch user.Profile.Status {
		case StatusLocked:
			return ErrAccountLocked
		case StatusDeactivated:
			return ErrUnauthenticated
		default:
			return nil
		}
	}
}

// RequireSelfOrRole passes when the target profile belongs to the caller or
// the caller holds one of the given roles. Used for admin-or-owner routes.
func RequireSelfOrRole(targetIdentityID string, roles ...Role) GatePredicate {
	return func(user *AuthenticatedUser) error {
		if user.Profile != nil && user.Profile.IdentityID == targetIdentityID {
			return nil
		}
		if user.Claims != nil && user.Claims.Subject == targetIdentityID {
			return nil
		}
		if user.HasRole(roles...) {
			return nil
		}

		clone := ErrForbidden.Clone()
		clone.Message = fmt.Sprintf("Access denied for account %s", targetIdentityID)
		clone.Source = ErrForbidden
		return clone
	}
}

func normalizeGateError(err error) error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return err
	}

	return goerrors.Wrap(err, goerrors.CategoryAuthz, "Access check failed").
		WithCode(goerrors.CodeForbidden)
}
