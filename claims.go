package accounts

import "time"

// AuthenticatedUser is the request principal assembled by the token verifier:
// the decoded token claims plus the locally stored profile.
type AuthenticatedUser struct {
	Claims  *DecodedIdentity `json:"claims"`
	Profile *Profile         `json:"profile"`
}

// Role returns the profile role, defaulting to RoleUser when the profile is
// missing a value.
func (a *AuthenticatedUser) Role() Role {
	if a == nil || a.Profile == nil || a.Profile.Role == "" {
		return RoleUser
	}
	return a.Profile.Role
}

// HasRole reports set membership, no hierarchy. An admin does not implicitly
// pass a check for RolePremium.
func (a *AuthenticatedUser) HasRole(roles ...Role) bool {
	if a == nil {
		return false
	}
	own := a.Role()
	for _, role := range roles {
		if role == own {
			return true
		}
	}
	return false
}

// IsPremiumAt reports whether the user holds an active paid subscription at
// t. The premium role alone does not grant the entitlement, the subscription
// has to be current.
func (a *AuthenticatedUser) IsPremiumAt(t time.Time) bool {
	if a == nil || a.Profile == nil {
		return false
	}
	return a.Profile.Subscription.IsActiveAt(t)
}

// Identifier returns the stable subject used in logs and activity events.
func (a *AuthenticatedUser) Identifier() string {
	if a == nil || a.Claims == nil {
		return ""
	}
	return a.Claims.Subject
}
