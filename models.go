package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Role is the profile's global role
type Role = string

const (
	// RoleUser is the default role assigned at registration
	RoleUser Role = "user"
	// RolePremium marks paying customers
	RolePremium Role = "premium"
	// RoleAdmin can administer other accounts
	RoleAdmin Role = "admin"
)

// SubscriptionPlan is the billing tier attached to a profile
type SubscriptionPlan = string

const (
	PlanFree       SubscriptionPlan = "free"
	PlanPremium    SubscriptionPlan = "premium"
	PlanEnterprise SubscriptionPlan = "enterprise"
)

// AccountStatus is the profile's lifecycle status
type AccountStatus = string

const (
	// StatusPending covers registered accounts awaiting email verification
	StatusPending AccountStatus = "pending_verification"
	// StatusVerified is the normal active state
	StatusVerified AccountStatus = "verified"
	// StatusLocked is entered after repeated failed logins
	StatusLocked AccountStatus = "locked"
	// StatusDeactivated is terminal, set when the account is deleted
	StatusDeactivated AccountStatus = "deactivated"
)

// Subscription describes the profile's billing tier. A nil EndsAt means the
// subscription does not expire.
type Subscription struct {
	Plan   SubscriptionPlan `bun:"subscription_plan" json:"plan,omitempty"`
	EndsAt *time.Time       `bun:"subscription_ends_at,nullzero" json:"ends_at,omitempty"`
}

// IsActiveAt reports whether the subscription grants premium access at t.
func (s Subscription) IsActiveAt(t time.Time) bool {
	if s.Plan != PlanPremium && s.Plan != PlanEnterprise {
		return false
	}
	if s.EndsAt == nil {
		return true
	}
	return s.EndsAt.After(t)
}

// Preferences is the fixed set of client-facing settings. Unknown keys in
// update payloads are rejected, never merged.
type Preferences struct {
	Theme              string `json:"theme,omitempty"`
	Language           string `json:"language,omitempty"`
	EmailNotifications bool   `json:"email_notifications"`
	PushNotifications  bool   `json:"push_notifications"`
}

// Profile is the locally owned record for an identity
type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:prf"`

	ID             uuid.UUID     `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	IdentityID     string        `bun:"identity_id,notnull,unique" json:"identity_id,omitempty"`
	Email          string        `bun:"email,notnull,unique" json:"email,omitempty"`
	FirstName      string        `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName       string        `bun:"last_name,notnull" json:"last_name,omitempty"`
	Phone          string        `bun:"phone_number" json:"phone_number,omitempty"`
	Role           Role          `bun:"role,notnull" json:"role,omitempty"`
	Status         AccountStatus `bun:"status,notnull" json:"status,omitempty"`
	EmailValidated bool          `bun:"is_email_verified" json:"is_email_verified"`
	Subscription   Subscription  `bun:"embed:" json:"subscription"`
	Preferences    Preferences   `bun:"preferences,type:jsonb" json:"preferences"`
	LoginAttempts  int           `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time    `bun:"login_attempt_at,nullzero" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time    `bun:"loggedin_at,nullzero" json:"loggedin_at,omitempty"`
	CreatedAt      *time.Time    `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time    `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time    `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus backfills the zero status for records created before the
// lifecycle column existed.
func (p *Profile) EnsureStatus() {
	if p == nil {
		return
	}
	if p.Status == "" {
		if p.EmailValidated {
			p.Status = StatusVerified
		} else {
			p.Status = StatusPending
		}
	}
}

// FullName joins the name parts for mail templates.
func (p *Profile) FullName() string {
	switch {
	case p == nil:
		return ""
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	default:
		return p.FirstName + " " + p.LastName
	}
}

// IsLocked reports whether the lockout threshold has been crossed within the
// cooldown window ending at now.
func (p *Profile) IsLocked(threshold int, cooldown time.Duration, now time.Time) bool {
	if p == nil || p.LoginAttempts < threshold {
		return false
	}
	if p.LoginAttemptAt == nil {
		return false
	}
	return p.LoginAttemptAt.After(now.Add(-cooldown))
}

// TokenKind distinguishes the two verification-token flows
type TokenKind = string

const (
	// TokenKindEmailVerification proves control of the registered address
	TokenKindEmailVerification TokenKind = "email_verification"
	// TokenKindPasswordReset authorizes a one-time password change
	TokenKindPasswordReset TokenKind = "password_reset"
)

// VerificationToken is a single-use, time-boxed secret. Only the SHA-256 hash
// of the raw token is stored.
type VerificationToken struct {
	bun.BaseModel `bun:"table:verification_tokens,alias:vtk"`

	ID         uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	ProfileID  uuid.UUID  `bun:"profile_id,notnull,type:uuid" json:"profile_id,omitempty"`
	Email      string     `bun:"email,notnull" json:"email,omitempty"`
	TokenHash  string     `bun:"token_hash,notnull,unique" json:"-"`
	Kind       TokenKind  `bun:"kind,notnull" json:"kind,omitempty"`
	ExpiresAt  time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	ConsumedAt *time.Time `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
	RevokedAt  *time.Time `bun:"revoked_at,nullzero" json:"revoked_at,omitempty"`
	CreatedAt  *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt  *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// IsUsableAt reports whether the token can still be redeemed at t. Consumed
// and revoked tokens never validate again, even before expiry.
func (v *VerificationToken) IsUsableAt(t time.Time) bool {
	if v == nil {
		return false
	}
	if v.ConsumedAt != nil || v.RevokedAt != nil {
		return false
	}
	return v.ExpiresAt.After(t)
}

// MarkConsumed returns an update record flagging the token as spent.
func MarkConsumed(id uuid.UUID, at time.Time) *VerificationToken {
	v := &VerificationToken{}
	v.ID = id
	v.ConsumedAt = &at
	v.UpdatedAt = &at
	return v
}
