package accounts

import "time"

// RateBudget caps a rate-limited operation at Max calls per Window.
type RateBudget struct {
	Max    int
	Window time.Duration
}

// Config holds accounts options
type Config interface {
	GetContextKey() string
	GetAuthScheme() string
	GetTokenLookup() string
	GetBaseURL() string
	GetLockoutThreshold() int
	GetLockoutCooldown() string
	GetVerificationTokenTTL() time.Duration
	GetPasswordResetTokenTTL() time.Duration
	GetLoginBudget() RateBudget
	GetRegisterBudget() RateBudget
	GetPasswordResetBudget() RateBudget
	GetResendVerificationBudget() RateBudget
	GetRefreshBudget() RateBudget
	GetPasswordResetConfirmBudget() RateBudget
	GetPasswordChangeBudget() RateBudget
	GetAccountDeleteBudget() RateBudget
}

// SimpleConfig implements Config with plain fields. Zero values fall back to
// the package defaults.
type SimpleConfig struct {
	ContextKey                 string
	AuthScheme                 string
	TokenLookup                string
	BaseURL                    string
	LockoutThreshold           int
	LockoutCooldown            string
	VerificationTokenTTL       time.Duration
	PasswordResetTokenTTL      time.Duration
	LoginBudget                RateBudget
	RegisterBudget             RateBudget
	PasswordResetBudget        RateBudget
	ResendVerificationBudget   RateBudget
	RefreshBudget              RateBudget
	PasswordResetConfirmBudget RateBudget
	PasswordChangeBudget       RateBudget
	AccountDeleteBudget        RateBudget
}

func (c SimpleConfig) GetContextKey() string {
	if c.ContextKey == "" {
		return "user"
	}
	return c.ContextKey
}

func (c SimpleConfig) GetAuthScheme() string {
	if c.AuthScheme == "" {
		return "Bearer"
	}
	return c.AuthScheme
}

func (c SimpleConfig) GetTokenLookup() string {
	if c.TokenLookup == "" {
		return "header:Authorization"
	}
	return c.TokenLookup
}

func (c SimpleConfig) GetBaseURL() string {
	return c.BaseURL
}

func (c SimpleConfig) GetLockoutThreshold() int {
	if c.LockoutThreshold <= 0 {
		return 5
	}
	return c.LockoutThreshold
}

func (c SimpleConfig) GetLockoutCooldown() string {
	if c.LockoutCooldown == "" {
		return "24h"
	}
	return c.LockoutCooldown
}

func (c SimpleConfig) GetVerificationTokenTTL() time.Duration {
	if c.VerificationTokenTTL <= 0 {
		return 24 * time.Hour
	}
	return c.VerificationTokenTTL
}

func (c SimpleConfig) GetPasswordResetTokenTTL() time.Duration {
	if c.PasswordResetTokenTTL <= 0 {
		return time.Hour
	}
	return c.PasswordResetTokenTTL
}

func (c SimpleConfig) GetLoginBudget() RateBudget {
	return budgetOrDefault(c.LoginBudget, RateBudget{Max: 10, Window: 15 * time.Minute})
}

func (c SimpleConfig) GetRegisterBudget() RateBudget {
	return budgetOrDefault(c.RegisterBudget, RateBudget{Max: 5, Window: time.Hour})
}

func (c SimpleConfig) GetPasswordResetBudget() RateBudget {
	return budgetOrDefault(c.PasswordResetBudget, RateBudget{Max: 5, Window: 15 * time.Minute})
}

func (c SimpleConfig) GetResendVerificationBudget() RateBudget {
	return budgetOrDefault(c.ResendVerificationBudget, RateBudget{Max: 3, Window: 15 * time.Minute})
}

func (c SimpleConfig) GetRefreshBudget() RateBudget {
	return budgetOrDefault(c.RefreshBudget, RateBudget{Max: 60, Window: 15 * time.Minute})
}

func (c SimpleConfig) GetPasswordResetConfirmBudget() RateBudget {
	return budgetOrDefault(c.PasswordResetConfirmBudget, RateBudget{Max: 5, Window: 15 * time.Minute})
}

func (c SimpleConfig) GetPasswordChangeBudget() RateBudget {
	return budgetOrDefault(c.PasswordChangeBudget, RateBudget{Max: 5, Window: 15 * time.Minute})
}

func (c SimpleConfig) GetAccountDeleteBudget() RateBudget {
	return budgetOrDefault(c.AccountDeleteBudget, RateBudget{Max: 3, Window: time.Hour})
}

func budgetOrDefault(b, def RateBudget) RateBudget {
	if b.Max <= 0 || b.Window <= 0 {
		return def
	}
	return b
}
