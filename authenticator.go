package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// Auther drives login and session refresh against the identity provider
// while keeping the local lockout counters in sync.
type Auther struct {
	provider         IdentityProvider
	repo             RepositoryManager
	lockoutThreshold int
	lockoutCooldown  string
	logger           Logger
	activitySink     ActivitySink
	clock            Clock
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, repo RepositoryManager, opts Config) *Auther {
	return &Auther{
		provider:         provider,
		repo:             repo,
		lockoutThreshold: opts.GetLockoutThreshold(),
		lockoutCooldown:  opts.GetLockoutCooldown(),
		logger:           defLogger{},
		activitySink:     noopActivitySink{},
		clock:            time.Now,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = logger
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithClock overrides the time source, used in tests.
func (s *Auther) WithClock(clock Clock) *Auther {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// Login verifies credentials through the provider and mints a session.
// Failed attempts accumulate on the profile; once the threshold is crossed
// the account locks for the cooldown period regardless of credential
// validity.
func (s *Auther) Login(ctx context.Context, identifier, password string) (*TokenPair, *Profile, error) {
	profile, err := s.repo.Profiles().GetByIdentifier(ctx, identifier)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
				"identifier": identifier,
				"error":      ErrInvalidCredentials.Error(),
			})
			// same error as a bad password, never confirm the account exists
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load profile for login")
	}

	profile.EnsureStatus()

	if err := s.ensureNotLockedOut(ctx, profile); err != nil {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromProfile(profile), profile.ID.String(), map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
			"status":     profile.Status,
		})
		return nil, nil, err
	}

	if profile.Status == StatusDeactivated {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromProfile(profile), profile.ID.String(), map[string]any{
			"identifier": identifier,
			"error":      ErrInvalidCredentials.Error(),
			"status":     profile.Status,
		})
		return nil, nil, ErrInvalidCredentials
	}

	identity, err := s.provider.VerifyCredential(ctx, profile.Email, password)
	if err != nil {
		return nil, nil, s.handleFailedAttempt(ctx, profile, identifier, err)
	}

	if identity == nil {
		return nil, nil, s.handleFailedAttempt(ctx, profile, identifier, ErrInvalidCredentials)
	}

	pair, err := s.provider.IssueSession(ctx, identity)
	if err != nil {
		s.logger.Error("Login issue session error: %v", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromProfile(profile), profile.ID.String(), map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return nil, nil, MapUpstreamError(err, "failed to issue session")
	}

	if err := s.repo.Profiles().TrackSuccessfulLogin(ctx, profile); err != nil {
		s.logger.Warn("Login failed to reset attempt counters: %v", err)
	}

	profile.LoginAttempts = 0
	profile.LoginAttemptAt = nil

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, s.actorFromProfile(profile), profile.ID.String(), map[string]any{
		"identifier": identifier,
	})

	return pair, profile, nil
}

// RefreshSession exchanges a refresh token for a new pair. Rotation policy
// belongs to the provider, we pass the result through.
func (s *Auther) RefreshSession(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}

	pair, err := s.provider.RefreshSession(ctx, refreshToken)
	if err != nil {
		if IsTokenExpiredError(err) || IsMalformedError(err) {
			return nil, ErrInvalidRefreshToken
		}

		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryAuth {
			return nil, ErrInvalidRefreshToken
		}

		s.logger.Error("RefreshSession upstream error: %v", err)
		return nil, MapUpstreamError(err, "failed to refresh session")
	}

	s.emitAuthEvent(ctx, ActivityEventSessionRefresh, ActorRef{Type: "user"}, "", nil)

	return pair, nil
}

// Logout records the sign-out for auditing. Sessions are bearer tokens the
// provider owns, there is no server-side session state to tear down here.
func (s *Auther) Logout(ctx context.Context, user *AuthenticatedUser) error {
	if user == nil || user.Claims == nil {
		return ErrUnauthenticated
	}

	s.emitAuthEvent(ctx, ActivityEventLogout, ActorRef{ID: user.Identifier(), Type: "user"},
		s.profileIDFor(user), nil)

	return nil
}

func (s *Auther) profileIDFor(user *AuthenticatedUser) string {
	if user.Profile == nil {
		return ""
	}
	return user.Profile.ID.String()
}

func (s *Auther) ensureNotLockedOut(ctx context.Context, profile *Profile) error {
	cooldown, err := time.ParseDuration(s.lockoutCooldown)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "invalid lockout cooldown expression")
	}

	if profile.Status == StatusLocked {
		if profile.IsLocked(s.lockoutThreshold, cooldown, s.clock()) {
			return ErrAccountLocked
		}

		// cooldown elapsed, let the attempt proceed against a fresh counter
		if _, err := s.repo.Profiles().Unlock(ctx, ActorRef{Type: "system"}, profile,
			WithTransitionReason("lockout cooldown elapsed")); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to unlock account")
		}
		profile.LoginAttempts = 0
		profile.LoginAttemptAt = nil
		return nil
	}

	if profile.IsLocked(s.lockoutThreshold, cooldown, s.clock()) {
		return ErrAccountLocked
	}

	return nil
}

func (s *Auther) handleFailedAttempt(ctx context.Context, profile *Profile, identifier string, cause error) error {
	if err := s.repo.Profiles().TrackAttemptedLogin(ctx, profile); err != nil {
		s.logger.Warn("Login failed to track attempt: %v", err)
	}

	profile.LoginAttempts++
	now := s.clock()
	profile.LoginAttemptAt = &now

	outcome := error(ErrInvalidCredentials)

	if profile.LoginAttempts >= s.lockoutThreshold {
		if profile.Status == StatusVerified {
			if _, err := s.repo.Profiles().Lock(ctx, ActorRef{Type: "system"}, profile,
				WithTransitionReason("failed login threshold reached")); err != nil {
				s.logger.Error("Login failed to lock account: %v", err)
			}
		}

		outcome = ErrAccountLocked

		s.emitAuthEvent(ctx, ActivityEventAccountLocked, ActorRef{Type: "system"}, profile.ID.String(), map[string]any{
			"identifier": identifier,
			"attempts":   profile.LoginAttempts,
		})
	}

	s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromProfile(profile), profile.ID.String(), map[string]any{
		"identifier": identifier,
		"error":      cause.Error(),
		"attempts":   profile.LoginAttempts,
	})

	return outcome
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, profileID string, metadata map[string]any) {
	recordActivity(ctx, s.activitySink, s.logger, ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		ProfileID: profileID,
		Metadata:  metadata,
	})
}

func (s *Auther) actorFromProfile(profile *Profile) ActorRef {
	if profile == nil {
		return ActorRef{Type: "unknown"}
	}

	return ActorRef{
		ID:   profile.ID.String(),
		Type: "user",
	}
}
