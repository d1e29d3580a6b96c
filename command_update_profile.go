package accounts

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

// UpdateProfileMessage carries the allow-listed mutable profile fields. Nil
// pointers mean "leave unchanged"; unknown payload keys are rejected at the
// boundary before this message is built.
type UpdateProfileMessage struct {
	IdentityID  string       `json:"-"`
	FirstName   *string      `json:"first_name"`
	LastName    *string      `json:"last_name"`
	Phone       *string      `json:"phone"`
	Preferences *Preferences `json:"preferences"`
	OnResponse  func(resp *UpdateProfileResponse)
}

func (e UpdateProfileMessage) Type() string { return "account.update_profile" }

type UpdateProfileResponse struct {
	Profile *Profile
	Success bool
}

type UpdateProfileHandler struct {
	repo   RepositoryManager
	logger Logger
}

func NewUpdateProfileHandler(repo RepositoryManager) *UpdateProfileHandler {
	return &UpdateProfileHandler{
		repo:   repo,
		logger: defLogger{},
	}
}

func (h *UpdateProfileHandler) WithLogger(logger Logger) *UpdateProfileHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *UpdateProfileHandler) Execute(ctx context.Context, event UpdateProfileMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during profile update",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *UpdateProfileHandler) execute(ctx context.Context, event UpdateProfileMessage) error {
	resp := &UpdateProfileResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if event.Phone != nil && *event.Phone != "" {
		if err := validatePhone(*event.Phone); err != nil {
			return err
		}
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		profile, err := h.repo.Profiles().GetByIdentityIDTx(ctx, tx, event.IdentityID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrUserNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load profile for update")
		}

		if event.FirstName != nil {
			profile.FirstName = strings.TrimSpace(*event.FirstName)
		}
		if event.LastName != nil {
			profile.LastName = strings.TrimSpace(*event.LastName)
		}
		if event.Phone != nil {
			profile.Phone = strings.TrimSpace(*event.Phone)
		}
		if event.Preferences != nil {
			profile.Preferences = *event.Preferences
		}

		updated, err := h.repo.Profiles().UpdateTx(ctx, tx, profile, repository.UpdateByID(profile.ID.String()))
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist profile update")
		}

		resp.Profile = updated
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "profile update transaction failed")
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

func validatePhone(raw string) error {
	parsed, err := phonenumbers.Parse(raw, "US")
	if err != nil || !phonenumbers.IsValidNumber(parsed) {
		return goerrors.New("invalid phone number", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"phone": raw})
	}
	return nil
}

type ChangePasswordMessage struct {
	IdentityID      string `json:"-"`
	Email           string `json:"-"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	OnResponse      func(resp *ChangePasswordResponse)
}

func (e ChangePasswordMessage) Type() string { return "account.change_password" }

type ChangePasswordResponse struct {
	Success bool
}

type ChangePasswordHandler struct {
	repo         RepositoryManager
	provider     IdentityProvider
	logger       Logger
	activitySink ActivitySink
}

func NewChangePasswordHandler(repo RepositoryManager, provider IdentityProvider) *ChangePasswordHandler {
	return &ChangePasswordHandler{
		repo:         repo,
		provider:     provider,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (h *ChangePasswordHandler) WithLogger(logger Logger) *ChangePasswordHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ChangePasswordHandler) WithActivitySink(sink ActivitySink) *ChangePasswordHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

func (h *ChangePasswordHandler) Execute(ctx context.Context, event ChangePasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password change",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ChangePasswordHandler) execute(ctx context.Context, event ChangePasswordMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if len(event.NewPassword) < minPasswordLength {
		return ErrWeakPassword
	}

	if _, err := h.provider.VerifyCredential(ctx, event.Email, event.CurrentPassword); err != nil {
		return ErrInvalidCredentials
	}

	if err := h.provider.UpdatePassword(ctx, event.IdentityID, event.NewPassword); err != nil {
		return MapUpstreamError(err, "identity provider rejected password update")
	}

	recordActivity(ctx, h.activitySink, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		Actor:     ActorRef{ID: event.IdentityID, Type: "user"},
	})

	if event.OnResponse != nil {
		event.OnResponse(&ChangePasswordResponse{Success: true})
	}

	return nil
}

type UpdateRoleMessage struct {
	Actor      ActorRef
	IdentityID string `json:"-"`
	Role       Role   `json:"role"`
	OnResponse func(resp *UpdateRoleResponse)
}

func (e UpdateRoleMessage) Type() string { return "account.update_role" }

type UpdateRoleResponse struct {
	Profile *Profile
	Success bool
}

type UpdateRoleHandler struct {
	repo         RepositoryManager
	logger       Logger
	activitySink ActivitySink
}

func NewUpdateRoleHandler(repo RepositoryManager) *UpdateRoleHandler {
	return &UpdateRoleHandler{
		repo:         repo,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (h *UpdateRoleHandler) WithLogger(logger Logger) *UpdateRoleHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *UpdateRoleHandler) WithActivitySink(sink ActivitySink) *UpdateRoleHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

func (h *UpdateRoleHandler) Execute(ctx context.Context, event UpdateRoleMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during role update",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *UpdateRoleHandler) execute(ctx context.Context, event UpdateRoleMessage) error {
	resp := &UpdateRoleResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	switch event.Role {
	case RoleUser, RolePremium, RoleAdmin:
	default:
		return goerrors.New("unknown role", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"role": event.Role})
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		profile, err := h.repo.Profiles().GetByIdentityIDTx(ctx, tx, event.IdentityID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrAccountNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load profile for role update")
		}

		previous := profile.Role
		profile.Role = event.Role

		updated, err := h.repo.Profiles().UpdateTx(ctx, tx, profile, repository.UpdateByID(profile.ID.String()))
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist role update")
		}

		resp.Profile = updated

		recordActivity(ctx, h.activitySink, h.logger, ActivityEvent{
			EventType: ActivityEventAccountRoleChanged,
			Actor:     event.Actor,
			ProfileID: profile.ID.String(),
			Metadata: map[string]any{
				"from": previous,
				"to":   event.Role,
			},
		})

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "role update transaction failed")
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

type DeleteAccountMessage struct {
	Actor      ActorRef
	IdentityID string `json:"-"`
	OnResponse func(resp *DeleteAccountResponse)
}

func (e DeleteAccountMessage) Type() string { return "account.delete" }

type DeleteAccountResponse struct {
	Success bool
}

// DeleteAccountHandler removes the identity upstream and retires the local
// profile. Identity deletion is authoritative; a failed profile cleanup is
// logged as an inconsistency for operator follow-up, never retried inline.
type DeleteAccountHandler struct {
	repo         RepositoryManager
	provider     IdentityProvider
	logger       Logger
	activitySink ActivitySink
}

func NewDeleteAccountHandler(repo RepositoryManager, provider IdentityProvider) *DeleteAccountHandler {
	return &DeleteAccountHandler{
		repo:         repo,
		provider:     provider,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (h *DeleteAccountHandler) WithLogger(logger Logger) *DeleteAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *DeleteAccountHandler) WithActivitySink(sink ActivitySink) *DeleteAccountHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

func (h *DeleteAccountHandler) Execute(ctx context.Context, event DeleteAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account deletion",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *DeleteAccountHandler) execute(ctx context.Context, event DeleteAccountMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	profile, err := h.repo.Profiles().GetByIdentityID(ctx, event.IdentityID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrAccountNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load profile for deletion")
	}

	if err := h.provider.DeleteIdentity(ctx, event.IdentityID); err != nil {
		return MapUpstreamError(err, "identity provider rejected deletion")
	}

	if _, err := h.repo.Profiles().Deactivate(ctx, event.Actor, profile,
		WithTransitionReason("account deleted"), WithForceTransition()); err != nil {
		h.logger.Error("identity deleted but profile deactivation failed profile=%s: %v", profile.ID, err)
		return ErrInconsistentAccount
	}

	if err := h.repo.Profiles().Remove(ctx, profile.ID); err != nil {
		h.logger.Error("identity deleted but profile removal failed profile=%s: %v", profile.ID, err)
		return ErrInconsistentAccount
	}

	recordActivity(ctx, h.activitySink, h.logger, ActivityEvent{
		EventType: ActivityEventAccountDeleted,
		Actor:     event.Actor,
		ProfileID: profile.ID.String(),
	})

	if event.OnResponse != nil {
		event.OnResponse(&DeleteAccountResponse{Success: true})
	}

	return nil
}
