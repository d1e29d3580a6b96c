package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

const minPasswordLength = 8

type FinalizePasswordResetMessage struct {
	Token      string `json:"token"`
	Password   string `json:"password"`
	OnResponse func(resp *FinalizePasswordResetResponse)
}

func (p FinalizePasswordResetMessage) Type() string { return "account.password_reset_finalize" }

type FinalizePasswordResetResponse struct {
	Profile *Profile
	Success bool
}

type FinalizePasswordResetHandler struct {
	repo         RepositoryManager
	provider     IdentityProvider
	tokens       *TokenIssuer
	logger       Logger
	activitySink ActivitySink
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(repo RepositoryManager, provider IdentityProvider, tokens *TokenIssuer) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		repo:         repo,
		provider:     provider,
		tokens:       tokens,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *FinalizePasswordResetHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordResetHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	resp := &FinalizePasswordResetResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	// validate the password before touching the token, a weak password must
	// not consume the single use
	if len(event.Password) < minPasswordLength {
		return ErrWeakPassword
	}

	record, err := h.tokens.Peek(ctx, event.Token, TokenKindPasswordReset)
	if err != nil {
		return err
	}

	profile, err := h.repo.Profiles().GetByID(ctx, record.ProfileID.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrInvalidOrExpiredToken
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve profile for password reset")
	}

	if err := h.provider.UpdatePassword(ctx, profile.IdentityID, event.Password); err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			switch richErr.Category {
			case goerrors.CategoryValidation, goerrors.CategoryBadInput:
				return err
			}
		}
		return MapUpstreamError(err, "identity provider rejected password update")
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := h.tokens.ConsumeTx(ctx, tx, record); err != nil {
			return err
		}

		// a successful reset proves control of the mailbox, clear the
		// lockout counters so the owner can log straight in
		if err := h.repo.Profiles().TrackSuccessfulLoginTx(ctx, tx, profile); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear lockout counters")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password reset")
	}

	profile.EnsureStatus()
	if profile.Status == StatusLocked {
		if _, err := h.repo.Profiles().Unlock(ctx, ActorRef{ID: profile.ID.String(), Type: "user"}, profile,
			WithTransitionReason("password reset completed")); err != nil {
			h.logger.Warn("failed to unlock account after password reset profile=%s: %v", profile.ID, err)
		}
	}

	resp.Profile = profile

	recordActivity(ctx, h.activitySink, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		Actor:     ActorRef{ID: profile.ID.String(), Type: "user"},
		ProfileID: profile.ID.String(),
		Metadata: map[string]any{
			"token_id": record.ID.String(),
		},
	})

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
