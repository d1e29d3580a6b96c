package accounts

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type VerifyEmailMessage struct {
	Token      string `json:"token"`
	OnResponse func(resp *VerifyEmailResponse)
}

func (e VerifyEmailMessage) Type() string { return "account.verify_email" }

type VerifyEmailResponse struct {
	Profile *Profile
	Success bool
}

type VerifyEmailHandler struct {
	repo         RepositoryManager
	tokens       *TokenIssuer
	mailer       Mailer
	config       Config
	logger       Logger
	activitySink ActivitySink
}

func NewVerifyEmailHandler(repo RepositoryManager, tokens *TokenIssuer, mailer Mailer, config Config) *VerifyEmailHandler {
	return &VerifyEmailHandler{
		repo:         repo,
		tokens:       tokens,
		mailer:       mailer,
		config:       config,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (h *VerifyEmailHandler) WithLogger(logger Logger) *VerifyEmailHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *VerifyEmailHandler) WithActivitySink(sink ActivitySink) *VerifyEmailHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

func (h *VerifyEmailHandler) Execute(ctx context.Context, event VerifyEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyEmailHandler) execute(ctx context.Context, event VerifyEmailMessage) error {
	resp := &VerifyEmailResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	record, err := h.tokens.Peek(ctx, event.Token, TokenKindEmailVerification)
	if err != nil {
		return err
	}

	profile, err := h.repo.Profiles().GetByID(ctx, record.ProfileID.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrInvalidOrExpiredToken
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load profile for verification")
	}

	profile.EnsureStatus()

	if profile.EmailValidated {
		return ErrAlreadyVerified
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := h.tokens.ConsumeTx(ctx, tx, record); err != nil {
			return err
		}

		updated, err := h.repo.Profiles().UpdateStatusTx(ctx, tx, profile.ID, StatusVerified, WithEmailValidated(true))
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to flip verification flag")
		}

		profile.Status = updated.Status
		profile.EmailValidated = true
		resp.Profile = profile

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "email verification transaction failed")
	}

	// welcome email is best effort, a delivery failure never undoes the
	// verification
	subject, html, text := WelcomeEmail(h.config.GetBaseURL(), profile.FullName())
	if _, err := h.mailer.Send(ctx, profile.Email, subject, html, text); err != nil {
		h.logger.Warn("failed to send welcome email profile=%s: %v", profile.ID, err)
	}

	recordActivity(ctx, h.activitySink, h.logger, ActivityEvent{
		EventType: ActivityEventAccountVerified,
		Actor:     ActorRef{ID: profile.ID.String(), Type: "user"},
		ProfileID: profile.ID.String(),
	})

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

type ResendVerificationMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *ResendVerificationResponse)
}

func (e ResendVerificationMessage) Type() string { return "account.resend_verification" }

type ResendVerificationResponse struct {
	Success bool
}

type ResendVerificationHandler struct {
	repo         RepositoryManager
	tokens       *TokenIssuer
	mailer       Mailer
	config       Config
	logger       Logger
	activitySink ActivitySink
}

func NewResendVerificationHandler(repo RepositoryManager, tokens *TokenIssuer, mailer Mailer, config Config) *ResendVerificationHandler {
	return &ResendVerificationHandler{
		repo:         repo,
		tokens:       tokens,
		mailer:       mailer,
		config:       config,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (h *ResendVerificationHandler) WithLogger(logger Logger) *ResendVerificationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ResendVerificationHandler) WithActivitySink(sink ActivitySink) *ResendVerificationHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

func (h *ResendVerificationHandler) Execute(ctx context.Context, event ResendVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during verification resend",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ResendVerificationHandler) execute(ctx context.Context, event ResendVerificationMessage) error {
	resp := &ResendVerificationResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	email := strings.ToLower(strings.TrimSpace(event.Email))

	profile, err := h.repo.Profiles().GetByIdentifier(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrAccountNotFound
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load profile for resend")
	}

	if profile.EmailValidated {
		return ErrAlreadyVerified
	}

	// issuing revokes any prior pending token for this account
	raw, err := h.tokens.Issue(ctx, profile, TokenKindEmailVerification, h.config.GetVerificationTokenTTL())
	if err != nil {
		return err
	}

	// delivery is best effort, the token stays valid for a later retry
	subject, html, text := VerificationEmail(h.config.GetBaseURL(), profile.FullName(), raw)
	if _, err := h.mailer.Send(ctx, profile.Email, subject, html, text); err != nil {
		h.logger.Error("failed to send verification email profile=%s: %v", profile.ID, err)
	} else {
		recordActivity(ctx, h.activitySink, h.logger, ActivityEvent{
			EventType: ActivityEventVerificationMailSent,
			Actor:     ActorRef{ID: profile.ID.String(), Type: "user"},
			ProfileID: profile.ID.String(),
		})
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
