package accounts

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// PasswordResetRequestedMessage is the message shown for every forgot-password
// request, found or not.
const PasswordResetRequestedMessage = "If that email address is registered, a password reset link has been sent."

type InitializePasswordResetMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "account.password_reset" }

type InitializePasswordResetResponse struct {
	Message string
	Success bool
}

type InitializePasswordResetHandler struct {
	repo         RepositoryManager
	tokens       *TokenIssuer
	mailer       Mailer
	config       Config
	logger       Logger
	activitySink ActivitySink
}

// NewInitializePasswordResetHandler creates a handler with sane defaults.
func NewInitializePasswordResetHandler(repo RepositoryManager, tokens *TokenIssuer, mailer Mailer, config Config) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:         repo,
		tokens:       tokens,
		mailer:       mailer,
		config:       config,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *InitializePasswordResetHandler) WithActivitySink(sink ActivitySink) *InitializePasswordResetHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

// execute answers with the same message whether or not the account exists.
// Only provably internal failures surface as errors.
func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	resp := &InitializePasswordResetResponse{
		Message: PasswordResetRequestedMessage,
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	email := strings.ToLower(strings.TrimSpace(event.Email))

	profile, err := h.repo.Profiles().GetByIdentifier(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			// pretend we sent it
			resp.Success = true
			if event.OnResponse != nil {
				event.OnResponse(resp)
			}
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve profile for password reset")
	}

	raw, err := h.tokens.Issue(ctx, profile, TokenKindPasswordReset, h.config.GetPasswordResetTokenTTL())
	if err != nil {
		return err
	}

	subject, html, text := PasswordResetEmail(h.config.GetBaseURL(), profile.FullName(), raw)
	if _, err := h.mailer.Send(ctx, profile.Email, subject, html, text); err != nil {
		return MapUpstreamError(err, "failed to send password reset email")
	}

	recordActivity(ctx, h.activitySink, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetRequest,
		Actor:     ActorRef{ID: profile.ID.String(), Type: "user"},
		ProfileID: profile.ID.String(),
	})

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
