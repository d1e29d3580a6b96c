package accounts

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

type RegisterAccountMessage struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Language   string `json:"language"`
	Password   string `json:"password"`
	UseHashid  bool
	OnResponse func(resp *RegisterAccountResponse)
}

func (e RegisterAccountMessage) Type() string { return "account.register" }

type RegisterAccountResponse struct {
	Profile *Profile
	Success bool
}

type RegisterAccountHandler struct {
	repo         RepositoryManager
	provider     IdentityProvider
	tokens       *TokenIssuer
	mailer       Mailer
	config       Config
	logger       Logger
	activitySink ActivitySink
}

func NewRegisterAccountHandler(repo RepositoryManager, provider IdentityProvider, tokens *TokenIssuer, mailer Mailer, config Config) *RegisterAccountHandler {
	return &RegisterAccountHandler{
		repo:         repo,
		provider:     provider,
		tokens:       tokens,
		mailer:       mailer,
		config:       config,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
	}
}

func (h *RegisterAccountHandler) WithLogger(logger Logger) *RegisterAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterAccountHandler) WithActivitySink(sink ActivitySink) *RegisterAccountHandler {
	h.activitySink = normalizeActivitySink(sink)
	return h
}

func (h *RegisterAccountHandler) Execute(ctx context.Context, event RegisterAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterAccountHandler) execute(ctx context.Context, event RegisterAccountMessage) error {
	resp := &RegisterAccountResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	email := strings.ToLower(strings.TrimSpace(event.Email))

	if _, err := h.repo.Profiles().GetByIdentifier(ctx, email); err == nil {
		return ErrEmailTaken
	} else if !repository.IsRecordNotFound(err) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email availability")
	}

	identity, err := h.provider.CreateIdentity(ctx, email, event.Password, displayName(event.FirstName, event.LastName))
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			switch richErr.Category {
			case goerrors.CategoryConflict:
				return ErrEmailTaken
			case goerrors.CategoryValidation, goerrors.CategoryBadInput:
				return err
			}
		}
		return MapUpstreamError(err, "identity provider rejected registration")
	}

	profile := &Profile{
		IdentityID: identity.ID(),
		Email:      email,
		FirstName:  event.FirstName,
		LastName:   event.LastName,
		Phone:      event.Phone,
		Role:       RoleUser,
		Status:     StatusPending,
		Preferences: Preferences{
			Language:           event.Language,
			EmailNotifications: true,
		},
	}

	if event.UseHashid {
		if id, err := hashid.NewUUID(email); err == nil {
			profile.ID = id
		}
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		created, err := h.repo.Profiles().CreateTx(ctx, tx, profile)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create profile")
		}
		resp.Profile = created
		return nil
	})

	if err != nil {
		// the identity exists but the profile does not, undo the identity so
		// the email can register again
		if derr := h.provider.DeleteIdentity(ctx, identity.ID()); derr != nil {
			h.logger.Error("registration compensation failed identity=%s: %v", identity.ID(), derr)
			recordActivity(ctx, h.activitySink, h.logger, ActivityEvent{
				EventType: ActivityEventAccountInconsistent,
				Actor:     ActorRef{ID: identity.ID(), Type: "system"},
				Metadata: map[string]any{
					"email":       email,
					"identity_id": identity.ID(),
				},
			})
			return ErrInconsistentAccount
		}

		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "account registration transaction failed")
	}

	h.sendVerificationMail(ctx, resp.Profile)

	recordActivity(ctx, h.activitySink, h.logger, ActivityEvent{
		EventType: ActivityEventAccountRegistered,
		Actor:     ActorRef{ID: resp.Profile.ID.String(), Type: "user"},
		ProfileID: resp.Profile.ID.String(),
		Metadata: map[string]any{
			"email": email,
		},
	})

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

// sendVerificationMail issues a token and emails the link. Mail failures are
// logged, never surfaced, the account can always use resend.
func (h *RegisterAccountHandler) sendVerificationMail(ctx context.Context, profile *Profile) {
	raw, err := h.tokens.Issue(ctx, profile, TokenKindEmailVerification, h.config.GetVerificationTokenTTL())
	if err != nil {
		h.logger.Error("failed to issue verification token profile=%s: %v", profile.ID, err)
		return
	}

	subject, html, text := VerificationEmail(h.config.GetBaseURL(), profile.FullName(), raw)
	if _, err := h.mailer.Send(ctx, profile.Email, subject, html, text); err != nil {
		h.logger.Error("failed to send verification email profile=%s: %v", profile.ID, err)
		return
	}

	recordActivity(ctx, h.activitySink, h.logger, ActivityEvent{
		EventType: ActivityEventVerificationMailSent,
		Actor:     ActorRef{Type: "system"},
		ProfileID: profile.ID.String(),
	})
}

func displayName(first, last string) string {
	name := strings.TrimSpace(first + " " + last)
	return name
}
