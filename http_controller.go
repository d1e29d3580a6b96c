package accounts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// RegisterAccountRoutes mounts the account API on the given router.
func RegisterAccountRoutes[T any](app router.Router[T], opts ...AccountControllerOption) {
	controller := NewAccountController(opts...)

	public := controller.Middleware
	protected := public.Protected()
	adminOnly := public.Protected(RequireRole(RoleAdmin))

	app.Post(controller.Routes.Register,
		controller.RegistrationCreate,
		public.RateLimit("register", controller.Config.GetRegisterBudget()),
	).SetName("account.register")

	app.Post(controller.Routes.Login,
		controller.LoginPost,
		public.RateLimit("login", controller.Config.GetLoginBudget()),
	).SetName("account.login")

	app.Post(controller.Routes.Logout, controller.LogoutPost, protected).
		SetName("account.logout")

	app.Post(controller.Routes.Refresh,
		controller.SessionRefresh,
		public.RateLimit("refresh", controller.Config.GetRefreshBudget()),
	).SetName("account.refresh")

	app.Post(controller.Routes.VerifyEmail, controller.VerifyEmail).
		SetName("account.verify-email")

	app.Post(fmt.Sprintf("%s/resend", controller.Routes.VerifyEmail),
		controller.ResendVerification,
		public.RateLimit("resend_verification", controller.Config.GetResendVerificationBudget()),
	).SetName("account.verify-email.resend")

	app.Post(controller.Routes.PasswordReset,
		controller.PasswordResetRequest,
		public.RateLimit("password_reset", controller.Config.GetPasswordResetBudget()),
	).SetName("account.pwd-reset")

	app.Post(fmt.Sprintf("%s/confirm", controller.Routes.PasswordReset),
		controller.PasswordResetConfirm,
		public.RateLimit("password_reset_confirm", controller.Config.GetPasswordResetConfirmBudget()),
	).SetName("account.pwd-reset.confirm")

	app.Get(controller.Routes.Profile, controller.ProfileShow, protected).
		SetName("account.profile.get")
	app.Post(controller.Routes.Profile, controller.ProfileUpdate, protected).
		SetName("account.profile.post")

	app.Post(fmt.Sprintf("%s/password", controller.Routes.Profile),
		controller.PasswordChange, protected,
		public.RateLimit("password_change", controller.Config.GetPasswordChangeBudget()),
	).SetName("account.password.post")

	app.Post(fmt.Sprintf("%s/delete", controller.Routes.Profile),
		controller.AccountDelete, protected,
		public.RateLimit("account_delete", controller.Config.GetAccountDeleteBudget()),
	).SetName("account.delete")

	app.Get(controller.Routes.Admin, controller.AccountsList, adminOnly).
		SetName("account.admin.list")

	app.Post(fmt.Sprintf("%s/:id/role", controller.Routes.Admin),
		controller.RoleUpdate, adminOnly,
	).SetName("account.admin.role")
}

type AccountControllerRoutes struct {
	Register      string
	Login         string
	Logout        string
	Refresh       string
	VerifyEmail   string
	PasswordReset string
	Profile       string
	Admin         string
}

type AccountController struct {
	Debug         bool
	Logger        Logger
	Config        Config
	Routes        *AccountControllerRoutes
	Repo          RepositoryManager
	Auther        *Auther
	Middleware    *HTTPMiddleware
	Register      *RegisterAccountHandler
	VerifyMail    *VerifyEmailHandler
	Resend        *ResendVerificationHandler
	ResetInit     *InitializePasswordResetHandler
	ResetFinalize *FinalizePasswordResetHandler
	Profile       *UpdateProfileHandler
	Password      *ChangePasswordHandler
	Role          *UpdateRoleHandler
	Delete        *DeleteAccountHandler
}

type AccountControllerOption func(*AccountController) *AccountController

func NewAccountController(opts ...AccountControllerOption) *AccountController {
	c := &AccountController{
		Logger: defLogger{},
		Routes: &AccountControllerRoutes{
			Register:      "/auth/register",
			Login:         "/auth/login",
			Logout:        "/auth/logout",
			Refresh:       "/auth/refresh",
			VerifyEmail:   "/auth/verify-email",
			PasswordReset: "/auth/password-reset",
			Profile:       "/account",
			Admin:         "/admin/accounts",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Config == nil {
		c.Config = &SimpleConfig{}
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in account controller...")
	}

	if c.Auther == nil {
		panic("Missing Authenticator in account controller...")
	}

	if c.Middleware == nil {
		panic("Missing HTTPMiddleware in account controller...")
	}

	return c
}

// RegistrationCreatePayload is the register request body.
type RegistrationCreatePayload struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Language        string `json:"language"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 72)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AccountController) RegistrationCreate(ctx router.Context) error {
	payload := &RegistrationCreatePayload{}

	if err := ctx.Bind(payload); err != nil {
		return RespondError(ctx, ErrUnableToParsePayload)
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register account validate payload: %v", err)
		return RespondValidationError(ctx, err)
	}

	var profile *Profile
	msg := RegisterAccountMessage{
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Email:     payload.Email,
		Phone:     payload.Phone,
		Language:  payload.Language,
		Password:  payload.Password,
		OnResponse: func(resp *RegisterAccountResponse) {
			profile = resp.Profile
		},
	}

	if err := a.Register.Execute(ctx.Context(), msg); err != nil {
		return RespondError(ctx, err)
	}

	return RespondOK(ctx, fiber.StatusCreated,
		"Account created. Check your inbox to verify your email address.",
		profile,
	)
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

type loginResponse struct {
	Session *TokenPair `json:"session"`
	Profile *Profile   `json:"profile"`
}

func (a *AccountController) LoginPost(ctx router.Context) error {
	payload := &LoginRequest{}

	if err := ctx.Bind(payload); err != nil {
		return RespondError(ctx, ErrUnableToParsePayload)
	}

	if err := payload.Validate(); err != nil {
		return RespondValidationError(ctx, err)
	}

	session, profile, err := a.Auther.Login(ctx.Context(), payload.Identifier, payload.Password)
	if err != nil {
		return RespondError(ctx, err)
	}

	return RespondOK(ctx, fiber.StatusOK, "Signed in", loginResponse{
		Session: session,
		Profile: profile,
	})
}

func (a *AccountController) LogoutPost(ctx router.Context) error {
	user, ok := GetRouterUser(ctx, a.Config.GetContextKey())
	if !ok {
		return RespondError(ctx, ErrUnauthenticated)
	}

	if err := a.Auther.Logout(ctx.Context(), user); err != nil {
		return RespondError(ctx, err)
	}

	return RespondOK(ctx, fiber.StatusOK, "Signed out", nil)
}

// RefreshRequest payload
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (r RefreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

func (a *AccountController) SessionRefresh(ctx router.Context) error {
	payload := &RefreshRequest{}

	if err := ctx.Bind(payload); err != nil {
		return RespondError(ctx, ErrUnableToParsePayload)
	}

	if err := payload.Validate(); err != nil {
		return RespondValidationError(ctx, err)
	}

	session, err := a.Auther.RefreshSession(ctx.Context(), payload.RefreshToken)
	if err != nil {
		return RespondError(ctx, err)
	}

	return RespondOK(ctx, fiber.StatusOK, "Session refreshed", session)
}

// TokenPayload carries a single verification or reset token.
type TokenPayload struct {
	Token string `json:"token"`
}

func (r TokenPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

func (a *AccountController) VerifyEmail(ctx router.Context) error {
	payload := &TokenPayload{}

	if err := ctx.Bind(payload); err != nil {
		return RespondError(ctx, ErrUnableToParsePayload)
	}

	if err := payload.Validate(); err != nil {
		return RespondValidationError(ctx, err)
	}

	var profile *Profile
	msg := VerifyEmailMessage{
		Token: payload.Token,
		OnResponse: func(resp *VerifyEmailResponse) {
			profile = resp.Profile
		},
	}

	if err := a.VerifyMail.Execute(ctx.Context(), msg); err != nil {
		return RespondError(ctx, err)
	}

	return RespondOK(ctx, fiber.StatusOK, "Email verified", profile)
}

// EmailPayload carries a bare email address.
type EmailPayload struct {
	Email string `json:"email"`
}

func (r EmailPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *AccountController) ResendVerification(ctx router.Context) error {
	payload := &EmailPayload{}

	if err := ctx.Bind(payload); err != nil {
		return RespondError(ctx, ErrUnableToParsePayload)
	}

	if err := payload.Validate(); err != nil {
		return RespondValidationError(ctx, err)
	}

	msg := ResendVerificationMessage{Email: payload.Email}
	if err := a.Resend.Execute(ctx.Context(), msg); err != nil {
		return RespondError(ctx, err)
	}

	return RespondOK(ctx, fiber.StatusOK, "Verification email sent", nil)
}

func (a *AccountController) PasswordResetRequest(ctx router.Context) error {
	payload := &EmailPayload{}

	if err := ctx.Bind(payload); err != nil {
		return RespondError(ctx, ErrUnableToParsePayload)
	}

	if err := payload.Validate(); err != nil {
		return RespondValidationError(ctx, err)
	}

	msg := InitializePasswordResetMessage{Email: payload.Email}
	if err := a.ResetInit.Execute(ctx.Context(), msg); err != nil {
		return RespondError(ctx, err)
	}

	return RespondOK(ctx, fiber.StatusOK, PasswordResetRequestedMessage, nil)
}

// PasswordResetConfirmPayload finalizes a reset with the emailed token.
type PasswordResetConfirmPayload struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate will validate the payload
func (r PasswordResetConfirmPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 72)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AccountController) PasswordResetConfirm(ctx router.Context) error {
	payload := &PasswordResetConfirmPayload{}

	if err := ctx.Bind(payload); err != nil {
		return RespondError(ctx, ErrUnableToParsePayload)
	}

	if err := payload.Validate(); err != nil {
		return RespondValidationError(ctx, err)
	}

	msg := FinalizePasswordResetMessage{
		Token:    payload.Token,
		Password: payload.Password,
	}

	if err := a.ResetFinalize.Execute(ctx.Context(), msg); err != nil {
		return RespondError(ctx, err)
	}

	return RespondOK(ctx, fiber.StatusOK, "Password updated. You can sign in now.", nil)
}

func (a *AccountController) ProfileShow(ctx router.Context) error {
	user, ok := GetRouterUser(ctx, a.Config.GetContextKey())
	if !ok {
		return RespondError(ctx, ErrUnauthenticated)
	}

	return RespondOK(ctx, fiber.StatusOK, "", user.Profile)
}

func (a *AccountController) ProfileUpdate(ctx router.Context) error {
	user, ok := GetRouterUser(ctx, a.Config.GetContextKey())
	if !ok {
		return RespondError(ctx, ErrUnauthenticated)
	}

	msg := UpdateProfileMessage{}
	if err := decodeStrict(ctx.Body(), &msg); err != nil {
		return RespondError(ctx, err)
	}
	msg.IdentityID = user.Claims.Subject

	var profile *Profile
	msg.OnResponse = func(resp *UpdateProfileResponse) {
		profile = resp.Profile
	}

	if err := a.Profile.Execute(ctx.Context(), msg); err != nil {
		return RespondError(ctx, err)
	}

	return RespondOK(ctx, fiber.StatusOK, "Profile updated", profile)
}

// PasswordChangePayload rotates the password of a signed in account.
type PasswordChangePayload struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (r PasswordChangePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(8, 72)),
	)
}

func (a *AccountController) PasswordChange(ctx router.Context) error {
	user, ok := GetRouterUser(ctx, a.Config.GetContextKey())
	if !ok {
		return RespondError(ctx, ErrUnauthenticated)
	}

	payload := &PasswordChangePayload{}
	if err := ctx.Bind(payload); err != nil {
		return RespondError(ctx, ErrUnableToParsePayload)
	}

	if err := payload.Validate(); err != nil {
		return RespondValidationError(ctx, err)
	}

	msg := ChangePasswordMessage{
		IdentityID:      user.Claims.Subject,
		Email:           user.Claims.Email,
		CurrentPassword: payload.CurrentPassword,
		NewPassword:     payload.NewPassword,
	}

	if err := a.Password.Execute(ctx.Context(), msg); err != nil {
		return RespondError(ctx, err)
	}

	return RespondOK(ctx, fiber.StatusOK, "Password changed", nil)
}

func (a *AccountController) AccountDelete(ctx router.Context) error {
	user, ok := GetRouterUser(ctx, a.Config.GetContextKey())
	if !ok {
		return RespondError(ctx, ErrUnauthenticated)
	}

	msg := DeleteAccountMessage{
		Actor:      ActorRef{ID: user.Identifier(), Type: "user"},
		IdentityID: user.Claims.Subject,
	}

	if err := a.Delete.Execute(ctx.Context(), msg); err != nil {
		return RespondError(ctx, err)
	}

	return RespondOK(ctx, fiber.StatusOK, "Account deleted", nil)
}

type accountsListResponse struct {
	Accounts []*Profile `json:"accounts"`
	Total    int        `json:"total"`
	Limit    int        `json:"limit"`
	Offset   int        `json:"offset"`
}

func (a *AccountController) AccountsList(ctx router.Context) error {
	criteria := ListAccountsCriteria{
		Status: AccountStatus(ctx.Query("status", "")),
		Role:   Role(ctx.Query("role", "")),
		Limit:  ctx.QueryInt("limit", 50),
		Offset: ctx.QueryInt("offset", 0),
	}

	records, total, err := a.Repo.Profiles().ListAccounts(ctx.Context(), criteria)
	if err != nil {
		a.Logger.Error("accounts list error: %v", err)
		return RespondError(ctx, err)
	}

	return RespondOK(ctx, fiber.StatusOK, "", accountsListResponse{
		Accounts: records,
		Total:    total,
		Limit:    criteria.Limit,
		Offset:   criteria.Offset,
	})
}

// RoleUpdatePayload assigns a role to the account in the URL.
type RoleUpdatePayload struct {
	Role string `json:"role"`
}

func (r RoleUpdatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Role,
			validation.Required,
			validation.In(string(RoleUser), string(RolePremium), string(RoleAdmin)),
		),
	)
}

func (a *AccountController) RoleUpdate(ctx router.Context) error {
	user, ok := GetRouterUser(ctx, a.Config.GetContextKey())
	if !ok {
		return RespondError(ctx, ErrUnauthenticated)
	}

	identityID := ctx.Param("id", "")
	if identityID == "" {
		return RespondError(ctx, goerrors.New(
			"missing account id",
			goerrors.CategoryBadInput,
		).WithCode(goerrors.CodeBadRequest))
	}

	payload := &RoleUpdatePayload{}
	if err := ctx.Bind(payload); err != nil {
		return RespondError(ctx, ErrUnableToParsePayload)
	}

	if err := payload.Validate(); err != nil {
		return RespondValidationError(ctx, err)
	}

	var profile *Profile
	msg := UpdateRoleMessage{
		Actor:      ActorRef{ID: user.Identifier(), Type: "admin"},
		IdentityID: identityID,
		Role:       Role(payload.Role),
		OnResponse: func(resp *UpdateRoleResponse) {
			profile = resp.Profile
		},
	}

	if err := a.Role.Execute(ctx.Context(), msg); err != nil {
		return RespondError(ctx, err)
	}

	return RespondOK(ctx, fiber.StatusOK, "Role updated", profile)
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// decodeStrict rejects bodies carrying fields the payload does not declare.
func decodeStrict(body []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()

	if err := dec.Decode(out); err != nil {
		return goerrors.Wrap(
			err, goerrors.CategoryBadInput, "invalid request body",
		).WithCode(goerrors.CodeBadRequest)
	}

	return nil
}
