package accounts_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-accounts"
)

func newTestController(t *testing.T, provider *MockIdentityProvider, profiles *MockProfiles) *accounts.AccountController {
	t.Helper()

	repo := &MockRepositoryManager{}
	repo.On("Profiles").Return(profiles)

	verifier := accounts.NewTokenVerifier(provider, repo)
	limiter := accounts.NewRateLimiter(accounts.WithRateLimiterLogger(testLogger{}))
	middleware := accounts.NewHTTPMiddleware(verifier, limiter, &accounts.SimpleConfig{}).
		WithLogger(testLogger{})

	auther := accounts.NewAuthenticator(provider, repo, &accounts.SimpleConfig{}).
		WithLogger(testLogger{})

	return accounts.NewAccountController(func(c *accounts.AccountController) *accounts.AccountController {
		c.Repo = repo
		c.Auther = auther
		c.Middleware = middleware
		c.Logger = testLogger{}
		return c
	})
}

func TestNewAccountControllerRequiresDependencies(t *testing.T) {
	assert.Panics(t, func() {
		accounts.NewAccountController()
	})
}

func TestLoginPostSuccess(t *testing.T) {
	provider := &MockIdentityProvider{}
	profiles := &MockProfiles{}
	mockCtx := new(MockContext)

	profile := &accounts.Profile{
		ID:             uuid.New(),
		IdentityID:     "idn-1",
		Email:          "bob@example.com",
		Status:         accounts.StatusVerified,
		EmailValidated: true,
	}
	identity := TestIdentity{IdentityID: "idn-1", EmailAddr: "bob@example.com"}
	pair := &accounts.TokenPair{AccessToken: "acc", RefreshToken: "ref"}

	profiles.On("GetByIdentifier", mock.Anything, "bob@example.com", mock.Anything).
		Return(profile, nil).Once()
	provider.On("VerifyCredential", mock.Anything, "bob@example.com", "hunter22").
		Return(identity, nil).Once()
	provider.On("IssueSession", mock.Anything, identity).
		Return(pair, nil).Once()
	profiles.On("TrackSuccessfulLogin", mock.Anything, profile).
		Return(nil).Once()

	mockCtx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*accounts.LoginRequest)
		payload.Identifier = "bob@example.com"
		payload.Password = "hunter22"
	}).Return(nil).Once()
	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("JSON", http.StatusOK, mock.MatchedBy(func(resp accounts.APIResponse) bool {
		return resp.Success && resp.Message == "Signed in"
	})).Return(nil).Once()

	controller := newTestController(t, provider, profiles)

	err := controller.LoginPost(mockCtx)
	require.NoError(t, err)
	mockCtx.AssertExpectations(t)
	provider.AssertExpectations(t)
}

func TestLoginPostBadCredentialsEnvelope(t *testing.T) {
	provider := &MockIdentityProvider{}
	profiles := &MockProfiles{}
	mockCtx := new(MockContext)

	profile := &accounts.Profile{
		ID:             uuid.New(),
		Email:          "bob@example.com",
		Status:         accounts.StatusVerified,
		EmailValidated: true,
	}

	profiles.On("GetByIdentifier", mock.Anything, "bob@example.com", mock.Anything).
		Return(profile, nil).Once()
	provider.On("VerifyCredential", mock.Anything, "bob@example.com", "wrong").
		Return(nil, accounts.ErrInvalidCredentials).Once()
	profiles.On("TrackAttemptedLogin", mock.Anything, profile).
		Return(nil).Once()

	mockCtx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*accounts.LoginRequest)
		payload.Identifier = "bob@example.com"
		payload.Password = "wrong"
	}).Return(nil).Once()
	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("JSON", http.StatusUnauthorized, mock.MatchedBy(func(resp accounts.APIResponse) bool {
		return !resp.Success && resp.Code == accounts.TextCodeInvalidCreds
	})).Return(nil).Once()

	controller := newTestController(t, provider, profiles)

	err := controller.LoginPost(mockCtx)
	require.NoError(t, err)
	mockCtx.AssertExpectations(t)
}

func TestLoginPostBindFailure(t *testing.T) {
	mockCtx := new(MockContext)

	mockCtx.On("Bind", mock.Anything).Return(errors.New("unexpected end of JSON input")).Once()
	mockCtx.On("JSON", http.StatusBadRequest, mock.MatchedBy(func(resp accounts.APIResponse) bool {
		return resp.Code == accounts.TextCodeDataParseError
	})).Return(nil).Once()

	controller := newTestController(t, &MockIdentityProvider{}, &MockProfiles{})

	err := controller.LoginPost(mockCtx)
	require.NoError(t, err)
	mockCtx.AssertExpectations(t)
}

func TestLoginPostValidationFailure(t *testing.T) {
	mockCtx := new(MockContext)

	mockCtx.On("Bind", mock.Anything).Return(nil).Once()
	mockCtx.On("JSON", http.StatusBadRequest, mock.MatchedBy(func(resp accounts.APIResponse) bool {
		return resp.Code == "VALIDATION_FAILED" && len(resp.Errors) == 2
	})).Return(nil).Once()

	controller := newTestController(t, &MockIdentityProvider{}, &MockProfiles{})

	err := controller.LoginPost(mockCtx)
	require.NoError(t, err)
	mockCtx.AssertExpectations(t)
}

func TestRegistrationCreateValidation(t *testing.T) {
	cases := []struct {
		name    string
		payload accounts.RegistrationCreatePayload
		valid   bool
	}{
		{
			"valid",
			accounts.RegistrationCreatePayload{
				FirstName:       "Ada",
				LastName:        "Lovelace",
				Email:           "ada@example.com",
				Password:        "s3cret-pass",
				ConfirmPassword: "s3cret-pass",
			},
			true,
		},
		{
			"password mismatch",
			accounts.RegistrationCreatePayload{
				FirstName:       "Ada",
				LastName:        "Lovelace",
				Email:           "ada@example.com",
				Password:        "s3cret-pass",
				ConfirmPassword: "different",
			},
			false,
		},
		{
			"bad email",
			accounts.RegistrationCreatePayload{
				FirstName:       "Ada",
				LastName:        "Lovelace",
				Email:           "not-an-email",
				Password:        "s3cret-pass",
				ConfirmPassword: "s3cret-pass",
			},
			false,
		},
		{
			"short password",
			accounts.RegistrationCreatePayload{
				FirstName:       "Ada",
				LastName:        "Lovelace",
				Email:           "ada@example.com",
				Password:        "short",
				ConfirmPassword: "short",
			},
			false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.payload.Validate()
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestRoleUpdatePayloadValidation(t *testing.T) {
	assert.NoError(t, accounts.RoleUpdatePayload{Role: "premium"}.Validate())
	assert.NoError(t, accounts.RoleUpdatePayload{Role: "admin"}.Validate())
	assert.Error(t, accounts.RoleUpdatePayload{Role: "superuser"}.Validate())
	assert.Error(t, accounts.RoleUpdatePayload{Role: ""}.Validate())
}

func TestRegistrationCreateSuccessResponds201(t *testing.T) {
	provider := &MockIdentityProvider{}
	profiles := &MockProfiles{}
	mockCtx := new(MockContext)

	identity := TestIdentity{IdentityID: "idn-new", EmailAddr: "ada@example.com"}
	created := &accounts.Profile{
		ID:         uuid.New(),
		IdentityID: "idn-new",
		Email:      "ada@example.com",
		Status:     accounts.StatusPending,
	}

	repo := &MockRepositoryManager{}
	tokens := &MockVerificationTokens{}
	mailer := &MockMailer{}
	repo.On("Profiles").Return(profiles)
	repo.On("VerificationTokens").Return(tokens)
	repo.On("RunInTx", mock.Anything, mock.Anything, mock.Anything).
		Return(nil).
		Run(func(args mock.Arguments) {
			fn := args.Get(2).(func(context.Context, bun.Tx) error)
			fn(args.Get(0).(context.Context), bun.Tx{})
		})

	profiles.On("GetByIdentifier", mock.Anything, "ada@example.com", mock.Anything).
		Return(nil, repository.NewRecordNotFound()).Once()
	provider.On("CreateIdentity", mock.Anything, "ada@example.com", mock.Anything, mock.Anything).
		Return(identity, nil).Once()
	profiles.On("CreateTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(created, nil).Once()
	tokens.On("RevokeActiveTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil).Once()
	tokens.On("CreateTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&accounts.VerificationToken{}, nil).Once()
	mailer.On("Send", mock.Anything, "ada@example.com", mock.Anything, mock.Anything, mock.Anything).
		Return("msg-1", nil).Once()

	verifier := accounts.NewTokenVerifier(provider, repo)
	limiter := accounts.NewRateLimiter(accounts.WithRateLimiterLogger(testLogger{}))
	middleware := accounts.NewHTTPMiddleware(verifier, limiter, &accounts.SimpleConfig{})
	auther := accounts.NewAuthenticator(provider, repo, &accounts.SimpleConfig{})

	controller := accounts.NewAccountController(func(c *accounts.AccountController) *accounts.AccountController {
		c.Repo = repo
		c.Auther = auther
		c.Middleware = middleware
		c.Logger = testLogger{}
		c.Register = accounts.NewRegisterAccountHandler(
			repo, provider, accounts.NewTokenIssuer(repo), mailer, &accounts.SimpleConfig{},
		).WithLogger(testLogger{})
		return c
	})

	mockCtx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*accounts.RegistrationCreatePayload)
		payload.FirstName = "Ada"
		payload.LastName = "Lovelace"
		payload.Email = "ada@example.com"
		payload.Password = "s3cret-pass"
		payload.ConfirmPassword = "s3cret-pass"
	}).Return(nil).Once()
	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("JSON", http.StatusCreated, mock.MatchedBy(func(resp accounts.APIResponse) bool {
		return resp.Success && resp.Data == created
	})).Return(nil).Once()

	err := controller.RegistrationCreate(mockCtx)
	require.NoError(t, err)
	mockCtx.AssertExpectations(t)
	provider.AssertExpectations(t)
}

func TestProfileShowRequiresPrincipal(t *testing.T) {
	mockCtx := new(MockContext)

	mockCtx.On("Locals", "user").Return(nil)
	mockCtx.On("JSON", http.StatusUnauthorized, mock.MatchedBy(func(resp accounts.APIResponse) bool {
		return resp.Code == accounts.TextCodeUnauthenticated
	})).Return(nil).Once()

	controller := newTestController(t, &MockIdentityProvider{}, &MockProfiles{})

	err := controller.ProfileShow(mockCtx)
	require.NoError(t, err)
	mockCtx.AssertExpectations(t)
}

func TestProfileShowReturnsProfile(t *testing.T) {
	mockCtx := new(MockContext)

	user := verifiedUser(accounts.RoleUser)
	mockCtx.On("Locals", "user").Return(user)
	mockCtx.On("JSON", http.StatusOK, mock.MatchedBy(func(resp accounts.APIResponse) bool {
		return resp.Success && resp.Data == user.Profile
	})).Return(nil).Once()

	controller := newTestController(t, &MockIdentityProvider{}, &MockProfiles{})

	err := controller.ProfileShow(mockCtx)
	require.NoError(t, err)
	mockCtx.AssertExpectations(t)
}

func TestProfileUpdateRejectsUnknownFields(t *testing.T) {
	mockCtx := new(MockContext)

	user := verifiedUser(accounts.RoleUser)
	mockCtx.On("Locals", "user").Return(user)
	mockCtx.On("Body").Return([]byte(`{"first_name":"Ada","role":"admin"}`))
	mockCtx.On("JSON", http.StatusBadRequest, mock.Anything).Return(nil).Once()

	controller := newTestController(t, &MockIdentityProvider{}, &MockProfiles{})

	err := controller.ProfileUpdate(mockCtx)
	require.NoError(t, err)
	mockCtx.AssertExpectations(t)
}

func TestRoleUpdateRequiresAccountID(t *testing.T) {
	mockCtx := new(MockContext)

	user := verifiedUser(accounts.RoleAdmin)
	mockCtx.On("Locals", "user").Return(user)
	mockCtx.On("Param", "id", "").Return("")
	mockCtx.On("JSON", http.StatusBadRequest, mock.Anything).Return(nil).Once()

	controller := newTestController(t, &MockIdentityProvider{}, &MockProfiles{})

	err := controller.RoleUpdate(mockCtx)
	require.NoError(t, err)
	mockCtx.AssertExpectations(t)
}

func TestValidateStringEquals(t *testing.T) {
	rule := accounts.ValidateStringEquals("secret")
	assert.NoError(t, rule("secret"))
	assert.Error(t, rule("other"))
	assert.Error(t, rule(42))
}

func TestLogoutPostRecordsSignOut(t *testing.T) {
	mockCtx := new(MockContext)

	user := verifiedUser(accounts.RoleUser)
	mockCtx.On("Locals", "user").Return(user)
	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("JSON", http.StatusOK, mock.MatchedBy(func(resp accounts.APIResponse) bool {
		return resp.Success && resp.Message == "Signed out"
	})).Return(nil).Once()

	controller := newTestController(t, &MockIdentityProvider{}, &MockProfiles{})

	err := controller.LogoutPost(mockCtx)
	require.NoError(t, err)
	mockCtx.AssertExpectations(t)
}

func TestLogoutPostRequiresPrincipal(t *testing.T) {
	mockCtx := new(MockContext)

	mockCtx.On("Locals", "user").Return(nil)
	mockCtx.On("JSON", http.StatusUnauthorized, mock.Anything).Return(nil).Once()

	controller := newTestController(t, &MockIdentityProvider{}, &MockProfiles{})

	err := controller.LogoutPost(mockCtx)
	require.NoError(t, err)
	mockCtx.AssertExpectations(t)
}

func TestAccountsListPassesCriteria(t *testing.T) {
	mockCtx := new(MockContext)
	profiles := &MockProfiles{}

	listed := []*accounts.Profile{
		{ID: uuid.New(), Email: "a@example.com", Status: accounts.StatusLocked},
		{ID: uuid.New(), Email: "b@example.com", Status: accounts.StatusLocked},
	}

	mockCtx.On("Query", "status", "").Return("locked")
	mockCtx.On("Query", "role", "").Return("")
	mockCtx.On("QueryInt", "limit", 50).Return(10)
	mockCtx.On("QueryInt", "offset", 0).Return(20)
	mockCtx.On("Context").Return(context.Background())

	profiles.On("ListAccounts", mock.Anything, accounts.ListAccountsCriteria{
		Status: accounts.StatusLocked,
		Limit:  10,
		Offset: 20,
	}).Return(listed, 42, nil).Once()

	mockCtx.On("JSON", http.StatusOK, mock.MatchedBy(func(resp accounts.APIResponse) bool {
		return resp.Success
	})).Return(nil).Once()

	controller := newTestController(t, &MockIdentityProvider{}, profiles)

	err := controller.AccountsList(mockCtx)
	require.NoError(t, err)
	profiles.AssertExpectations(t)
	mockCtx.AssertExpectations(t)
}

func TestAccountsListSurfacesRepositoryError(t *testing.T) {
	mockCtx := new(MockContext)
	profiles := &MockProfiles{}

	mockCtx.On("Query", "status", "").Return("")
	mockCtx.On("Query", "role", "").Return("")
	mockCtx.On("QueryInt", "limit", 50).Return(50)
	mockCtx.On("QueryInt", "offset", 0).Return(0)
	mockCtx.On("Context").Return(context.Background())

	profiles.On("ListAccounts", mock.Anything, mock.Anything).
		Return(nil, 0, errors.New("select failed")).Once()

	mockCtx.On("JSON", http.StatusInternalServerError, mock.Anything).Return(nil).Once()

	controller := newTestController(t, &MockIdentityProvider{}, profiles)

	err := controller.AccountsList(mockCtx)
	require.NoError(t, err)
	mockCtx.AssertExpectations(t)
}
