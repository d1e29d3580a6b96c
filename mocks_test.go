package accounts_test

import (
	"context"
	"database/sql"
	"io"
	"mime/multipart"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-accounts"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// TestIdentity implements accounts.Identity
type TestIdentity struct {
	IdentityID    string
	EmailAddr     string
	Name          string
	EmailVerifies bool
}

func (t TestIdentity) ID() string          { return t.IdentityID }
func (t TestIdentity) Email() string       { return t.EmailAddr }
func (t TestIdentity) DisplayName() string { return t.Name }
func (t TestIdentity) EmailVerified() bool { return t.EmailVerifies }

// MockIdentityProvider implements accounts.IdentityProvider
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) CreateIdentity(ctx context.Context, email, password, displayName string) (accounts.Identity, error) {
	args := m.Called(ctx, email, password, displayName)
	identity, _ := args.Get(0).(accounts.Identity)
	return identity, args.Error(1)
}

func (m *MockIdentityProvider) VerifyCredential(ctx context.Context, email, password string) (accounts.Identity, error) {
	args := m.Called(ctx, email, password)
	identity, _ := args.Get(0).(accounts.Identity)
	return identity, args.Error(1)
}

func (m *MockIdentityProvider) VerifyToken(ctx context.Context, bearer string) (*accounts.DecodedIdentity, error) {
	args := m.Called(ctx, bearer)
	decoded, _ := args.Get(0).(*accounts.DecodedIdentity)
	return decoded, args.Error(1)
}

func (m *MockIdentityProvider) IssueSession(ctx context.Context, identity accounts.Identity) (*accounts.TokenPair, error) {
	args := m.Called(ctx, identity)
	pair, _ := args.Get(0).(*accounts.TokenPair)
	return pair, args.Error(1)
}

func (m *MockIdentityProvider) RefreshSession(ctx context.Context, refreshToken string) (*accounts.TokenPair, error) {
	args := m.Called(ctx, refreshToken)
	pair, _ := args.Get(0).(*accounts.TokenPair)
	return pair, args.Error(1)
}

func (m *MockIdentityProvider) UpdatePassword(ctx context.Context, id, newPassword string) error {
	args := m.Called(ctx, id, newPassword)
	return args.Error(0)
}

func (m *MockIdentityProvider) DeleteIdentity(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockMailer implements accounts.Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, to, subject, htmlBody, textBody string) (string, error) {
	args := m.Called(ctx, to, subject, htmlBody, textBody)
	return args.String(0), args.Error(1)
}

// MockActivitySink implements accounts.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event accounts.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockProfiles implements accounts.Profiles. Methods of the embedded
// repository interface that a test does not stub will panic when called.
type MockProfiles struct {
	mock.Mock
	repository.Repository[*accounts.Profile]
}

func (m *MockProfiles) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*accounts.Profile, error) {
	args := m.Called(ctx, id, criteria)
	profile, _ := args.Get(0).(*accounts.Profile)
	return profile, args.Error(1)
}

func (m *MockProfiles) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*accounts.Profile, error) {
	args := m.Called(ctx, identifier, criteria)
	profile, _ := args.Get(0).(*accounts.Profile)
	return profile, args.Error(1)
}

func (m *MockProfiles) GetByIdentityID(ctx context.Context, identityID string, criteria ...repository.SelectCriteria) (*accounts.Profile, error) {
	args := m.Called(ctx, identityID, criteria)
	profile, _ := args.Get(0).(*accounts.Profile)
	return profile, args.Error(1)
}

func (m *MockProfiles) GetByIdentityIDTx(ctx context.Context, tx bun.IDB, identityID string, criteria ...repository.SelectCriteria) (*accounts.Profile, error) {
	args := m.Called(ctx, tx, identityID, criteria)
	profile, _ := args.Get(0).(*accounts.Profile)
	return profile, args.Error(1)
}

func (m *MockProfiles) Register(ctx context.Context, profile *accounts.Profile) (*accounts.Profile, error) {
	args := m.Called(ctx, profile)
	out, _ := args.Get(0).(*accounts.Profile)
	return out, args.Error(1)
}

func (m *MockProfiles) RegisterTx(ctx context.Context, tx bun.IDB, profile *accounts.Profile) (*accounts.Profile, error) {
	args := m.Called(ctx, tx, profile)
	out, _ := args.Get(0).(*accounts.Profile)
	return out, args.Error(1)
}

func (m *MockProfiles) Create(ctx context.Context, record *accounts.Profile, criteria ...repository.InsertCriteria) (*accounts.Profile, error) {
	args := m.Called(ctx, record, criteria)
	out, _ := args.Get(0).(*accounts.Profile)
	return out, args.Error(1)
}

func (m *MockProfiles) CreateTx(ctx context.Context, tx bun.IDB, record *accounts.Profile, criteria ...repository.InsertCriteria) (*accounts.Profile, error) {
	args := m.Called(ctx, tx, record, criteria)
	out, _ := args.Get(0).(*accounts.Profile)
	return out, args.Error(1)
}

func (m *MockProfiles) UpdateTx(ctx context.Context, tx bun.IDB, record *accounts.Profile, criteria ...repository.UpdateCriteria) (*accounts.Profile, error) {
	args := m.Called(ctx, tx, record, criteria)
	out, _ := args.Get(0).(*accounts.Profile)
	return out, args.Error(1)
}

func (m *MockProfiles) TrackAttemptedLogin(ctx context.Context, profile *accounts.Profile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

func (m *MockProfiles) TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, profile *accounts.Profile) error {
	args := m.Called(ctx, tx, profile)
	return args.Error(0)
}

func (m *MockProfiles) TrackSuccessfulLogin(ctx context.Context, profile *accounts.Profile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

func (m *MockProfiles) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, profile *accounts.Profile) error {
	args := m.Called(ctx, tx, profile)
	return args.Error(0)
}

func (m *MockProfiles) UpdateStatus(ctx context.Context, id uuid.UUID, status accounts.AccountStatus, opts ...accounts.StatusUpdateOption) (*accounts.Profile, error) {
	args := m.Called(ctx, id, status, opts)
	out, _ := args.Get(0).(*accounts.Profile)
	return out, args.Error(1)
}

func (m *MockProfiles) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status accounts.AccountStatus, opts ...accounts.StatusUpdateOption) (*accounts.Profile, error) {
	args := m.Called(ctx, tx, id, status, opts)
	out, _ := args.Get(0).(*accounts.Profile)
	return out, args.Error(1)
}

func (m *MockProfiles) ListAccounts(ctx context.Context, criteria accounts.ListAccountsCriteria) ([]*accounts.Profile, int, error) {
	args := m.Called(ctx, criteria)
	records, _ := args.Get(0).([]*accounts.Profile)
	return records, args.Int(1), args.Error(2)
}

func (m *MockProfiles) Remove(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockProfiles) RemoveTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func (m *MockProfiles) Lock(ctx context.Context, actor accounts.ActorRef, profile *accounts.Profile, opts ...accounts.TransitionOption) (*accounts.Profile, error) {
	args := m.Called(ctx, actor, profile, opts)
	out, _ := args.Get(0).(*accounts.Profile)
	return out, args.Error(1)
}

func (m *MockProfiles) Unlock(ctx context.Context, actor accounts.ActorRef, profile *accounts.Profile, opts ...accounts.TransitionOption) (*accounts.Profile, error) {
	args := m.Called(ctx, actor, profile, opts)
	out, _ := args.Get(0).(*accounts.Profile)
	return out, args.Error(1)
}

func (m *MockProfiles) Verify(ctx context.Context, actor accounts.ActorRef, profile *accounts.Profile, opts ...accounts.TransitionOption) (*accounts.Profile, error) {
	args := m.Called(ctx, actor, profile, opts)
	out, _ := args.Get(0).(*accounts.Profile)
	return out, args.Error(1)
}

func (m *MockProfiles) Deactivate(ctx context.Context, actor accounts.ActorRef, profile *accounts.Profile, opts ...accounts.TransitionOption) (*accounts.Profile, error) {
	args := m.Called(ctx, actor, profile, opts)
	out, _ := args.Get(0).(*accounts.Profile)
	return out, args.Error(1)
}

// MockVerificationTokens implements accounts.VerificationTokens
type MockVerificationTokens struct {
	mock.Mock
	repository.Repository[*accounts.VerificationToken]
}

func (m *MockVerificationTokens) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*accounts.VerificationToken, error) {
	args := m.Called(ctx, id, criteria)
	out, _ := args.Get(0).(*accounts.VerificationToken)
	return out, args.Error(1)
}

func (m *MockVerificationTokens) CreateTx(ctx context.Context, tx bun.IDB, record *accounts.VerificationToken, criteria ...repository.InsertCriteria) (*accounts.VerificationToken, error) {
	args := m.Called(ctx, tx, record, criteria)
	out, _ := args.Get(0).(*accounts.VerificationToken)
	return out, args.Error(1)
}

func (m *MockVerificationTokens) GetActiveByHash(ctx context.Context, hash string, kind accounts.TokenKind) (*accounts.VerificationToken, error) {
	args := m.Called(ctx, hash, kind)
	out, _ := args.Get(0).(*accounts.VerificationToken)
	return out, args.Error(1)
}

func (m *MockVerificationTokens) GetActiveByHashTx(ctx context.Context, tx bun.IDB, hash string, kind accounts.TokenKind) (*accounts.VerificationToken, error) {
	args := m.Called(ctx, tx, hash, kind)
	out, _ := args.Get(0).(*accounts.VerificationToken)
	return out, args.Error(1)
}

func (m *MockVerificationTokens) RevokeActive(ctx context.Context, profileID uuid.UUID, kind accounts.TokenKind, at time.Time) error {
	args := m.Called(ctx, profileID, kind, at)
	return args.Error(0)
}

func (m *MockVerificationTokens) RevokeActiveTx(ctx context.Context, tx bun.IDB, profileID uuid.UUID, kind accounts.TokenKind, at time.Time) error {
	args := m.Called(ctx, tx, profileID, kind, at)
	return args.Error(0)
}

func (m *MockVerificationTokens) Consume(ctx context.Context, id uuid.UUID, at time.Time) (*accounts.VerificationToken, error) {
	args := m.Called(ctx, id, at)
	out, _ := args.Get(0).(*accounts.VerificationToken)
	return out, args.Error(1)
}

func (m *MockVerificationTokens) ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (*accounts.VerificationToken, error) {
	args := m.Called(ctx, tx, id, at)
	out, _ := args.Get(0).(*accounts.VerificationToken)
	return out, args.Error(1)
}

// MockRepositoryManager implements accounts.RepositoryManager
type MockRepositoryManager struct {
	mock.Mock
}

func (m *MockRepositoryManager) Profiles() accounts.Profiles {
	args := m.Called()
	return args.Get(0).(accounts.Profiles)
}

func (m *MockRepositoryManager) VerificationTokens() accounts.VerificationTokens {
	args := m.Called()
	return args.Get(0).(accounts.VerificationTokens)
}

func (m *MockRepositoryManager) Validate() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockRepositoryManager) MustValidate() {
	m.Called()
}

func (m *MockRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	args := m.Called(ctx, opts, f)
	if err := args.Error(0); err != nil {
		return err
	}
	return f(ctx, bun.Tx{})
}

// MockContext mocks router.Context
type MockContext struct {
	mock.Mock
	NextCalled bool
}

func (m *MockContext) Next() error {
	m.NextCalled = true
	return nil
}

func (m *MockContext) Context() context.Context {
	args := m.Called()
	c, ok := args.Get(0).(context.Context)
	if !ok {
		panic("arg needs to be context.Context")
	}
	return c
}

func (m *MockContext) SetContext(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockContext) Path() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Method() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Body() []byte {
	args := m.Called()
	return args.Get(0).([]byte)
}

func (m *MockContext) Status(code int) router.Context {
	m.Called(code)
	return m
}

func (m *MockContext) SendString(s string) error {
	args := m.Called(s)
	return args.Error(0)
}

func (m *MockContext) Send(b []byte) error {
	args := m.Called(b)
	return args.Error(0)
}

func (m *MockContext) JSON(code int, val any) error {
	args := m.Called(code, val)
	return args.Error(0)
}

func (m *MockContext) NoContent(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) Render(name string, bind any, layout ...string) error {
	if len(layout) > 0 {
		args := m.Called(name, bind, layout[0])
		return args.Error(0)
	}
	args := m.Called(name, bind)
	return args.Error(0)
}

func (m *MockContext) Redirect(path string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(path, status)
		return args.Error(0)
	}
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockContext) RedirectToRoute(name string, data router.ViewContext, status ...int) error {
	if len(status) > 0 {
		args := m.Called(name, data, status[0])
		return args.Error(0)
	}
	args := m.Called(name, data)
	return args.Error(0)
}

func (m *MockContext) RedirectBack(fallback string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(fallback, status)
		return args.Error(0)
	}
	args := m.Called(fallback)
	return args.Error(0)
}

func (m *MockContext) SetHeader(key, val string) router.Context {
	m.Called(key, val)
	return m
}

func (m *MockContext) Header(key string) string {
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Get(key string, defaultValue any) any {
	args := m.Called(key, defaultValue)
	return args.Get(0)
}

func (m *MockContext) GetBool(key string, defaultValue bool) bool {
	args := m.Called(key, defaultValue)
	return args.Bool(0)
}

func (m *MockContext) GetInt(key string, def int) int {
	args := m.Called(key, def)
	return args.Int(0)
}

func (m *MockContext) GetString(key string, defaultValue string) string {
	args := m.Called(key, defaultValue)
	return args.String(0)
}

func (m *MockContext) Set(key string, val any) {
	m.Called(key, val)
}

func (m *MockContext) Bind(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindJSON(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindXML(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindQuery(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) CookieParser(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) Cookie(cookie *router.Cookie) {
	m.Called(cookie)
}

func (m *MockContext) Cookies(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Param(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) ParamsInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Query(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) QueryValues(name string) []string {
	return nil
}

func (m *MockContext) LocalsMerge(key any, value map[string]any) map[string]any {
	return nil
}

func (m *MockContext) FormFile(key string) (*multipart.FileHeader, error) {
	return nil, nil
}

func (m *MockContext) FormValue(key string, defaultValue ...string) string {
	return ""
}

func (m *MockContext) IP() string {
	return ""
}

func (m *MockContext) SendStatus(code int) error {
	return nil
}

func (m *MockContext) SendStream(r io.Reader) error {
	return nil
}

func (m *MockContext) RouteName() string {
	return ""
}

func (m *MockContext) RouteParams() map[string]string {
	return nil
}

func (m *MockContext) QueryInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Queries() map[string]string {
	args := m.Called()
	return args.Get(0).(map[string]string)
}

func (m *MockContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		m.Called(key, value[0])
		return nil
	}
	args := m.Called(key)
	return args.Get(0)
}

func (m *MockContext) OriginalURL() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) OnNext(callback func() error) {
	m.Called(callback)
}

func (m *MockContext) Referer() string {
	args := m.Called()
	return args.String(0)
}
