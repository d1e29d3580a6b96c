package accounts_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-accounts"
)

func TestVerifyEmailSuccess(t *testing.T) {
	f := newRegisterFixture()
	f.runTransactions()

	profileID := uuid.New()
	raw := "raw-verify-token"
	record := &accounts.VerificationToken{
		ID:        uuid.New(),
		ProfileID: profileID,
		TokenHash: accounts.HashToken(raw),
		Kind:      accounts.TokenKindEmailVerification,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	profile := &accounts.Profile{
		ID:     profileID,
		Email:  "pending@example.com",
		Status: accounts.StatusPending,
	}

	f.tokens.On("GetActiveByHash", mock.Anything, accounts.HashToken(raw), accounts.TokenKindEmailVerification).
		Return(record, nil).Once()
	f.profiles.On("GetByID", mock.Anything, profileID.String(), mock.Anything).
		Return(profile, nil).Once()
	f.tokens.On("ConsumeTx", mock.Anything, mock.Anything, record.ID, mock.Anything).
		Return(record, nil).Once()
	f.profiles.On("UpdateStatusTx", mock.Anything, mock.Anything, profileID, accounts.StatusVerified, mock.Anything).
		Return(&accounts.Profile{ID: profileID, Status: accounts.StatusVerified, EmailValidated: true}, nil).Once()
	f.mailer.On("Send", mock.Anything, "pending@example.com", mock.Anything, mock.Anything, mock.Anything).
		Return("msg-1", nil).Once()

	sink := &MockActivitySink{}
	sink.On("Record", mock.Anything, mock.MatchedBy(func(evt accounts.ActivityEvent) bool {
		return evt.EventType == accounts.ActivityEventAccountVerified
	})).Return(nil).Once()

	handler := accounts.NewVerifyEmailHandler(f.repo, accounts.NewTokenIssuer(f.repo), f.mailer, &accounts.SimpleConfig{}).
		WithLogger(testLogger{}).
		WithActivitySink(sink)

	var resp *accounts.VerifyEmailResponse
	err := handler.Execute(context.Background(), accounts.VerifyEmailMessage{
		Token: raw,
		OnResponse: func(r *accounts.VerifyEmailResponse) {
			resp = r
		},
	})

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.Success)
	assert.Equal(t, accounts.StatusVerified, resp.Profile.Status)
	assert.True(t, resp.Profile.EmailValidated)

	f.tokens.AssertExpectations(t)
	f.profiles.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestVerifyEmailUnknownToken(t *testing.T) {
	f := newRegisterFixture()

	f.tokens.On("GetActiveByHash", mock.Anything, mock.Anything, accounts.TokenKindEmailVerification).
		Return(nil, repository.NewRecordNotFound()).Once()

	handler := accounts.NewVerifyEmailHandler(f.repo, accounts.NewTokenIssuer(f.repo), f.mailer, &accounts.SimpleConfig{}).
		WithLogger(testLogger{})

	err := handler.Execute(context.Background(), accounts.VerifyEmailMessage{Token: "nope"})
	assert.ErrorIs(t, err, accounts.ErrInvalidOrExpiredToken)
}

func TestVerifyEmailExpiredToken(t *testing.T) {
	f := newRegisterFixture()

	record := &accounts.VerificationToken{
		ID:        uuid.New(),
		ProfileID: uuid.New(),
		Kind:      accounts.TokenKindEmailVerification,
		ExpiresAt: time.Now().Add(-time.Minute),
	}

	f.tokens.On("GetActiveByHash", mock.Anything, mock.Anything, accounts.TokenKindEmailVerification).
		Return(record, nil).Once()

	handler := accounts.NewVerifyEmailHandler(f.repo, accounts.NewTokenIssuer(f.repo), f.mailer, &accounts.SimpleConfig{}).
		WithLogger(testLogger{})

	err := handler.Execute(context.Background(), accounts.VerifyEmailMessage{Token: "stale"})
	assert.ErrorIs(t, err, accounts.ErrInvalidOrExpiredToken)
	f.profiles.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyEmailEmptyToken(t *testing.T) {
	f := newRegisterFixture()

	handler := accounts.NewVerifyEmailHandler(f.repo, accounts.NewTokenIssuer(f.repo), f.mailer, &accounts.SimpleConfig{})

	err := handler.Execute(context.Background(), accounts.VerifyEmailMessage{Token: ""})
	assert.ErrorIs(t, err, accounts.ErrInvalidOrExpiredToken)
}

func TestVerifyEmailAlreadyVerified(t *testing.T) {
	f := newRegisterFixture()

	profileID := uuid.New()
	record := &accounts.VerificationToken{
		ID:        uuid.New(),
		ProfileID: profileID,
		Kind:      accounts.TokenKindEmailVerification,
		ExpiresAt: time.Now().Add(time.Hour),
	}

	f.tokens.On("GetActiveByHash", mock.Anything, mock.Anything, accounts.TokenKindEmailVerification).
		Return(record, nil).Once()
	f.profiles.On("GetByID", mock.Anything, profileID.String(), mock.Anything).
		Return(&accounts.Profile{
			ID:             profileID,
			Status:         accounts.StatusVerified,
			EmailValidated: true,
		}, nil).Once()

	handler := accounts.NewVerifyEmailHandler(f.repo, accounts.NewTokenIssuer(f.repo), f.mailer, &accounts.SimpleConfig{}).
		WithLogger(testLogger{})

	err := handler.Execute(context.Background(), accounts.VerifyEmailMessage{Token: "twice"})
	assert.ErrorIs(t, err, accounts.ErrAlreadyVerified)
	f.tokens.AssertNotCalled(t, "ConsumeTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestResendVerificationSuccess(t *testing.T) {
	f := newRegisterFixture()
	f.runTransactions()

	profile := &accounts.Profile{
		ID:     uuid.New(),
		Email:  "pending@example.com",
		Status: accounts.StatusPending,
	}

	f.profiles.On("GetByIdentifier", mock.Anything, "pending@example.com", mock.Anything).
		Return(profile, nil).Once()
	f.tokens.On("RevokeActiveTx", mock.Anything, mock.Anything, profile.ID, accounts.TokenKindEmailVerification, mock.Anything).
		Return(nil).Once()
	f.tokens.On("CreateTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&accounts.VerificationToken{}, nil).Once()
	f.mailer.On("Send", mock.Anything, "pending@example.com", mock.Anything, mock.Anything, mock.Anything).
		Return("msg-1", nil).Once()

	handler := accounts.NewResendVerificationHandler(f.repo, accounts.NewTokenIssuer(f.repo), f.mailer, &accounts.SimpleConfig{}).
		WithLogger(testLogger{})

	var resp *accounts.ResendVerificationResponse
	err := handler.Execute(context.Background(), accounts.ResendVerificationMessage{
		Email: "Pending@Example.com",
		OnResponse: func(r *accounts.ResendVerificationResponse) {
			resp = r
		},
	})

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.Success)
	f.tokens.AssertExpectations(t)
	f.mailer.AssertExpectations(t)
}

func TestResendVerificationUnknownAccount(t *testing.T) {
	f := newRegisterFixture()

	f.profiles.On("GetByIdentifier", mock.Anything, "ghost@example.com", mock.Anything).
		Return(nil, repository.NewRecordNotFound()).Once()

	handler := accounts.NewResendVerificationHandler(f.repo, accounts.NewTokenIssuer(f.repo), f.mailer, &accounts.SimpleConfig{}).
		WithLogger(testLogger{})

	err := handler.Execute(context.Background(), accounts.ResendVerificationMessage{Email: "ghost@example.com"})
	assert.ErrorIs(t, err, accounts.ErrAccountNotFound)
}

func TestResendVerificationAlreadyVerified(t *testing.T) {
	f := newRegisterFixture()

	f.profiles.On("GetByIdentifier", mock.Anything, "done@example.com", mock.Anything).
		Return(&accounts.Profile{
			ID:             uuid.New(),
			Email:          "done@example.com",
			EmailValidated: true,
		}, nil).Once()

	handler := accounts.NewResendVerificationHandler(f.repo, accounts.NewTokenIssuer(f.repo), f.mailer, &accounts.SimpleConfig{}).
		WithLogger(testLogger{})

	err := handler.Execute(context.Background(), accounts.ResendVerificationMessage{Email: "done@example.com"})
	assert.ErrorIs(t, err, accounts.ErrAlreadyVerified)
}

func TestResendVerificationMailFailureIsLoggedNotSurfaced(t *testing.T) {
	f := newRegisterFixture()
	f.runTransactions()

	profile := &accounts.Profile{
		ID:     uuid.New(),
		Email:  "pending@example.com",
		Status: accounts.StatusPending,
	}

	f.profiles.On("GetByIdentifier", mock.Anything, "pending@example.com", mock.Anything).
		Return(profile, nil).Once()
	f.tokens.On("RevokeActiveTx", mock.Anything, mock.Anything, profile.ID, accounts.TokenKindEmailVerification, mock.Anything).
		Return(nil).Once()
	f.tokens.On("CreateTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&accounts.VerificationToken{}, nil).Once()
	f.mailer.On("Send", mock.Anything, "pending@example.com", mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("smtp timeout")).Once()

	sink := &MockActivitySink{}

	handler := accounts.NewResendVerificationHandler(f.repo, accounts.NewTokenIssuer(f.repo), f.mailer, &accounts.SimpleConfig{}).
		WithLogger(testLogger{}).
		WithActivitySink(sink)

	var resp *accounts.ResendVerificationResponse
	err := handler.Execute(context.Background(), accounts.ResendVerificationMessage{
		Email: "pending@example.com",
		OnResponse: func(r *accounts.ResendVerificationResponse) {
			resp = r
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.Success)
	sink.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
	f.mailer.AssertExpectations(t)
}
