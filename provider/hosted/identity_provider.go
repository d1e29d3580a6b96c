package hosted

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-accounts"
)

// Provider implements accounts.IdentityProvider backed by a hosted service.
type Provider struct {
	config   Config
	client   *http.Client
	verifier *tokenVerifier
}

// NewProvider creates a hosted identity provider. It starts a background
// JWKS refresh that runs until ctx is cancelled.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, goerrors.New("hosted provider requires a base URL", goerrors.CategoryBadInput)
	}
	if strings.TrimSpace(cfg.JWKSURL) == "" {
		return nil, goerrors.New("hosted provider requires a JWKS URL", goerrors.CategoryBadInput)
	}

	verifier, err := newTokenVerifier(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &Provider{
		config:   cfg,
		client:   cfg.httpClient(),
		verifier: verifier,
	}, nil
}

type identityPayload struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	DisplayName   string `json:"display_name"`
	EmailVerified bool   `json:"email_verified"`
}

type sessionPayload struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// CreateIdentity implements accounts.IdentityProvider.
func (p *Provider) CreateIdentity(ctx context.Context, email, password, displayName string) (accounts.Identity, error) {
	body := map[string]string{
		"email":        strings.ToLower(strings.TrimSpace(email)),
		"password":     password,
		"display_name": strings.TrimSpace(displayName),
	}

	out := &identityPayload{}
	if err := p.do(ctx, http.MethodPost, "/identities", body, out); err != nil {
		return nil, err
	}

	return hostedIdentityFromPayload(out), nil
}

// VerifyCredential implements accounts.IdentityProvider.
func (p *Provider) VerifyCredential(ctx context.Context, email, password string) (accounts.Identity, error) {
	body := map[string]string{
		"email":    strings.ToLower(strings.TrimSpace(email)),
		"password": password,
	}

	out := &identityPayload{}
	if err := p.do(ctx, http.MethodPost, "/identities/verify", body, out); err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			switch richErr.Category {
			case goerrors.CategoryAuth, goerrors.CategoryNotFound:
				return nil, accounts.ErrInvalidCredentials
			}
		}
		return nil, err
	}

	return hostedIdentityFromPayload(out), nil
}

// IssueSession implements accounts.IdentityProvider.
func (p *Provider) IssueSession(ctx context.Context, identity accounts.Identity) (*accounts.TokenPair, error) {
	if identity == nil {
		return nil, goerrors.New("identity must not be nil", goerrors.CategoryInternal)
	}

	body := map[string]string{"identity_id": identity.ID()}

	out := &sessionPayload{}
	if err := p.do(ctx, http.MethodPost, "/sessions", body, out); err != nil {
		return nil, err
	}

	return &accounts.TokenPair{
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
		ExpiresAt:    out.ExpiresAt,
	}, nil
}

// RefreshSession implements accounts.IdentityProvider.
func (p *Provider) RefreshSession(ctx context.Context, refreshToken string) (*accounts.TokenPair, error) {
	body := map[string]string{"refresh_token": refreshToken}

	out := &sessionPayload{}
	if err := p.do(ctx, http.MethodPost, "/sessions/refresh", body, out); err != nil {
		return nil, err
	}

	return &accounts.TokenPair{
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
		ExpiresAt:    out.ExpiresAt,
	}, nil
}

// VerifyToken implements accounts.IdentityProvider. Verification happens
// locally against the cached JWK Set, no network round trip per request.
func (p *Provider) VerifyToken(ctx context.Context, bearer string) (*accounts.DecodedIdentity, error) {
	return p.verifier.verify(bearer)
}

// UpdatePassword implements accounts.IdentityProvider.
func (p *Provider) UpdatePassword(ctx context.Context, id, newPassword string) error {
	body := map[string]string{"password": newPassword}
	path := fmt.Sprintf("/identities/%s/password", id)
	return p.do(ctx, http.MethodPut, path, body, nil)
}

// DeleteIdentity implements accounts.IdentityProvider. Deleting an unknown
// identity succeeds.
func (p *Provider) DeleteIdentity(ctx context.Context, id string) error {
	path := fmt.Sprintf("/identities/%s", id)

	err := p.do(ctx, http.MethodDelete, path, nil, nil)
	if err != nil && goerrors.IsNotFound(err) {
		return nil
	}
	return err
}

func (p *Provider) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode request")
		}
		reader = bytes.NewReader(raw)
	}

	url := strings.TrimRight(p.config.BaseURL, "/") + path

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	res, err := p.client.Do(req)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "identity service unreachable")
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		return errorFromStatus(res)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to decode identity service response")
	}

	return nil
}

type remoteError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func errorFromStatus(res *http.Response) error {
	remote := &remoteError{}
	_ = json.NewDecoder(io.LimitReader(res.Body, 4096)).Decode(remote)

	msg := remote.Message
	if msg == "" {
		msg = fmt.Sprintf("identity service returned %d", res.StatusCode)
	}

	var category goerrors.Category
	switch {
	case res.StatusCode == http.StatusUnauthorized:
		category = goerrors.CategoryAuth
	case res.StatusCode == http.StatusForbidden:
		category = goerrors.CategoryAuthz
	case res.StatusCode == http.StatusNotFound:
		category = goerrors.CategoryNotFound
	case res.StatusCode == http.StatusConflict:
		category = goerrors.CategoryConflict
	case res.StatusCode == http.StatusUnprocessableEntity || res.StatusCode == http.StatusBadRequest:
		category = goerrors.CategoryValidation
	default:
		category = goerrors.CategoryOperation
	}

	return goerrors.New(msg, category).
		WithCode(res.StatusCode).
		WithMetadata(map[string]any{
			"provider":    "hosted",
			"remote_code": remote.Code,
		})
}

// hostedIdentity implements accounts.Identity.
type hostedIdentity struct {
	id            string
	email         string
	displayName   string
	emailVerified bool
}

func hostedIdentityFromPayload(p *identityPayload) *hostedIdentity {
	return &hostedIdentity{
		id:            p.ID,
		email:         p.Email,
		displayName:   p.DisplayName,
		emailVerified: p.EmailVerified,
	}
}

func (u *hostedIdentity) ID() string          { return u.id }
func (u *hostedIdentity) Email() string       { return u.email }
func (u *hostedIdentity) DisplayName() string { return u.displayName }
func (u *hostedIdentity) EmailVerified() bool { return u.emailVerified }
