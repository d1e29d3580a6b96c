package local

import (
	"context"
	"database/sql"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"

	"github.com/goliatone/go-accounts"
)

type identityRecord struct {
	bun.BaseModel `bun:"table:identities,alias:idn"`

	ID            uuid.UUID `bun:"id,pk,notnull" json:"id"`
	Email         string    `bun:"email,notnull,unique" json:"email"`
	DisplayName   string    `bun:"display_name" json:"display_name"`
	PasswordHash  string    `bun:"password_hash,notnull" json:"-"`
	EmailVerified bool      `bun:"email_verified" json:"email_verified"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// Provider implements accounts.IdentityProvider against a local table.
type Provider struct {
	db     *bun.DB
	config Config
	clock  accounts.Clock
}

// NewProvider creates a local identity provider.
func NewProvider(db *bun.DB, cfg Config) (*Provider, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, goerrors.New(
			"local provider requires a signing key",
			goerrors.CategoryBadInput,
		)
	}

	return &Provider{
		db:     db,
		config: cfg,
		clock:  time.Now,
	}, nil
}

// WithClock overrides the time source, used in tests.
func (p *Provider) WithClock(clock accounts.Clock) *Provider {
	if clock != nil {
		p.clock = clock
	}
	return p
}

// CreateIdentity implements accounts.IdentityProvider.
func (p *Provider) CreateIdentity(ctx context.Context, email, password, displayName string) (accounts.Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, goerrors.New("email is required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.config.bcryptCost())
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	now := p.clock()
	record := &identityRecord{
		ID:           uuid.New(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := p.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, goerrors.New(
				"email already registered",
				goerrors.CategoryConflict,
			).WithCode(goerrors.CodeConflict)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to create identity")
	}

	return identityFromRecord(record), nil
}

// VerifyCredential implements accounts.IdentityProvider. Unknown emails and
// wrong passwords produce the same error.
func (p *Provider) VerifyCredential(ctx context.Context, email, password string) (accounts.Identity, error) {
	record, err := p.getByEmail(ctx, email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, accounts.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(record.PasswordHash), []byte(password)); err != nil {
		return nil, accounts.ErrInvalidCredentials
	}

	return identityFromRecord(record), nil
}

// UpdatePassword implements accounts.IdentityProvider.
func (p *Provider) UpdatePassword(ctx context.Context, id, newPassword string) error {
	record, err := p.getByID(ctx, id)
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), p.config.bcryptCost())
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	record.PasswordHash = string(hash)
	record.UpdatedAt = p.clock()

	_, err = p.db.NewUpdate().
		Model(record).
		Column("password_hash", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to update password")
	}

	return nil
}

// DeleteIdentity implements accounts.IdentityProvider. Deleting an unknown
// identity is a no-op.
func (p *Provider) DeleteIdentity(ctx context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return goerrors.New("invalid identity id", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	_, err = p.db.NewDelete().
		Model((*identityRecord)(nil)).
		Where("?TableAlias.id = ?", uid).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to delete identity")
	}

	return nil
}

// MarkEmailVerified flips the verified flag on the stored identity.
func (p *Provider) MarkEmailVerified(ctx context.Context, id string) error {
	record, err := p.getByID(ctx, id)
	if err != nil {
		return err
	}

	record.EmailVerified = true
	record.UpdatedAt = p.clock()

	_, err = p.db.NewUpdate().
		Model(record).
		Column("email_verified", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to update identity")
	}

	return nil
}

func (p *Provider) getByEmail(ctx context.Context, email string) (*identityRecord, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	record := &identityRecord{}
	err := p.db.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", email).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, goerrors.New("identity not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to load identity")
	}

	return record, nil
}

func (p *Provider) getByID(ctx context.Context, id string) (*identityRecord, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, goerrors.New("invalid identity id", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	record := &identityRecord{}
	err = p.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", uid).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, goerrors.New("identity not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to load identity")
	}

	return record, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

// localIdentity implements accounts.Identity.
type localIdentity struct {
	id            string
	email         string
	displayName   string
	emailVerified bool
}

func identityFromRecord(r *identityRecord) *localIdentity {
	return &localIdentity{
		id:            r.ID.String(),
		email:         r.Email,
		displayName:   r.DisplayName,
		emailVerified: r.EmailVerified,
	}
}

func (u *localIdentity) ID() string          { return u.id }
func (u *localIdentity) Email() string       { return u.email }
func (u *localIdentity) DisplayName() string { return u.displayName }
func (u *localIdentity) EmailVerified() bool { return u.emailVerified }
