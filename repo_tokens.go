package accounts

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type VerificationTokens interface {
	repository.Repository[*VerificationToken]

	GetActiveByHash(ctx context.Context, hash string, kind TokenKind) (*VerificationToken, error)
	GetActiveByHashTx(ctx context.Context, tx bun.IDB, hash string, kind TokenKind) (*VerificationToken, error)
	RevokeActive(ctx context.Context, profileID uuid.UUID, kind TokenKind, at time.Time) error
	RevokeActiveTx(ctx context.Context, tx bun.IDB, profileID uuid.UUID, kind TokenKind, at time.Time) error
	Consume(ctx context.Context, id uuid.UUID, at time.Time) (*VerificationToken, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (*VerificationToken, error)
}

type verificationTokens struct {
	repository.Repository[*VerificationToken]
	db *bun.DB
}

var (
	_ VerificationTokens                        = (*verificationTokens)(nil)
	_ repository.Repository[*VerificationToken] = (*verificationTokens)(nil)
)

func NewVerificationTokensRepository(db *bun.DB) VerificationTokens {
	repo := repository.NewRepository[*VerificationToken](db, repository.ModelHandlers[*VerificationToken]{
		NewRecord: func() *VerificationToken { return &VerificationToken{} },
		GetID: func(v *VerificationToken) uuid.UUID {
			if v == nil {
				return uuid.Nil
			}
			return v.ID
		},
		SetID: func(v *VerificationToken, id uuid.UUID) {
			if v != nil {
				v.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token_hash"
		},
	})

	return &verificationTokens{
		Repository: repo,
		db:         db,
	}
}

func (a *verificationTokens) GetActiveByHash(ctx context.Context, hash string, kind TokenKind) (*VerificationToken, error) {
	return a.GetActiveByHashTx(ctx, a.db, hash, kind)
}

func (a *verificationTokens) GetActiveByHashTx(ctx context.Context, tx bun.IDB, hash string, kind TokenKind) (*VerificationToken, error) {
	record := &VerificationToken{}

	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token_hash = ?", hash).
		Where("?TableAlias.kind = ?", kind).
		Where("?TableAlias.consumed_at IS NULL").
		Where("?TableAlias.revoked_at IS NULL").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"kind": kind,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *verificationTokens) RevokeActive(ctx context.Context, profileID uuid.UUID, kind TokenKind, at time.Time) error {
	return a.RevokeActiveTx(ctx, a.db, profileID, kind, at)
}

func (a *verificationTokens) RevokeActiveTx(ctx context.Context, tx bun.IDB, profileID uuid.UUID, kind TokenKind, at time.Time) error {
	_, err := tx.NewUpdate().
		Model((*VerificationToken)(nil)).
		Set("revoked_at = ?", at).
		Set("updated_at = ?", at).
		Where("?TableAlias.profile_id = ?", profileID).
		Where("?TableAlias.kind = ?", kind).
		Where("?TableAlias.consumed_at IS NULL").
		Where("?TableAlias.revoked_at IS NULL").
		Exec(ctx)

	return err
}

func (a *verificationTokens) Consume(ctx context.Context, id uuid.UUID, at time.Time) (*VerificationToken, error) {
	return a.ConsumeTx(ctx, a.db, id, at)
}

func (a *verificationTokens) ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) (*VerificationToken, error) {
	record := MarkConsumed(id, at)
	return a.Repository.UpdateTx(ctx, tx, record, repository.UpdateByID(id.String()))
}
